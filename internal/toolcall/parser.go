// Package toolcall extracts and validates structured tool calls from AI
// output, via either native provider function-call objects or free text.
package toolcall

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Call is one parsed tool invocation.
type Call struct {
	Action          string         `json:"action"`
	Params          map[string]any `json:"params"`
	Reasoning       string         `json:"reasoning,omitempty"`
	NativeCallID    string         `json:"native_call_id,omitempty"`
}

// NativeToolCall mirrors a provider's native function-call object.
type NativeToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

var (
	fencedToolRe = regexp.MustCompile("(?s)```tool\\s*(.*?)```")
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedPlainRe = regexp.MustCompile("(?s)```\\s*(.*?)```")
	actionFlatRe = regexp.MustCompile(`(?s)\{[^{}]*"action"\s*:\s*"[^"]+"[^{}]*\}`)
	actionKeyRe  = regexp.MustCompile(`"action"\s*:\s*"`)
	unclosedFenceRe = regexp.MustCompile("(?s)```(?:tool|json)?\\s*(.*)$")
)

// Parse extracts tool calls from an AI response. When usedNativeTools is
// true, native is converted directly and the text path is skipped.
func Parse(response string, native []NativeToolCall, usedNativeTools bool) []Call {
	if usedNativeTools && len(native) > 0 {
		return parseNative(native)
	}
	return parseText(response)
}

func parseNative(native []NativeToolCall) []Call {
	calls := make([]Call, 0, len(native))
	for _, n := range native {
		params := map[string]any{}
		if strings.TrimSpace(n.Arguments) != "" {
			_ = json.Unmarshal([]byte(n.Arguments), &params)
		}
		calls = append(calls, Call{
			Action:       n.Name,
			Params:       params,
			NativeCallID: n.ID,
		})
	}
	return calls
}

// parseText runs the ordered text-path strategies. The first strategy
// that yields at least one call wins; strategies 2+ additionally scan for
// extra calls to catch multi-call outputs, deduplicated by (action,params).
func parseText(response string) []Call {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return nil
	}

	// 1. Entire response is a JSON object with "action".
	if call, ok := tryParseObject(trimmed); ok {
		return []Call{call}
	}

	var all []Call
	seen := map[string]bool{}
	addUnique := func(c Call) {
		key := c.Action + "|" + mustMarshal(c.Params)
		if seen[key] {
			return
		}
		seen[key] = true
		all = append(all, c)
	}

	// 2. Balanced top-level JSON objects with "action".
	for _, obj := range scanBalancedObjects(trimmed) {
		if call, ok := tryParseObject(obj); ok {
			addUnique(call)
		}
	}
	if len(all) > 0 {
		return all
	}

	// 3. Fenced ```tool blocks.
	for _, m := range fencedToolRe.FindAllStringSubmatch(trimmed, -1) {
		if call, ok := tryParseObject(strings.TrimSpace(m[1])); ok {
			addUnique(call)
		}
	}
	if len(all) > 0 {
		return all
	}

	// 4. Fenced ```json and plain ``` blocks.
	for _, re := range []*regexp.Regexp{fencedJSONRe, fencedPlainRe} {
		for _, m := range re.FindAllStringSubmatch(trimmed, -1) {
			if call, ok := tryParseObject(strings.TrimSpace(m[1])); ok {
				addUnique(call)
			}
		}
		if len(all) > 0 {
			return all
		}
	}

	// 5. Regex flat JSON with an "action" key.
	for _, m := range actionFlatRe.FindAllString(trimmed, -1) {
		if call, ok := tryParseObject(m); ok {
			addUnique(call)
		}
	}
	if len(all) > 0 {
		return all
	}

	// 6. Balanced-brace extraction around an "action" occurrence.
	if loc := actionKeyRe.FindStringIndex(trimmed); loc != nil {
		if obj, ok := extractBalancedAround(trimmed, loc[0]); ok {
			if call, ok := tryParseObject(obj); ok {
				addUnique(call)
			}
		}
	}
	if len(all) > 0 {
		return all
	}

	// 7. Unclosed fence recovery.
	if m := unclosedFenceRe.FindStringSubmatch(trimmed); m != nil {
		for _, obj := range scanBalancedObjects(m[1]) {
			if call, ok := tryParseObject(obj); ok {
				addUnique(call)
			}
		}
	}
	if len(all) > 0 {
		return all
	}

	// 8. Double-escape recovery.
	unescaped := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\\`, `\`).Replace(trimmed)
	if unescaped != trimmed {
		if call, ok := tryParseObject(unescaped); ok {
			return []Call{call}
		}
		for _, obj := range scanBalancedObjects(unescaped) {
			if call, ok := tryParseObject(obj); ok {
				addUnique(call)
			}
		}
	}

	return all
}

func tryParseObject(s string) (Call, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s[0] != '{' {
		return Call{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return Call{}, false
	}
	action, ok := raw["action"].(string)
	if !ok || action == "" {
		return Call{}, false
	}
	call := Call{Action: action}
	if params, ok := raw["params"].(map[string]any); ok {
		call.Params = params
	} else {
		call.Params = map[string]any{}
	}
	if reasoning, ok := raw["reasoning"].(string); ok {
		call.Reasoning = reasoning
	}
	return call, true
}

// scanBalancedObjects finds every top-level balanced {...} substring.
func scanBalancedObjects(s string) []string {
	var out []string
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			if escaped {
				escaped = false
			} else if r == '\\' {
				escaped = true
			} else if r == '"' {
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

// extractBalancedAround finds the balanced {...} object enclosing index idx.
func extractBalancedAround(s string, idx int) (string, bool) {
	start := strings.LastIndex(s[:idx], "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func mustMarshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// IsMetaTalk reports whether text is purely commentary about tool-calling
// rather than an actual attempt, used by the reasoning loop's iteration
// ≤ 2 corrective-feedback rule.
func IsMetaTalk(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "```") {
		return false
	}
	markers := []string{"i will use the tool", "i should call", "i need to use", "let me use the", "i'll call the function", "calling the tool"}
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

var errorShapedRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)insufficient credits`),
	regexp.MustCompile(`(?i)statusCode["']?\s*:\s*[45]\d\d`),
	regexp.MustCompile(`(?i)"error"\s*:\s*\{`),
	regexp.MustCompile(`(?i)openrouter\.ai/settings/credits`),
	regexp.MustCompile(`(?i)migration\s+\d+_\w+\.(sql|go)`),
	regexp.MustCompile(`(?i)rate.?limit(ed)?\s+exceeded`),
	regexp.MustCompile(`(?i)ENOENT|EACCES|EISDIR`),
	regexp.MustCompile(`(?i)at\s+\S+\.go:\d+`),
	regexp.MustCompile(`(?i)socket hang up`),
	regexp.MustCompile(`(?i)ECONNRESET|ETIMEDOUT|ECONNREFUSED`),
}

var placeholderRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[insert[^\]]*\]`),
	regexp.MustCompile(`(?i)\[actual[^\]]*\]`),
	regexp.MustCompile(`(?i)\[timestamp\]`),
	regexp.MustCompile(`(?i)\[data here\]`),
	regexp.MustCompile(`(?i)\[message content\]`),
	regexp.MustCompile(`(?i)\[placeholder\]`),
	regexp.MustCompile(`(?i)\[fill in[^\]]*\]`),
	regexp.MustCompile(`(?i)\[replace with[^\]]*\]`),
	regexp.MustCompile(`(?i)\[TODO[^\]]*\]`),
	regexp.MustCompile(`\{\{\s*\w+\s*\}\}`),
	regexp.MustCompile(`(?i)\[from tool results\]`),
}

// IsErrorShaped implements the §4.8 error-shaped response screen.
func IsErrorShaped(text string) bool {
	trimmed := strings.TrimSpace(text)
	for _, re := range errorShapedRes {
		if re.MatchString(trimmed) {
			return true
		}
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
		if _, ok := raw["error"]; ok {
			return true
		}
		if code, ok := raw["statusCode"].(float64); ok && code >= 400 {
			return true
		}
		if code, ok := raw["code"].(string); ok && code == "ECONNREFUSED" {
			return true
		}
	}
	return false
}

// IsPlaceholderShaped implements the §4.8 placeholder-shaped response
// screen. The regex list is a conservative floor, not exhaustive.
func IsPlaceholderShaped(text string) bool {
	for _, re := range placeholderRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// LooksLikeErrorOutput is used by the reasoning loop to decide whether
// text lacking any tool call should be discarded rather than treated as
// a finalThought.
func LooksLikeErrorOutput(text string) bool {
	return IsErrorShaped(text)
}
