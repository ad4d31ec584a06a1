package reasoning

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const defaultSummaryMaxChars = 800

// summarizeResult implements §4.10 Tool Result Summarization: turning an
// arbitrary tool result into a compact, AI-readable string capped at
// maxChars.
func summarizeResult(toolID string, result any, maxChars int) string {
	if maxChars <= 0 {
		maxChars = defaultSummaryMaxChars
	}

	if obj, ok := result.(map[string]any); ok {
		if files, ok := obj["createdFiles"].([]any); ok && len(files) > 0 {
			return truncateString(fileFirstSummary(files, obj), maxChars)
		}
		return truncateString(summarizeObject(obj, maxChars), maxChars)
	}

	switch v := result.(type) {
	case string:
		return truncateString(v, maxChars)
	case []any:
		return truncateString(summarizeArray(v), maxChars)
	case nil:
		return "(no result)"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return truncateString(string(b), maxChars)
	}
}

// fileFirstSummary lists each created file's name, size, path, MIME type,
// and auto-delivery status ahead of any provider response text.
func fileFirstSummary(files []any, obj map[string]any) string {
	var b strings.Builder
	b.WriteString("Created files:\n")
	for _, f := range files {
		fm, ok := f.(map[string]any)
		if !ok {
			continue
		}
		name, _ := fm["name"].(string)
		path, _ := fm["path"].(string)
		mime, _ := fm["mimeType"].(string)
		delivered, _ := fm["autoDelivered"].(bool)
		size := fm["size"]
		fmt.Fprintf(&b, "- %s (%v bytes, %s) at %s, auto-delivered=%v\n", name, size, mime, path, delivered)
		if delivered {
			b.WriteString("  (do not call a media-send tool for this file; it was already delivered)\n")
		}
	}
	if resp, ok := obj["response"].(string); ok && resp != "" {
		b.WriteString("Provider response: ")
		b.WriteString(truncateString(resp, 300))
	}
	return strings.TrimRight(b.String(), "\n")
}

// summarizeArray implements the §4.10 array-result rule: element count,
// the first three elements, and a "and K more" tail.
func summarizeArray(arr []any) string {
	n := len(arr)
	if n == 0 {
		return "[0 items]"
	}
	shown := n
	if shown > 3 {
		shown = 3
	}
	parts := make([]string, 0, shown)
	for i := 0; i < shown; i++ {
		parts = append(parts, compactValueInline(compactValue(arr[i])))
	}
	out := fmt.Sprintf("[%d items] First %d: %s", n, shown, strings.Join(parts, ", "))
	if n > shown {
		out += fmt.Sprintf(" ... and %d more", n-shown)
	}
	return out
}

// summarizeObject implements the §4.10 object-result rule: per-field long
// strings (>200 chars) and long arrays (>3 elements) are truncated before
// marshaling; if the overall JSON still exceeds maxChars, the marshaled
// string itself is truncated.
func summarizeObject(obj map[string]any, maxChars int) string {
	trimmed := make(map[string]any, len(obj))
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		trimmed[k] = compactValue(obj[k])
	}
	b, err := json.Marshal(trimmed)
	if err != nil {
		return fmt.Sprintf("%v", obj)
	}
	return truncateString(string(b), maxChars)
}

// compactValue applies the per-field truncation rules used inside
// summarizeObject/summarizeArray: strings over 200 chars and arrays over
// 3 elements are shortened; nested objects recurse one level.
func compactValue(v any) any {
	switch t := v.(type) {
	case string:
		if len(t) > 200 {
			return t[:200] + fmt.Sprintf("...[truncated, %d chars total]", len(t))
		}
		return t
	case []any:
		if len(t) > 3 {
			out := make([]any, 0, 4)
			for i := 0; i < 3; i++ {
				out = append(out, compactValue(t[i]))
			}
			out = append(out, fmt.Sprintf("...and %d more", len(t)-3))
			return out
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = compactValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = e
		}
		return out
	default:
		return v
	}
}

func compactValueInline(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func truncateString(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + fmt.Sprintf(" [truncated, %d chars total]", len(s))
}

// summarizeParams renders a tool call's params as a short, human-readable
// description for an ApprovalRequest's actionDescription field.
func summarizeParams(params map[string]any) string {
	if len(params) == 0 {
		return "(no parameters)"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncateString(compactValueInline(params[k]), 120)))
	}
	return strings.Join(parts, ", ")
}
