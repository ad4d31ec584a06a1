package toolcall

import (
	"fmt"
	"sort"
	"strings"
)

// ToolAliases maps alternative action names emitted by the AI to the
// canonical tool ID.
var ToolAliases = map[string]string{
	"respondToUser": "respond",
	"search":        "searchWeb",
	"web_search":    "searchWeb",
	"finish":        "done",
	"complete":      "done",
	"createPlan":    "generatePlan",
	"save_memory":   "saveMemory",
	"remember":      "saveMemory",
	"ask_human":     "requestHumanInput",
}

// ParamAliases maps alternative parameter names to the canonical name a
// tool expects.
var ParamAliases = map[string]string{
	"msg":            "message",
	"text":           "message",
	"content":        "message",
	"body":           "message",
	"q":              "query",
	"search_query":   "query",
	"term":           "query",
	"recipient_name": "contactName",
}

// ValidationResult is the outcome of validating one parsed call against
// the tools available this cycle.
type ValidationResult struct {
	Valid         bool
	CorrectedCall Call
	Error         string
	Suggestions   []string
}

// Validator checks a parsed Call's action ID (and, best-effort, its
// parameter names) against the set of tool IDs available this cycle.
type Validator struct {
	maxFuzzyDistance int
}

// NewValidator constructs a Validator with the spec's default fuzzy-match
// distance of 3.
func NewValidator() *Validator {
	return &Validator{maxFuzzyDistance: 3}
}

// Validate implements the §4.5 ToolCallValidator contract.
func (v *Validator) Validate(call Call, availableToolIDs []string) ValidationResult {
	available := map[string]bool{}
	for _, id := range availableToolIDs {
		available[id] = true
	}

	// 1. Direct ID match.
	if available[call.Action] {
		return ValidationResult{Valid: true, CorrectedCall: v.correctParams(call)}
	}

	// 2. Alias table.
	if canon, ok := ToolAliases[call.Action]; ok && available[canon] {
		corrected := call
		corrected.Action = canon
		return ValidationResult{Valid: true, CorrectedCall: v.correctParams(corrected)}
	}

	// 3. Fuzzy match with Levenshtein distance <= maxFuzzyDistance.
	if best, dist := nearestToolID(call.Action, availableToolIDs); best != "" && dist <= v.maxFuzzyDistance {
		corrected := call
		corrected.Action = best
		return ValidationResult{Valid: true, CorrectedCall: v.correctParams(corrected)}
	}

	// 5. Failure: suggest the five nearest tool IDs.
	return ValidationResult{
		Valid:       false,
		Error:       fmt.Sprintf("unknown tool %q", call.Action),
		Suggestions: nearestToolIDs(call.Action, availableToolIDs, 5),
	}
}

// correctParams applies the §4.5 step-4 parameter-name correction table.
func (v *Validator) correctParams(call Call) Call {
	if len(call.Params) == 0 {
		return call
	}
	corrected := make(map[string]any, len(call.Params))
	for k, val := range call.Params {
		if canon, ok := ParamAliases[k]; ok {
			if _, exists := call.Params[canon]; !exists {
				corrected[canon] = val
				continue
			}
		}
		corrected[k] = val
	}
	call.Params = corrected
	return call
}

// levenshtein computes the edit distance between a and b. No third-party
// string-distance library appears anywhere in the retrieval pack, so this
// is a small, standard dynamic-programming implementation.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func nearestToolID(action string, ids []string) (string, int) {
	best := ""
	bestDist := 1 << 30
	lowered := strings.ToLower(action)
	for _, id := range ids {
		d := levenshtein(lowered, strings.ToLower(id))
		if d < bestDist {
			bestDist = d
			best = id
		}
	}
	return best, bestDist
}

type scoredID struct {
	id   string
	dist int
}

func nearestToolIDs(action string, ids []string, n int) []string {
	lowered := strings.ToLower(action)
	scored := make([]scoredID, 0, len(ids))
	for _, id := range ids {
		scored = append(scored, scoredID{id: id, dist: levenshtein(lowered, strings.ToLower(id))})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].dist != scored[j].dist {
			return scored[i].dist < scored[j].dist
		}
		return scored[i].id < scored[j].id
	})
	out := make([]string, 0, n)
	for i := 0; i < len(scored) && i < n; i++ {
		out = append(out, scored[i].id)
	}
	return out
}
