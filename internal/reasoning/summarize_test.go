package reasoning

import "testing"

func TestSummarizeResultTruncatesLongStrings(t *testing.T) {
	long := make([]byte, 900)
	for i := range long {
		long[i] = 'x'
	}
	out := summarizeResult("readFile", string(long), 800)
	if len(out) <= 800 {
		t.Fatalf("expected the truncated output to carry the suffix beyond 800 chars, got len %d", len(out))
	}
	if want := "[truncated, 900 chars total]"; !contains(out, want) {
		t.Fatalf("expected suffix %q in %q", want, out[len(out)-40:])
	}
}

func TestSummarizeResultArraySummary(t *testing.T) {
	arr := []any{"a", "b", "c", "d", "e"}
	out := summarizeResult("listTasks", arr, 800)
	if want := "[5 items] First 3:"; !contains(out, want) {
		t.Fatalf("expected array summary header %q, got %q", want, out)
	}
	if want := "and 2 more"; !contains(out, want) {
		t.Fatalf("expected trailing count, got %q", out)
	}
}

func TestSummarizeResultFileFirstSummary(t *testing.T) {
	result := map[string]any{
		"createdFiles": []any{
			map[string]any{"name": "report.pdf", "size": float64(1024), "path": "/tmp/report.pdf", "mimeType": "application/pdf", "autoDelivered": true},
		},
		"response": "all good",
	}
	out := summarizeResult("generateReport", result, 800)
	if !contains(out, "report.pdf") || !contains(out, "do not call a media-send tool") {
		t.Fatalf("expected a file-first summary with the auto-delivery note, got %q", out)
	}
}

func TestSummarizeResultEmpty(t *testing.T) {
	if got := summarizeResult("noop", nil, 800); got != "(no result)" {
		t.Fatalf("expected the empty-result sentinel, got %q", got)
	}
}

func TestSummarizeParamsRendersKeyValuePairs(t *testing.T) {
	out := summarizeParams(map[string]any{"query": "weather", "limit": float64(5)})
	if !contains(out, "query=weather") || !contains(out, "limit=5") {
		t.Fatalf("expected both params rendered, got %q", out)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
