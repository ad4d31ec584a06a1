// Package recovery wraps tool execution with bounded retries, alternative
// tool substitution, and an error taxonomy that lets the reasoning loop feed
// actionable hints back to the AI, grounded on internal/retry's generic
// backoff-with-jitter idiom.
package recovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/agentrun/agentrun/internal/retry"
)

// ErrorType classifies a tool-execution failure for taxonomy purposes.
type ErrorType string

const (
	ErrorTransient    ErrorType = "transient_external"
	ErrorInvalidCall  ErrorType = "invalid_tool_call"
	ErrorPolicyDenied ErrorType = "policy_denial"
	ErrorUnknown      ErrorType = "unknown"
)

// Executor invokes a single tool call; real implementations dispatch to the
// tool registry, outbound channel adapters, etc.
type Executor func(ctx context.Context, toolID string, params map[string]any) (any, error)

// Recovery carries the enriched failure metadata the reasoning loop feeds
// back to the AI as part of the next user-feedback message.
type Recovery struct {
	ErrorType   ErrorType `json:"errorType"`
	Suggestion  string    `json:"suggestion"`
	Alternatives []string `json:"alternatives"`
}

// Outcome is the result of executeWithRecovery.
type Outcome struct {
	Success             bool
	Result              any
	Err                 error
	RecoveryApplied      bool
	Attempts            int
	UsedAlternativeTool string
	Recovery            Recovery
}

// Strategies holds the per-tool alternative mapping and retry policy.
type Strategies struct {
	// Alternatives maps a tool ID to an ordered list of substitute tool IDs
	// to try if the primary tool fails after exhausting retries.
	Alternatives map[string][]string
	RetryConfig  retry.Config
}

// DefaultAlternatives is a starter substitution table; concrete deployments
// extend it with their own tool catalog's near-duplicates.
var DefaultAlternatives = map[string][]string{
	"searchWeb":      {"searchNews", "browsePage"},
	"sendEmail":      {"sendWhatsApp", "sendTelegram"},
	"sendWhatsApp":   {"sendTelegram", "sendEmail"},
	"sendTelegram":   {"sendWhatsApp", "sendEmail"},
	"readCalendar":   {"readTasks"},
	"createFile":     {"writeNote"},
}

// New builds a Strategies with the spec default: 3 attempts, 250ms initial
// backoff, 5s cap, jittered exponential growth.
func New(alternatives map[string][]string) Strategies {
	if alternatives == nil {
		alternatives = DefaultAlternatives
	}
	return Strategies{
		Alternatives: alternatives,
		RetryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Factor:       2.0,
			Jitter:       true,
		},
	}
}

// ExecuteWithRecovery runs exec(toolID, params), retrying transient
// failures with backoff and falling back to an alternative tool ID when the
// primary is exhausted.
func (s Strategies) ExecuteWithRecovery(ctx context.Context, exec Executor, toolID string, params map[string]any) Outcome {
	res, attempts, err := s.retryOne(ctx, exec, toolID, params)
	if err == nil {
		return Outcome{Success: true, Result: res, Attempts: attempts}
	}

	errType := classify(err)
	if errType == ErrorTransient {
		for _, alt := range s.Alternatives[toolID] {
			altRes, altAttempts, altErr := s.retryOne(ctx, exec, alt, params)
			attempts += altAttempts
			if altErr == nil {
				return Outcome{
					Success:              true,
					Result:               altRes,
					RecoveryApplied:       true,
					Attempts:             attempts,
					UsedAlternativeTool: alt,
				}
			}
		}
	}

	return Outcome{
		Success:  false,
		Err:      err,
		Attempts: attempts,
		Recovery: taxonomyFor(toolID, errType, s.Alternatives[toolID]),
	}
}

func (s Strategies) retryOne(ctx context.Context, exec Executor, toolID string, params map[string]any) (any, int, error) {
	value, result := retry.DoWithValue(ctx, s.RetryConfig, func() (any, error) {
		res, err := exec(ctx, toolID, params)
		if err != nil && !isRetryable(err) {
			return nil, retry.Permanent(err)
		}
		return res, err
	})
	return value, result.Attempts, result.Err
}

func isRetryable(err error) bool {
	return classify(err) == ErrorTransient
}

// classify maps a raw execution error onto the error taxonomy.
func classify(err error) ErrorType {
	if err == nil {
		return ""
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTransient
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"),
		strings.Contains(msg, "rate limit"), strings.Contains(msg, "econnrefused"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "temporarily unavailable"):
		return ErrorTransient
	case strings.Contains(msg, " 5") && strings.Contains(msg, "status"):
		return ErrorTransient
	case strings.Contains(msg, "unknown tool"), strings.Contains(msg, "invalid parameter"),
		strings.Contains(msg, "missing required"):
		return ErrorInvalidCall
	case strings.Contains(msg, "not authorized"), strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "requires approval"):
		return ErrorPolicyDenied
	default:
		return ErrorUnknown
	}
}

func taxonomyFor(toolID string, errType ErrorType, alternatives []string) Recovery {
	var suggestion string
	switch errType {
	case ErrorTransient:
		suggestion = "The tool is temporarily unavailable; try again shortly or use an alternative."
	case ErrorInvalidCall:
		suggestion = "Check the tool's required parameters and retry with corrected input."
	case ErrorPolicyDenied:
		suggestion = "This action requires approval or is outside the current policy; do not retry blindly."
	default:
		suggestion = "The tool failed for an unclassified reason; consider an alternative approach."
	}
	return Recovery{
		ErrorType:    errType,
		Suggestion:   suggestion,
		Alternatives: alternatives,
	}
}
