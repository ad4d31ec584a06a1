package schedule

import (
	"context"
	"fmt"

	"github.com/agentrun/agentrun/pkg/models"
)

// ReasoningRunner is the thin seam most action handlers delegate through:
// the scheduler hands off to the reasoning loop with a synthetic trigger
// context rather than knowing anything about reasoning internals.
type ReasoningRunner interface {
	RunSynthetic(ctx context.Context, agentID, trigger string, triggerContext map[string]any) (ActionResult, error)
}

// Aggregator answers the read-only queries health_summary/check_messages/
// review_tasks need, without invoking the reasoning loop at all.
type Aggregator interface {
	HealthSummary(ctx context.Context, agentID string) (ActionResult, error)
	UnreadMessageCount(ctx context.Context, agentID string) (int, error)
	OpenTaskCount(ctx context.Context, agentID string) (int, error)
}

// delegatingTriggers maps action_type to the synthetic trigger name passed
// to the reasoning loop.
var delegatingTriggers = map[string]string{
	"heartbeat":            "heartbeat",
	"follow_up_check_in":   "follow_up_check_in",
	"proactive_outreach":   "proactive_outreach",
	"reasoning_cycle":      "reasoning_cycle",
	"custom_prompt":        "custom_prompt",
	"self_reflect":         "self_reflect",
}

// DefaultHandlers builds the full action_type -> ActionHandler registry:
// reasoning-loop delegates plus the three read-only aggregations.
func DefaultHandlers(runner ReasoningRunner, agg Aggregator) map[string]ActionHandler {
	handlers := make(map[string]ActionHandler, len(delegatingTriggers)+3)

	for actionType, trigger := range delegatingTriggers {
		trigger := trigger
		handlers[actionType] = func(ctx context.Context, sched models.AgenticSchedule) (ActionResult, error) {
			if runner == nil {
				return ActionResult{}, fmt.Errorf("no reasoning runner configured for action_type %q", trigger)
			}
			triggerContext := map[string]any{
				"schedule_id": sched.ID,
				"action_type": sched.ActionType,
			}
			if sched.CustomPrompt != "" {
				triggerContext["custom_prompt"] = sched.CustomPrompt
			}
			for k, v := range sched.ActionConfig {
				triggerContext[k] = v
			}
			return runner.RunSynthetic(ctx, sched.AgentID, trigger, triggerContext)
		}
	}

	handlers["health_summary"] = func(ctx context.Context, sched models.AgenticSchedule) (ActionResult, error) {
		if agg == nil {
			return ActionResult{}, fmt.Errorf("no aggregator configured for health_summary")
		}
		return agg.HealthSummary(ctx, sched.AgentID)
	}
	handlers["check_messages"] = func(ctx context.Context, sched models.AgenticSchedule) (ActionResult, error) {
		if agg == nil {
			return ActionResult{}, fmt.Errorf("no aggregator configured for check_messages")
		}
		unread, err := agg.UnreadMessageCount(ctx, sched.AgentID)
		if err != nil {
			return ActionResult{}, err
		}
		return ActionResult{Summary: fmt.Sprintf("%d unread message(s)", unread)}, nil
	}
	handlers["review_tasks"] = func(ctx context.Context, sched models.AgenticSchedule) (ActionResult, error) {
		if agg == nil {
			return ActionResult{}, fmt.Errorf("no aggregator configured for review_tasks")
		}
		open, err := agg.OpenTaskCount(ctx, sched.AgentID)
		if err != nil {
			return ActionResult{}, err
		}
		return ActionResult{Summary: fmt.Sprintf("%d open task(s)", open)}, nil
	}

	return handlers
}
