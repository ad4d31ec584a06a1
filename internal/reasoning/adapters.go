package reasoning

import (
	"context"

	"github.com/agentrun/agentrun/internal/approvalsvc"
	"github.com/agentrun/agentrun/internal/collab"
	"github.com/agentrun/agentrun/internal/notify"
	"github.com/agentrun/agentrun/internal/plan"
	"github.com/agentrun/agentrun/internal/schedule"
	"github.com/agentrun/agentrun/pkg/models"
)

// approvalNotifierAdapter adapts *notify.Service's richer
// (models.MasterNotification, error) return onto the single-error
// approvalsvc.Notifier contract. approvalsvc only needs best-effort
// fire-and-forget delivery and has no use for the populated/ID-filled
// notification notify.Service hands back, so the adapter simply drops it.
type approvalNotifierAdapter struct {
	svc *notify.Service
}

// NewApprovalNotifier wraps a *notify.Service as an approvalsvc.Notifier.
func NewApprovalNotifier(svc *notify.Service) approvalsvc.Notifier {
	return approvalNotifierAdapter{svc: svc}
}

func (a approvalNotifierAdapter) Notify(ctx context.Context, n models.MasterNotification) error {
	_, err := a.svc.Notify(ctx, n)
	return err
}

// outboundTools and scopeMutatingTools are the §4.6 override lists: tools
// whose approval requirement is forced regardless of autonomy level,
// based on whether the trigger came from the master contact.
var outboundTools = map[string]bool{
	"sendWhatsApp":   true,
	"sendEmail":      true,
	"sendTelegram":   true,
	"sendSMS":        true,
	"sendMedia":      true,
	"broadcastTeam":  true,
}

var scopeMutatingTools = map[string]bool{
	"addContactToScope":      true,
	"removeContactFromScope": true,
	"addGroupToScope":        true,
}

// SafeTools is the §4.6 SAFE_TOOLS set auto-executed under
// semi-autonomous: read-only AI/analysis, read-only platform reads,
// internal planning, schedule/task/goal CRUD, memory/reflection,
// diagnostics, and workspace file generation. Outbound messaging, scope
// mutation, cross-agent delegation, and approval-request creation are
// never included.
var SafeTools = map[string]bool{
	"generatePlan":        true,
	"createTask":          true,
	"updateTask":          true,
	"completeTask":        true,
	"createSchedule":      true,
	"updateSchedule":      true,
	"createGoal":          true,
	"updateGoal":          true,
	"saveMemory":          true,
	"searchMemory":        true,
	"searchWeb":           true,
	"searchNews":          true,
	"browsePage":          true,
	"readCalendar":        true,
	"readTasks":           true,
	"readInbox":           true,
	"runDiagnostics":      true,
	"createFile":          true,
	"writeNote":           true,
	"requestHumanInput":   true,
}

// ApprovalGate implements the §4.6 ApprovalGate: needsApproval plus
// enqueuing the resulting ApprovalRequest.
type ApprovalGate interface {
	NeedsApproval(profile *models.AgenticProfile, toolID string, fromMaster bool) bool
	Enqueue(ctx context.Context, in ApprovalEnqueueInput) (models.ApprovalRequest, error)
}

// ApprovalEnqueueInput is the argument to ApprovalGate.Enqueue.
type ApprovalEnqueueInput struct {
	AgentID    string
	UserID     string
	ToolID     string
	Params     map[string]any
	Reasoning  string
	FromMaster bool
}

// DefaultApprovalGate implements ApprovalGate over *approvalsvc.Service.
type DefaultApprovalGate struct {
	Service *approvalsvc.Service
}

// NewApprovalGate constructs a DefaultApprovalGate.
func NewApprovalGate(svc *approvalsvc.Service) *DefaultApprovalGate {
	return &DefaultApprovalGate{Service: svc}
}

// NeedsApproval implements the §4.6 decision table plus its two
// force-override rules.
func (g *DefaultApprovalGate) NeedsApproval(profile *models.AgenticProfile, toolID string, fromMaster bool) bool {
	if outboundTools[toolID] || scopeMutatingTools[toolID] {
		return !fromMaster
	}

	switch profile.Autonomy {
	case models.AutonomyAutonomous:
		return containsTool(profile.RequireApprovalFor, toolID)
	case models.AutonomySemiAutonomous:
		return !SafeTools[toolID]
	default: // supervised
		return true
	}
}

func containsTool(list []string, id string) bool {
	for _, t := range list {
		if t == id {
			return true
		}
	}
	return false
}

// Enqueue creates the ApprovalRequest via the wrapped service.
func (g *DefaultApprovalGate) Enqueue(ctx context.Context, in ApprovalEnqueueInput) (models.ApprovalRequest, error) {
	return g.Service.CreateApproval(ctx, approvalsvc.CreateInput{
		AgentID:         in.AgentID,
		UserID:          in.UserID,
		ActionType:      in.ToolID,
		ActionTitle:     "Approve action: " + in.ToolID,
		ActionDescription: summarizeParams(in.Params),
		ActionPayload:   in.Params,
		TriggeredBy:     "reasoning_loop",
		Reasoning:       in.Reasoning,
		Priority:        "normal",
	})
}

// Consult implements collab.ReasoningRunner: a peer consultation runs a
// fresh, independent cycle whose only job is to answer the question via
// a respond+done pair, and whose text is returned directly rather than
// delivered through the responder.
func (l *Loop) Consult(ctx context.Context, agentID, userID, event string, payload map[string]any) (string, error) {
	prompt, _ := payload["question"].(string)
	if ctxText, ok := payload["context"].(string); ok && ctxText != "" {
		prompt = prompt + "\n\nContext: " + ctxText
	}
	profile, err := l.profiles.GetProfile(ctx, agentID)
	if err != nil {
		return "", err
	}
	text, err := l.oneShotRespond(ctx, profile, userID, "event:"+event, prompt)
	if err != nil {
		return "", err
	}
	return text, nil
}

var _ collab.ReasoningRunner = (*Loop)(nil)

// RunSynthetic implements schedule.ReasoningRunner: a scheduler-originated
// cycle runs the full reactive loop with a synthetic triggerContext and
// reports back a compact ActionResult instead of a Result.
func (l *Loop) RunSynthetic(ctx context.Context, agentID, trigger string, triggerContext map[string]any) (schedule.ActionResult, error) {
	userID, _ := triggerContext["userId"].(string)
	prompt, _ := triggerContext["prompt"].(string)
	if prompt == "" {
		prompt = trigger
	}
	res, err := l.Run(ctx, agentID, userID, TriggerContext{
		Trigger:      "schedule",
		CustomPrompt: prompt,
		Raw:          triggerContext,
	})
	if err != nil {
		return schedule.ActionResult{}, err
	}
	return schedule.ActionResult{
		Summary:    res.FinalThought,
		TokensUsed: res.TokensUsed,
	}, nil
}

var _ schedule.ReasoningRunner = (*Loop)(nil)

// RunStep implements plan.StepRunner: each plan step is a bounded mini
// reactive loop (plan.MaxStepIterations turns), reusing the agent's
// global system prompt plus a step-specific user message.
func (l *Loop) RunStep(ctx context.Context, step plan.Step, previousResults string) (plan.StepResult, error) {
	agentID, _ := ctx.Value(ctxKeyAgentID{}).(string)
	userID, _ := ctx.Value(ctxKeyUserID{}).(string)
	profile, err := l.profiles.GetProfile(ctx, agentID)
	if err != nil {
		return plan.StepResult{}, err
	}

	userMsg := "Step: " + step.Title + "\n" + step.Description
	if previousResults != "" {
		userMsg += "\n\nPrevious step results:\n" + previousResults
	}

	text, err := l.boundedStepLoop(ctx, profile, userID, userMsg)
	if err != nil {
		return plan.StepResult{Status: plan.StepBlocked, Summary: err.Error()}, nil
	}
	return plan.StepResult{Status: plan.StepCompleted, Summary: text}, nil
}

var _ plan.StepRunner = (*Loop)(nil)

type ctxKeyAgentID struct{}
type ctxKeyUserID struct{}

// withStepIdentity threads the agent/user IDs a plan.StepRunner needs
// through context, since plan.StepRunner.RunStep's signature (fixed by
// internal/plan, built before internal/reasoning to avoid an import
// cycle) does not carry them directly.
func withStepIdentity(ctx context.Context, agentID, userID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyAgentID{}, agentID)
	ctx = context.WithValue(ctx, ctxKeyUserID{}, userID)
	return ctx
}
