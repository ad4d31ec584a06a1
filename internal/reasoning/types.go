// Package reasoning implements the AgentReasoningLoop, the runtime's
// central control flow: lock/rate-limit admission, checkpoint resume,
// classification and tool selection, a fast-path greeting bypass,
// auto-decomposition and plan-driven handoff, and the reactive
// think/act/observe loop that drives everything else (approvals,
// recovery, cost tracking, reflection) from one place.
//
// Grounded on internal/agent/loop.go's Loop (the teacher's single-session
// tool-use reactive loop: iteration/tool-call/wall-time budgets, tool
// execution via a pluggable executor, checkpointing via a BranchStore),
// generalized from one bounded tool-use session into a multi-trigger,
// resumable, plan-aware agent cycle. internal/multiagent/orchestrator.go
// contributes the handoff-to-specialist idiom reused for plan-driven
// delegation bookkeeping.
package reasoning

import (
	"context"
	"time"

	"github.com/agentrun/agentrun/internal/toolcall"
	"github.com/agentrun/agentrun/internal/toolselect"
	"github.com/agentrun/agentrun/pkg/models"
)

// Message is one entry in the conversation passed to the AI router. Role
// is "system" | "user" | "assistant" | "tool".
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is the argument to AIRouter.Complete.
type CompletionRequest struct {
	SystemPrompt   string
	Messages       []Message
	Tools          []toolselect.ToolDefinition
	Tier           models.Tier
	ForcedProvider string
}

// CompletionResponse is the synchronous, fully-aggregated result of one AI
// call: native tool calls (if the provider supports them) plus the
// response text, ready for toolcall.Parse.
//
// This is a deliberately narrower, synchronous shape than
// internal/agent/routing.Router.Complete's streaming-channel contract
// (<-chan *agent.CompletionChunk, error): the reactive loop needs the
// whole response — text and native calls together — before it can parse
// and validate a tool call, so there is nothing to gain from streaming
// here and a lot of bookkeeping to lose. See DESIGN.md for the full
// justification.
type CompletionResponse struct {
	Text            string
	NativeCalls     []toolcall.NativeToolCall
	UsedNativeTools bool
	FinishReason    string
	Provider        string
	Model           string
	InputTokens     int
	OutputTokens    int
}

// AIRouter issues one synchronous, fully-aggregated completion request.
type AIRouter interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// ToolExecutor runs one tool call against the live tool registry, outbound
// adapters, etc. Its signature matches recovery.Executor exactly so a
// Loop can hand it straight to recovery.Strategies.ExecuteWithRecovery.
type ToolExecutor interface {
	Execute(ctx context.Context, toolID string, params map[string]any) (any, error)
}

// ProfileProvider resolves the live AgenticProfile for a cycle.
type ProfileProvider interface {
	GetProfile(ctx context.Context, agentID string) (*models.AgenticProfile, error)
}

// RAGEnricher is an optional, best-effort knowledge lookup consulted from
// iteration ≥ 2 of the reactive loop. A nil RAGEnricher (or one that
// errors) is skipped silently; enrichment never aborts a cycle.
type RAGEnricher interface {
	Enrich(ctx context.Context, userID string, keywords []string) (string, error)
}

// IntermediateResponder delivers a respond-style message immediately, out
// of band from the cycle's final result.
type IntermediateResponder interface {
	SendIntermediate(ctx context.Context, agentID, userID, message string) error
}

// ActivityLogger best-effort logs reasoning lifecycle events.
type ActivityLogger interface {
	LogActivity(ctx context.Context, agentID, event, detail string)
}

// EventEmitter emits best-effort lifecycle events onto the WebSocket bus
// (reasoning:start/step/complete, tool:start/result, agentic:status:changed,
// agentic:error). A nil emitter is a silent no-op.
type EventEmitter interface {
	Emit(event string, payload map[string]any)
}

// DashboardNotifier raises a best-effort dashboard notification on a hard
// failure, distinct from the master-contact notification path.
type DashboardNotifier interface {
	NotifyDashboard(ctx context.Context, agentID, title, detail string)
}

// TriggerContext carries everything about one cycle's origin: the
// trigger-specific rendering data for contextbuild, plus the live
// selection/approval/io inputs the loop itself consults.
type TriggerContext struct {
	Trigger   string // "incoming_message" | "task_response_received" | "agent_status_changes" | "orchestrated_task" | "schedule" | "periodic_think" | "heartbeat" | "approval_resume" | "wake_up"
	EventKind string

	SenderID          string
	SenderName        string
	SenderIsMaster    bool
	QuotedContent     string
	RawMessage        string
	HistoryWindow     []string
	LastTaskStatus    string
	IntentHint        string
	IsMediaOnly       bool
	CustomPrompt      string

	SubAgentOverride string // non-empty disables fast-path/auto-decompose/plan-driven handoffs

	// ApprovalToolID/ApprovalParams are set when Trigger == approval_resume:
	// the tool is pre-executed once, outside the reasoning loop, and its
	// result is folded into the user message as ApprovalToolResult.
	ApprovalToolID     string
	ApprovalParams     map[string]any
	ApprovalToolResult string

	Raw map[string]any // opaque passthrough, persisted on the checkpoint
}

// Result is what Run returns to the caller.
type Result struct {
	Actions      []models.ActionRecord
	Iterations   int
	TokensUsed   int
	FinalThought string
	Silent       bool
	PlanID       string
}

// busyResult builds the canned "busy"/"skipped" result shapes the entry
// path returns without ever acquiring the lock.
func busyResult(thought string) Result {
	return Result{FinalThought: thought}
}

// selectionTriggerContext adapts the loop's live TriggerContext into the
// toolselect package's narrower view.
type selectionInputs struct {
	Tier            models.Tier
	ToolSelectorCtx toolselect.TriggerContext
}

// clock is overridable for deterministic tests.
var nowFunc = time.Now
