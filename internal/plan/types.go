// Package plan implements TaskDecomposer and PlanExecutor: deciding
// whether a task is worth breaking into steps, asking the AI to produce
// a step DAG, and driving that DAG to completion through a caller-supplied
// per-step runner.
//
// Grounded on internal/classify/classify.go's compiled-regex scoring
// idiom (decomposition triggers reuse the same "MustCustom regex set +
// density/boolean checks" shape) and internal/multiagent/orchestrator.go's
// handoff bookkeeping, adapted from routing a message to one specialist
// into sequencing a DAG of steps across (possibly) several agents.
package plan

import "context"

// Step is one unit of work in a decomposition plan.
type Step struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	RequiredTools        []string `json:"required_tools,omitempty"`
	RequiredSkills       []string `json:"required_skills,omitempty"`
	DependsOn            []string `json:"depends_on,omitempty"`
	EstimatedIterations  int      `json:"estimated_iterations,omitempty"`
	CanParallelize       bool     `json:"can_parallelize"`
	Type                 string   `json:"type,omitempty"` // "" | "human_input"
}

// SynthesisStep describes the final wrap-up call after all steps run.
type SynthesisStep struct {
	Description string `json:"description"`
}

// Plan is a full decomposition: a DAG of steps plus a precomputed
// execution order.
type Plan struct {
	Goal                string          `json:"goal"`
	EstimatedComplexity string          `json:"estimated_complexity"`
	Steps               []Step          `json:"steps"`
	SynthesisStep       SynthesisStep   `json:"synthesis_step"`
	DependencyGraph     map[string][]string `json:"dependency_graph"`
	ExecutionOrder      []string        `json:"execution_order"`
	ParallelGroups      [][]string      `json:"parallel_groups"`
}

// StepStatus is the lifecycle of one step's root task row.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepBlocked   StepStatus = "blocked"
	StepCancelled StepStatus = "cancelled"
)

// StepResult is what a mini reactive loop (or human-input wait) returns
// for one step.
type StepResult struct {
	Status  StepStatus
	Summary string
}

// AICaller issues a single-shot, free-form AI request and returns the raw
// text response; used for the JSON plan request, the continue/abort
// decision, and the final synthesis call.
type AICaller func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// StepRunner executes one plan step as a bounded mini reactive loop: a
// fresh exchange that reuses the agent's global system prompt and is
// capped at MaxStepIterations turns. previousResults is a compact
// "step: summary" rendering of steps already completed.
type StepRunner interface {
	RunStep(ctx context.Context, step Step, previousResults string) (StepResult, error)
}

// HumanInputRequester asks the AI to call requestHumanInput for a step
// and notifies whoever is being asked.
type HumanInputRequester interface {
	RequestHumanInput(ctx context.Context, agentID, taskID string, step Step) error
}

// IntermediateResponder delivers a `respond`-style message immediately,
// out of band from the final result (acknowledgment + per-step updates).
type IntermediateResponder interface {
	SendIntermediate(ctx context.Context, agentID, userID, message string) error
}

// TaskStore persists the root plan task and its per-step rows.
type TaskStore interface {
	UpdateStepStatus(ctx context.Context, stepID string, status StepStatus, aiSummary string) error
	CompleteRootTask(ctx context.Context, rootTaskID, aiSummary string) error
}

// PlanMemoryWriter records a plan_execution memory at completion.
type PlanMemoryWriter interface {
	WritePlanExecutionMemory(ctx context.Context, agentID, userID, content string) error
}

// ActivityLogger best-effort logs plan lifecycle events.
type ActivityLogger interface {
	LogActivity(ctx context.Context, agentID, event, detail string)
}

// MaxStepIterations bounds the mini reactive loop a StepRunner
// implementation runs per plan step.
const MaxStepIterations = 3

// maxPlanSteps caps how many steps Decompose will keep from the AI's
// response, even if it returned more.
const maxPlanSteps = 6
