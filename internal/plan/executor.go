package plan

import (
	"context"
	"fmt"
	"strings"
)

// Executor drives a Plan to completion: one mini reactive loop per step
// (via StepRunner), human-input pauses, abort-on-failure AI decisions,
// and a final synthesis call.
type Executor struct {
	runner   StepRunner
	human    HumanInputRequester
	respond  IntermediateResponder
	tasks    TaskStore
	memories PlanMemoryWriter
	activity ActivityLogger
	call     AICaller
}

// NewExecutor constructs an Executor. activity may be nil.
func NewExecutor(runner StepRunner, human HumanInputRequester, respond IntermediateResponder, tasks TaskStore, memories PlanMemoryWriter, activity ActivityLogger, call AICaller) *Executor {
	return &Executor{runner: runner, human: human, respond: respond, tasks: tasks, memories: memories, activity: activity, call: call}
}

// Result is what RunPlan returns: the synthesized final response plus
// whether the run completed normally or aborted partway through.
type Result struct {
	FinalResponse string
	Aborted       bool
	StepResults   map[string]StepResult
}

func (e *Executor) log(ctx context.Context, agentID, event, detail string) {
	if e.activity != nil {
		e.activity.LogActivity(ctx, agentID, event, detail)
	}
}

// RunPlan executes every step of plan in declared execution order and
// returns a synthesized final result.
func (e *Executor) RunPlan(ctx context.Context, agentID, userID, rootTaskID string, p *Plan) (Result, error) {
	if e.respond != nil {
		_ = e.respond.SendIntermediate(ctx, agentID, userID, fmt.Sprintf("On it — breaking this into %d steps.", len(p.Steps)))
	}

	byID := make(map[string]Step, len(p.Steps))
	for _, s := range p.Steps {
		byID[s.ID] = s
	}

	results := make(map[string]StepResult, len(p.Steps))
	var summaryLines []string
	aborted := false

	for _, id := range p.ExecutionOrder {
		step, ok := byID[id]
		if !ok {
			continue
		}
		if aborted {
			results[id] = StepResult{Status: StepCancelled, Summary: "skipped after abort"}
			_ = e.tasks.UpdateStepStatus(ctx, id, StepCancelled, "skipped after plan abort")
			continue
		}

		if step.Type == "human_input" {
			if err := e.human.RequestHumanInput(ctx, agentID, rootTaskID, step); err != nil {
				e.log(ctx, agentID, "plan_step_human_input_failed", err.Error())
			}
			results[id] = StepResult{Status: StepBlocked, Summary: "awaiting human input"}
			_ = e.tasks.UpdateStepStatus(ctx, id, StepBlocked, "awaiting human input")
			summaryLines = append(summaryLines, fmt.Sprintf("%s: BLOCKED awaiting human input", step.Title))
			continue
		}

		previous := renderPreviousResults(p.ExecutionOrder, byID, results)
		result, err := e.runner.RunStep(ctx, step, previous)
		if err != nil {
			result = StepResult{Status: StepBlocked, Summary: err.Error()}
		}
		results[id] = result
		_ = e.tasks.UpdateStepStatus(ctx, id, result.Status, result.Summary)
		summaryLines = append(summaryLines, fmt.Sprintf("%s: %s", step.Title, result.Summary))

		if result.Status != StepCompleted && hasRemainingSteps(p.ExecutionOrder, id) {
			decision, decErr := e.call(ctx, "Decide whether to continue the plan or abort after a step failure. Reply with exactly \"continue\" or \"abort\".",
				fmt.Sprintf("Step %q ended with status %q: %s", step.Title, result.Status, result.Summary))
			if decErr == nil && strings.Contains(strings.ToLower(decision), "abort") {
				aborted = true
				if e.respond != nil {
					_ = e.respond.SendIntermediate(ctx, agentID, userID, fmt.Sprintf("Stopping the plan after step %q failed.", step.Title))
				}
			}
		}
	}

	synthesisPrompt := fmt.Sprintf("%s\n\nStep results:\n%s\n\nCall respond with a final summary, then done.", p.SynthesisStep.Description, strings.Join(summaryLines, "\n"))
	finalResponse, err := e.call(ctx, "Synthesize the plan's outcome for the user.", synthesisPrompt)
	if err != nil {
		finalResponse = strings.Join(summaryLines, "\n")
	}
	if e.respond != nil && finalResponse != "" {
		_ = e.respond.SendIntermediate(ctx, agentID, userID, finalResponse)
	}

	status := "completed"
	if aborted {
		status = "aborted"
	}
	_ = e.tasks.CompleteRootTask(ctx, rootTaskID, finalResponse)
	if e.memories != nil {
		_ = e.memories.WritePlanExecutionMemory(ctx, agentID, userID, fmt.Sprintf("Plan %q %s: %s", p.Goal, status, finalResponse))
	}
	e.log(ctx, agentID, "plan_completed", status)

	return Result{FinalResponse: finalResponse, Aborted: aborted, StepResults: results}, nil
}

func hasRemainingSteps(order []string, afterID string) bool {
	for i, id := range order {
		if id == afterID {
			return i < len(order)-1
		}
	}
	return false
}

func renderPreviousResults(order []string, byID map[string]Step, results map[string]StepResult) string {
	var b strings.Builder
	for _, id := range order {
		r, ok := results[id]
		if !ok {
			continue
		}
		step := byID[id]
		fmt.Fprintf(&b, "%s: %s\n", step.Title, r.Summary)
	}
	return b.String()
}
