package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentrun/agentrun/internal/contextbuild"
	"github.com/agentrun/agentrun/internal/cost"
	"github.com/agentrun/agentrun/internal/plan"
	"github.com/agentrun/agentrun/internal/recovery"
	"github.com/agentrun/agentrun/internal/toolcall"
	"github.com/agentrun/agentrun/internal/toolselect"
	"github.com/agentrun/agentrun/pkg/models"
)

const (
	maxHistoryMessages = 20
	ragMinIteration    = 2
)

// mapTrigger translates the loop's flat Trigger string onto
// contextbuild's Trigger/EventKind pair.
func mapTrigger(t string) (contextbuild.Trigger, contextbuild.EventKind) {
	switch t {
	case "incoming_message":
		return contextbuild.TriggerEvent, contextbuild.EventIncomingMessage
	case "task_response_received":
		return contextbuild.TriggerEvent, contextbuild.EventTaskResponseReceived
	case "agent_status_changes":
		return contextbuild.TriggerEvent, contextbuild.EventAgentStatusChanged
	case "orchestrated_task":
		return contextbuild.TriggerEvent, contextbuild.EventOrchestratedTask
	case "schedule":
		return contextbuild.TriggerSchedule, ""
	case "periodic_think":
		return contextbuild.TriggerPeriodicThink, ""
	case "heartbeat":
		return contextbuild.TriggerHeartbeat, ""
	case "approval_resume":
		return contextbuild.TriggerApprovalResume, ""
	default:
		return contextbuild.TriggerWakeUp, ""
	}
}

func (l *Loop) buildContext(ctx context.Context, profile *models.AgenticProfile, tier models.Tier, tc TriggerContext, toolLines []string) (contextbuild.Output, error) {
	personality, err := l.state.Personality(ctx, profile.ID)
	if err != nil {
		return contextbuild.Output{}, fmt.Errorf("load personality: %w", err)
	}
	agentCtx, err := l.state.AgentContext(ctx, profile.ID)
	if err != nil {
		return contextbuild.Output{}, fmt.Errorf("load agent context: %w", err)
	}
	local, err := l.state.LocalAgents(ctx, profile.ID)
	if err != nil {
		local = nil
	}
	mobile, err := l.state.MobileAgents(ctx, profile.ID)
	if err != nil {
		mobile = nil
	}
	memories, err := l.state.RecentMemories(ctx, profile.ID, tc.IsMediaOnly)
	if err != nil {
		memories = nil
	}

	trigger, eventKind := mapTrigger(tc.Trigger)
	out := l.assembler.Build(contextbuild.BuildInput{
		Personality:    personality,
		Agent:          agentCtx,
		ToolLines:      toolLines,
		Tier:           tier,
		LocalAgents:    local,
		MobileAgents:   mobile,
		RecentMemories: memories,
		Trigger:        trigger,
		EventKind:      eventKind,
		TriggerContext: contextbuild.TriggerContext{
			SenderName:         tc.SenderName,
			SenderIsMaster:     tc.SenderIsMaster,
			QuotedContent:      tc.QuotedContent,
			RawMessage:         tc.RawMessage,
			HistoryWindow:      tc.HistoryWindow,
			LastTaskStatus:     tc.LastTaskStatus,
			IntentHint:         tc.IntentHint,
			IsMediaOnly:        tc.IsMediaOnly,
			ApprovalToolResult: tc.ApprovalToolResult,
			CustomPrompt:       tc.CustomPrompt,
		},
	})
	return out, nil
}

// aiCaller adapts the Loop's AIRouter into the plan package's single-shot
// AICaller shape, floor the tier at simple so plan/decision/synthesis
// calls never run at trivial budget.
func (l *Loop) aiCaller(profile *models.AgenticProfile) plan.AICaller {
	return func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		resp, err := l.router.Complete(ctx, CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     []Message{{Role: "user", Content: userPrompt}},
			Tier:         models.TierSimple,
		})
		if err != nil {
			return "", err
		}
		l.recordCost(ctx, profile, "plan", resp)
		return resp.Text, nil
	}
}

func (l *Loop) recordCost(ctx context.Context, profile *models.AgenticProfile, requestType string, resp CompletionResponse) {
	if l.costs == nil {
		return
	}
	_, _ = l.costs.RecordUsage(ctx, cost.UsageInput{
		AgentID:     profile.ID,
		UserID:      profile.UserID,
		RequestType: requestType,
		Provider:    resp.Provider,
		Model:       resp.Model,
		InputTokens: resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	})
}

// oneShotRespond drives a single, tool-free completion and returns its
// text, used for peer consultations (Consult) and the fast-path greeting
// bypass.
func (l *Loop) oneShotRespond(ctx context.Context, profile *models.AgenticProfile, userID, trigger, prompt string) (string, error) {
	out, err := l.buildContext(ctx, profile, models.TierTrivial, TriggerContext{Trigger: trigger, RawMessage: prompt, CustomPrompt: prompt}, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.router.Complete(ctx, CompletionRequest{
		SystemPrompt: out.SystemPrompt,
		Messages:     []Message{{Role: "user", Content: out.UserMessage}},
		Tier:         models.TierTrivial,
	})
	if err != nil {
		return "", err
	}
	l.recordCost(ctx, profile, "consult", resp)
	return strings.TrimSpace(resp.Text), nil
}

// boundedStepLoop runs a capped mini reactive loop for one plan step,
// reusing the same tool-call machinery as the top-level cycle but without
// decomposition, approval-resume pre-execution, or checkpointing.
func (l *Loop) boundedStepLoop(ctx context.Context, profile *models.AgenticProfile, userID, userMessage string) (string, error) {
	tc := TriggerContext{Trigger: "orchestrated_task", RawMessage: userMessage, CustomPrompt: userMessage}
	tools, err := l.selectTools(ctx, profile, models.TierModerate, tc)
	if err != nil {
		return "", err
	}
	out, err := l.buildContext(ctx, profile, models.TierModerate, tc, formatToolLines(tools))
	if err != nil {
		return "", err
	}
	rs := &runState{
		profile:  profile,
		userID:   userID,
		tc:       tc,
		tools:    tools,
		maxIters: plan.MaxStepIterations,
		maxCalls: plan.MaxStepIterations,
		messages: []Message{{Role: "user", Content: out.UserMessage}},
		system:   out.SystemPrompt,
	}
	res, err := l.runReactive(ctx, rs)
	if err != nil {
		return "", err
	}
	return res.FinalThought, nil
}

// runState carries the mutable state of one reactive loop invocation.
type runState struct {
	profile  *models.AgenticProfile
	userID   string
	tc       TriggerContext
	tools    []toolselect.ToolDefinition
	maxIters int
	maxCalls int
	system   string
	messages []Message

	iteration    int
	toolCalls    int
	respondCount int
	lastWasRespond bool
	actions      []models.ActionRecord
	tokensUsed   int
}

// runCycle implements the entry path of §4.7: classify, derive the tool
// set and budgets, and dispatch to the fast-path bypass, the
// decomposition/plan-driven handoff, or the full reactive loop.
func (l *Loop) runCycle(ctx context.Context, agentID, userID string, profile *models.AgenticProfile, tc TriggerContext, resumed *models.Checkpoint) (Result, error) {
	text := cycleText(tc)
	cls := l.classifier.Classify(ctx, text)
	tier, _ := l.classifier.AdjustBudget(cls, tc.Trigger)
	tier, _ = l.classifier.AdjustBudgetForAction(tier, text)
	budgets := l.classifier.IterationBudget(tier)

	l.emit("reasoning:start", map[string]any{"agentId": agentID, "trigger": tc.Trigger, "tier": string(tier)})

	// Fast-path: gated on the raw (pre-upgrade) tier, since AdjustBudget
	// unconditionally upgrades trivial -> simple for incoming_message and
	// would otherwise make this branch unreachable.
	if cls.Tier == models.TierTrivial && tc.Trigger == "incoming_message" && tc.SubAgentOverride == "" && resumed == nil {
		text, err := l.oneShotRespond(ctx, profile, userID, tc.Trigger, tc.RawMessage)
		if err != nil {
			return Result{}, fmt.Errorf("fast-path completion: %w", err)
		}
		if text != "" && l.responder != nil {
			_ = l.responder.SendIntermediate(ctx, agentID, userID, text)
		}
		return Result{FinalThought: text, Iterations: 1}, nil
	}

	// Auto-decomposition / plan-driven mode: both ultimately drive the
	// same plan.Decompose + plan.Executor.RunPlan pipeline, so they are
	// collapsed into a single decision point here rather than kept as
	// two separately-gated code paths.
	if tc.SubAgentOverride == "" && resumed == nil && plan.ShouldDecompose(text, tier) && l.tasks != nil {
		agentCtxSummary, err := l.planAgentContextSummary(ctx, profile.ID)
		if err != nil {
			agentCtxSummary = ""
		}
		p, err := plan.Decompose(ctx, text, agentCtxSummary, l.aiCaller(profile))
		if err == nil && p != nil {
			return l.runPlan(ctx, agentID, userID, profile, p)
		}
		// ErrDeclinedToDecompose (or any decompose failure) falls through
		// to the ordinary reactive loop.
	}

	tools, err := l.selectTools(ctx, profile, tier, tc)
	if err != nil {
		return Result{}, err
	}
	out, err := l.buildContext(ctx, profile, tier, tc, formatToolLines(tools))
	if err != nil {
		return Result{}, err
	}

	rs := &runState{
		profile:  profile,
		userID:   userID,
		tc:       tc,
		tools:    tools,
		maxIters: budgets.MaxIterations,
		maxCalls: budgets.MaxToolCalls,
		system:   out.SystemPrompt,
		messages: []Message{{Role: "user", Content: out.UserMessage}},
	}
	if resumed != nil {
		rs.actions = resumed.ActionRecords
		rs.iteration = resumed.Iteration
		rs.tokensUsed = resumed.TokensUsed
	}

	return l.runReactive(ctx, rs)
}

func (l *Loop) planAgentContextSummary(ctx context.Context, agentID string) (string, error) {
	agentCtx, err := l.state.AgentContext(ctx, agentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Active goals: %s. Team size: %d.", strings.Join(agentCtx.ActiveGoals, "; "), agentCtx.TeamSize), nil
}

func (l *Loop) runPlan(ctx context.Context, agentID, userID string, profile *models.AgenticProfile, p *plan.Plan) (Result, error) {
	rootTaskID, err := l.tasks.CreateRootTask(ctx, agentID, userID, p.Goal)
	if err != nil {
		return Result{}, fmt.Errorf("create root task for plan: %w", err)
	}
	exec := plan.NewExecutor(l, l.planHuman, l.responder, l.planTasks, l.planMem, l.activity, l.aiCaller(profile))
	stepCtx := withStepIdentity(ctx, agentID, userID)
	res, err := exec.RunPlan(stepCtx, agentID, userID, rootTaskID, p)
	if err != nil {
		return Result{}, fmt.Errorf("run plan: %w", err)
	}
	return Result{
		FinalThought: res.FinalResponse,
		Iterations:   len(p.Steps),
		PlanID:       rootTaskID,
	}, nil
}

// runReactive implements the §4.7 think/act/observe loop.
func (l *Loop) runReactive(ctx context.Context, rs *runState) (Result, error) {
	ids := toolIDs(rs.tools)

	for rs.iteration < rs.maxIters {
		if err := ctx.Err(); err != nil {
			return l.finish(rs, "Stopped: cycle deadline reached."), nil
		}
		for l.isPaused(rs.profile.ID) {
			select {
			case <-ctx.Done():
				return l.finish(rs, "Stopped: cycle deadline reached while paused."), nil
			case <-time.After(pauseBusyWaitEvery):
			}
		}
		if l.isInterrupted(rs.profile.ID) {
			return l.finish(rs, "Interrupted by operator."), nil
		}

		rs.iteration++
		if rs.iteration%checkpointEvery == 0 {
			l.saveCheckpoint(rs)
		}

		if l.rag != nil && rs.iteration >= ragMinIteration {
			if note, err := l.rag.Enrich(ctx, rs.userID, keywordsFrom(rs.tc)); err == nil && note != "" {
				rs.messages = append(rs.messages, Message{Role: "system", Content: "Relevant knowledge: " + note})
			}
		}

		msgs := truncateHistory(rs.messages)
		resp, err := l.router.Complete(ctx, CompletionRequest{
			SystemPrompt: rs.system,
			Messages:     msgs,
			Tools:        rs.tools,
			Tier:         models.TierModerate,
		})
		if err != nil {
			return Result{}, fmt.Errorf("ai completion: %w", err)
		}
		l.recordCost(ctx, rs.profile, "reasoning", resp)
		rs.tokensUsed += resp.InputTokens + resp.OutputTokens

		calls := toolcall.Parse(resp.Text, resp.NativeCalls, resp.UsedNativeTools)
		if len(calls) == 0 {
			if toolcall.IsMetaTalk(resp.Text) && rs.iteration <= 2 {
				rs.messages = append(rs.messages, Message{Role: "assistant", Content: resp.Text})
				rs.messages = append(rs.messages, Message{Role: "user", Content: "You described a tool call but did not emit one. Emit a single ```tool fenced JSON block now."})
				continue
			}
			if toolcall.LooksLikeErrorOutput(resp.Text) {
				rs.messages = append(rs.messages, Message{Role: "user", Content: "That response looked like raw error output, not an answer. Try again."})
				continue
			}
			return l.finish(rs, strings.TrimSpace(resp.Text)), nil
		}

		call := calls[0]
		rs.messages = append(rs.messages, Message{Role: "assistant", Content: resp.Text})

		vr := l.validator.Validate(call, ids)
		if !vr.Valid {
			rs.messages = append(rs.messages, Message{Role: "user", Content: fmt.Sprintf("%s. Did you mean one of: %s?", vr.Error, strings.Join(vr.Suggestions, ", "))})
			continue
		}
		call = vr.CorrectedCall

		if call.Action == "done" {
			summary, _ := call.Params["summary"].(string)
			if summary == "" {
				summary = call.Reasoning
			}
			return l.finish(rs, summary), nil
		}

		if call.Action == "respond" {
			if handled := l.handleRespond(ctx, rs, call); handled {
				if rs.respondCount >= maxRespondsPerRun && rs.lastWasRespond {
					return l.finish(rs, "Delivered final response."), nil
				}
				continue
			}
			continue
		}
		rs.lastWasRespond = false

		if l.approvals != nil && l.approvals.NeedsApproval(rs.profile, call.Action, rs.tc.SenderIsMaster) {
			l.enqueueApproval(ctx, rs, call)
			rs.messages = append(rs.messages, Message{Role: "user", Content: fmt.Sprintf("Action %q requires approval and has been queued; continue with other work or call done.", call.Action)})
			continue
		}

		outcome := l.recovery.ExecuteWithRecovery(ctx, l.executor.Execute, call.Action, call.Params)
		rs.toolCalls++
		rs.actions = append(rs.actions, l.recordAction(call, outcome))

		feedback := l.feedbackFor(call, outcome)
		rs.messages = append(rs.messages, Message{Role: "user", Content: feedback})

		if rs.toolCalls >= rs.maxCalls {
			rs.messages = append(rs.messages, Message{Role: "user", Content: "Tool-call budget reached for this cycle. Call done with a summary now."})
		}
	}

	return l.finish(rs, l.synthesize(rs)), nil
}

// handleRespond implements the incremental `respond` handling: screening,
// delivery, MAX_RESPONDS_PER_RUN enforcement, and action recording.
// It returns true once the call has been fully processed (always, since
// `respond` never fails validation after this point).
func (l *Loop) handleRespond(ctx context.Context, rs *runState, call toolcall.Call) bool {
	message, _ := call.Params["message"].(string)
	rec := models.ActionRecord{ToolID: "respond", Params: call.Params, Timestamp: l.now()}

	switch {
	case toolcall.IsErrorShaped(message):
		rec.Status = models.ActionBlockedError
		rs.messages = append(rs.messages, Message{Role: "user", Content: "That respond message looked like raw error output and was not sent. Rephrase for the user."})
	case toolcall.IsPlaceholderShaped(message):
		rec.Status = models.ActionBlockedPlaceholder
		rs.messages = append(rs.messages, Message{Role: "user", Content: "That respond message still contained a placeholder and was not sent. Fill it in and retry."})
	default:
		rec.Status = models.ActionExecuted
		rec.SentImmediately = true
		if l.responder != nil {
			if err := l.responder.SendIntermediate(ctx, rs.profile.ID, rs.userID, message); err != nil {
				rec.Status = models.ActionFailed
				rec.Error = err.Error()
			}
		}
		rs.respondCount++
		rs.lastWasRespond = true
		rs.messages = append(rs.messages, Message{Role: "user", Content: "Message delivered. Continue, or call done if finished."})
	}
	rs.actions = append(rs.actions, rec)
	return true
}

func (l *Loop) enqueueApproval(ctx context.Context, rs *runState, call toolcall.Call) {
	_, err := l.approvals.Enqueue(ctx, ApprovalEnqueueInput{
		AgentID:    rs.profile.ID,
		UserID:     rs.userID,
		ToolID:     call.Action,
		Params:     call.Params,
		Reasoning:  call.Reasoning,
		FromMaster: rs.tc.SenderIsMaster,
	})
	rec := models.ActionRecord{
		ToolID: call.Action,
		Params: call.Params,
		Status: models.ActionQueuedForApproval,
		Timestamp: l.now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	rs.actions = append(rs.actions, rec)
}

func (l *Loop) recordAction(call toolcall.Call, outcome recovery.Outcome) models.ActionRecord {
	rec := models.ActionRecord{
		ToolID:    call.Action,
		Params:    call.Params,
		Timestamp: l.now(),
	}
	if outcome.Success {
		rec.Status = models.ActionExecuted
		if b, err := json.Marshal(outcome.Result); err == nil {
			rec.Result = string(b)
		}
	} else {
		rec.Status = models.ActionFailed
		if outcome.Err != nil {
			rec.Error = outcome.Err.Error()
		}
	}
	return rec
}

func (l *Loop) feedbackFor(call toolcall.Call, outcome recovery.Outcome) string {
	if outcome.Success {
		return fmt.Sprintf("Tool %s succeeded: %s", call.Action, summarizeResult(call.Action, outcome.Result, 300))
	}
	msg := fmt.Sprintf("Tool %s failed: %v", call.Action, outcome.Err)
	if outcome.Recovery.Suggestion != "" {
		msg += ". " + outcome.Recovery.Suggestion
	}
	if len(outcome.Recovery.Alternatives) > 0 {
		msg += fmt.Sprintf(" Consider: %s.", strings.Join(outcome.Recovery.Alternatives, ", "))
	}
	return msg
}

// synthesize implements the §4.7 synthesis safety net: if the loop ran
// out of iterations without a `done` call but did execute real actions,
// it summarizes them instead of returning an empty finalThought.
func (l *Loop) synthesize(rs *runState) string {
	if len(rs.actions) == 0 {
		return "I wasn't able to complete this within the allotted steps."
	}
	var executed []string
	for _, a := range rs.actions {
		if a.ToolID != "" && a.ToolID != "respond" && a.Status == models.ActionExecuted {
			executed = append(executed, a.ToolID)
		}
	}
	if len(executed) == 0 {
		return "I wasn't able to complete this within the allotted steps."
	}
	return fmt.Sprintf("Completed: %s.", strings.Join(executed, ", "))
}

func (l *Loop) finish(rs *runState, finalThought string) Result {
	return Result{
		Actions:      rs.actions,
		Iterations:   rs.iteration,
		TokensUsed:   rs.tokensUsed,
		FinalThought: finalThought,
		Silent:       finalThought == "" && rs.respondCount > 0,
	}
}

func (l *Loop) saveCheckpoint(rs *runState) {
	_ = l.checkpoints.Save(rs.profile.ID, rs.userID, models.Checkpoint{
		AgentID:       rs.profile.ID,
		UserID:        rs.userID,
		Trigger:       rs.tc.Trigger,
		TriggerContext: rs.tc.Raw,
		Iteration:     rs.iteration,
		ActionRecords: rs.actions,
		TokensUsed:    rs.tokensUsed,
		Status:        "running",
	})
}

// keywordsFrom derives a short keyword list for RAG enrichment from the
// trigger's free text, used from iteration >= 2 onward.
func keywordsFrom(tc TriggerContext) []string {
	text := cycleText(tc)
	words := strings.Fields(text)
	seen := map[string]bool{}
	var out []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,!?;:\"'"))
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= 8 {
			break
		}
	}
	return out
}

// truncateHistory implements the §4.7 head-tail split: once a
// conversation exceeds maxHistoryMessages, keep the first message (the
// original user turn) plus the most recent messages, dropping the
// middle.
func truncateHistory(msgs []Message) []Message {
	if len(msgs) <= maxHistoryMessages {
		return msgs
	}
	head := msgs[:1]
	tail := msgs[len(msgs)-(maxHistoryMessages-1):]
	out := make([]Message, 0, maxHistoryMessages)
	out = append(out, head...)
	out = append(out, Message{Role: "system", Content: "[earlier turns truncated]"})
	out = append(out, tail...)
	return out
}
