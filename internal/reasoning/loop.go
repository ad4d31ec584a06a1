package reasoning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/agentrun/internal/agentlimit"
	"github.com/agentrun/agentrun/internal/checkpoint"
	"github.com/agentrun/agentrun/internal/classify"
	"github.com/agentrun/agentrun/internal/contextbuild"
	"github.com/agentrun/agentrun/internal/cost"
	"github.com/agentrun/agentrun/internal/plan"
	"github.com/agentrun/agentrun/internal/recovery"
	"github.com/agentrun/agentrun/internal/reflection"
	"github.com/agentrun/agentrun/internal/toolcall"
	"github.com/agentrun/agentrun/internal/toolselect"
	"github.com/agentrun/agentrun/internal/tools/policy"
	"github.com/agentrun/agentrun/pkg/models"
)

// DefaultWallTimeout is the hard per-cycle wall-clock budget, overridable
// via WithWallTimeout (the live equivalent of REASONING_LOOP_TIMEOUT_MS).
const DefaultWallTimeout = 4 * time.Minute

const (
	lockPollInterval   = 3 * time.Second
	lockPollTimeout    = 30 * time.Second
	pauseBusyWaitEvery = 500 * time.Millisecond
	maxRespondsPerRun  = 2
	checkpointEvery    = 3
)

// StateSource resolves the live agent state the context builder and tool
// selector need for one cycle. Concrete deployments back this with the
// profile/task/schedule/memory/device stores; tests use a fake.
type StateSource interface {
	Personality(ctx context.Context, agentID string) (string, error)
	AgentContext(ctx context.Context, agentID string) (contextbuild.AgentContext, error)
	LocalAgents(ctx context.Context, agentID string) ([]contextbuild.LocalAgentDescriptor, error)
	MobileAgents(ctx context.Context, agentID string) ([]contextbuild.MobileAgentDescriptor, error)
	RecentMemories(ctx context.Context, agentID string, mediaOnly bool) ([]contextbuild.Memory, error)
	SelectionContext(ctx context.Context, agentID string) (toolselect.TriggerContext, error)
}

// PolicyProvider resolves the agent's effective autonomy/tool policy. A
// nil PolicyProvider (or one returning nil) skips the final restriction
// pass in tool selection.
type PolicyProvider interface {
	PolicyFor(ctx context.Context, agentID string) *policy.Policy
}

// TaskCreator opens the root task row a plan hangs its steps off of.
type TaskCreator interface {
	CreateRootTask(ctx context.Context, agentID, userID, title string) (rootTaskID string, err error)
}

// Loop implements the AgentReasoningLoop: admission control (locks, rate
// limiting), checkpoint resume, classification, prompt/tool assembly, the
// fast-path/auto-decomposition/plan-driven handoffs, and the reactive
// think-act-observe cycle.
type Loop struct {
	profiles ProfileProvider
	state    StateSource
	policies PolicyProvider

	classifier *classify.Classifier
	assembler  *contextbuild.Assembler
	selector   *toolselect.Selector
	validator  *toolcall.Validator

	checkpoints checkpoint.Store
	limiter     *agentlimit.Limiter
	router      AIRouter
	executor    ToolExecutor
	recovery    recovery.Strategies

	approvals ApprovalGate
	tasks     TaskCreator
	planTasks plan.TaskStore
	planMem   plan.PlanMemoryWriter
	planHuman plan.HumanInputRequester

	costs  *cost.Tracker
	reflect *reflection.Service
	category reflection.CategoryResolver

	rag       RAGEnricher
	responder IntermediateResponder
	activity  ActivityLogger
	events    EventEmitter
	dashboard DashboardNotifier

	wallTimeout time.Duration
	now         func() time.Time

	locksMu sync.Mutex
	locks   map[string]bool

	statusMu  sync.Mutex
	paused    map[string]bool
	interrupt map[string]bool
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithWallTimeout overrides the default 4-minute hard cycle timeout.
func WithWallTimeout(d time.Duration) Option {
	return func(l *Loop) { l.wallTimeout = d }
}

// WithRAG wires an optional, best-effort knowledge enricher.
func WithRAG(r RAGEnricher) Option {
	return func(l *Loop) { l.rag = r }
}

// WithActivityLogger wires a best-effort activity log.
func WithActivityLogger(a ActivityLogger) Option {
	return func(l *Loop) { l.activity = a }
}

// WithEvents wires a best-effort lifecycle event emitter.
func WithEvents(e EventEmitter) Option {
	return func(l *Loop) { l.events = e }
}

// WithDashboard wires a best-effort dashboard notifier for hard failures.
func WithDashboard(d DashboardNotifier) Option {
	return func(l *Loop) { l.dashboard = d }
}

// WithPolicy wires the autonomy/tool-policy resolver for the final tool
// selection restriction pass.
func WithPolicy(p PolicyProvider) Option {
	return func(l *Loop) { l.policies = p }
}

// WithCostTracker wires per-call usage accounting.
func WithCostTracker(t *cost.Tracker) Option {
	return func(l *Loop) { l.costs = t }
}

// WithPlanSupport wires the root-task creator and the plan-execution
// collaborators the PlanExecutor needs.
func WithPlanSupport(tasks TaskCreator, planTasks plan.TaskStore, planMem plan.PlanMemoryWriter, planHuman plan.HumanInputRequester) Option {
	return func(l *Loop) {
		l.tasks = tasks
		l.planTasks = planTasks
		l.planMem = planMem
		l.planHuman = planHuman
	}
}

// New constructs a Loop. classifier, assembler, selector, checkpoints,
// limiter, router, executor, approvals, reflect, and responder are
// required; everything else is optional via Option.
func New(
	profiles ProfileProvider,
	state StateSource,
	classifier *classify.Classifier,
	assembler *contextbuild.Assembler,
	selector *toolselect.Selector,
	checkpoints checkpoint.Store,
	limiter *agentlimit.Limiter,
	router AIRouter,
	executor ToolExecutor,
	recoveryStrategies recovery.Strategies,
	approvals ApprovalGate,
	reflectSvc *reflection.Service,
	category reflection.CategoryResolver,
	responder IntermediateResponder,
	opts ...Option,
) *Loop {
	l := &Loop{
		profiles:    profiles,
		state:       state,
		classifier:  classifier,
		assembler:   assembler,
		selector:    selector,
		validator:   toolcall.NewValidator(),
		checkpoints: checkpoints,
		limiter:     limiter,
		router:      router,
		executor:    executor,
		recovery:    recoveryStrategies,
		approvals:   approvals,
		reflect:     reflectSvc,
		category:    category,
		responder:   responder,
		wallTimeout: DefaultWallTimeout,
		now:         time.Now,
		locks:       make(map[string]bool),
		paused:      make(map[string]bool),
		interrupt:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pause suspends agentID's reasoning loop at the next step boundary.
func (l *Loop) Pause(agentID string) {
	l.statusMu.Lock()
	l.paused[agentID] = true
	l.statusMu.Unlock()
	l.emit("agentic:status:changed", map[string]any{"agentId": agentID, "status": "paused"})
}

// Resume lifts a pause.
func (l *Loop) Resume(agentID string) {
	l.statusMu.Lock()
	delete(l.paused, agentID)
	l.statusMu.Unlock()
	l.emit("agentic:status:changed", map[string]any{"agentId": agentID, "status": "resumed"})
}

// Interrupt causes the loop to exit at its next step boundary with a
// fixed finalThought.
func (l *Loop) Interrupt(agentID string) {
	l.statusMu.Lock()
	l.interrupt[agentID] = true
	l.statusMu.Unlock()
	l.emit("agentic:status:changed", map[string]any{"agentId": agentID, "status": "interrupted"})
}

// RateLimitStatus is a read-only view of an agent's sliding-window usage.
func (l *Loop) RateLimitStatus(agentID string) agentlimit.Status {
	return l.limiter.Status(agentID)
}

func (l *Loop) isPaused(agentID string) bool {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	return l.paused[agentID]
}

func (l *Loop) isInterrupted(agentID string) bool {
	l.statusMu.Lock()
	defer l.statusMu.Unlock()
	if l.interrupt[agentID] {
		delete(l.interrupt, agentID)
		return true
	}
	return false
}

func (l *Loop) emit(event string, payload map[string]any) {
	if l.events != nil {
		l.events.Emit(event, payload)
	}
}

func (l *Loop) log(ctx context.Context, agentID, event, detail string) {
	if l.activity != nil {
		l.activity.LogActivity(ctx, agentID, event, detail)
	}
}

// Run executes one full reasoning cycle for agentID.
func (l *Loop) Run(ctx context.Context, agentID, userID string, tc TriggerContext) (Result, error) {
	lockKey := agentID + ":" + tc.Trigger

	release, acquired := l.tryLock(lockKey)
	if !acquired {
		if tc.Trigger != "incoming_message" {
			return busyResult("Skipped: concurrent run"), nil
		}
		release, acquired = l.waitForLock(ctx, lockKey)
		if !acquired {
			return busyResult("I'm still working on your previous request — I'll follow up shortly."), nil
		}
	}
	defer release()

	if !l.limiter.Allow(agentID) {
		return busyResult("Skipped: rate limit"), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, l.wallTimeout)
	defer cancel()

	profile, err := l.profiles.GetProfile(runCtx, agentID)
	if err != nil {
		return Result{}, fmt.Errorf("load agent profile: %w", err)
	}

	var resumed *models.Checkpoint
	if tc.Trigger == "incoming_message" {
		l.checkpoints.Clear(agentID)
	} else if cp, ok := l.checkpoints.Load(agentID); ok {
		resumed = cp
	}

	if tc.Trigger == "approval_resume" && tc.ApprovalToolID != "" {
		res, execErr := l.executor.Execute(runCtx, tc.ApprovalToolID, tc.ApprovalParams)
		if execErr != nil {
			tc.ApprovalToolResult = fmt.Sprintf("error: %v", execErr)
		} else {
			tc.ApprovalToolResult = summarizeResult(tc.ApprovalToolID, res, 300)
		}
	}

	res, runErr := l.runCycle(runCtx, agentID, userID, profile, tc, resumed)
	if runErr != nil {
		_ = l.checkpoints.Fail(agentID)
		l.emit("agentic:error", map[string]any{"agentId": agentID, "error": runErr.Error()})
		if l.dashboard != nil {
			l.dashboard.NotifyDashboard(ctx, agentID, "Reasoning cycle failed", runErr.Error())
		}
		if runCtx.Err() == context.DeadlineExceeded && l.responder != nil {
			_ = l.responder.SendIntermediate(ctx, agentID, userID, "Sorry, that took longer than expected and I had to stop. I'll pick it back up.")
		}
		return Result{}, runErr
	}

	_ = l.checkpoints.Complete(agentID)
	l.log(ctx, agentID, "reasoning_complete", res.FinalThought)
	l.emit("reasoning:complete", map[string]any{"agentId": agentID, "iterations": res.Iterations})

	if l.reflect != nil {
		go func() {
			summary := reflection.CycleSummary{
				AgentID:    agentID,
				UserID:     userID,
				Trigger:    tc.Trigger,
				Iterations: res.Iterations,
				Actions:    toToolCallRecords(res.Actions),
			}
			_, _ = l.reflect.Reflect(context.Background(), summary)
		}()
	}

	return res, nil
}

func toToolCallRecords(actions []models.ActionRecord) []reflection.ToolCallRecord {
	out := make([]reflection.ToolCallRecord, 0, len(actions))
	for _, a := range actions {
		if a.ToolID == "" {
			continue
		}
		out = append(out, reflection.ToolCallRecord{
			ToolID:  a.ToolID,
			Success: a.Status == models.ActionExecuted,
		})
	}
	return out
}

func (l *Loop) tryLock(key string) (func(), bool) {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	if l.locks[key] {
		return nil, false
	}
	l.locks[key] = true
	return func() {
		l.locksMu.Lock()
		delete(l.locks, key)
		l.locksMu.Unlock()
	}, true
}

func (l *Loop) waitForLock(ctx context.Context, key string) (func(), bool) {
	deadline := l.now().Add(lockPollTimeout)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for l.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
			if release, ok := l.tryLock(key); ok {
				return release, true
			}
		}
	}
	return nil, false
}

// selectTools runs the full §4.3 selection pipeline for one cycle.
func (l *Loop) selectTools(ctx context.Context, profile *models.AgenticProfile, tier models.Tier, tc TriggerContext) ([]toolselect.ToolDefinition, error) {
	selCtx, err := l.state.SelectionContext(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("load selection context: %w", err)
	}
	var pol *policy.Policy
	if l.policies != nil {
		pol = l.policies.PolicyFor(ctx, profile.ID)
	}
	return l.selector.Select(profile, tier, selCtx, pol), nil
}

func formatToolLines(defs []toolselect.ToolDefinition) []string {
	lines := make([]string, 0, len(defs))
	for _, d := range defs {
		opt := ""
		if len(d.Optional) > 0 {
			opt = fmt.Sprintf(", [%s]", strings.Join(d.Optional, ", "))
		}
		lines = append(lines, fmt.Sprintf("%s(%s%s) - %s", d.ID, strings.Join(d.Required, ", "), opt, d.Description))
	}
	return lines
}

func toolIDs(defs []toolselect.ToolDefinition) []string {
	ids := make([]string, 0, len(defs))
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids
}

// cycleText picks the free text a cycle's classification and decomposition
// decisions run against.
func cycleText(tc TriggerContext) string {
	if tc.RawMessage != "" {
		return tc.RawMessage
	}
	if tc.CustomPrompt != "" {
		return tc.CustomPrompt
	}
	return tc.Trigger
}

func newRootTaskID() string {
	return uuid.NewString()
}
