package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/agentrun/agentrun/internal/agent"
	"github.com/agentrun/agentrun/internal/agentlimit"
	"github.com/agentrun/agentrun/internal/approvalsvc"
	"github.com/agentrun/agentrun/internal/channels"
	"github.com/agentrun/agentrun/internal/checkpoint"
	"github.com/agentrun/agentrun/internal/classify"
	"github.com/agentrun/agentrun/internal/collab"
	"github.com/agentrun/agentrun/internal/contextbuild"
	"github.com/agentrun/agentrun/internal/cost"
	"github.com/agentrun/agentrun/internal/notify"
	"github.com/agentrun/agentrun/internal/plan"
	"github.com/agentrun/agentrun/internal/reasoning"
	"github.com/agentrun/agentrun/internal/reflection"
	"github.com/agentrun/agentrun/internal/retry"
	"github.com/agentrun/agentrun/internal/recovery"
	"github.com/agentrun/agentrun/internal/schedule"
	"github.com/agentrun/agentrun/internal/toolselect"
	"github.com/agentrun/agentrun/pkg/models"
)

// ReasoningStack is the composition root for the §4.7-§4.21 domain
// cluster: the AgentReasoningLoop plus the scheduler, approval queue and
// collaboration protocol that run on top of it. It is the only place any
// of these packages is actually constructed and started; everything else
// in internal/reasoning, internal/schedule, internal/approvalsvc and
// internal/collab is a library used from here.
type ReasoningStack struct {
	Loop      *reasoning.Loop
	Scheduler *schedule.Scheduler
	Approvals *approvalsvc.Service
	Collab    *collab.Protocol
	Profiles  *MemoryProfileStore
	Costs     *cost.Tracker
}

// MemoryProfileStore is the in-process AgenticProfile store backing every
// profile-shaped interface the domain cluster needs (ProfileProvider,
// approvalsvc.ProfileStore, cost.ProfileStore). The teacher repo has no
// persistence layer for this entity (its own "agent" concept in
// internal/agents is a config-file identity, not a runtime profile with
// autonomy/budget/master-contact state), so this is the first concrete
// store for it, in the same in-memory idiom as checkpoint.MemoryStore,
// approvalsvc.MemoryStore, schedule.MemoryStore and collab.MemoryStore.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*models.AgenticProfile
}

// NewMemoryProfileStore constructs an empty store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*models.AgenticProfile)}
}

// Put registers or replaces a profile.
func (s *MemoryProfileStore) Put(p *models.AgenticProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
}

// GetProfile implements reasoning.ProfileProvider.
func (s *MemoryProfileStore) GetProfile(ctx context.Context, agentID string) (*models.AgenticProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[agentID]
	if !ok {
		return nil, fmt.Errorf("agentic profile not found: %s", agentID)
	}
	return p, nil
}

// Profile implements approvalsvc.ProfileStore.
func (s *MemoryProfileStore) Profile(ctx context.Context, agentID string) (*models.AgenticProfile, error) {
	return s.GetProfile(ctx, agentID)
}

// DailyBudget implements cost.ProfileStore.
func (s *MemoryProfileStore) DailyBudget(agentID string) (budget, used float64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, found := s.profiles[agentID]
	if !found {
		return 0, 0, false
	}
	return p.DailyBudget, p.DailyBudgetUsed, true
}

// IncrementBudgetUsed implements cost.ProfileStore.
func (s *MemoryProfileStore) IncrementBudgetUsed(agentID string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[agentID]
	if !ok {
		return 0, fmt.Errorf("agentic profile not found: %s", agentID)
	}
	p.DailyBudgetUsed += delta
	return p.DailyBudgetUsed, nil
}

// minimalStateSource backs reasoning.StateSource with the state this
// deployment actually tracks (personality, familiarity); the device-fleet
// and knowledge-library sections have no backing store yet in this repo,
// so they report empty rather than invented data.
type minimalStateSource struct{}

func (minimalStateSource) Personality(ctx context.Context, agentID string) (string, error) {
	return "", nil
}

func (minimalStateSource) AgentContext(ctx context.Context, agentID string) (contextbuild.AgentContext, error) {
	return contextbuild.AgentContext{}, nil
}

func (minimalStateSource) LocalAgents(ctx context.Context, agentID string) ([]contextbuild.LocalAgentDescriptor, error) {
	return nil, nil
}

func (minimalStateSource) MobileAgents(ctx context.Context, agentID string) ([]contextbuild.MobileAgentDescriptor, error) {
	return nil, nil
}

func (minimalStateSource) RecentMemories(ctx context.Context, agentID string, mediaOnly bool) ([]contextbuild.Memory, error) {
	return nil, nil
}

func (minimalStateSource) SelectionContext(ctx context.Context, agentID string) (toolselect.TriggerContext, error) {
	return toolselect.TriggerContext{}, nil
}

// toolRegistryExecutor adapts *agent.ToolRegistry (the teacher's tool
// dispatch table, already built for the gateway's own tool_manager) onto
// reasoning.ToolExecutor, so the reasoning loop executes tools through the
// same registry the rest of the gateway uses instead of a parallel one.
type toolRegistryExecutor struct {
	registry *agent.ToolRegistry
}

func (e toolRegistryExecutor) Execute(ctx context.Context, toolID string, params map[string]any) (any, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal tool params: %w", err)
	}
	result, err := e.registry.Execute(ctx, toolID, raw)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, fmt.Errorf("%s", result.Content)
	}
	return result.Content, nil
}

// activityLogger and eventEmitter adapt the gateway's logger onto the
// reasoning package's best-effort lifecycle sinks.
type sinkLogger struct{}

func (sinkLogger) LogActivity(ctx context.Context, agentID, event, detail string) {}
func (sinkLogger) Emit(event string, payload map[string]any)                     {}
func (sinkLogger) NotifyDashboard(ctx context.Context, agentID, title, detail string) {}

// noopResponder is used where no incremental-delivery channel is wired
// yet; respond messages still land in the cycle's FinalThought/Result.
type noopResponder struct{}

func (noopResponder) SendIntermediate(ctx context.Context, agentID, userID, message string) error {
	return nil
}

// categoryByTool is the §4.16 tool-ID-to-skill-category map reflection's
// success-XP bookkeeping needs; it is a small static table in the same
// spirit as reasoning's SafeTools/outboundTools tables.
func categoryByTool(toolID string) models.SkillCategory {
	switch toolID {
	case "sendWhatsApp", "sendEmail", "sendTelegram", "sendSMS", "sendMedia", "broadcastTeam":
		return models.SkillCommunication
	case "searchWeb", "searchNews", "browsePage", "runDiagnostics":
		return models.SkillAnalysis
	case "createSchedule", "updateSchedule", "createTask", "updateTask", "completeTask":
		return models.SkillAutomation
	case "orchestrate", "createSpecialist", "executeOnLocalAgent":
		return models.SkillIntegration
	default:
		return models.SkillManagement
	}
}

// BuildReasoningStack is the runtime's composition root for the
// AgentReasoningLoop domain cluster (§4.7-§4.21): it constructs the loop
// together with the scheduler, approval service and collaboration
// protocol that depend on it, wired over the teacher's tool registry,
// channel registry and routing.Router rather than parallel
// implementations. Callers (the serve command and the CLI's reasoning
// subcommand) own the resulting stack's lifecycle.
func BuildReasoningStack(router reasoning.AIRouter, toolRegistry *agent.ToolRegistry, channelRegistry *channels.Registry) *ReasoningStack {
	profiles := NewMemoryProfileStore()

	classifier := classify.New(classify.Config{})
	assembler := contextbuild.New()
	selector := toolselect.New(toolselect.Catalog{}, nil)
	checkpoints := checkpoint.NewMemoryStore()
	limiter := agentlimit.New()
	executor := toolRegistryExecutor{registry: toolRegistry}
	recoveryStrategies := recovery.New(map[string][]string{
		"searchWeb": {"searchNews", "browsePage"},
		"sendEmail": {"sendTelegram", "sendWhatsApp"},
	})

	skills := reflection.NewMemoryStore()
	reflectSvc := reflection.New(skills, skills, reflection.CategoryResolver(categoryByTool))

	notifyStore := notify.NewMemoryStore()
	notifySvc := notify.New(channelRegistry, notifyStore, retry.Config{})

	costTracker := cost.New(profiles, costNotifierAdapter{svc: notifySvc}, sinkHierarchyLogger{})

	approvals := approvalsvc.New(
		approvalsvc.NewMemoryStore(),
		profiles,
		approvalsvcNotifierAdapter{svc: notifySvc},
		approvalsvc.NewInMemoryScopeStore(),
		approvalsvc.NewInMemoryContactStore(),
	)
	approvalGate := reasoning.NewApprovalGate(approvals)

	loop := reasoning.New(
		profiles,
		minimalStateSource{},
		classifier,
		assembler,
		selector,
		checkpoints,
		limiter,
		router,
		executor,
		recoveryStrategies,
		approvalGate,
		reflectSvc,
		reflection.CategoryResolver(categoryByTool),
		noopResponder{},
		reasoning.WithActivityLogger(sinkLogger{}),
		reasoning.WithEvents(sinkLogger{}),
		reasoning.WithDashboard(sinkLogger{}),
		reasoning.WithCostTracker(costTracker),
	)

	sched := schedule.New(
		schedule.NewMemoryStore(),
		scheduleActionHandlers(loop),
		scheduleNotifierAdapter{svc: notifySvc},
		schedule.Config{},
	)

	collabProto := collab.New(
		collab.NewMemoryStore(),
		loop,
		skillLookupAdapter{skills: skills},
		memoryWriterAdapter{skills: skills},
		noPeers{},
	)

	return &ReasoningStack{
		Loop:      loop,
		Scheduler: sched,
		Approvals: approvals,
		Collab:    collabProto,
		Profiles:  profiles,
		Costs:     costTracker,
	}
}

// costNotifierAdapter wires cost.Tracker's budget-threshold callback onto
// the same notify.Service every other outbound path uses.
type costNotifierAdapter struct{ svc *notify.Service }

func (a costNotifierAdapter) NotifyBudget(ctx context.Context, agentID string, kind models.NotificationType, usedFraction float64) error {
	_, err := a.svc.Notify(ctx, models.MasterNotification{
		Type:    kind,
		Title:   "Budget threshold reached",
		Content: fmt.Sprintf("agent %s has used %.0f%% of its daily budget", agentID, usedFraction*100),
		Context: map[string]any{"agentId": agentID, "usedFraction": usedFraction},
	})
	return err
}

// sinkHierarchyLogger is a best-effort audit sink; no hierarchy/audit
// store exists yet for budget-crossing events in this deployment.
type sinkHierarchyLogger struct{}

func (sinkHierarchyLogger) LogBudgetEvent(ctx context.Context, agentID, eventType string, usedFraction float64) {
}

// scheduleActionHandlers wires each §4.17 ActionHandlers entry to
// loop.RunSynthetic, the only implementation of schedule.ReasoningRunner.
// Most handlers are thin passthroughs of the schedule's action_type and
// action_config, matching "most delegate into the reasoning loop".
func scheduleActionHandlers(loop *reasoning.Loop) map[string]schedule.ActionHandler {
	delegate := func(trigger string) schedule.ActionHandler {
		return func(ctx context.Context, sched models.AgenticSchedule) (schedule.ActionResult, error) {
			tc := map[string]any{"userId": sched.AgentID, "prompt": sched.CustomPrompt}
			for k, v := range sched.ActionConfig {
				tc[k] = v
			}
			return loop.RunSynthetic(ctx, sched.AgentID, trigger, tc)
		}
	}
	return map[string]schedule.ActionHandler{
		"check_messages":        delegate("check_messages"),
		"send_report":           delegate("send_report"),
		"review_tasks":          delegate("review_tasks"),
		"update_knowledge":      delegate("update_knowledge"),
		"custom_prompt":         delegate("custom_prompt"),
		"self_reflect":          delegate("self_reflect"),
		"health_summary":        delegate("health_summary"),
		"reasoning_cycle":       delegate("reasoning_cycle"),
		"follow_up_check_in":    delegate("follow_up_check_in"),
		"proactive_outreach":    delegate("proactive_outreach"),
	}
}

// approvalsvcNotifierAdapter and scheduleNotifierAdapter narrow
// *notify.Service's return shape onto the single-error Notifier contracts
// approvalsvc and schedule each declare locally.
type approvalsvcNotifierAdapter struct{ svc *notify.Service }

func (a approvalsvcNotifierAdapter) Notify(ctx context.Context, n models.MasterNotification) error {
	_, err := a.svc.Notify(ctx, n)
	return err
}

type scheduleNotifierAdapter struct{ svc *notify.Service }

func (a scheduleNotifierAdapter) NotifyJobResult(ctx context.Context, agentID string, job models.JobHistory) error {
	status := "completed"
	if job.Status == models.JobFailed {
		status = "failed"
	}
	_, err := a.svc.Notify(ctx, models.MasterNotification{
		Type:    models.NotifyTaskCompleted,
		Title:   fmt.Sprintf("Job %s %s", job.ActionType, status),
		Content: job.ResultSummary,
		Context: map[string]any{"agentId": agentID, "jobId": job.ID},
	})
	return err
}

// skillLookupAdapter and memoryWriterAdapter let collab.Protocol reuse the
// reflection package's skill store instead of a third copy of agent skill
// bookkeeping.
type skillLookupAdapter struct{ skills *reflection.MemoryStore }

func (a skillLookupAdapter) SkillCategories(ctx context.Context, agentID string) ([]string, error) {
	skills, err := a.skills.SkillsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		out = append(out, string(s.Category))
	}
	return out, nil
}

type memoryWriterAdapter struct{ skills *reflection.MemoryStore }

func (a memoryWriterAdapter) WriteSharedLearning(ctx context.Context, agentID, content string, importance float64, tags []string) error {
	return a.skills.WriteMemory(ctx, models.AgentMemory{
		AgentID:    agentID,
		Type:       models.MemSharedLearning,
		Content:    content,
		Importance: importance,
		Tags:       tags,
		CreatedAt:  time.Now(),
	})
}

// noPeers reports no peers until a directory of sibling agents exists for
// this deployment; propagateKnowledge degrades to a no-op rather than
// guessing at a peer set.
type noPeers struct{}

func (noPeers) ActivePeers(ctx context.Context, userID, excludeAgentID string) ([]string, error) {
	return nil, nil
}

// Start launches the scheduler's background tick loop. Callers should
// invoke this once from the serve command and cancel ctx on shutdown.
func (s *ReasoningStack) Start(ctx context.Context) {
	s.Scheduler.Start(ctx)
}
