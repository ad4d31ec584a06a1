package models

import (
	"strings"
	"time"
)

// Autonomy is the policy parameter that determines an agent's default
// approval stance.
type Autonomy string

const (
	AutonomySupervised     Autonomy = "supervised"
	AutonomySemiAutonomous Autonomy = "semi-autonomous"
	AutonomyAutonomous     Autonomy = "autonomous"
)

// Tier is a task-complexity bucket used to select iteration/tool-call
// budgets for a reasoning run.
type Tier string

const (
	TierTrivial  Tier = "trivial"
	TierSimple   Tier = "simple"
	TierModerate Tier = "moderate"
	TierComplex  Tier = "complex"
	TierCritical Tier = "critical"
)

// tierOrder gives a total order over tiers for monotonicity checks.
var tierOrder = map[Tier]int{
	TierTrivial:  0,
	TierSimple:   1,
	TierModerate: 2,
	TierComplex:  3,
	TierCritical: 4,
}

// Less reports whether t is strictly below other in the tier order.
func (t Tier) Less(other Tier) bool {
	return tierOrder[t] < tierOrder[other]
}

// AgenticProfile is a configured, long-lived AI agent belonging to a user.
type AgenticProfile struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`

	SystemPrompt string `json:"system_prompt,omitempty"`

	Autonomy Autonomy `json:"autonomy"`

	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	UseTaskRouter bool  `json:"use_task_router,omitempty"`

	MasterContactID      string   `json:"master_contact_id,omitempty"`
	MasterContactChannel string   `json:"master_contact_channel,omitempty"`
	NotifyOn             []string `json:"notify_on,omitempty"`
	EscalationTimeoutMin int      `json:"escalation_timeout_minutes,omitempty"`

	RequireApprovalFor []string `json:"require_approval_for,omitempty"`

	CanCreateChildren bool   `json:"can_create_children"`
	MaxChildren       int    `json:"max_children,omitempty"`
	MaxHierarchyDepth int    `json:"max_hierarchy_depth,omitempty"`
	ParentAgentID     string `json:"parent_agent_id,omitempty"`

	DailyBudget     float64 `json:"daily_budget,omitempty"`
	DailyBudgetUsed float64 `json:"daily_budget_used"`

	Status string `json:"status"` // active | deactivated

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the profile is eligible to run reasoning cycles.
func (p *AgenticProfile) IsActive() bool {
	return p != nil && p.Status != "deactivated"
}

// HasMasterContact reports whether an approval/notification target is
// configured.
func (p *AgenticProfile) HasMasterContact() bool {
	return p != nil && strings.TrimSpace(p.MasterContactID) != ""
}

// TaskStatus enumerates AgenticTask lifecycle states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
	TaskFailed     TaskStatus = "failed"
)

// AgenticTask is a unit of work, possibly a plan step.
type AgenticTask struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`

	ParentTaskID string `json:"parent_task_id,omitempty"`
	Type         string `json:"type,omitempty"` // "" | delegated | plan_root | plan_step

	AISummary string `json:"ai_summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScheduleType enumerates AgenticSchedule firing mechanisms.
type ScheduleType string

const (
	ScheduleCron     ScheduleType = "cron"
	ScheduleInterval ScheduleType = "interval"
	ScheduleOnce     ScheduleType = "once"
	ScheduleEvent    ScheduleType = "event"
)

// AgenticSchedule is a recurring job specification.
type AgenticSchedule struct {
	ID      string       `json:"id"`
	AgentID string       `json:"agent_id"`
	Type    ScheduleType `json:"type"`

	CronExpression  string `json:"cron_expression,omitempty"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`

	ActionType   string         `json:"action_type"`
	ActionConfig map[string]any `json:"action_config,omitempty"`
	CustomPrompt string         `json:"custom_prompt,omitempty"`

	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	IsActive  bool       `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate enforces the AgenticSchedule type invariants from the data
// model: cron schedules carry a cron expression, interval schedules carry
// a positive interval.
func (s *AgenticSchedule) Validate() error {
	switch s.Type {
	case ScheduleCron:
		if strings.TrimSpace(s.CronExpression) == "" {
			return errInvalidSchedule("cron schedule requires cron_expression")
		}
	case ScheduleInterval:
		if s.IntervalMinutes <= 0 {
			return errInvalidSchedule("interval schedule requires interval_minutes > 0")
		}
	case ScheduleOnce, ScheduleEvent:
		// no structural requirement beyond action_type
	default:
		return errInvalidSchedule("unknown schedule type " + string(s.Type))
	}
	if strings.TrimSpace(s.ActionType) == "" {
		return errInvalidSchedule("action_type is required")
	}
	return nil
}

type scheduleError string

func (e scheduleError) Error() string { return string(e) }

func errInvalidSchedule(msg string) error { return scheduleError(msg) }

// JobExecutionStatus enumerates JobHistory row states.
type JobExecutionStatus string

const (
	JobPending   JobExecutionStatus = "pending"
	JobRunning   JobExecutionStatus = "running"
	JobSucceeded JobExecutionStatus = "success"
	JobFailed    JobExecutionStatus = "failed"
	JobSkipped   JobExecutionStatus = "skipped"
	JobCancelled JobExecutionStatus = "cancelled"
)

// JobHistory is one row per executed schedule firing.
type JobHistory struct {
	ID         string             `json:"id"`
	ScheduleID string             `json:"schedule_id"`
	AgentID    string             `json:"agent_id"`
	ActionType string             `json:"action_type"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`

	Status       JobExecutionStatus `json:"status"`
	ErrorMessage string             `json:"error_message,omitempty"`

	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`
	ResultSummary string      `json:"result_summary,omitempty"`

	TokensUsed int    `json:"tokens_used,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
}

// AgentMessageType enumerates AI-to-AI message kinds.
type AgentMessageType string

const (
	MsgTaskDelegation AgentMessageType = "task_delegation"
	MsgTaskUpdate     AgentMessageType = "task_update"
	MsgContextShare   AgentMessageType = "context_share"
	MsgRequest        AgentMessageType = "request"
	MsgResponse       AgentMessageType = "response"
	MsgNotification   AgentMessageType = "notification"
	MsgHandoff        AgentMessageType = "handoff"
	MsgCoordination   AgentMessageType = "coordination"
)

// AgentMessageStatus enumerates AI-to-AI message delivery states.
type AgentMessageStatus string

const (
	AgentMsgPending      AgentMessageStatus = "pending"
	AgentMsgDelivered    AgentMessageStatus = "delivered"
	AgentMsgRead         AgentMessageStatus = "read"
	AgentMsgAcknowledged AgentMessageStatus = "acknowledged"
	AgentMsgResponded    AgentMessageStatus = "responded"
	AgentMsgFailed       AgentMessageStatus = "failed"
	AgentMsgExpired      AgentMessageStatus = "expired"
)

// AgentMessage is a directed communication between two agents belonging to
// the same user.
type AgentMessage struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	SenderID   string             `json:"sender_id"`
	ReceiverID string             `json:"receiver_id"`
	Type       AgentMessageType   `json:"message_type"`
	Subject    string             `json:"subject,omitempty"`
	Content    string             `json:"content"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
	ReplyTo    string             `json:"reply_to,omitempty"`
	ThreadID   string             `json:"thread_id"`
	Priority   string             `json:"priority,omitempty"`
	Status     AgentMessageStatus `json:"status"`

	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
	TaskID         string     `json:"task_id,omitempty"`
	DeadlineAt     *time.Time `json:"deadline_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AgentThread is a group conversation between a fixed set of agent IDs.
type AgentThread struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ParticipantKey  string    `json:"participant_key"` // sorted participant IDs, joined
	ParticipantIDs  []string  `json:"participant_ids"`
	Subject         string    `json:"subject,omitempty"`
	ThreadType      string    `json:"thread_type,omitempty"`
	TaskID          string    `json:"task_id,omitempty"`
	Context         string    `json:"context,omitempty"`
	IsActive        bool      `json:"is_active"`
	LastMessageAt   time.Time `json:"last_message_at"`
	MessageCount    int       `json:"message_count"`
	CreatedAt       time.Time `json:"created_at"`
}

// ThreadKey computes the canonical, sorted participant key for a thread,
// optionally scoped to a task (task threads are keyed separately from
// open-ended threads between the same participants).
func ThreadKey(participantIDs []string, taskID string) string {
	sorted := append([]string(nil), participantIDs...)
	sortStrings(sorted)
	key := strings.Join(sorted, "|")
	if taskID != "" {
		key += "#" + taskID
	}
	return key
}

func sortStrings(s []string) {
	// insertion sort: participant sets are small (collaboration groups)
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// CollabType enumerates CollaborationProtocol session kinds.
type CollabType string

const (
	CollabConsultation CollabType = "consultation"
	CollabConsensus    CollabType = "consensus"
	CollabAsyncConsensus CollabType = "async_consensus"
	CollabConflict     CollabType = "conflict"
)

// CollabStatus enumerates Conversation lifecycle states.
type CollabStatus string

const (
	CollabActive    CollabStatus = "active"
	CollabCompleted CollabStatus = "completed"
	CollabFailed    CollabStatus = "failed"
)

// Conversation is a consultation/consensus/conflict collaboration session.
type Conversation struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	InitiatorID    string         `json:"initiator_id"`
	ParticipantIDs []string       `json:"participant_ids"`
	Type           CollabType     `json:"type"`
	Topic          string         `json:"topic"`
	Status         CollabStatus   `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ConversationMessageType enumerates ConversationMessage kinds.
type ConversationMessageType string

const (
	ConvMsgQuestion ConversationMessageType = "question"
	ConvMsgResponse ConversationMessageType = "response"
	ConvMsgVote     ConversationMessageType = "vote"
	ConvMsgResult   ConversationMessageType = "result"
)

// ConversationMessage is one turn inside a Conversation.
type ConversationMessage struct {
	ID             string                  `json:"id"`
	ConversationID string                  `json:"conversation_id"`
	AgentID        string                  `json:"agent_id"`
	Type           ConversationMessageType `json:"type"`
	Content        string                  `json:"content"`
	CreatedAt      time.Time               `json:"created_at"`
}

// ApprovalStatus enumerates ApprovalRequest lifecycle states.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
	ApprovalStatusExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is a queued human-authorized action.
type ApprovalRequest struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`
	UserID  string `json:"user_id"`

	ActionType        string         `json:"action_type"`
	ActionTitle       string         `json:"action_title"`
	ActionDescription string         `json:"action_description,omitempty"`
	ActionPayload     map[string]any `json:"action_payload"`

	TriggeredBy    string         `json:"triggered_by,omitempty"`
	TriggerContext map[string]any `json:"trigger_context,omitempty"`

	ConfidenceScore float64 `json:"confidence_score,omitempty"`
	Reasoning       string  `json:"reasoning,omitempty"`

	MasterContactID      string `json:"master_contact_id"`
	NotificationChannel  string `json:"notification_channel,omitempty"`

	Status ApprovalStatus `json:"status"`

	ResolvedBy      string         `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolutionNotes string         `json:"resolution_notes,omitempty"`
	ModifiedPayload map[string]any `json:"modified_payload,omitempty"`

	Priority  string    `json:"priority"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsPending reports whether the request is still awaiting a decision as of
// now.
func (r *ApprovalRequest) IsPending(now time.Time) bool {
	return r != nil && r.Status == ApprovalStatusPending && now.Before(r.ExpiresAt)
}

// NotificationType enumerates MasterNotification kinds.
type NotificationType string

const (
	NotifyApprovalNeeded NotificationType = "approval_needed"
	NotifyDailyReport    NotificationType = "daily_report"
	NotifyCriticalError  NotificationType = "critical_error"
	NotifyBudgetWarning  NotificationType = "budget_warning"
	NotifyBudgetExceeded NotificationType = "budget_exceeded"
	NotifyTaskCompleted  NotificationType = "task_completed"
	NotifyOutOfScope     NotificationType = "out_of_scope"
	NotifyTest           NotificationType = "test"
)

// DeliveryStatus enumerates MasterNotification delivery states.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MasterNotification is an outbound alert to an agent's master contact.
type MasterNotification struct {
	ID      string           `json:"id"`
	AgentID string           `json:"agent_id"`
	UserID  string           `json:"user_id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Content string           `json:"content"`
	Context map[string]any   `json:"context,omitempty"`
	Channel string           `json:"channel"`

	DeliveryStatus   DeliveryStatus `json:"delivery_status"`
	DeliveryAttempts int            `json:"delivery_attempts"`
	SentAt           *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt      *time.Time     `json:"delivered_at,omitempty"`
	ReadAt           *time.Time     `json:"read_at,omitempty"`

	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// UsageLog is one row per AI request issued on behalf of an agent.
type UsageLog struct {
	ID             string `json:"id"`
	AgentID        string `json:"agent_id"`
	UserID         string `json:"user_id"`
	RequestType    string `json:"request_type"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	InputTokens    int64  `json:"input_tokens"`
	OutputTokens   int64  `json:"output_tokens"`
	TotalTokens    int64  `json:"total_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	TaskID         string `json:"task_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Source         string `json:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AgentMemoryType enumerates durable agent recollection kinds. This is
// distinct from MemoryEntry (the vector-search-facing RAG record) — an
// AgentMemory is a structured recollection written by tools or by
// reflection and consolidated on a schedule.
type AgentMemoryType string

const (
	MemConversation   AgentMemoryType = "conversation"
	MemTransaction    AgentMemoryType = "transaction"
	MemDecision       AgentMemoryType = "decision"
	MemLearning       AgentMemoryType = "learning"
	MemContext        AgentMemoryType = "context"
	MemEntity         AgentMemoryType = "entity"
	MemPreference     AgentMemoryType = "preference"
	MemSharedLearning AgentMemoryType = "shared_learning"
	MemPlanExecution  AgentMemoryType = "plan_execution"
	MemReflection     AgentMemoryType = "reflection"
)

// AgentMemory is a durable agent recollection.
type AgentMemory struct {
	ID               string          `json:"id"`
	AgentID          string          `json:"agent_id"`
	UserID           string          `json:"user_id"`
	Type             AgentMemoryType `json:"type"`
	Content          string          `json:"content"`
	Summary          string          `json:"summary,omitempty"`
	Importance       float64         `json:"importance"` // [0,1]
	EmotionalValence float64         `json:"emotional_valence"` // [-1,1]
	RelatedEntity    string          `json:"related_entity,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	AccessCount      int             `json:"access_count"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"` // nil = permanent
	Tags             []string        `json:"tags,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SkillCategory enumerates the five proficiency categories an agent can
// develop.
type SkillCategory string

const (
	SkillCommunication SkillCategory = "communication"
	SkillAnalysis      SkillCategory = "analysis"
	SkillAutomation    SkillCategory = "automation"
	SkillIntegration   SkillCategory = "integration"
	SkillManagement    SkillCategory = "management"
)

// DefaultSkillThresholds is the default per-level XP threshold table: the
// XP required to reach level 2, 3, and 4 respectively.
var DefaultSkillThresholds = [3]int{100, 300, 600}

// skillLevelUpThresholds maps "threshold to leave level N" for levels 1-4,
// used by the reflection service's level-up/level-down checks. Level 4 is
// the ceiling (spec: current_level ∈ {1..4}); the fourth slot (1000) is the
// XP needed to be considered "mastered" at the top level and is retained
// for decay comparisons even though no level 5 exists.
var SkillLevelThresholds = [4]int{100, 300, 600, 1000}

// Skill is a per-agent proficiency in one category.
type Skill struct {
	ID           string        `json:"id"`
	AgentID      string        `json:"agent_id"`
	Category     SkillCategory `json:"category"`
	CurrentLevel int           `json:"current_level"` // 1..4
	XP           int           `json:"xp"`
	LastUsedAt   *time.Time    `json:"last_used_at,omitempty"`
}

// ThresholdForNextLevel returns the XP threshold the skill must reach to
// advance past its current level, or 0 if already at the level ceiling.
func (s *Skill) ThresholdForNextLevel() int {
	if s.CurrentLevel < 1 || s.CurrentLevel > len(SkillLevelThresholds) {
		return 0
	}
	if s.CurrentLevel == len(SkillLevelThresholds) {
		return 0
	}
	return SkillLevelThresholds[s.CurrentLevel-1]
}

// ThresholdForCurrentLevel returns the XP threshold that demarcates the
// floor of the skill's current level (used by decay level-down checks).
func (s *Skill) ThresholdForCurrentLevel() int {
	if s.CurrentLevel <= 1 {
		return 0
	}
	return SkillLevelThresholds[s.CurrentLevel-2]
}

// ActionRecordStatus enumerates the persisted outcome of a single tool
// call made during a reasoning run.
type ActionRecordStatus string

const (
	ActionExecuted            ActionRecordStatus = "executed"
	ActionFailed              ActionRecordStatus = "failed"
	ActionQueuedForApproval   ActionRecordStatus = "queued_for_approval"
	ActionAsyncStarted        ActionRecordStatus = "async_started"
	ActionBlockedError        ActionRecordStatus = "blocked_error_content"
	ActionBlockedPlaceholder  ActionRecordStatus = "blocked_placeholder_text"
)

// NormalizeActionStatus treats the legacy alias "success" as "executed"
// for audit-query comparisons, per the spec's documented open question;
// the runtime itself never emits "success".
func NormalizeActionStatus(raw string) ActionRecordStatus {
	if strings.EqualFold(raw, "success") {
		return ActionExecuted
	}
	return ActionRecordStatus(raw)
}

// ActionRecord is the persisted audit trail entry for one tool call
// attempted during a reasoning run.
type ActionRecord struct {
	ToolID        string             `json:"tool_id"`
	Params        map[string]any     `json:"params,omitempty"`
	Status        ActionRecordStatus `json:"status"`
	Result        string             `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
	SentImmediately bool             `json:"sent_immediately,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Checkpoint is per-agent in-flight state for a reasoning run, used only
// to resume a run killed mid-iteration. Checkpoints are opaque to the AI.
type Checkpoint struct {
	AgentID        string         `json:"agent_id"`
	UserID         string         `json:"user_id"`
	Trigger        string         `json:"trigger"`
	TriggerContext map[string]any `json:"trigger_context,omitempty"`
	Iteration      int            `json:"iteration"`
	ActionRecords  []ActionRecord `json:"action_records"`
	TokensUsed     int            `json:"tokens_used"`
	Tier           Tier           `json:"tier"`
	Status         string         `json:"status"` // in_progress | completed | failed
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
