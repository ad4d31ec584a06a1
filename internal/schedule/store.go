package schedule

import (
	"context"

	"github.com/agentrun/agentrun/pkg/models"
)

// AgentStatus is the minimal agent-activity view the scheduler needs to
// decide whether a due schedule's owning agent may still run.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentRunning  AgentStatus = "running"
	AgentInactive AgentStatus = "inactive"
)

// Store persists AgenticSchedule rows and JobHistory rows. A production
// implementation backs this with a relational table; MemoryStore below is
// sufficient for tests and small deployments.
type Store interface {
	ActiveSchedules(ctx context.Context) ([]models.AgenticSchedule, error)
	UpdateSchedule(ctx context.Context, sched models.AgenticSchedule) error
	AgentStatus(ctx context.Context, agentID string) (AgentStatus, error)

	CreateJobHistory(ctx context.Context, job models.JobHistory) (models.JobHistory, error)
	UpdateJobHistory(ctx context.Context, job models.JobHistory) error
	RunningJobHistoryByStatus(ctx context.Context, status models.JobExecutionStatus) ([]models.JobHistory, error)
}
