package schedule

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrun/agentrun/pkg/models"
)

// MemoryStore is an in-memory Store, useful for tests and single-process
// deployments, grounded on the mutex+map+clone-on-read idiom used
// throughout the rest of this module's stores.
type MemoryStore struct {
	mu         sync.RWMutex
	schedules  map[string]models.AgenticSchedule
	jobs       map[string]models.JobHistory
	agentStats map[string]AgentStatus
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schedules:  make(map[string]models.AgenticSchedule),
		jobs:       make(map[string]models.JobHistory),
		agentStats: make(map[string]AgentStatus),
	}
}

// PutSchedule inserts or replaces a schedule; a test/seeding helper.
func (m *MemoryStore) PutSchedule(sch models.AgenticSchedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[sch.ID] = sch
}

// SetAgentStatus is a test/seeding helper.
func (m *MemoryStore) SetAgentStatus(agentID string, status AgentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentStats[agentID] = status
}

func (m *MemoryStore) ActiveSchedules(ctx context.Context) ([]models.AgenticSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.AgenticSchedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryStore) UpdateSchedule(ctx context.Context, sched models.AgenticSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[sched.ID]; !ok {
		return fmt.Errorf("schedule %s not found", sched.ID)
	}
	m.schedules[sched.ID] = sched
	return nil
}

func (m *MemoryStore) AgentStatus(ctx context.Context, agentID string) (AgentStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.agentStats[agentID]
	if !ok {
		return AgentActive, nil
	}
	return status, nil
}

func (m *MemoryStore) CreateJobHistory(ctx context.Context, job models.JobHistory) (models.JobHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return job, nil
}

func (m *MemoryStore) UpdateJobHistory(ctx context.Context, job models.JobHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s not found", job.ID)
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryStore) RunningJobHistoryByStatus(ctx context.Context, status models.JobExecutionStatus) ([]models.JobHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.JobHistory
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out, nil
}

// Job looks up a job by ID; a test helper.
func (m *MemoryStore) Job(id string) (models.JobHistory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	return j, ok
}

// Schedule looks up a schedule by ID; a test helper.
func (m *MemoryStore) Schedule(id string) (models.AgenticSchedule, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	return s, ok
}
