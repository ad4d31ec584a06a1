// Package checkpoint implements per-agent reasoning-run checkpoints used
// only to resume a run that was killed mid-iteration.
package checkpoint

import (
	"sync"
	"time"

	"github.com/agentrun/agentrun/pkg/models"
)

// Store saves, loads, completes, and fails per-agent checkpoints.
type Store interface {
	Save(agentID, userID string, cp models.Checkpoint) error
	Load(agentID string) (*models.Checkpoint, bool)
	Complete(agentID string) error
	Fail(agentID string) error
	// Clear drops any checkpoint for agentID unconditionally; called when
	// a new incoming_message trigger starts a fresh, independent task.
	Clear(agentID string)
}

// MemoryStore is an in-memory Store, grounded on the mutex+map+clone-on-
// read idiom used throughout the teacher's own stores.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]models.Checkpoint
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]models.Checkpoint)}
}

// Save persists (or overwrites) the checkpoint for an agent.
func (s *MemoryStore) Save(agentID, userID string, cp models.Checkpoint) error {
	cp.AgentID = agentID
	cp.UserID = userID
	cp.UpdatedAt = now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	if cp.Status == "" {
		cp.Status = "in_progress"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[agentID] = cp
	return nil
}

// Load returns a defensive copy of the agent's checkpoint, if present.
func (s *MemoryStore) Load(agentID string) (*models.Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[agentID]
	if !ok {
		return nil, false
	}
	clone := cloneCheckpoint(cp)
	return &clone, true
}

// Complete marks the checkpoint as completed and removes it: a completed
// run has nothing left to resume.
func (s *MemoryStore) Complete(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, agentID)
	return nil
}

// Fail marks the checkpoint as failed; it is retained (not cleared) so the
// failure is visible to anyone inspecting agent state, matching the
// spec's "cleared ... on failure marker" lifecycle by leaving a terminal
// marker rather than silently discarding the last known state.
func (s *MemoryStore) Fail(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[agentID]
	if !ok {
		return nil
	}
	cp.Status = "failed"
	cp.UpdatedAt = now()
	s.checkpoints[agentID] = cp
	return nil
}

// Clear unconditionally drops any checkpoint for agentID.
func (s *MemoryStore) Clear(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, agentID)
}

func cloneCheckpoint(cp models.Checkpoint) models.Checkpoint {
	clone := cp
	clone.ActionRecords = append([]models.ActionRecord(nil), cp.ActionRecords...)
	if cp.TriggerContext != nil {
		clone.TriggerContext = make(map[string]any, len(cp.TriggerContext))
		for k, v := range cp.TriggerContext {
			clone.TriggerContext[k] = v
		}
	}
	return clone
}

var now = time.Now
