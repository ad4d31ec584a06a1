package reflection

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrun/agentrun/pkg/models"
)

type skillHistoryEntry struct {
	Category  models.SkillCategory
	EventType string
	Delta     int
	Note      string
}

// MemoryStore is an in-memory SkillStore + MemoryWriter, keyed by
// agentID and, within an agent, by skill category.
type MemoryStore struct {
	mu      sync.Mutex
	skills  map[string]map[models.SkillCategory]models.Skill
	history map[string][]skillHistoryEntry
	memos   []models.AgentMemory
	seq     int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		skills:  make(map[string]map[models.SkillCategory]models.Skill),
		history: make(map[string][]skillHistoryEntry),
	}
}

// SkillsByAgent returns every skill on record for the agent.
func (m *MemoryStore) SkillsByAgent(ctx context.Context, agentID string) ([]models.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCategory := m.skills[agentID]
	skills := make([]models.Skill, 0, len(byCategory))
	for _, s := range byCategory {
		skills = append(skills, s)
	}
	return skills, nil
}

// SkillByCategory returns the agent's skill for the category, creating a
// fresh level-1/0-XP record if none exists yet.
func (m *MemoryStore) SkillByCategory(ctx context.Context, agentID string, category models.SkillCategory) (models.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCategory, ok := m.skills[agentID]
	if !ok {
		byCategory = make(map[models.SkillCategory]models.Skill)
		m.skills[agentID] = byCategory
	}
	if skill, ok := byCategory[category]; ok {
		return skill, nil
	}
	m.seq++
	skill := models.Skill{
		ID:           fmt.Sprintf("skill-%d", m.seq),
		AgentID:      agentID,
		Category:     category,
		CurrentLevel: 1,
	}
	byCategory[category] = skill
	return skill, nil
}

// SaveSkill upserts a skill record.
func (m *MemoryStore) SaveSkill(ctx context.Context, skill models.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byCategory, ok := m.skills[skill.AgentID]
	if !ok {
		byCategory = make(map[models.SkillCategory]models.Skill)
		m.skills[skill.AgentID] = byCategory
	}
	byCategory[skill.Category] = skill
	return nil
}

// AppendSkillHistory records a level-up/decay event for later inspection.
func (m *MemoryStore) AppendSkillHistory(ctx context.Context, agentID string, category models.SkillCategory, eventType string, delta int, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[agentID] = append(m.history[agentID], skillHistoryEntry{Category: category, EventType: eventType, Delta: delta, Note: note})
	return nil
}

// History returns the recorded skill events for an agent, for test
// assertions.
func (m *MemoryStore) History(agentID string) []skillHistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]skillHistoryEntry, len(m.history[agentID]))
	copy(out, m.history[agentID])
	return out
}

// WriteMemory appends an extracted memory.
func (m *MemoryStore) WriteMemory(ctx context.Context, mem models.AgentMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	mem.ID = fmt.Sprintf("memory-%d", m.seq)
	m.memos = append(m.memos, mem)
	return nil
}

// Memories returns every memory written for an agent, for test
// assertions.
func (m *MemoryStore) Memories(agentID string) []models.AgentMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AgentMemory
	for _, mem := range m.memos {
		if mem.AgentID == agentID {
			out = append(out, mem)
		}
	}
	return out
}
