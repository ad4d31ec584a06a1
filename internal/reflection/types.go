// Package reflection implements the post-cycle ReflectionService: the
// quality gate for whether a cycle is worth remembering, tool-usage XP
// awarding, failure/efficiency/task-pattern memory extraction, skill
// level-up checks, and the weekly inactivity decay pass.
//
// Grounded on internal/skills/manager.go's mutex-guarded-map Manager
// (discover/refresh-then-read idiom) generalized from tool-manifest
// gating to per-agent skill-XP bookkeeping, and pkg/models/agentic.go's
// Skill/AgentMemory types and threshold tables.
package reflection

import (
	"context"
	"time"

	"github.com/agentrun/agentrun/pkg/models"
)

// ToolCallRecord is one tool invocation observed during a reasoning
// cycle.
type ToolCallRecord struct {
	ToolID  string
	Success bool
}

// CycleSummary is the input to Reflect: the shape of one completed
// reasoning cycle.
type CycleSummary struct {
	AgentID         string
	UserID          string
	Trigger         string
	Iterations      int
	Actions         []ToolCallRecord
	RecoveryApplied bool
}

// CategoryResolver maps a tool ID to the skill category its successful
// use should credit.
type CategoryResolver func(toolID string) models.SkillCategory

// SkillStore persists per-agent skill proficiency.
type SkillStore interface {
	SkillsByAgent(ctx context.Context, agentID string) ([]models.Skill, error)
	SkillByCategory(ctx context.Context, agentID string, category models.SkillCategory) (models.Skill, error)
	SaveSkill(ctx context.Context, skill models.Skill) error
	AppendSkillHistory(ctx context.Context, agentID string, category models.SkillCategory, eventType string, delta int, note string) error
}

// MemoryWriter persists extracted learnings.
type MemoryWriter interface {
	WriteMemory(ctx context.Context, mem models.AgentMemory) error
}

// Outcome summarizes what a Reflect or DecayAgentSkills call did.
type Outcome struct {
	MemoriesCreated int
	XPAwarded       map[models.SkillCategory]int
	LevelUps        []models.SkillCategory
	LevelDowns      []models.SkillCategory
}

func newOutcome() Outcome {
	return Outcome{XPAwarded: make(map[models.SkillCategory]int)}
}

const decayGraceWeeks = 2
const decayWeeklyRate = 0.05
const decayCap = 0.5
const inactivityThreshold = 14 * 24 * time.Hour
