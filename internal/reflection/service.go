package reflection

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/agentrun/agentrun/pkg/models"
)

const xpPerSuccess = 5

// Service implements the ReflectionService contract.
type Service struct {
	skills   SkillStore
	memories MemoryWriter
	category CategoryResolver
	now      func() time.Time
}

// New constructs a Service.
func New(skills SkillStore, memories MemoryWriter, category CategoryResolver) *Service {
	return &Service{skills: skills, memories: memories, category: category, now: time.Now}
}

// shouldCreateMemories is the quality gate: always true on failure or
// recovery; false for short/shallow cycles; true once the cycle has
// enough distinct tool activity.
func shouldCreateMemories(summary CycleSummary, failedCount int) bool {
	if failedCount > 0 || summary.RecoveryApplied {
		return true
	}
	if len(summary.Actions) < 3 || summary.Iterations < 2 {
		return false
	}
	unique := make(map[string]struct{})
	for _, a := range summary.Actions {
		unique[a.ToolID] = struct{}{}
	}
	return len(summary.Actions) >= 4 && len(unique) >= 2
}

// Reflect runs the full post-cycle pipeline: tool-usage XP, failure
// analysis, efficiency analysis, task-pattern extraction, and the
// per-skill level-up check. It is meant to be invoked fire-and-forget at
// the end of a non-trivial reasoning cycle (>= 2 actions).
func (s *Service) Reflect(ctx context.Context, summary CycleSummary) (Outcome, error) {
	out := newOutcome()

	var failedTools, executedTools []string
	for _, a := range summary.Actions {
		if a.Success {
			executedTools = append(executedTools, a.ToolID)
		} else {
			failedTools = append(failedTools, a.ToolID)
		}
	}

	// Tool usage analysis: award XP for every successful call.
	for _, a := range summary.Actions {
		if !a.Success {
			continue
		}
		category := s.category(a.ToolID)
		if err := s.awardXP(ctx, summary.AgentID, category, xpPerSuccess); err != nil {
			return out, fmt.Errorf("award xp for %s: %w", a.ToolID, err)
		}
		out.XPAwarded[category] += xpPerSuccess
	}

	gate := shouldCreateMemories(summary, len(failedTools))

	// Failure analysis: always produced when there was a failure.
	if len(failedTools) > 0 {
		importance := math.Min(0.9, 0.5+0.1*float64(len(failedTools)))
		content := fmt.Sprintf("Trigger %q failed using tool(s): %s", summary.Trigger, strings.Join(failedTools, ", "))
		if err := s.memories.WriteMemory(ctx, models.AgentMemory{
			AgentID: summary.AgentID, UserID: summary.UserID, Type: models.MemLearning,
			Content: content, Importance: importance, CreatedAt: s.now(),
		}); err != nil {
			return out, err
		}
		out.MemoriesCreated++
	}

	// Efficiency analysis.
	if summary.Iterations > 5 && len(executedTools) < 3 {
		content := fmt.Sprintf("Cycle for trigger %q took %d iterations but only executed %d tools — consider a more direct plan.", summary.Trigger, summary.Iterations, len(executedTools))
		if err := s.memories.WriteMemory(ctx, models.AgentMemory{
			AgentID: summary.AgentID, UserID: summary.UserID, Type: models.MemLearning,
			Content: content, Importance: 0.5, CreatedAt: s.now(),
		}); err != nil {
			return out, err
		}
		out.MemoriesCreated++
	}
	if len(executedTools) >= 3 && gate {
		if err := s.memories.WriteMemory(ctx, models.AgentMemory{
			AgentID: summary.AgentID, UserID: summary.UserID, Type: models.MemDecision,
			Content: fmt.Sprintf("Successful tool chain: %s", strings.Join(executedTools, ", ")),
			Importance: 0.6, CreatedAt: s.now(),
		}); err != nil {
			return out, err
		}
		out.MemoriesCreated++
	}

	// Task pattern extraction.
	if gate && len(executedTools) > 0 {
		if err := s.memories.WriteMemory(ctx, models.AgentMemory{
			AgentID: summary.AgentID, UserID: summary.UserID, Type: models.MemDecision,
			Content: fmt.Sprintf("Approach for %q: %s", summary.Trigger, strings.Join(executedTools, ", ")),
			Importance: 0.5, CreatedAt: s.now(),
		}); err != nil {
			return out, err
		}
		out.MemoriesCreated++
	}

	levelUps, err := s.checkLevelUps(ctx, summary.AgentID)
	if err != nil {
		return out, err
	}
	out.LevelUps = levelUps

	return out, nil
}

func (s *Service) awardXP(ctx context.Context, agentID string, category models.SkillCategory, delta int) error {
	skill, err := s.skills.SkillByCategory(ctx, agentID, category)
	if err != nil {
		return err
	}
	skill.XP += delta
	now := s.now()
	skill.LastUsedAt = &now
	return s.skills.SaveSkill(ctx, skill)
}

// checkLevelUps advances every skill whose XP has crossed the threshold
// for its current level, capped at level 4.
func (s *Service) checkLevelUps(ctx context.Context, agentID string) ([]models.SkillCategory, error) {
	skills, err := s.skills.SkillsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	var leveled []models.SkillCategory
	for _, skill := range skills {
		threshold := skill.ThresholdForNextLevel()
		if threshold == 0 || skill.CurrentLevel >= 4 {
			continue
		}
		if skill.XP < threshold {
			continue
		}
		skill.CurrentLevel++
		if err := s.skills.SaveSkill(ctx, skill); err != nil {
			return leveled, err
		}
		if err := s.skills.AppendSkillHistory(ctx, agentID, skill.Category, "level_up", 0, fmt.Sprintf("reached level %d", skill.CurrentLevel)); err != nil {
			return leveled, err
		}
		leveled = append(leveled, skill.Category)
	}
	return leveled, nil
}

// DecayAgentSkills applies the weekly inactivity decay pass: skills
// unused for >= 14 days lose 5% x (inactiveWeeks - 2) of their XP,
// capped at 50% total loss, with a level-down if XP falls below the
// floor of the current level.
func (s *Service) DecayAgentSkills(ctx context.Context, agentID string) (Outcome, error) {
	out := newOutcome()
	skills, err := s.skills.SkillsByAgent(ctx, agentID)
	if err != nil {
		return out, err
	}

	now := s.now()
	for _, skill := range skills {
		if skill.LastUsedAt == nil {
			continue
		}
		inactive := now.Sub(*skill.LastUsedAt)
		if inactive < inactivityThreshold {
			continue
		}
		inactiveWeeks := int(inactive / (7 * 24 * time.Hour))
		lossPct := decayWeeklyRate * float64(inactiveWeeks-decayGraceWeeks)
		if lossPct <= 0 {
			continue
		}
		if lossPct > decayCap {
			lossPct = decayCap
		}

		loss := int(math.Round(float64(skill.XP) * lossPct))
		if loss <= 0 {
			continue
		}
		newXP := skill.XP - loss
		if newXP < 0 {
			newXP = 0
		}
		skill.XP = newXP

		if floor := skill.ThresholdForCurrentLevel(); skill.CurrentLevel > 1 && skill.XP < floor {
			skill.CurrentLevel--
			out.LevelDowns = append(out.LevelDowns, skill.Category)
		}

		if err := s.skills.SaveSkill(ctx, skill); err != nil {
			return out, err
		}
		if err := s.skills.AppendSkillHistory(ctx, agentID, skill.Category, "decay", -loss, fmt.Sprintf("inactive %d weeks", inactiveWeeks)); err != nil {
			return out, err
		}
		out.XPAwarded[skill.Category] -= loss
	}
	return out, nil
}
