package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentrun/agentrun/pkg/models"
)

var (
	multiEntityRe   = regexp.MustCompile(`(?i)\b(and|also|plus|as well as)\b`)
	multiStepRe     = regexp.MustCompile(`(?i)\b(first|second|next|finally|then|after that)\b`)
	researchVerbRe  = regexp.MustCompile(`(?i)\b(research|compare|investigate|find out|look up|analyze|summarize|review)\b`)
	multiPlatformRe = regexp.MustCompile(`(?i)\b(slack|discord|telegram|whatsapp|email|sms|signal|matrix|teams)\b.*\b(slack|discord|telegram|whatsapp|email|sms|signal|matrix|teams)\b`)
	conditionalRe   = regexp.MustCompile(`(?i)\b(if|unless|otherwise|in case)\b`)
	aggregationRe   = regexp.MustCompile(`(?i)\b(all|every|each|total|combine|aggregate)\b`)
)

// ErrDeclinedToDecompose is returned by Decompose when the AI did not
// produce a usable plan.
var ErrDeclinedToDecompose = errors.New("plan: AI declined to decompose")

// ShouldDecompose reports whether a task's text is worth decomposing,
// given its classified tier.
func ShouldDecompose(text string, tier models.Tier) bool {
	if tier == models.TierCritical {
		return true
	}
	if tier == models.TierComplex {
		matches := 0
		for _, re := range []*regexp.Regexp{multiEntityRe, multiStepRe, researchVerbRe, multiPlatformRe, conditionalRe, aggregationRe} {
			if re.MatchString(text) {
				matches++
			}
		}
		return matches >= 2
	}
	if tier == models.TierModerate {
		return multiStepRe.MatchString(text) && multiEntityRe.MatchString(text)
	}
	return false
}

// planResponse is the JSON schema the AI is asked to emit.
type planResponse struct {
	Goal                string `json:"goal"`
	EstimatedComplexity string `json:"estimatedComplexity"`
	Steps               []struct {
		ID                  string   `json:"id"`
		Title               string   `json:"title"`
		Description         string   `json:"description"`
		RequiredTools       []string `json:"requiredTools"`
		RequiredSkills      []string `json:"requiredSkills"`
		DependsOn           []string `json:"dependsOn"`
		EstimatedIterations int      `json:"estimatedIterations"`
		CanParallelize      bool     `json:"canParallelize"`
		Type                string   `json:"type"`
	} `json:"steps"`
	SynthesisStep struct {
		Description string `json:"description"`
	} `json:"synthesisStep"`
}

// Decompose asks the AI to produce a step plan for task, then builds the
// dependency graph, topological execution order, and parallel waves.
// Returns ErrDeclinedToDecompose if the AI's response has no parseable
// steps.
func Decompose(ctx context.Context, taskDescription, agentContext string, call AICaller) (*Plan, error) {
	systemPrompt := "You are planning how to accomplish a task. Call generatePlan with a JSON plan: " +
		"{goal, estimatedComplexity, steps:[{id,title,description,requiredTools,requiredSkills,dependsOn,estimatedIterations,canParallelize,type}], synthesisStep:{description}}. " +
		"Use at most 6 steps; aim for 3-5 tool calls per step. Mark a step type \"human_input\" only if it genuinely requires a person."
	userPrompt := fmt.Sprintf("Task: %s\n\nContext:\n%s", taskDescription, agentContext)

	raw, err := call(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("plan: generatePlan call failed: %w", err)
	}

	var resp planResponse
	if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &resp); jsonErr != nil || len(resp.Steps) == 0 {
		return nil, ErrDeclinedToDecompose
	}

	steps := make([]Step, 0, len(resp.Steps))
	for i, s := range resp.Steps {
		if i >= maxPlanSteps {
			break
		}
		steps = append(steps, Step{
			ID: s.ID, Title: s.Title, Description: s.Description,
			RequiredTools: s.RequiredTools, RequiredSkills: s.RequiredSkills,
			DependsOn: s.DependsOn, EstimatedIterations: s.EstimatedIterations,
			CanParallelize: s.CanParallelize, Type: s.Type,
		})
	}
	if len(steps) < 2 {
		return nil, ErrDeclinedToDecompose
	}

	graph := make(map[string][]string, len(steps))
	for _, s := range steps {
		graph[s.ID] = s.DependsOn
	}
	order, err := topoSort(steps, graph)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	groups := parallelGroups(steps, graph)

	return &Plan{
		Goal:                resp.Goal,
		EstimatedComplexity: resp.EstimatedComplexity,
		Steps:               steps,
		SynthesisStep:       SynthesisStep{Description: resp.SynthesisStep.Description},
		DependencyGraph:     graph,
		ExecutionOrder:      order,
		ParallelGroups:      groups,
	}, nil
}

// extractJSON trims an AI response down to its outermost JSON object, in
// case the model wrapped it in prose or a code fence.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// topoSort returns steps in dependency order; errors on a cycle.
func topoSort(steps []Step, graph map[string][]string) ([]string, error) {
	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch visited[id] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("dependency cycle at step %q", id)
		}
		visited[id] = 1
		for _, dep := range graph[id] {
			if _, ok := graph[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		visited[id] = 2
		order = append(order, id)
		return nil
	}

	for _, s := range steps {
		if err := visit(s.ID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// parallelGroups buckets steps into waves: a step joins the earliest wave
// after all of its dependencies' waves.
func parallelGroups(steps []Step, graph map[string][]string) [][]string {
	wave := make(map[string]int, len(steps))
	var assign func(id string) int
	assign = func(id string) int {
		if w, ok := wave[id]; ok {
			return w
		}
		max := -1
		for _, dep := range graph[id] {
			if _, ok := graph[dep]; !ok {
				continue
			}
			if w := assign(dep); w > max {
				max = w
			}
		}
		w := max + 1
		wave[id] = w
		return w
	}

	maxWave := 0
	for _, s := range steps {
		if w := assign(s.ID); w > maxWave {
			maxWave = w
		}
	}

	groups := make([][]string, maxWave+1)
	for _, s := range steps {
		w := wave[s.ID]
		groups[w] = append(groups[w], s.ID)
	}
	return groups
}
