package toolselect

import (
	"testing"

	"github.com/agentrun/agentrun/internal/tools/policy"
	"github.com/agentrun/agentrun/pkg/models"
)

func testCatalog() Catalog {
	return Catalog{
		AlwaysAvailable:      []ToolDefinition{{ID: "respond"}, {ID: "done"}, {ID: "searchWeb"}},
		AlwaysAvailableLight: []ToolDefinition{{ID: "respond"}, {ID: "done"}},
		Orchestration:        []ToolDefinition{{ID: "orchestrate"}, {ID: "createSpecialist"}},
		OutboundByPlatform: map[string][]ToolDefinition{
			"whatsapp": {{ID: "sendWhatsApp"}},
		},
		LocalAgentTools:  []ToolDefinition{{ID: "executeOnLocalAgent"}},
		MobileAgentTools: []ToolDefinition{{ID: "querySMS"}},
		CLIProviderTools: map[string][]ToolDefinition{
			"claude_code": {{ID: "promptClaudeCode"}},
		},
		SkillGatedByCategory: map[models.SkillCategory]map[int][]ToolDefinition{
			models.SkillAutomation: {
				1: {{ID: "basicAutomation"}},
				2: {{ID: "advancedAutomation"}},
			},
		},
	}
}

func TestSelectReducedBaselineForTrivialTier(t *testing.T) {
	sel := New(testCatalog(), nil)
	defs := sel.Select(&models.AgenticProfile{}, models.TierTrivial, TriggerContext{}, nil)
	for _, d := range defs {
		if d.ID == "searchWeb" {
			t.Fatalf("did not expect full tool set for trivial tier")
		}
	}
}

func TestSelectOrchestrationOnlyAtDepthZeroWithChildren(t *testing.T) {
	sel := New(testCatalog(), nil)
	profile := &models.AgenticProfile{CanCreateChildren: true}
	defs := sel.Select(profile, models.TierModerate, TriggerContext{OrchestrationDepth: 0}, nil)
	if !containsID(defs, "orchestrate") {
		t.Fatalf("expected orchestrate tool at depth 0 with CanCreateChildren")
	}

	defs = sel.Select(profile, models.TierModerate, TriggerContext{OrchestrationDepth: 1}, nil)
	if containsID(defs, "orchestrate") {
		t.Fatalf("did not expect orchestrate tool at depth > 0")
	}
}

func TestSelectOutboundToolsForMonitoredPlatform(t *testing.T) {
	sel := New(testCatalog(), nil)
	defs := sel.Select(&models.AgenticProfile{}, models.TierModerate, TriggerContext{
		ActiveMonitoringSources: []string{"whatsapp"},
	}, nil)
	if !containsID(defs, "sendWhatsApp") {
		t.Fatalf("expected sendWhatsApp tool for active monitoring source")
	}
}

func TestSelectSkillGatedToolsMonotonic(t *testing.T) {
	sel := New(testCatalog(), nil)
	defs := sel.Select(&models.AgenticProfile{}, models.TierModerate, TriggerContext{
		SkillLevels: map[models.SkillCategory]int{models.SkillAutomation: 2},
	}, nil)
	if !containsID(defs, "basicAutomation") || !containsID(defs, "advancedAutomation") {
		t.Fatalf("expected both level-1 and level-2 tools at skill level 2, got %+v", defs)
	}
}

func TestSelectAppliesPolicyFilter(t *testing.T) {
	resolver := policy.NewResolver()
	sel := New(testCatalog(), resolver)
	pol := &policy.Policy{Allow: []string{"respond", "done"}}
	defs := sel.Select(&models.AgenticProfile{}, models.TierModerate, TriggerContext{}, pol)
	if containsID(defs, "searchWeb") {
		t.Fatalf("expected searchWeb to be filtered out by restrictive policy")
	}
	if !containsID(defs, "respond") {
		t.Fatalf("expected respond to remain allowed")
	}
}

func containsID(defs []ToolDefinition, id string) bool {
	for _, d := range defs {
		if d.ID == id {
			return true
		}
	}
	return false
}
