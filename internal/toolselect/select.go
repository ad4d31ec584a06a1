// Package toolselect decides which tool IDs are exposed to an agent for a
// given reasoning cycle.
package toolselect

import (
	"sort"

	"github.com/agentrun/agentrun/internal/tools/policy"
	"github.com/agentrun/agentrun/pkg/models"
)

// ToolDefinition describes one tool as exposed to the prompt builder.
type ToolDefinition struct {
	ID          string
	Description string
	Required    []string
	Optional    []string
	Category    string
}

// Catalog is the full, unfiltered universe of tool definitions the
// selector draws from, partitioned by the concern each rule in §4.3
// checks against.
type Catalog struct {
	AlwaysAvailable       []ToolDefinition
	AlwaysAvailableLight  []ToolDefinition // reduced baseline for trivial/simple tiers
	Orchestration         []ToolDefinition // orchestrate, createSpecialist
	OutboundByPlatform    map[string][]ToolDefinition
	LocalAgentTools       []ToolDefinition
	MobileAgentTools      []ToolDefinition
	CLIProviderTools      map[string][]ToolDefinition // providerID -> tools
	SkillGatedByCategory  map[models.SkillCategory]map[int][]ToolDefinition
}

// TriggerContext carries the live state the selector's rules consult.
type TriggerContext struct {
	OrchestrationDepth  int
	ActiveMonitoringSources []string // platform names
	ConnectedPlatforms      []string // platform names with a linked account
	LocalDevicesOnline      int
	PairedMobileDevices     int
	AuthenticatedCLIProviders []string
	SkillLevels             map[models.SkillCategory]int
}

// Selector implements the §4.3 ToolSelector rules.
type Selector struct {
	catalog  Catalog
	resolver *policy.Resolver
}

// New constructs a Selector over a catalog, with an optional policy
// resolver used for the final autonomy-permission filter.
func New(catalog Catalog, resolver *policy.Resolver) *Selector {
	return &Selector{catalog: catalog, resolver: resolver}
}

// Select returns the tool definitions exposed to the agent this cycle.
// pol is the agent's resolved autonomy/tool policy, applied as the final
// restriction pass; a nil policy skips that restriction.
func (s *Selector) Select(profile *models.AgenticProfile, tier models.Tier, tc TriggerContext, pol *policy.Policy) []ToolDefinition {
	var out []ToolDefinition
	seen := map[string]bool{}
	add := func(defs []ToolDefinition) {
		for _, d := range defs {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}

	if tier == models.TierTrivial || tier == models.TierSimple {
		add(s.catalog.AlwaysAvailableLight)
	} else {
		add(s.catalog.AlwaysAvailable)
	}

	if tc.OrchestrationDepth == 0 && profile.CanCreateChildren {
		add(s.catalog.Orchestration)
	}

	platformsNeedingOutbound := map[string]bool{}
	for _, p := range tc.ActiveMonitoringSources {
		platformsNeedingOutbound[p] = true
	}
	for _, p := range tc.ConnectedPlatforms {
		platformsNeedingOutbound[p] = true
	}
	platforms := make([]string, 0, len(platformsNeedingOutbound))
	for p := range platformsNeedingOutbound {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)
	for _, p := range platforms {
		add(s.catalog.OutboundByPlatform[p])
	}

	if tc.LocalDevicesOnline > 0 {
		add(s.catalog.LocalAgentTools)
	}
	if tc.PairedMobileDevices > 0 {
		add(s.catalog.MobileAgentTools)
	}

	cliProviders := append([]string(nil), tc.AuthenticatedCLIProviders...)
	sort.Strings(cliProviders)
	for _, p := range cliProviders {
		add(s.catalog.CLIProviderTools[p])
	}

	categories := make([]models.SkillCategory, 0, len(tc.SkillLevels))
	for cat := range tc.SkillLevels {
		categories = append(categories, cat)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, cat := range categories {
		level := tc.SkillLevels[cat]
		byLevel := s.catalog.SkillGatedByCategory[cat]
		for lvl := 1; lvl <= level; lvl++ {
			add(byLevel[lvl])
		}
	}

	return s.applyAutonomyFilter(out, pol)
}

// applyAutonomyFilter is the final restriction pass: tools explicitly
// denied by the agent's resolved policy are removed regardless of why
// they were added above.
func (s *Selector) applyAutonomyFilter(defs []ToolDefinition, pol *policy.Policy) []ToolDefinition {
	if s.resolver == nil || pol == nil {
		return defs
	}
	allowed := make([]ToolDefinition, 0, len(defs))
	for _, d := range defs {
		if s.resolver.IsAllowed(pol, d.ID) {
			allowed = append(allowed, d)
		}
	}
	return allowed
}
