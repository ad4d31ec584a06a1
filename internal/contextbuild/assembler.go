// Package contextbuild assembles the deterministic system prompt and
// trigger-specific user message fed to the AI router for each reasoning
// cycle.
package contextbuild

import (
	"fmt"
	"strings"

	"github.com/agentrun/agentrun/pkg/models"
)

// Trigger enumerates the kinds of events that can start a reasoning cycle.
type Trigger string

const (
	TriggerWakeUp         Trigger = "wake_up"
	TriggerEvent          Trigger = "event"
	TriggerSchedule       Trigger = "schedule"
	TriggerPeriodicThink  Trigger = "periodic_think"
	TriggerHeartbeat      Trigger = "heartbeat"
	TriggerApprovalResume Trigger = "approval_resume"
)

// EventKind further qualifies a TriggerEvent.
type EventKind string

const (
	EventIncomingMessage      EventKind = "incoming_message"
	EventTaskResponseReceived EventKind = "task_response_received"
	EventAgentStatusChanged   EventKind = "agent_status_changes"
	EventOrchestratedTask     EventKind = "orchestrated_task"
)

// FamiliarityBand is a coarse bucket describing how well the agent knows a
// sender, derived from interaction count.
type FamiliarityBand string

const (
	FamiliarityNew         FamiliarityBand = "new"
	FamiliarityDeveloping  FamiliarityBand = "developing"
	FamiliarityEstablished FamiliarityBand = "established"
	FamiliarityDeep        FamiliarityBand = "deep"
)

// Familiarity buckets interaction counts into a band with tone guidance.
func Familiarity(interactionCount int) (FamiliarityBand, string) {
	switch {
	case interactionCount <= 1:
		return FamiliarityNew, "introduce yourself briefly and confirm understanding before acting"
	case interactionCount < 10:
		return FamiliarityDeveloping, "friendly but still confirm ambiguous requests"
	case interactionCount < 50:
		return FamiliarityEstablished, "direct and familiar tone, skip routine confirmations"
	default:
		return FamiliarityDeep, "fully familiar tone, anticipate routine needs"
	}
}

// AgentContext is the subset of an AgenticProfile's live state needed to
// render the "agent context" section.
type AgentContext struct {
	ActiveGoals      []string
	Skills           []models.Skill
	TeamSize         int
	ActiveTasks      []models.AgenticTask
	CompletedTasks   []models.AgenticTask
	ActiveSchedules  []models.AgenticSchedule
	MonitoringSources []string
	KnowledgeLibraries []KnowledgeLibrary
	MasterDisplayName string
	MasterChannel     string
	InteractionCount  int
}

// KnowledgeLibrary is a named RAG collection the agent may consult.
type KnowledgeLibrary struct {
	ID   string
	Name string
}

// LocalAgentDescriptor describes a connected device running local tools.
type LocalAgentDescriptor struct {
	Name         string
	Online       bool
	Tools        []string
	Capabilities []string
	MCPServers   []string
}

// MobileAgentDescriptor describes a paired phone.
type MobileAgentDescriptor struct {
	Name        string
	Online      bool
	BatteryPct  int
	HasGPS      bool
	Connectivity string
}

// Memory is a single recalled snippet for the "recent memories" section.
type Memory struct {
	Content string
	Score   float64
}

// BuildInput bundles everything the assembler needs for one cycle.
type BuildInput struct {
	Personality    string
	Agent          AgentContext
	ToolLines      []string // "id(required, [optional]) - description" per tool
	Tier           models.Tier
	LocalAgents    []LocalAgentDescriptor
	MobileAgents   []MobileAgentDescriptor
	RecentMemories []Memory

	Trigger        Trigger
	EventKind      EventKind
	TriggerContext TriggerContext
}

// TriggerContext holds the per-trigger fields the user message builder
// consults; all fields are optional.
type TriggerContext struct {
	SenderName        string
	SenderIsMaster    bool
	QuotedContent     string
	RawMessage        string
	HistoryWindow     []string
	LastTaskStatus    string // "completed" | "pending" | ""
	IntentHint        string // "new_intent" | "acknowledgement" | "possible_followup"
	IsMediaOnly       bool
	ApprovalToolResult string
	CustomPrompt      string
}

// Assembler builds the system prompt and user message for one cycle.
type Assembler struct{}

// New constructs an Assembler.
func New() *Assembler { return &Assembler{} }

// Output is the built prompt pair.
type Output struct {
	SystemPrompt string
	UserMessage  string
}

// Build renders the deterministic-order system prompt and the
// trigger-specific user message.
func (a *Assembler) Build(in BuildInput) Output {
	return Output{
		SystemPrompt: a.buildSystemPrompt(in),
		UserMessage:  a.buildUserMessage(in),
	}
}

func (a *Assembler) buildSystemPrompt(in BuildInput) string {
	var sections []string

	if p := strings.TrimSpace(in.Personality); p != "" {
		sections = append(sections, p)
	}

	sections = append(sections, a.agentContextSection(in.Agent))

	if mem := a.memorySection(in.RecentMemories, in.TriggerContext.IsMediaOnly); mem != "" {
		sections = append(sections, mem)
	}

	sections = append(sections, a.toolsSection(in.ToolLines, in.Tier))

	if local := a.localAgentsSection(in.LocalAgents); local != "" {
		sections = append(sections, local)
	}

	if mobile := a.mobileAgentsSection(in.MobileAgents); mobile != "" {
		sections = append(sections, mobile)
	}

	return strings.Join(sections, "\n\n")
}

func (a *Assembler) agentContextSection(ctx AgentContext) string {
	var b strings.Builder
	b.WriteString("Agent context:\n")
	if len(ctx.ActiveGoals) > 0 {
		fmt.Fprintf(&b, "- Active goals: %s\n", strings.Join(ctx.ActiveGoals, "; "))
	}
	if len(ctx.Skills) > 0 {
		var lines []string
		for _, s := range ctx.Skills {
			lines = append(lines, fmt.Sprintf("%s (level %d)", s.Category, s.CurrentLevel))
		}
		fmt.Fprintf(&b, "- Skills: %s\n", strings.Join(lines, ", "))
	}
	fmt.Fprintf(&b, "- Team size: %d\n", ctx.TeamSize)
	if len(ctx.ActiveTasks) > 0 {
		var lines []string
		for _, t := range ctx.ActiveTasks {
			lines = append(lines, fmt.Sprintf("[%s] %s (%s)", t.ID, t.Title, t.Status))
		}
		fmt.Fprintf(&b, "- Active tasks (use the bracketed ID to update): %s\n", strings.Join(lines, "; "))
	}
	if len(ctx.CompletedTasks) > 0 {
		var lines []string
		for _, t := range ctx.CompletedTasks {
			lines = append(lines, fmt.Sprintf("[%s] %s", t.ID, t.Title))
		}
		fmt.Fprintf(&b, "- Completed tasks: %s\n", strings.Join(lines, "; "))
	}
	if len(ctx.ActiveSchedules) > 0 {
		fmt.Fprintf(&b, "- Active schedules: %d\n", len(ctx.ActiveSchedules))
	}
	if len(ctx.MonitoringSources) > 0 {
		fmt.Fprintf(&b, "- Monitoring sources: %s\n", strings.Join(ctx.MonitoringSources, ", "))
	}
	if len(ctx.KnowledgeLibraries) > 0 {
		var lines []string
		for _, k := range ctx.KnowledgeLibraries {
			lines = append(lines, fmt.Sprintf("[%s] %s", k.ID, k.Name))
		}
		fmt.Fprintf(&b, "- Knowledge libraries (prefer internal RAG before web search): %s\n", strings.Join(lines, "; "))
	}
	if ctx.MasterDisplayName != "" {
		fmt.Fprintf(&b, "- Master contact: %s via %s\n", ctx.MasterDisplayName, ctx.MasterChannel)
	}
	band, guidance := Familiarity(ctx.InteractionCount)
	fmt.Fprintf(&b, "- Familiarity with current sender: %s (%s)\n", band, guidance)
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) memorySection(memories []Memory, mediaOnly bool) string {
	if mediaOnly || len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent memories:\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%.2f] %s\n", m.Score, truncate(m.Content, 200))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) toolsSection(toolLines []string, tier models.Tier) string {
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, l := range toolLines {
		fmt.Fprintf(&b, "- %s\n", l)
	}
	b.WriteString("\nOutput format: emit exactly one tool call per response as a fenced ```tool block containing ")
	b.WriteString(`{"action":"<toolId>","params":{...},"reasoning":"..."}`)
	b.WriteString(".\n")
	switch tier {
	case models.TierTrivial, models.TierSimple:
		b.WriteString("This is a low-complexity request: prefer the fewest tool calls that fully answer it.")
	case models.TierCritical:
		b.WriteString("This is a high-stakes request: verify results before responding and prefer read-before-write.")
	default:
		b.WriteString("Use as many tool calls as needed, but avoid repeating a tool call with the same parameters.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) localAgentsSection(agents []LocalAgentDescriptor) string {
	if len(agents) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Local Agents (connected devices):\n")
	for _, d := range agents {
		status := "offline"
		if d.Online {
			status = "online"
		}
		fmt.Fprintf(&b, "- %s (%s): tools=%s capabilities=%s mcp=%s\n",
			d.Name, status, strings.Join(d.Tools, ","), strings.Join(d.Capabilities, ","), strings.Join(d.MCPServers, ","))
	}
	b.WriteString("Prefer executeOnLocalAgent for device-local work (files, screen, installed apps); use server-side tools otherwise.")
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) mobileAgentsSection(agents []MobileAgentDescriptor) string {
	if len(agents) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Mobile Agents (paired phones):\n")
	for _, d := range agents {
		status := "offline"
		if d.Online {
			status = fmt.Sprintf("online, battery %d%%, gps=%v", d.BatteryPct, d.HasGPS)
		}
		fmt.Fprintf(&b, "- %s (%s)\n", d.Name, status)
	}
	b.WriteString("Use SMS/notification query tools to reach these devices.")
	return strings.TrimRight(b.String(), "\n")
}

func (a *Assembler) buildUserMessage(in BuildInput) string {
	switch in.Trigger {
	case TriggerEvent:
		if in.EventKind == EventIncomingMessage {
			return a.incomingMessageUserMessage(in.TriggerContext)
		}
		return fmt.Sprintf("Event: %s", in.EventKind)
	case TriggerSchedule:
		if in.TriggerContext.CustomPrompt != "" {
			return in.TriggerContext.CustomPrompt
		}
		return "Scheduled run triggered."
	case TriggerApprovalResume:
		msg := "The previously queued tool has been approved and executed."
		if in.TriggerContext.ApprovalToolResult != "" {
			msg += " Result: " + in.TriggerContext.ApprovalToolResult
		}
		return msg
	case TriggerPeriodicThink:
		return "Periodic reflection cycle: review your state and decide if any proactive action is warranted."
	case TriggerHeartbeat:
		return "Heartbeat check: confirm you are healthy and report anything that needs attention."
	case TriggerWakeUp:
		return "You have been woken up. Review pending work and decide on next actions."
	default:
		return ""
	}
}

func (a *Assembler) incomingMessageUserMessage(tc TriggerContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sender: %s", tc.SenderName)
	if tc.SenderIsMaster {
		b.WriteString(" (this is your master contact)")
	}
	b.WriteString("\n")

	if tc.QuotedContent != "" {
		fmt.Fprintf(&b, "Replying to: %s\n", truncate(tc.QuotedContent, 200))
	}

	if len(tc.HistoryWindow) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, h := range tc.HistoryWindow {
			fmt.Fprintf(&b, "  %s\n", h)
		}
	}

	if tc.LastTaskStatus != "" || tc.IntentHint != "" {
		fmt.Fprintf(&b, "Task state: last_task=%s intent=%s\n", tc.LastTaskStatus, tc.IntentHint)
	}

	if tc.IsMediaOnly {
		b.WriteString("Message contains media: download/transcribe/describe it with the appropriate tool, then respond.\n")
	} else {
		fmt.Fprintf(&b, "Message: %s\n", tc.RawMessage)
	}

	if tc.ApprovalToolResult != "" {
		fmt.Fprintf(&b, "Note: a previously queued approval has already executed. Result: %s\n", tc.ApprovalToolResult)
	}

	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
