// Package cost implements per-agent usage accounting and daily budget
// enforcement, grounded on internal/status's pricing-table and cost-summary
// idiom, adapted from a per-call estimate into a persistent running tracker
// with threshold notifications.
package cost

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/agentrun/agentrun/pkg/models"
)

// Pricing is a (input, output) USD-per-million-tokens pair.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// DefaultFallback is used when no substring in the pricing table matches
// the model name.
var DefaultFallback = Pricing{InputPer1M: 1, OutputPer1M: 3}

// DefaultPricing is a substring-matched pricing table: the first key found
// as a substring of the (lowercased) model name wins.
var DefaultPricing = map[string]Pricing{
	"claude-3-5-sonnet": {InputPer1M: 3.0, OutputPer1M: 15.0},
	"claude-sonnet-4":   {InputPer1M: 3.0, OutputPer1M: 15.0},
	"claude-3-5-haiku":  {InputPer1M: 1.0, OutputPer1M: 5.0},
	"claude-3-opus":     {InputPer1M: 15.0, OutputPer1M: 75.0},
	"claude-opus-4":     {InputPer1M: 15.0, OutputPer1M: 75.0},
	"claude-3-haiku":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gpt-4o-mini":       {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4o":            {InputPer1M: 2.50, OutputPer1M: 10.0},
	"gpt-4-turbo":       {InputPer1M: 10.0, OutputPer1M: 30.0},
	"gpt-4":             {InputPer1M: 30.0, OutputPer1M: 60.0},
	"gpt-3.5-turbo":     {InputPer1M: 0.50, OutputPer1M: 1.50},
	"o1-mini":           {InputPer1M: 3.0, OutputPer1M: 12.0},
	"o1":                {InputPer1M: 15.0, OutputPer1M: 60.0},
	"gemini-1.5-flash":  {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash":  {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-1.5-pro":    {InputPer1M: 1.25, OutputPer1M: 5.0},
}

// zeroCostMarkers identify models that never incur cost: free-tier
// provider suffixes, local inference, and CLI-backed providers billed
// outside the token metering path.
var zeroCostMarkers = []string{":free", "ollama", "local", "cli"}

// PriceFor resolves pricing for a model name via substring match, falling
// back to DefaultFallback. Zero-cost markers take priority.
func PriceFor(model string) Pricing {
	lower := strings.ToLower(model)
	for _, marker := range zeroCostMarkers {
		if strings.Contains(lower, marker) {
			return Pricing{}
		}
	}
	for key, price := range DefaultPricing {
		if strings.Contains(lower, key) {
			return price
		}
	}
	return DefaultFallback
}

// ComputeCost returns the USD cost of a request given token counts.
func ComputeCost(inputTokens, outputTokens int, model string) float64 {
	price := PriceFor(model)
	return float64(inputTokens)/1_000_000*price.InputPer1M + float64(outputTokens)/1_000_000*price.OutputPer1M
}

// UsageInput is the argument to RecordUsage.
type UsageInput struct {
	AgentID        string
	UserID         string
	RequestType    string
	Provider       string
	Model          string
	InputTokens    int
	OutputTokens   int
	TaskID         string
	ConversationID string
	Source         string
}

// Notifier dispatches budget_warning/budget_exceeded notifications; the
// reasoning loop wires this to internal/notify's MasterNotificationService.
type Notifier interface {
	NotifyBudget(ctx context.Context, agentID string, kind models.NotificationType, usedFraction float64) error
}

// HierarchyLogger records a best-effort audit trail entry; failures here
// must never abort usage recording.
type HierarchyLogger interface {
	LogBudgetEvent(ctx context.Context, agentID, eventType string, usedFraction float64)
}

// ProfileStore is the minimal view of agent profiles the tracker needs:
// reading/writing daily_budget and daily_budget_used.
type ProfileStore interface {
	DailyBudget(agentID string) (budget, used float64, ok bool)
	IncrementBudgetUsed(agentID string, delta float64) (newUsed float64, err error)
}

// Tracker accumulates UsageLog rows in memory and enforces daily budgets.
// Real deployments back ProfileStore/Notifier/HierarchyLogger with
// persistent stores; the tracker itself holds only the usage log.
type Tracker struct {
	mu     sync.Mutex
	logs   []models.UsageLog
	crossed map[string]map[string]bool // agentID -> {"80","100"} -> already notified today

	profiles ProfileStore
	notifier Notifier
	hlog     HierarchyLogger
	now      func() time.Time
}

// New constructs a Tracker.
func New(profiles ProfileStore, notifier Notifier, hlog HierarchyLogger) *Tracker {
	return &Tracker{
		profiles: profiles,
		notifier: notifier,
		hlog:     hlog,
		crossed:  make(map[string]map[string]bool),
		now:      time.Now,
	}
}

// RecordUsage computes cost, appends a UsageLog row, increments the
// agent's daily_budget_used, and dispatches threshold notifications on
// 80%/100% crossings. Notification and hierarchy-log failures are
// best-effort and never surface as an error from RecordUsage.
func (t *Tracker) RecordUsage(ctx context.Context, in UsageInput) (models.UsageLog, error) {
	costUSD := ComputeCost(in.InputTokens, in.OutputTokens, in.Model)

	row := models.UsageLog{
		AgentID:        in.AgentID,
		UserID:         in.UserID,
		RequestType:    in.RequestType,
		Provider:       in.Provider,
		Model:          in.Model,
		InputTokens:    int64(in.InputTokens),
		OutputTokens:   int64(in.OutputTokens),
		TotalTokens:    int64(in.InputTokens + in.OutputTokens),
		CostUSD:        costUSD,
		TaskID:         in.TaskID,
		ConversationID: in.ConversationID,
		Source:         in.Source,
		CreatedAt:      t.now(),
	}

	t.mu.Lock()
	t.logs = append(t.logs, row)
	t.mu.Unlock()

	if t.profiles == nil {
		return row, nil
	}

	budget, _, ok := t.profiles.DailyBudget(in.AgentID)
	newUsed, err := t.profiles.IncrementBudgetUsed(in.AgentID, costUSD)
	if err != nil || !ok || budget <= 0 {
		return row, nil
	}

	fraction := newUsed / budget
	t.checkThreshold(ctx, in.AgentID, fraction)

	return row, nil
}

func (t *Tracker) checkThreshold(ctx context.Context, agentID string, fraction float64) {
	t.mu.Lock()
	seen, ok := t.crossed[agentID]
	if !ok {
		seen = make(map[string]bool)
		t.crossed[agentID] = seen
	}
	t.mu.Unlock()

	notify := func(key string, kind models.NotificationType) {
		t.mu.Lock()
		already := seen[key]
		if !already {
			seen[key] = true
		}
		t.mu.Unlock()
		if already {
			return
		}
		if t.notifier != nil {
			_ = t.notifier.NotifyBudget(ctx, agentID, kind, fraction)
		}
		if t.hlog != nil {
			t.hlog.LogBudgetEvent(ctx, agentID, string(kind), fraction)
		}
	}

	if fraction >= 1.0 {
		notify("100", models.NotifyBudgetExceeded)
	} else if fraction >= 0.8 {
		notify("80", models.NotifyBudgetWarning)
	}
}

// ResetDaily clears threshold-crossing memory for the new day; the caller
// is responsible for zeroing daily_budget_used on the profile itself.
func (t *Tracker) ResetDaily(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.crossed, agentID)
}

// Period selects a usage-summary window.
type Period struct {
	StartDate time.Time
	EndDate   time.Time
}

// Summary is the aggregate returned by GetUsageSummary.
type Summary struct {
	TotalCost    float64
	TotalTokens  int
	ByModel      map[string]float64
	ByType       map[string]float64
	DailyCost    map[string]float64 // "2006-01-02" -> cost
	RequestCount int
}

// GetUsageSummary aggregates usage rows for an agent within a period.
func (t *Tracker) GetUsageSummary(agentID string, p Period) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	sum := Summary{
		ByModel:   make(map[string]float64),
		ByType:    make(map[string]float64),
		DailyCost: make(map[string]float64),
	}
	for _, row := range t.logs {
		if row.AgentID != agentID {
			continue
		}
		if !p.StartDate.IsZero() && row.CreatedAt.Before(p.StartDate) {
			continue
		}
		if !p.EndDate.IsZero() && row.CreatedAt.After(p.EndDate) {
			continue
		}
		sum.TotalCost += row.CostUSD
		sum.TotalTokens += int(row.TotalTokens)
		sum.ByModel[row.Model] += row.CostUSD
		sum.ByType[row.RequestType] += row.CostUSD
		sum.DailyCost[row.CreatedAt.Format("2006-01-02")] += row.CostUSD
		sum.RequestCount++
	}
	return sum
}
