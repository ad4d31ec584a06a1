package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentrun/agentrun/internal/channels"
	"github.com/agentrun/agentrun/internal/retry"
	"github.com/agentrun/agentrun/pkg/models"
)

type fakeAdapter struct {
	failures int
	calls    []*models.Message
}

func (f *fakeAdapter) Send(ctx context.Context, msg *models.Message) error {
	f.calls = append(f.calls, msg)
	if len(f.calls) <= f.failures {
		return errors.New("transient send failure")
	}
	return nil
}

type fakeResolver struct {
	adapters map[models.ChannelType]channels.OutboundAdapter
}

func (f *fakeResolver) GetOutbound(channelType models.ChannelType) (channels.OutboundAdapter, bool) {
	a, ok := f.adapters[channelType]
	return a, ok
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}
}

func TestNotifyDeliversAndMarksSent(t *testing.T) {
	adapter := &fakeAdapter{}
	resolver := &fakeResolver{adapters: map[models.ChannelType]channels.OutboundAdapter{models.ChannelTelegram: adapter}}
	store := NewMemoryStore()
	svc := New(resolver, store, fastRetry())

	n := models.MasterNotification{AgentID: "a1", Type: models.NotifyCriticalError, Title: "Down", Content: "agent crashed", Channel: string(models.ChannelTelegram)}
	sent, err := svc.Notify(context.Background(), n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adapter.calls) != 1 {
		t.Fatalf("expected one send call, got %d", len(adapter.calls))
	}
	if sent.ID == "" {
		t.Fatalf("expected an assigned ID")
	}

	saved, ok, _ := store.Get(context.Background(), sent.ID)
	if !ok || saved.DeliveryStatus != models.DeliverySent {
		t.Fatalf("expected stored notification marked sent, got %+v ok=%v", saved, ok)
	}
}

func TestNotifyRetriesOnTransientFailure(t *testing.T) {
	adapter := &fakeAdapter{failures: 1}
	resolver := &fakeResolver{adapters: map[models.ChannelType]channels.OutboundAdapter{models.ChannelSlack: adapter}}
	store := NewMemoryStore()
	svc := New(resolver, store, fastRetry())

	n := models.MasterNotification{ID: "n1", AgentID: "a1", Type: models.NotifyDailyReport, Title: "Report", Content: "...", Channel: string(models.ChannelSlack)}
	if _, err := svc.Notify(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(adapter.calls) != 2 {
		t.Fatalf("expected 2 attempts (1 failure then success), got %d", len(adapter.calls))
	}

	saved, _, _ := store.Get(context.Background(), "n1")
	if saved.DeliveryStatus != models.DeliverySent {
		t.Fatalf("expected sent status, got %v", saved.DeliveryStatus)
	}
	if saved.DeliveryAttempts != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", saved.DeliveryAttempts)
	}
}

func TestNotifyMarksFailedWhenNoAdapterRegistered(t *testing.T) {
	resolver := &fakeResolver{adapters: map[models.ChannelType]channels.OutboundAdapter{}}
	store := NewMemoryStore()
	svc := New(resolver, store, fastRetry())

	n := models.MasterNotification{ID: "n2", AgentID: "a1", Type: models.NotifyTest, Channel: "carrier_pigeon"}
	if _, err := svc.Notify(context.Background(), n); err == nil {
		t.Fatalf("expected an error when no adapter is registered")
	}
	saved, _, _ := store.Get(context.Background(), "n2")
	if saved.DeliveryStatus != models.DeliveryFailed {
		t.Fatalf("expected failed status, got %v", saved.DeliveryStatus)
	}
}

func TestNotifyMarksFailedAfterExhaustingRetries(t *testing.T) {
	adapter := &fakeAdapter{failures: 10}
	resolver := &fakeResolver{adapters: map[models.ChannelType]channels.OutboundAdapter{models.ChannelDiscord: adapter}}
	store := NewMemoryStore()
	svc := New(resolver, store, fastRetry())

	n := models.MasterNotification{ID: "n3", AgentID: "a1", Type: models.NotifyTaskCompleted, Channel: string(models.ChannelDiscord)}
	if _, err := svc.Notify(context.Background(), n); err == nil {
		t.Fatalf("expected delivery to fail after exhausting retries")
	}
	saved, _, _ := store.Get(context.Background(), "n3")
	if saved.DeliveryStatus != models.DeliveryFailed {
		t.Fatalf("expected failed status, got %v", saved.DeliveryStatus)
	}
}

func TestMarkDeliveredAndMarkRead(t *testing.T) {
	store := NewMemoryStore()
	resolver := &fakeResolver{adapters: map[models.ChannelType]channels.OutboundAdapter{}}
	svc := New(resolver, store, fastRetry())
	_ = store.Create(context.Background(), models.MasterNotification{ID: "n4", DeliveryStatus: models.DeliverySent})

	if err := svc.MarkDelivered(context.Background(), "n4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.MarkRead(context.Background(), "n4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, _, _ := store.Get(context.Background(), "n4")
	if saved.DeliveryStatus != models.DeliveryDelivered || saved.DeliveredAt == nil || saved.ReadAt == nil {
		t.Fatalf("unexpected final state: %+v", saved)
	}
}

func TestFormatTitleAddsUrgencyPrefixForCriticalTypes(t *testing.T) {
	n := models.MasterNotification{Type: models.NotifyBudgetExceeded, Title: "Budget"}
	got := FormatTitle(n)
	if got == n.Title {
		t.Fatalf("expected urgent prefix to be applied, got %q", got)
	}
}

func TestPriorityRanksKnownTypes(t *testing.T) {
	cases := map[models.NotificationType]string{
		models.NotifyCriticalError:  "urgent",
		models.NotifyBudgetExceeded: "urgent",
		models.NotifyApprovalNeeded: "high",
		models.NotifyBudgetWarning:  "normal",
		models.NotifyTest:           "low",
	}
	for typ, want := range cases {
		if got := Priority(typ); got != want {
			t.Errorf("Priority(%v) = %q, want %q", typ, got, want)
		}
	}
}
