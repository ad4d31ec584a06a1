// Package notify implements the master notification fan-out: typed
// delivery of MasterNotification rows over whatever channel adapter is
// registered for the master contact's configured channel, with priority
// formatting and delivery-status tracking.
//
// Grounded on internal/channels's Registry/OutboundAdapter pattern — a
// notification is turned into a models.Message and handed to the same
// per-channel adapters (telegram, discord, slack, whatsapp) the inbound
// gateway already uses, so delivery reuses production-tested client code
// instead of a parallel SDK binding. Retries reuse internal/retry's
// backoff, the same idiom internal/recovery builds on.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/agentrun/internal/channels"
	"github.com/agentrun/agentrun/internal/retry"
	"github.com/agentrun/agentrun/pkg/models"
)

// Store persists MasterNotification rows.
type Store interface {
	Create(ctx context.Context, n models.MasterNotification) error
	Update(ctx context.Context, n models.MasterNotification) error
	Get(ctx context.Context, id string) (models.MasterNotification, bool, error)
	Unread(ctx context.Context, agentID string) ([]models.MasterNotification, error)
}

// OutboundResolver looks up the adapter registered for a channel type.
// internal/channels.Registry satisfies this directly.
type OutboundResolver interface {
	GetOutbound(channelType models.ChannelType) (channels.OutboundAdapter, bool)
}

// Service dispatches MasterNotification rows to their configured channel
// and tracks delivery status.
type Service struct {
	resolver OutboundResolver
	store    Store
	retry    retry.Config
	now      func() time.Time
}

// New constructs a Service. A zero retry.Config uses retry.DefaultConfig().
func New(resolver OutboundResolver, store Store, retryCfg retry.Config) *Service {
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Service{resolver: resolver, store: store, retry: retryCfg, now: time.Now}
}

// Notify queues, formats, and dispatches a notification, updating its
// delivery_status/delivery_attempts/sent_at in the store as it goes. The
// notification's ID and CreatedAt are populated if not already set.
func (s *Service) Notify(ctx context.Context, n models.MasterNotification) (models.MasterNotification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.Title = FormatTitle(n)
	n.Content = FormatContent(n)
	n.DeliveryStatus = models.DeliveryPending

	if err := s.store.Create(ctx, n); err != nil {
		return n, fmt.Errorf("queue notification: %w", err)
	}

	adapter, ok := s.resolver.GetOutbound(models.ChannelType(n.Channel))
	if !ok {
		n.DeliveryStatus = models.DeliveryFailed
		_ = s.store.Update(ctx, n)
		return n, fmt.Errorf("no outbound adapter registered for channel %q", n.Channel)
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		Channel:   models.ChannelType(n.Channel),
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   n.Content,
	}

	result := retry.Do(ctx, s.retry, func() error {
		n.DeliveryAttempts++
		return adapter.Send(ctx, msg)
	})

	if result.Err != nil {
		n.DeliveryStatus = models.DeliveryFailed
		_ = s.store.Update(ctx, n)
		return n, fmt.Errorf("deliver notification after %d attempts: %w", result.Attempts, result.Err)
	}

	sentAt := s.now()
	n.DeliveryStatus = models.DeliverySent
	n.SentAt = &sentAt
	if err := s.store.Update(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// MarkDelivered records a delivery receipt from the channel provider.
func (s *Service) MarkDelivered(ctx context.Context, id string) error {
	n, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	deliveredAt := s.now()
	n.DeliveryStatus = models.DeliveryDelivered
	n.DeliveredAt = &deliveredAt
	return s.store.Update(ctx, n)
}

// MarkRead records that the master contact has read a notification.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	n, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %s not found", id)
	}
	readAt := s.now()
	n.ReadAt = &readAt
	return s.store.Update(ctx, n)
}
