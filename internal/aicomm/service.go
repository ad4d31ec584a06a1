package aicomm

import (
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/agentrun/pkg/models"
)

// Service implements AIToCommunication.
type Service struct {
	store  Store
	users  SameUserChecker
	now    func() time.Time
	nextID func() string
}

// New constructs a Service. idGen is injected so tests can supply a
// deterministic generator; uuid.NewString is used if nil.
func New(store Store, users SameUserChecker, idGen func() string) *Service {
	s := &Service{store: store, users: users, now: time.Now, nextID: idGen}
	if s.nextID == nil {
		s.nextID = uuid.NewString
	}
	return s
}

// Send creates a new message, routes it through a thread (creating one
// if none exists for this participant set/task), and marks it delivered
// before returning.
func (s *Service) Send(in SendInput) (models.AgentMessage, error) {
	userID, same, err := s.users.SameUser(in.SenderID, in.ReceiverID)
	if err != nil {
		return models.AgentMessage{}, err
	}
	if !same {
		return models.AgentMessage{}, ErrDifferentUsers
	}

	thread, err := s.resolveThread(userID, []string{in.SenderID, in.ReceiverID}, in.TaskID)
	if err != nil {
		return models.AgentMessage{}, err
	}

	now := s.now()
	msg := models.AgentMessage{
		ID:         s.nextID(),
		UserID:     userID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Type:       in.Type,
		Subject:    in.Subject,
		Content:    in.Content,
		Metadata:   in.Metadata,
		ThreadID:   thread.ID,
		Priority:   in.Priority,
		Status:     models.AgentMsgPending,
		TaskID:     in.TaskID,
		DeadlineAt: in.DeadlineAt,
		ExpiresAt:  in.ExpiresAt,
		CreatedAt:  now,
	}
	created, err := s.store.CreateMessage(msg)
	if err != nil {
		return models.AgentMessage{}, err
	}

	created.Status = models.AgentMsgDelivered
	if err := s.store.UpdateMessage(created); err != nil {
		return models.AgentMessage{}, err
	}

	thread.LastMessageAt = now
	thread.MessageCount++
	if err := s.store.UpdateThread(thread); err != nil {
		return models.AgentMessage{}, err
	}

	return created, nil
}

func (s *Service) resolveThread(userID string, participantIDs []string, taskID string) (models.AgentThread, error) {
	key := models.ThreadKey(participantIDs, taskID)
	if thread, ok, err := s.store.ThreadByKey(userID, key); err != nil {
		return models.AgentThread{}, err
	} else if ok {
		return thread, nil
	}

	now := s.now()
	thread := models.AgentThread{
		ID:             s.nextID(),
		UserID:         userID,
		ParticipantKey: key,
		ParticipantIDs: participantIDs,
		TaskID:         taskID,
		IsActive:       true,
		LastMessageAt:  now,
		CreatedAt:      now,
	}
	if taskID != "" {
		thread.ThreadType = "task"
	}
	return s.store.CreateThread(thread)
}

// Reply sends a response in the same thread as the original message and
// marks the original responded.
func (s *Service) Reply(originalID, senderID, content string, metadata map[string]any) (models.AgentMessage, error) {
	original, err := s.store.GetMessage(originalID)
	if err != nil {
		return models.AgentMessage{}, err
	}
	switch original.Status {
	case models.AgentMsgFailed, models.AgentMsgExpired:
		return models.AgentMessage{}, ErrNotReplyable
	}

	reply, err := s.Send(SendInput{
		SenderID:   senderID,
		ReceiverID: original.SenderID,
		Type:       models.MsgResponse,
		Content:    content,
		Metadata:   metadata,
		Priority:   original.Priority,
		TaskID:     original.TaskID,
	})
	if err != nil {
		return models.AgentMessage{}, err
	}
	reply.ThreadID = original.ThreadID
	reply.ReplyTo = original.ID
	if err := s.store.UpdateMessage(reply); err != nil {
		return models.AgentMessage{}, err
	}

	now := s.now()
	original.Status = models.AgentMsgResponded
	original.RespondedAt = &now
	if err := s.store.UpdateMessage(original); err != nil {
		return models.AgentMessage{}, err
	}

	return reply, nil
}

// Acknowledge marks a message acknowledged by its receiver.
func (s *Service) Acknowledge(id string) error {
	msg, err := s.store.GetMessage(id)
	if err != nil {
		return err
	}
	now := s.now()
	msg.Status = models.AgentMsgAcknowledged
	msg.AcknowledgedAt = &now
	return s.store.UpdateMessage(msg)
}

// MarkRead marks a message read by its receiver.
func (s *Service) MarkRead(id string) error {
	msg, err := s.store.GetMessage(id)
	if err != nil {
		return err
	}
	msg.Status = models.AgentMsgRead
	return s.store.UpdateMessage(msg)
}

func matchesFilter(msg models.AgentMessage, filter InboxFilter) bool {
	if filter.HasStatus && msg.Status != filter.Status {
		return false
	}
	if filter.HasType && msg.Type != filter.Type {
		return false
	}
	if filter.HasTaskID && msg.TaskID != filter.TaskID {
		return false
	}
	return true
}

func filterAll(msgs []models.AgentMessage, filter InboxFilter) []models.AgentMessage {
	out := make([]models.AgentMessage, 0, len(msgs))
	for _, m := range msgs {
		if matchesFilter(m, filter) {
			out = append(out, m)
		}
	}
	return out
}

// Inbox returns messages received by agentID, most recent first.
func (s *Service) Inbox(userID, agentID string, filter InboxFilter) ([]models.AgentMessage, error) {
	msgs, err := s.store.Inbox(userID, agentID)
	if err != nil {
		return nil, err
	}
	return filterAll(msgs, filter), nil
}

// Sent returns messages sent by agentID.
func (s *Service) Sent(userID, agentID string, filter InboxFilter) ([]models.AgentMessage, error) {
	msgs, err := s.store.Sent(userID, agentID)
	if err != nil {
		return nil, err
	}
	return filterAll(msgs, filter), nil
}

// All returns every message agentID sent or received.
func (s *Service) All(userID, agentID string, filter InboxFilter) ([]models.AgentMessage, error) {
	msgs, err := s.store.All(userID, agentID)
	if err != nil {
		return nil, err
	}
	return filterAll(msgs, filter), nil
}

// UnreadCount counts inbox messages still in pending or delivered status.
func (s *Service) UnreadCount(userID, agentID string) (int, error) {
	msgs, err := s.store.Inbox(userID, agentID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range msgs {
		if m.Status == models.AgentMsgPending || m.Status == models.AgentMsgDelivered {
			count++
		}
	}
	return count, nil
}
