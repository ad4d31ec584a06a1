package aicomm

import (
	"sort"
	"sync"

	"github.com/agentrun/agentrun/pkg/models"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string]models.AgentMessage
	threads  map[string]models.AgentThread // keyed by userID+"|"+participantKey
	order    []string                       // message IDs, insertion order
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]models.AgentMessage),
		threads:  make(map[string]models.AgentThread),
	}
}

func threadMapKey(userID, participantKey string) string {
	return userID + "|" + participantKey
}

// CreateMessage stores a new message.
func (m *MemoryStore) CreateMessage(msg models.AgentMessage) (models.AgentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ID] = msg
	m.order = append(m.order, msg.ID)
	return msg, nil
}

// UpdateMessage overwrites a stored message.
func (m *MemoryStore) UpdateMessage(msg models.AgentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messages[msg.ID]; !ok {
		return ErrMessageNotFound
	}
	m.messages[msg.ID] = msg
	return nil
}

// GetMessage looks up a message by ID.
func (m *MemoryStore) GetMessage(id string) (models.AgentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return models.AgentMessage{}, ErrMessageNotFound
	}
	return msg, nil
}

// ThreadByKey looks up a thread by its participant key within a user.
func (m *MemoryStore) ThreadByKey(userID, key string) (models.AgentThread, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[threadMapKey(userID, key)]
	return thread, ok, nil
}

// CreateThread stores a new thread.
func (m *MemoryStore) CreateThread(thread models.AgentThread) (models.AgentThread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadMapKey(thread.UserID, thread.ParticipantKey)] = thread
	return thread, nil
}

// UpdateThread overwrites a stored thread.
func (m *MemoryStore) UpdateThread(thread models.AgentThread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadMapKey(thread.UserID, thread.ParticipantKey)] = thread
	return nil
}

func (m *MemoryStore) messagesInOrder() []models.AgentMessage {
	out := make([]models.AgentMessage, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.messages[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Inbox returns messages received by agentID.
func (m *MemoryStore) Inbox(userID, agentID string) ([]models.AgentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AgentMessage
	for _, msg := range m.messagesInOrder() {
		if msg.UserID == userID && msg.ReceiverID == agentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Sent returns messages sent by agentID.
func (m *MemoryStore) Sent(userID, agentID string) ([]models.AgentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AgentMessage
	for _, msg := range m.messagesInOrder() {
		if msg.UserID == userID && msg.SenderID == agentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

// All returns every message agentID sent or received.
func (m *MemoryStore) All(userID, agentID string) ([]models.AgentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AgentMessage
	for _, msg := range m.messagesInOrder() {
		if msg.UserID == userID && (msg.SenderID == agentID || msg.ReceiverID == agentID) {
			out = append(out, msg)
		}
	}
	return out, nil
}
