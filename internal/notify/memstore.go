package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrun/agentrun/pkg/models"
)

// MemoryStore is an in-memory Store, grounded on the same mutex+map
// idiom as internal/agent/approval.go's MemoryApprovalStore.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.MasterNotification
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]models.MasterNotification)}
}

func (m *MemoryStore) Create(ctx context.Context, n models.MasterNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[n.ID] = n
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, n models.MasterNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[n.ID]; !ok {
		return fmt.Errorf("notification %s not found", n.ID)
	}
	m.items[n.ID] = n
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (models.MasterNotification, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.items[id]
	return n, ok, nil
}

func (m *MemoryStore) Unread(ctx context.Context, agentID string) ([]models.MasterNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MasterNotification
	for _, n := range m.items {
		if n.AgentID == agentID && n.ReadAt == nil {
			out = append(out, n)
		}
	}
	return out, nil
}
