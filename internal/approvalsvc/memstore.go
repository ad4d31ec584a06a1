package approvalsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentrun/agentrun/pkg/models"
)

// MemoryStore is an in-memory Store, grounded on internal/agent/
// approval.go's MemoryApprovalStore mutex+map idiom.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]models.ApprovalRequest
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]models.ApprovalRequest)}
}

func (m *MemoryStore) Create(ctx context.Context, req models.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs[req.ID] = req
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (models.ApprovalRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.reqs[id]
	return req, ok, nil
}

func (m *MemoryStore) Update(ctx context.Context, req models.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reqs[req.ID]; !ok {
		return fmt.Errorf("approval request %s not found", req.ID)
	}
	m.reqs[req.ID] = req
	return nil
}

func (m *MemoryStore) ListPending(ctx context.Context, agentID string) ([]models.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ApprovalRequest
	for _, req := range m.reqs {
		if req.Status != models.ApprovalStatusPending {
			continue
		}
		if agentID != "" && req.AgentID != agentID {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

func (m *MemoryStore) ListAllPending(ctx context.Context) ([]models.ApprovalRequest, error) {
	return m.ListPending(ctx, "")
}

func (m *MemoryStore) ListPendingForContact(ctx context.Context, masterContactID string) ([]models.ApprovalRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ApprovalRequest
	for _, req := range m.reqs {
		if req.Status == models.ApprovalStatusPending && req.MasterContactID == masterContactID {
			out = append(out, req)
		}
	}
	return out, nil
}

// InMemoryScopeStore is a test/small-deployment ScopeStore.
type InMemoryScopeStore struct {
	mu       sync.RWMutex
	byPlat   map[string]ContactScope // agentID+":"+platformAccountID
	defaults map[string]ContactScope // agentID
}

func NewInMemoryScopeStore() *InMemoryScopeStore {
	return &InMemoryScopeStore{byPlat: make(map[string]ContactScope), defaults: make(map[string]ContactScope)}
}

func (s *InMemoryScopeStore) SetScope(agentID, platformAccountID string, scope ContactScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPlat[agentID+":"+platformAccountID] = scope
}

func (s *InMemoryScopeStore) SetDefaultScope(agentID string, scope ContactScope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults[agentID] = scope
}

func (s *InMemoryScopeStore) ScopeFor(ctx context.Context, agentID, platformAccountID string) (ContactScope, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.byPlat[agentID+":"+platformAccountID]
	return scope, ok, nil
}

func (s *InMemoryScopeStore) DefaultScope(ctx context.Context, agentID string) (ContactScope, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scope, ok := s.defaults[agentID]
	return scope, ok, nil
}

// InMemoryContactStore is a test/small-deployment ContactStore.
type InMemoryContactStore struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewInMemoryContactStore() *InMemoryContactStore {
	return &InMemoryContactStore{contacts: make(map[string]Contact)}
}

func (s *InMemoryContactStore) Put(c Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

func (s *InMemoryContactStore) Contact(ctx context.Context, contactID string) (Contact, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[contactID]
	return c, ok, nil
}
