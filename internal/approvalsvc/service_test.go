package approvalsvc

import (
	"context"
	"testing"
	"time"

	"github.com/agentrun/agentrun/pkg/models"
)

type fakeProfiles struct {
	profiles map[string]*models.AgenticProfile
}

func (f *fakeProfiles) Profile(ctx context.Context, agentID string) (*models.AgenticProfile, error) {
	return f.profiles[agentID], nil
}

type fakeNotifier struct {
	notifications []models.MasterNotification
}

func (f *fakeNotifier) Notify(ctx context.Context, n models.MasterNotification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

func newTestService(profiles map[string]*models.AgenticProfile) (*Service, *MemoryStore, *fakeNotifier) {
	store := NewMemoryStore()
	notifier := &fakeNotifier{}
	svc := New(store, &fakeProfiles{profiles: profiles}, notifier, NewInMemoryScopeStore(), NewInMemoryContactStore())
	return svc, store, notifier
}

func TestCreateApprovalRequiresMasterContact(t *testing.T) {
	svc, _, _ := newTestService(map[string]*models.AgenticProfile{
		"a1": {ID: "a1"},
	})
	_, err := svc.CreateApproval(context.Background(), CreateInput{AgentID: "a1", ActionType: "send_email"})
	if err == nil {
		t.Fatalf("expected error when master contact is not configured")
	}
}

func TestCreateApprovalComputesExpiryFromEscalationTimeout(t *testing.T) {
	svc, _, notifier := newTestService(map[string]*models.AgenticProfile{
		"a1": {ID: "a1", MasterContactID: "contact-1", EscalationTimeoutMin: 30},
	})
	req, err := svc.CreateApproval(context.Background(), CreateInput{AgentID: "a1", ActionType: "send_email", ActionTitle: "Send email"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != models.ApprovalStatusPending {
		t.Fatalf("expected pending status, got %v", req.Status)
	}
	if req.ExpiresAt.Sub(req.CreatedAt) < 29*time.Minute || req.ExpiresAt.Sub(req.CreatedAt) > 31*time.Minute {
		t.Fatalf("expected ~30m expiry window, got %v", req.ExpiresAt.Sub(req.CreatedAt))
	}

	time.Sleep(10 * time.Millisecond)
	if len(notifier.notifications) != 1 || notifier.notifications[0].Type != models.NotifyApprovalNeeded {
		t.Fatalf("expected one approval_needed notification, got %+v", notifier.notifications)
	}
}

func TestListPendingApprovalsOrdersByPriorityThenCreatedAtDesc(t *testing.T) {
	svc, store, _ := newTestService(map[string]*models.AgenticProfile{
		"a1": {ID: "a1", MasterContactID: "c1"},
	})
	now := time.Now()
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "low", AgentID: "a1", Priority: "low", Status: models.ApprovalStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "urgent", AgentID: "a1", Priority: "urgent", Status: models.ApprovalStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "normal-newer", AgentID: "a1", Priority: "normal", Status: models.ApprovalStatusPending, CreatedAt: now.Add(time.Minute), ExpiresAt: now.Add(time.Hour)})
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "normal-older", AgentID: "a1", Priority: "normal", Status: models.ApprovalStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})

	got, err := svc.ListPendingApprovals(context.Background(), "a1", 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"urgent", "normal-newer", "normal-older", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %q, got %q", i, id, got[i].ID)
		}
	}
}

func TestApproveActionRejectsNonPending(t *testing.T) {
	svc, store, _ := newTestService(nil)
	now := time.Now()
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r1", Status: models.ApprovalStatusApproved, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	_, err := svc.ApproveAction(context.Background(), "r1", "master", "", nil)
	if err != errNotPending {
		t.Fatalf("expected errNotPending, got %v", err)
	}
}

func TestApproveActionExpiresPastDeadline(t *testing.T) {
	svc, store, _ := newTestService(nil)
	past := time.Now().Add(-time.Hour)
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r1", Status: models.ApprovalStatusPending, CreatedAt: past.Add(-time.Hour), ExpiresAt: past})
	_, err := svc.ApproveAction(context.Background(), "r1", "master", "", nil)
	if err != errExpired {
		t.Fatalf("expected errExpired, got %v", err)
	}
	got, _, _ := store.Get(context.Background(), "r1")
	if got.Status != models.ApprovalStatusExpired {
		t.Fatalf("expected request transitioned to expired, got %v", got.Status)
	}
}

func TestRejectActionSetsResolutionNotes(t *testing.T) {
	svc, store, _ := newTestService(nil)
	now := time.Now()
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r1", Status: models.ApprovalStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	req, err := svc.RejectAction(context.Background(), "r1", "master", "too risky")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != models.ApprovalStatusRejected || req.ResolutionNotes != "too risky" {
		t.Fatalf("unexpected result: %+v", req)
	}
}

func TestProcessApprovalReplyApprovesMostRecentPending(t *testing.T) {
	svc, store, _ := newTestService(nil)
	now := time.Now()
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r1", MasterContactID: "contact-1", Status: models.ApprovalStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r2", MasterContactID: "contact-1", Status: models.ApprovalStatusPending, CreatedAt: now.Add(time.Minute), ExpiresAt: now.Add(time.Hour)})

	req, action, err := svc.ProcessApprovalReply(context.Background(), "contact-1", "approve", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ReplyApprove || req.ID != "r2" {
		t.Fatalf("expected approval of most recent pending r2, got action=%v req=%+v", action, req)
	}
}

func TestProcessApprovalReplyRejectWithIDAndReason(t *testing.T) {
	svc, store, _ := newTestService(nil)
	now := time.Now()
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r1", MasterContactID: "contact-1", Status: models.ApprovalStatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)})

	req, action, err := svc.ProcessApprovalReply(context.Background(), "contact-1", "reject #r1 not now", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if action != ReplyReject || req.ResolutionNotes != "not now" {
		t.Fatalf("unexpected reject result: action=%v req=%+v", action, req)
	}
}

func TestProcessApprovalReplyRejectsUnrecognizedGrammar(t *testing.T) {
	svc, _, _ := newTestService(nil)
	_, _, err := svc.ProcessApprovalReply(context.Background(), "contact-1", "hmm not sure", "user-1")
	if err == nil {
		t.Fatalf("expected grammar-mismatch error")
	}
}

func TestProcessExpiredApprovalsSweepsAndNotifies(t *testing.T) {
	svc, store, notifier := newTestService(nil)
	past := time.Now().Add(-time.Minute)
	_ = store.Create(context.Background(), models.ApprovalRequest{ID: "r1", Status: models.ApprovalStatusPending, CreatedAt: past.Add(-time.Hour), ExpiresAt: past})

	count, err := svc.ProcessExpiredApprovals(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired, got %d", count)
	}
	if len(notifier.notifications) != 1 {
		t.Fatalf("expected expiry notification, got %+v", notifier.notifications)
	}
}

func TestCheckContactScopeMasterContactAlwaysAllowed(t *testing.T) {
	svc, _, _ := newTestService(map[string]*models.AgenticProfile{
		"a1": {ID: "a1", MasterContactID: "contact-1"},
	})
	decision, err := svc.CheckContactScope(context.Background(), "a1", "contact-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected master contact always allowed")
	}
}

func TestCheckContactScopeTeamOnlyDefaultDeniesNonTeamContact(t *testing.T) {
	svc, _, _ := newTestService(map[string]*models.AgenticProfile{
		"a1": {ID: "a1", MasterContactID: "master", UserID: "u1"},
	})
	contacts := svc.contacts.(*InMemoryContactStore)
	contacts.Put(Contact{ID: "c2", UserID: "u1", IsTeamMember: false})

	decision, err := svc.CheckContactScope(context.Background(), "a1", "c2", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected team_only default to deny a non-team contact")
	}
}

func TestCheckContactScopeTagsIntersection(t *testing.T) {
	svc, _, _ := newTestService(map[string]*models.AgenticProfile{
		"a1": {ID: "a1", MasterContactID: "master", UserID: "u1"},
	})
	scopes := svc.scopes.(*InMemoryScopeStore)
	scopes.SetDefaultScope("a1", ContactScope{Type: ScopeContactsTags, AllowedTags: []string{"vip"}, NotifyOnOutOfScope: true})
	contacts := svc.contacts.(*InMemoryContactStore)
	contacts.Put(Contact{ID: "c3", UserID: "u1", Tags: []string{"vip", "family"}})
	contacts.Put(Contact{ID: "c4", UserID: "u1", Tags: []string{"stranger"}})

	allowed, err := svc.CheckContactScope(context.Background(), "a1", "c3", "")
	if err != nil || !allowed.Allowed {
		t.Fatalf("expected tagged contact allowed, got %+v err=%v", allowed, err)
	}

	denied, err := svc.CheckContactScope(context.Background(), "a1", "c4", "")
	if err != nil || denied.Allowed || !denied.RequiresApproval {
		t.Fatalf("expected untagged contact denied with requiresApproval, got %+v err=%v", denied, err)
	}
}
