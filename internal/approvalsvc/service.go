// Package approvalsvc implements the human-in-the-loop approval queue: the
// create/list/approve/reject lifecycle, per-platform contact-scope
// checking, and the APPROVE/REJECT reply grammar.
//
// Grounded on internal/agent/approval.go's MemoryApprovalStore (mutex+map
// store, TTL-bearing requests) generalized from a tool-call-approval store
// into the full ApprovalRequest lifecycle, and internal/gateway/
// approval_policy.go's config-layering idiom (policy built from a base plus
// overrides) adapted into the scope-cascade (platform-specific row, then
// default row).
package approvalsvc

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/agentrun/pkg/models"
)

// Store persists ApprovalRequest rows.
type Store interface {
	Create(ctx context.Context, req models.ApprovalRequest) error
	Get(ctx context.Context, id string) (models.ApprovalRequest, bool, error)
	Update(ctx context.Context, req models.ApprovalRequest) error
	ListPending(ctx context.Context, agentID string) ([]models.ApprovalRequest, error)
	ListAllPending(ctx context.Context) ([]models.ApprovalRequest, error)
	ListPendingForContact(ctx context.Context, masterContactID string) ([]models.ApprovalRequest, error)
}

// ProfileStore resolves the agent profile fields the approval flow needs:
// whether a master contact is configured, and the escalation timeout.
type ProfileStore interface {
	Profile(ctx context.Context, agentID string) (*models.AgenticProfile, error)
}

// Notifier dispatches the approval_needed master notification; best-effort.
type Notifier interface {
	Notify(ctx context.Context, n models.MasterNotification) error
}

var errPriorityRank = map[string]int{"urgent": 3, "high": 2, "normal": 1, "low": 0}

// Service implements the approval-queue contract from the component
// design: createApproval, listPendingApprovals, approveAction,
// rejectAction, checkContactScope, processApprovalReply,
// processExpiredApprovals.
type Service struct {
	store    Store
	profiles ProfileStore
	notifier Notifier
	scopes   ScopeStore
	contacts ContactStore
	now      func() time.Time
}

// New constructs a Service.
func New(store Store, profiles ProfileStore, notifier Notifier, scopes ScopeStore, contacts ContactStore) *Service {
	return &Service{store: store, profiles: profiles, notifier: notifier, scopes: scopes, contacts: contacts, now: time.Now}
}

// CreateInput is the argument to CreateApproval.
type CreateInput struct {
	AgentID           string
	UserID            string
	ActionType        string
	ActionTitle       string
	ActionDescription string
	ActionPayload     map[string]any
	TriggeredBy       string
	TriggerContext    map[string]any
	ConfidenceScore   float64
	Reasoning         string
	Priority          string
	ExpiresAt         *time.Time
}

// CreateApproval requires the agent to have a configured master contact,
// computes expires_at from the profile's escalation timeout when not
// given explicitly, and dispatches the approval_needed notification
// asynchronously (its failure must not block queuing the request).
func (s *Service) CreateApproval(ctx context.Context, in CreateInput) (models.ApprovalRequest, error) {
	profile, err := s.profiles.Profile(ctx, in.AgentID)
	if err != nil {
		return models.ApprovalRequest{}, fmt.Errorf("load profile: %w", err)
	}
	if !profile.HasMasterContact() {
		return models.ApprovalRequest{}, fmt.Errorf("agent %s has no master contact configured", in.AgentID)
	}

	expiresAt := s.now().Add(24 * time.Hour)
	if in.ExpiresAt != nil {
		expiresAt = *in.ExpiresAt
	} else if profile.EscalationTimeoutMin > 0 {
		expiresAt = s.now().Add(time.Duration(profile.EscalationTimeoutMin) * time.Minute)
	}

	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}

	req := models.ApprovalRequest{
		ID:                uuid.NewString(),
		AgentID:           in.AgentID,
		UserID:            in.UserID,
		ActionType:        in.ActionType,
		ActionTitle:       in.ActionTitle,
		ActionDescription: in.ActionDescription,
		ActionPayload:     in.ActionPayload,
		TriggeredBy:       in.TriggeredBy,
		TriggerContext:    in.TriggerContext,
		ConfidenceScore:   in.ConfidenceScore,
		Reasoning:         in.Reasoning,
		MasterContactID:   profile.MasterContactID,
		NotificationChannel: profile.MasterContactChannel,
		Status:            models.ApprovalStatusPending,
		Priority:          priority,
		ExpiresAt:         expiresAt,
		CreatedAt:         s.now(),
	}

	if err := s.store.Create(ctx, req); err != nil {
		return models.ApprovalRequest{}, err
	}

	if s.notifier != nil {
		go func() {
			_ = s.notifier.Notify(context.Background(), models.MasterNotification{
				ID:            uuid.NewString(),
				AgentID:       req.AgentID,
				UserID:        req.UserID,
				Type:          models.NotifyApprovalNeeded,
				Title:         req.ActionTitle,
				Content:       req.ActionDescription,
				Channel:       req.NotificationChannel,
				ReferenceType: "approval_request",
				ReferenceID:   req.ID,
				CreatedAt:     s.now(),
			})
		}()
	}

	return req, nil
}

// ListPendingApprovals returns pending requests ordered by
// (priority: urgent > high > normal > low, created_at DESC), paginated.
func (s *Service) ListPendingApprovals(ctx context.Context, agentID string, page, pageSize int) ([]models.ApprovalRequest, error) {
	reqs, err := s.store.ListPending(ctx, agentID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool {
		pi, pj := errPriorityRank[reqs[i].Priority], errPriorityRank[reqs[j].Priority]
		if pi != pj {
			return pi > pj
		}
		return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
	})

	if pageSize <= 0 {
		return reqs, nil
	}
	start := page * pageSize
	if start >= len(reqs) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(reqs) {
		end = len(reqs)
	}
	return reqs[start:end], nil
}

var errNotPending = fmt.Errorf("approval request is not pending")
var errExpired = fmt.Errorf("approval request has expired")

// ApproveAction transitions a pending, unexpired request to approved. A
// pending request found past its expires_at is first transitioned to
// expired, and the approval attempt fails.
func (s *Service) ApproveAction(ctx context.Context, id, resolvedBy, notes string, modifiedPayload map[string]any) (models.ApprovalRequest, error) {
	return s.resolve(ctx, id, models.ApprovalStatusApproved, resolvedBy, notes, modifiedPayload)
}

// RejectAction transitions a pending, unexpired request to rejected, with
// resolution_notes set to reason.
func (s *Service) RejectAction(ctx context.Context, id, resolvedBy, reason string) (models.ApprovalRequest, error) {
	return s.resolve(ctx, id, models.ApprovalStatusRejected, resolvedBy, reason, nil)
}

func (s *Service) resolve(ctx context.Context, id string, target models.ApprovalStatus, resolvedBy, notes string, modifiedPayload map[string]any) (models.ApprovalRequest, error) {
	req, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	if !ok {
		return models.ApprovalRequest{}, fmt.Errorf("approval request %s not found", id)
	}
	if req.Status != models.ApprovalStatusPending {
		return models.ApprovalRequest{}, errNotPending
	}

	now := s.now()
	if now.After(req.ExpiresAt) {
		req.Status = models.ApprovalStatusExpired
		_ = s.store.Update(ctx, req)
		return models.ApprovalRequest{}, errExpired
	}

	req.Status = target
	req.ResolvedBy = resolvedBy
	resolvedAt := now
	req.ResolvedAt = &resolvedAt
	req.ResolutionNotes = notes
	if modifiedPayload != nil {
		req.ModifiedPayload = modifiedPayload
	}

	if err := s.store.Update(ctx, req); err != nil {
		return models.ApprovalRequest{}, err
	}
	return req, nil
}

// ProcessExpiredApprovals sweeps pending requests past their deadline,
// transitioning them to expired and notifying.
func (s *Service) ProcessExpiredApprovals(ctx context.Context) (int, error) {
	reqs, err := s.store.ListAllPending(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	count := 0
	for _, req := range reqs {
		if !now.After(req.ExpiresAt) {
			continue
		}
		req.Status = models.ApprovalStatusExpired
		if err := s.store.Update(ctx, req); err != nil {
			continue
		}
		count++
		if s.notifier != nil {
			_ = s.notifier.Notify(ctx, models.MasterNotification{
				ID:            uuid.NewString(),
				AgentID:       req.AgentID,
				UserID:        req.UserID,
				Type:          models.NotifyApprovalNeeded,
				Title:         "Approval expired: " + req.ActionTitle,
				Channel:       req.NotificationChannel,
				ReferenceType: "approval_request",
				ReferenceID:   req.ID,
				CreatedAt:     now,
			})
		}
	}
	return count, nil
}

var (
	approveRe = regexp.MustCompile(`(?i)^\s*(approve|yes|ok|confirm)(?:\s+#?(\S+))?\s*$`)
	rejectRe  = regexp.MustCompile(`(?i)^\s*(reject|no|deny|decline)(?:\s+#?(\S+))?(?:\s+(.*))?\s*$`)
)

// ReplyAction is the outcome of parsing an approval reply.
type ReplyAction string

const (
	ReplyApprove ReplyAction = "approve"
	ReplyReject  ReplyAction = "reject"
)

// ProcessApprovalReply parses an APPROVE/REJECT free-text reply from a
// master contact and applies it. Without an explicit ID, the most recent
// pending approval for that contact is targeted.
func (s *Service) ProcessApprovalReply(ctx context.Context, masterContactID, message, userID string) (models.ApprovalRequest, ReplyAction, error) {
	message = strings.TrimSpace(message)

	var action ReplyAction
	var id, reason string

	if m := approveRe.FindStringSubmatch(message); m != nil {
		action = ReplyApprove
		id = m[2]
	} else if m := rejectRe.FindStringSubmatch(message); m != nil {
		action = ReplyReject
		id = m[2]
		reason = strings.TrimSpace(m[3])
	} else {
		return models.ApprovalRequest{}, "", fmt.Errorf("message does not match the approval reply grammar")
	}

	if id == "" {
		pending, err := s.store.ListPendingForContact(ctx, masterContactID)
		if err != nil {
			return models.ApprovalRequest{}, "", err
		}
		if len(pending) == 0 {
			return models.ApprovalRequest{}, "", fmt.Errorf("no pending approval for contact %s", masterContactID)
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.After(pending[j].CreatedAt) })
		id = pending[0].ID
	}

	switch action {
	case ReplyApprove:
		req, err := s.ApproveAction(ctx, id, masterContactID, "approved via reply", nil)
		return req, action, err
	default:
		req, err := s.RejectAction(ctx, id, masterContactID, reason)
		return req, action, err
	}
}

// ScopeType enumerates the per-platform contact-scope rule kinds.
type ScopeType string

const (
	ScopeUnrestricted     ScopeType = "unrestricted"
	ScopeAllUserContacts  ScopeType = "all_user_contacts"
	ScopeContactsWhitelist ScopeType = "contacts_whitelist"
	ScopeContactsTags     ScopeType = "contacts_tags"
	ScopeTeamOnly         ScopeType = "team_only"
)

// ContactScope is one platform-specific (or default) scope rule row.
type ContactScope struct {
	Type               ScopeType
	AllowedContactIDs  []string
	AllowedTags        []string
	AllowTeamMembers   bool
	NotifyOnOutOfScope bool
}

// ScopeStore resolves the scope cascade: a platform-specific row first,
// falling back to the agent's default row.
type ScopeStore interface {
	ScopeFor(ctx context.Context, agentID, platformAccountID string) (ContactScope, bool, error)
	DefaultScope(ctx context.Context, agentID string) (ContactScope, bool, error)
}

// Contact is the minimal contact view checkContactScope needs.
type Contact struct {
	ID           string
	UserID       string
	Tags         []string
	IsTeamMember bool
}

// ContactStore resolves a contact by ID.
type ContactStore interface {
	Contact(ctx context.Context, contactID string) (Contact, bool, error)
}

// ScopeDecision is the result of CheckContactScope.
type ScopeDecision struct {
	Allowed         bool
	RequiresApproval bool
}

// CheckContactScope implements the per-platform scope cascade: the master
// contact is always allowed; team members are allowed when the scope's
// AllowTeamMembers is set; otherwise the scope type decides. When not
// allowed, RequiresApproval mirrors notify_on_out_of_scope.
func (s *Service) CheckContactScope(ctx context.Context, agentID, contactID, platformAccountID string) (ScopeDecision, error) {
	profile, err := s.profiles.Profile(ctx, agentID)
	if err != nil {
		return ScopeDecision{}, err
	}
	if profile != nil && profile.MasterContactID == contactID {
		return ScopeDecision{Allowed: true}, nil
	}

	contact, ok, err := s.contacts.Contact(ctx, contactID)
	if err != nil {
		return ScopeDecision{}, err
	}
	if !ok {
		return ScopeDecision{Allowed: false, RequiresApproval: true}, nil
	}

	scope, found, err := s.scopes.ScopeFor(ctx, agentID, platformAccountID)
	if err != nil {
		return ScopeDecision{}, err
	}
	if !found {
		scope, found, err = s.scopes.DefaultScope(ctx, agentID)
		if err != nil {
			return ScopeDecision{}, err
		}
		if !found {
			scope = ContactScope{Type: ScopeTeamOnly}
		}
	}

	if contact.IsTeamMember && scope.AllowTeamMembers {
		return ScopeDecision{Allowed: true}, nil
	}

	var allowed bool
	switch scope.Type {
	case ScopeUnrestricted:
		allowed = true
	case ScopeAllUserContacts:
		allowed = profile != nil && contact.UserID == profile.UserID
	case ScopeContactsWhitelist:
		allowed = containsString(scope.AllowedContactIDs, contactID)
	case ScopeContactsTags:
		allowed = tagsIntersect(contact.Tags, scope.AllowedTags)
	default: // team_only
		allowed = contact.IsTeamMember
	}

	if allowed {
		return ScopeDecision{Allowed: true}, nil
	}
	return ScopeDecision{Allowed: false, RequiresApproval: scope.NotifyOnOutOfScope}, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func tagsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	for _, t := range a {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
