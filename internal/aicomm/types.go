// Package aicomm implements AIToCommunication: directed agent-to-agent
// messages and the threads they belong to. Sending validates that sender
// and receiver share a user, creates or reuses a thread keyed by the
// sorted participant set (plus task ID for task threads), and delivers
// the message immediately within the same call. Replies copy the
// original's priority and thread and mark the original responded.
//
// Grounded on internal/approvalsvc/service.go's store-seam + sentinel-error
// idiom (a narrow Store interface, errors.Is-checked sentinels, an
// injected clock) and pkg/models.AgentMessage/AgentThread/ThreadKey, which
// already encode the thread-key and status-enum shape this package drives.
package aicomm

import (
	"errors"
	"time"

	"github.com/agentrun/agentrun/pkg/models"
)

var (
	// ErrDifferentUsers is returned when sender and receiver do not
	// belong to the same user.
	ErrDifferentUsers = errors.New("aicomm: sender and receiver belong to different users")
	// ErrMessageNotFound is returned when an operation references a
	// message ID that does not exist.
	ErrMessageNotFound = errors.New("aicomm: message not found")
	// ErrNotReplyable is returned when replying to a message that is
	// not in a state that can be responded to.
	ErrNotReplyable = errors.New("aicomm: original message cannot be replied to")
)

// Store persists AgentMessage and AgentThread rows.
type Store interface {
	CreateMessage(msg models.AgentMessage) (models.AgentMessage, error)
	UpdateMessage(msg models.AgentMessage) error
	GetMessage(id string) (models.AgentMessage, error)
	ThreadByKey(userID, key string) (models.AgentThread, bool, error)
	CreateThread(thread models.AgentThread) (models.AgentThread, error)
	UpdateThread(thread models.AgentThread) error
	Inbox(userID, agentID string) ([]models.AgentMessage, error)
	Sent(userID, agentID string) ([]models.AgentMessage, error)
	All(userID, agentID string) ([]models.AgentMessage, error)
}

// SameUserChecker confirms two agents belong to the same user.
type SameUserChecker interface {
	SameUser(senderID, receiverID string) (userID string, same bool, err error)
}

// SendInput is the request to send a new, non-reply message.
type SendInput struct {
	SenderID   string
	ReceiverID string
	Type       models.AgentMessageType
	Subject    string
	Content    string
	Metadata   map[string]any
	Priority   string
	TaskID     string
	DeadlineAt *time.Time
	ExpiresAt  *time.Time
}

// InboxFilter narrows Inbox/Sent/All queries.
type InboxFilter struct {
	Status       models.AgentMessageStatus
	HasStatus    bool
	Type         models.AgentMessageType
	HasType      bool
	TaskID       string
	HasTaskID    bool
}
