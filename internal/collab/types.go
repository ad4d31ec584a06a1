// Package collab implements agent-to-agent collaboration: consultation,
// synchronous and asynchronous consensus voting, conflict resolution with
// a rebuttal round, and knowledge propagation between an agent's peers.
//
// Grounded on internal/multiagent/orchestrator.go's Orchestrator (agent
// registry, event callback, session-scoped coordination) and supervisor.go
// (central-coordinator delegation pattern), adapted from "route a message
// to the right specialist" semantics to "ask one or more peers a question
// and reconcile their answers" semantics. Talking to a peer's reasoning
// loop is abstracted behind ReasoningRunner rather than depending on the
// concrete (not-yet-existing-at-this-layer) reasoning package, the same
// narrow-collaborator seam internal/schedule uses for its action handlers.
package collab

import "time"

// ConversationType enumerates the kinds of collaboration session.
type ConversationType string

const (
	ConversationConsultation   ConversationType = "consultation"
	ConversationConsensus      ConversationType = "consensus"
	ConversationAsyncConsensus ConversationType = "async_consensus"
	ConversationConflict       ConversationType = "conflict"
)

// ConversationStatus enumerates a Conversation's lifecycle state.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationCompleted ConversationStatus = "completed"
	ConversationFailed    ConversationStatus = "failed"
)

// Conversation is a consultation/consensus/conflict session between two or
// more agents belonging to the same user.
type Conversation struct {
	ID             string
	Initiator      string
	ParticipantIDs []string
	Type           ConversationType
	Topic          string
	Status         ConversationStatus
	Metadata       map[string]any
	Result         map[string]any
	Deadline       *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// ConversationMessageType enumerates the kinds of message inside a
// collaboration conversation.
type ConversationMessageType string

const (
	MessageQuestion ConversationMessageType = "question"
	MessageResponse ConversationMessageType = "response"
	MessageVote     ConversationMessageType = "vote"
	MessageResult   ConversationMessageType = "result"
)

// ConversationMessage is one entry inside a Conversation.
type ConversationMessage struct {
	ID             string
	ConversationID string
	FromAgentID    string
	Type           ConversationMessageType
	Content        string
	CreatedAt      time.Time
}
