package collab

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReasoningRunner asks a peer agent's reasoning loop a question and
// returns its final text response. event distinguishes the trigger kind
// (consultation, consensus_vote, conflict_rebuttal, conflict_escalation)
// so the loop can shape its system prompt accordingly.
type ReasoningRunner interface {
	Consult(ctx context.Context, agentID, userID, event string, payload map[string]any) (string, error)
}

// SkillLookup resolves an agent's skill categories, used to target
// propagateKnowledge by tag.
type SkillLookup interface {
	SkillCategories(ctx context.Context, agentID string) ([]string, error)
}

// MemoryWriter persists a shared_learning memory for a peer.
type MemoryWriter interface {
	WriteSharedLearning(ctx context.Context, agentID, content string, importance float64, tags []string) error
}

// PeerLister resolves an agent's active peers belonging to the same user.
type PeerLister interface {
	ActivePeers(ctx context.Context, userID, excludeAgentID string) ([]string, error)
}

// Protocol implements the agent-to-agent collaboration operations.
type Protocol struct {
	store  Store
	runner ReasoningRunner
	skills SkillLookup
	memory MemoryWriter
	peers  PeerLister
	now    func() time.Time
}

// New constructs a Protocol.
func New(store Store, runner ReasoningRunner, skills SkillLookup, memory MemoryWriter, peers PeerLister) *Protocol {
	return &Protocol{store: store, runner: runner, skills: skills, memory: memory, peers: peers, now: time.Now}
}

// StartConsultation asks a single peer a question via its reasoning loop
// and records the question/response.
func (p *Protocol) StartConsultation(ctx context.Context, from, to, userID, question string, context_ map[string]any) (Conversation, error) {
	conv := Conversation{
		ID: uuid.NewString(), Initiator: from, ParticipantIDs: []string{from, to},
		Type: ConversationConsultation, Topic: question, Status: ConversationActive,
		Metadata: map[string]any{"user_id": userID, "context": context_}, CreatedAt: p.now(),
	}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		return Conversation{}, err
	}
	_ = p.store.AppendMessage(ctx, ConversationMessage{ID: uuid.NewString(), ConversationID: conv.ID, FromAgentID: from, Type: MessageQuestion, Content: question, CreatedAt: p.now()})

	response, err := p.runner.Consult(ctx, to, userID, "consultation", map[string]any{"question": question, "context": context_})
	if err != nil {
		conv.Status = ConversationFailed
		_ = p.store.UpdateConversation(ctx, conv)
		return conv, fmt.Errorf("consultation with %s failed: %w", to, err)
	}
	_ = p.store.AppendMessage(ctx, ConversationMessage{ID: uuid.NewString(), ConversationID: conv.ID, FromAgentID: to, Type: MessageResponse, Content: response, CreatedAt: p.now()})

	completedAt := p.now()
	conv.Status = ConversationCompleted
	conv.CompletedAt = &completedAt
	conv.Result = map[string]any{"response": response}
	return conv, p.store.UpdateConversation(ctx, conv)
}

var leadingIntRe = regexp.MustCompile(`\d+`)

func firstInt(s string) (int, bool) {
	m := leadingIntRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// RequestConsensus runs every voter's reasoning loop in parallel asking
// it to respond with an option number and reason, tallies the votes, and
// records the majority winner.
func (p *Protocol) RequestConsensus(ctx context.Context, initiator string, voters []string, userID, topic string, options []string) (Conversation, error) {
	if len(options) < 2 {
		return Conversation{}, fmt.Errorf("requestConsensus requires at least 2 options")
	}
	conv := Conversation{
		ID: uuid.NewString(), Initiator: initiator, ParticipantIDs: voters,
		Type: ConversationConsensus, Topic: topic, Status: ConversationActive,
		Metadata: map[string]any{"user_id": userID, "options": options}, CreatedAt: p.now(),
	}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		return Conversation{}, err
	}

	type vote struct {
		voter string
		idx   int // 1-based option index, 0 if unparseable
	}
	votes := make([]vote, len(voters))
	var wg sync.WaitGroup
	for i, voter := range voters {
		wg.Add(1)
		go func(i int, voter string) {
			defer wg.Done()
			resp, err := p.runner.Consult(ctx, voter, userID, "consensus_vote", map[string]any{"topic": topic, "options": options})
			if err != nil {
				return
			}
			_ = p.store.AppendMessage(ctx, ConversationMessage{ID: uuid.NewString(), ConversationID: conv.ID, FromAgentID: voter, Type: MessageVote, Content: resp, CreatedAt: p.now()})
			n, ok := firstInt(resp)
			if !ok || n < 1 || n > len(options) {
				return
			}
			votes[i] = vote{voter: voter, idx: n}
		}(i, voter)
	}
	wg.Wait()

	tally := make(map[int]int)
	for _, v := range votes {
		if v.idx > 0 {
			tally[v.idx]++
		}
	}
	winnerIdx, winnerCount := 0, -1
	for idx, count := range tally {
		if count > winnerCount || (count == winnerCount && idx < winnerIdx) {
			winnerIdx, winnerCount = idx, count
		}
	}

	textTally := make(map[string]int, len(tally))
	for idx, count := range tally {
		textTally[options[idx-1]] = count
	}

	completedAt := p.now()
	conv.Status = ConversationCompleted
	conv.CompletedAt = &completedAt
	conv.Result = map[string]any{"tally": textTally}
	if winnerIdx > 0 {
		conv.Result["winner"] = options[winnerIdx-1]
	}
	return conv, p.store.UpdateConversation(ctx, conv)
}

// RequestAsyncConsensus creates a consensus conversation with a deadline
// and fires each voter's reasoning loop without waiting for it; votes are
// recorded as they arrive. Call CheckAsyncConsensusComplete to finalize.
func (p *Protocol) RequestAsyncConsensus(ctx context.Context, initiator string, voters []string, userID, topic string, options []string, deadline time.Time) (Conversation, error) {
	conv := Conversation{
		ID: uuid.NewString(), Initiator: initiator, ParticipantIDs: voters,
		Type: ConversationAsyncConsensus, Topic: topic, Status: ConversationActive,
		Metadata: map[string]any{"user_id": userID, "options": options, "voter_count": len(voters)},
		Deadline: &deadline, CreatedAt: p.now(),
	}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		return Conversation{}, err
	}

	for _, voter := range voters {
		go func(voter string) {
			resp, err := p.runner.Consult(context.Background(), voter, userID, "consensus_vote", map[string]any{"topic": topic, "options": options})
			if err != nil {
				return
			}
			_ = p.store.AppendMessage(context.Background(), ConversationMessage{ID: uuid.NewString(), ConversationID: conv.ID, FromAgentID: voter, Type: MessageVote, Content: resp, CreatedAt: p.now()})
		}(voter)
	}

	return conv, nil
}

// CheckAsyncConsensusComplete finalizes an async consensus conversation
// once every voter has responded or its deadline has passed, tallying
// majority by normalized vote text.
func (p *Protocol) CheckAsyncConsensusComplete(ctx context.Context, conversationID string) (Conversation, bool, error) {
	conv, ok, err := p.store.GetConversation(ctx, conversationID)
	if err != nil || !ok {
		return Conversation{}, false, err
	}
	if conv.Status != ConversationActive {
		return conv, true, nil
	}

	msgs, err := p.store.ListMessages(ctx, conversationID)
	if err != nil {
		return Conversation{}, false, err
	}
	votes := 0
	for _, m := range msgs {
		if m.Type == MessageVote {
			votes++
		}
	}
	voterCount, _ := conv.Metadata["voter_count"].(int)
	deadlinePassed := conv.Deadline != nil && p.now().After(*conv.Deadline)
	if votes < voterCount && !deadlinePassed {
		return conv, false, nil
	}

	tally := make(map[string]int)
	for _, m := range msgs {
		if m.Type != MessageVote {
			continue
		}
		tally[strings.ToLower(strings.TrimSpace(m.Content))]++
	}
	winner, winnerCount := "", -1
	for text, count := range tally {
		if count > winnerCount {
			winner, winnerCount = text, count
		}
	}

	completedAt := p.now()
	conv.Status = ConversationCompleted
	conv.CompletedAt = &completedAt
	conv.Result = map[string]any{"tally": tally, "winner": winner, "votes_received": votes, "deadline_passed": deadlinePassed}
	return conv, true, p.store.UpdateConversation(ctx, conv)
}

// ResolveConflict runs one rebuttal round: every position owner sees the
// others' positions and must either defend or reply CONCEDE. If exactly
// one position survives the round it wins; otherwise escalateToAgentID
// decides if given, else the conflict is marked needs_human.
func (p *Protocol) ResolveConflict(ctx context.Context, initiator string, agents []string, userID, topic string, positions map[string]string, escalateToAgentID string) (Conversation, error) {
	if len(positions) < 2 {
		return Conversation{}, fmt.Errorf("resolveConflict requires at least 2 positions")
	}
	conv := Conversation{
		ID: uuid.NewString(), Initiator: initiator, ParticipantIDs: agents,
		Type: ConversationConflict, Topic: topic, Status: ConversationActive,
		Metadata: map[string]any{"user_id": userID, "positions": positions}, CreatedAt: p.now(),
	}
	if err := p.store.CreateConversation(ctx, conv); err != nil {
		return Conversation{}, err
	}

	type rebuttal struct {
		agent    string
		conceded bool
		response string
	}
	rebuttals := make([]rebuttal, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a string) {
			defer wg.Done()
			others := otherPositions(positions, a)
			resp, err := p.runner.Consult(ctx, a, userID, "conflict_rebuttal", map[string]any{"topic": topic, "yourPosition": positions[a], "otherPositions": others})
			if err != nil {
				rebuttals[i] = rebuttal{agent: a, response: ""}
				return
			}
			_ = p.store.AppendMessage(ctx, ConversationMessage{ID: uuid.NewString(), ConversationID: conv.ID, FromAgentID: a, Type: MessageResponse, Content: resp, CreatedAt: p.now()})
			rebuttals[i] = rebuttal{agent: a, conceded: strings.EqualFold(strings.TrimSpace(resp), "CONCEDE"), response: resp}
		}(i, a)
	}
	wg.Wait()

	var remaining []string
	for _, r := range rebuttals {
		if !r.conceded {
			remaining = append(remaining, r.agent)
		}
	}

	result := map[string]any{}
	var winner string
	switch {
	case len(remaining) == 1:
		winner = remaining[0]
		result["resolution"] = "rebuttal"
	case escalateToAgentID != "":
		decision, err := p.runner.Consult(ctx, escalateToAgentID, userID, "conflict_escalation", map[string]any{"topic": topic, "positions": positions})
		if err == nil {
			winner = matchAgentID(decision, agents)
		}
		result["resolution"] = "escalated"
		result["escalated_to"] = escalateToAgentID
	default:
		result["resolution"] = "needs_human"
		result["needs_human"] = true
	}
	if winner != "" {
		result["winner"] = winner
	}

	completedAt := p.now()
	conv.Status = ConversationCompleted
	conv.CompletedAt = &completedAt
	conv.Result = result
	return conv, p.store.UpdateConversation(ctx, conv)
}

func otherPositions(positions map[string]string, exclude string) map[string]string {
	out := make(map[string]string, len(positions)-1)
	for agent, pos := range positions {
		if agent != exclude {
			out[agent] = pos
		}
	}
	return out
}

func matchAgentID(text string, candidates []string) string {
	for _, c := range candidates {
		if strings.Contains(text, c) {
			return c
		}
	}
	return ""
}

// PropagateKnowledge writes a shared_learning memory for every eligible
// peer of source: same user, active, and (if tags are given) whose skill
// categories intersect tags. Returns the number of peers reached.
func (p *Protocol) PropagateKnowledge(ctx context.Context, source, userID, learning string, tags []string, importance float64) (int, error) {
	peers, err := p.peers.ActivePeers(ctx, userID, source)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, peer := range peers {
		if len(tags) > 0 {
			categories, err := p.skills.SkillCategories(ctx, peer)
			if err != nil || !stringsIntersect(categories, tags) {
				continue
			}
		}
		if err := p.memory.WriteSharedLearning(ctx, peer, learning, importance, tags); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

func stringsIntersect(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// GetConversations lists a user's collaboration conversations, most
// recent first.
func (p *Protocol) GetConversations(ctx context.Context, userID string) ([]Conversation, error) {
	return p.store.ListConversations(ctx, userID)
}

// GetConversationMessages returns a conversation's messages in insertion
// order.
func (p *Protocol) GetConversationMessages(ctx context.Context, conversationID string) ([]ConversationMessage, error) {
	msgs, err := p.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

// CheckConsensusResult returns the conversation's current state; for an
// active async consensus, it also attempts to finalize it.
func (p *Protocol) CheckConsensusResult(ctx context.Context, conversationID string) (Conversation, error) {
	conv, ok, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if !ok {
		return Conversation{}, fmt.Errorf("conversation %s not found", conversationID)
	}
	if conv.Type == ConversationAsyncConsensus && conv.Status == ConversationActive {
		updated, _, err := p.CheckAsyncConsensusComplete(ctx, conversationID)
		if err != nil {
			return conv, nil
		}
		return updated, nil
	}
	return conv, nil
}
