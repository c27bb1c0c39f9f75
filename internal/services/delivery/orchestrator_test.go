package delivery

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger_backend/internal/models"
	modelChat "messenger_backend/internal/models/chat"
	chatsvc "messenger_backend/internal/services/chat"
	"messenger_backend/internal/services/presence"
)

// --- fakes ---

type emission struct {
	event   string
	payload any
	topics  []Topic
}

type fakeEmitter struct {
	mu        sync.Mutex
	emissions []emission
}

func (e *fakeEmitter) Emit(event string, payload any, topics ...Topic) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emissions = append(e.emissions, emission{event: event, payload: payload, topics: topics})
}

func (e *fakeEmitter) byEvent(event string) []emission {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emission
	for _, em := range e.emissions {
		if em.event == event {
			out = append(out, em)
		}
	}
	return out
}

func (e *fakeEmitter) events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.emissions))
	for i, em := range e.emissions {
		out[i] = em.event
	}
	return out
}

// fakeStore keeps messages in memory and applies the same conditional
// transitions the SQL layer does, returning only rows actually changed.
type fakeStore struct {
	mu       sync.Mutex
	messages []*modelChat.Message
	seq      int
}

func (s *fakeStore) add(conversationID, senderID, recipientID string, body string, clientID *string) *modelChat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	m := &modelChat.Message{
		ID:             fmt.Sprintf("m%d", s.seq),
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Type:           modelChat.MessageTypeText,
		Body:           &body,
		ClientID:       clientID,
		CreatedAt:      time.Now(),
	}
	s.messages = append(s.messages, m)
	return m
}

func (s *fakeStore) find(id string) *modelChat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *fakeStore) markDeliveredWhere(now time.Time, match func(*modelChat.Message) bool) []modelChat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []modelChat.Message
	for _, m := range s.messages {
		if m.DeliveredAt == nil && m.DeletedForEveryoneAt == nil && match(m) {
			t := now
			m.DeliveredAt = &t
			updated = append(updated, *m)
		}
	}
	return updated
}

func (s *fakeStore) MarkDelivered(ids []string, now time.Time) ([]modelChat.Message, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	return s.markDeliveredWhere(now, func(m *modelChat.Message) bool { return idSet[m.ID] }), nil
}

func (s *fakeStore) MarkDeliveredForRecipient(recipientID string, now time.Time) ([]modelChat.Message, error) {
	return s.markDeliveredWhere(now, func(m *modelChat.Message) bool { return m.RecipientID == recipientID }), nil
}

func (s *fakeStore) MarkDeliveredInConversation(recipientID, conversationID string, now time.Time) ([]modelChat.Message, error) {
	return s.markDeliveredWhere(now, func(m *modelChat.Message) bool {
		return m.RecipientID == recipientID && m.ConversationID == conversationID
	}), nil
}

func (s *fakeStore) MarkSeen(recipientID, conversationID string, ids []string, now time.Time) ([]modelChat.Message, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated []modelChat.Message
	for _, m := range s.messages {
		if m.SeenAt != nil || m.DeletedForEveryoneAt != nil {
			continue
		}
		if m.RecipientID != recipientID || m.ConversationID != conversationID {
			continue
		}
		if len(ids) > 0 && !idSet[m.ID] {
			continue
		}
		t := now
		m.SeenAt = &t
		if m.DeliveredAt == nil {
			m.DeliveredAt = &t
		}
		updated = append(updated, *m)
	}
	return updated, nil
}

// fakeCreator implements the idempotent create over the fake store.
type fakeCreator struct {
	store *fakeStore
	// conversation -> (sender, recipient); minimal routing table
	participants map[string][2]string
}

func (c *fakeCreator) CreateMessage(input chatsvc.SendMessageInput) (*modelChat.Message, bool, error) {
	if input.ClientID != nil && *input.ClientID != "" {
		c.store.mu.Lock()
		for _, m := range c.store.messages {
			if m.ConversationID == input.ConversationID && m.SenderID == input.SenderID &&
				m.ClientID != nil && *m.ClientID == *input.ClientID {
				c.store.mu.Unlock()
				return m, false, nil
			}
		}
		c.store.mu.Unlock()
	}
	pair := c.participants[input.ConversationID]
	recipient := pair[0]
	if recipient == input.SenderID {
		recipient = pair[1]
	}
	body := ""
	if input.Body != nil {
		body = *input.Body
	}
	m := c.store.add(input.ConversationID, input.SenderID, recipient, body, input.ClientID)
	return m, true, nil
}

type fakeGuard struct {
	denyAccess      map[string]bool // "conv|user"
	denyInteraction map[string]bool
	hiddenFrom      map[string]map[string]bool // viewer -> subject -> hidden
}

func (g *fakeGuard) AssertConversationAccess(conversationID, userID string) error {
	if g.denyAccess[conversationID+"|"+userID] {
		return fmt.Errorf("forbidden")
	}
	return nil
}

func (g *fakeGuard) AssertConversationInteraction(conversationID, userID string) error {
	if g.denyInteraction[conversationID+"|"+userID] {
		return fmt.Errorf("forbidden")
	}
	return g.AssertConversationAccess(conversationID, userID)
}

func (g *fakeGuard) CanSeePresence(viewerID, subjectID string) (bool, error) {
	if hidden, ok := g.hiddenFrom[viewerID]; ok && hidden[subjectID] {
		return false, nil
	}
	return true, nil
}

func (g *fakeGuard) FilterVisiblePresence(viewerID string, candidateIDs []string) ([]string, error) {
	var out []string
	for _, id := range candidateIDs {
		ok, _ := g.CanSeePresence(viewerID, id)
		if ok {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeUsers struct {
	mu    sync.Mutex
	flips []string // "userID:online" in order
}

func (u *fakeUsers) FindByID(id string) (*models.User, error) {
	return &models.User{ID: id, Username: "user-" + id}, nil
}

func (u *fakeUsers) SetOnline(userID string, online bool, _ time.Time) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.flips = append(u.flips, fmt.Sprintf("%s:%t", userID, online))
	return nil
}

type identitySigner struct{}

func (identitySigner) SignMessageMedia(m modelChat.Message) modelChat.Message { return m }

type fakePusher struct {
	mu    sync.Mutex
	calls []string // recipient:messageID
	err   error
}

func (p *fakePusher) NotifyNewMessage(recipientID, _ string, message *modelChat.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, recipientID+":"+message.ID)
	return p.err
}

func (p *fakePusher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// --- fixture ---

type fixture struct {
	store    *fakeStore
	creator  *fakeCreator
	guard    *fakeGuard
	presence *presence.Registry
	users    *fakeUsers
	pusher   *fakePusher
	emitter  *fakeEmitter
	orch     *Orchestrator
}

func newFixture() *fixture {
	store := &fakeStore{}
	creator := &fakeCreator{
		store:        store,
		participants: map[string][2]string{"c1": {"sender", "recipient"}},
	}
	guard := &fakeGuard{
		denyAccess:      map[string]bool{},
		denyInteraction: map[string]bool{},
		hiddenFrom:      map[string]map[string]bool{},
	}
	reg := presence.NewRegistry()
	users := &fakeUsers{}
	pusher := &fakePusher{}
	emitter := &fakeEmitter{}

	orch := NewOrchestrator(store, creator, nil, guard, reg, users, identitySigner{}, pusher, emitter)
	return &fixture{
		store: store, creator: creator, guard: guard,
		presence: reg, users: users, pusher: pusher, emitter: emitter, orch: orch,
	}
}

func strptr(s string) *string { return &s }

// --- tests ---

// S online, R online: both get message:new, then message:delivered for the
// same id, in that order.
func TestSendMessage_ImmediateDelivery(t *testing.T) {
	f := newFixture()
	f.presence.Add("sender", "conn-s")
	f.presence.Add("recipient", "conn-r")
	f.emitter.emissions = nil // ignore presence noise from setup

	msg, err := f.orch.SendMessage(chatsvc.SendMessageInput{
		ConversationID: "c1",
		SenderID:       "sender",
		Body:           strptr("hi"),
		ClientID:       strptr("abc"),
	})
	require.NoError(t, err)
	require.NotNil(t, msg)

	events := f.emitter.events()
	require.Equal(t, []string{EventMessageNew, EventMessageDelivered}, events,
		"message:new must precede message:delivered")

	newPayload := f.emitter.byEvent(EventMessageNew)[0].payload.(MessageNewPayload)
	deliveredPayload := f.emitter.byEvent(EventMessageDelivered)[0].payload.(MessageDeliveredPayload)
	assert.Equal(t, newPayload.Message.ID, deliveredPayload.MessageID)

	stored := f.store.find(msg.ID)
	require.NotNil(t, stored.DeliveredAt)
	assert.False(t, stored.DeliveredAt.Before(stored.CreatedAt))
	assert.Equal(t, 0, f.pusher.callCount(), "no push fallback for an online recipient")
}

// R offline: message persists undelivered, push fires exactly once, no
// message:delivered is emitted.
func TestSendMessage_OfflineFallback(t *testing.T) {
	f := newFixture()
	f.presence.Add("sender", "conn-s")

	msg, err := f.orch.SendMessage(chatsvc.SendMessageInput{
		ConversationID: "c1",
		SenderID:       "sender",
		Body:           strptr("are you there?"),
	})
	require.NoError(t, err)

	// Push fallback is dispatched asynchronously.
	assert.Eventually(t, func() bool { return f.pusher.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	assert.Nil(t, f.store.find(msg.ID).DeliveredAt)
	assert.Empty(t, f.emitter.byEvent(EventMessageDelivered))
	assert.Len(t, f.emitter.byEvent(EventMessageNew), 1)
}

// Retried sends with the same client id return the same message and emit
// nothing further.
func TestSendMessage_IdempotentPerClientID(t *testing.T) {
	f := newFixture()
	f.presence.Add("recipient", "conn-r")
	f.emitter.emissions = nil

	input := chatsvc.SendMessageInput{
		ConversationID: "c1",
		SenderID:       "sender",
		Body:           strptr("hi"),
		ClientID:       strptr("retry-1"),
	}

	first, err := f.orch.SendMessage(input)
	require.NoError(t, err)
	second, err := f.orch.SendMessage(input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.emitter.byEvent(EventMessageNew), 1, "retry must not re-emit")
	assert.Len(t, f.store.messages, 1, "exactly one row in storage")
}

// X sent while R offline transitions to Delivered exactly once when R
// reconnects; further connections deliver nothing.
func TestConnected_ReconnectConvergence(t *testing.T) {
	f := newFixture()
	f.store.add("c1", "sender", "recipient", "offline msg", nil)

	f.orch.Connected("recipient", "conn-1")
	delivered := f.emitter.byEvent(EventMessageDelivered)
	require.Len(t, delivered, 1)

	f.orch.Connected("recipient", "conn-2")
	assert.Len(t, f.emitter.byEvent(EventMessageDelivered), 1,
		"already-delivered messages must not re-deliver")
}

// Opening N connections in quick succession broadcasts exactly one
// presence:update{isOnline:true} per viewer.
func TestConnected_SinglePresenceFlip(t *testing.T) {
	f := newFixture()
	f.presence.Add("viewer", "conn-v")

	for i := 0; i < 5; i++ {
		f.orch.Connected("multi", fmt.Sprintf("conn-%d", i))
	}

	var online []emission
	for _, em := range f.emitter.byEvent(EventPresenceUpdate) {
		p := em.payload.(PresenceUpdatePayload)
		if p.UserID == "multi" && p.IsOnline {
			online = append(online, em)
		}
	}
	assert.Len(t, online, 1, "exactly one online broadcast for five connections")
	assert.Equal(t, []string{"multi:true"}, f.users.flips, "durable flag flips once")
}

func TestDisconnected_FlipsOnlyOnLastConnection(t *testing.T) {
	f := newFixture()
	f.orch.Connected("u1", "conn-1")
	f.orch.Connected("u1", "conn-2")
	f.users.flips = nil
	f.emitter.emissions = nil

	f.orch.Disconnected("u1", "conn-1")
	assert.Empty(t, f.users.flips, "still online on one connection")
	assert.Empty(t, f.emitter.byEvent(EventPresenceUpdate))

	f.orch.Disconnected("u1", "conn-2")
	assert.Equal(t, []string{"u1:false"}, f.users.flips)
}

// Whole-conversation seen catch-up: all unseen messages transition, one
// event each; a repeat emits zero further events. The Sent->Seen jump
// backfills delivered_at.
func TestMarkSeen_CatchUpIdempotent(t *testing.T) {
	f := newFixture()
	ids := []string{}
	for i := 0; i < 3; i++ {
		m := f.store.add("c1", "sender", "recipient", fmt.Sprintf("msg %d", i), nil)
		ids = append(ids, m.ID)
	}

	require.NoError(t, f.orch.MarkSeen("recipient", "c1", nil))
	seen := f.emitter.byEvent(EventMessageSeen)
	require.Len(t, seen, 3)

	for _, id := range ids {
		m := f.store.find(id)
		require.NotNil(t, m.SeenAt)
		require.NotNil(t, m.DeliveredAt, "Sent->Seen jump must backfill delivered_at")
		assert.False(t, m.SeenAt.Before(*m.DeliveredAt))
	}

	require.NoError(t, f.orch.MarkSeen("recipient", "c1", nil))
	assert.Len(t, f.emitter.byEvent(EventMessageSeen), 3, "re-send emits nothing")
}

func TestMarkSeen_RequiresAccess(t *testing.T) {
	f := newFixture()
	f.guard.denyAccess["c1|intruder"] = true
	assert.Error(t, f.orch.MarkSeen("intruder", "c1", nil))
}

// Join-scoped catch-up delivers only that conversation and never
// re-delivers.
func TestJoinConversation_ScopedCatchUp(t *testing.T) {
	f := newFixture()
	f.store.add("c1", "sender", "recipient", "in c1", nil)
	f.store.add("c2", "sender", "recipient", "in c2", nil)

	require.NoError(t, f.orch.JoinConversation("recipient", "c1"))
	delivered := f.emitter.byEvent(EventMessageDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, "c1", delivered[0].payload.(MessageDeliveredPayload).ConversationID)

	require.NoError(t, f.orch.JoinConversation("recipient", "c1"))
	assert.Len(t, f.emitter.byEvent(EventMessageDelivered), 1)
}

func TestJoinConversation_Forbidden(t *testing.T) {
	f := newFixture()
	f.guard.denyAccess["c1|intruder"] = true
	assert.Error(t, f.orch.JoinConversation("intruder", "c1"))
}

// Typing signals from non-participants vanish silently.
func TestTyping_UnauthorizedSilentlyDropped(t *testing.T) {
	f := newFixture()
	f.guard.denyInteraction["c1|outsider"] = true

	f.orch.Typing("outsider", "c1", true)
	assert.Empty(t, f.emitter.emissions)

	f.orch.Typing("sender", "c1", true)
	require.Len(t, f.emitter.byEvent(EventTypingStart), 1)
	payload := f.emitter.byEvent(EventTypingStart)[0].payload.(TypingPayload)
	assert.Equal(t, "user-sender", payload.Username)
}

// Presence broadcasts and snapshots honor per-viewer visibility.
func TestPresence_VisibilityFiltered(t *testing.T) {
	f := newFixture()
	// "blocked" may not see "subject".
	f.guard.hiddenFrom["blocked"] = map[string]bool{"subject": true}
	f.presence.Add("blocked", "conn-b")
	f.presence.Add("friend", "conn-f")

	f.orch.Connected("subject", "conn-s")

	var recipients []string
	for _, em := range f.emitter.byEvent(EventPresenceUpdate) {
		if em.payload.(PresenceUpdatePayload).UserID != "subject" {
			continue
		}
		for _, topic := range em.topics {
			recipients = append(recipients, topic.ID)
		}
	}
	assert.Contains(t, recipients, "friend")
	assert.NotContains(t, recipients, "blocked")

	snapshot, err := f.orch.PresenceSnapshot("blocked")
	require.NoError(t, err)
	assert.NotContains(t, snapshot, "subject")
}

// Timestamps only move forward: delivered then seen never regress.
func TestDeliveryTimestampsMonotonic(t *testing.T) {
	f := newFixture()
	m := f.store.add("c1", "sender", "recipient", "hello", nil)

	f.orch.Connected("recipient", "conn-1")
	stored := f.store.find(m.ID)
	require.NotNil(t, stored.DeliveredAt)
	deliveredAt := *stored.DeliveredAt

	require.NoError(t, f.orch.MarkSeen("recipient", "c1", []string{m.ID}))
	stored = f.store.find(m.ID)
	require.NotNil(t, stored.SeenAt)

	assert.False(t, stored.DeliveredAt.Before(stored.CreatedAt))
	assert.False(t, stored.SeenAt.Before(*stored.DeliveredAt))
	assert.Equal(t, deliveredAt, *stored.DeliveredAt, "delivered_at never moves")
}
