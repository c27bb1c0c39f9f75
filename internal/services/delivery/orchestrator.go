package delivery

import (
	"time"

	"messenger_backend/internal/logger"
	"messenger_backend/internal/models"
	modelChat "messenger_backend/internal/models/chat"
	chatsvc "messenger_backend/internal/services/chat"
)

// MessageStore is the durable transition surface. Every method is a
// conditional update returning only the rows it actually changed, which is
// what lets concurrent triggers for the same transition converge without
// double-emitting.
type MessageStore interface {
	MarkDelivered(ids []string, now time.Time) ([]modelChat.Message, error)
	MarkDeliveredForRecipient(recipientID string, now time.Time) ([]modelChat.Message, error)
	MarkDeliveredInConversation(recipientID, conversationID string, now time.Time) ([]modelChat.Message, error)
	MarkSeen(recipientID, conversationID string, ids []string, now time.Time) ([]modelChat.Message, error)
}

// MessageCreator persists messages idempotently per client id.
type MessageCreator interface {
	CreateMessage(input chatsvc.SendMessageInput) (*modelChat.Message, bool, error)
}

// Reactor stores reactions.
type Reactor interface {
	React(userID, messageID, emoji string) (*modelChat.MessageReaction, *modelChat.Message, error)
}

// Guard authorizes conversation actions and presence visibility at action
// time.
type Guard interface {
	AssertConversationAccess(conversationID, userID string) error
	AssertConversationInteraction(conversationID, userID string) error
	CanSeePresence(viewerID, subjectID string) (bool, error)
	FilterVisiblePresence(viewerID string, candidateIDs []string) ([]string, error)
}

// PresenceTracker is the in-memory connection registry.
type PresenceTracker interface {
	Add(userID, connectionID string) (wasOnline bool)
	Remove(userID, connectionID string) (isNowOnline bool)
	IsOnline(userID string) bool
	OnlineUserIDs() []string
}

// UserStore holds the durable presence projection.
type UserStore interface {
	FindByID(id string) (*models.User, error)
	SetOnline(userID string, online bool, lastSeen time.Time) error
}

// MediaSigner replaces raw media URLs with time-limited signed ones before
// emission.
type MediaSigner interface {
	SignMessageMedia(message modelChat.Message) modelChat.Message
}

// Pusher is the push-notification fallback boundary.
type Pusher interface {
	NotifyNewMessage(recipientID, senderName string, message *modelChat.Message) error
}

// Orchestrator is the delivery state machine: given a new message or a
// connection-lifecycle event it computes which Sent -> Delivered -> Seen
// transitions now apply, which topics to notify, and whether to fall back
// to push. All transitions are gated on storage-reported affected rows, so
// racing triggers converge without duplicate events.
type Orchestrator struct {
	store    MessageStore
	creator  MessageCreator
	reactor  Reactor
	guard    Guard
	presence PresenceTracker
	users    UserStore
	signer   MediaSigner
	pusher   Pusher
	emitter  Emitter
}

func NewOrchestrator(
	store MessageStore,
	creator MessageCreator,
	reactor Reactor,
	guard Guard,
	presence PresenceTracker,
	users UserStore,
	signer MediaSigner,
	pusher Pusher,
	emitter Emitter,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		creator:  creator,
		reactor:  reactor,
		guard:    guard,
		presence: presence,
		users:    users,
		signer:   signer,
		pusher:   pusher,
		emitter:  emitter,
	}
}

// Connected registers a live connection. On the 0->1 transition the durable
// is_online flag flips and a filtered presence update goes out; in every
// case a cross-conversation delivery catch-up pass runs for the user.
func (o *Orchestrator) Connected(userID, connectionID string) {
	wasOnline := o.presence.Add(userID, connectionID)

	if !wasOnline {
		if err := o.users.SetOnline(userID, true, time.Now()); err != nil {
			logger.Error("failed to persist online flag", "user_id", userID, "error", err)
		}
		o.broadcastPresence(userID, true, nil)
	}

	o.deliverPending(userID)
}

// Disconnected deregisters a connection. Only the 1->0 transition flips the
// durable projection and emits a presence update.
func (o *Orchestrator) Disconnected(userID, connectionID string) {
	stillOnline := o.presence.Remove(userID, connectionID)
	if stillOnline {
		return
	}

	now := time.Now()
	if err := o.users.SetOnline(userID, false, now); err != nil {
		logger.Error("failed to persist offline flag", "user_id", userID, "error", err)
	}
	o.broadcastPresence(userID, false, &now)
}

// JoinConversation authorizes the join and runs the conversation-scoped
// delivery catch-up. Messages already delivered are not re-delivered: the
// conditional update returns nothing for them.
func (o *Orchestrator) JoinConversation(userID, conversationID string) error {
	if err := o.guard.AssertConversationAccess(conversationID, userID); err != nil {
		return err
	}

	updated, err := o.store.MarkDeliveredInConversation(userID, conversationID, time.Now())
	if err != nil {
		logger.Error("conversation delivery catch-up failed",
			"user_id", userID, "conversation_id", conversationID, "error", err)
		return nil // join still succeeds; the next pass self-heals
	}
	for i := range updated {
		o.emitDelivered(&updated[i])
	}
	return nil
}

// SendMessage persists the message and fans it out. Emission order within
// one message is message:new strictly before message:delivered. A deduped
// retry returns the original message without re-emitting anything.
func (o *Orchestrator) SendMessage(input chatsvc.SendMessageInput) (*modelChat.Message, error) {
	message, created, err := o.creator.CreateMessage(input)
	if err != nil {
		return nil, err
	}

	signed := o.signer.SignMessageMedia(*message)
	if !created {
		return &signed, nil
	}

	o.emitter.Emit(EventMessageNew, MessageNewPayload{Message: signed},
		ConversationTopic(message.ConversationID),
		UserTopic(message.SenderID),
		UserTopic(message.RecipientID),
	)

	if o.presence.IsOnline(message.RecipientID) {
		// Immediate delivery: skip the async catch-up pass for this row.
		updated, err := o.store.MarkDelivered([]string{message.ID}, time.Now())
		if err != nil {
			logger.Error("immediate delivery transition failed",
				"message_id", message.ID, "error", err)
		}
		for i := range updated {
			o.emitDelivered(&updated[i])
			signed.DeliveredAt = updated[i].DeliveredAt
		}
	} else {
		go o.pushFallback(message)
	}

	return &signed, nil
}

// MarkSeen applies the Seen transition for the recipient, emitting one
// message:seen per row actually changed. With no explicit ids the whole
// conversation catches up. Re-sending the same command emits nothing.
func (o *Orchestrator) MarkSeen(userID, conversationID string, messageIDs []string) error {
	if err := o.guard.AssertConversationAccess(conversationID, userID); err != nil {
		return err
	}

	updated, err := o.store.MarkSeen(userID, conversationID, messageIDs, time.Now())
	if err != nil {
		return err
	}

	for i := range updated {
		m := &updated[i]
		o.emitter.Emit(EventMessageSeen, MessageSeenPayload{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			SenderID:       m.SenderID,
			SeenAt:         *m.SeenAt,
		}, ConversationTopic(m.ConversationID), UserTopic(m.SenderID))
	}
	return nil
}

// React stores the reaction and fans it out to the conversation.
func (o *Orchestrator) React(userID, messageID, emoji string) error {
	reaction, message, err := o.reactor.React(userID, messageID, emoji)
	if err != nil {
		return err
	}

	o.emitter.Emit(EventMessageReaction, MessageReactionPayload{
		ConversationID: message.ConversationID,
		Reaction:       *reaction,
	}, ConversationTopic(message.ConversationID),
		UserTopic(message.SenderID), UserTopic(message.RecipientID))
	return nil
}

// Typing forwards a typing signal. Unauthorized or blocked attempts are
// dropped without error so membership is not leaked.
func (o *Orchestrator) Typing(userID, conversationID string, start bool) {
	if err := o.guard.AssertConversationInteraction(conversationID, userID); err != nil {
		return
	}

	username := userID
	if user, err := o.users.FindByID(userID); err == nil {
		username = user.Username
	}

	event := EventTypingStop
	if start {
		event = EventTypingStart
	}
	o.emitter.Emit(event, TypingPayload{
		ConversationID: conversationID,
		UserID:         userID,
		Username:       username,
	}, ConversationTopic(conversationID))
}

// PresenceSnapshot returns the online users the viewer is allowed to see,
// filtered at call time.
func (o *Orchestrator) PresenceSnapshot(viewerID string) ([]string, error) {
	return o.guard.FilterVisiblePresence(viewerID, o.presence.OnlineUserIDs())
}

// EmitMessageDeleted fans out a delete-for-everyone tombstone.
func (o *Orchestrator) EmitMessageDeleted(message *modelChat.Message) {
	if message.DeletedForEveryoneAt == nil {
		return
	}
	o.emitter.Emit(EventMessageDeleted, MessageDeletedPayload{
		ConversationID: message.ConversationID,
		MessageID:      message.ID,
		DeletedAt:      *message.DeletedForEveryoneAt,
	}, ConversationTopic(message.ConversationID),
		UserTopic(message.SenderID), UserTopic(message.RecipientID))
}

// deliverPending is the cross-conversation catch-up pass: every message
// still Sent for this recipient transitions to Delivered exactly once, no
// client retry required.
func (o *Orchestrator) deliverPending(userID string) {
	updated, err := o.store.MarkDeliveredForRecipient(userID, time.Now())
	if err != nil {
		logger.Error("delivery catch-up failed", "user_id", userID, "error", err)
		return
	}
	for i := range updated {
		o.emitDelivered(&updated[i])
	}
}

func (o *Orchestrator) emitDelivered(m *modelChat.Message) {
	o.emitter.Emit(EventMessageDelivered, MessageDeliveredPayload{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		SenderID:       m.SenderID,
		DeliveredAt:    *m.DeliveredAt,
	}, ConversationTopic(m.ConversationID), UserTopic(m.SenderID))
}

// broadcastPresence sends a presence update to every online viewer that is
// allowed to see the subject. Visibility is evaluated per viewer per
// broadcast because block state may have changed since the last one.
func (o *Orchestrator) broadcastPresence(subjectID string, online bool, lastSeen *time.Time) {
	payload := PresenceUpdatePayload{
		UserID:   subjectID,
		IsOnline: online,
		LastSeen: lastSeen,
	}

	for _, viewerID := range o.presence.OnlineUserIDs() {
		if viewerID == subjectID {
			continue
		}
		visible, err := o.guard.CanSeePresence(viewerID, subjectID)
		if err != nil {
			logger.Error("presence visibility check failed",
				"viewer_id", viewerID, "subject_id", subjectID, "error", err)
			continue
		}
		if !visible {
			continue
		}
		o.emitter.Emit(EventPresenceUpdate, payload, UserTopic(viewerID))
	}
}

// pushFallback fires the push notifier for an offline recipient. Best
// effort: failures are logged and never surfaced to the sender, whose
// message is already durable.
func (o *Orchestrator) pushFallback(message *modelChat.Message) {
	senderName := message.SenderID
	if sender, err := o.users.FindByID(message.SenderID); err == nil {
		senderName = sender.Username
	}

	if err := o.pusher.NotifyNewMessage(message.RecipientID, senderName, message); err != nil {
		logger.Error("push fallback failed",
			"recipient_id", message.RecipientID,
			"message_id", message.ID,
			"error", err)
	}
}
