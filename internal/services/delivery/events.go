package delivery

import (
	"time"

	modelChat "messenger_backend/internal/models/chat"
)

// Event names carried over the persistent connection.
const (
	EventMessageNew       = "message:new"
	EventMessageDelivered = "message:delivered"
	EventMessageSeen      = "message:seen"
	EventMessageReaction  = "message:reaction"
	EventMessageDeleted   = "message:deleted"
	EventPresenceSnapshot = "presence:snapshot"
	EventPresenceUpdate   = "presence:update"
	EventTypingStart      = "typing:start"
	EventTypingStop       = "typing:stop"
)

// TopicKind distinguishes broadcast group namespaces so a user id can never
// collide with a conversation id.
type TopicKind string

const (
	TopicUser         TopicKind = "user"
	TopicConversation TopicKind = "conversation"
)

// Topic identifies a broadcast group.
type Topic struct {
	Kind TopicKind
	ID   string
}

func UserTopic(userID string) Topic {
	return Topic{Kind: TopicUser, ID: userID}
}

func ConversationTopic(conversationID string) Topic {
	return Topic{Kind: TopicConversation, ID: conversationID}
}

// Emitter delivers an event to every client subscribed to any of the given
// topics. A client subscribed to several of them receives the event once.
type Emitter interface {
	Emit(event string, payload any, topics ...Topic)
}

type MessageNewPayload struct {
	Message modelChat.Message `json:"message"`
}

type MessageDeliveredPayload struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	DeliveredAt    time.Time `json:"deliveredAt"`
}

type MessageSeenPayload struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	SeenAt         time.Time `json:"seenAt"`
}

type MessageReactionPayload struct {
	ConversationID string                    `json:"conversationId"`
	Reaction       modelChat.MessageReaction `json:"reaction"`
}

type MessageDeletedPayload struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	DeletedAt      time.Time `json:"deletedAt"`
}

type PresenceSnapshotPayload struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
}

type PresenceUpdatePayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username"`
}
