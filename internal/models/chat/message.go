package chat

import "time"

// Message types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
	MessageTypeFile  = "file"
	MessageTypeVoice = "voice"
)

// Message belongs to exactly one conversation and carries the three
// delivery-state timestamps. Each timestamp is set once and never moved:
// created_at <= delivered_at <= seen_at.
//
// ClientID is the client-generated idempotency key: the tuple
// (conversation_id, sender_id, client_id) is unique when present, so
// at-least-once command redelivery never duplicates a message.
type Message struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ConversationID string `gorm:"index;not null;uniqueIndex:idx_messages_client_dedup" json:"conversationId"`
	SenderID       string `gorm:"index;not null;uniqueIndex:idx_messages_client_dedup" json:"senderId"`
	RecipientID    string `gorm:"index;not null" json:"recipientId"`
	Type           string `gorm:"default:'text'" json:"type"`

	Body        *string `gorm:"type:text" json:"body,omitempty"`
	IsEncrypted bool    `gorm:"default:false" json:"isEncrypted"`

	MediaURL      *string `json:"mediaUrl,omitempty"`
	MediaName     *string `json:"mediaName,omitempty"`
	MediaMime     *string `json:"mediaMime,omitempty"`
	MediaSize     *int64  `json:"mediaSize,omitempty"`
	VoiceDuration *int    `json:"voiceDuration,omitempty"` // seconds

	ClientID  *string `gorm:"uniqueIndex:idx_messages_client_dedup" json:"clientId,omitempty"`
	ReplyToID *string `gorm:"index" json:"replyToMessageId,omitempty"`

	CreatedAt            time.Time  `json:"createdAt"`
	DeliveredAt          *time.Time `json:"deliveredAt,omitempty"`
	SeenAt               *time.Time `json:"seenAt,omitempty"`
	DeletedForEveryoneAt *time.Time `json:"deletedForEveryoneAt,omitempty"`

	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

func (Message) TableName() string {
	return "chat.messages"
}

// HasMedia reports whether the message carries a media descriptor.
func (m *Message) HasMedia() bool {
	return m.MediaURL != nil && *m.MediaURL != ""
}
