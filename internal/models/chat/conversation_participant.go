package chat

import "time"

// ConversationParticipant links a user to a conversation. DeletedAt is the
// per-user soft delete: a participant can hide the conversation for
// themselves without affecting the other side.
type ConversationParticipant struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ConversationID string `gorm:"uniqueIndex:idx_conversation_user;not null"`
	UserID         string `gorm:"uniqueIndex:idx_conversation_user;index;not null"`
	JoinedAt       time.Time
	DeletedAt      *time.Time
}

func (ConversationParticipant) TableName() string {
	return "chat.conversation_participants"
}
