package chat

import "time"

// MessageReaction holds one emoji per (message, user) pair. Re-reacting
// overwrites the previous emoji rather than adding a row.
type MessageReaction struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	MessageID string `gorm:"uniqueIndex:idx_reaction_message_user;not null" json:"messageId"`
	UserID    string `gorm:"uniqueIndex:idx_reaction_message_user;not null" json:"userId"`
	Emoji     string `gorm:"type:varchar(16);not null" json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

func (MessageReaction) TableName() string {
	return "chat.message_reactions"
}
