package chat

import (
	"sort"
	"strings"
	"time"
)

// Conversation is a direct (two-participant) thread. UniqueKey is derived
// from the unordered participant pair so re-creating a conversation between
// the same two users is idempotent.
type Conversation struct {
	ID            string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UniqueKey     string `gorm:"uniqueIndex;not null"`
	LastMessageAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID"`
}

func (Conversation) TableName() string {
	return "chat.conversations"
}

// DirectKey returns the deterministic unique key for the unordered pair of
// participant ids.
func DirectKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
