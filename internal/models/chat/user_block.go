package chat

import "time"

// UserBlock is a directed block: blocker no longer sees the blocked user's
// presence and the blocked user cannot message or see the blocker. Checked
// at action time, never cached.
type UserBlock struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	BlockerID string `gorm:"uniqueIndex:idx_block_pair;not null"`
	BlockedID string `gorm:"uniqueIndex:idx_block_pair;index;not null"`
	CreatedAt time.Time
}

func (UserBlock) TableName() string {
	return "chat.user_blocks"
}
