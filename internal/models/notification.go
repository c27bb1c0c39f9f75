package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification is the durable record behind the push-notification fallback:
// one row per message that could not be delivered to a live connection.
type Notification struct {
	ID      string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID  string `gorm:"index;not null"`
	Type    string `gorm:"not null"` // new_message
	Title   string
	Message string
	Data    datatypes.JSON
	IsRead  bool `gorm:"default:false"`

	CreatedAt time.Time
}
