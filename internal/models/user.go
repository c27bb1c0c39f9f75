package models

import "time"

type User struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Username string `gorm:"uniqueIndex;not null"`

	// Durable projection of presence: flipped only on the 0->1 and 1->0
	// connection-count transitions, reset to false at process startup.
	IsOnline bool       `gorm:"default:false"`
	LastSeen *time.Time `gorm:"index"`

	// Privacy: when false the user never appears in presence snapshots
	// or updates.
	ShowOnlineStatus bool `gorm:"default:true"`

	// When set, only connections whose token carries this device id are
	// accepted (single active device session).
	ActiveDeviceID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
