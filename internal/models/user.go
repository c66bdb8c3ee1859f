package models

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultSubscriptionTier is assigned to users created on first login.
const DefaultSubscriptionTier = "free"

// DefaultQueriesLimit is the free-tier query allowance.
const DefaultQueriesLimit = 10

// User represents an end-user account stored in the database. Accounts are
// created on first successful identity provider login and never deleted by
// the auth path.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email    string  `gorm:"type:text;not null;uniqueIndex"` // Email address, unique within the system.
	GoogleID *string `gorm:"type:text;uniqueIndex"`          // Provider-scoped subject ID, unique when present.

	SubscriptionTier string `gorm:"type:text;not null;default:free"` // Billing tier.
	QueriesUsed      int    `gorm:"not null;default:0"`              // Queries consumed this cycle.
	QueriesLimit     int    `gorm:"not null;default:10"`             // Query allowance for the tier.

	Active bool `gorm:"not null;default:true"` // Whether the user can sign in.

	Profile datatypes.JSON // Snapshot of display name and avatar from the latest login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
