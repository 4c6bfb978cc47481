package models

import (
	"time"

	"gorm.io/gorm"
)

// Tier is the reputation-derived classification controlling shield strength.
type Tier string

const (
	TierNewUser Tier = "new_user"
	TierRegular Tier = "regular"
	TierTrusted Tier = "trusted"
	TierVeteran Tier = "veteran"
)

// Tier thresholds (inclusive lower bounds).
const (
	RegularThreshold = 100
	TrustedThreshold = 500
	VeteranThreshold = 1000
)

// TierFor classifies a reputation score. Reputation can go negative —
// anything below RegularThreshold is new_user.
func TierFor(reputation int) Tier {
	switch {
	case reputation >= VeteranThreshold:
		return TierVeteran
	case reputation >= TrustedThreshold:
		return TierTrusted
	case reputation >= RegularThreshold:
		return TierRegular
	default:
		return TierNewUser
	}
}

// User is a contributor. Reputation is mutated only through the reputation
// service; the ledger in reputation_events is the source of truth.
type User struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Username   string `gorm:"uniqueIndex;not null" json:"username"`
	Email      string `json:"email,omitempty"`
	Reputation int    `gorm:"default:0;not null" json:"reputation"`

	Timestamps
}

// CurrentTier derives the shield tier from the stored score.
func (u *User) CurrentTier() Tier {
	return TierFor(u.Reputation)
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
