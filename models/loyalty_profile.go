package models

import (
	"time"
)

type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Tiers lists every tier in ascending rank.
var Tiers = []Tier{TierBronze, TierSilver, TierGold, TierPlatinum}

// Rank returns the position of the tier in Tiers, or -1 for an unknown tier.
func (t Tier) Rank() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return -1
}

// LoyaltyProfile is the per-user points aggregate. Points is the spendable balance,
// LifetimePoints only ever grows and drives the tier.
type LoyaltyProfile struct {
	UserID              string     `gorm:"primaryKey;size:128" json:"user_id"`
	Points              int        `gorm:"not null;default:0" json:"points"`
	LifetimePoints      int        `gorm:"not null;default:0" json:"lifetime_points"`
	Tier                Tier       `gorm:"size:16;not null;default:bronze" json:"tier"`
	ReferralCode        *string    `gorm:"size:16;uniqueIndex" json:"referral_code,omitempty"`
	ReferredBy          *string    `gorm:"size:128" json:"referred_by,omitempty"`
	Birthday            *string    `gorm:"size:5;index" json:"birthday,omitempty"` // MM-DD
	LastSpinAt          *time.Time `json:"last_spin_at,omitempty"`
	LastBirthdayBonusAt *time.Time `json:"last_birthday_bonus_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}
