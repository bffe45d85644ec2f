package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReferralBonus records a referral. A referee can be referred once. ReferrerCreditedAt
// stays nil until the referrer's bonus is on the ledger.
type ReferralBonus struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ReferrerUserID string    `gorm:"size:128;not null;index" json:"referrer_user_id"`
	RefereeUserID  string    `gorm:"size:128;not null;uniqueIndex" json:"referee_user_id"`
	ReferralCode   string    `gorm:"size:16;not null" json:"referral_code"`
	ReferrerPoints int       `gorm:"not null" json:"referrer_points"`
	RefereePoints  int       `gorm:"not null" json:"referee_points"`
	CreatedAt      time.Time `json:"created_at"`

	ReferrerCreditedAt *time.Time `json:"referrer_credited_at,omitempty"`
}

func (r *ReferralBonus) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
