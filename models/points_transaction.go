package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionEarned          TransactionType = "earned"
	TransactionRedeemed        TransactionType = "redeemed"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
	TransactionBirthdayBonus   TransactionType = "birthday_bonus"
	TransactionReferralBonus   TransactionType = "referral_bonus"
	TransactionSpin            TransactionType = "spin"
	TransactionTierChange      TransactionType = "tier_change" // zero-delta annotation
)

// PointsTransaction is one immutable ledger entry. Rows are only ever inserted.
type PointsTransaction struct {
	ID          uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	UserID      string            `gorm:"size:128;not null;index" json:"user_id"`
	Delta       int               `gorm:"not null" json:"delta"`
	Type        TransactionType   `gorm:"size:32;not null;index" json:"type"`
	Description string            `json:"description"`
	OrderID     *string           `gorm:"size:128" json:"order_id,omitempty"`
	AdminID     *string           `gorm:"size:128" json:"admin_id,omitempty"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
}

func (t *PointsTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
