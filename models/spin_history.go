package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SpinResult string

const (
	SpinNothing  SpinResult = "nothing"
	SpinPoints   SpinResult = "points"
	SpinDiscount SpinResult = "discount"
	SpinFreeItem SpinResult = "free_item"
)

// SpinHistory has one row per spin attempt, losing ones included.
type SpinHistory struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID     string          `gorm:"size:128;not null;index" json:"user_id"`
	Result     SpinResult      `gorm:"size:16;not null" json:"result"`
	Value      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"value"`
	CogsValue  decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"cogs_value"`
	UserTier   Tier            `gorm:"size:16;not null" json:"user_tier"`
	Downgraded bool            `gorm:"not null;default:false" json:"downgraded"`
	SpunAt     time.Time       `gorm:"not null;index" json:"spun_at"`
}

func (s *SpinHistory) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
