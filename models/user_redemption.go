package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RedemptionStatus string

const (
	RedemptionActive  RedemptionStatus = "active"
	RedemptionUsed    RedemptionStatus = "used"
	RedemptionExpired RedemptionStatus = "expired"
)

type RedemptionSource string

const (
	SourceRedemption RedemptionSource = "redemption"
	SourceSpin       RedemptionSource = "spin"
)

type UserRedemption struct {
	ID                 uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	UserID             string            `gorm:"size:128;not null;index" json:"user_id"`
	RewardID           string            `gorm:"size:64;not null;index" json:"reward_id"`
	RewardName         string            `json:"reward_name"`
	PointsRedeemed     int               `gorm:"not null;default:0" json:"points_redeemed"`
	EstimatedCogsValue decimal.Decimal   `gorm:"type:numeric(12,2);not null;default:0" json:"estimated_cogs_value"`
	RedemptionCode     string            `gorm:"size:32;uniqueIndex;not null" json:"redemption_code"`
	Source             RedemptionSource  `gorm:"size:16;not null;default:redemption;index" json:"source"`
	Status             RedemptionStatus  `gorm:"size:16;not null;default:active" json:"status"`
	UsedAt             *time.Time        `json:"used_at,omitempty"`
	UsedBy             *string           `gorm:"size:128" json:"used_by,omitempty"`
	UsedOrderID        *string           `gorm:"size:128" json:"used_order_id,omitempty"`
	Metadata           datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt          time.Time         `gorm:"index" json:"created_at"`
	ExpiresAt          time.Time         `gorm:"not null" json:"expires_at"`
}

func (r *UserRedemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// EffectiveStatus reports expired for an active coupon read at or past ExpiresAt.
func (r *UserRedemption) EffectiveStatus(now time.Time) RedemptionStatus {
	if r.Status == RedemptionActive && !now.Before(r.ExpiresAt) {
		return RedemptionExpired
	}
	return r.Status
}
