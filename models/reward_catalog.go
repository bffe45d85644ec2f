package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RewardCatalog is curated reference data; the service only reads it.
type RewardCatalog struct {
	ID               string          `gorm:"primaryKey;size:64" json:"id"`
	Name             string          `gorm:"not null" json:"name"`
	Description      string          `json:"description"`
	PointsCost       int             `gorm:"not null" json:"points_cost"`
	MaxCogsValue     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"max_cogs_value"`
	TierRestrictions string          `json:"tier_restrictions"` // comma separated, empty means every tier
	IsActive         bool            `gorm:"default:true" json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (RewardCatalog) TableName() string {
	return "reward_catalog"
}

// AllowsTier checks whether a member of the given tier may redeem this reward.
func (r *RewardCatalog) AllowsTier(t Tier) bool {
	if strings.TrimSpace(r.TierRestrictions) == "" {
		return true
	}
	for _, allowed := range strings.Split(r.TierRestrictions, ",") {
		if Tier(strings.TrimSpace(allowed)) == t {
			return true
		}
	}
	return false
}
