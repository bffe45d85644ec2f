package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AuditAdminAdjustment = "admin_adjustment"
	AuditElevateAdmin    = "elevate_admin"
)

// AuditLog captures privileged actions separately from the points ledger.
type AuditLog struct {
	ID           uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	Action       string            `gorm:"size:32;not null;index" json:"action"`
	ActorID      string            `gorm:"size:128;not null;index" json:"actor_id"`
	TargetID     string            `gorm:"size:128;not null;index" json:"target_id"`
	PointsBefore *int              `json:"points_before,omitempty"`
	PointsAfter  *int              `json:"points_after,omitempty"`
	Delta        *int              `json:"delta,omitempty"`
	Reason       string            `json:"reason"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
