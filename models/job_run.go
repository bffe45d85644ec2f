package models

import (
	"time"

	"rewards-backend/dtos"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const JobBirthdayBonus = "birthday_bonus"

// JobRun is the persisted summary of one scheduled batch run.
type JobRun struct {
	ID          uuid.UUID                           `gorm:"type:uuid;primary_key" json:"id"`
	Job         string                              `gorm:"size:64;not null;index" json:"job"`
	Status      string                              `gorm:"size:32;not null" json:"status"`
	Processed   int                                 `json:"processed"`
	Awarded     int                                 `json:"awarded"`
	Skipped     int                                 `json:"skipped"`
	Failed      int                                 `json:"failed"`
	Errors      datatypes.JSONType[[]dtos.JobError] `json:"errors"`
	StartedAt   time.Time                           `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time                          `json:"completed_at"`
}

func (j *JobRun) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}
