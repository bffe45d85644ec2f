package models

import "time"

// RateLimitBucket is one fixed window counter shared by every service instance.
type RateLimitBucket struct {
	Key     string    `gorm:"column:bucket_key;primaryKey;size:191" json:"key"`
	Count   int       `gorm:"not null" json:"count"`
	ResetAt time.Time `gorm:"not null;index" json:"reset_at"`
}
