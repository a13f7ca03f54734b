package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatsSnapshot records the hierarchy statistics computed by a scheduled run.
// When the computation failed, Available is false and Error carries the reason.
type StatsSnapshot struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	JobID     string    `gorm:"index;column:job_id" json:"job_id"`
	FilterKey string    `gorm:"type:text;column:filter_key" json:"filter_key"`
	Stats     string    `gorm:"type:text" json:"stats"` // JSON blob
	Available bool      `gorm:"not null;default:false" json:"available"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (s *StatsSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (StatsSnapshot) TableName() string {
	return "stats_snapshots"
}
