package models

import (
	"time"

	"github.com/google/uuid"
)

// SweepRun summarizes one reconciliation sweep.
type SweepRun struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Checked     int        `json:"checked"`
	Verified    int        `json:"verified"`
	Suspect     int        `json:"suspect"`
	Unknown     int        `json:"unknown"`
	Unanchored  int        `json:"unanchored"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
