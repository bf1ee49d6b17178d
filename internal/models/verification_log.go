package models

import (
	"time"

	"github.com/google/uuid"
)

// Verification log sources.
const (
	VerificationSourceRead  = "read"
	VerificationSourceSweep = "sweep"
)

// VerificationLog records one verification outcome for an invoice.
type VerificationLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID uuid.UUID `gorm:"type:uuid;index" json:"invoice_id"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
