package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// InvoiceSnapshot is an immutable point-in-time copy of an invoice,
// written on every successful anchor. Rows are never updated; restore
// consults the newest row per invoice id.
type InvoiceSnapshot struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID uuid.UUID      `gorm:"type:uuid;index" json:"invoice_id"`
	Digest    string         `json:"digest"`
	State     datatypes.JSON `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
}
