package models

import (
	"time"

	"github.com/google/uuid"
)

// AnchorRecord is the local audit row for one successful ledger
// submission: which digest was anchored for which invoice, and the
// opaque reference the ledger returned.
type AnchorRecord struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	InvoiceID       uuid.UUID `gorm:"type:uuid;index" json:"invoice_id"`
	Digest          string    `json:"digest"`
	LedgerReference string    `json:"ledger_reference"`
	CreatedAt       time.Time `json:"created_at"`
}
