package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusRefunded  = "refunded"
)

// Invoice is the financial record under integrity protection.
// AnchoredDigest and AnchorReference are set together or not at all;
// IsTampered is cleared only by an explicit restore.
type Invoice struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CustomerID uuid.UUID       `gorm:"type:uuid;index" json:"customer_id"`
	PackageID  uuid.UUID       `gorm:"type:uuid;index" json:"package_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	Status     string          `gorm:"index" json:"status"`
	DueDate    time.Time       `json:"due_date"`
	Note       string          `json:"note"`

	AnchoredDigest   *string    `json:"anchored_digest"`
	AnchorReference  *string    `json:"anchor_reference"`
	AnchoredAt       *time.Time `json:"anchored_at"`
	IsTampered       bool       `gorm:"index" json:"is_tampered"`
	TamperDetectedAt *time.Time `json:"tamper_detected_at"`
	IsReported       bool       `json:"is_reported"`
	ReportedAt       *time.Time `json:"reported_at"`

	// Version guards tamper/restore writes against lost updates.
	Version   int       `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Anchored reports whether the invoice has anchor metadata recorded.
func (i *Invoice) Anchored() bool {
	return i.AnchoredDigest != nil && i.AnchorReference != nil
}
