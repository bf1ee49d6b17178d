package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/models"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Expose DB if needed
func (r *InvoiceRepository) DB() *gorm.DB {
	return r.db
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

// GetByID fetch a single invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetAll returns every invoice; used by the reconciliation sweep.
func (r *InvoiceRepository) GetAll(ctx context.Context) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).Order("created_at ASC").Find(&invoices).Error
	return invoices, err
}

// ListByCustomer returns a customer's invoices, newest first.
func (r *InvoiceRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.Invoice, error) {
	var invoices []models.Invoice
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&invoices).Error
	return invoices, err
}

// updateGuarded applies updates only if the stored version still matches
// expectedVersion, bumping the version in the same statement. A lost
// race returns ErrConcurrencyConflict so a concurrent restore can never
// be silently overwritten by a late tamper write (and vice versa).
func (r *InvoiceRepository) updateGuarded(ctx context.Context, id uuid.UUID, expectedVersion int, updates map[string]interface{}) error {
	updates["version"] = expectedVersion + 1
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}

// SetAnchor records a successful anchor for the invoice.
func (r *InvoiceRepository) SetAnchor(ctx context.Context, inv *models.Invoice, digest, reference string, at time.Time) error {
	return r.updateGuarded(ctx, inv.ID, inv.Version, map[string]interface{}{
		"anchored_digest":  digest,
		"anchor_reference": reference,
		"anchored_at":      at,
	})
}

// MarkTampered flips the tamper flag. Idempotent at the state level;
// the version guard only protects against racing restores.
func (r *InvoiceRepository) MarkTampered(ctx context.Context, inv *models.Invoice, at time.Time) error {
	return r.updateGuarded(ctx, inv.ID, inv.Version, map[string]interface{}{
		"is_tampered":        true,
		"tamper_detected_at": at,
	})
}

// MarkReported flags the invoice as reported to the admin.
func (r *InvoiceRepository) MarkReported(ctx context.Context, inv *models.Invoice, at time.Time) error {
	return r.updateGuarded(ctx, inv.ID, inv.Version, map[string]interface{}{
		"is_reported": true,
		"reported_at": at,
	})
}

// ApplyRestore overwrites the invoice's mutable fields and anchor
// metadata from a snapshot copy and clears the tamper/report flags.
// This is the only write that clears is_tampered.
func (r *InvoiceRepository) ApplyRestore(ctx context.Context, inv *models.Invoice, restored *models.Invoice) error {
	return r.updateGuarded(ctx, inv.ID, inv.Version, map[string]interface{}{
		"amount":             restored.Amount,
		"status":             restored.Status,
		"due_date":           restored.DueDate,
		"note":               restored.Note,
		"anchored_digest":    restored.AnchoredDigest,
		"anchor_reference":   restored.AnchorReference,
		"anchored_at":        restored.AnchoredAt,
		"is_tampered":        false,
		"tamper_detected_at": nil,
		"is_reported":        false,
		"reported_at":        nil,
	})
}
