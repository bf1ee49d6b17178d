package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/models"
)

type SnapshotRepository struct {
	db *gorm.DB
}

func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create appends a snapshot row. Snapshots are never updated.
func (r *SnapshotRepository) Create(ctx context.Context, snap *models.InvoiceSnapshot) error {
	return r.db.WithContext(ctx).Create(snap).Error
}

// LatestByInvoiceID returns the newest snapshot for the invoice id, or
// ErrSnapshotNotFound if none was ever written.
func (r *SnapshotRepository) LatestByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (*models.InvoiceSnapshot, error) {
	var snap models.InvoiceSnapshot
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// CountByInvoiceID reports how many snapshots exist for an invoice.
func (r *SnapshotRepository) CountByInvoiceID(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceSnapshot{}).
		Where("invoice_id = ?", invoiceID).
		Count(&count).Error
	return count, err
}
