package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/models"
)

// AuditRepository persists the append-only integrity audit tables:
// anchor records, verification logs, and sweep runs.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) CreateAnchorRecord(ctx context.Context, rec *models.AnchorRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *AuditRepository) AnchorRecordsByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]models.AnchorRecord, error) {
	var recs []models.AnchorRecord
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}

func (r *AuditRepository) CreateVerificationLog(ctx context.Context, entry *models.VerificationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *AuditRepository) CreateSweepRun(ctx context.Context, run *models.SweepRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *AuditRepository) UpdateSweepRun(ctx context.Context, run *models.SweepRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *AuditRepository) RecentSweepRuns(ctx context.Context, limit int) ([]models.SweepRun, error) {
	var runs []models.SweepRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
