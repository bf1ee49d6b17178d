// Package sweep re-verifies every invoice against the ledger on a
// fixed interval, independent of user reads.
package sweep

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-integrity-backend/internal/ledger"
	"invoice-integrity-backend/internal/models"
	"invoice-integrity-backend/internal/repository"
	"invoice-integrity-backend/internal/services/integrity"
)

// Job runs the reconciliation sweep. Invoices are checked independently
// with a bounded worker count; one invoice's failure never aborts the
// sweep for the rest. Each invoice id is checked at most once per sweep.
type Job struct {
	invoices  *repository.InvoiceRepository
	audit     *repository.AuditRepository
	integrity *integrity.Service
	interval  time.Duration
	workers   int
	logger    *zap.Logger
}

func NewJob(
	invoices *repository.InvoiceRepository,
	audit *repository.AuditRepository,
	integritySvc *integrity.Service,
	interval time.Duration,
	workers int,
	logger *zap.Logger,
) *Job {
	if workers < 1 {
		workers = 1
	}
	return &Job{
		invoices:  invoices,
		audit:     audit,
		integrity: integritySvc,
		interval:  interval,
		workers:   workers,
		logger:    logger,
	}
}

// Start runs sweeps on the configured interval until ctx is cancelled.
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.logger.Info("reconciliation sweep started",
		zap.Duration("interval", j.interval),
		zap.Int("workers", j.workers))

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("reconciliation sweep stopped")
			return
		case <-ticker.C:
			if _, err := j.RunSweepOnce(ctx); err != nil {
				j.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunSweepOnce verifies all invoices once and persists a summary row.
// Anchored invoices get the ledger comparison; invoices whose anchoring
// previously timed out get an anchor retry.
func (j *Job) RunSweepOnce(ctx context.Context) (*models.SweepRun, error) {
	run := &models.SweepRun{
		ID:        uuid.New(),
		Status:    "running",
		StartedAt: time.Now().UTC(),
	}
	if err := j.audit.CreateSweepRun(ctx, run); err != nil {
		return nil, err
	}

	invoices, err := j.invoices.GetAll(ctx)
	if err != nil {
		j.completeRun(ctx, run, "failed")
		return run, err
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		sem   = make(chan struct{}, j.workers)
		tally = map[integrity.Status]int{}
	)

	for i := range invoices {
		inv := invoices[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			status := j.checkOne(ctx, &inv)

			mu.Lock()
			tally[status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	run.Checked = len(invoices)
	run.Verified = tally[integrity.StatusVerified]
	run.Suspect = tally[integrity.StatusSuspect]
	run.Unknown = tally[integrity.StatusUnknown]
	run.Unanchored = tally[integrity.StatusUnanchored]
	j.completeRun(ctx, run, "completed")

	j.logger.Info("sweep completed",
		zap.Int("checked", run.Checked),
		zap.Int("verified", run.Verified),
		zap.Int("suspect", run.Suspect),
		zap.Int("unknown", run.Unknown),
		zap.Int("unanchored", run.Unanchored))

	return run, nil
}

// checkOne verifies a single invoice, isolating any failure to it.
func (j *Job) checkOne(ctx context.Context, inv *models.Invoice) integrity.Status {
	if !inv.Anchored() {
		// A creation whose anchor timed out; retry anchoring now.
		if err := j.integrity.AnchorInvoice(ctx, inv); err != nil {
			if !errors.Is(err, ledger.ErrAnchorTimeout) {
				j.logger.Warn("sweep anchor retry failed",
					zap.String("invoice_id", inv.ID.String()), zap.Error(err))
			}
			return integrity.StatusUnanchored
		}
		return integrity.StatusVerified
	}

	status, err := j.integrity.Verify(ctx, inv, models.VerificationSourceSweep)
	if err != nil {
		j.logger.Warn("sweep verification failed",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return integrity.StatusUnknown
	}
	return status
}

func (j *Job) completeRun(ctx context.Context, run *models.SweepRun, status string) {
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	if err := j.audit.UpdateSweepRun(ctx, run); err != nil {
		j.logger.Error("sweep run update failed", zap.Error(err))
	}
}
