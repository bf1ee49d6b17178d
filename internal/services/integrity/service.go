// Package integrity owns the invoice tamper state machine: anchoring
// new invoices to the external ledger, verifying stored records against
// their anchored digests, and the audited restore/report paths.
package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-integrity-backend/internal/fingerprint"
	"invoice-integrity-backend/internal/ledger"
	"invoice-integrity-backend/internal/models"
	"invoice-integrity-backend/internal/notify"
	"invoice-integrity-backend/internal/repository"
)

// Status is the outcome of a verification.
type Status string

const (
	// StatusUnanchored means no digest has been anchored yet, so no
	// mismatch is possible.
	StatusUnanchored Status = "unanchored"
	// StatusVerified means local state, recorded digest, and the ledger
	// all agree.
	StatusVerified Status = "verified"
	// StatusSuspect means a mismatch was detected and the tamper flag set.
	StatusSuspect Status = "suspect"
	// StatusUnknown means the ledger could not be reached; nothing was
	// concluded and no flags were touched.
	StatusUnknown Status = "unknown"
)

var (
	// ErrValidation marks bad input; never retried.
	ErrValidation = errors.New("integrity: invalid input")

	// ErrAlreadyReported is returned by Report on a second call.
	ErrAlreadyReported = errors.New("integrity: invoice already reported")

	// ErrLedgerRecordMissing means the ledger has no entry for an invoice
	// whose anchor metadata says one must exist: ledger-side data loss,
	// not tampering.
	ErrLedgerRecordMissing = errors.New("integrity: anchored digest missing from ledger")
)

// errTamperSuperseded signals that a concurrent restore won the version
// race; the suspected mismatch must be judged against the fresh record.
var errTamperSuperseded = errors.New("integrity: tamper write superseded by restore")

// Service orchestrates create -> anchor -> verify -> reconcile.
type Service struct {
	invoices  *repository.InvoiceRepository
	snapshots *repository.SnapshotRepository
	audit     *repository.AuditRepository
	ledger    ledger.Client
	notifier  notify.Notifier
	admin     string
	logger    *zap.Logger
	locks     *keyedMutex
}

func NewService(
	invoices *repository.InvoiceRepository,
	snapshots *repository.SnapshotRepository,
	audit *repository.AuditRepository,
	ledgerClient ledger.Client,
	notifier notify.Notifier,
	adminEmail string,
	logger *zap.Logger,
) *Service {
	return &Service{
		invoices:  invoices,
		snapshots: snapshots,
		audit:     audit,
		ledger:    ledgerClient,
		notifier:  notifier,
		admin:     adminEmail,
		logger:    logger,
		locks:     newKeyedMutex(),
	}
}

// CreateAndAnchor persists the invoice and anchors its fingerprint.
// An anchor timeout does not fail creation: the invoice stays
// unanchored and the reconciliation sweep anchors it later. An outright
// submission failure rolls the creation back and is returned.
func (s *Service) CreateAndAnchor(ctx context.Context, inv *models.Invoice) (*models.Invoice, error) {
	if err := validate(inv); err != nil {
		return nil, err
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusPending
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	err := s.AnchorInvoice(ctx, inv)
	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrAnchorTimeout):
		// Outcome unknown: never re-submit here. The sweep reconciles.
		s.logger.Warn("anchor confirmation timed out, invoice left unanchored",
			zap.String("invoice_id", inv.ID.String()))
	case errors.Is(err, ledger.ErrAnchorSubmission):
		// Nothing landed on the ledger; roll the creation back.
		if delErr := s.invoices.DB().WithContext(ctx).Delete(&models.Invoice{}, "id = ?", inv.ID).Error; delErr != nil {
			s.logger.Error("rollback of unanchored invoice failed",
				zap.String("invoice_id", inv.ID.String()), zap.Error(delErr))
		}
		return nil, err
	default:
		// The digest may already sit on the ledger; deleting the invoice
		// here would orphan that entry. Keep the row for the sweep or an
		// operator to reconcile.
		s.logger.Error("anchor bookkeeping failed after submission, invoice kept",
			zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		return nil, err
	}

	return inv, nil
}

// AnchorInvoice anchors an existing unanchored invoice: compute the
// fingerprint, submit it, and on confirmation persist the anchor
// metadata, a snapshot, and an anchor record. Serialized per invoice id
// so two anchor submissions can never race for the same ledger key.
func (s *Service) AnchorInvoice(ctx context.Context, inv *models.Invoice) error {
	unlock := s.locks.Lock(inv.ID)
	defer unlock()

	digest := fingerprint.Compute(*inv)

	reference, err := s.ledger.Anchor(ctx, inv.ID, digest)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.invoices.SetAnchor(ctx, inv, digest, reference, now); err != nil {
		return err
	}
	inv.AnchoredDigest = &digest
	inv.AnchorReference = &reference
	inv.AnchoredAt = &now
	inv.Version++

	if err := s.writeSnapshot(ctx, inv, digest); err != nil {
		return err
	}
	if err := s.audit.CreateAnchorRecord(ctx, &models.AnchorRecord{
		ID:              uuid.New(),
		InvoiceID:       inv.ID,
		Digest:          digest,
		LedgerReference: reference,
	}); err != nil {
		return err
	}

	s.logger.Info("invoice anchored",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("reference", reference))
	return nil
}

// VerifyOnRead loads the invoice and verifies it, flagging tampering.
func (s *Service) VerifyOnRead(ctx context.Context, id uuid.UUID) (Status, *models.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return "", nil, err
	}
	status, err := s.Verify(ctx, inv, models.VerificationSourceRead)
	return status, inv, err
}

// Verify checks the invoice's stored fields against its recorded digest
// and, only when those match, against the ledger's latest digest. A
// local mismatch is authoritative on its own: the ledger is not called,
// so detection never depends on ledger availability. A ledger transport
// failure yields StatusUnknown and never flips the tamper flag.
func (s *Service) Verify(ctx context.Context, inv *models.Invoice, source string) (Status, error) {
	if !inv.Anchored() {
		return StatusUnanchored, nil
	}

	local := fingerprint.Compute(*inv)
	if local != *inv.AnchoredDigest {
		err := s.markTampered(ctx, inv, source, "stored fields diverge from anchored digest")
		if errors.Is(err, errTamperSuperseded) {
			return s.Verify(ctx, inv, source)
		}
		if err != nil {
			return "", err
		}
		return StatusSuspect, nil
	}

	latest, err := s.ledger.Latest(ctx, inv.ID)
	switch {
	case errors.Is(err, ledger.ErrNotAnchored):
		// Impossible once anchored: the ledger lost data.
		return "", fmt.Errorf("%w: invoice %s", ErrLedgerRecordMissing, inv.ID)
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return StatusUnknown, nil
	case err != nil:
		return "", err
	}

	if latest != *inv.AnchoredDigest {
		err := s.markTampered(ctx, inv, source, "ledger digest diverges from anchored digest")
		if errors.Is(err, errTamperSuperseded) {
			return s.Verify(ctx, inv, source)
		}
		if err != nil {
			return "", err
		}
		return StatusSuspect, nil
	}

	return StatusVerified, nil
}

// markTampered persists the tamper transition before any notification.
// Losing the version race means a restore (or another detector) got
// there first; the stale write is dropped rather than applied blindly,
// and errTamperSuperseded tells the caller to judge the fresh record.
func (s *Service) markTampered(ctx context.Context, inv *models.Invoice, source, detail string) error {
	unlock := s.locks.Lock(inv.ID)
	defer unlock()

	now := time.Now().UTC()
	err := s.invoices.MarkTampered(ctx, inv, now)
	if errors.Is(err, repository.ErrConcurrencyConflict) {
		current, readErr := s.invoices.GetByID(ctx, inv.ID)
		if readErr != nil {
			return readErr
		}
		*inv = *current
		if !current.IsTampered {
			s.logger.Warn("tamper write lost race to a concurrent restore, re-verifying",
				zap.String("invoice_id", inv.ID.String()))
			return errTamperSuperseded
		}
	} else if err != nil {
		return err
	} else {
		inv.IsTampered = true
		inv.TamperDetectedAt = &now
		inv.Version++
	}

	if logErr := s.audit.CreateVerificationLog(ctx, &models.VerificationLog{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Outcome:   string(StatusSuspect),
		Detail:    detail,
		Source:    source,
	}); logErr != nil {
		s.logger.Error("verification log write failed",
			zap.String("invoice_id", inv.ID.String()), zap.Error(logErr))
	}

	s.logger.Warn("invoice flagged as tampered",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("source", source),
		zap.String("detail", detail))

	if s.admin != "" {
		subject := fmt.Sprintf("[Invoice Alert] invoice %s may have been modified", inv.ID)
		body := fmt.Sprintf(
			"Invoice %s for customer %s failed integrity verification (%s).<br/>Detected at: %s",
			inv.ID, inv.CustomerID, detail, now.Format(time.RFC3339))
		_ = s.notifier.Notify(s.admin, subject, body)
	}
	return nil
}

// Restore overwrites the invoice's mutable fields from its latest
// snapshot and clears the tamper and report flags. This is the only
// sanctioned path out of the suspect state. Idempotent.
func (s *Service) Restore(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	snap, err := s.snapshots.LatestByInvoiceID(ctx, id)
	if err != nil {
		return nil, err
	}

	var restored models.Invoice
	if err := json.Unmarshal(snap.State, &restored); err != nil {
		return nil, fmt.Errorf("decoding snapshot for invoice %s: %w", id, err)
	}

	if err := s.invoices.ApplyRestore(ctx, inv, &restored); err != nil {
		return nil, err
	}

	s.logger.Info("invoice restored from snapshot",
		zap.String("invoice_id", id.String()),
		zap.Time("snapshot_at", snap.CreatedAt))

	return s.invoices.GetByID(ctx, id)
}

// Report marks the invoice as reported and notifies the admin. A second
// report fails with ErrAlreadyReported. The flag is persisted before
// the notification is attempted.
func (s *Service) Report(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inv.IsReported {
		return ErrAlreadyReported
	}

	now := time.Now().UTC()
	if err := s.invoices.MarkReported(ctx, inv, now); err != nil {
		return err
	}

	if s.admin != "" {
		detectedAt := now
		if inv.TamperDetectedAt != nil {
			detectedAt = *inv.TamperDetectedAt
		}
		subject := fmt.Sprintf("[Invoice Alert] invoice %s reported", inv.ID)
		body := fmt.Sprintf(
			"Invoice %s for customer %s was reported for review.<br/>Detected at: %s",
			inv.ID, inv.CustomerID, detectedAt.Format(time.RFC3339))
		_ = s.notifier.Notify(s.admin, subject, body)
	}
	return nil
}

// GetInvoice loads an invoice without verification.
func (s *Service) GetInvoice(ctx context.Context, id uuid.UUID) (*models.Invoice, error) {
	return s.invoices.GetByID(ctx, id)
}

func (s *Service) writeSnapshot(ctx context.Context, inv *models.Invoice, digest string) error {
	state, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encoding snapshot for invoice %s: %w", inv.ID, err)
	}
	return s.snapshots.Create(ctx, &models.InvoiceSnapshot{
		ID:        uuid.New(),
		InvoiceID: inv.ID,
		Digest:    digest,
		State:     state,
	})
}

func validate(inv *models.Invoice) error {
	if inv == nil {
		return fmt.Errorf("%w: nil invoice", ErrValidation)
	}
	if inv.CustomerID == uuid.Nil {
		return fmt.Errorf("%w: missing customer reference", ErrValidation)
	}
	if inv.PackageID == uuid.Nil {
		return fmt.Errorf("%w: missing package reference", ErrValidation)
	}
	if !inv.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if inv.DueDate.IsZero() {
		return fmt.Errorf("%w: missing due date", ErrValidation)
	}
	return nil
}
