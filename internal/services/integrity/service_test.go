package integrity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/fingerprint"
	"invoice-integrity-backend/internal/ledger"
	"invoice-integrity-backend/internal/models"
	"invoice-integrity-backend/internal/repository"
)

// fakeLedger is a scripted in-memory ledger.
type fakeLedger struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]string
	anchorErr   error
	latestErr   error
	anchorCalls int
	latestCalls int
	nextRef     string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[uuid.UUID]string{}, nextRef: "tx123"}
}

func (f *fakeLedger) Anchor(ctx context.Context, invoiceID uuid.UUID, digest string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anchorCalls++
	if f.anchorErr != nil {
		return "", f.anchorErr
	}
	f.entries[invoiceID] = digest
	return f.nextRef, nil
}

func (f *fakeLedger) Latest(ctx context.Context, invoiceID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.latestErr != nil {
		return "", f.latestErr
	}
	digest, ok := f.entries[invoiceID]
	if !ok {
		return "", ledger.ErrNotAnchored
	}
	return digest, nil
}

func (f *fakeLedger) setEntry(id uuid.UUID, digest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[id] = digest
}

// recordingNotifier captures notifications instead of sending them.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(recipient, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, recipient+": "+subject)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type testEnv struct {
	svc       *Service
	ledger    *fakeLedger
	notifier  *recordingNotifier
	db        *gorm.DB
	invoices  *repository.InvoiceRepository
	snapshots *repository.SnapshotRepository
	audit     *repository.AuditRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Invoice{},
		&models.InvoiceSnapshot{},
		&models.AnchorRecord{},
		&models.VerificationLog{},
	))

	fl := newFakeLedger()
	notifier := &recordingNotifier{}
	invoices := repository.NewInvoiceRepository(db)
	snapshots := repository.NewSnapshotRepository(db)
	audit := repository.NewAuditRepository(db)

	svc := NewService(invoices, snapshots, audit, fl, notifier, "admin@example.com", zap.NewNop())

	return &testEnv{
		svc:       svc,
		ledger:    fl,
		notifier:  notifier,
		db:        db,
		invoices:  invoices,
		snapshots: snapshots,
		audit:     audit,
	}
}

func newPendingInvoice() *models.Invoice {
	return &models.Invoice{
		CustomerID: uuid.New(),
		PackageID:  uuid.New(),
		Amount:     decimal.NewFromInt(500000),
		Status:     models.InvoiceStatusPending,
		DueDate:    time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Note:       "monthly plan",
	}
}

func TestCreateAndAnchorRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)
	require.True(t, inv.Anchored())
	assert.Equal(t, "tx123", *inv.AnchorReference)
	assert.NotNil(t, inv.AnchoredAt)

	status, _, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, status)
}

func TestCreateAndAnchorWritesSnapshotAndRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	snap, err := env.snapshots.LatestByInvoiceID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, *inv.AnchoredDigest, snap.Digest)

	recs, err := env.audit.AnchorRecordsByInvoice(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "tx123", recs[0].LedgerReference)
}

func TestCreateAndAnchorTimeoutKeepsInvoiceUnanchored(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.anchorErr = ledger.ErrAnchorTimeout
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)
	assert.False(t, inv.Anchored())

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AnchoredDigest)
	assert.Nil(t, stored.AnchorReference)

	// No snapshot exists until a successful anchor.
	_, err = env.snapshots.LatestByInvoiceID(ctx, inv.ID)
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)

	status, _, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnanchored, status)
}

func TestCreateAndAnchorSubmissionErrorFailsCreation(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.anchorErr = ledger.ErrAnchorSubmission
	ctx := context.Background()

	_, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	assert.ErrorIs(t, err, ledger.ErrAnchorSubmission)

	var count int64
	require.NoError(t, env.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCreateAndAnchorValidation(t *testing.T) {
	env := newTestEnv(t)
	inv := newPendingInvoice()
	inv.Amount = decimal.Zero

	_, err := env.svc.CreateAndAnchor(context.Background(), inv)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestVerifyOnReadLocalTamperShortCircuit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	// Simulate a DB-level tamper: mutate the stored amount directly
	// without touching the anchor metadata.
	require.NoError(t, env.db.Model(&models.Invoice{}).
		Where("id = ?", inv.ID).
		Update("amount", decimal.NewFromInt(600000)).Error)

	// Even a dead ledger must not be needed to detect this.
	env.ledger.latestErr = ledger.ErrLedgerUnavailable
	callsBefore := env.ledger.latestCalls

	status, flagged, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspect, status)
	assert.True(t, flagged.IsTampered)
	assert.NotNil(t, flagged.TamperDetectedAt)
	assert.Equal(t, callsBefore, env.ledger.latestCalls, "local mismatch must not call the ledger")

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTampered)
}

func TestVerifyOnReadLedgerTamper(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	// The ledger's latest digest diverges while local state is intact.
	env.ledger.setEntry(inv.ID, "0000000000000000000000000000000000000000000000000000000000000000")

	status, _, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspect, status)

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTampered)
}

func TestVerifyOnReadTransportFailureIsNotTampering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	env.ledger.latestErr = ledger.ErrLedgerUnavailable

	status, _, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsTampered, "transport failure must never set the tamper flag")
}

func TestVerifyOnReadLedgerDataLossIsHardError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	// Ledger forgets an entry that must exist.
	env.ledger.mu.Lock()
	delete(env.ledger.entries, inv.ID)
	env.ledger.mu.Unlock()

	_, _, err = env.svc.VerifyOnRead(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrLedgerRecordMissing)

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsTampered)
}

func TestRestoreRecoversTamperedInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.Invoice{}).
		Where("id = ?", inv.ID).
		Update("amount", decimal.NewFromInt(600000)).Error)

	status, _, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSuspect, status)

	restored, err := env.svc.Restore(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsTampered)
	assert.Nil(t, restored.TamperDetectedAt)
	assert.True(t, restored.Amount.Equal(decimal.NewFromInt(500000)))

	status, _, err = env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, status)
}

func TestRestoreIdempotence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	first, err := env.svc.Restore(ctx, inv.ID)
	require.NoError(t, err)
	second, err := env.svc.Restore(ctx, inv.ID)
	require.NoError(t, err)

	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Note, second.Note)
	assert.Equal(t, *first.AnchoredDigest, *second.AnchoredDigest)
	assert.False(t, second.IsTampered)
}

func TestRestoreWithoutSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.anchorErr = ledger.ErrAnchorTimeout
	ctx := context.Background()

	// Anchoring timed out, so no snapshot was ever written.
	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	_, err = env.svc.Restore(ctx, inv.ID)
	assert.ErrorIs(t, err, repository.ErrSnapshotNotFound)
}

func TestReportIdempotence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	require.NoError(t, env.svc.Report(ctx, inv.ID))

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsReported)
	assert.NotNil(t, stored.ReportedAt)

	assert.ErrorIs(t, env.svc.Report(ctx, inv.ID), ErrAlreadyReported)
}

func TestTamperPersistedBeforeNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.Invoice{}).
		Where("id = ?", inv.ID).
		Update("note", "edited out of band").Error)

	status, _, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSuspect, status)

	// The flag is durable regardless of what happens to the alert.
	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTampered)
	assert.GreaterOrEqual(t, env.notifier.count(), 1)
}

// Example scenario from the verification design: amount mutated from
// 500000 to 600000 directly in storage.
func TestTamperScenarioMutatedAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)
	require.Equal(t, "tx123", *inv.AnchorReference)

	require.NoError(t, env.db.Model(&models.Invoice{}).
		Where("id = ?", inv.ID).
		Update("amount", decimal.NewFromInt(600000)).Error)

	before := env.ledger.latestCalls
	status, flagged, err := env.svc.VerifyOnRead(ctx, inv.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSuspect, status)
	assert.True(t, flagged.IsTampered)
	assert.Equal(t, before, env.ledger.latestCalls)
}

func TestAnchorInvoiceSerializedPerID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	// Concurrent verifies for the same id must not corrupt state.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = env.svc.VerifyOnRead(ctx, inv.ID)
		}()
	}
	wg.Wait()

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsTampered)
	assert.Equal(t, fingerprint.Compute(*stored), *stored.AnchoredDigest)
}

func TestCreateAndAnchorKeepsInvoiceWhenBookkeepingFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The audit write after a confirmed anchor fails; the digest already
	// sits on the ledger, so the invoice must not be deleted.
	require.NoError(t, env.db.Migrator().DropTable(&models.AnchorRecord{}))

	_, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.Error(t, err)

	var count int64
	require.NoError(t, env.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	env.ledger.mu.Lock()
	entries := len(env.ledger.entries)
	env.ledger.mu.Unlock()
	assert.Equal(t, 1, entries)
}

func TestVerifyReverifiesAfterLosingRaceToRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inv, err := env.svc.CreateAndAnchor(ctx, newPendingInvoice())
	require.NoError(t, err)

	// A stale copy read before a concurrent restore completed: its
	// fields mismatch the digest and its version is behind the row.
	stale := *inv
	stale.Amount = decimal.NewFromInt(600000)
	require.NoError(t, env.db.Model(&models.Invoice{}).
		Where("id = ?", inv.ID).
		Update("version", inv.Version+1).Error)

	status, err := env.svc.Verify(ctx, &stale, models.VerificationSourceRead)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, status)

	stored, err := env.invoices.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsTampered)
	assert.Equal(t, 0, env.notifier.count(), "a superseded tamper write must not alert")
}
