// Package ledger abstracts the external anchoring service as an opaque
// invoice-id -> (digest, existence) store reachable over the network.
package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrAnchorSubmission means the entry did not land: the write call
	// failed outright or the ledger definitively rejected the receipt.
	ErrAnchorSubmission = errors.New("ledger: anchor submission failed")

	// ErrAnchorTimeout means the submission was accepted but confirmation
	// was not observed within the polling budget. The outcome is unknown:
	// the entry may still land, so callers must not re-submit.
	ErrAnchorTimeout = errors.New("ledger: anchor confirmation timed out")

	// ErrLedgerUnavailable means a read call failed in transport. It says
	// nothing about the anchored data and is safe to retry.
	ErrLedgerUnavailable = errors.New("ledger: unavailable")

	// ErrNotAnchored is the valid negative read result: no digest has
	// ever been anchored for the invoice id.
	ErrNotAnchored = errors.New("ledger: invoice not anchored")
)

// Client is the anchoring contract consumed by the integrity service.
type Client interface {
	// Anchor submits digest for inclusion under invoiceID and waits for
	// confirmation. On success it returns the opaque ledger reference.
	// Anchor never re-submits after a partial success; on
	// ErrAnchorTimeout the entry may or may not exist.
	Anchor(ctx context.Context, invoiceID uuid.UUID, digest string) (string, error)

	// Latest reads the most recently anchored digest for invoiceID.
	// Returns ErrNotAnchored if the id has never been anchored and
	// ErrLedgerUnavailable on transport failure.
	Latest(ctx context.Context, invoiceID uuid.UUID) (string, error)
}
