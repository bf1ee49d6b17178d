// Package fingerprint derives a deterministic digest of an invoice's
// canonical financial state. The digest covers exactly the fields a
// tamper check cares about; display timestamps and anchor metadata are
// excluded so routine writes never change it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"invoice-integrity-backend/internal/models"
)

// canonicalInvoice fixes the field order and encoding of the digest
// input. Note carries omitempty so an empty note and an absent note
// serialize identically.
type canonicalInvoice struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	PackageID  string `json:"packageId"`
	Amount     string `json:"amount"`
	Status     string `json:"status"`
	DueDate    string `json:"dueDate"`
	Note       string `json:"note,omitempty"`
}

// Compute returns the hex SHA-256 digest of the invoice's canonical
// fields. It is pure: equal field values always yield an equal digest.
func Compute(inv models.Invoice) string {
	c := canonicalInvoice{
		ID:         inv.ID.String(),
		CustomerID: inv.CustomerID.String(),
		PackageID:  inv.PackageID.String(),
		// StringFixed normalizes decimals that differ only in exponent.
		Amount:  inv.Amount.StringFixed(2),
		Status:  inv.Status,
		DueDate: inv.DueDate.UTC().Format(time.RFC3339),
		Note:    inv.Note,
	}

	// Marshaling a flat struct of strings cannot fail.
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
