package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPConfig holds anchoring gateway settings.
type HTTPConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	// Confirmation polling: PollAttempts polls spaced PollInterval apart.
	PollInterval time.Duration
	PollAttempts int
}

// HTTPClient talks to the anchoring gateway over JSON/HTTP. A submit
// returns a receipt id which is then polled until the entry is
// confirmed, up to a fixed attempt budget.
type HTTPClient struct {
	cfg        HTTPConfig
	httpClient *http.Client
}

// NewHTTPClient creates a ledger client for the given gateway.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.PollAttempts == 0 {
		cfg.PollAttempts = 20
	}
	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

type anchorRequest struct {
	InvoiceID string `json:"invoice_id"`
	Digest    string `json:"digest"`
}

type anchorResponse struct {
	ReceiptID string `json:"receipt_id"`
}

type receiptResponse struct {
	Status    string `json:"status"` // pending | confirmed | failed
	Reference string `json:"reference"`
}

type latestResponse struct {
	Digest string `json:"digest"`
	Exists bool   `json:"exists"`
}

// Anchor submits the digest, then polls the returned receipt until the
// ledger confirms inclusion or the attempt budget is spent.
func (c *HTTPClient) Anchor(ctx context.Context, invoiceID uuid.UUID, digest string) (string, error) {
	body, _ := json.Marshal(anchorRequest{
		InvoiceID: invoiceID.String(),
		Digest:    digest,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnchorSubmission, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAnchorSubmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("%w: gateway returned %d", ErrAnchorSubmission, resp.StatusCode)
	}

	var submitted anchorResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", fmt.Errorf("%w: decoding submit response: %v", ErrAnchorSubmission, err)
	}

	// The write has landed at the gateway. From here on any failure is a
	// timeout, never a re-submission.
	return c.awaitConfirmation(ctx, submitted.ReceiptID)
}

func (c *HTTPClient) awaitConfirmation(ctx context.Context, receiptID string) (string, error) {
	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrAnchorTimeout, ctx.Err())
			case <-time.After(c.cfg.PollInterval):
			}
		}

		ref, done, err := c.checkReceipt(ctx, receiptID)
		switch {
		case errors.Is(err, ErrAnchorSubmission):
			// The ledger rejected the entry; the outcome is known, not
			// a timeout.
			return "", err
		case err != nil:
			// Transient poll failure; the attempt budget bounds retries.
			continue
		}
		if done {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: receipt %s unconfirmed after %d attempts", ErrAnchorTimeout, receiptID, c.cfg.PollAttempts)
}

func (c *HTTPClient) checkReceipt(ctx context.Context, receiptID string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/receipts/"+receiptID, nil)
	if err != nil {
		return "", false, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("receipt poll returned %d", resp.StatusCode)
	}

	var receipt receiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return "", false, err
	}
	switch receipt.Status {
	case "confirmed":
		return receipt.Reference, true, nil
	case "failed":
		return "", false, fmt.Errorf("%w: receipt %s rejected by ledger", ErrAnchorSubmission, receiptID)
	default:
		return "", false, nil
	}
}

// Latest reads the most recently anchored digest for the invoice id.
func (c *HTTPClient) Latest(ctx context.Context, invoiceID uuid.UUID) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/anchors/"+invoiceID.String()+"/latest", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", ErrNotAnchored
	default:
		return "", fmt.Errorf("%w: gateway returned %d", ErrLedgerUnavailable, resp.StatusCode)
	}

	var latest latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&latest); err != nil {
		return "", fmt.Errorf("%w: decoding latest response: %v", ErrLedgerUnavailable, err)
	}
	if !latest.Exists {
		return "", ErrNotAnchored
	}
	return latest.Digest, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
