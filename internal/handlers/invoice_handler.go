package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"invoice-integrity-backend/internal/ledger"
	"invoice-integrity-backend/internal/repository"
	"invoice-integrity-backend/internal/services/integrity"
	"invoice-integrity-backend/internal/services/invoicerequest"
	"invoice-integrity-backend/internal/services/sweep"
)

type InvoiceHandler struct {
	integrity *integrity.Service
	requests  *invoicerequest.Service
	sweepJob  *sweep.Job
}

func NewInvoiceHandler(integritySvc *integrity.Service, requests *invoicerequest.Service, sweepJob *sweep.Job) *InvoiceHandler {
	return &InvoiceHandler{
		integrity: integritySvc,
		requests:  requests,
		sweepJob:  sweepJob,
	}
}

// RequestInvoice issues a confirmation token and emails the link.
func (h *InvoiceHandler) RequestInvoice(c *gin.Context) {
	var req invoicerequest.Request
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	token, err := h.requests.RequestInvoice(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, invoicerequest.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "confirmation email sent",
		"token":   token,
	})
}

// ConfirmInvoice exchanges a valid token for a created, anchored invoice.
func (h *InvoiceHandler) ConfirmInvoice(c *gin.Context) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.BindJSON(&payload); err != nil || payload.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
		return
	}

	inv, err := h.requests.ConfirmInvoice(c.Request.Context(), payload.Token)
	switch {
	case err == nil:
	case errors.Is(err, invoicerequest.ErrTokenExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "confirmation token expired"})
		return
	case errors.Is(err, invoicerequest.ErrTokenInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "confirmation token invalid"})
		return
	case errors.Is(err, invoicerequest.ErrValidation), errors.Is(err, integrity.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ledger.ErrAnchorSubmission):
		c.JSON(http.StatusBadGateway, gin.H{"error": "anchoring service rejected the submission"})
		return
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "invoice created", "invoice": inv})
}

// VerifyInvoice re-checks an invoice's integrity on demand.
func (h *InvoiceHandler) VerifyInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	status, inv, err := h.integrity.VerifyOnRead(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, integrity.ErrLedgerRecordMissing) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(statusForLookup(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": status, "invoice": inv})
}

// RestoreInvoice recovers the invoice from its latest snapshot.
func (h *InvoiceHandler) RestoreInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	inv, err := h.integrity.Restore(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot available for this invoice"})
			return
		}
		c.JSON(statusForLookup(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "invoice restored", "invoice": inv})
}

// ReportInvoice flags the invoice for admin attention.
func (h *InvoiceHandler) ReportInvoice(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return
	}

	if err := h.integrity.Report(c.Request.Context(), id); err != nil {
		if errors.Is(err, integrity.ErrAlreadyReported) {
			c.JSON(http.StatusConflict, gin.H{"error": "invoice already reported"})
			return
		}
		c.JSON(statusForLookup(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "report sent"})
}

// RunSweep triggers one reconciliation sweep synchronously.
func (h *InvoiceHandler) RunSweep(c *gin.Context) {
	run, err := h.sweepJob.RunSweepOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": run})
}

func statusForLookup(err error) int {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
