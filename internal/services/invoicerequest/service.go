// Package invoicerequest implements the deferred-confirmation protocol:
// an invoice request is encoded into a short-lived signed token and
// delivered by email; the invoice is created and anchored only when the
// user confirms with a still-valid token.
package invoicerequest

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoice-integrity-backend/internal/models"
	"invoice-integrity-backend/internal/notify"
	"invoice-integrity-backend/internal/repository"
	"invoice-integrity-backend/internal/services/integrity"
)

// ErrValidation marks a malformed invoice request.
var ErrValidation = errors.New("invoicerequest: invalid request")

// Request carries the fields of an intended invoice.
type Request struct {
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	PackageID uuid.UUID `json:"package_id"`
	Note      string    `json:"note"`
}

type Service struct {
	customers  *repository.CustomerRepository
	packages   *repository.PackageRepository
	integrity  *integrity.Service
	codec      *TokenCodec
	notifier   notify.Notifier
	confirmURL string
	logger     *zap.Logger
}

func NewService(
	customers *repository.CustomerRepository,
	packages *repository.PackageRepository,
	integritySvc *integrity.Service,
	codec *TokenCodec,
	notifier notify.Notifier,
	confirmURL string,
	logger *zap.Logger,
) *Service {
	return &Service{
		customers:  customers,
		packages:   packages,
		integrity:  integritySvc,
		codec:      codec,
		notifier:   notifier,
		confirmURL: confirmURL,
		logger:     logger,
	}
}

// RequestInvoice normalizes the customer identity, issues a signed
// confirmation token, and emails the confirmation link. No invoice
// state is created here.
func (s *Service) RequestInvoice(ctx context.Context, req Request) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}

	pkg, err := s.packages.GetByID(ctx, req.PackageID)
	if err != nil {
		return "", fmt.Errorf("%w: unknown package %s", ErrValidation, req.PackageID)
	}

	customer, err := s.upsertCustomer(ctx, req)
	if err != nil {
		return "", err
	}

	token, err := s.codec.Issue(customer.ID, pkg.ID, req.Email, req.Note, time.Now().UTC())
	if err != nil {
		return "", err
	}

	confirmLink := fmt.Sprintf("%s?token=%s", s.confirmURL, token)
	subject := "Confirm your invoice"
	body := fmt.Sprintf(`
		<p>Hello %s,</p>
		<p>You requested an invoice for the <strong>%s</strong> package (%s).</p>
		<p><a href="%s">Confirm invoice</a></p>
		<p>The link expires in 30 minutes. If you did not request this, ignore this email.</p>`,
		customer.FullName, pkg.Name, pkg.Price.StringFixed(2), confirmLink)

	if err := s.notifier.Notify(req.Email, subject, body); err != nil {
		s.logger.Warn("confirmation email delivery failed",
			zap.String("email", req.Email), zap.Error(err))
	}

	return token, nil
}

// ConfirmInvoice verifies the token and only then creates and anchors
// the invoice. Expired or invalid tokens fail closed with no state
// created.
func (s *Service) ConfirmInvoice(ctx context.Context, tokenStr string) (*models.Invoice, error) {
	claims, err := s.codec.Verify(tokenStr)
	if err != nil {
		return nil, err
	}

	customerID, err := uuid.Parse(claims.CustomerID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	packageID, err := uuid.Parse(claims.PackageID)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown package %s", ErrValidation, packageID)
	}

	inv := &models.Invoice{
		ID:         uuid.New(),
		CustomerID: customerID,
		PackageID:  pkg.ID,
		Amount:     pkg.Price,
		Status:     models.InvoiceStatusPending,
		DueDate:    time.Now().UTC().AddDate(0, pkg.DurationMonths, 0),
		Note:       claims.Note,
	}

	return s.integrity.CreateAndAnchor(ctx, inv)
}

// upsertCustomer creates the customer by email or refreshes contact
// fields that changed.
func (s *Service) upsertCustomer(ctx context.Context, req Request) (*models.Customer, error) {
	customer, err := s.customers.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		customer = &models.Customer{
			ID:       uuid.New(),
			FullName: req.FullName,
			Email:    req.Email,
			Phone:    req.Phone,
			Address:  req.Address,
		}
		if err := s.customers.Create(ctx, customer); err != nil {
			return nil, err
		}
		return customer, nil
	}

	changed := false
	if req.FullName != "" && customer.FullName != req.FullName {
		customer.FullName = req.FullName
		changed = true
	}
	if req.Phone != "" && customer.Phone != req.Phone {
		customer.Phone = req.Phone
		changed = true
	}
	if req.Address != "" && customer.Address != req.Address {
		customer.Address = req.Address
		changed = true
	}
	if changed {
		if err := s.customers.Update(ctx, customer); err != nil {
			return nil, err
		}
	}
	return customer, nil
}

func validateRequest(req Request) error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if req.FullName == "" {
		return fmt.Errorf("%w: missing full name", ErrValidation)
	}
	if req.PackageID == uuid.Nil {
		return fmt.Errorf("%w: missing package reference", ErrValidation)
	}
	return nil
}
