package service

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/pkg/config"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type invoiceRepository interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error
	RecordPayment(ctx context.Context, payment *models.Payment) (*models.Invoice, error)
	ListPayments(ctx context.Context, invoiceID string) ([]models.Payment, error)
	MarkOverdue(ctx context.Context, asOf time.Time, lateFeeCents int64) (int64, error)
	ListBillableLines(ctx context.Context, accountID, termID string) ([]models.InvoiceLine, error)
}

type invoiceAccountRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error)
}

type invoicePersonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
}

type invoiceTermRepository interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

// GenerateInvoiceRequest describes payload for generating a term invoice.
type GenerateInvoiceRequest struct {
	AccountID     string `json:"account_id" validate:"required"`
	TermID        string `json:"term_id" validate:"required"`
	Notes         string `json:"notes"`
	CustomerNotes string `json:"customer_notes"`
}

// RecordPaymentRequest describes payload for recording a payment.
type RecordPaymentRequest struct {
	InvoiceID string     `json:"invoice_id" validate:"required"`
	Cents     int64      `json:"cents" validate:"required,gt=0"`
	Method    string     `json:"method" validate:"required"`
	PaidAt    *time.Time `json:"paid_at"`
	Notes     string     `json:"notes"`
}

// InvoiceWithLines pairs a generated invoice with its priced enrollments.
type InvoiceWithLines struct {
	Invoice *models.Invoice      `json:"invoice"`
	Lines   []models.InvoiceLine `json:"lines"`
}

// InvoiceService generates term invoices from an account's slot-holding
// enrollments and tracks payments against them.
type InvoiceService struct {
	invoices  invoiceRepository
	accounts  invoiceAccountRepository
	people    invoicePersonRepository
	terms     invoiceTermRepository
	billing   config.BillingConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInvoiceService creates a new invoice service instance.
func NewInvoiceService(invoices invoiceRepository, accounts invoiceAccountRepository, people invoicePersonRepository, terms invoiceTermRepository, billing config.BillingConfig, validate *validator.Validate, logger *zap.Logger) *InvoiceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if billing.DueInDays <= 0 {
		billing.DueInDays = 14
	}
	return &InvoiceService{
		invoices:  invoices,
		accounts:  accounts,
		people:    people,
		terms:     terms,
		billing:   billing,
		validator: validate,
		logger:    logger,
	}
}

// List returns paginated invoices.
func (s *InvoiceService) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, *models.Pagination, error) {
	invoices, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	}
	return invoices, pagination, nil
}

// Get returns an invoice by ID.
func (s *InvoiceService) Get(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return invoice, nil
}

// Payments returns the payments recorded against an invoice.
func (s *InvoiceService) Payments(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	payments, err := s.invoices.ListPayments(ctx, invoiceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, nil
}

// Generate prices the account's slot-holding enrollments for a term and
// writes a draft invoice. The billing contact's identity is snapshotted onto
// the invoice so later swaps do not rewrite history.
func (s *InvoiceService) Generate(ctx context.Context, req GenerateInvoiceRequest) (*InvoiceWithLines, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}

	account, err := s.accounts.FindDetailByID(ctx, req.AccountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.Status == models.AccountStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrAccountClosed, "closed accounts cannot be invoiced")
	}

	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	billingPerson, err := s.people.FindByID(ctx, account.BillingPersonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load billing contact")
	}

	lines, err := s.invoices.ListBillableLines(ctx, req.AccountID, req.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to price enrollments")
	}
	if len(lines) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "account has no billable enrollments for this term")
	}

	var subtotal int64
	for _, line := range lines {
		subtotal += line.PriceCents
	}
	tax := int64(math.Round(float64(subtotal) * s.billing.DefaultTaxRate))

	billingEmail := ""
	if billingPerson.Email != nil {
		billingEmail = *billingPerson.Email
	}

	now := time.Now().UTC()
	termID := req.TermID
	invoice := &models.Invoice{
		AccountID:      req.AccountID,
		TermID:         &termID,
		BillingName:    billingPerson.FullName(),
		BillingEmail:   billingEmail,
		BillingAddress: billingPerson.MailingAddress(),
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, s.billing.DueInDays),
		SubtotalCents:  subtotal,
		TaxRate:        s.billing.DefaultTaxRate,
		TaxCents:       tax,
		TotalCents:     subtotal + tax,
		Status:         models.InvoiceStatusDraft,
		Notes:          req.Notes,
		CustomerNotes:  req.CustomerNotes,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
	}

	s.logger.Info("invoice generated",
		zap.String("invoice_id", invoice.ID),
		zap.String("number", invoice.Number),
		zap.String("account_id", req.AccountID),
		zap.Int64("total_cents", invoice.TotalCents))
	return &InvoiceWithLines{Invoice: invoice, Lines: lines}, nil
}

// Send issues a draft invoice to the billing contact.
func (s *InvoiceService) Send(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "only draft invoices can be sent")
	}
	if err := s.invoices.UpdateStatus(ctx, id, models.InvoiceStatusSent); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send invoice")
	}
	invoice.Status = models.InvoiceStatusSent
	return invoice, nil
}

// Cancel voids an invoice that has not collected any money.
func (s *InvoiceService) Cancel(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoiceStatusPaid || invoice.PaidCents > 0 {
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "invoices with payments cannot be cancelled")
	}
	if invoice.Status == models.InvoiceStatusCancelled {
		return invoice, nil
	}
	if err := s.invoices.UpdateStatus(ctx, id, models.InvoiceStatusCancelled); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel invoice")
	}
	invoice.Status = models.InvoiceStatusCancelled
	return invoice, nil
}

// RecordPayment applies money to an invoice. The paid total and status roll
// forward under the invoice row lock.
func (s *InvoiceService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	invoice, err := s.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	switch invoice.Status {
	case models.InvoiceStatusDraft:
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "draft invoices cannot take payments")
	case models.InvoiceStatusCancelled:
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "cancelled invoices cannot take payments")
	case models.InvoiceStatusPaid:
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice is already paid in full")
	}
	if req.Cents > invoice.Outstanding() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment exceeds the outstanding balance")
	}

	paidAt := time.Now().UTC()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}
	payment := &models.Payment{
		InvoiceID: req.InvoiceID,
		Cents:     req.Cents,
		Method:    req.Method,
		PaidAt:    paidAt,
		Notes:     req.Notes,
	}
	updated, err := s.invoices.RecordPayment(ctx, payment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	s.logger.Info("payment recorded",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("reference", payment.Reference),
		zap.Int64("cents", req.Cents),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// SweepOverdue flips sent and partially paid invoices past their due date to
// overdue, applying the configured late fee.
func (s *InvoiceService) SweepOverdue(ctx context.Context) (int64, error) {
	flipped, err := s.invoices.MarkOverdue(ctx, time.Now().UTC(), s.billing.LateFeeCents)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep overdue invoices")
	}
	if flipped > 0 {
		s.logger.Info("invoices marked overdue", zap.Int64("count", flipped))
	}
	return flipped, nil
}
