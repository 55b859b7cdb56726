package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/pkg/config"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type mockInvoiceRepo struct {
	invoices map[string]*models.Invoice
	lines    []models.InvoiceLine
	created  *models.Invoice
	payment  *models.Payment
	statuses map[string]models.InvoiceStatus
	overdue  int64
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	return nil, 0, nil
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	if inv, ok := m.invoices[id]; ok {
		copied := *inv
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	invoice.ID = "new-invoice"
	invoice.Number = "INV-2026-0001"
	m.created = invoice
	return nil
}

func (m *mockInvoiceRepo) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.InvoiceStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockInvoiceRepo) RecordPayment(ctx context.Context, payment *models.Payment) (*models.Invoice, error) {
	m.payment = payment
	inv := m.invoices[payment.InvoiceID]
	updated := *inv
	updated.PaidCents += payment.Cents
	if updated.Outstanding() == 0 {
		updated.Status = models.InvoiceStatusPaid
	} else {
		updated.Status = models.InvoiceStatusPartiallyPaid
	}
	return &updated, nil
}

func (m *mockInvoiceRepo) ListPayments(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	return nil, nil
}

func (m *mockInvoiceRepo) MarkOverdue(ctx context.Context, asOf time.Time, lateFeeCents int64) (int64, error) {
	return m.overdue, nil
}

func (m *mockInvoiceRepo) ListBillableLines(ctx context.Context, accountID, termID string) ([]models.InvoiceLine, error) {
	return m.lines, nil
}

type mockInvoiceAccounts struct {
	accounts map[string]*models.AccountDetail
}

func (m *mockInvoiceAccounts) FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type mockInvoicePeople struct{}

func (m *mockInvoicePeople) FindByID(ctx context.Context, id string) (*models.Person, error) {
	email := "billing@example.com"
	return &models.Person{ID: id, GivenName: "Dana", FamilyName: "Reyes", Email: &email}, nil
}

type mockInvoiceTerms struct{}

func (m *mockInvoiceTerms) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Term{ID: id}, nil
}

func billingAccount(status models.AccountStatus) *models.AccountDetail {
	return &models.AccountDetail{
		Account:         models.Account{ID: "acc-1", StudentID: "stu-1", Status: status},
		BillingPersonID: "per-1",
	}
}

func newTestInvoiceService(repo *mockInvoiceRepo, accounts *mockInvoiceAccounts) *InvoiceService {
	billing := config.BillingConfig{DefaultTaxRate: 0.1, DueInDays: 14, LateFeeCents: 500}
	return NewInvoiceService(repo, accounts, &mockInvoicePeople{}, &mockInvoiceTerms{}, billing, validator.New(), zap.NewNop())
}

func TestInvoiceServiceGenerate(t *testing.T) {
	repo := &mockInvoiceRepo{lines: []models.InvoiceLine{
		{EnrollmentID: "e1", ClassTypeName: "Ballet Foundations", PriceCents: 24000},
		{EnrollmentID: "e2", ClassTypeName: "Jazz Intermediate", PriceCents: 26000},
	}}
	accounts := &mockInvoiceAccounts{accounts: map[string]*models.AccountDetail{"acc-1": billingAccount(models.AccountStatusActive)}}
	svc := newTestInvoiceService(repo, accounts)

	result, err := svc.Generate(context.Background(), GenerateInvoiceRequest{AccountID: "acc-1", TermID: "term-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(50000), result.Invoice.SubtotalCents)
	assert.Equal(t, int64(5000), result.Invoice.TaxCents)
	assert.Equal(t, int64(55000), result.Invoice.TotalCents)
	assert.Equal(t, models.InvoiceStatusDraft, result.Invoice.Status)
	assert.Equal(t, "Dana Reyes", result.Invoice.BillingName)
	assert.Equal(t, "billing@example.com", result.Invoice.BillingEmail)
	assert.Len(t, result.Lines, 2)
}

func TestInvoiceServiceGenerateClosedAccount(t *testing.T) {
	repo := &mockInvoiceRepo{}
	accounts := &mockInvoiceAccounts{accounts: map[string]*models.AccountDetail{"acc-1": billingAccount(models.AccountStatusClosed)}}
	svc := newTestInvoiceService(repo, accounts)

	_, err := svc.Generate(context.Background(), GenerateInvoiceRequest{AccountID: "acc-1", TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAccountClosed.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestInvoiceServiceGenerateNothingBillable(t *testing.T) {
	repo := &mockInvoiceRepo{}
	accounts := &mockInvoiceAccounts{accounts: map[string]*models.AccountDetail{"acc-1": billingAccount(models.AccountStatusActive)}}
	svc := newTestInvoiceService(repo, accounts)

	_, err := svc.Generate(context.Background(), GenerateInvoiceRequest{AccountID: "acc-1", TermID: "term-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceSend(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusDraft},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	invoice, err := svc.Send(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, invoice.Status)
	assert.Equal(t, models.InvoiceStatusSent, repo.statuses["inv-1"])

	_, err = svc.Send(context.Background(), "inv-1")
	require.NoError(t, err)
}

func TestInvoiceServiceSendRejectsNonDraft(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusSent},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	_, err := svc.Send(context.Background(), "inv-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateTransition.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceCancelWithPaymentsRejected(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPartiallyPaid, TotalCents: 10000, PaidCents: 4000},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	_, err := svc.Cancel(context.Background(), "inv-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateTransition.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceCancelIdempotent(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusCancelled},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	invoice, err := svc.Cancel(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusCancelled, invoice.Status)
	assert.Empty(t, repo.statuses)
}

func TestInvoiceServiceRecordPayment(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusSent, TotalCents: 10000},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	invoice, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: "inv-1", Cents: 4000, Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPartiallyPaid, invoice.Status)
	assert.Equal(t, int64(4000), invoice.PaidCents)
	require.NotNil(t, repo.payment)
}

func TestInvoiceServiceRecordPaymentSettles(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPartiallyPaid, TotalCents: 10000, PaidCents: 6000},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	invoice, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: "inv-1", Cents: 4000, Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, invoice.Status)
}

func TestInvoiceServiceRecordPaymentRejectsDraft(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusDraft, TotalCents: 10000},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: "inv-1", Cents: 1000, Method: "card"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateTransition.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceRecordPaymentRejectsOverpayment(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusSent, TotalCents: 10000, PaidCents: 8000},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: "inv-1", Cents: 3000, Method: "card"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceRecordPaymentRejectsPaid(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]*models.Invoice{
		"inv-1": {ID: "inv-1", Status: models.InvoiceStatusPaid, TotalCents: 10000, PaidCents: 10000},
	}}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	_, err := svc.RecordPayment(context.Background(), RecordPaymentRequest{InvoiceID: "inv-1", Cents: 100, Method: "card"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestInvoiceServiceSweepOverdue(t *testing.T) {
	repo := &mockInvoiceRepo{overdue: 2}
	svc := newTestInvoiceService(repo, &mockInvoiceAccounts{})

	flipped, err := svc.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), flipped)
}
