package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arabesque/studio-api/internal/models"
)

const invoiceColumns = "id, number, account_id, term_id, billing_name, billing_email, billing_address, issue_date, due_date, subtotal_cents, tax_rate, tax_cents, total_cents, paid_cents, late_fee_cents, status, notes, customer_notes, created_at, updated_at"

// InvoiceRepository handles persistence of invoices and payments.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// List returns invoices matching the filter.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	base := " FROM invoices WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AccountID != "" {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", len(args)+1))
		args = append(args, filter.AccountID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"issue_date":  true,
		"due_date":    true,
		"total_cents": true,
		"status":      true,
		"created_at":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "issue_date"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s%s ORDER BY %s %s LIMIT %d OFFSET %d", invoiceColumns, base, sortBy, order, size, offset)

	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// FindByID loads an invoice by identifier.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	query := fmt.Sprintf("SELECT %s FROM invoices WHERE id = $1", invoiceColumns)
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// Create inserts a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.Number == "" {
		invoice.Number = models.GenerateInvoiceNumber()
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	const query = `INSERT INTO invoices (id, number, account_id, term_id, billing_name, billing_email, billing_address, issue_date, due_date, subtotal_cents, tax_rate, tax_cents, total_cents, paid_cents, late_fee_cents, status, notes, customer_notes, created_at, updated_at) VALUES (:id, :number, :account_id, :term_id, :billing_name, :billing_email, :billing_address, :issue_date, :due_date, :subtotal_cents, :tax_rate, :tax_cents, :total_cents, :paid_cents, :late_fee_cents, :status, :notes, :customer_notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// UpdateStatus changes the invoice status.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id string, status models.InvoiceStatus) error {
	const query = `UPDATE invoices SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return nil
}

// RecordPayment inserts the payment and rolls the invoice's paid total and
// status forward in one transaction. The invoice row is locked so concurrent
// payments cannot lose an increment.
func (r *InvoiceRepository) RecordPayment(ctx context.Context, payment *models.Payment) (*models.Invoice, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Reference == "" {
		payment.Reference = models.GeneratePaymentReference()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var invoice models.Invoice
	if err = tx.GetContext(ctx, &invoice,
		fmt.Sprintf("SELECT %s FROM invoices WHERE id = $1 FOR UPDATE", invoiceColumns), payment.InvoiceID); err != nil {
		return nil, err
	}

	if _, err = tx.NamedExecContext(ctx,
		`INSERT INTO payments (id, reference, invoice_id, cents, method, paid_at, notes, created_at) VALUES (:id, :reference, :invoice_id, :cents, :method, :paid_at, :notes, :created_at)`,
		payment); err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	invoice.PaidCents += payment.Cents
	if invoice.PaidCents >= invoice.TotalCents+invoice.LateFeeCents {
		invoice.Status = models.InvoiceStatusPaid
	} else {
		invoice.Status = models.InvoiceStatusPartiallyPaid
	}
	invoice.UpdatedAt = now

	if _, err = tx.ExecContext(ctx,
		`UPDATE invoices SET paid_cents = $2, status = $3, updated_at = $4 WHERE id = $1`,
		invoice.ID, invoice.PaidCents, invoice.Status, invoice.UpdatedAt); err != nil {
		return nil, fmt.Errorf("apply payment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment tx: %w", err)
	}
	return &invoice, nil
}

// ListPayments returns payments against an invoice, newest first.
func (r *InvoiceRepository) ListPayments(ctx context.Context, invoiceID string) ([]models.Payment, error) {
	const query = `SELECT id, reference, invoice_id, cents, method, paid_at, notes, created_at FROM payments WHERE invoice_id = $1 ORDER BY paid_at DESC`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, invoiceID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// MarkOverdue flips sent and partially paid invoices past their due date to
// overdue, optionally adding a late fee. Returns the number of rows flipped.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, asOf time.Time, lateFeeCents int64) (int64, error) {
	const query = `UPDATE invoices SET status = $1, late_fee_cents = late_fee_cents + $2, updated_at = $3 WHERE status IN ($4, $5) AND due_date < $6`
	result, err := r.db.ExecContext(ctx, query, models.InvoiceStatusOverdue, lateFeeCents, time.Now().UTC(),
		models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark invoices overdue: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark invoices overdue: %w", err)
	}
	return affected, nil
}

// ListBillableLines prices an account's slot-holding enrollments for a term.
// Waitlisted, withdrawn and evaluation-blocked enrollments carry no charge.
func (r *InvoiceRepository) ListBillableLines(ctx context.Context, accountID, termID string) ([]models.InvoiceLine, error) {
	const query = `SELECT e.id AS enrollment_id, ct.name AS class_type_name, ct.level, ct.price_cents
		FROM enrollments e
		JOIN class_instances c ON c.id = e.class_instance_id
		JOIN class_types ct ON ct.id = c.class_type_id
		WHERE e.account_id = $1 AND c.term_id = $2
		  AND e.blocked_on_evaluation = FALSE
		  AND e.status NOT IN ($3, $4)
		ORDER BY ct.name`
	var lines []models.InvoiceLine
	if err := r.db.SelectContext(ctx, &lines, query, accountID, termID,
		models.EnrollmentStatusWithdrawn, models.EnrollmentStatusWaitlist); err != nil {
		return nil, fmt.Errorf("list billable lines: %w", err)
	}
	return lines, nil
}
