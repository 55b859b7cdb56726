package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceStatus represents the billing lifecycle of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusSent          InvoiceStatus = "SENT"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// Invoice bills an account, optionally for a specific term. Billing contact
// identity is snapshotted at generation time. Amounts are in cents.
type Invoice struct {
	ID             string        `db:"id" json:"id"`
	Number         string        `db:"number" json:"number"`
	AccountID      string        `db:"account_id" json:"account_id"`
	TermID         *string       `db:"term_id" json:"term_id,omitempty"`
	BillingName    string        `db:"billing_name" json:"billing_name"`
	BillingEmail   string        `db:"billing_email" json:"billing_email"`
	BillingAddress string        `db:"billing_address" json:"billing_address"`
	IssueDate      time.Time     `db:"issue_date" json:"issue_date"`
	DueDate        time.Time     `db:"due_date" json:"due_date"`
	SubtotalCents  int64         `db:"subtotal_cents" json:"subtotal_cents"`
	TaxRate        float64       `db:"tax_rate" json:"tax_rate"`
	TaxCents       int64         `db:"tax_cents" json:"tax_cents"`
	TotalCents     int64         `db:"total_cents" json:"total_cents"`
	PaidCents      int64         `db:"paid_cents" json:"paid_cents"`
	LateFeeCents   int64         `db:"late_fee_cents" json:"late_fee_cents"`
	Status         InvoiceStatus `db:"status" json:"status"`
	Notes          string        `db:"notes" json:"notes,omitempty"`
	CustomerNotes  string        `db:"customer_notes" json:"customer_notes,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Outstanding returns the unpaid balance in cents.
func (i *Invoice) Outstanding() int64 {
	outstanding := i.TotalCents + i.LateFeeCents - i.PaidCents
	if outstanding < 0 {
		return 0
	}
	return outstanding
}

// InvoiceLine is one billable enrollment priced for invoicing.
type InvoiceLine struct {
	EnrollmentID  string `db:"enrollment_id" json:"enrollment_id"`
	ClassTypeName string `db:"class_type_name" json:"class_type_name"`
	Level         string `db:"level" json:"level"`
	PriceCents    int64  `db:"price_cents" json:"price_cents"`
}

// Payment records money received against an invoice.
type Payment struct {
	ID        string    `db:"id" json:"id"`
	Reference string    `db:"reference" json:"reference"`
	InvoiceID string    `db:"invoice_id" json:"invoice_id"`
	Cents     int64     `db:"cents" json:"cents"`
	Method    string    `db:"method" json:"method"`
	PaidAt    time.Time `db:"paid_at" json:"paid_at"`
	Notes     string    `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GenerateInvoiceNumber produces a unique human-facing invoice number.
func GenerateInvoiceNumber() string {
	return "INV-" + strings.ToUpper(uuid.NewString()[:8])
}

// GeneratePaymentReference produces a unique human-facing payment reference.
func GeneratePaymentReference() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}

// InvoiceFilter provides filters for listing invoices.
type InvoiceFilter struct {
	AccountID string
	TermID    string
	Status    InvoiceStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
