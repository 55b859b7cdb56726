package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/pkg/config"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
	"github.com/arabesque/studio-api/pkg/export"
)

type exportClassService interface {
	Get(ctx context.Context, id string) (*models.ClassDetail, int, error)
}

type exportEnrollmentService interface {
	ListByClass(ctx context.Context, classInstanceID string) ([]models.EnrollmentDetail, error)
}

type exportAttendanceService interface {
	Sheet(ctx context.Context, classInstanceID string, date time.Time) ([]models.AttendanceRow, error)
}

type exportInvoiceService interface {
	Get(ctx context.Context, id string) (*models.Invoice, error)
	Payments(ctx context.Context, invoiceID string) ([]models.Payment, error)
}

// ExportFormat selects the rendered document type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes with serving metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders rosters, attendance sheets and invoices as CSV or
// PDF documents.
type ExportService struct {
	classes     exportClassService
	enrollments exportEnrollmentService
	attendance  exportAttendanceService
	invoices    exportInvoiceService
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	studio      config.ExportConfig
	logger      *zap.Logger
}

// NewExportService creates a new export service instance.
func NewExportService(classes exportClassService, enrollments exportEnrollmentService, attendance exportAttendanceService, invoices exportInvoiceService, studio config.ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		classes:     classes,
		enrollments: enrollments,
		attendance:  attendance,
		invoices:    invoices,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		studio:      studio,
		logger:      logger,
	}
}

// ClassRoster renders the enrollment roster for a class.
func (s *ExportService) ClassRoster(ctx context.Context, classInstanceID string, format ExportFormat) (*ExportResult, error) {
	class, _, err := s.classes.Get(ctx, classInstanceID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByClass(ctx, classInstanceID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Account", "Status", "Requested", "Blocked"},
	}
	for _, e := range enrollments {
		blocked := ""
		if e.BlockedOnEvaluation {
			blocked = "evaluation"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":   e.StudentName,
			"Account":   e.AccountCode,
			"Status":    string(e.Status),
			"Requested": e.RequestDate.Format("2006-01-02"),
			"Blocked":   blocked,
		})
	}

	title := fmt.Sprintf("%s roster: %s (%s)", s.studio.StudioName, class.ClassTypeName, class.TermName)
	name := fmt.Sprintf("roster-%s", classInstanceID[:8])
	return s.render(dataset, title, name, format)
}

// AttendanceSheet renders the roll for a class session date.
func (s *ExportService) AttendanceSheet(ctx context.Context, classInstanceID string, date time.Time, format ExportFormat) (*ExportResult, error) {
	class, _, err := s.classes.Get(ctx, classInstanceID)
	if err != nil {
		return nil, err
	}
	rows, err := s.attendance.Sheet(ctx, classInstanceID, date)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Status", "Notes"},
	}
	for _, row := range rows {
		notes := ""
		if row.Notes != nil {
			notes = *row.Notes
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student": row.StudentName,
			"Status":  string(row.Status),
			"Notes":   notes,
		})
	}

	day := date.Format("2006-01-02")
	title := fmt.Sprintf("%s attendance: %s %s", s.studio.StudioName, class.ClassTypeName, day)
	name := fmt.Sprintf("attendance-%s-%s", classInstanceID[:8], day)
	return s.render(dataset, title, name, format)
}

// Invoice renders an invoice with its payment history.
func (s *ExportService) Invoice(ctx context.Context, invoiceID string, format ExportFormat) (*ExportResult, error) {
	invoice, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	payments, err := s.invoices.Payments(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Item", "Value"},
		Rows: []map[string]string{
			{"Item": "Invoice", "Value": invoice.Number},
			{"Item": "Billed to", "Value": invoice.BillingName},
			{"Item": "Address", "Value": invoice.BillingAddress},
			{"Item": "Issued", "Value": invoice.IssueDate.Format("2006-01-02")},
			{"Item": "Due", "Value": invoice.DueDate.Format("2006-01-02")},
			{"Item": "Subtotal", "Value": formatCents(invoice.SubtotalCents)},
			{"Item": "Tax", "Value": formatCents(invoice.TaxCents)},
			{"Item": "Late fees", "Value": formatCents(invoice.LateFeeCents)},
			{"Item": "Total", "Value": formatCents(invoice.TotalCents + invoice.LateFeeCents)},
			{"Item": "Paid", "Value": formatCents(invoice.PaidCents)},
			{"Item": "Outstanding", "Value": formatCents(invoice.Outstanding())},
			{"Item": "Status", "Value": string(invoice.Status)},
		},
	}
	for _, payment := range payments {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Item":  "Payment " + payment.Reference,
			"Value": fmt.Sprintf("%s on %s (%s)", formatCents(payment.Cents), payment.PaidAt.Format("2006-01-02"), payment.Method),
		})
	}

	title := fmt.Sprintf("%s invoice %s", s.studio.StudioName, invoice.Number)
	name := "invoice-" + strings.ToLower(invoice.Number)
	return s.render(dataset, title, name, format)
}

func (s *ExportService) render(dataset export.Dataset, title, name string, format ExportFormat) (*ExportResult, error) {
	switch format {
	case ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{FileName: name + ".csv", ContentType: "text/csv", Data: data}, nil
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{FileName: name + ".pdf", ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
