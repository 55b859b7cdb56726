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

const attendanceColumns = "id, enrollment_id, date, status, marked_by_id, notes, created_at, updated_at"

// AttendanceRepository handles persistence of attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// Upsert writes the attendance record for (enrollment, date), overwriting
// any previous status for the pair.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO attendance_records (id, enrollment_id, date, status, marked_by_id, notes, created_at, updated_at)
	VALUES (:id, :enrollment_id, :date, :status, :marked_by_id, :notes, :created_at, :updated_at)
	ON CONFLICT (enrollment_id, date) DO UPDATE SET status = EXCLUDED.status, marked_by_id = EXCLUDED.marked_by_id, notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

// Find returns the attendance record for an enrollment on a date.
func (r *AttendanceRepository) Find(ctx context.Context, enrollmentID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM attendance_records WHERE enrollment_id = $1 AND date = $2", attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, enrollmentID, date); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns attendance records matching the filter.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := " FROM attendance_records ar WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("ar.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.ClassInstanceID != "" {
		conditions = append(conditions, fmt.Sprintf("ar.enrollment_id IN (SELECT id FROM enrollments WHERE class_instance_id = $%d)", len(args)+1))
		args = append(args, filter.ClassInstanceID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("ar.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("ar.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"date":       "ar.date",
		"status":     "ar.status",
		"created_at": "ar.created_at",
	}
	if mapped, ok := allowedSorts[sortBy]; ok {
		sortBy = mapped
	} else {
		sortBy = "ar.date"
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

	query := fmt.Sprintf("SELECT ar.id, ar.enrollment_id, ar.date, ar.status, ar.marked_by_id, ar.notes, ar.created_at, ar.updated_at%s ORDER BY %s %s LIMIT %d OFFSET %d", base, sortBy, order, size, offset)

	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// SheetForClassDate returns one row per attendance-eligible enrollment in a
// class for a session date, with recorded status where present.
func (r *AttendanceRepository) SheetForClassDate(ctx context.Context, classInstanceID string, date time.Time) ([]models.AttendanceRow, error) {
	const query = `SELECT e.id AS enrollment_id, a.student_id,
	sp.given_name || ' ' || sp.family_name AS student_name,
	COALESCE(ar.status, '') AS status, ar.notes
	FROM enrollments e
	JOIN accounts a ON a.id = e.account_id
	JOIN students s ON s.id = a.student_id
	JOIN people sp ON sp.id = s.person_id
	LEFT JOIN attendance_records ar ON ar.enrollment_id = e.id AND ar.date = $2
	WHERE e.class_instance_id = $1 AND e.status IN ($3, $4)
	ORDER BY student_name`
	var rows []models.AttendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, classInstanceID, date, models.EnrollmentStatusTrial, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("attendance sheet: %w", err)
	}
	return rows, nil
}

// SummaryForEnrollment aggregates presence counts for an enrollment.
func (r *AttendanceRepository) SummaryForEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	const query = `SELECT
	COUNT(*) FILTER (WHERE status = $2) AS present,
	COUNT(*) FILTER (WHERE status = $3) AS absent,
	COUNT(*) FILTER (WHERE status = $4) AS late,
	COUNT(*) FILTER (WHERE status = $5) AS excused,
	COUNT(*) AS total
	FROM attendance_records WHERE enrollment_id = $1`
	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, enrollmentID,
		models.AttendanceStatusPresent, models.AttendanceStatusAbsent, models.AttendanceStatusLate, models.AttendanceStatusExcused); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	if summary.Total > 0 {
		summary.Rate = float64(summary.Present+summary.Late) / float64(summary.Total)
	}
	return &summary, nil
}
