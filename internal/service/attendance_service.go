package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) error
	Find(ctx context.Context, enrollmentID string, date time.Time) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	SheetForClassDate(ctx context.Context, classInstanceID string, date time.Time) ([]models.AttendanceRow, error)
	SummaryForEnrollment(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error)
}

type attendanceEnrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type attendanceClassRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

type attendanceStaffRepository interface {
	FindStaffByID(ctx context.Context, id string) (*models.Staff, error)
}

// MarkAttendanceRequest describes payload for marking attendance.
type MarkAttendanceRequest struct {
	EnrollmentID string                  `json:"enrollment_id" validate:"required"`
	Date         time.Time               `json:"date" validate:"required"`
	Status       models.AttendanceStatus `json:"status" validate:"required"`
	MarkedByID   *string                 `json:"marked_by_id"`
	Notes        *string                 `json:"notes"`
}

// AttendanceService keeps per-session presence records. One record per
// (enrollment, date); re-marking overwrites.
type AttendanceService struct {
	attendance  attendanceRepository
	enrollments attendanceEnrollmentRepository
	classes     attendanceClassRepository
	staff       attendanceStaffRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService creates a new attendance service instance.
func NewAttendanceService(attendance attendanceRepository, enrollments attendanceEnrollmentRepository, classes attendanceClassRepository, staff attendanceStaffRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		attendance:  attendance,
		enrollments: enrollments,
		classes:     classes,
		staff:       staff,
		validator:   validate,
		logger:      logger,
	}
}

// Mark records presence for an enrollment on a session date. The enrollment
// must be in trial or active, the date must not be in the future and must
// fall within the class's term.
func (s *AttendanceService) Mark(ctx context.Context, req MarkAttendanceRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Status.PermitsAttendance() {
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "attendance requires a trial or active enrollment")
	}

	date := req.Date.UTC().Truncate(24 * time.Hour)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if date.After(today) {
		return nil, appErrors.Clone(appErrors.ErrFutureDate, "attendance date cannot be in the future")
	}

	class, err := s.classes.FindDetailByID(ctx, enrollment.ClassInstanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if date.Before(class.TermStart) || date.After(class.TermEnd) {
		return nil, appErrors.Clone(appErrors.ErrOutOfTerm, "attendance date falls outside the class term")
	}

	if req.MarkedByID != nil {
		if _, err := s.staff.FindStaffByID(ctx, *req.MarkedByID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "marking staff member not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff member")
		}
	}

	record := &models.AttendanceRecord{
		EnrollmentID: req.EnrollmentID,
		Date:         date,
		Status:       req.Status,
		MarkedByID:   req.MarkedByID,
		Notes:        req.Notes,
	}
	if err := s.attendance.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance record")
	}

	s.logger.Info("attendance marked",
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("date", date.Format("2006-01-02")),
		zap.String("status", string(req.Status)))
	return record, nil
}

// List returns paginated attendance records.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance records")
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
	return records, pagination, nil
}

// Sheet returns the roll for a class on one session date: every trial or
// active enrollment with its recorded status, blank where unmarked.
func (s *AttendanceService) Sheet(ctx context.Context, classInstanceID string, date time.Time) ([]models.AttendanceRow, error) {
	if _, err := s.classes.FindDetailByID(ctx, classInstanceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	rows, err := s.attendance.SheetForClassDate(ctx, classInstanceID, date.UTC().Truncate(24*time.Hour))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build attendance sheet")
	}
	return rows, nil
}

// Summary aggregates presence counts for one enrollment.
func (s *AttendanceService) Summary(ctx context.Context, enrollmentID string) (*models.AttendanceSummary, error) {
	if _, err := s.enrollments.FindByID(ctx, enrollmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	summary, err := s.attendance.SummaryForEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize attendance")
	}
	return summary, nil
}
