package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/internal/repository"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type evaluationRepository interface {
	List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Evaluation, error)
	FindCurrent(ctx context.Context, studentID, genreID string, at time.Time) (*models.Evaluation, error)
	CreateSuperseding(ctx context.Context, evaluation *models.Evaluation) error
	ExpireStale(ctx context.Context, at time.Time) (int64, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Evaluation, error)
}

type evaluationRoleRepository interface {
	FindStudentByID(ctx context.Context, id string) (*models.Student, error)
	FindStaffByID(ctx context.Context, id string) (*models.Staff, error)
}

type evaluationGenreRepository interface {
	FindGenreByID(ctx context.Context, id string) (*models.Genre, error)
}

type evaluationEnrollmentRepository interface {
	ListBlockedByStudentGenre(ctx context.Context, studentID, genreID string) ([]models.Enrollment, error)
	ClearEvaluationBlock(ctx context.Context, id string) (*models.Enrollment, error)
}

type evaluationClassRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

// RecordEvaluationRequest describes payload for recording an evaluation.
type RecordEvaluationRequest struct {
	StudentID      string     `json:"student_id" validate:"required"`
	GenreID        string     `json:"genre_id" validate:"required"`
	LevelAchieved  string     `json:"level_achieved" validate:"required"`
	EvaluationDate time.Time  `json:"evaluation_date" validate:"required"`
	ValidUntil     *time.Time `json:"valid_until"`
	EvaluatedByID  string     `json:"evaluated_by_id" validate:"required"`
	Notes          string     `json:"notes"`
}

// Eligibility reports the student's standing for a genre.
type Eligibility struct {
	StudentID  string             `json:"student_id"`
	GenreID    string             `json:"genre_id"`
	Eligible   bool               `json:"eligible"`
	Level      string             `json:"level,omitempty"`
	LevelRank  int                `json:"level_rank,omitempty"`
	ValidUntil *time.Time         `json:"valid_until,omitempty"`
	Evaluation *models.Evaluation `json:"evaluation,omitempty"`
}

// EvaluationService orchestrates the evaluation ledger. Recording a new
// evaluation supersedes the prior one for the pair and lifts any enrollment
// applications held behind the evaluation gate.
type EvaluationService struct {
	evaluations    evaluationRepository
	roles          evaluationRoleRepository
	genres         evaluationGenreRepository
	enrollments    evaluationEnrollmentRepository
	classes        evaluationClassRepository
	validityMonths int
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewEvaluationService creates a new evaluation service instance.
func NewEvaluationService(evaluations evaluationRepository, roles evaluationRoleRepository, genres evaluationGenreRepository, enrollments evaluationEnrollmentRepository, classes evaluationClassRepository, validityMonths int, validate *validator.Validate, logger *zap.Logger) *EvaluationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if validityMonths <= 0 {
		validityMonths = 12
	}
	return &EvaluationService{
		evaluations:    evaluations,
		roles:          roles,
		genres:         genres,
		enrollments:    enrollments,
		classes:        classes,
		validityMonths: validityMonths,
		validator:      validate,
		logger:         logger,
	}
}

// List returns paginated evaluation details.
func (s *EvaluationService) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, *models.Pagination, error) {
	evaluations, total, err := s.evaluations.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evaluations")
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
	return evaluations, pagination, nil
}

// Get returns an evaluation by ID.
func (s *EvaluationService) Get(ctx context.Context, id string) (*models.Evaluation, error) {
	evaluation, err := s.evaluations.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}
	return evaluation, nil
}

// History returns the student's full evaluation history, newest first.
func (s *EvaluationService) History(ctx context.Context, studentID string) ([]models.Evaluation, error) {
	if _, err := s.roles.FindStudentByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	evaluations, err := s.evaluations.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return evaluations, nil
}

// Record writes a completed evaluation into the ledger. Any prior completed
// evaluation for the (student, genre) pair is expired in the same
// transaction, then blocked enrollment applications that now qualify are
// released.
func (s *EvaluationService) Record(ctx context.Context, req RecordEvaluationRequest) (*models.Evaluation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid evaluation payload")
	}

	if _, ok := models.LevelRank(req.LevelAchieved); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown level label")
	}

	if req.EvaluationDate.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrFutureDate, "evaluation_date cannot be in the future")
	}
	if req.ValidUntil != nil && !req.ValidUntil.After(req.EvaluationDate) {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "valid_until must be after evaluation_date")
	}

	if _, err := s.roles.FindStudentByID(ctx, req.StudentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if _, err := s.genres.FindGenreByID(ctx, req.GenreID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "genre not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load genre")
	}
	evaluator, err := s.roles.FindStaffByID(ctx, req.EvaluatedByID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evaluator not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluator")
	}
	if evaluator.EmploymentStatus == models.EmploymentTerminated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evaluator is no longer employed")
	}

	validUntil := req.ValidUntil
	if validUntil == nil {
		d := req.EvaluationDate.AddDate(0, s.validityMonths, 0)
		validUntil = &d
	}

	evaluation := &models.Evaluation{
		StudentID:      req.StudentID,
		GenreID:        req.GenreID,
		LevelAchieved:  req.LevelAchieved,
		Status:         models.EvaluationStatusCompleted,
		EvaluationDate: req.EvaluationDate,
		ValidUntil:     validUntil,
		EvaluatedByID:  req.EvaluatedByID,
		Notes:          req.Notes,
	}

	if err := s.evaluations.CreateSuperseding(ctx, evaluation); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvaluation) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "evaluation already recorded for this date")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record evaluation")
	}

	s.releaseBlocked(ctx, evaluation)
	return evaluation, nil
}

// releaseBlocked lifts the evaluation hold on applications that the new
// evaluation now satisfies. Failures are logged rather than surfaced: the
// ledger write already committed and the next request re-runs the gate.
func (s *EvaluationService) releaseBlocked(ctx context.Context, evaluation *models.Evaluation) {
	achieved, ok := models.LevelRank(evaluation.LevelAchieved)
	if !ok {
		return
	}

	blocked, err := s.enrollments.ListBlockedByStudentGenre(ctx, evaluation.StudentID, evaluation.GenreID)
	if err != nil {
		s.logger.Warn("failed to list blocked enrollments", zap.Error(err))
		return
	}

	for _, enrollment := range blocked {
		detail, err := s.classes.FindDetailByID(ctx, enrollment.ClassInstanceID)
		if err != nil {
			s.logger.Warn("failed to load class for blocked enrollment", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			continue
		}
		required, ok := models.LevelRank(detail.Level)
		if !ok || achieved < required {
			continue
		}
		if _, err := s.enrollments.ClearEvaluationBlock(ctx, enrollment.ID); err != nil {
			s.logger.Warn("failed to release blocked enrollment", zap.String("enrollment_id", enrollment.ID), zap.Error(err))
			continue
		}
		s.logger.Info("enrollment released from evaluation hold",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("student_id", evaluation.StudentID),
			zap.String("genre_id", evaluation.GenreID))
	}
}

// CurrentEligibility reports the student's live standing for a genre.
// Expired evaluations are swept on read, never trusted from the stored
// status alone.
func (s *EvaluationService) CurrentEligibility(ctx context.Context, studentID, genreID string) (*Eligibility, error) {
	if _, err := s.roles.FindStudentByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	eligibility := &Eligibility{StudentID: studentID, GenreID: genreID}

	evaluation, err := s.evaluations.FindCurrent(ctx, studentID, genreID, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return eligibility, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evaluation")
	}

	rank, _ := models.LevelRank(evaluation.LevelAchieved)
	eligibility.Eligible = true
	eligibility.Level = evaluation.LevelAchieved
	eligibility.LevelRank = rank
	eligibility.ValidUntil = evaluation.ValidUntil
	eligibility.Evaluation = evaluation
	return eligibility, nil
}

// SweepExpired flips every completed evaluation past its validity window.
// Exposed for admin use; reads already expire lazily.
func (s *EvaluationService) SweepExpired(ctx context.Context) (int64, error) {
	flipped, err := s.evaluations.ExpireStale(ctx, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sweep evaluations")
	}
	if flipped > 0 {
		s.logger.Info("expired stale evaluations", zap.Int64("count", flipped))
	}
	return flipped, nil
}
