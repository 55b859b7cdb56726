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

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsLive(ctx context.Context, accountID, classInstanceID string) (bool, error)
	CreateGated(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatusAndPromote(ctx context.Context, id string, target models.EnrollmentStatus, at time.Time) (*models.Enrollment, error)
	ListByClass(ctx context.Context, classInstanceID string) ([]models.EnrollmentDetail, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.EnrollmentDetail, error)
}

type enrollmentAccountRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error)
}

type enrollmentClassRepository interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
}

type enrollmentEvaluationRepository interface {
	FindCurrent(ctx context.Context, studentID, genreID string, at time.Time) (*models.Evaluation, error)
}

// RequestEnrollmentRequest describes payload for requesting an enrollment.
type RequestEnrollmentRequest struct {
	AccountID       string `json:"account_id" validate:"required"`
	ClassInstanceID string `json:"class_instance_id" validate:"required"`
	Notes           string `json:"notes"`
}

// TransitionResult carries the moved enrollment together with any waitlisted
// enrollment promoted by the freed slot.
type TransitionResult struct {
	Enrollment *models.Enrollment `json:"enrollment"`
	Promoted   *models.Enrollment `json:"promoted,omitempty"`
}

// EnrollmentService runs the enrollment workflow: admission gates on
// request, the closed status transition table afterwards.
type EnrollmentService struct {
	enrollments enrollmentRepository
	accounts    enrollmentAccountRepository
	classes     enrollmentClassRepository
	evaluations enrollmentEvaluationRepository
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService creates a new enrollment service instance.
func NewEnrollmentService(enrollments enrollmentRepository, accounts enrollmentAccountRepository, classes enrollmentClassRepository, evaluations enrollmentEvaluationRepository, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		enrollments: enrollments,
		accounts:    accounts,
		classes:     classes,
		evaluations: evaluations,
		validator:   validate,
		logger:      logger,
	}
}

// List returns paginated enrollment details.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
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
	return enrollments, pagination, nil
}

// Get returns an enrollment with account and class context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.enrollments.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// ListByAccount returns every enrollment on an account.
func (s *EnrollmentService) ListByAccount(ctx context.Context, accountID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list account enrollments")
	}
	return enrollments, nil
}

// ListByClass returns the enrollments on a class instance.
func (s *EnrollmentService) ListByClass(ctx context.Context, classInstanceID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.enrollments.ListByClass(ctx, classInstanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class enrollments")
	}
	return enrollments, nil
}

// Request runs the admission gates in order, then writes the enrollment
// under the class capacity lock. Gate order: account standing, duplicate,
// age band, evaluation. An insufficient or missing evaluation does not
// reject the request; the application is held with blocked_on_evaluation
// until an adequate evaluation is recorded.
func (s *EnrollmentService) Request(ctx context.Context, req RequestEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	account, err := s.accounts.FindDetailByID(ctx, req.AccountID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if !account.Status.CanEnroll() {
		return nil, appErrors.Clone(appErrors.ErrAccountClosed, "closed accounts cannot enroll")
	}

	exists, err := s.enrollments.ExistsLive(ctx, req.AccountID, req.ClassInstanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for existing enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "account already has a live enrollment in this class")
	}

	class, err := s.classes.FindDetailByID(ctx, req.ClassInstanceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if class.Status == models.ClassStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class is cancelled")
	}

	// Age is judged at term start, not at request time.
	age := ageAt(account.StudentDateOfBirth, class.TermStart)
	if age < class.MinAge {
		return nil, appErrors.Clone(appErrors.ErrAgeIneligible, "student is below the minimum age for this class")
	}
	if class.MaxAge != nil && age > *class.MaxAge {
		return nil, appErrors.Clone(appErrors.ErrAgeIneligible, "student is above the maximum age for this class")
	}

	blocked, err := s.evaluationGate(ctx, account.StudentID, class)
	if err != nil {
		return nil, err
	}

	enrollment := &models.Enrollment{
		AccountID:           req.AccountID,
		ClassInstanceID:     req.ClassInstanceID,
		Status:              models.EnrollmentStatusApplied,
		BlockedOnEvaluation: blocked,
		RequestDate:         time.Now().UTC(),
		Notes:               req.Notes,
	}
	if err := s.enrollments.CreateGated(ctx, enrollment); err != nil {
		if errors.Is(err, repository.ErrDuplicateEnrollment) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "account already has a live enrollment in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	s.logger.Info("enrollment requested",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("account_id", req.AccountID),
		zap.String("class_instance_id", req.ClassInstanceID),
		zap.String("status", string(enrollment.Status)),
		zap.Bool("blocked_on_evaluation", enrollment.BlockedOnEvaluation))

	return s.enrollments.FindDetailByID(ctx, enrollment.ID)
}

// evaluationGate decides whether the request must wait for an evaluation.
// Every class requires a current evaluation in its genre at or above the
// class level; a missing, expired, or under-level evaluation holds the
// request instead of rejecting it.
func (s *EnrollmentService) evaluationGate(ctx context.Context, studentID string, class *models.ClassDetail) (bool, error) {
	required, ok := models.LevelRank(class.Level)
	if !ok {
		return true, nil
	}

	evaluation, err := s.evaluations.FindCurrent(ctx, studentID, class.GenreID, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check evaluation")
	}
	achieved, ok := models.LevelRank(evaluation.LevelAchieved)
	if !ok {
		return true, nil
	}
	return achieved < required, nil
}

// Advance moves an enrollment along the workflow. Only transitions from the
// closed table are accepted; a withdrawal or completion that frees an
// occupied slot also promotes the earliest waitlisted enrollment.
func (s *EnrollmentService) Advance(ctx context.Context, id string, target models.EnrollmentStatus) (*TransitionResult, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	if !enrollment.Status.CanTransition(target) {
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "cannot move enrollment from "+string(enrollment.Status)+" to "+string(target))
	}
	if enrollment.BlockedOnEvaluation && target != models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrStateTransition, "enrollment is held pending an evaluation")
	}

	promoted, err := s.enrollments.UpdateStatusAndPromote(ctx, id, target, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrClassFull) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class is full; enrollment stays on the waitlist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}

	updated, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload enrollment")
	}

	if promoted != nil {
		s.logger.Info("waitlisted enrollment promoted",
			zap.String("promoted_id", promoted.ID),
			zap.String("class_instance_id", promoted.ClassInstanceID))
	}
	s.logger.Info("enrollment status changed",
		zap.String("enrollment_id", id),
		zap.String("from", string(enrollment.Status)),
		zap.String("to", string(target)))

	return &TransitionResult{Enrollment: updated, Promoted: promoted}, nil
}

// Withdraw is a convenience wrapper over Advance to the withdrawn status.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) (*TransitionResult, error) {
	return s.Advance(ctx, id, models.EnrollmentStatusWithdrawn)
}

func ageAt(dateOfBirth, at time.Time) int {
	age := at.Year() - dateOfBirth.Year()
	anniversary := time.Date(at.Year(), dateOfBirth.Month(), dateOfBirth.Day(), 0, 0, 0, 0, time.UTC)
	if at.Before(anniversary) {
		age--
	}
	return age
}
