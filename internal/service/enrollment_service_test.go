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
	"github.com/arabesque/studio-api/internal/repository"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	live        map[string]bool
	created     *models.Enrollment
	createErr   error
	promoted    *models.Enrollment
	moved       map[string]models.EnrollmentStatus
	moveErr     error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) ExistsLive(ctx context.Context, accountID, classInstanceID string) (bool, error) {
	return m.live[accountID+classInstanceID], nil
}

func (m *mockEnrollmentRepo) CreateGated(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatusAndPromote(ctx context.Context, id string, target models.EnrollmentStatus, at time.Time) (*models.Enrollment, error) {
	if m.moveErr != nil {
		return nil, m.moveErr
	}
	if m.moved == nil {
		m.moved = make(map[string]models.EnrollmentStatus)
	}
	m.moved[id] = target
	if e, ok := m.enrollments[id]; ok {
		e.Status = target
		m.enrollments[id] = e
	}
	return m.promoted, nil
}

func (m *mockEnrollmentRepo) ListByClass(ctx context.Context, classInstanceID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

func (m *mockEnrollmentRepo) ListByAccount(ctx context.Context, accountID string) ([]models.EnrollmentDetail, error) {
	return nil, nil
}

type mockAccountReader struct {
	accounts map[string]*models.AccountDetail
}

func (m *mockAccountReader) FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassReader struct {
	classes map[string]*models.ClassDetail
}

func (m *mockClassReader) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockEvaluationReader struct {
	evaluations map[string]*models.Evaluation
}

func (m *mockEvaluationReader) FindCurrent(ctx context.Context, studentID, genreID string, at time.Time) (*models.Evaluation, error) {
	if e, ok := m.evaluations[studentID+genreID]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func testAccount(status models.AccountStatus) *models.AccountDetail {
	return &models.AccountDetail{
		Account: models.Account{
			ID:        "acc-1",
			StudentID: "stu-1",
			Status:    status,
		},
		StudentDateOfBirth: time.Date(2015, 4, 12, 0, 0, 0, 0, time.UTC),
	}
}

func testClass(level string) *models.ClassDetail {
	return &models.ClassDetail{
		ClassInstance: models.ClassInstance{
			ID:          "class-1",
			MaxStudents: 12,
			Status:      models.ClassStatusScheduled,
		},
		Level:     level,
		MinAge:    6,
		GenreID:   "genre-1",
		TermStart: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		TermEnd:   time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC),
	}
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, accounts *mockAccountReader, classes *mockClassReader, evaluations *mockEvaluationReader) *EnrollmentService {
	return NewEnrollmentService(repo, accounts, classes, evaluations, validator.New(), zap.NewNop())
}

func TestEnrollmentServiceRequest(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("beginner")}}
	evaluations := &mockEvaluationReader{evaluations: map[string]*models.Evaluation{
		"stu-1genre-1": {ID: "eval-1", LevelAchieved: "beginner", Status: models.EvaluationStatusCompleted},
	}}
	svc := newTestEnrollmentService(repo, accounts, classes, evaluations)

	detail, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApplied, detail.Status)
	assert.False(t, detail.BlockedOnEvaluation)
	require.NotNil(t, repo.created)
}

func TestEnrollmentServiceRequestClosedAccount(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusClosed)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("beginner")}}
	svc := newTestEnrollmentService(repo, accounts, classes, &mockEvaluationReader{})

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAccountClosed.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestEnrollmentServiceRequestDuplicate(t *testing.T) {
	repo := &mockEnrollmentRepo{live: map[string]bool{"acc-1class-1": true}}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("beginner")}}
	svc := newTestEnrollmentService(repo, accounts, classes, &mockEvaluationReader{})

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateEnrollment.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceRequestAgeIneligible(t *testing.T) {
	class := testClass("beginner")
	class.MinAge = 14
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": class}}
	svc := newTestEnrollmentService(repo, accounts, classes, &mockEvaluationReader{})

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAgeIneligible.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceRequestCancelledClass(t *testing.T) {
	class := testClass("beginner")
	class.Status = models.ClassStatusCancelled
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": class}}
	svc := newTestEnrollmentService(repo, accounts, classes, &mockEvaluationReader{})

	_, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceRequestBeginnerHeldWithoutEvaluation(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("beginner")}}
	svc := newTestEnrollmentService(repo, accounts, classes, &mockEvaluationReader{})

	detail, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApplied, detail.Status)
	assert.True(t, detail.BlockedOnEvaluation)
}

func TestEnrollmentServiceRequestHeldWithoutEvaluation(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("intermediate")}}
	svc := newTestEnrollmentService(repo, accounts, classes, &mockEvaluationReader{})

	detail, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.NoError(t, err)
	assert.True(t, detail.BlockedOnEvaluation)
}

func TestEnrollmentServiceRequestHeldOnInsufficientLevel(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("advanced")}}
	evaluations := &mockEvaluationReader{evaluations: map[string]*models.Evaluation{
		"stu-1genre-1": {ID: "eval-1", LevelAchieved: "elementary", Status: models.EvaluationStatusCompleted},
	}}
	svc := newTestEnrollmentService(repo, accounts, classes, evaluations)

	detail, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.NoError(t, err)
	assert.True(t, detail.BlockedOnEvaluation)
}

func TestEnrollmentServiceRequestUnknownLevelHeld(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("virtuoso")}}
	evaluations := &mockEvaluationReader{evaluations: map[string]*models.Evaluation{
		"stu-1genre-1": {ID: "eval-1", LevelAchieved: "advanced", Status: models.EvaluationStatusCompleted},
	}}
	svc := newTestEnrollmentService(repo, accounts, classes, evaluations)

	detail, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.NoError(t, err)
	assert.True(t, detail.BlockedOnEvaluation)
}

func TestEnrollmentServiceRequestClearsGateWithEvaluation(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	accounts := &mockAccountReader{accounts: map[string]*models.AccountDetail{"acc-1": testAccount(models.AccountStatusActive)}}
	classes := &mockClassReader{classes: map[string]*models.ClassDetail{"class-1": testClass("intermediate")}}
	evaluations := &mockEvaluationReader{evaluations: map[string]*models.Evaluation{
		"stu-1genre-1": {ID: "eval-1", LevelAchieved: "advanced", Status: models.EvaluationStatusCompleted},
	}}
	svc := newTestEnrollmentService(repo, accounts, classes, evaluations)

	detail, err := svc.Request(context.Background(), RequestEnrollmentRequest{AccountID: "acc-1", ClassInstanceID: "class-1"})
	require.NoError(t, err)
	assert.False(t, detail.BlockedOnEvaluation)
}

func TestEnrollmentServiceAdvance(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", AccountID: "acc-1", ClassInstanceID: "class-1", Status: models.EnrollmentStatusTrial},
	}}
	svc := newTestEnrollmentService(repo, &mockAccountReader{}, &mockClassReader{}, &mockEvaluationReader{})

	result, err := svc.Advance(context.Background(), "e1", models.EnrollmentStatusActive)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	assert.Nil(t, result.Promoted)
	assert.Equal(t, models.EnrollmentStatusActive, repo.moved["e1"])
}

func TestEnrollmentServiceAdvanceRejectsIllegalTransition(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", Status: models.EnrollmentStatusApplied},
	}}
	svc := newTestEnrollmentService(repo, &mockAccountReader{}, &mockClassReader{}, &mockEvaluationReader{})

	_, err := svc.Advance(context.Background(), "e1", models.EnrollmentStatusCompleted)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.moved)
}

func TestEnrollmentServiceAdvanceRejectsTerminal(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", Status: models.EnrollmentStatusWithdrawn},
	}}
	svc := newTestEnrollmentService(repo, &mockAccountReader{}, &mockClassReader{}, &mockEvaluationReader{})

	_, err := svc.Advance(context.Background(), "e1", models.EnrollmentStatusApplied)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateTransition.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceAdvanceBlockedOnlyWithdraws(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", Status: models.EnrollmentStatusApplied, BlockedOnEvaluation: true},
	}}
	svc := newTestEnrollmentService(repo, &mockAccountReader{}, &mockClassReader{}, &mockEvaluationReader{})

	_, err := svc.Advance(context.Background(), "e1", models.EnrollmentStatusTrial)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStateTransition.Code, appErrors.FromError(err).Code)

	result, err := svc.Advance(context.Background(), "e1", models.EnrollmentStatusWithdrawn)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, result.Enrollment.Status)
}

func TestEnrollmentServiceAdvancePromotionIntoFullClass(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"e1": {ID: "e1", ClassInstanceID: "class-1", Status: models.EnrollmentStatusWaitlist},
		},
		moveErr: repository.ErrClassFull,
	}
	svc := newTestEnrollmentService(repo, &mockAccountReader{}, &mockClassReader{}, &mockEvaluationReader{})

	_, err := svc.Advance(context.Background(), "e1", models.EnrollmentStatusApplied)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceWithdrawReportsPromotion(t *testing.T) {
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			"e1": {ID: "e1", ClassInstanceID: "class-1", Status: models.EnrollmentStatusActive},
		},
		promoted: &models.Enrollment{ID: "e2", ClassInstanceID: "class-1", Status: models.EnrollmentStatusApplied},
	}
	svc := newTestEnrollmentService(repo, &mockAccountReader{}, &mockClassReader{}, &mockEvaluationReader{})

	result, err := svc.Withdraw(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusWithdrawn, result.Enrollment.Status)
	require.NotNil(t, result.Promoted)
	assert.Equal(t, "e2", result.Promoted.ID)
}

func TestAgeAt(t *testing.T) {
	dob := time.Date(2015, 9, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 11, ageAt(dob, time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 11, ageAt(dob, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 10, ageAt(dob, time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)))
}
