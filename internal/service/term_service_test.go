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
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type mockTermRepo struct {
	terms      map[string]models.Term
	codeTaken  bool
	created    *models.Term
	activated  []string
	deleted    []string
	classCount int
}

func (m *mockTermRepo) List(ctx context.Context, filter models.TermFilter) ([]models.Term, int, error) {
	return nil, 0, nil
}

func (m *mockTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if t, ok := m.terms[id]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) FindActive(ctx context.Context) (*models.Term, error) {
	for _, t := range m.terms {
		if t.Active {
			term := t
			return &term, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTermRepo) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	return m.codeTaken, nil
}

func (m *mockTermRepo) Create(ctx context.Context, term *models.Term) error {
	if m.terms == nil {
		m.terms = make(map[string]models.Term)
	}
	term.ID = "new-term"
	m.terms[term.ID] = *term
	m.created = term
	return nil
}

func (m *mockTermRepo) Update(ctx context.Context, term *models.Term) error {
	m.terms[term.ID] = *term
	return nil
}

func (m *mockTermRepo) SetActive(ctx context.Context, id string) error {
	m.activated = append(m.activated, id)
	for key, t := range m.terms {
		t.Active = key == id
		m.terms[key] = t
	}
	return nil
}

func (m *mockTermRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.terms, id)
	return nil
}

func (m *mockTermRepo) CountClasses(ctx context.Context, id string) (int, error) {
	return m.classCount, nil
}

func newTestTermService(repo *mockTermRepo) *TermService {
	return NewTermService(repo, validator.New(), zap.NewNop())
}

func termRequest() CreateTermRequest {
	return CreateTermRequest{
		Name:      "Autumn 2026",
		Code:      "2026-T3",
		StartDate: time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC),
	}
}

func TestTermServiceCreate(t *testing.T) {
	repo := &mockTermRepo{}
	svc := newTestTermService(repo)

	term, err := svc.Create(context.Background(), termRequest())
	require.NoError(t, err)
	assert.Equal(t, "2026-T3", term.Code)
	assert.False(t, term.Active)
	assert.Empty(t, repo.activated)
}

func TestTermServiceCreateActive(t *testing.T) {
	repo := &mockTermRepo{}
	svc := newTestTermService(repo)

	req := termRequest()
	req.Active = true
	term, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, term.Active)
	assert.Contains(t, repo.activated, term.ID)
}

func TestTermServiceCreateInvertedDates(t *testing.T) {
	svc := newTestTermService(&mockTermRepo{})

	req := termRequest()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestTermServiceCreateInvertedEnrollmentWindow(t *testing.T) {
	svc := newTestTermService(&mockTermRepo{})

	req := termRequest()
	opens := req.StartDate.AddDate(0, 0, -7)
	closes := opens.AddDate(0, 0, -14)
	req.EnrollmentOpens = &opens
	req.EnrollmentCloses = &closes
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestTermServiceCreateDuplicateCode(t *testing.T) {
	repo := &mockTermRepo{codeTaken: true}
	svc := newTestTermService(repo)

	_, err := svc.Create(context.Background(), termRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestTermServiceSetActiveSwitches(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"term-1": {ID: "term-1", Active: true},
		"term-2": {ID: "term-2"},
	}}
	svc := newTestTermService(repo)

	term, err := svc.SetActive(context.Background(), SetActiveTermRequest{ID: "term-2"})
	require.NoError(t, err)
	assert.True(t, term.Active)

	active, err := svc.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "term-2", active.ID)
}

func TestTermServiceDeleteActiveTermRejected(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{
		"term-1": {ID: "term-1", Active: true},
	}}
	svc := newTestTermService(repo)

	err := svc.Delete(context.Background(), "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestTermServiceDeleteWithClassesRejected(t *testing.T) {
	repo := &mockTermRepo{
		terms:      map[string]models.Term{"term-1": {ID: "term-1"}},
		classCount: 5,
	}
	svc := newTestTermService(repo)

	err := svc.Delete(context.Background(), "term-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestTermServiceDelete(t *testing.T) {
	repo := &mockTermRepo{terms: map[string]models.Term{"term-1": {ID: "term-1"}}}
	svc := newTestTermService(repo)

	require.NoError(t, svc.Delete(context.Background(), "term-1"))
	assert.Contains(t, repo.deleted, "term-1")
}
