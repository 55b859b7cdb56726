package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type mockClassRepo struct {
	classes      map[string]models.ClassInstance
	roomPeers    []models.ClassInstance
	teacherPeers []models.ClassInstance
	created      *models.ClassInstance
	updated      *models.ClassInstance
	deleted      []string
	enrolled     int
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	return nil, 0, nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	if c, ok := m.classes[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if c, ok := m.classes[id]; ok {
		return &models.ClassDetail{ClassInstance: c}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) ListByRoomAndDay(ctx context.Context, termID, room string, dayOfWeek int, excludeID string) ([]models.ClassInstance, error) {
	return m.roomPeers, nil
}

func (m *mockClassRepo) ListByTeacherAndDay(ctx context.Context, termID, teacherID string, dayOfWeek int, excludeID string) ([]models.ClassInstance, error) {
	return m.teacherPeers, nil
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.ClassInstance) error {
	class.ID = "new-class"
	m.created = class
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.ClassInstance) error {
	if m.classes == nil {
		m.classes = make(map[string]models.ClassInstance)
	}
	m.classes[class.ID] = *class
	m.updated = class
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockClassRepo) CountEnrolled(ctx context.Context, classID string) (int, error) {
	return m.enrolled, nil
}

type mockClassCatalog struct{}

func (m *mockClassCatalog) FindClassTypeByID(ctx context.Context, id string) (*models.ClassType, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.ClassType{ID: id}, nil
}

type mockClassTerms struct{}

func (m *mockClassTerms) FindByID(ctx context.Context, id string) (*models.Term, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.Term{ID: id}, nil
}

type mockClassStaff struct{}

func (m *mockClassStaff) FindStaffByID(ctx context.Context, id string) (*models.Staff, error) {
	switch id {
	case "missing":
		return nil, sql.ErrNoRows
	case "front-desk":
		return &models.Staff{ID: id, Role: models.StaffRoleFrontDesk}, nil
	default:
		return &models.Staff{ID: id, Role: models.StaffRoleTeacher}, nil
	}
}

func newTestClassService(repo *mockClassRepo) *ClassService {
	return NewClassService(repo, &mockClassCatalog{}, &mockClassTerms{}, &mockClassStaff{}, validator.New(), zap.NewNop())
}

func classRequest() CreateClassRequest {
	teacher := "teach-1"
	return CreateClassRequest{
		ClassTypeID: "ct-1",
		TermID:      "term-1",
		TeacherID:   &teacher,
		DayOfWeek:   2,
		StartTime:   "16:00",
		EndTime:     "17:00",
		Room:        "Studio A",
		MaxStudents: 12,
	}
}

func TestClassServiceCreate(t *testing.T) {
	repo := &mockClassRepo{}
	svc := newTestClassService(repo)

	class, err := svc.Create(context.Background(), classRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ClassStatusScheduled, class.Status)
	require.NotNil(t, repo.created)
}

func TestClassServiceCreateRoomConflict(t *testing.T) {
	repo := &mockClassRepo{roomPeers: []models.ClassInstance{
		{ID: "other", StartTime: "16:30", EndTime: "17:30"},
	}}
	svc := newTestClassService(repo)

	_, err := svc.Create(context.Background(), classRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScheduleOverlap.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestClassServiceCreateTeacherConflict(t *testing.T) {
	repo := &mockClassRepo{teacherPeers: []models.ClassInstance{
		{ID: "other", StartTime: "15:30", EndTime: "16:30"},
	}}
	svc := newTestClassService(repo)

	_, err := svc.Create(context.Background(), classRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTeacherConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateAdjacentSlotsAllowed(t *testing.T) {
	repo := &mockClassRepo{roomPeers: []models.ClassInstance{
		{ID: "other", StartTime: "17:00", EndTime: "18:00"},
	}}
	svc := newTestClassService(repo)

	_, err := svc.Create(context.Background(), classRequest())
	require.NoError(t, err)
}

func TestClassServiceCreateInvertedWindow(t *testing.T) {
	svc := newTestClassService(&mockClassRepo{})

	req := classRequest()
	req.StartTime = "18:00"
	req.EndTime = "17:00"
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateNonTeacherRejected(t *testing.T) {
	svc := newTestClassService(&mockClassRepo{})

	req := classRequest()
	frontDesk := "front-desk"
	req.TeacherID = &frontDesk
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateWithoutTeacher(t *testing.T) {
	repo := &mockClassRepo{}
	svc := newTestClassService(repo)

	req := classRequest()
	req.TeacherID = nil
	class, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, class.TeacherID)
}

func TestClassServiceCancelIdempotent(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.ClassInstance{
		"class-1": {ID: "class-1", Status: models.ClassStatusCancelled},
	}}
	svc := newTestClassService(repo)

	require.NoError(t, svc.Cancel(context.Background(), "class-1"))
	assert.Nil(t, repo.updated)
}

func TestClassServiceCancel(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.ClassInstance{
		"class-1": {ID: "class-1", Status: models.ClassStatusScheduled},
	}}
	svc := newTestClassService(repo)

	require.NoError(t, svc.Cancel(context.Background(), "class-1"))
	require.NotNil(t, repo.updated)
	assert.Equal(t, models.ClassStatusCancelled, repo.updated.Status)
}

func TestClassServiceDeleteBlockedByEnrollments(t *testing.T) {
	repo := &mockClassRepo{
		classes:  map[string]models.ClassInstance{"class-1": {ID: "class-1"}},
		enrolled: 3,
	}
	svc := newTestClassService(repo)

	err := svc.Delete(context.Background(), "class-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestClassServiceDelete(t *testing.T) {
	repo := &mockClassRepo{classes: map[string]models.ClassInstance{"class-1": {ID: "class-1"}}}
	svc := newTestClassService(repo)

	require.NoError(t, svc.Delete(context.Background(), "class-1"))
	assert.Contains(t, repo.deleted, "class-1")
}
