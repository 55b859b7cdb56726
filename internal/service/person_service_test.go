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

type mockPersonRepo struct {
	people      map[string]models.Person
	emailTaken  bool
	created     *models.Person
	updated     *models.Person
	deactivated []string
}

func (m *mockPersonRepo) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	return nil, 0, nil
}

func (m *mockPersonRepo) FindByID(ctx context.Context, id string) (*models.Person, error) {
	if p, ok := m.people[id]; ok {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPersonRepo) FindByCode(ctx context.Context, code string) (*models.Person, error) {
	return nil, sql.ErrNoRows
}

func (m *mockPersonRepo) EmailInUse(ctx context.Context, email, excludeID string) (bool, error) {
	return m.emailTaken, nil
}

func (m *mockPersonRepo) Create(ctx context.Context, person *models.Person) error {
	person.ID = "new-person"
	m.created = person
	return nil
}

func (m *mockPersonRepo) Update(ctx context.Context, person *models.Person) error {
	m.people[person.ID] = *person
	m.updated = person
	return nil
}

func (m *mockPersonRepo) SetActive(ctx context.Context, id string, active bool) error {
	if !active {
		m.deactivated = append(m.deactivated, id)
	}
	return nil
}

func (m *mockPersonRepo) CountRoleAttachments(ctx context.Context, id string) (int, error) {
	return 0, nil
}

type mockPersonRoles struct {
	set             repository.RoleSet
	createdStudent  *models.Student
	updatedStudent  *models.Student
	createdGuardian *models.Guardian
	createdStaff    *models.Staff
}

func (m *mockPersonRoles) ListByPerson(ctx context.Context, personID string) (*repository.RoleSet, error) {
	return &m.set, nil
}

func (m *mockPersonRoles) FindStudentByPersonID(ctx context.Context, personID string) (*models.Student, error) {
	if m.set.Student != nil {
		return m.set.Student, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPersonRoles) FindGuardianByPersonID(ctx context.Context, personID string) (*models.Guardian, error) {
	if m.set.Guardian != nil {
		return m.set.Guardian, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPersonRoles) FindBillingContactByPersonID(ctx context.Context, personID string) (*models.BillingContact, error) {
	if m.set.BillingContact != nil {
		return m.set.BillingContact, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPersonRoles) FindStaffByPersonID(ctx context.Context, personID string) (*models.Staff, error) {
	if m.set.Staff != nil {
		return m.set.Staff, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPersonRoles) CreateStudent(ctx context.Context, student *models.Student) error {
	student.ID = "new-student"
	m.createdStudent = student
	m.set.Student = student
	return nil
}

func (m *mockPersonRoles) UpdateStudent(ctx context.Context, student *models.Student) error {
	m.updatedStudent = student
	m.set.Student = student
	return nil
}

func (m *mockPersonRoles) CreateGuardian(ctx context.Context, guardian *models.Guardian) error {
	guardian.ID = "new-guardian"
	m.createdGuardian = guardian
	m.set.Guardian = guardian
	return nil
}

func (m *mockPersonRoles) UpdateGuardian(ctx context.Context, guardian *models.Guardian) error {
	m.set.Guardian = guardian
	return nil
}

func (m *mockPersonRoles) CreateBillingContact(ctx context.Context, contact *models.BillingContact) error {
	contact.ID = "new-billing"
	m.set.BillingContact = contact
	return nil
}

func (m *mockPersonRoles) UpdateBillingContact(ctx context.Context, contact *models.BillingContact) error {
	m.set.BillingContact = contact
	return nil
}

func (m *mockPersonRoles) CreateStaff(ctx context.Context, staff *models.Staff) error {
	staff.ID = "new-staff"
	m.createdStaff = staff
	m.set.Staff = staff
	return nil
}

func (m *mockPersonRoles) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	m.set.Staff = staff
	return nil
}

func newTestPersonService(repo *mockPersonRepo, roles *mockPersonRoles) *PersonService {
	return NewPersonService(repo, roles, validator.New(), zap.NewNop())
}

func personRequest() CreatePersonRequest {
	email := "mia@example.com"
	return CreatePersonRequest{
		GivenName:   "Mia",
		FamilyName:  "Torres",
		DateOfBirth: time.Date(2015, 4, 12, 0, 0, 0, 0, time.UTC),
		Email:       &email,
	}
}

func TestPersonServiceCreate(t *testing.T) {
	repo := &mockPersonRepo{}
	svc := newTestPersonService(repo, &mockPersonRoles{})

	person, err := svc.Create(context.Background(), personRequest())
	require.NoError(t, err)
	assert.True(t, person.Active)
	require.NotNil(t, repo.created)
}

func TestPersonServiceCreateRequiresContactMethod(t *testing.T) {
	svc := newTestPersonService(&mockPersonRepo{}, &mockPersonRoles{})

	req := personRequest()
	req.Email = nil
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPersonServiceCreateRejectsFutureBirthDate(t *testing.T) {
	svc := newTestPersonService(&mockPersonRepo{}, &mockPersonRoles{})

	req := personRequest()
	req.DateOfBirth = time.Now().UTC().AddDate(1, 0, 0)
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPersonServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockPersonRepo{emailTaken: true}
	svc := newTestPersonService(repo, &mockPersonRoles{})

	_, err := svc.Create(context.Background(), personRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPersonServiceAttachStudentRole(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1"}}}
	roles := &mockPersonRoles{}
	svc := newTestPersonService(repo, roles)

	set, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{
		Kind:         models.RoleKindStudent,
		PhotoConsent: true,
		School:       "Northside Primary",
	})
	require.NoError(t, err)
	require.NotNil(t, roles.createdStudent)
	assert.Equal(t, models.StudentStatusProspect, roles.createdStudent.Status)
	assert.NotNil(t, set.Student)
}

func TestPersonServiceAttachSameKindUpdates(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1"}}}
	roles := &mockPersonRoles{set: repository.RoleSet{
		Student: &models.Student{ID: "stu-1", PersonID: "per-1", School: "Old School"},
	}}
	svc := newTestPersonService(repo, roles)

	_, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{
		Kind:   models.RoleKindStudent,
		School: "New School",
	})
	require.NoError(t, err)
	assert.Nil(t, roles.createdStudent)
	require.NotNil(t, roles.updatedStudent)
	assert.Equal(t, "stu-1", roles.updatedStudent.ID)
	assert.Equal(t, "New School", roles.updatedStudent.School)
}

func TestPersonServiceAttachMultipleRoles(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1"}}}
	roles := &mockPersonRoles{}
	svc := newTestPersonService(repo, roles)

	_, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{Kind: models.RoleKindStudent})
	require.NoError(t, err)
	set, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{Kind: models.RoleKindGuardian})
	require.NoError(t, err)
	assert.NotNil(t, set.Student)
	assert.NotNil(t, set.Guardian)
}

func TestPersonServiceAttachStaffRequiresRole(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1"}}}
	svc := newTestPersonService(repo, &mockPersonRoles{})

	_, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{Kind: models.RoleKindStaff})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPersonServiceAttachStaff(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1"}}}
	roles := &mockPersonRoles{}
	svc := newTestPersonService(repo, roles)

	_, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{
		Kind:      models.RoleKindStaff,
		StaffRole: models.StaffRoleTeacher,
	})
	require.NoError(t, err)
	require.NotNil(t, roles.createdStaff)
	assert.Equal(t, models.EmploymentActive, roles.createdStaff.EmploymentStatus)
}

func TestPersonServiceAttachUnknownKind(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1"}}}
	svc := newTestPersonService(repo, &mockPersonRoles{})

	_, err := svc.AttachRole(context.Background(), "per-1", AttachRoleRequest{Kind: models.RoleKind("MASCOT")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPersonServiceDeactivate(t *testing.T) {
	repo := &mockPersonRepo{people: map[string]models.Person{"per-1": {ID: "per-1", Active: true}}}
	svc := newTestPersonService(repo, &mockPersonRoles{})

	require.NoError(t, svc.Deactivate(context.Background(), "per-1"))
	assert.Contains(t, repo.deactivated, "per-1")

	err := svc.Deactivate(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
