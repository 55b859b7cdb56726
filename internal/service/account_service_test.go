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

type mockAccountRepo struct {
	accounts        map[string]models.Account
	existing        map[string]bool
	created         *models.Account
	updated         *models.Account
	statuses        map[string]models.AccountStatus
	openEnrollments int
	unpaidInvoices  int
}

func (m *mockAccountRepo) List(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, int, error) {
	return nil, 0, nil
}

func (m *mockAccountRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRepo) FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error) {
	if a, ok := m.accounts[id]; ok {
		return &models.AccountDetail{Account: a}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRepo) ListByPersonID(ctx context.Context, personID string) ([]models.AccountDetail, error) {
	return nil, nil
}

func (m *mockAccountRepo) Create(ctx context.Context, account *models.Account) error {
	if m.accounts == nil {
		m.accounts = make(map[string]models.Account)
	}
	account.ID = "new-account"
	m.accounts[account.ID] = *account
	m.created = account
	return nil
}

func (m *mockAccountRepo) Update(ctx context.Context, account *models.Account) error {
	m.accounts[account.ID] = *account
	m.updated = account
	return nil
}

func (m *mockAccountRepo) UpdateStatus(ctx context.Context, id string, status models.AccountStatus, endDate *time.Time) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.AccountStatus)
	}
	m.statuses[id] = status
	if a, ok := m.accounts[id]; ok {
		a.Status = status
		a.EndDate = endDate
		m.accounts[id] = a
	}
	return nil
}

func (m *mockAccountRepo) ExistsForStudent(ctx context.Context, studentID string) (bool, error) {
	return m.existing[studentID], nil
}

func (m *mockAccountRepo) CountOpenEnrollments(ctx context.Context, id string) (int, error) {
	return m.openEnrollments, nil
}

func (m *mockAccountRepo) CountUnpaidInvoices(ctx context.Context, id string) (int, error) {
	return m.unpaidInvoices, nil
}

// mockAccountRoles keys role records by person ID and records creations.
type mockAccountRoles struct {
	students         map[string]*models.Student
	guardians        map[string]*models.Guardian
	billing          map[string]*models.BillingContact
	createdStudents  int
	createdGuardians int
	createdBilling   int
}

func (m *mockAccountRoles) FindStudentByPersonID(ctx context.Context, personID string) (*models.Student, error) {
	if s, ok := m.students[personID]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRoles) CreateStudent(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]*models.Student)
	}
	student.ID = "stu-" + student.PersonID
	m.students[student.PersonID] = student
	m.createdStudents++
	return nil
}

func (m *mockAccountRoles) FindGuardianByPersonID(ctx context.Context, personID string) (*models.Guardian, error) {
	if g, ok := m.guardians[personID]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRoles) CreateGuardian(ctx context.Context, guardian *models.Guardian) error {
	if m.guardians == nil {
		m.guardians = make(map[string]*models.Guardian)
	}
	guardian.ID = "gua-" + guardian.PersonID
	m.guardians[guardian.PersonID] = guardian
	m.createdGuardians++
	return nil
}

func (m *mockAccountRoles) FindBillingContactByPersonID(ctx context.Context, personID string) (*models.BillingContact, error) {
	if b, ok := m.billing[personID]; ok {
		return b, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAccountRoles) CreateBillingContact(ctx context.Context, contact *models.BillingContact) error {
	if m.billing == nil {
		m.billing = make(map[string]*models.BillingContact)
	}
	contact.ID = "bil-" + contact.PersonID
	m.billing[contact.PersonID] = contact
	m.createdBilling++
	return nil
}

// mockAccountPeople treats every person as active except the two sentinels.
type mockAccountPeople struct{}

func (m *mockAccountPeople) FindByID(ctx context.Context, id string) (*models.Person, error) {
	switch id {
	case "missing":
		return nil, sql.ErrNoRows
	case "inactive":
		return &models.Person{ID: id}, nil
	default:
		return &models.Person{ID: id, Active: true}, nil
	}
}

func newAccountServiceFixture(repo *mockAccountRepo) (*AccountService, *mockAccountRoles) {
	roles := &mockAccountRoles{}
	svc := NewAccountService(repo, roles, &mockAccountPeople{}, validator.New(), zap.NewNop())
	return svc, roles
}

func newTestAccountService(repo *mockAccountRepo) *AccountService {
	svc, _ := newAccountServiceFixture(repo)
	return svc
}

func TestAccountServiceCompose(t *testing.T) {
	repo := &mockAccountRepo{}
	svc, roles := newAccountServiceFixture(repo)

	detail, err := svc.Compose(context.Background(), ComposeAccountRequest{
		StudentPersonID:  "per-stu",
		GuardianPersonID: "per-gua",
		BillingPersonID:  "per-bil",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AccountStatusActive, detail.Status)
	require.NotNil(t, repo.created)
	assert.Equal(t, "stu-per-stu", repo.created.StudentID)
	assert.Equal(t, "gua-per-gua", repo.created.GuardianID)
	assert.Equal(t, 1, roles.createdStudents)
	assert.Equal(t, 1, roles.createdGuardians)
	assert.Equal(t, 1, roles.createdBilling)
}

func TestAccountServiceComposeReusesExistingRoles(t *testing.T) {
	repo := &mockAccountRepo{}
	svc, roles := newAccountServiceFixture(repo)
	roles.students = map[string]*models.Student{"per-stu": {ID: "stu-1", PersonID: "per-stu"}}
	roles.guardians = map[string]*models.Guardian{"per-gua": {ID: "gua-1", PersonID: "per-gua"}}
	roles.billing = map[string]*models.BillingContact{"per-bil": {ID: "bil-1", PersonID: "per-bil"}}

	_, err := svc.Compose(context.Background(), ComposeAccountRequest{
		StudentPersonID:  "per-stu",
		GuardianPersonID: "per-gua",
		BillingPersonID:  "per-bil",
	})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", repo.created.StudentID)
	assert.Zero(t, roles.createdStudents)
	assert.Zero(t, roles.createdGuardians)
	assert.Zero(t, roles.createdBilling)
}

func TestAccountServiceComposeSamePersonAllRoles(t *testing.T) {
	repo := &mockAccountRepo{}
	svc, roles := newAccountServiceFixture(repo)

	_, err := svc.Compose(context.Background(), ComposeAccountRequest{
		StudentPersonID:  "adult-1",
		GuardianPersonID: "adult-1",
		BillingPersonID:  "adult-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, roles.createdStudents)
	assert.Equal(t, 1, roles.createdGuardians)
	assert.Equal(t, 1, roles.createdBilling)
}

func TestAccountServiceComposeMissingPerson(t *testing.T) {
	repo := &mockAccountRepo{}
	svc := newTestAccountService(repo)

	_, err := svc.Compose(context.Background(), ComposeAccountRequest{
		StudentPersonID:  "per-stu",
		GuardianPersonID: "missing",
		BillingPersonID:  "per-bil",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestAccountServiceComposeInactivePerson(t *testing.T) {
	repo := &mockAccountRepo{}
	svc := newTestAccountService(repo)

	_, err := svc.Compose(context.Background(), ComposeAccountRequest{
		StudentPersonID:  "inactive",
		GuardianPersonID: "per-gua",
		BillingPersonID:  "per-bil",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceComposeDuplicateStudent(t *testing.T) {
	repo := &mockAccountRepo{existing: map[string]bool{"stu-1": true}}
	svc, roles := newAccountServiceFixture(repo)
	roles.students = map[string]*models.Student{"per-stu": {ID: "stu-1", PersonID: "per-stu"}}

	_, err := svc.Compose(context.Background(), ComposeAccountRequest{
		StudentPersonID:  "per-stu",
		GuardianPersonID: "per-gua",
		BillingPersonID:  "per-bil",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestAccountServiceSwapRole(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", StudentID: "stu-1", GuardianID: "gua-1", BillingContactID: "bil-1", Status: models.AccountStatusActive},
	}}
	svc, roles := newAccountServiceFixture(repo)
	roles.guardians = map[string]*models.Guardian{"per-g2": {ID: "gua-2", PersonID: "per-g2"}}

	detail, err := svc.SwapRole(context.Background(), "acc-1", SwapAccountRoleRequest{Kind: models.RoleKindGuardian, PersonID: "per-g2"})
	require.NoError(t, err)
	assert.Equal(t, "gua-2", detail.GuardianID)
	assert.Equal(t, "stu-1", detail.StudentID)
}

func TestAccountServiceSwapRoleCreatesMissingRole(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", BillingContactID: "bil-1", Status: models.AccountStatusActive},
	}}
	svc, roles := newAccountServiceFixture(repo)

	detail, err := svc.SwapRole(context.Background(), "acc-1", SwapAccountRoleRequest{Kind: models.RoleKindBillingContact, PersonID: "per-b2"})
	require.NoError(t, err)
	assert.Equal(t, "bil-per-b2", detail.BillingContactID)
	assert.Equal(t, 1, roles.createdBilling)
}

func TestAccountServiceSwapRoleRejectsStudent(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", StudentID: "stu-1", Status: models.AccountStatusActive},
	}}
	svc := newTestAccountService(repo)

	_, err := svc.SwapRole(context.Background(), "acc-1", SwapAccountRoleRequest{Kind: models.RoleKindStudent, PersonID: "per-s2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceSwapRoleClosedAccount(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Status: models.AccountStatusClosed},
	}}
	svc := newTestAccountService(repo)

	_, err := svc.SwapRole(context.Background(), "acc-1", SwapAccountRoleRequest{Kind: models.RoleKindGuardian, PersonID: "per-g2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAccountClosed.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceClose(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Status: models.AccountStatusActive},
	}}
	svc := newTestAccountService(repo)

	require.NoError(t, svc.Close(context.Background(), "acc-1", nil))
	assert.Equal(t, models.AccountStatusClosed, repo.statuses["acc-1"])
	require.NotNil(t, repo.accounts["acc-1"].EndDate)
}

func TestAccountServiceCloseWithEndDate(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Status: models.AccountStatusActive},
	}}
	svc := newTestAccountService(repo)

	endDate := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Close(context.Background(), "acc-1", &endDate))
	assert.Equal(t, models.AccountStatusClosed, repo.statuses["acc-1"])
	require.NotNil(t, repo.accounts["acc-1"].EndDate)
	assert.Equal(t, endDate, *repo.accounts["acc-1"].EndDate)
}

func TestAccountServiceCloseBlockedByOpenEnrollments(t *testing.T) {
	repo := &mockAccountRepo{
		accounts:        map[string]models.Account{"acc-1": {ID: "acc-1", Status: models.AccountStatusActive}},
		openEnrollments: 2,
	}
	svc := newTestAccountService(repo)

	err := svc.Close(context.Background(), "acc-1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.statuses)
}

func TestAccountServiceCloseBlockedByUnpaidInvoices(t *testing.T) {
	repo := &mockAccountRepo{
		accounts:       map[string]models.Account{"acc-1": {ID: "acc-1", Status: models.AccountStatusActive}},
		unpaidInvoices: 1,
	}
	svc := newTestAccountService(repo)

	err := svc.Close(context.Background(), "acc-1", nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAccountServiceCloseIdempotent(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Status: models.AccountStatusClosed},
	}}
	svc := newTestAccountService(repo)

	require.NoError(t, svc.Close(context.Background(), "acc-1", nil))
	assert.Empty(t, repo.statuses)
}

func TestAccountServiceSuspendAndReactivate(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Status: models.AccountStatusActive},
	}}
	svc := newTestAccountService(repo)

	require.NoError(t, svc.Suspend(context.Background(), "acc-1"))
	assert.Equal(t, models.AccountStatusSuspended, repo.statuses["acc-1"])

	require.NoError(t, svc.Reactivate(context.Background(), "acc-1"))
	assert.Equal(t, models.AccountStatusActive, repo.statuses["acc-1"])
}

func TestAccountServiceTransitionClosedAccount(t *testing.T) {
	repo := &mockAccountRepo{accounts: map[string]models.Account{
		"acc-1": {ID: "acc-1", Status: models.AccountStatusClosed},
	}}
	svc := newTestAccountService(repo)

	err := svc.Suspend(context.Background(), "acc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAccountClosed.Code, appErrors.FromError(err).Code)
}
