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

type accountRepository interface {
	List(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error)
	ListByPersonID(ctx context.Context, personID string) ([]models.AccountDetail, error)
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	UpdateStatus(ctx context.Context, id string, status models.AccountStatus, endDate *time.Time) error
	ExistsForStudent(ctx context.Context, studentID string) (bool, error)
	CountOpenEnrollments(ctx context.Context, id string) (int, error)
	CountUnpaidInvoices(ctx context.Context, id string) (int, error)
}

type accountRoleRepository interface {
	FindStudentByPersonID(ctx context.Context, personID string) (*models.Student, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	FindGuardianByPersonID(ctx context.Context, personID string) (*models.Guardian, error)
	CreateGuardian(ctx context.Context, guardian *models.Guardian) error
	FindBillingContactByPersonID(ctx context.Context, personID string) (*models.BillingContact, error)
	CreateBillingContact(ctx context.Context, contact *models.BillingContact) error
}

type accountPersonRepository interface {
	FindByID(ctx context.Context, id string) (*models.Person, error)
}

// ComposeAccountRequest creates an account from one student, one guardian
// and one billing contact, referenced by person. The three may resolve to
// the same person, which is how adult students enroll themselves. Persons
// without the matching role record receive one with defaults.
type ComposeAccountRequest struct {
	StudentPersonID  string     `json:"student_person_id" validate:"required"`
	GuardianPersonID string     `json:"guardian_person_id" validate:"required"`
	BillingPersonID  string     `json:"billing_person_id" validate:"required"`
	StartDate        *time.Time `json:"start_date"`
	Notes            string     `json:"notes"`
}

// SwapAccountRoleRequest replaces the guardian or billing contact reference
// with another person's role record.
type SwapAccountRoleRequest struct {
	Kind     models.RoleKind `json:"kind" validate:"required"`
	PersonID string          `json:"person_id" validate:"required"`
}

// AccountService orchestrates the account composer.
type AccountService struct {
	accounts  accountRepository
	roles     accountRoleRepository
	people    accountPersonRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAccountService creates a new account service instance.
func NewAccountService(accounts accountRepository, roles accountRoleRepository, people accountPersonRepository, validate *validator.Validate, logger *zap.Logger) *AccountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{accounts: accounts, roles: roles, people: people, validator: validate, logger: logger}
}

// List returns paginated account details.
func (s *AccountService) List(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, *models.Pagination, error) {
	accounts, total, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list accounts")
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
	return accounts, pagination, nil
}

// Get returns an account with resolved person identities.
func (s *AccountService) Get(ctx context.Context, id string) (*models.AccountDetail, error) {
	detail, err := s.accounts.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	return detail, nil
}

// ListForPerson returns accounts the person belongs to in any capacity.
func (s *AccountService) ListForPerson(ctx context.Context, personID string) ([]models.AccountDetail, error) {
	accounts, err := s.accounts.ListByPersonID(ctx, personID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list accounts")
	}
	return accounts, nil
}

// Compose creates an account from three person references. Each person must
// be active; missing role records are created with defaults. The student may
// hold at most one account that is not closed.
func (s *AccountService) Compose(ctx context.Context, req ComposeAccountRequest) (*models.AccountDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid account payload")
	}

	student, err := s.resolveStudentRole(ctx, req.StudentPersonID)
	if err != nil {
		return nil, err
	}
	guardian, err := s.resolveGuardianRole(ctx, req.GuardianPersonID)
	if err != nil {
		return nil, err
	}
	billing, err := s.resolveBillingRole(ctx, req.BillingPersonID)
	if err != nil {
		return nil, err
	}

	exists, err := s.accounts.ExistsForStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student account")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already holds an open account")
	}

	startDate := time.Now().UTC()
	if req.StartDate != nil {
		startDate = *req.StartDate
	}

	account := &models.Account{
		StudentID:        student.ID,
		GuardianID:       guardian.ID,
		BillingContactID: billing.ID,
		Status:           models.AccountStatusActive,
		StartDate:        startDate,
		Notes:            req.Notes,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	detail, err := s.accounts.FindDetailByID(ctx, account.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load created account")
	}
	return detail, nil
}

func (s *AccountService) resolveActivePerson(ctx context.Context, personID, label string) (*models.Person, error) {
	person, err := s.people.FindByID(ctx, personID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, label+" person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	if !person.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, label+" person is not active")
	}
	return person, nil
}

func (s *AccountService) resolveStudentRole(ctx context.Context, personID string) (*models.Student, error) {
	person, err := s.resolveActivePerson(ctx, personID, "student")
	if err != nil {
		return nil, err
	}
	student, err := s.roles.FindStudentByPersonID(ctx, person.ID)
	if err == nil {
		return student, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student role")
	}
	student = &models.Student{PersonID: person.ID, Status: models.StudentStatusProspect}
	if err := s.roles.CreateStudent(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student role")
	}
	return student, nil
}

func (s *AccountService) resolveGuardianRole(ctx context.Context, personID string) (*models.Guardian, error) {
	person, err := s.resolveActivePerson(ctx, personID, "guardian")
	if err != nil {
		return nil, err
	}
	guardian, err := s.roles.FindGuardianByPersonID(ctx, person.ID)
	if err == nil {
		return guardian, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian role")
	}
	guardian = &models.Guardian{PersonID: person.ID, AuthorizedForPickup: true}
	if err := s.roles.CreateGuardian(ctx, guardian); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create guardian role")
	}
	return guardian, nil
}

func (s *AccountService) resolveBillingRole(ctx context.Context, personID string) (*models.BillingContact, error) {
	person, err := s.resolveActivePerson(ctx, personID, "billing contact")
	if err != nil {
		return nil, err
	}
	contact, err := s.roles.FindBillingContactByPersonID(ctx, person.ID)
	if err == nil {
		return contact, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load billing role")
	}
	contact = &models.BillingContact{PersonID: person.ID}
	if err := s.roles.CreateBillingContact(ctx, contact); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create billing role")
	}
	return contact, nil
}

// SwapRole replaces the guardian or billing contact on an open account with
// another person's role record, creating the role when the person lacks it.
// The student reference is fixed for the account's lifetime.
func (s *AccountService) SwapRole(ctx context.Context, id string, req SwapAccountRoleRequest) (*models.AccountDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid swap payload")
	}

	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.Status == models.AccountStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrAccountClosed, "cannot modify a closed account")
	}

	switch req.Kind {
	case models.RoleKindGuardian:
		guardian, err := s.resolveGuardianRole(ctx, req.PersonID)
		if err != nil {
			return nil, err
		}
		account.GuardianID = guardian.ID
	case models.RoleKindBillingContact:
		billing, err := s.resolveBillingRole(ctx, req.PersonID)
		if err != nil {
			return nil, err
		}
		account.BillingContactID = billing.ID
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "only guardian and billing contact can be swapped")
	}

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account")
	}

	detail, err := s.accounts.FindDetailByID(ctx, account.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	return detail, nil
}

// Suspend pauses an account. Suspended accounts keep their enrollments but
// cannot request new ones.
func (s *AccountService) Suspend(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.AccountStatusSuspended)
}

// Reactivate returns a suspended or inactive account to active.
func (s *AccountService) Reactivate(ctx context.Context, id string) error {
	return s.transition(ctx, id, models.AccountStatusActive)
}

func (s *AccountService) transition(ctx context.Context, id string, target models.AccountStatus) error {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.Status == models.AccountStatusClosed {
		return appErrors.Clone(appErrors.ErrAccountClosed, "closed accounts cannot change status")
	}
	if account.Status == target {
		return nil
	}
	if err := s.accounts.UpdateStatus(ctx, id, target, nil); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account status")
	}
	return nil
}

// Close permanently closes an account, recording endDate (now when nil) as
// the closing date. Closing is blocked while the account still has open
// enrollments or invoices carrying a balance.
func (s *AccountService) Close(ctx context.Context, id string, endDate *time.Time) error {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if account.Status == models.AccountStatusClosed {
		return nil
	}

	openEnrollments, err := s.accounts.CountOpenEnrollments(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollments")
	}
	if openEnrollments > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "account has open enrollments")
	}

	unpaid, err := s.accounts.CountUnpaidInvoices(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check invoices")
	}
	if unpaid > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "account has unpaid invoices")
	}

	closedAt := time.Now().UTC()
	if endDate != nil {
		closedAt = endDate.UTC()
	}
	if err := s.accounts.UpdateStatus(ctx, id, models.AccountStatusClosed, &closedAt); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close account")
	}
	s.logger.Info("account closed", zap.String("account_id", id))
	return nil
}
