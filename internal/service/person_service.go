package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/internal/repository"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type personRepository interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	FindByID(ctx context.Context, id string) (*models.Person, error)
	FindByCode(ctx context.Context, code string) (*models.Person, error)
	EmailInUse(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, person *models.Person) error
	Update(ctx context.Context, person *models.Person) error
	SetActive(ctx context.Context, id string, active bool) error
	CountRoleAttachments(ctx context.Context, id string) (int, error)
}

type personRoleRepository interface {
	ListByPerson(ctx context.Context, personID string) (*repository.RoleSet, error)
	FindStudentByPersonID(ctx context.Context, personID string) (*models.Student, error)
	FindGuardianByPersonID(ctx context.Context, personID string) (*models.Guardian, error)
	FindBillingContactByPersonID(ctx context.Context, personID string) (*models.BillingContact, error)
	FindStaffByPersonID(ctx context.Context, personID string) (*models.Staff, error)
	CreateStudent(ctx context.Context, student *models.Student) error
	UpdateStudent(ctx context.Context, student *models.Student) error
	CreateGuardian(ctx context.Context, guardian *models.Guardian) error
	UpdateGuardian(ctx context.Context, guardian *models.Guardian) error
	CreateBillingContact(ctx context.Context, contact *models.BillingContact) error
	UpdateBillingContact(ctx context.Context, contact *models.BillingContact) error
	CreateStaff(ctx context.Context, staff *models.Staff) error
	UpdateStaff(ctx context.Context, staff *models.Staff) error
}

// CreatePersonRequest describes payload for registering a person.
type CreatePersonRequest struct {
	GivenName      string    `json:"given_name" validate:"required"`
	FamilyName     string    `json:"family_name" validate:"required"`
	PreferredName  string    `json:"preferred_name"`
	DateOfBirth    time.Time `json:"date_of_birth" validate:"required"`
	Email          *string   `json:"email" validate:"omitempty,email"`
	Phone          string    `json:"phone"`
	PhoneAlt       string    `json:"phone_alt"`
	AddressLine1   string    `json:"address_line1"`
	AddressLine2   string    `json:"address_line2"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	PostalCode     string    `json:"postal_code"`
	Country        string    `json:"country"`
	EmergencyName  string    `json:"emergency_name"`
	EmergencyPhone string    `json:"emergency_phone"`
	Notes          string    `json:"notes"`
}

// UpdatePersonRequest updates mutable fields of a person.
type UpdatePersonRequest struct {
	GivenName      string    `json:"given_name" validate:"required"`
	FamilyName     string    `json:"family_name" validate:"required"`
	PreferredName  string    `json:"preferred_name"`
	DateOfBirth    time.Time `json:"date_of_birth" validate:"required"`
	Email          *string   `json:"email" validate:"omitempty,email"`
	Phone          string    `json:"phone"`
	PhoneAlt       string    `json:"phone_alt"`
	AddressLine1   string    `json:"address_line1"`
	AddressLine2   string    `json:"address_line2"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	PostalCode     string    `json:"postal_code"`
	Country        string    `json:"country"`
	EmergencyName  string    `json:"emergency_name"`
	EmergencyPhone string    `json:"emergency_phone"`
	Notes          string    `json:"notes"`
}

// AttachRoleRequest attaches a role record to a person.
type AttachRoleRequest struct {
	Kind models.RoleKind `json:"kind" validate:"required"`

	// Student fields.
	MedicalNotes string `json:"medical_notes"`
	Allergies    string `json:"allergies"`
	PhotoConsent bool   `json:"photo_consent"`
	School       string `json:"school"`
	YearLevel    string `json:"year_level"`

	// Guardian fields.
	AuthorizedForPickup bool   `json:"authorized_for_pickup"`
	CommPreference      string `json:"comm_preference"`
	RelationshipNotes   string `json:"relationship_notes"`

	// Billing contact fields.
	PaymentMethod     string `json:"payment_method"`
	BillingPreference string `json:"billing_preference"`
	PaymentNotes      string `json:"payment_notes"`

	// Staff fields.
	HireDate    *time.Time       `json:"hire_date"`
	StaffRole   models.StaffRole `json:"staff_role"`
	Bio         string           `json:"bio"`
	Specialties string           `json:"specialties"`
}

// PersonWithRoles bundles a person with their attached role records.
type PersonWithRoles struct {
	Person models.Person       `json:"person"`
	Roles  *repository.RoleSet `json:"roles"`
}

// PersonService orchestrates the person registry and role attachments.
type PersonService struct {
	people    personRepository
	roles     personRoleRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPersonService creates a new person service instance.
func NewPersonService(people personRepository, roles personRoleRepository, validate *validator.Validate, logger *zap.Logger) *PersonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonService{people: people, roles: roles, validator: validate, logger: logger}
}

// List returns paginated people.
func (s *PersonService) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	people, total, err := s.people.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list people")
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
	return people, pagination, nil
}

// Get returns a person with their role attachments.
func (s *PersonService) Get(ctx context.Context, id string) (*PersonWithRoles, error) {
	person, err := s.people.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}

	roles, err := s.roles.ListByPerson(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}

	return &PersonWithRoles{Person: *person, Roles: roles}, nil
}

// Create registers a new person. Each person must carry at least one contact
// method so the studio can always reach them.
func (s *PersonService) Create(ctx context.Context, req CreatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}

	person := &models.Person{
		GivenName:      req.GivenName,
		FamilyName:     req.FamilyName,
		PreferredName:  req.PreferredName,
		DateOfBirth:    req.DateOfBirth,
		Email:          req.Email,
		Phone:          req.Phone,
		PhoneAlt:       req.PhoneAlt,
		AddressLine1:   req.AddressLine1,
		AddressLine2:   req.AddressLine2,
		City:           req.City,
		State:          req.State,
		PostalCode:     req.PostalCode,
		Country:        req.Country,
		EmergencyName:  req.EmergencyName,
		EmergencyPhone: req.EmergencyPhone,
		Notes:          req.Notes,
		Active:         true,
	}

	if !person.HasContactMethod() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "person requires at least one contact method")
	}
	if person.DateOfBirth.After(time.Now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date_of_birth cannot be in the future")
	}

	if req.Email != nil && *req.Email != "" {
		inUse, err := s.people.EmailInUse(ctx, *req.Email, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if inUse {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
	}

	if err := s.people.Create(ctx, person); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create person")
	}
	return person, nil
}

// Update modifies a person record.
func (s *PersonService) Update(ctx context.Context, id string, req UpdatePersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid person payload")
	}

	person, err := s.people.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}

	if req.Email != nil && *req.Email != "" {
		inUse, err := s.people.EmailInUse(ctx, *req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if inUse {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
	}

	person.GivenName = req.GivenName
	person.FamilyName = req.FamilyName
	person.PreferredName = req.PreferredName
	person.DateOfBirth = req.DateOfBirth
	person.Email = req.Email
	person.Phone = req.Phone
	person.PhoneAlt = req.PhoneAlt
	person.AddressLine1 = req.AddressLine1
	person.AddressLine2 = req.AddressLine2
	person.City = req.City
	person.State = req.State
	person.PostalCode = req.PostalCode
	person.Country = req.Country
	person.EmergencyName = req.EmergencyName
	person.EmergencyPhone = req.EmergencyPhone
	person.Notes = req.Notes

	if !person.HasContactMethod() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "person requires at least one contact method")
	}

	if err := s.people.Update(ctx, person); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update person")
	}
	return person, nil
}

// Deactivate marks a person inactive without deleting history.
func (s *PersonService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.people.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}
	if err := s.people.SetActive(ctx, id, false); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate person")
	}
	return nil
}

// AttachRole layers a role record onto a person. A person may hold each role
// kind at most once; attaching the same kind again updates the existing
// record instead of failing.
func (s *PersonService) AttachRole(ctx context.Context, personID string, req AttachRoleRequest) (*repository.RoleSet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}
	if !req.Kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role kind")
	}

	person, err := s.people.FindByID(ctx, personID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "person not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load person")
	}

	switch req.Kind {
	case models.RoleKindStudent:
		err = s.attachStudent(ctx, person.ID, req)
	case models.RoleKindGuardian:
		err = s.attachGuardian(ctx, person.ID, req)
	case models.RoleKindBillingContact:
		err = s.attachBillingContact(ctx, person.ID, req)
	case models.RoleKindStaff:
		err = s.attachStaff(ctx, person.ID, req)
	}
	if err != nil {
		return nil, err
	}

	roles, err := s.roles.ListByPerson(ctx, person.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roles")
	}
	return roles, nil
}

func (s *PersonService) attachStudent(ctx context.Context, personID string, req AttachRoleRequest) error {
	existing, err := s.roles.FindStudentByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student role")
	}
	if existing != nil {
		existing.MedicalNotes = req.MedicalNotes
		existing.Allergies = req.Allergies
		existing.PhotoConsent = req.PhotoConsent
		existing.School = req.School
		existing.YearLevel = req.YearLevel
		if err := s.roles.UpdateStudent(ctx, existing); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student role")
		}
		return nil
	}

	student := &models.Student{
		PersonID:     personID,
		MedicalNotes: req.MedicalNotes,
		Allergies:    req.Allergies,
		PhotoConsent: req.PhotoConsent,
		School:       req.School,
		YearLevel:    req.YearLevel,
		Status:       models.StudentStatusProspect,
	}
	if err := s.roles.CreateStudent(ctx, student); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach student role")
	}
	return nil
}

func (s *PersonService) attachGuardian(ctx context.Context, personID string, req AttachRoleRequest) error {
	existing, err := s.roles.FindGuardianByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load guardian role")
	}
	if existing != nil {
		existing.AuthorizedForPickup = req.AuthorizedForPickup
		existing.CommPreference = req.CommPreference
		existing.RelationshipNotes = req.RelationshipNotes
		if err := s.roles.UpdateGuardian(ctx, existing); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update guardian role")
		}
		return nil
	}

	guardian := &models.Guardian{
		PersonID:            personID,
		AuthorizedForPickup: req.AuthorizedForPickup,
		CommPreference:      req.CommPreference,
		RelationshipNotes:   req.RelationshipNotes,
	}
	if err := s.roles.CreateGuardian(ctx, guardian); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach guardian role")
	}
	return nil
}

func (s *PersonService) attachBillingContact(ctx context.Context, personID string, req AttachRoleRequest) error {
	existing, err := s.roles.FindBillingContactByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load billing role")
	}
	if existing != nil {
		existing.PaymentMethod = req.PaymentMethod
		existing.BillingPreference = req.BillingPreference
		existing.PaymentNotes = req.PaymentNotes
		if err := s.roles.UpdateBillingContact(ctx, existing); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update billing role")
		}
		return nil
	}

	contact := &models.BillingContact{
		PersonID:          personID,
		PaymentMethod:     req.PaymentMethod,
		BillingPreference: req.BillingPreference,
		PaymentNotes:      req.PaymentNotes,
	}
	if err := s.roles.CreateBillingContact(ctx, contact); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach billing role")
	}
	return nil
}

func (s *PersonService) attachStaff(ctx context.Context, personID string, req AttachRoleRequest) error {
	if req.StaffRole == "" {
		return appErrors.Clone(appErrors.ErrValidation, "staff_role is required")
	}

	existing, err := s.roles.FindStaffByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load staff role")
	}
	if existing != nil {
		existing.Role = req.StaffRole
		existing.Bio = req.Bio
		existing.Specialties = req.Specialties
		if req.HireDate != nil {
			existing.HireDate = *req.HireDate
		}
		if err := s.roles.UpdateStaff(ctx, existing); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update staff role")
		}
		return nil
	}

	hireDate := time.Now().UTC()
	if req.HireDate != nil {
		hireDate = *req.HireDate
	}
	staff := &models.Staff{
		PersonID:         personID,
		HireDate:         hireDate,
		Role:             req.StaffRole,
		Bio:              req.Bio,
		Specialties:      req.Specialties,
		EmploymentStatus: models.EmploymentActive,
	}
	if err := s.roles.CreateStaff(ctx, staff); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach staff role")
	}
	return nil
}
