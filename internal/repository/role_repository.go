package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arabesque/studio-api/internal/models"
)

// RoleRepository handles persistence for role records layered onto people.
// Each kind lives in its own table keyed by person_id.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository instantiates a role repository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// RoleSet reports which role records a person currently holds.
type RoleSet struct {
	Student        *models.Student        `json:"student,omitempty"`
	Guardian       *models.Guardian       `json:"guardian,omitempty"`
	BillingContact *models.BillingContact `json:"billing_contact,omitempty"`
	Staff          *models.Staff          `json:"staff,omitempty"`
}

// Kinds lists the role kinds present in the set.
func (s *RoleSet) Kinds() []models.RoleKind {
	var kinds []models.RoleKind
	if s.Student != nil {
		kinds = append(kinds, models.RoleKindStudent)
	}
	if s.Guardian != nil {
		kinds = append(kinds, models.RoleKindGuardian)
	}
	if s.BillingContact != nil {
		kinds = append(kinds, models.RoleKindBillingContact)
	}
	if s.Staff != nil {
		kinds = append(kinds, models.RoleKindStaff)
	}
	return kinds
}

// ListByPerson loads every role record attached to a person.
func (r *RoleRepository) ListByPerson(ctx context.Context, personID string) (*RoleSet, error) {
	set := &RoleSet{}

	student, err := r.FindStudentByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	set.Student = student

	guardian, err := r.FindGuardianByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	set.Guardian = guardian

	billing, err := r.FindBillingContactByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	set.BillingContact = billing

	staff, err := r.FindStaffByPersonID(ctx, personID)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	set.Staff = staff

	return set, nil
}

// FindStudentByID loads a student role record.
func (r *RoleRepository) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, person_id, medical_notes, allergies, photo_consent, school, year_level, status, start_date, notes, created_at, updated_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindStudentByPersonID loads the student role for a person, sql.ErrNoRows
// when the person holds none.
func (r *RoleRepository) FindStudentByPersonID(ctx context.Context, personID string) (*models.Student, error) {
	const query = `SELECT id, person_id, medical_notes, allergies, photo_consent, school, year_level, status, start_date, notes, created_at, updated_at FROM students WHERE person_id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, personID); err != nil {
		return nil, err
	}
	return &student, nil
}

// CreateStudent attaches a student role to a person.
func (r *RoleRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now

	const query = `INSERT INTO students (id, person_id, medical_notes, allergies, photo_consent, school, year_level, status, start_date, notes, created_at, updated_at) VALUES (:id, :person_id, :medical_notes, :allergies, :photo_consent, :school, :year_level, :status, :start_date, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// UpdateStudent modifies a student role record.
func (r *RoleRepository) UpdateStudent(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET medical_notes = :medical_notes, allergies = :allergies, photo_consent = :photo_consent, school = :school, year_level = :year_level, status = :status, start_date = :start_date, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// FindGuardianByID loads a guardian role record.
func (r *RoleRepository) FindGuardianByID(ctx context.Context, id string) (*models.Guardian, error) {
	const query = `SELECT id, person_id, authorized_for_pickup, comm_preference, relationship_notes, created_at, updated_at FROM guardians WHERE id = $1`
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, id); err != nil {
		return nil, err
	}
	return &guardian, nil
}

// FindGuardianByPersonID loads the guardian role for a person.
func (r *RoleRepository) FindGuardianByPersonID(ctx context.Context, personID string) (*models.Guardian, error) {
	const query = `SELECT id, person_id, authorized_for_pickup, comm_preference, relationship_notes, created_at, updated_at FROM guardians WHERE person_id = $1`
	var guardian models.Guardian
	if err := r.db.GetContext(ctx, &guardian, query, personID); err != nil {
		return nil, err
	}
	return &guardian, nil
}

// CreateGuardian attaches a guardian role to a person.
func (r *RoleRepository) CreateGuardian(ctx context.Context, guardian *models.Guardian) error {
	if guardian.ID == "" {
		guardian.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if guardian.CreatedAt.IsZero() {
		guardian.CreatedAt = now
	}
	guardian.UpdatedAt = now

	const query = `INSERT INTO guardians (id, person_id, authorized_for_pickup, comm_preference, relationship_notes, created_at, updated_at) VALUES (:id, :person_id, :authorized_for_pickup, :comm_preference, :relationship_notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, guardian); err != nil {
		return fmt.Errorf("create guardian: %w", err)
	}
	return nil
}

// UpdateGuardian modifies a guardian role record.
func (r *RoleRepository) UpdateGuardian(ctx context.Context, guardian *models.Guardian) error {
	guardian.UpdatedAt = time.Now().UTC()
	const query = `UPDATE guardians SET authorized_for_pickup = :authorized_for_pickup, comm_preference = :comm_preference, relationship_notes = :relationship_notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, guardian); err != nil {
		return fmt.Errorf("update guardian: %w", err)
	}
	return nil
}

// FindBillingContactByID loads a billing contact role record.
func (r *RoleRepository) FindBillingContactByID(ctx context.Context, id string) (*models.BillingContact, error) {
	const query = `SELECT id, person_id, payment_method, billing_preference, payment_notes, created_at, updated_at FROM billing_contacts WHERE id = $1`
	var contact models.BillingContact
	if err := r.db.GetContext(ctx, &contact, query, id); err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindBillingContactByPersonID loads the billing contact role for a person.
func (r *RoleRepository) FindBillingContactByPersonID(ctx context.Context, personID string) (*models.BillingContact, error) {
	const query = `SELECT id, person_id, payment_method, billing_preference, payment_notes, created_at, updated_at FROM billing_contacts WHERE person_id = $1`
	var contact models.BillingContact
	if err := r.db.GetContext(ctx, &contact, query, personID); err != nil {
		return nil, err
	}
	return &contact, nil
}

// CreateBillingContact attaches a billing contact role to a person.
func (r *RoleRepository) CreateBillingContact(ctx context.Context, contact *models.BillingContact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	const query = `INSERT INTO billing_contacts (id, person_id, payment_method, billing_preference, payment_notes, created_at, updated_at) VALUES (:id, :person_id, :payment_method, :billing_preference, :payment_notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, contact); err != nil {
		return fmt.Errorf("create billing contact: %w", err)
	}
	return nil
}

// UpdateBillingContact modifies a billing contact role record.
func (r *RoleRepository) UpdateBillingContact(ctx context.Context, contact *models.BillingContact) error {
	contact.UpdatedAt = time.Now().UTC()
	const query = `UPDATE billing_contacts SET payment_method = :payment_method, billing_preference = :billing_preference, payment_notes = :payment_notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, contact); err != nil {
		return fmt.Errorf("update billing contact: %w", err)
	}
	return nil
}

// FindStaffByID loads a staff role record.
func (r *RoleRepository) FindStaffByID(ctx context.Context, id string) (*models.Staff, error) {
	const query = `SELECT id, person_id, hire_date, termination_date, role, bio, specialties, employment_status, created_at, updated_at FROM staff WHERE id = $1`
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, id); err != nil {
		return nil, err
	}
	return &staff, nil
}

// FindStaffByPersonID loads the staff role for a person.
func (r *RoleRepository) FindStaffByPersonID(ctx context.Context, personID string) (*models.Staff, error) {
	const query = `SELECT id, person_id, hire_date, termination_date, role, bio, specialties, employment_status, created_at, updated_at FROM staff WHERE person_id = $1`
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, personID); err != nil {
		return nil, err
	}
	return &staff, nil
}

// ListTeachers returns staff holding the teacher role, active first.
func (r *RoleRepository) ListTeachers(ctx context.Context) ([]models.Staff, error) {
	const query = `SELECT id, person_id, hire_date, termination_date, role, bio, specialties, employment_status, created_at, updated_at FROM staff WHERE role = $1 ORDER BY employment_status, hire_date`
	var teachers []models.Staff
	if err := r.db.SelectContext(ctx, &teachers, query, models.StaffRoleTeacher); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return teachers, nil
}

// CreateStaff attaches a staff role to a person.
func (r *RoleRepository) CreateStaff(ctx context.Context, staff *models.Staff) error {
	if staff.ID == "" {
		staff.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = now
	}
	staff.UpdatedAt = now

	const query = `INSERT INTO staff (id, person_id, hire_date, termination_date, role, bio, specialties, employment_status, created_at, updated_at) VALUES (:id, :person_id, :hire_date, :termination_date, :role, :bio, :specialties, :employment_status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, staff); err != nil {
		return fmt.Errorf("create staff: %w", err)
	}
	return nil
}

// UpdateStaff modifies a staff role record.
func (r *RoleRepository) UpdateStaff(ctx context.Context, staff *models.Staff) error {
	staff.UpdatedAt = time.Now().UTC()
	const query = `UPDATE staff SET hire_date = :hire_date, termination_date = :termination_date, role = :role, bio = :bio, specialties = :specialties, employment_status = :employment_status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, staff); err != nil {
		return fmt.Errorf("update staff: %w", err)
	}
	return nil
}
