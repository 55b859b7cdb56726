package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arabesque/studio-api/internal/models"
)

const personColumns = "id, code, given_name, family_name, preferred_name, date_of_birth, email, phone, phone_alt, address_line1, address_line2, city, state, postal_code, country, emergency_name, emergency_phone, notes, active, created_at, updated_at"

// PersonRepository handles persistence for the person registry.
type PersonRepository struct {
	db *sqlx.DB
}

// NewPersonRepository instantiates a person repository.
func NewPersonRepository(db *sqlx.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// List returns people matching the filter.
func (r *PersonRepository) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	base := "FROM people WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(given_name) LIKE $%d OR LOWER(family_name) LIKE $%d OR LOWER(preferred_name) LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d OR code = $%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5))
		args = append(args, needle, needle, needle, needle, filter.Search)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "family_name"
	}
	allowedSorts := map[string]bool{
		"given_name":    true,
		"family_name":   true,
		"date_of_birth": true,
		"created_at":    true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "family_name"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", personColumns, base, sortBy, order, size, offset)

	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list people: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count people: %w", err)
	}

	return people, total, nil
}

// FindByID loads a person by identifier.
func (r *PersonRepository) FindByID(ctx context.Context, id string) (*models.Person, error) {
	query := fmt.Sprintf("SELECT %s FROM people WHERE id = $1", personColumns)
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, id); err != nil {
		return nil, err
	}
	return &person, nil
}

// FindByCode loads a person by human-facing code.
func (r *PersonRepository) FindByCode(ctx context.Context, code string) (*models.Person, error) {
	query := fmt.Sprintf("SELECT %s FROM people WHERE code = $1", personColumns)
	var person models.Person
	if err := r.db.GetContext(ctx, &person, query, code); err != nil {
		return nil, err
	}
	return &person, nil
}

// EmailInUse checks whether another person already uses the email.
func (r *PersonRepository) EmailInUse(ctx context.Context, email, excludeID string) (bool, error) {
	base := "SELECT 1 FROM people WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check person email: %w", err)
	}
	return true, nil
}

// Create inserts a new person record.
func (r *PersonRepository) Create(ctx context.Context, person *models.Person) error {
	if person.ID == "" {
		person.ID = uuid.NewString()
	}
	if person.Code == "" {
		person.Code = models.GeneratePersonCode()
	}
	now := time.Now().UTC()
	if person.CreatedAt.IsZero() {
		person.CreatedAt = now
	}
	person.UpdatedAt = now

	const query = `INSERT INTO people (id, code, given_name, family_name, preferred_name, date_of_birth, email, phone, phone_alt, address_line1, address_line2, city, state, postal_code, country, emergency_name, emergency_phone, notes, active, created_at, updated_at) VALUES (:id, :code, :given_name, :family_name, :preferred_name, :date_of_birth, :email, :phone, :phone_alt, :address_line1, :address_line2, :city, :state, :postal_code, :country, :emergency_name, :emergency_phone, :notes, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// Update modifies an existing person.
func (r *PersonRepository) Update(ctx context.Context, person *models.Person) error {
	person.UpdatedAt = time.Now().UTC()
	const query = `UPDATE people SET given_name = :given_name, family_name = :family_name, preferred_name = :preferred_name, date_of_birth = :date_of_birth, email = :email, phone = :phone, phone_alt = :phone_alt, address_line1 = :address_line1, address_line2 = :address_line2, city = :city, state = :state, postal_code = :postal_code, country = :country, emergency_name = :emergency_name, emergency_phone = :emergency_phone, notes = :notes, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, person); err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

// SetActive flips the person's active flag.
func (r *PersonRepository) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE people SET active = $2, updated_at = $3 WHERE id = $1`, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set person active: %w", err)
	}
	return nil
}

// CountRoleAttachments returns how many role records reference the person.
func (r *PersonRepository) CountRoleAttachments(ctx context.Context, id string) (int, error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM students WHERE person_id = $1) +
		(SELECT COUNT(*) FROM guardians WHERE person_id = $1) +
		(SELECT COUNT(*) FROM billing_contacts WHERE person_id = $1) +
		(SELECT COUNT(*) FROM staff WHERE person_id = $1)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id); err != nil {
		return 0, fmt.Errorf("count role attachments: %w", err)
	}
	return count, nil
}
