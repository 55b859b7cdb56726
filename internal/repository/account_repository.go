package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arabesque/studio-api/internal/models"
)

// accountDetailSelect joins the three role references through to the person
// registry so callers get display identity in one round trip.
const accountDetailSelect = `SELECT a.id, a.code, a.student_id, a.guardian_id, a.billing_contact_id, a.status, a.start_date, a.end_date, a.notes, a.created_at, a.updated_at,
	sp.id AS student_person_id, sp.given_name || ' ' || sp.family_name AS student_name, sp.date_of_birth AS student_date_of_birth,
	gp.id AS guardian_person_id, gp.given_name || ' ' || gp.family_name AS guardian_name,
	bp.id AS billing_person_id, bp.given_name || ' ' || bp.family_name AS billing_name
	FROM accounts a
	JOIN students s ON s.id = a.student_id
	JOIN people sp ON sp.id = s.person_id
	JOIN guardians g ON g.id = a.guardian_id
	JOIN people gp ON gp.id = g.person_id
	JOIN billing_contacts b ON b.id = a.billing_contact_id
	JOIN people bp ON bp.id = b.person_id`

// AccountRepository handles persistence for studio accounts.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository instantiates an account repository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// List returns account details matching the filter.
func (r *AccountRepository) List(ctx context.Context, filter models.AccountFilter) ([]models.AccountDetail, int, error) {
	base := ` FROM accounts a
	JOIN students s ON s.id = a.student_id
	JOIN people sp ON sp.id = s.person_id
	JOIN guardians g ON g.id = a.guardian_id
	JOIN people gp ON gp.id = g.person_id
	JOIN billing_contacts b ON b.id = a.billing_contact_id
	JOIN people bp ON bp.id = b.person_id
	WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.PersonID != "" {
		conditions = append(conditions, fmt.Sprintf("(sp.id = $%d OR gp.id = $%d OR bp.id = $%d)", len(args)+1, len(args)+2, len(args)+3))
		args = append(args, filter.PersonID, filter.PersonID, filter.PersonID)
	}
	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(sp.given_name || ' ' || sp.family_name) LIKE $%d OR a.code = $%d)", len(args)+1, len(args)+2))
		args = append(args, needle, filter.Search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "a.created_at"
	}
	allowedSorts := map[string]string{
		"created_at":   "a.created_at",
		"start_date":   "a.start_date",
		"status":       "a.status",
		"student_name": "student_name",
	}
	if mapped, ok := allowedSorts[sortBy]; ok {
		sortBy = mapped
	} else {
		sortBy = "a.created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT a.id, a.code, a.student_id, a.guardian_id, a.billing_contact_id, a.status, a.start_date, a.end_date, a.notes, a.created_at, a.updated_at,
	sp.id AS student_person_id, sp.given_name || ' ' || sp.family_name AS student_name, sp.date_of_birth AS student_date_of_birth,
	gp.id AS guardian_person_id, gp.given_name || ' ' || gp.family_name AS guardian_name,
	bp.id AS billing_person_id, bp.given_name || ' ' || bp.family_name AS billing_name%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)

	var accounts []models.AccountDetail
	if err := r.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	return accounts, total, nil
}

// FindByID loads a bare account row.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT id, code, student_id, guardian_id, billing_contact_id, status, start_date, end_date, notes, created_at, updated_at FROM accounts WHERE id = $1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		return nil, err
	}
	return &account, nil
}

// FindDetailByID loads an account with its resolved person identities.
func (r *AccountRepository) FindDetailByID(ctx context.Context, id string) (*models.AccountDetail, error) {
	query := accountDetailSelect + " WHERE a.id = $1"
	var detail models.AccountDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByPersonID returns accounts where the person holds any of the three
// composed roles. Used for portal scoping.
func (r *AccountRepository) ListByPersonID(ctx context.Context, personID string) ([]models.AccountDetail, error) {
	query := accountDetailSelect + " WHERE sp.id = $1 OR gp.id = $1 OR bp.id = $1 ORDER BY a.created_at DESC"
	var accounts []models.AccountDetail
	if err := r.db.SelectContext(ctx, &accounts, query, personID); err != nil {
		return nil, fmt.Errorf("list accounts by person: %w", err)
	}
	return accounts, nil
}

// Create inserts a new account record.
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Code == "" {
		account.Code = models.GenerateAccountCode()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	const query = `INSERT INTO accounts (id, code, student_id, guardian_id, billing_contact_id, status, start_date, end_date, notes, created_at, updated_at) VALUES (:id, :code, :student_id, :guardian_id, :billing_contact_id, :status, :start_date, :end_date, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// Update modifies an existing account.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now().UTC()
	const query = `UPDATE accounts SET guardian_id = :guardian_id, billing_contact_id = :billing_contact_id, status = :status, start_date = :start_date, end_date = :end_date, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// UpdateStatus changes only the account status, stamping the end date when
// the account closes.
func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, status models.AccountStatus, endDate *time.Time) error {
	const query = `UPDATE accounts SET status = $2, end_date = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, endDate, time.Now().UTC()); err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	return nil
}

// ExistsForStudent checks whether the student already belongs to an account
// that is not closed.
func (r *AccountRepository) ExistsForStudent(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM accounts WHERE student_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, models.AccountStatusClosed); err != nil {
		return false, fmt.Errorf("check student account: %w", err)
	}
	return count > 0, nil
}

// CountOpenEnrollments returns the number of enrollments on the account that
// are not yet withdrawn or completed.
func (r *AccountRepository) CountOpenEnrollments(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE account_id = $1 AND status NOT IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusCompleted); err != nil {
		return 0, fmt.Errorf("count open enrollments: %w", err)
	}
	return count, nil
}

// CountUnpaidInvoices returns the number of invoices on the account still
// carrying an outstanding balance.
func (r *AccountRepository) CountUnpaidInvoices(ctx context.Context, id string) (int, error) {
	const query = `SELECT COUNT(*) FROM invoices WHERE account_id = $1 AND status IN ($2, $3, $4)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, id, models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid, models.InvoiceStatusOverdue); err != nil {
		return 0, fmt.Errorf("count unpaid invoices: %w", err)
	}
	return count, nil
}
