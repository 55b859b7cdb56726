package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arabesque/studio-api/internal/models"
)

// ErrDuplicateEnrollment signals a second live enrollment for the same
// account and class.
var ErrDuplicateEnrollment = errors.New("enrollment already exists for this account and class")

// ErrClassFull signals a promotion off the waitlist into a class with no
// free slot.
var ErrClassFull = errors.New("class has no free slot")

const enrollmentColumns = "id, account_id, class_instance_id, status, blocked_on_evaluation, request_date, trial_date, active_date, withdrawn_date, completed_date, notes, created_at, updated_at"

const enrollmentDetailSelect = `SELECT e.id, e.account_id, e.class_instance_id, e.status, e.blocked_on_evaluation, e.request_date, e.trial_date, e.active_date, e.withdrawn_date, e.completed_date, e.notes, e.created_at, e.updated_at,
	a.code AS account_code, a.student_id,
	sp.id AS student_person_id, sp.given_name || ' ' || sp.family_name AS student_name,
	gp.id AS guardian_person_id,
	ct.name AS class_type_name, t.name AS term_name
	FROM enrollments e
	JOIN accounts a ON a.id = e.account_id
	JOIN students s ON s.id = a.student_id
	JOIN people sp ON sp.id = s.person_id
	JOIN guardians g ON g.id = a.guardian_id
	JOIN people gp ON gp.id = g.person_id
	JOIN class_instances c ON c.id = e.class_instance_id
	JOIN class_types ct ON ct.id = c.class_type_id
	JOIN terms t ON t.id = c.term_id`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := ` FROM enrollments e
	JOIN accounts a ON a.id = e.account_id
	JOIN students s ON s.id = a.student_id
	JOIN people sp ON sp.id = s.person_id
	JOIN guardians g ON g.id = a.guardian_id
	JOIN people gp ON gp.id = g.person_id
	JOIN class_instances c ON c.id = e.class_instance_id
	JOIN class_types ct ON ct.id = c.class_type_id
	JOIN terms t ON t.id = c.term_id`
	var conditions []string
	var args []interface{}

	if filter.AccountID != "" {
		conditions = append(conditions, fmt.Sprintf("e.account_id = $%d", len(args)+1))
		args = append(args, filter.AccountID)
	}
	if filter.ClassInstanceID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_instance_id = $%d", len(args)+1))
		args = append(args, filter.ClassInstanceID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("c.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"request_date": "e.request_date",
		"status":       "e.status",
		"student_name": "student_name",
		"created_at":   "e.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "request_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.request_date"
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

	query := fmt.Sprintf(`SELECT e.id, e.account_id, e.class_instance_id, e.status, e.blocked_on_evaluation, e.request_date, e.trial_date, e.active_date, e.withdrawn_date, e.completed_date, e.notes, e.created_at, e.updated_at,
	a.code AS account_code, a.student_id,
	sp.id AS student_person_id, sp.given_name || ' ' || sp.family_name AS student_name,
	gp.id AS guardian_person_id,
	ct.name AS class_type_name, t.name AS term_name%s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + " WHERE e.id = $1"
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsLive checks whether the account already holds a non-withdrawn
// enrollment in the class. Completed enrollments still block a repeat
// request; only withdrawal clears the way for a new one.
func (r *EnrollmentRepository) ExistsLive(ctx context.Context, accountID, classInstanceID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, accountID, classInstanceID, models.EnrollmentStatusWithdrawn); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check live enrollment: %w", err)
	}
	return true, nil
}

// CreateGated inserts the enrollment after re-checking capacity under a row
// lock on the class. The status comes out as applied when a slot is free and
// waitlist otherwise; callers that pass blockedOnEvaluation get applied
// without consuming a slot. The transaction serializes concurrent requests
// for the same class so the capacity count cannot be overrun.
func (r *EnrollmentRepository) CreateGated(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.RequestDate.IsZero() {
		enrollment.RequestDate = now
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var maxStudents int
	if err = tx.GetContext(ctx, &maxStudents,
		`SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE`,
		enrollment.ClassInstanceID); err != nil {
		return fmt.Errorf("lock class: %w", err)
	}

	var duplicate int
	err = tx.GetContext(ctx, &duplicate,
		`SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2 AND status <> $3 LIMIT 1`,
		enrollment.AccountID, enrollment.ClassInstanceID, models.EnrollmentStatusWithdrawn)
	if err == nil {
		err = ErrDuplicateEnrollment
		return err
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("recheck duplicate enrollment: %w", err)
	}
	err = nil

	enrollment.Status = models.EnrollmentStatusApplied
	if !enrollment.BlockedOnEvaluation {
		var occupied int
		if err = tx.GetContext(ctx, &occupied,
			`SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1 AND blocked_on_evaluation = FALSE AND status NOT IN ($2, $3)`,
			enrollment.ClassInstanceID, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusWaitlist); err != nil {
			return fmt.Errorf("count occupied slots: %w", err)
		}
		if occupied >= maxStudents {
			enrollment.Status = models.EnrollmentStatusWaitlist
		}
	}

	if _, err = tx.NamedExecContext(ctx,
		`INSERT INTO enrollments (id, account_id, class_instance_id, status, blocked_on_evaluation, request_date, trial_date, active_date, withdrawn_date, completed_date, notes, created_at, updated_at) VALUES (:id, :account_id, :class_instance_id, :status, :blocked_on_evaluation, :request_date, :trial_date, :active_date, :withdrawn_date, :completed_date, :notes, :created_at, :updated_at)`,
		enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment tx: %w", err)
	}
	return nil
}

// ClearEvaluationBlock lifts the evaluation hold on an applied enrollment.
// Under the class row lock it decides whether a slot is still free; when the
// class has filled in the meantime the enrollment moves to the waitlist.
func (r *EnrollmentRepository) ClearEvaluationBlock(ctx context.Context, id string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unblock tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var enrollment models.Enrollment
	if err = tx.GetContext(ctx, &enrollment,
		fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE", enrollmentColumns), id); err != nil {
		return nil, err
	}

	var maxStudents int
	if err = tx.GetContext(ctx, &maxStudents,
		`SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE`,
		enrollment.ClassInstanceID); err != nil {
		return nil, fmt.Errorf("lock class: %w", err)
	}

	var occupied int
	if err = tx.GetContext(ctx, &occupied,
		`SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1 AND blocked_on_evaluation = FALSE AND status NOT IN ($2, $3) AND id <> $4`,
		enrollment.ClassInstanceID, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusWaitlist, enrollment.ID); err != nil {
		return nil, fmt.Errorf("count occupied slots: %w", err)
	}

	enrollment.BlockedOnEvaluation = false
	if enrollment.Status == models.EnrollmentStatusApplied && occupied >= maxStudents {
		enrollment.Status = models.EnrollmentStatusWaitlist
	}
	enrollment.UpdatedAt = time.Now().UTC()

	if _, err = tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, blocked_on_evaluation = FALSE, updated_at = $3 WHERE id = $1`,
		enrollment.ID, enrollment.Status, enrollment.UpdatedAt); err != nil {
		return nil, fmt.Errorf("clear evaluation block: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit unblock tx: %w", err)
	}
	return &enrollment, nil
}

// UpdateStatusAndPromote moves the enrollment to the target status, stamping
// the matching date column. When the move frees a slot (withdrawn or
// completed from an occupying status) the earliest waitlisted enrollment on
// the class is promoted back to applied inside the same transaction. Returns
// the promoted enrollment, if any.
func (r *EnrollmentRepository) UpdateStatusAndPromote(ctx context.Context, id string, target models.EnrollmentStatus, at time.Time) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Enrollment
	if err = tx.GetContext(ctx, &current,
		fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE", enrollmentColumns), id); err != nil {
		return nil, err
	}

	// A manual promotion off the waitlist passes the same capacity gate as
	// an automatic one.
	if current.Status == models.EnrollmentStatusWaitlist && target == models.EnrollmentStatusApplied {
		var maxStudents int
		if err = tx.GetContext(ctx, &maxStudents,
			`SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE`,
			current.ClassInstanceID); err != nil {
			return nil, fmt.Errorf("lock class: %w", err)
		}
		var occupied int
		if err = tx.GetContext(ctx, &occupied,
			`SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1 AND blocked_on_evaluation = FALSE AND status NOT IN ($2, $3) AND id <> $4`,
			current.ClassInstanceID, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusWaitlist, current.ID); err != nil {
			return nil, fmt.Errorf("count occupied slots: %w", err)
		}
		if occupied >= maxStudents {
			err = ErrClassFull
			return nil, err
		}
	}

	now := time.Now().UTC()
	set := "status = $2, updated_at = $3"
	args := []interface{}{id, target, now}
	switch target {
	case models.EnrollmentStatusTrial:
		set += ", trial_date = $4"
		args = append(args, at)
	case models.EnrollmentStatusActive:
		set += ", active_date = $4"
		args = append(args, at)
	case models.EnrollmentStatusWithdrawn:
		set += ", withdrawn_date = $4"
		args = append(args, at)
	case models.EnrollmentStatusCompleted:
		set += ", completed_date = $4"
		args = append(args, at)
	}

	if _, err = tx.ExecContext(ctx, fmt.Sprintf("UPDATE enrollments SET %s WHERE id = $1", set), args...); err != nil {
		return nil, fmt.Errorf("update enrollment status: %w", err)
	}

	freedSlot := (target == models.EnrollmentStatusWithdrawn || target == models.EnrollmentStatusCompleted) &&
		current.Status.CountsTowardCapacity() && !current.BlockedOnEvaluation

	var promoted *models.Enrollment
	if freedSlot {
		promoted, err = r.promoteEarliestWaitlisted(ctx, tx, current.ClassInstanceID, now)
		if err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status tx: %w", err)
	}
	return promoted, nil
}

// promoteEarliestWaitlisted moves the oldest waitlisted enrollment on the
// class back to applied. Runs inside the caller's transaction, which already
// holds the lock that freed the slot.
func (r *EnrollmentRepository) promoteEarliestWaitlisted(ctx context.Context, tx *sqlx.Tx, classInstanceID string, now time.Time) (*models.Enrollment, error) {
	var candidate models.Enrollment
	err := tx.GetContext(ctx, &candidate,
		fmt.Sprintf("SELECT %s FROM enrollments WHERE class_instance_id = $1 AND status = $2 ORDER BY created_at, id LIMIT 1 FOR UPDATE", enrollmentColumns),
		classInstanceID, models.EnrollmentStatusWaitlist)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find waitlisted enrollment: %w", err)
	}

	candidate.Status = models.EnrollmentStatusApplied
	candidate.UpdatedAt = now
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`,
		candidate.ID, models.EnrollmentStatusApplied, now); err != nil {
		return nil, fmt.Errorf("promote waitlisted enrollment: %w", err)
	}
	return &candidate, nil
}

// ListBlockedByStudentGenre returns applied enrollments held behind the
// evaluation gate for a student's classes in one genre, oldest first. Reads
// through the account so sibling accounts never leak in.
func (r *EnrollmentRepository) ListBlockedByStudentGenre(ctx context.Context, studentID, genreID string) ([]models.Enrollment, error) {
	const query = `SELECT e.id, e.account_id, e.class_instance_id, e.status, e.blocked_on_evaluation, e.request_date, e.trial_date, e.active_date, e.withdrawn_date, e.completed_date, e.notes, e.created_at, e.updated_at
	FROM enrollments e
	JOIN accounts a ON a.id = e.account_id
	JOIN class_instances c ON c.id = e.class_instance_id
	JOIN class_types ct ON ct.id = c.class_type_id
	WHERE a.student_id = $1 AND ct.genre_id = $2 AND e.blocked_on_evaluation = TRUE AND e.status = $3
	ORDER BY e.created_at, e.id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, genreID, models.EnrollmentStatusApplied); err != nil {
		return nil, fmt.Errorf("list blocked enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByClass returns enrollments for a class ordered by request date.
func (r *EnrollmentRepository) ListByClass(ctx context.Context, classInstanceID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + " WHERE e.class_instance_id = $1 ORDER BY e.request_date, e.id"
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, classInstanceID); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

// ListByAccount returns enrollments for an account, newest first.
func (r *EnrollmentRepository) ListByAccount(ctx context.Context, accountID string) ([]models.EnrollmentDetail, error) {
	query := enrollmentDetailSelect + " WHERE e.account_id = $1 ORDER BY e.request_date DESC"
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, accountID); err != nil {
		return nil, fmt.Errorf("list account enrollments: %w", err)
	}
	return enrollments, nil
}
