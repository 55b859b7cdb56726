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

// ErrDuplicateEvaluation signals a second evaluation for the same student,
// genre and date.
var ErrDuplicateEvaluation = errors.New("evaluation already recorded for this student, genre and date")

const evaluationColumns = "id, student_id, genre_id, level_achieved, status, evaluation_date, valid_until, evaluated_by_id, notes, created_at, updated_at"

// EvaluationRepository handles persistence for the evaluation ledger.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository instantiates an evaluation repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// List returns evaluations with display context.
func (r *EvaluationRepository) List(ctx context.Context, filter models.EvaluationFilter) ([]models.EvaluationDetail, int, error) {
	base := ` FROM evaluations e
	JOIN students s ON s.id = e.student_id
	JOIN people sp ON sp.id = s.person_id
	JOIN genres g ON g.id = e.genre_id
	JOIN staff st ON st.id = e.evaluated_by_id
	JOIN people ep ON ep.id = st.person_id
	WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.GenreID != "" {
		conditions = append(conditions, fmt.Sprintf("e.genre_id = $%d", len(args)+1))
		args = append(args, filter.GenreID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"evaluation_date": "e.evaluation_date",
		"valid_until":     "e.valid_until",
		"created_at":      "e.created_at",
	}
	if mapped, ok := allowedSorts[sortBy]; ok {
		sortBy = mapped
	} else {
		sortBy = "e.evaluation_date"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.genre_id, e.level_achieved, e.status, e.evaluation_date, e.valid_until, e.evaluated_by_id, e.notes, e.created_at, e.updated_at,
	sp.given_name || ' ' || sp.family_name AS student_name,
	g.name AS genre_name,
	ep.given_name || ' ' || ep.family_name AS evaluator_name%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)

	var evaluations []models.EvaluationDetail
	if err := r.db.SelectContext(ctx, &evaluations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list evaluations: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count evaluations: %w", err)
	}

	return evaluations, total, nil
}

// FindByID loads an evaluation by identifier.
func (r *EvaluationRepository) FindByID(ctx context.Context, id string) (*models.Evaluation, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluations WHERE id = $1", evaluationColumns)
	var evaluation models.Evaluation
	if err := r.db.GetContext(ctx, &evaluation, query, id); err != nil {
		return nil, err
	}
	return &evaluation, nil
}

// FindCurrent returns the student's current completed evaluation for a genre,
// or sql.ErrNoRows when none exists. Expiry is enforced lazily: a completed
// row past its valid_until is flipped to expired on read and not returned.
func (r *EvaluationRepository) FindCurrent(ctx context.Context, studentID, genreID string, at time.Time) (*models.Evaluation, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND status = $3 ORDER BY evaluation_date DESC, created_at DESC LIMIT 1", evaluationColumns)
	var evaluation models.Evaluation
	if err := r.db.GetContext(ctx, &evaluation, query, studentID, genreID, models.EvaluationStatusCompleted); err != nil {
		return nil, err
	}

	if !evaluation.ActiveAt(at) {
		if err := r.MarkExpired(ctx, evaluation.ID); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}

	return &evaluation, nil
}

// MarkExpired flips a single evaluation to expired.
func (r *EvaluationRepository) MarkExpired(ctx context.Context, id string) error {
	const query = `UPDATE evaluations SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EvaluationStatusExpired, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark evaluation expired: %w", err)
	}
	return nil
}

// ExpireStale sweeps all completed evaluations whose validity window has
// passed. Returns the number of rows flipped.
func (r *EvaluationRepository) ExpireStale(ctx context.Context, at time.Time) (int64, error) {
	const query = `UPDATE evaluations SET status = $1, updated_at = $2 WHERE status = $3 AND valid_until IS NOT NULL AND valid_until < $4`
	result, err := r.db.ExecContext(ctx, query, models.EvaluationStatusExpired, time.Now().UTC(), models.EvaluationStatusCompleted, at.Truncate(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("expire stale evaluations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale evaluations: %w", err)
	}
	return affected, nil
}

// CreateSuperseding inserts a completed evaluation and expires any prior
// completed one for the same (student, genre) in a single transaction. The
// pair's rows are locked first so concurrent inserts serialize and the ledger
// never holds two live evaluations for one pair.
func (r *EvaluationRepository) CreateSuperseding(ctx context.Context, evaluation *models.Evaluation) error {
	if evaluation.ID == "" {
		evaluation.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if evaluation.CreatedAt.IsZero() {
		evaluation.CreatedAt = now
	}
	evaluation.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin evaluation tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingIDs []string
	if err = tx.SelectContext(ctx, &existingIDs,
		`SELECT id FROM evaluations WHERE student_id = $1 AND genre_id = $2 FOR UPDATE`,
		evaluation.StudentID, evaluation.GenreID); err != nil {
		return fmt.Errorf("lock evaluations: %w", err)
	}

	var duplicate int
	err = tx.GetContext(ctx, &duplicate,
		`SELECT 1 FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND evaluation_date = $3 LIMIT 1`,
		evaluation.StudentID, evaluation.GenreID, evaluation.EvaluationDate)
	if err == nil {
		err = ErrDuplicateEvaluation
		return err
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check duplicate evaluation: %w", err)
	}
	err = nil

	if _, err = tx.ExecContext(ctx,
		`UPDATE evaluations SET status = $1, updated_at = $2 WHERE student_id = $3 AND genre_id = $4 AND status = $5`,
		models.EvaluationStatusExpired, now, evaluation.StudentID, evaluation.GenreID, models.EvaluationStatusCompleted); err != nil {
		return fmt.Errorf("expire prior evaluations: %w", err)
	}

	if _, err = tx.NamedExecContext(ctx,
		`INSERT INTO evaluations (id, student_id, genre_id, level_achieved, status, evaluation_date, valid_until, evaluated_by_id, notes, created_at, updated_at) VALUES (:id, :student_id, :genre_id, :level_achieved, :status, :evaluation_date, :valid_until, :evaluated_by_id, :notes, :created_at, :updated_at)`,
		evaluation); err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit evaluation tx: %w", err)
	}
	return nil
}

// ListByStudent returns the full evaluation history for a student, newest
// first.
func (r *EvaluationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Evaluation, error) {
	query := fmt.Sprintf("SELECT %s FROM evaluations WHERE student_id = $1 ORDER BY evaluation_date DESC, created_at DESC", evaluationColumns)
	var evaluations []models.Evaluation
	if err := r.db.SelectContext(ctx, &evaluations, query, studentID); err != nil {
		return nil, fmt.Errorf("list student evaluations: %w", err)
	}
	return evaluations, nil
}
