package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/arabesque/studio-api/internal/models"
)

func newEvaluationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func evaluationRow(id string, status models.EvaluationStatus, evaluationDate time.Time, validUntil *time.Time) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "student_id", "genre_id", "level_achieved", "status", "evaluation_date", "valid_until", "evaluated_by_id", "notes", "created_at", "updated_at"}).
		AddRow(id, "stu-1", "genre-1", "intermediate", status, evaluationDate, validUntil, "staff-1", "", now, now)
}

func TestEvaluationRepositoryCreateSuperseding(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM evaluations WHERE student_id = $1 AND genre_id = $2 FOR UPDATE")).
		WithArgs("stu-1", "genre-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("eval-old"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND evaluation_date = $3 LIMIT 1")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET status = $1, updated_at = $2 WHERE student_id = $3 AND genre_id = $4 AND status = $5")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO evaluations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	evaluation := &models.Evaluation{
		StudentID:      "stu-1",
		GenreID:        "genre-1",
		LevelAchieved:  "intermediate",
		Status:         models.EvaluationStatusCompleted,
		EvaluationDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EvaluatedByID:  "staff-1",
	}
	require.NoError(t, repo.CreateSuperseding(context.Background(), evaluation))
	require.NotEmpty(t, evaluation.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryCreateSupersedingDuplicateDate(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM evaluations WHERE student_id = $1 AND genre_id = $2 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("eval-old"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND evaluation_date = $3 LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	evaluation := &models.Evaluation{
		StudentID:      "stu-1",
		GenreID:        "genre-1",
		LevelAchieved:  "intermediate",
		Status:         models.EvaluationStatusCompleted,
		EvaluationDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		EvaluatedByID:  "staff-1",
	}
	err := repo.CreateSuperseding(context.Background(), evaluation)
	require.ErrorIs(t, err, ErrDuplicateEvaluation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryFindCurrentActive(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	validUntil := at.AddDate(0, 3, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, genre_id, level_achieved, status, evaluation_date, valid_until, evaluated_by_id, notes, created_at, updated_at FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND status = $3")).
		WithArgs("stu-1", "genre-1", models.EvaluationStatusCompleted).
		WillReturnRows(evaluationRow("eval-1", models.EvaluationStatusCompleted, at.AddDate(0, -9, 0), &validUntil))

	evaluation, err := repo.FindCurrent(context.Background(), "stu-1", "genre-1", at)
	require.NoError(t, err)
	require.Equal(t, "eval-1", evaluation.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryFindCurrentExpiresStaleRow(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	at := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	validUntil := at.AddDate(0, -1, 0)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, genre_id, level_achieved, status, evaluation_date, valid_until, evaluated_by_id, notes, created_at, updated_at FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND status = $3")).
		WillReturnRows(evaluationRow("eval-1", models.EvaluationStatusCompleted, at.AddDate(0, -13, 0), &validUntil))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("eval-1", models.EvaluationStatusExpired, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	evaluation, err := repo.FindCurrent(context.Background(), "stu-1", "genre-1", at)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.Nil(t, evaluation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryFindCurrentNone(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, genre_id, level_achieved, status, evaluation_date, valid_until, evaluated_by_id, notes, created_at, updated_at FROM evaluations WHERE student_id = $1 AND genre_id = $2 AND status = $3")).
		WillReturnError(sql.ErrNoRows)

	evaluation, err := repo.FindCurrent(context.Background(), "stu-1", "genre-1", time.Now())
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.Nil(t, evaluation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluationRepositoryExpireStale(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE evaluations SET status = $1, updated_at = $2 WHERE status = $3 AND valid_until IS NOT NULL AND valid_until < $4")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	affected, err := repo.ExpireStale(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(3), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}
