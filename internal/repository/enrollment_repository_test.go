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

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func enrollmentRow(id string, status models.EnrollmentStatus, blocked bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "account_id", "class_instance_id", "status", "blocked_on_evaluation", "request_date", "trial_date", "active_date", "withdrawn_date", "completed_date", "notes", "created_at", "updated_at"}).
		AddRow(id, "acc-1", "class-1", status, blocked, now, nil, nil, nil, nil, "", now, now)
}

func TestEnrollmentRepositoryCreateGatedApplied(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{AccountID: "acc-1", ClassInstanceID: "class-1"}
	require.NoError(t, repo.CreateGated(context.Background(), enrollment))
	require.Equal(t, models.EnrollmentStatusApplied, enrollment.Status)
	require.NotEmpty(t, enrollment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGatedWaitlistsWhenFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(8))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{AccountID: "acc-1", ClassInstanceID: "class-1"}
	require.NoError(t, repo.CreateGated(context.Background(), enrollment))
	require.Equal(t, models.EnrollmentStatusWaitlist, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGatedBlockedSkipsCapacity(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{AccountID: "acc-1", ClassInstanceID: "class-1", BlockedOnEvaluation: true}
	require.NoError(t, repo.CreateGated(context.Background(), enrollment))
	require.Equal(t, models.EnrollmentStatusApplied, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGatedDuplicate(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{AccountID: "acc-1", ClassInstanceID: "class-1"}
	err := repo.CreateGated(context.Background(), enrollment)
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWithdrawPromotesEarliestWaitlisted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusActive, false))
	mock.ExpectExec("UPDATE enrollments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM enrollments WHERE class_instance_id = \$1 AND status = \$2 ORDER BY created_at, id LIMIT 1 FOR UPDATE`).
		WillReturnRows(enrollmentRow("enr-2", models.EnrollmentStatusWaitlist, false))
	mock.ExpectExec("UPDATE enrollments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	promoted, err := repo.UpdateStatusAndPromote(context.Background(), "enr-1", models.EnrollmentStatusWithdrawn, time.Now())
	require.NoError(t, err)
	require.NotNil(t, promoted)
	require.Equal(t, "enr-2", promoted.ID)
	require.Equal(t, models.EnrollmentStatusApplied, promoted.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryWaitlistWithdrawalDoesNotPromote(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusWaitlist, false))
	mock.ExpectExec("UPDATE enrollments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	promoted, err := repo.UpdateStatusAndPromote(context.Background(), "enr-1", models.EnrollmentStatusWithdrawn, time.Now())
	require.NoError(t, err)
	require.Nil(t, promoted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryManualPromotionRejectedWhenFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusWaitlist, false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(8))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(8))
	mock.ExpectRollback()

	promoted, err := repo.UpdateStatusAndPromote(context.Background(), "enr-1", models.EnrollmentStatusApplied, time.Now())
	require.ErrorIs(t, err, ErrClassFull)
	require.Nil(t, promoted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryManualPromotionWithFreeSlot(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM enrollments WHERE id = \$1 FOR UPDATE`).
		WithArgs("enr-1").
		WillReturnRows(enrollmentRow("enr-1", models.EnrollmentStatusWaitlist, false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(8))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectExec("UPDATE enrollments SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	promoted, err := repo.UpdateStatusAndPromote(context.Background(), "enr-1", models.EnrollmentStatusApplied, time.Now())
	require.NoError(t, err)
	require.Nil(t, promoted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsLive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2 AND status <> $3 LIMIT 1")).
		WithArgs("acc-1", "class-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsLive(context.Background(), "acc-1", "class-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateGatedCompletedStillBlocks(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_students FROM class_instances WHERE id = $1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"max_students"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE account_id = $1 AND class_instance_id = $2 AND status <> $3 LIMIT 1")).
		WithArgs("acc-1", "class-1", models.EnrollmentStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	enrollment := &models.Enrollment{AccountID: "acc-1", ClassInstanceID: "class-1"}
	err := repo.CreateGated(context.Background(), enrollment)
	require.ErrorIs(t, err, ErrDuplicateEnrollment)
	require.NoError(t, mock.ExpectationsWereMet())
}
