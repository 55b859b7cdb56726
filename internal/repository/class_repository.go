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

const classColumns = "id, class_type_id, term_id, teacher_id, day_of_week, start_time, end_time, room, max_students, status, notes, created_at, updated_at"

const classDetailSelect = `SELECT c.id, c.class_type_id, c.term_id, c.teacher_id, c.day_of_week, c.start_time, c.end_time, c.room, c.max_students, c.status, c.notes, c.created_at, c.updated_at,
	ct.name AS class_type_name, ct.level, ct.min_age, ct.max_age, ct.genre_id,
	g.name AS genre_name,
	t.name AS term_name, t.start_date AS term_start, t.end_date AS term_end
	FROM class_instances c
	JOIN class_types ct ON ct.id = c.class_type_id
	JOIN genres g ON g.id = ct.genre_id
	JOIN terms t ON t.id = c.term_id`

// ClassRepository manages persistence for scheduled class instances.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns class details matching filter criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := ` FROM class_instances c
	JOIN class_types ct ON ct.id = c.class_type_id
	JOIN genres g ON g.id = ct.genre_id
	JOIN terms t ON t.id = c.term_id
	WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("c.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.ClassTypeID != "" {
		conditions = append(conditions, fmt.Sprintf("c.class_type_id = $%d", len(args)+1))
		args = append(args, filter.ClassTypeID)
	}
	if filter.GenreID != "" {
		conditions = append(conditions, fmt.Sprintf("ct.genre_id = $%d", len(args)+1))
		args = append(args, filter.GenreID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("c.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("c.day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"day_of_week": "c.day_of_week",
		"start_time":  "c.start_time",
		"room":        "c.room",
		"created_at":  "c.created_at",
	}
	if mapped, ok := allowedSorts[sortBy]; ok {
		sortBy = mapped
	} else {
		sortBy = "c.day_of_week"
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

	query := fmt.Sprintf(`SELECT c.id, c.class_type_id, c.term_id, c.teacher_id, c.day_of_week, c.start_time, c.end_time, c.room, c.max_students, c.status, c.notes, c.created_at, c.updated_at,
	ct.name AS class_type_name, ct.level, ct.min_age, ct.max_age, ct.genre_id,
	g.name AS genre_name,
	t.name AS term_name, t.start_date AS term_start, t.end_date AS term_end%s ORDER BY %s %s, c.start_time LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class instance by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM class_instances WHERE id = $1", classColumns)
	var class models.ClassInstance
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a class instance with catalog and term context.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	query := classDetailSelect + " WHERE c.id = $1"
	var detail models.ClassDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListByRoomAndDay returns classes sharing a room on a weekday within a term,
// excluding cancelled ones. Used for overlap detection.
func (r *ClassRepository) ListByRoomAndDay(ctx context.Context, termID, room string, dayOfWeek int, excludeID string) ([]models.ClassInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM class_instances WHERE term_id = $1 AND LOWER(room) = LOWER($2) AND day_of_week = $3 AND status <> $4", classColumns)
	args := []interface{}{termID, room, dayOfWeek, models.ClassStatusCancelled}
	if excludeID != "" {
		query += " AND id <> $5"
		args = append(args, excludeID)
	}

	var classes []models.ClassInstance
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes by room: %w", err)
	}
	return classes, nil
}

// ListByTeacherAndDay returns classes taught by the teacher on a weekday
// within a term, excluding cancelled ones.
func (r *ClassRepository) ListByTeacherAndDay(ctx context.Context, termID, teacherID string, dayOfWeek int, excludeID string) ([]models.ClassInstance, error) {
	query := fmt.Sprintf("SELECT %s FROM class_instances WHERE term_id = $1 AND teacher_id = $2 AND day_of_week = $3 AND status <> $4", classColumns)
	args := []interface{}{termID, teacherID, dayOfWeek, models.ClassStatusCancelled}
	if excludeID != "" {
		query += " AND id <> $5"
		args = append(args, excludeID)
	}

	var classes []models.ClassInstance
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, fmt.Errorf("list classes by teacher: %w", err)
	}
	return classes, nil
}

// Create persists a class instance.
func (r *ClassRepository) Create(ctx context.Context, class *models.ClassInstance) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `INSERT INTO class_instances (id, class_type_id, term_id, teacher_id, day_of_week, start_time, end_time, room, max_students, status, notes, created_at, updated_at) VALUES (:id, :class_type_id, :term_id, :teacher_id, :day_of_week, :start_time, :end_time, :room, :max_students, :status, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update modifies a class instance.
func (r *ClassRepository) Update(ctx context.Context, class *models.ClassInstance) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_instances SET class_type_id = :class_type_id, term_id = :term_id, teacher_id = :teacher_id, day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, room = :room, max_students = :max_students, status = :status, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class instance.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM class_instances WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// CountEnrolled returns how many enrollments currently occupy a slot in the
// class. Applications still blocked on an evaluation hold no slot.
func (r *ClassRepository) CountEnrolled(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_instance_id = $1 AND blocked_on_evaluation = FALSE AND status NOT IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, models.EnrollmentStatusWithdrawn, models.EnrollmentStatusWaitlist); err != nil {
		return 0, fmt.Errorf("count enrolled: %w", err)
	}
	return count, nil
}
