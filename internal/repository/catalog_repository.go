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

// CatalogRepository handles persistence for genres and class types.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository instantiates a catalog repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListGenres returns all genres, optionally only active ones.
func (r *CatalogRepository) ListGenres(ctx context.Context, activeOnly bool) ([]models.Genre, error) {
	query := "SELECT id, name, code, description, active, created_at, updated_at FROM genres"
	if activeOnly {
		query += " WHERE active = TRUE"
	}
	query += " ORDER BY name"

	var genres []models.Genre
	if err := r.db.SelectContext(ctx, &genres, query); err != nil {
		return nil, fmt.Errorf("list genres: %w", err)
	}
	return genres, nil
}

// FindGenreByID loads a genre by identifier.
func (r *CatalogRepository) FindGenreByID(ctx context.Context, id string) (*models.Genre, error) {
	const query = `SELECT id, name, code, description, active, created_at, updated_at FROM genres WHERE id = $1`
	var genre models.Genre
	if err := r.db.GetContext(ctx, &genre, query, id); err != nil {
		return nil, err
	}
	return &genre, nil
}

// GenreExistsByName checks whether another genre already uses the name.
func (r *CatalogRepository) GenreExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	base := "SELECT 1 FROM genres WHERE LOWER(name) = LOWER($1)"
	args := []interface{}{name}
	if excludeID != "" {
		base += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, base+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check genre name: %w", err)
	}
	return true, nil
}

// CreateGenre inserts a new genre.
func (r *CatalogRepository) CreateGenre(ctx context.Context, genre *models.Genre) error {
	if genre.ID == "" {
		genre.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if genre.CreatedAt.IsZero() {
		genre.CreatedAt = now
	}
	genre.UpdatedAt = now

	const query = `INSERT INTO genres (id, name, code, description, active, created_at, updated_at) VALUES (:id, :name, :code, :description, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, genre); err != nil {
		return fmt.Errorf("create genre: %w", err)
	}
	return nil
}

// UpdateGenre modifies an existing genre.
func (r *CatalogRepository) UpdateGenre(ctx context.Context, genre *models.Genre) error {
	genre.UpdatedAt = time.Now().UTC()
	const query = `UPDATE genres SET name = :name, code = :code, description = :description, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, genre); err != nil {
		return fmt.Errorf("update genre: %w", err)
	}
	return nil
}

// CountClassTypes returns the number of class types referencing the genre.
func (r *CatalogRepository) CountClassTypes(ctx context.Context, genreID string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_types WHERE genre_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, genreID); err != nil {
		return 0, fmt.Errorf("count genre class types: %w", err)
	}
	return count, nil
}

// ListClassTypes returns class types with genre context.
func (r *CatalogRepository) ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassTypeDetail, int, error) {
	base := " FROM class_types ct JOIN genres g ON g.id = ct.genre_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.GenreID != "" {
		conditions = append(conditions, fmt.Sprintf("ct.genre_id = $%d", len(args)+1))
		args = append(args, filter.GenreID)
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("ct.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("ct.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"name":        "ct.name",
		"level":       "ct.level",
		"min_age":     "ct.min_age",
		"price_cents": "ct.price_cents",
		"created_at":  "ct.created_at",
	}
	if mapped, ok := allowedSorts[sortBy]; ok {
		sortBy = mapped
	} else {
		sortBy = "ct.name"
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

	query := fmt.Sprintf(`SELECT ct.id, ct.name, ct.code, ct.genre_id, ct.level, ct.description, ct.min_age, ct.max_age, ct.duration_minutes, ct.price_cents, ct.active, ct.created_at, ct.updated_at,
	g.name AS genre_name, g.code AS genre_code%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, sortBy, order, size, offset)

	var types []models.ClassTypeDetail
	if err := r.db.SelectContext(ctx, &types, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class types: %w", err)
	}

	countQuery := "SELECT COUNT(*)" + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count class types: %w", err)
	}

	return types, total, nil
}

// FindClassTypeByID loads a class type by identifier.
func (r *CatalogRepository) FindClassTypeByID(ctx context.Context, id string) (*models.ClassType, error) {
	const query = `SELECT id, name, code, genre_id, level, description, min_age, max_age, duration_minutes, price_cents, active, created_at, updated_at FROM class_types WHERE id = $1`
	var classType models.ClassType
	if err := r.db.GetContext(ctx, &classType, query, id); err != nil {
		return nil, err
	}
	return &classType, nil
}

// CreateClassType inserts a new class type.
func (r *CatalogRepository) CreateClassType(ctx context.Context, classType *models.ClassType) error {
	if classType.ID == "" {
		classType.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if classType.CreatedAt.IsZero() {
		classType.CreatedAt = now
	}
	classType.UpdatedAt = now

	const query = `INSERT INTO class_types (id, name, code, genre_id, level, description, min_age, max_age, duration_minutes, price_cents, active, created_at, updated_at) VALUES (:id, :name, :code, :genre_id, :level, :description, :min_age, :max_age, :duration_minutes, :price_cents, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, classType); err != nil {
		return fmt.Errorf("create class type: %w", err)
	}
	return nil
}

// UpdateClassType modifies an existing class type.
func (r *CatalogRepository) UpdateClassType(ctx context.Context, classType *models.ClassType) error {
	classType.UpdatedAt = time.Now().UTC()
	const query = `UPDATE class_types SET name = :name, code = :code, genre_id = :genre_id, level = :level, description = :description, min_age = :min_age, max_age = :max_age, duration_minutes = :duration_minutes, price_cents = :price_cents, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, classType); err != nil {
		return fmt.Errorf("update class type: %w", err)
	}
	return nil
}

// CountClassInstances returns the number of class instances scheduled from
// the class type.
func (r *CatalogRepository) CountClassInstances(ctx context.Context, classTypeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM class_instances WHERE class_type_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classTypeID); err != nil {
		return 0, fmt.Errorf("count class instances: %w", err)
	}
	return count, nil
}
