package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type catalogRepository interface {
	ListGenres(ctx context.Context, activeOnly bool) ([]models.Genre, error)
	FindGenreByID(ctx context.Context, id string) (*models.Genre, error)
	GenreExistsByName(ctx context.Context, name, excludeID string) (bool, error)
	CreateGenre(ctx context.Context, genre *models.Genre) error
	UpdateGenre(ctx context.Context, genre *models.Genre) error
	CountClassTypes(ctx context.Context, genreID string) (int, error)
	ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassTypeDetail, int, error)
	FindClassTypeByID(ctx context.Context, id string) (*models.ClassType, error)
	CreateClassType(ctx context.Context, classType *models.ClassType) error
	UpdateClassType(ctx context.Context, classType *models.ClassType) error
	CountClassInstances(ctx context.Context, classTypeID string) (int, error)
}

const (
	genreCacheKey          = "catalog:genres:%t"
	catalogCachePattern    = "catalog:*"
	classTypeListCachePage = "catalog:classtypes:%s:%s:%v:%d:%d:%s:%s"
)

// CreateGenreRequest describes payload for creating a genre.
type CreateGenreRequest struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
}

// UpdateGenreRequest updates mutable fields of a genre.
type UpdateGenreRequest struct {
	Name        string `json:"name" validate:"required"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// CreateClassTypeRequest describes payload for creating a class type.
type CreateClassTypeRequest struct {
	Name            string `json:"name" validate:"required"`
	Code            string `json:"code" validate:"required"`
	GenreID         string `json:"genre_id" validate:"required"`
	Level           string `json:"level" validate:"required"`
	Description     string `json:"description"`
	MinAge          int    `json:"min_age" validate:"gte=0"`
	MaxAge          *int   `json:"max_age"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
	PriceCents      int64  `json:"price_cents" validate:"gte=0"`
}

// UpdateClassTypeRequest updates mutable fields of a class type.
type UpdateClassTypeRequest struct {
	Name            string `json:"name" validate:"required"`
	Code            string `json:"code" validate:"required"`
	GenreID         string `json:"genre_id" validate:"required"`
	Level           string `json:"level" validate:"required"`
	Description     string `json:"description"`
	MinAge          int    `json:"min_age" validate:"gte=0"`
	MaxAge          *int   `json:"max_age"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
	PriceCents      int64  `json:"price_cents" validate:"gte=0"`
	Active          *bool  `json:"active"`
}

// CatalogService orchestrates genres and class types with read caching. The
// catalog changes rarely and is read on every portal page, so listings go
// through the cache layer.
type CatalogService struct {
	repo      catalogRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service instance.
func NewCatalogService(repo catalogRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// ListGenres returns genres, served from cache when possible. The second
// return value reports whether the cache served the result.
func (s *CatalogService) ListGenres(ctx context.Context, activeOnly bool) ([]models.Genre, bool, error) {
	key := fmt.Sprintf(genreCacheKey, activeOnly)

	var cached []models.Genre
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, true, nil
	}

	genres, err := s.repo.ListGenres(ctx, activeOnly)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list genres")
	}

	if err := s.cache.Set(ctx, key, genres, 0); err != nil {
		s.logger.Warn("genre cache write failed", zap.Error(err))
	}
	return genres, false, nil
}

// GetGenre returns a genre by ID.
func (s *CatalogService) GetGenre(ctx context.Context, id string) (*models.Genre, error) {
	genre, err := s.repo.FindGenreByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "genre not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load genre")
	}
	return genre, nil
}

// CreateGenre adds a genre ensuring name uniqueness.
func (s *CatalogService) CreateGenre(ctx context.Context, req CreateGenreRequest) (*models.Genre, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid genre payload")
	}

	exists, err := s.repo.GenreExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check genre name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "genre name already in use")
	}

	genre := &models.Genre{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Active:      true,
	}
	if err := s.repo.CreateGenre(ctx, genre); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create genre")
	}

	_ = s.cache.Invalidate(ctx, catalogCachePattern)
	return genre, nil
}

// UpdateGenre modifies a genre.
func (s *CatalogService) UpdateGenre(ctx context.Context, id string, req UpdateGenreRequest) (*models.Genre, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid genre payload")
	}

	genre, err := s.repo.FindGenreByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "genre not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load genre")
	}

	exists, err := s.repo.GenreExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check genre name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "genre name already in use")
	}

	genre.Name = req.Name
	genre.Code = req.Code
	genre.Description = req.Description
	if req.Active != nil {
		genre.Active = *req.Active
	}

	if err := s.repo.UpdateGenre(ctx, genre); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update genre")
	}

	_ = s.cache.Invalidate(ctx, catalogCachePattern)
	return genre, nil
}

// ListClassTypes returns class types matching the filter. The third return
// value reports whether the cache served the result.
func (s *CatalogService) ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassTypeDetail, *models.Pagination, bool, error) {
	key := fmt.Sprintf(classTypeListCachePage, filter.GenreID, filter.Level, filter.Active, filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)

	type cachedPage struct {
		Types      []models.ClassTypeDetail `json:"types"`
		Pagination *models.Pagination       `json:"pagination"`
	}
	var cached cachedPage
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached.Types, cached.Pagination, true, nil
	}

	types, total, err := s.repo.ListClassTypes(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class types")
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

	if err := s.cache.Set(ctx, key, cachedPage{Types: types, Pagination: pagination}, 0); err != nil {
		s.logger.Warn("class type cache write failed", zap.Error(err))
	}
	return types, pagination, false, nil
}

// GetClassType returns a class type by ID.
func (s *CatalogService) GetClassType(ctx context.Context, id string) (*models.ClassType, error) {
	classType, err := s.repo.FindClassTypeByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class type")
	}
	return classType, nil
}

// CreateClassType adds a class type under a genre.
func (s *CatalogService) CreateClassType(ctx context.Context, req CreateClassTypeRequest) (*models.ClassType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class type payload")
	}
	if req.MaxAge != nil && *req.MaxAge < req.MinAge {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "max_age must not be below min_age")
	}
	if _, ok := models.LevelRank(req.Level); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown level label")
	}

	if _, err := s.repo.FindGenreByID(ctx, req.GenreID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "genre not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load genre")
	}

	classType := &models.ClassType{
		Name:            req.Name,
		Code:            req.Code,
		GenreID:         req.GenreID,
		Level:           req.Level,
		Description:     req.Description,
		MinAge:          req.MinAge,
		MaxAge:          req.MaxAge,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Active:          true,
	}
	if err := s.repo.CreateClassType(ctx, classType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class type")
	}

	_ = s.cache.Invalidate(ctx, catalogCachePattern)
	return classType, nil
}

// UpdateClassType modifies a class type.
func (s *CatalogService) UpdateClassType(ctx context.Context, id string, req UpdateClassTypeRequest) (*models.ClassType, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class type payload")
	}
	if req.MaxAge != nil && *req.MaxAge < req.MinAge {
		return nil, appErrors.Clone(appErrors.ErrInvalidRange, "max_age must not be below min_age")
	}
	if _, ok := models.LevelRank(req.Level); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown level label")
	}

	classType, err := s.repo.FindClassTypeByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class type not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class type")
	}

	classType.Name = req.Name
	classType.Code = req.Code
	classType.GenreID = req.GenreID
	classType.Level = req.Level
	classType.Description = req.Description
	classType.MinAge = req.MinAge
	classType.MaxAge = req.MaxAge
	classType.DurationMinutes = req.DurationMinutes
	classType.PriceCents = req.PriceCents
	if req.Active != nil {
		classType.Active = *req.Active
	}

	if err := s.repo.UpdateClassType(ctx, classType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class type")
	}

	_ = s.cache.Invalidate(ctx, catalogCachePattern)
	return classType, nil
}

// DeactivateGenre retires a genre from the catalog. Blocked while class
// types still reference it.
func (s *CatalogService) DeactivateGenre(ctx context.Context, id string) error {
	genre, err := s.repo.FindGenreByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "genre not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load genre")
	}

	count, err := s.repo.CountClassTypes(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check genre dependencies")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "genre has class types attached")
	}

	genre.Active = false
	if err := s.repo.UpdateGenre(ctx, genre); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate genre")
	}

	_ = s.cache.Invalidate(ctx, catalogCachePattern)
	return nil
}
