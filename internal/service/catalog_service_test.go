package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arabesque/studio-api/internal/models"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
)

type mockCatalogRepo struct {
	genres     map[string]models.Genre
	classTypes map[string]models.ClassType
	nameTaken  bool
	typeCount  int
	listCalls  int
}

func (m *mockCatalogRepo) ListGenres(ctx context.Context, activeOnly bool) ([]models.Genre, error) {
	m.listCalls++
	var out []models.Genre
	for _, g := range m.genres {
		if activeOnly && !g.Active {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (m *mockCatalogRepo) FindGenreByID(ctx context.Context, id string) (*models.Genre, error) {
	if g, ok := m.genres[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) GenreExistsByName(ctx context.Context, name, excludeID string) (bool, error) {
	return m.nameTaken, nil
}

func (m *mockCatalogRepo) CreateGenre(ctx context.Context, genre *models.Genre) error {
	if m.genres == nil {
		m.genres = make(map[string]models.Genre)
	}
	genre.ID = "new-genre"
	m.genres[genre.ID] = *genre
	return nil
}

func (m *mockCatalogRepo) UpdateGenre(ctx context.Context, genre *models.Genre) error {
	m.genres[genre.ID] = *genre
	return nil
}

func (m *mockCatalogRepo) CountClassTypes(ctx context.Context, genreID string) (int, error) {
	return m.typeCount, nil
}

func (m *mockCatalogRepo) ListClassTypes(ctx context.Context, filter models.ClassTypeFilter) ([]models.ClassTypeDetail, int, error) {
	m.listCalls++
	var out []models.ClassTypeDetail
	for _, ct := range m.classTypes {
		out = append(out, models.ClassTypeDetail{ClassType: ct})
	}
	return out, len(out), nil
}

func (m *mockCatalogRepo) FindClassTypeByID(ctx context.Context, id string) (*models.ClassType, error) {
	if ct, ok := m.classTypes[id]; ok {
		return &ct, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalogRepo) CreateClassType(ctx context.Context, classType *models.ClassType) error {
	if m.classTypes == nil {
		m.classTypes = make(map[string]models.ClassType)
	}
	classType.ID = "new-class-type"
	m.classTypes[classType.ID] = *classType
	return nil
}

func (m *mockCatalogRepo) UpdateClassType(ctx context.Context, classType *models.ClassType) error {
	m.classTypes[classType.ID] = *classType
	return nil
}

func (m *mockCatalogRepo) CountClassInstances(ctx context.Context, classTypeID string) (int, error) {
	return 0, nil
}

// memoryCacheRepo is a map-backed stand-in for the redis cache repository.
type memoryCacheRepo struct {
	entries map[string][]byte
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = raw
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.entries = make(map[string][]byte)
	return nil
}

func newTestCatalogService(repo *mockCatalogRepo) *CatalogService {
	cache := NewCacheService(&memoryCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	return NewCatalogService(repo, cache, validator.New(), zap.NewNop())
}

func TestCatalogServiceListGenresCaches(t *testing.T) {
	repo := &mockCatalogRepo{genres: map[string]models.Genre{
		"gen-1": {ID: "gen-1", Name: "Ballet", Code: "BAL", Active: true},
	}}
	svc := newTestCatalogService(repo)

	genres, hit, err := svc.ListGenres(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, genres, 1)

	genres, hit, err = svc.ListGenres(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, genres, 1)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCatalogServiceCreateGenreInvalidatesCache(t *testing.T) {
	repo := &mockCatalogRepo{genres: map[string]models.Genre{
		"gen-1": {ID: "gen-1", Name: "Ballet", Code: "BAL", Active: true},
	}}
	svc := newTestCatalogService(repo)

	_, _, err := svc.ListGenres(context.Background(), true)
	require.NoError(t, err)

	_, err = svc.CreateGenre(context.Background(), CreateGenreRequest{Name: "Jazz", Code: "JAZ"})
	require.NoError(t, err)

	genres, hit, err := svc.ListGenres(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, genres, 2)
}

func TestCatalogServiceCreateGenreDuplicateName(t *testing.T) {
	svc := newTestCatalogService(&mockCatalogRepo{nameTaken: true})

	_, err := svc.CreateGenre(context.Background(), CreateGenreRequest{Name: "Ballet", Code: "BAL"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceCreateClassType(t *testing.T) {
	repo := &mockCatalogRepo{genres: map[string]models.Genre{
		"gen-1": {ID: "gen-1", Name: "Ballet", Active: true},
	}}
	svc := newTestCatalogService(repo)

	ct, err := svc.CreateClassType(context.Background(), CreateClassTypeRequest{
		Name:            "Ballet Foundations",
		Code:            "BAL-F",
		GenreID:         "gen-1",
		Level:           "beginner",
		MinAge:          6,
		DurationMinutes: 60,
		PriceCents:      50000,
	})
	require.NoError(t, err)
	assert.True(t, ct.Active)
	assert.Equal(t, "new-class-type", ct.ID)
}

func TestCatalogServiceCreateClassTypeUnknownLevel(t *testing.T) {
	svc := newTestCatalogService(&mockCatalogRepo{})

	_, err := svc.CreateClassType(context.Background(), CreateClassTypeRequest{
		Name:            "Mystery",
		Code:            "MYS",
		GenreID:         "gen-1",
		Level:           "virtuoso",
		DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceCreateClassTypeInvertedAges(t *testing.T) {
	svc := newTestCatalogService(&mockCatalogRepo{})

	maxAge := 5
	_, err := svc.CreateClassType(context.Background(), CreateClassTypeRequest{
		Name:            "Ballet Foundations",
		Code:            "BAL-F",
		GenreID:         "gen-1",
		Level:           "beginner",
		MinAge:          8,
		MaxAge:          &maxAge,
		DurationMinutes: 60,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidRange.Code, appErrors.FromError(err).Code)
}

func TestCatalogServiceDeactivateGenreWithClassTypes(t *testing.T) {
	repo := &mockCatalogRepo{
		genres:    map[string]models.Genre{"gen-1": {ID: "gen-1", Active: true}},
		typeCount: 3,
	}
	svc := newTestCatalogService(repo)

	err := svc.DeactivateGenre(context.Background(), "gen-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.True(t, repo.genres["gen-1"].Active)
}

func TestCatalogServiceDeactivateGenre(t *testing.T) {
	repo := &mockCatalogRepo{genres: map[string]models.Genre{"gen-1": {ID: "gen-1", Active: true}}}
	svc := newTestCatalogService(repo)

	require.NoError(t, svc.DeactivateGenre(context.Background(), "gen-1"))
	assert.False(t, repo.genres["gen-1"].Active)
}
