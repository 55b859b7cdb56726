package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arabesque/studio-api/internal/middleware"
	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/internal/service"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
	"github.com/arabesque/studio-api/pkg/response"
)

// CatalogHandler exposes genre and class type endpoints.
type CatalogHandler struct {
	service *service.CatalogService
}

// NewCatalogHandler constructs a catalog handler.
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: svc}
}

// ListGenres godoc
// @Summary List genres
// @Tags Catalog
// @Produce json
// @Param active query bool false "Only active genres"
// @Success 200 {object} response.Envelope
// @Router /genres [get]
func (h *CatalogHandler) ListGenres(c *gin.Context) {
	activeOnly := false
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			activeOnly = val
		}
	}
	genres, hit, err := h.service.ListGenres(c.Request.Context(), activeOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, genres, nil, middleware.ExtractMeta(c))
}

// GetGenre godoc
// @Summary Get genre
// @Tags Catalog
// @Produce json
// @Param id path string true "Genre ID"
// @Success 200 {object} response.Envelope
// @Router /genres/{id} [get]
func (h *CatalogHandler) GetGenre(c *gin.Context) {
	genre, err := h.service.GetGenre(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, genre, nil)
}

// CreateGenre godoc
// @Summary Create genre
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateGenreRequest true "Genre payload"
// @Success 201 {object} response.Envelope
// @Router /genres [post]
func (h *CatalogHandler) CreateGenre(c *gin.Context) {
	var req service.CreateGenreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	genre, err := h.service.CreateGenre(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, genre)
}

// UpdateGenre godoc
// @Summary Update genre
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Genre ID"
// @Param payload body service.UpdateGenreRequest true "Genre payload"
// @Success 200 {object} response.Envelope
// @Router /genres/{id} [put]
func (h *CatalogHandler) UpdateGenre(c *gin.Context) {
	var req service.UpdateGenreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	genre, err := h.service.UpdateGenre(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, genre, nil)
}

// DeactivateGenre godoc
// @Summary Deactivate genre
// @Tags Catalog
// @Produce json
// @Param id path string true "Genre ID"
// @Success 204
// @Router /genres/{id} [delete]
func (h *CatalogHandler) DeactivateGenre(c *gin.Context) {
	if err := h.service.DeactivateGenre(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListClassTypes godoc
// @Summary List class types
// @Tags Catalog
// @Produce json
// @Param genreId query string false "Filter by genre"
// @Param level query string false "Filter by level"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /class-types [get]
func (h *CatalogHandler) ListClassTypes(c *gin.Context) {
	var filter models.ClassTypeFilter
	filter.GenreID = c.Query("genreId")
	filter.Level = c.Query("level")
	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	types, pagination, hit, err := h.service.ListClassTypes(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, types, pagination, middleware.ExtractMeta(c))
}

// GetClassType godoc
// @Summary Get class type
// @Tags Catalog
// @Produce json
// @Param id path string true "Class type ID"
// @Success 200 {object} response.Envelope
// @Router /class-types/{id} [get]
func (h *CatalogHandler) GetClassType(c *gin.Context) {
	classType, err := h.service.GetClassType(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classType, nil)
}

// CreateClassType godoc
// @Summary Create class type
// @Tags Catalog
// @Accept json
// @Produce json
// @Param payload body service.CreateClassTypeRequest true "Class type payload"
// @Success 201 {object} response.Envelope
// @Router /class-types [post]
func (h *CatalogHandler) CreateClassType(c *gin.Context) {
	var req service.CreateClassTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	classType, err := h.service.CreateClassType(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, classType)
}

// UpdateClassType godoc
// @Summary Update class type
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Class type ID"
// @Param payload body service.UpdateClassTypeRequest true "Class type payload"
// @Success 200 {object} response.Envelope
// @Router /class-types/{id} [put]
func (h *CatalogHandler) UpdateClassType(c *gin.Context) {
	var req service.UpdateClassTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	classType, err := h.service.UpdateClassType(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classType, nil)
}
