package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/internal/service"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
	"github.com/arabesque/studio-api/pkg/response"
)

// EvaluationHandler exposes evaluation ledger endpoints.
type EvaluationHandler struct {
	service *service.EvaluationService
}

// NewEvaluationHandler constructs an evaluation handler.
func NewEvaluationHandler(svc *service.EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{service: svc}
}

// List godoc
// @Summary List evaluations
// @Tags Evaluations
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param genreId query string false "Filter by genre"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /evaluations [get]
func (h *EvaluationHandler) List(c *gin.Context) {
	var filter models.EvaluationFilter
	filter.StudentID = c.Query("studentId")
	filter.GenreID = c.Query("genreId")
	if status := c.Query("status"); status != "" {
		filter.Status = models.EvaluationStatus(status)
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	evaluations, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, pagination)
}

// Get godoc
// @Summary Get evaluation
// @Tags Evaluations
// @Produce json
// @Param id path string true "Evaluation ID"
// @Success 200 {object} response.Envelope
// @Router /evaluations/{id} [get]
func (h *EvaluationHandler) Get(c *gin.Context) {
	evaluation, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluation, nil)
}

// Record godoc
// @Summary Record evaluation
// @Description Records a completed evaluation, superseding any prior one for
// @Description the student and genre, and releases enrollment applications
// @Description the new level satisfies.
// @Tags Evaluations
// @Accept json
// @Produce json
// @Param payload body service.RecordEvaluationRequest true "Evaluation payload"
// @Success 201 {object} response.Envelope
// @Router /evaluations [post]
func (h *EvaluationHandler) Record(c *gin.Context) {
	var req service.RecordEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	evaluation, err := h.service.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, evaluation)
}

// History godoc
// @Summary Student evaluation history
// @Tags Evaluations
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/evaluations [get]
func (h *EvaluationHandler) History(c *gin.Context) {
	evaluations, err := h.service.History(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, evaluations, nil)
}

// Eligibility godoc
// @Summary Current eligibility for a student and genre
// @Tags Evaluations
// @Produce json
// @Param studentId path string true "Student ID"
// @Param genreId query string true "Genre ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/eligibility [get]
func (h *EvaluationHandler) Eligibility(c *gin.Context) {
	genreID := c.Query("genreId")
	if genreID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "genreId is required"))
		return
	}
	eligibility, err := h.service.CurrentEligibility(c.Request.Context(), c.Param("studentId"), genreID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, eligibility, nil)
}

// SweepExpired godoc
// @Summary Expire stale evaluations
// @Tags Evaluations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /evaluations/sweep [post]
func (h *EvaluationHandler) SweepExpired(c *gin.Context) {
	flipped, err := h.service.SweepExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"expired": flipped}, nil)
}
