package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arabesque/studio-api/internal/models"
	"github.com/arabesque/studio-api/internal/service"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
	"github.com/arabesque/studio-api/pkg/response"
)

// AccountHandler exposes account composer endpoints.
type AccountHandler struct {
	service *service.AccountService
}

// NewAccountHandler constructs an account handler.
func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{service: svc}
}

// List godoc
// @Summary List accounts
// @Tags Accounts
// @Produce json
// @Param status query string false "Filter by status"
// @Param personId query string false "Filter by linked person"
// @Param q query string false "Search account code or student name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	var filter models.AccountFilter
	if status := c.Query("status"); status != "" {
		filter.Status = models.AccountStatus(status)
	}
	filter.PersonID = c.Query("personId")
	filter.Search = c.Query("q")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	accounts, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, pagination)
}

// Get godoc
// @Summary Get account
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if !accountVisibleTo(claimsFromContext(c), account) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "account belongs to another family"))
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// accountVisibleTo scopes parent users to accounts their own person record
// participates in. Back-office roles see everything.
func accountVisibleTo(claims *models.JWTClaims, account *models.AccountDetail) bool {
	if claims == nil || claims.Role != models.RoleParent {
		return true
	}
	if claims.PersonID == nil {
		return false
	}
	pid := *claims.PersonID
	return pid == account.StudentPersonID || pid == account.GuardianPersonID || pid == account.BillingPersonID
}

// Compose godoc
// @Summary Compose account from student, guardian and billing contact
// @Tags Accounts
// @Accept json
// @Produce json
// @Param payload body service.ComposeAccountRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Router /accounts [post]
func (h *AccountHandler) Compose(c *gin.Context) {
	var req service.ComposeAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	account, err := h.service.Compose(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, account)
}

// SwapRole godoc
// @Summary Re-point the guardian or billing contact reference
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body service.SwapAccountRoleRequest true "Swap payload"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id}/roles [put]
func (h *AccountHandler) SwapRole(c *gin.Context) {
	var req service.SwapAccountRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	account, err := h.service.SwapRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account, nil)
}

// Suspend godoc
// @Summary Suspend account
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 204
// @Router /accounts/{id}/suspend [post]
func (h *AccountHandler) Suspend(c *gin.Context) {
	if err := h.service.Suspend(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reactivate godoc
// @Summary Reactivate account
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 204
// @Router /accounts/{id}/reactivate [post]
func (h *AccountHandler) Reactivate(c *gin.Context) {
	if err := h.service.Reactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type closeAccountRequest struct {
	EndDate *time.Time `json:"end_date"`
}

// Close godoc
// @Summary Close account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body closeAccountRequest false "Closing date, defaults to now"
// @Success 204
// @Router /accounts/{id}/close [post]
func (h *AccountHandler) Close(c *gin.Context) {
	var req closeAccountRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid close payload"))
			return
		}
	}
	if err := h.service.Close(c.Request.Context(), c.Param("id"), req.EndDate); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
