package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arabesque/studio-api/internal/service"
	appErrors "github.com/arabesque/studio-api/pkg/errors"
	"github.com/arabesque/studio-api/pkg/response"
)

// ExportHandler serves rendered CSV and PDF documents.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

func exportFormat(c *gin.Context) service.ExportFormat {
	return service.ExportFormat(c.DefaultQuery("format", "csv"))
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+result.FileName+`"`)
	c.Data(200, result.ContentType, result.Data)
}

// ClassRoster godoc
// @Summary Export class roster
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /exports/classes/{id}/roster [get]
func (h *ExportHandler) ClassRoster(c *gin.Context) {
	result, err := h.service.ClassRoster(c.Request.Context(), c.Param("id"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// AttendanceSheet godoc
// @Summary Export attendance sheet for a class date
// @Tags Exports
// @Produce text/csv
// @Param id path string true "Class ID"
// @Param date query string true "Session date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /exports/classes/{id}/attendance [get]
func (h *ExportHandler) AttendanceSheet(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
		return
	}
	result, err := h.service.AttendanceSheet(c.Request.Context(), c.Param("id"), date, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// Invoice godoc
// @Summary Export invoice document
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Invoice ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /exports/invoices/{id} [get]
func (h *ExportHandler) Invoice(c *gin.Context) {
	result, err := h.service.Invoice(c.Request.Context(), c.Param("id"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}
