package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Latest(ctx context.Context) (*dto.TimetableSnapshot, error)
	Export(ctx context.Context, query dto.ExportTimetableQuery) (*dto.ExportedTimetable, error)
	ExportToStorage(ctx context.Context, query dto.ExportTimetableQuery) (*dto.StoredExport, error)
	OpenExport(token string) (*os.File, string, error)
	ListRuns(ctx context.Context, query dto.TimetableRunQuery) ([]models.TimetableRun, *models.Pagination, error)
	RunEntries(ctx context.Context, runID string) ([]models.TimetableEntry, error)
}

// TimetableHandler exposes timetable generation and export endpoints.
type TimetableHandler struct {
	service timetableService
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService) *TimetableHandler {
	return &TimetableHandler{service: svc}
}

// Generate godoc
// @Summary Generate the timetable of a period
// @Description Places every section of the period or none. An infeasible period returns feasible=false and leaves the current timetable in place.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.RequestedBy = claims.UserID
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Latest godoc
// @Summary Current timetable
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetables/latest [get]
func (h *TimetableHandler) Latest(c *gin.Context) {
	snapshot, err := h.service.Latest(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Export godoc
// @Summary Download the current timetable
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param period query string false "Expected period"
// @Success 200 {file} file
// @Router /timetables/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	var query dto.ExportTimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	out, err := h.service.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	c.Header("X-Cache", cacheHeader(out.Cached))
	c.Data(http.StatusOK, out.ContentType, out.Payload)
}

// StoreExport godoc
// @Summary Save an export and return a signed download link
// @Tags Timetable
// @Accept json
// @Produce json
// @Param payload body dto.ExportTimetableQuery false "Export options"
// @Success 201 {object} response.Envelope
// @Router /timetables/export [post]
func (h *TimetableHandler) StoreExport(c *gin.Context) {
	var query dto.ExportTimetableQuery
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&query); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
			return
		}
	}
	stored, err := h.service.ExportToStorage(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stored)
}

// Download godoc
// @Summary Download a stored export by signed token
// @Tags Timetable
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /timetables/download/{token} [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	file, name, err := h.service.OpenExport(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	extra := map[string]string{"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name)}
	c.DataFromReader(http.StatusOK, info.Size(), contentTypeForName(name), file, extra)
}

// Runs godoc
// @Summary Generation history
// @Tags Timetable
// @Produce json
// @Param period query string false "Period"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs [get]
func (h *TimetableHandler) Runs(c *gin.Context) {
	query := dto.TimetableRunQuery{Period: c.Query("period")}
	if raw := c.Query("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "page must be a number"))
			return
		}
		query.Page = page
	}
	if raw := c.Query("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "pageSize must be a number"))
			return
		}
		query.PageSize = size
	}

	runs, pagination, err := h.service.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// RunEntries godoc
// @Summary Entries of a stored run
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/runs/{id}/entries [get]
func (h *TimetableHandler) RunEntries(c *gin.Context) {
	entries, err := h.service.RunEntries(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func contentTypeForName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}
