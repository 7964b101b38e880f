package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adp-bulkops/internal/dto"
	"github.com/noah-isme/adp-bulkops/internal/models"
	appErrors "github.com/noah-isme/adp-bulkops/pkg/errors"
	"github.com/noah-isme/adp-bulkops/pkg/response"
)

type bulkService interface {
	Submit(ctx context.Context, actorID string, req dto.SubmitBulkRunRequest) (*dto.SubmitBulkRunResponse, error)
	Preview(ctx context.Context, req dto.SubmitBulkRunRequest) (*dto.ValidationReport, error)
	Export(ctx context.Context, runID string) ([]byte, string, error)
}

type runReader interface {
	Get(ctx context.Context, id string) (*models.BulkRun, error)
	List(ctx context.Context, filter models.RunFilter) ([]models.BulkRun, error)
}

type statusReader interface {
	Status(ctx context.Context, runID string) (*dto.RunStatusResponse, error)
}

type rollbackService interface {
	Rollback(ctx context.Context, runID, actorID, reason string) (*dto.RollbackResponse, error)
}

// BulkHandler exposes REST endpoints for bulk role-assignment runs.
type BulkHandler struct {
	bulk     bulkService
	runs     runReader
	status   statusReader
	rollback rollbackService
}

// NewBulkHandler constructs the handler.
func NewBulkHandler(bulk bulkService, runs runReader, status statusReader, rollback rollbackService) *BulkHandler {
	return &BulkHandler{bulk: bulk, runs: runs, status: status, rollback: rollback}
}

// Submit godoc
// @Summary Submit a bulk role-assignment run
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.SubmitBulkRunRequest true "Run payload"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /bulk/role-assignments [post]
func (h *BulkHandler) Submit(c *gin.Context) {
	if h.bulk == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	var req dto.SubmitBulkRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid run payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.bulk.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	switch {
	case result.Async:
		response.Accepted(c, result)
	case result.Run != nil:
		response.Created(c, result)
	default:
		response.JSON(c, http.StatusOK, result, nil)
	}
}

// Preview godoc
// @Summary Validate a bulk payload without executing it
// @Tags Bulk
// @Accept json
// @Produce json
// @Param payload body dto.SubmitBulkRunRequest true "Run payload"
// @Success 200 {object} response.Envelope
// @Router /bulk/role-assignments/preview [post]
func (h *BulkHandler) Preview(c *gin.Context) {
	if h.bulk == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	var req dto.SubmitBulkRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid run payload"))
		return
	}
	report, err := h.bulk.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Get godoc
// @Summary Get run detail
// @Tags Bulk
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /bulk/role-assignments/{id} [get]
func (h *BulkHandler) Get(c *gin.Context) {
	if h.runs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// List godoc
// @Summary List runs
// @Tags Bulk
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param initiatedBy query string false "Initiating user ID"
// @Param targetRole query string false "Target role"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /bulk/role-assignments [get]
func (h *BulkHandler) List(c *gin.Context) {
	if h.runs == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	filter := models.RunFilter{
		InitiatedBy: strings.TrimSpace(c.Query("initiatedBy")),
	}
	if rawRole := c.Query("targetRole"); rawRole != "" {
		filter.TargetRole = models.UserRole(strings.ToUpper(rawRole))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.RunStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.RunStatus(part))
		}
		filter.Status = statuses
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filter.Limit = limit
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil {
			filter.Offset = offset
		}
	}
	runs, err := h.runs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, nil)
}

// Status godoc
// @Summary Get run progress
// @Tags Bulk
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /bulk/role-assignments/{id}/status [get]
func (h *BulkHandler) Status(c *gin.Context) {
	if h.status == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	status, err := h.status.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Rollback godoc
// @Summary Revert the successful mutations of a terminal run
// @Tags Bulk
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.RollbackRequest true "Rollback reason"
// @Success 200 {object} response.Envelope
// @Router /bulk/role-assignments/{id}/rollback [post]
func (h *BulkHandler) Rollback(c *gin.Context) {
	if h.rollback == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	var req dto.RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rollback reason is required"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.rollback.Rollback(c.Request.Context(), c.Param("id"), claims.UserID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export run outcomes as CSV
// @Tags Bulk
// @Produce text/csv
// @Param id path string true "Run ID"
// @Success 200 {string} string "CSV content"
// @Router /bulk/role-assignments/{id}/export [get]
func (h *BulkHandler) Export(c *gin.Context) {
	if h.bulk == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "bulk service not configured"))
		return
	}
	data, filename, err := h.bulk.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", data)
}
