package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nexconsult/quote-harvester/internal/models"
	"github.com/nexconsult/quote-harvester/internal/services"
)

// RunService starts background runs and reports the last one of each kind
type RunService interface {
	Start(kind models.RunKind, tenant *int64) (string, error)
	LastSummary(ctx context.Context, kind models.RunKind) (*models.RunSummary, error)
}

// RunHandler triggers harvesting runs
type RunHandler struct {
	runs   RunService
	logger *logrus.Logger
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs RunService, logger *logrus.Logger) *RunHandler {
	return &RunHandler{
		runs:   runs,
		logger: logger,
	}
}

// StartRun starts a run in the background. Only one run may be active at a
// time; a second request gets 409.
// @Summary Start a run
// @Description Start a discover, items, reconcile or full run in the background
// @Tags Runs
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body models.RunRequest true "Run to start"
// @Success 202 {object} models.RunAccepted
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/runs [post]
func (h *RunHandler) StartRun(c *gin.Context) {
	requestID := c.GetString("request_id")

	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Request body must be JSON with a kind")
		return
	}
	kind, err := models.ParseRunKind(req.Kind)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if req.TenantID != nil && kind == models.RunReconcile {
		h.badRequest(c, "reconcile runs cannot be restricted to a tenant")
		return
	}

	runID, err := h.runs.Start(kind, req.TenantID)
	if errors.Is(err, services.ErrRunInProgress) {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:     "Conflict",
			Message:   "Another run is in progress",
			Code:      models.ErrorCodeRunInProgress,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("request_id", requestID).Error("Failed to start run")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:     "Internal server error",
			Message:   "Failed to start run",
			Code:      models.ErrorCodeInternalError,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"run_id":     runID,
		"kind":       kind,
	}).Info("Run started from API")

	c.JSON(http.StatusAccepted, models.RunAccepted{
		RunID:     runID,
		Kind:      kind,
		StartedAt: time.Now(),
	})
}

// GetLastRun returns the summary of the most recent finished run of ?kind=,
// which defaults to full.
// @Summary Last run
// @Description Get the summary of the most recent finished run of a kind
// @Tags Runs
// @Produce json
// @Param kind query string false "Run kind" Enums(discover, items, reconcile, full) default(full)
// @Success 200 {object} models.RunSummary
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/runs/last [get]
func (h *RunHandler) GetLastRun(c *gin.Context) {
	kind, err := models.ParseRunKind(c.DefaultQuery("kind", string(models.RunFull)))
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}

	summary, err := h.runs.LastSummary(c.Request.Context(), kind)
	if errors.Is(err, services.ErrNoRun) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:     "Not Found",
			Message:   "No finished " + string(kind) + " run",
			Code:      models.ErrorCodeNotFound,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("request_id", c.GetString("request_id")).Error("Failed to read last run")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:     "Internal server error",
			Message:   "Failed to read last run",
			Code:      models.ErrorCodeInternalError,
			Timestamp: time.Now(),
			Path:      c.Request.URL.Path,
		})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *RunHandler) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:     "Bad Request",
		Message:   message,
		Code:      models.ErrorCodeInvalidRequest,
		Timestamp: time.Now(),
		Path:      c.Request.URL.Path,
	})
}
