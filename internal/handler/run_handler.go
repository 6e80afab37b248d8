package handler

import (
	"github.com/gin-gonic/gin"

	"docxingest/internal/domain"
	"docxingest/internal/logging"
	"docxingest/internal/middleware"
	"docxingest/internal/service"
)

// Trigger queues a batch run without waiting for it.
type Trigger interface {
	Trigger() bool
}

// RunHandler handles batch run endpoints.
type RunHandler struct {
	pipeline service.PipelineService
	trigger  Trigger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(pipeline service.PipelineService, trigger Trigger) *RunHandler {
	return &RunHandler{pipeline: pipeline, trigger: trigger}
}

// Start handles POST /api/v1/runs
// @Summary      Start a batch run
// @Description  Queues an ingestion run. The run executes in the background.
// @Tags         runs
// @Produce      json
// @Success      202 {object} APIResponse{data=RunQueuedResponse}
// @Failure      401 {object} APIResponse
// @Failure      409 {object} APIResponse
// @Security     BearerAuth
// @Router       /runs [post]
func (h *RunHandler) Start(c *gin.Context) {
	if h.pipeline.Running() || !h.trigger.Trigger() {
		HandleError(c, domain.ErrRunInProgress)
		return
	}
	logging.For("api").Info("batch run requested", "operator", middleware.GetOperator(c))
	RespondAccepted(c, RunQueuedResponse{Queued: true})
}

// Latest handles GET /api/v1/runs/latest
// @Summary      Latest batch summary
// @Description  Returns the summary of the most recent finished run
// @Tags         runs
// @Produce      json
// @Success      200 {object} APIResponse{data=domain.BatchSummary}
// @Failure      401 {object} APIResponse
// @Failure      404 {object} APIResponse
// @Security     BearerAuth
// @Router       /runs/latest [get]
func (h *RunHandler) Latest(c *gin.Context) {
	summary, err := h.pipeline.Latest()
	if err != nil {
		HandleError(c, err)
		return
	}
	RespondOK(c, summary)
}
