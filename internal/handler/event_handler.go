package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"docxingest/internal/port"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventHandler serves the pipeline event log.
type EventHandler struct {
	reader port.EventReader
}

// NewEventHandler creates a new EventHandler. reader may be nil when no
// configured sink keeps events.
func NewEventHandler(reader port.EventReader) *EventHandler {
	return &EventHandler{reader: reader}
}

// List handles GET /api/v1/events
// @Summary      List pipeline events
// @Description  Returns stage transition events, oldest first
// @Tags         events
// @Produce      json
// @Param        batch_id query string false "Batch UUID"
// @Param        since query string false "RFC 3339 lower bound"
// @Param        limit query int false "Most recent N events" default(100)
// @Success      200 {object} APIResponse{data=[]domain.PipelineEvent,meta=PagMeta}
// @Failure      400 {object} APIResponse
// @Failure      401 {object} APIResponse
// @Security     BearerAuth
// @Router       /events [get]
func (h *EventHandler) List(c *gin.Context) {
	if h.reader == nil {
		RespondError(c, http.StatusNotImplemented, "EVENTS_UNAVAILABLE", "no configured event sink supports queries")
		return
	}
	filter, err := parseEventFilter(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	events, err := h.reader.ListEvents(c.Request.Context(), filter)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, events, PagMeta{Total: len(events), Limit: filter.Limit})
}

func parseEventFilter(c *gin.Context) (port.EventFilter, error) {
	filter := port.EventFilter{Limit: defaultEventLimit}

	if v := c.Query("batch_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errInvalidParam("batch_id", "must be a UUID")
		}
		filter.BatchID = id
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidParam("since", "must be RFC 3339")
		}
		filter.Since = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, errInvalidParam("limit", "must be a positive integer")
		}
		filter.Limit = min(n, maxEventLimit)
	}
	return filter, nil
}

type paramError struct {
	name, reason string
}

func (e *paramError) Error() string { return e.name + " " + e.reason }

func errInvalidParam(name, reason string) error {
	return &paramError{name: name, reason: reason}
}
