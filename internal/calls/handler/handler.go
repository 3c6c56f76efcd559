package handler

import (
	"frontdesk-server/internal/apierrors"
	"frontdesk-server/internal/calls/processor"
	"frontdesk-server/internal/observability"
	"frontdesk-server/internal/store"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	processor processor.CallsProcessor
	logger    *observability.Logger
}

func New(processor processor.CallsProcessor, logger *observability.Logger) Handler {
	return Handler{
		processor: processor,
		logger:    logger,
	}
}

// ListCallsResponse wraps the recent-calls list for the dashboard.
type ListCallsResponse struct {
	Calls []store.Conversation `json:"calls"`
}

// ListAppointmentsResponse wraps an agent's upcoming appointments.
type ListAppointmentsResponse struct {
	Appointments []store.Appointment `json:"appointments"`
}

func parseLimit(c *gin.Context) (int, bool) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		return 0, false
	}
	return limit, true
}

// HandleListCalls handles GET /api/protected/calls
func (h *Handler) HandleListCalls(c *gin.Context) {
	ctx := c.Request.Context()

	limit, ok := parseLimit(c)
	if !ok {
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "limit must be a positive number"))
		return
	}

	calls, err := h.processor.ListRecentCalls(ctx, limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListCallsResponse{Calls: calls})
}

// HandleGetCall handles GET /api/protected/calls/:call_id
func (h *Handler) HandleGetCall(c *gin.Context) {
	ctx := c.Request.Context()

	callID, err := uuid.Parse(c.Param("call_id"))
	if err != nil {
		h.logger.InfoWithError(ctx, "failed to parse call_id", err)
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid call_id"))
		return
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "call_id", Value: callID.String()})

	detail, err := h.processor.GetCallWithTranscript(ctx, callID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// listAppointmentsQuery is bound from the appointments list query string.
type listAppointmentsQuery struct {
	AgentID string `form:"agent_id" binding:"required"`
	Limit   int    `form:"limit" binding:"omitempty,gte=0"`
}

// HandleListAppointments handles GET /api/protected/appointments
func (h *Handler) HandleListAppointments(c *gin.Context) {
	ctx := c.Request.Context()

	var query listAppointmentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.InfoWithError(ctx, "failed to bind appointments query", err)
		apierrors.RespondWithValidationError(c, err)
		return
	}

	agentID, err := uuid.Parse(query.AgentID)
	if err != nil {
		h.logger.InfoWithError(ctx, "failed to parse agent_id", err)
		apierrors.RespondWithError(c, apierrors.BadRequest(apierrors.CodeInvalidInput, "invalid agent_id"))
		return
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "agent_id", Value: agentID.String()})

	appointments, err := h.processor.ListUpcomingAppointments(ctx, agentID, query.Limit)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListAppointmentsResponse{Appointments: appointments})
}
