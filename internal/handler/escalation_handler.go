package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicgrid/civicgrid-api/internal/service"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
	"github.com/civicgrid/civicgrid-api/pkg/response"
)

// EscalationHandler exposes the escalation engine's manual controls.
type EscalationHandler struct {
	engine *service.EscalationService
	issues *service.IssueService
}

// NewEscalationHandler creates a new handler.
func NewEscalationHandler(engine *service.EscalationService, issues *service.IssueService) *EscalationHandler {
	return &EscalationHandler{engine: engine, issues: issues}
}

type escalateBody struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// Escalate godoc
// @Summary Manually escalate an issue
// @Description Move an issue one level up the hierarchy ahead of its deadline
// @Tags Escalation
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body escalateBody true "Escalation reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /issues/{id}/escalate [post]
func (h *EscalationHandler) Escalate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body escalateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid escalation payload"))
		return
	}

	issue, err := h.issues.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	entry, err := h.engine.Escalate(c.Request.Context(), &issue.Issue, claims.UserID, body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// SweepStatus godoc
// @Summary Sweep status
// @Description Report whether a sweep is running and the last completed run
// @Tags Escalation
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /escalations/status [get]
func (h *EscalationHandler) SweepStatus(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.engine.SweepStatus(), nil)
}

// RunSweep godoc
// @Summary Trigger an escalation sweep
// @Description Run the overdue-issue sweep immediately instead of waiting for the scheduler
// @Tags Escalation
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /escalations/sweep [post]
func (h *EscalationHandler) RunSweep(c *gin.Context) {
	report, err := h.engine.RunSweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
