package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicgrid/civicgrid-api/internal/dto"
	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/internal/service"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
	"github.com/civicgrid/civicgrid-api/pkg/response"
)

// IssueHandler wires HTTP endpoints to the issue lifecycle service.
type IssueHandler struct {
	service *service.IssueService
}

// NewIssueHandler creates a new handler.
func NewIssueHandler(svc *service.IssueService) *IssueHandler {
	return &IssueHandler{service: svc}
}

// Create godoc
// @Summary Report an issue
// @Description Submit a new civic issue report
// @Tags Issues
// @Accept json
// @Produce json
// @Param payload body dto.CreateIssueRequest true "Issue payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /issues [post]
func (h *IssueHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid issue payload"))
		return
	}

	issue, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, issue)
}

// List godoc
// @Summary List issues
// @Description List issues with optional filters
// @Tags Issues
// @Produce json
// @Param status query string false "Status filter"
// @Param category query string false "Category filter"
// @Param priority query string false "Priority filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /issues [get]
func (h *IssueHandler) List(c *gin.Context) {
	var query dto.IssueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}

	filter := models.IssueFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := models.IssueStatus(query.Status)
		filter.Status = &status
	}
	if query.Category != "" {
		category := models.IssueCategory(query.Category)
		filter.Category = &category
	}
	if query.Priority != "" {
		priority := models.IssuePriority(query.Priority)
		filter.Priority = &priority
	}

	// Citizens only ever see their own reports.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleCitizen {
		filter.ReportedBy = claims.UserID
	}

	issues, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, issues, &models.Pagination{
		Page:       query.Page,
		PageSize:   query.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get issue
// @Description Get an issue with its escalation history
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /issues/{id} [get]
func (h *IssueHandler) Get(c *gin.Context) {
	issue, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Accept godoc
// @Summary Accept issue
// @Description Exclusively claim an issue for the current staff member
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /issues/{id}/accept [post]
func (h *IssueHandler) Accept(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	issue, err := h.service.Accept(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// Resolve godoc
// @Summary Resolve issue
// @Description Close an accepted issue with optional photo and location evidence
// @Tags Issues
// @Accept json
// @Produce json
// @Param id path string true "Issue ID"
// @Param payload body dto.ResolveIssueRequest true "Resolution evidence"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /issues/{id}/resolve [post]
func (h *IssueHandler) Resolve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req dto.ResolveIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
		return
	}

	issue, err := h.service.Resolve(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, issue, nil)
}

// History godoc
// @Summary Issue escalation history
// @Description List the append-only escalation trail for an issue
// @Tags Issues
// @Produce json
// @Param id path string true "Issue ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /issues/{id}/history [get]
func (h *IssueHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}
