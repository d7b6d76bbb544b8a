package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/civicgrid/civicgrid-api/internal/service"
	appErrors "github.com/civicgrid/civicgrid-api/pkg/errors"
	"github.com/civicgrid/civicgrid-api/pkg/response"
)

// PhotoHandler serves photo uploads and signed downloads.
type PhotoHandler struct {
	service *service.PhotoService
}

// NewPhotoHandler creates a new handler.
func NewPhotoHandler(svc *service.PhotoService) *PhotoHandler {
	return &PhotoHandler{service: svc}
}

// Upload godoc
// @Summary Upload a photo
// @Description Store a photo and return a signed URL for use in issue reports
// @Tags Issues
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file true "Photo file"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /photos [post]
func (h *PhotoHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	header, err := c.FormFile("photo")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo file is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo file is unreadable"))
		return
	}
	defer file.Close() //nolint:errcheck

	photo, err := h.service.Store(c.Request.Context(), claims.UserID, header.Filename, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, photo)
}

// Fetch streams a stored photo by signed token. No auth: the token itself
// is the credential.
func (h *PhotoHandler) Fetch(c *gin.Context) {
	file, contentType, err := h.service.Fetch(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
