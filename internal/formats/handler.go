package formats

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/middleware"
	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/pkg/response"
)

const maxNameLen = 100

// Store is the format persistence the handler needs.
type Store interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.CustomFormat, error)
	Create(ctx context.Context, userID uuid.UUID, name, prompt string, isDefault bool) (*models.CustomFormat, error)
	Update(ctx context.Context, userID, id uuid.UUID, name, prompt *string) (*models.CustomFormat, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	SetDefault(ctx context.Context, userID, id uuid.UUID) (*models.CustomFormat, error)
}

// CreateRequest is the body for POST /formats.
type CreateRequest struct {
	Name      string `json:"name" binding:"required"`
	Prompt    string `json:"prompt" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

// UpdateRequest is the body for PATCH /formats/:id.
type UpdateRequest struct {
	Name   *string `json:"name"`
	Prompt *string `json:"prompt"`
}

// NormalizePrompt trims the prompt and appends a transcript section when the
// author left out the {{transcript}} placeholder.
func NormalizePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if !strings.Contains(prompt, models.PlaceholderTranscript) {
		prompt += "\n\nTranscript:\n" + models.PlaceholderTranscript
	}
	return prompt
}

// Handler handles custom format HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a formats handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// List handles GET /formats.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list formats failed", zap.Error(err))
		response.Internal(c, "failed to list formats")
		return
	}
	response.OK(c, list)
}

// Create handles POST /formats.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLen {
		response.BadRequest(c, "name must be 1-100 characters")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		response.BadRequest(c, "prompt is required")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	f, err := h.store.Create(c.Request.Context(), userID, name, NormalizePrompt(req.Prompt), req.IsDefault)
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			response.Conflict(c, err.Error())
			return
		}
		h.logger.Error("create format failed", zap.Error(err))
		response.Internal(c, "failed to create format")
		return
	}
	response.Created(c, f)
}

// Update handles PATCH /formats/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := formatID(c)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" || len(name) > maxNameLen {
			response.BadRequest(c, "name must be 1-100 characters")
			return
		}
		req.Name = &name
	}
	if req.Prompt != nil {
		if strings.TrimSpace(*req.Prompt) == "" {
			response.BadRequest(c, "prompt cannot be empty")
			return
		}
		p := NormalizePrompt(*req.Prompt)
		req.Prompt = &p
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	f, err := h.store.Update(c.Request.Context(), userID, id, req.Name, req.Prompt)
	if h.fail(c, err, "update format") {
		return
	}
	response.OK(c, f)
}

// Delete handles DELETE /formats/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := formatID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if h.fail(c, h.store.Delete(c.Request.Context(), userID, id), "delete format") {
		return
	}
	response.NoContent(c)
}

// SetDefault handles POST /formats/:id/default.
func (h *Handler) SetDefault(c *gin.Context) {
	id, ok := formatID(c)
	if !ok {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	f, err := h.store.SetDefault(c.Request.Context(), userID, id)
	if h.fail(c, err, "set default format") {
		return
	}
	response.OK(c, f)
}

func formatID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid format id")
		return uuid.Nil, false
	}
	return id, true
}

// fail writes the error response, if any, and reports whether it did.
func (h *Handler) fail(c *gin.Context, err error, op string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "format not found")
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		response.Internal(c, "failed to "+op)
	}
	return true
}
