package integrations

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/middleware"
	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/pkg/response"
)

// Store is the settings persistence the handler needs.
type Store interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Integrations, error)
	Upsert(ctx context.Context, in *models.Integrations) error
}

// UpdateRequest is the body for PUT /integrations. A nil token keeps the
// stored one; an empty string clears it.
type UpdateRequest struct {
	NotionToken      *string `json:"notion_token"`
	NotionDatabaseID *string `json:"notion_database_id"`
	SlackBotToken    *string `json:"slack_bot_token"`
	SlackChannelID   *string `json:"slack_channel_id"`
}

// Handler handles integration settings endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an integrations handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /integrations.
func (h *Handler) Get(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	in, err := h.store.GetByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("get integrations failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to get integrations")
		return
	}
	response.OK(c, in.ToPublic())
}

// Put handles PUT /integrations.
func (h *Handler) Put(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	ctx := c.Request.Context()
	current, err := h.store.GetByUser(ctx, userID)
	if err != nil {
		h.logger.Error("get integrations failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to update integrations")
		return
	}
	next := models.Integrations{UserID: userID}
	if current != nil {
		next = *current
	}
	merge(&next.NotionToken, req.NotionToken)
	merge(&next.NotionDatabaseID, req.NotionDatabaseID)
	merge(&next.SlackBotToken, req.SlackBotToken)
	merge(&next.SlackChannelID, req.SlackChannelID)

	if err := h.store.Upsert(ctx, &next); err != nil {
		h.logger.Error("upsert integrations failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to update integrations")
		return
	}
	response.OK(c, next.ToPublic())
}

func merge(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}
