package usage

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/middleware"
	"github.com/voxnote/backend/pkg/response"
)

// BonusGranter adds bonus minutes and returns the new bonus total.
type BonusGranter interface {
	AddBonusMinutes(ctx context.Context, userID uuid.UUID, minutes int) (int, error)
}

// BonusRequest is the body for POST /admin/users/:id/bonus-minutes.
type BonusRequest struct {
	Minutes int `json:"minutes" binding:"required,gt=0"`
}

// Handler serves quota reads and admin grants.
type Handler struct {
	svc    *Service
	bonus  BonusGranter
	logger *zap.Logger
}

// NewHandler creates a usage handler.
func NewHandler(svc *Service, bonus BonusGranter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, bonus: bonus, logger: logger}
}

// Get handles GET /usage.
func (h *Handler) Get(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	q, err := h.svc.Quota(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("get quota failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to load usage")
		return
	}
	response.OK(c, q)
}

// GrantBonus handles POST /admin/users/:id/bonus-minutes (admin only).
func (h *Handler) GrantBonus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req BonusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "minutes must be a positive integer")
		return
	}
	total, err := h.bonus.AddBonusMinutes(c.Request.Context(), userID, req.Minutes)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(c, "user not found")
			return
		}
		h.logger.Error("grant bonus failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to grant bonus minutes")
		return
	}
	h.logger.Info("bonus minutes granted",
		zap.String("user_id", userID.String()),
		zap.Int("minutes", req.Minutes),
		zap.Any("granted_by", c.Value(middleware.ContextUserID)),
	)
	response.OK(c, gin.H{"user_id": userID, "bonus_minutes": total})
}
