package recordings

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/middleware"
	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/internal/pipeline"
	"github.com/voxnote/backend/pkg/response"
)

// Store is the subset of Repository the handler reads and deletes through.
type Store interface {
	GetByIDForUser(ctx context.Context, id, userID uuid.UUID) (*models.Recording, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.RecordingSummary, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (string, error)
}

// Pipeline admits uploads and records upload failures.
type Pipeline interface {
	Admit(ctx context.Context, req pipeline.AdmitRequest) (*models.Recording, error)
	FailUpload(ctx context.Context, rec *models.Recording, cause error) error
}

// AudioStore is stored upload audio. Optional; nil in inline mode.
type AudioStore interface {
	DeleteAudio(ctx context.Context, key string) error
	PresignAudioURL(ctx context.Context, key string) (string, error)
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store      Store
	pipeline   Pipeline
	dispatcher pipeline.Dispatcher
	audio      AudioStore
	maxUpload  int64
	logger     *zap.Logger
}

// NewHandler creates a recordings handler. maxUploadMB caps the multipart body.
func NewHandler(store Store, p Pipeline, d pipeline.Dispatcher, audio AudioStore, maxUploadMB int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 100
	}
	return &Handler{store: store, pipeline: p, dispatcher: d, audio: audio, maxUpload: int64(maxUploadMB) << 20, logger: logger}
}

// Upload handles POST /recordings (multipart: audio, duration_seconds, format,
// custom_format_id, language). The pipeline runs after the response is sent.
func (h *Handler) Upload(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	file, _, err := c.Request.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.TooLarge(c, "audio file too large")
			return
		}
		response.BadRequest(c, "audio file required")
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(c, "failed to read audio")
		return
	}
	if len(audio) == 0 {
		response.BadRequest(c, "audio file is empty")
		return
	}

	duration, err := strconv.Atoi(c.PostForm("duration_seconds"))
	if err != nil || duration < 0 {
		response.BadRequest(c, "duration_seconds must be a non-negative integer")
		return
	}
	req := pipeline.AdmitRequest{
		UserID:          userID,
		DurationSeconds: duration,
		Format:          c.DefaultPostForm("format", models.FormatAuto),
		Language:        c.PostForm("language"),
	}
	if s := c.PostForm("custom_format_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid custom_format_id")
			return
		}
		req.CustomFormatID = &id
	}

	ctx := c.Request.Context()
	rec, err := h.pipeline.Admit(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrQuotaExceeded):
			response.PaymentRequired(c, err.Error())
		case errors.Is(err, pipeline.ErrInvalidFormat), errors.Is(err, pipeline.ErrCustomFormatNotFound):
			response.BadRequest(c, err.Error())
		default:
			h.logger.Error("admit recording failed", zap.Error(err), zap.String("user_id", userID.String()))
			response.Internal(c, "failed to create recording")
		}
		return
	}

	if err := h.dispatcher.Dispatch(ctx, rec, audio); err != nil {
		h.logger.Error("dispatch recording failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		if ferr := h.pipeline.FailUpload(context.WithoutCancel(ctx), rec, err); ferr != nil {
			h.logger.Error("finalize upload failure", zap.Error(ferr), zap.String("recording_id", rec.ID.String()))
		}
	}
	response.Created(c, gin.H{"id": rec.ID, "title": rec.Title, "status": rec.Status})
}

// Get handles GET /recordings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	rec, err := h.store.GetByIDForUser(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get recording failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to get recording")
		return
	}
	response.OK(c, rec)
}

// List handles GET /recordings?limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.store.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /recordings/:id. Stored audio is removed best effort.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	key, err := h.store.Delete(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("delete recording failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to delete recording")
		return
	}
	if key != "" && h.audio != nil {
		if err := h.audio.DeleteAudio(c.Request.Context(), key); err != nil {
			h.logger.Warn("delete recording audio failed", zap.Error(err), zap.String("key", key))
		}
	}
	response.NoContent(c)
}

// AudioURL handles GET /recordings/:id/audio-url. Only available when audio is kept in object storage.
func (h *Handler) AudioURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	rec, err := h.store.GetByIDForUser(c.Request.Context(), id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		response.Internal(c, "failed to get recording")
		return
	}
	if h.audio == nil || rec.AudioKey == "" {
		response.NotFound(c, "audio not stored")
		return
	}
	url, err := h.audio.PresignAudioURL(c.Request.Context(), rec.AudioKey)
	if err != nil {
		h.logger.Error("presign audio failed", zap.Error(err), zap.String("recording_id", id.String()))
		response.Internal(c, "failed to generate audio URL")
		return
	}
	response.OK(c, gin.H{"audio_url": url})
}
