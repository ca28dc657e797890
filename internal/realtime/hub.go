package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventRecordingUpdated is sent whenever a recording row changes.
	EventRecordingUpdated = "recording.updated"
)

// RecordingEvent is the payload of EventRecordingUpdated.
type RecordingEvent struct {
	ID                    uuid.UUID         `json:"id"`
	Title                 string            `json:"title"`
	Status                string            `json:"status"`
	ContentType           *string           `json:"content_type,omitempty"`
	HasTranscript         bool              `json:"has_transcript"`
	DestinationReferences map[string]string `json:"destination_references,omitempty"`
	ErrorStep             *string           `json:"error_step,omitempty"`
	ErrorMessage          *string           `json:"error_message,omitempty"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// NewRecordingEvent builds the event payload for rec.
func NewRecordingEvent(rec *models.Recording) RecordingEvent {
	return RecordingEvent{
		ID:                    rec.ID,
		Title:                 rec.Title,
		Status:                rec.Status,
		ContentType:           rec.ContentType,
		HasTranscript:         rec.Transcript != nil,
		DestinationReferences: rec.DestinationReferences,
		ErrorStep:             rec.ErrorStep,
		ErrorMessage:          rec.ErrorMessage,
		UpdatedAt:             rec.UpdatedAt,
	}
}

// Hub maintains user_id -> set of connections.
// Uses Redis pub/sub for horizontal scaling: the pipeline may run in another process.
type Hub struct {
	// userID -> map[clientID]*Client
	users    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per user
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance delivery).
type RedisPublisher interface {
	PublishUserEvent(ctx context.Context, userID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to user channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeUser(userID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis sides are optional.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		users:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client. Starts the Redis subscription for this user if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeUser(c.UserID, func(event string, payload []byte) {
				h.SendToUser(c.UserID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.UserID] = cancel
			} else {
				h.logger.Warn("redis subscribe failed", zap.String("user_id", c.UserID.String()), zap.Error(err))
			}
		}
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the user's last client leaves.
func (h *Hub) Unregister(c *Client) {
	var cancel func()
	h.mu.Lock()
	if m, ok := h.users[c.UserID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.users, c.UserID)
			cancel = h.subs[c.UserID]
			delete(h.subs, c.UserID)
		}
	}
	h.mu.Unlock()
	// cancel waits for the subscriber goroutine, which may be blocked in SendToUser on h.mu.
	if cancel != nil {
		cancel()
	}
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// SendToUser sends a message to every local connection of a user.
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.users[userID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Connections returns the number of local connections for a user.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// PublishRecording announces a recording change. With Redis the subscriber callback
// delivers it once on every instance (including this one); without Redis it goes
// straight to local clients.
func (h *Hub) PublishRecording(ctx context.Context, rec *models.Recording) error {
	data, err := json.Marshal(NewRecordingEvent(rec))
	if err != nil {
		return err
	}
	if h.redis != nil {
		return h.redis.PublishUserEvent(ctx, rec.UserID, EventRecordingUpdated, data)
	}
	h.SendToUser(rec.UserID, EventRecordingUpdated, json.RawMessage(data))
	return nil
}
