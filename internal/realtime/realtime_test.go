package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/models"
)

func testRecording(userID uuid.UUID) *models.Recording {
	step := models.StepSlack
	return &models.Recording{
		ID:                    uuid.New(),
		UserID:                userID,
		Title:                 "Recording 2026/03/10 08:30",
		Status:                models.RecordingStatusCompleted,
		DestinationReferences: map[string]string{"notion": "https://notion.so/p"},
		ErrorStep:             &step,
	}
}

func TestPublishRecordingThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ps := NewRedisPubSub(client, nil)
	hub := NewHub(nil, ps, ps)
	userID := uuid.New()
	c := &Client{ID: "c1", UserID: userID, send: make(chan WSMessage, 4)}
	hub.Register(c)
	defer hub.Unregister(c)

	rec := testRecording(userID)
	require.NoError(t, hub.PublishRecording(context.Background(), rec))

	select {
	case msg := <-c.send:
		require.Equal(t, EventRecordingUpdated, msg.Event)
		var ev RecordingEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		require.Equal(t, rec.ID, ev.ID)
		require.Equal(t, models.RecordingStatusCompleted, ev.Status)
		require.Equal(t, "slack", *ev.ErrorStep)
		require.False(t, ev.HasTranscript)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishRecordingOtherUserNotDelivered(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	c := &Client{ID: "c1", UserID: uuid.New(), send: make(chan WSMessage, 1)}
	hub.Register(c)

	require.NoError(t, hub.PublishRecording(context.Background(), testRecording(uuid.New())))
	require.Empty(t, c.send)

	hub.Unregister(c)
	require.Zero(t, hub.Connections(c.UserID))
}

func TestServeWsStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	hub := NewHub(nil, nil, nil)
	r := gin.New()
	r.GET("/ws", ServeWs(hub, nil, func(token string) (uuid.UUID, error) {
		if token != "good" {
			return uuid.Nil, errors.New("bad token")
		}
		return userID, nil
	}))
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad", nil)
	require.Error(t, err)
	require.Equal(t, 401, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 }, 2*time.Second, 10*time.Millisecond)

	rec := testRecording(userID)
	require.NoError(t, hub.PublishRecording(context.Background(), rec))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, EventRecordingUpdated, msg.Event)
	require.Contains(t, string(msg.Data), rec.ID.String())

	require.NoError(t, conn.WriteJSON(WSMessage{Event: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "pong", msg.Event)
}

// drainingSubscriber mimics a Redis subscription whose cancel waits for one last
// in-flight message to be handed to the hub.
type drainingSubscriber struct {
	handler func(event string, payload []byte)
}

func (s *drainingSubscriber) SubscribeUser(_ uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	s.handler = handler
	return func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.handler(EventRecordingUpdated, []byte(`{}`))
		}()
		<-done
	}, nil
}

func TestUnregisterWaitsForInFlightDelivery(t *testing.T) {
	sub := &drainingSubscriber{}
	hub := NewHub(nil, nil, sub)
	userID := uuid.New()
	c := &Client{ID: "c1", UserID: userID, send: make(chan WSMessage, 4)}
	hub.Register(c)

	unregistered := make(chan struct{})
	go func() {
		hub.Unregister(c)
		close(unregistered)
	}()
	select {
	case <-unregistered:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked while subscription drained")
	}
	require.Zero(t, hub.Connections(userID))

	// The hub stays usable for the same user afterwards.
	c2 := &Client{ID: "c2", UserID: userID, send: make(chan WSMessage, 1)}
	hub.Register(c2)
	hub.SendToUser(userID, EventRecordingUpdated, []byte(`{}`))
	require.Len(t, c2.send, 1)
	hub.Unregister(c2)
}
