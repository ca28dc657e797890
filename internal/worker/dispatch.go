package worker

import (
	"context"
	"fmt"

	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/pkg/queue"
)

// AudioSink stores uploaded audio.
type AudioSink interface {
	PutAudio(ctx context.Context, key string, data []byte) error
}

// Enqueuer pushes recording jobs.
type Enqueuer interface {
	EnqueueProcessRecording(ctx context.Context, payload queue.ProcessRecordingPayload) error
}

// QueueDispatcher stores the audio in object storage and enqueues a job for the worker.
type QueueDispatcher struct {
	audio AudioSink
	queue Enqueuer
}

// NewQueueDispatcher creates a queue-mode dispatcher.
func NewQueueDispatcher(audio AudioSink, q Enqueuer) *QueueDispatcher {
	return &QueueDispatcher{audio: audio, queue: q}
}

// Dispatch implements pipeline.Dispatcher.
func (d *QueueDispatcher) Dispatch(ctx context.Context, rec *models.Recording, audio []byte) error {
	if rec.AudioKey == "" {
		return fmt.Errorf("recording %s has no audio key", rec.ID)
	}
	if err := d.audio.PutAudio(ctx, rec.AudioKey, audio); err != nil {
		return err
	}
	if err := d.queue.EnqueueProcessRecording(ctx, queue.ProcessRecordingPayload{
		RecordingID: rec.ID,
		UserID:      rec.UserID,
		AudioKey:    rec.AudioKey,
	}); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}
