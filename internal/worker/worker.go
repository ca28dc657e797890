// Package worker consumes recording jobs from the Redis queue and runs the
// pipeline for each, and sweeps recordings stuck in processing.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/pkg/queue"
)

// JobQueue is the subset of queue.Queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// RecordingLoader loads recordings by id.
type RecordingLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
}

// AudioSource fetches stored audio.
type AudioSource interface {
	GetAudio(ctx context.Context, key string) ([]byte, error)
}

// Runner executes the pipeline.
type Runner interface {
	Run(ctx context.Context, rec *models.Recording, audio []byte) error
	FailUpload(ctx context.Context, rec *models.Recording, cause error) error
}

// RecordingProcessor processes recording jobs: fetch audio from S3, run the pipeline.
type RecordingProcessor struct {
	recordings RecordingLoader
	audio      AudioSource
	runner     Runner
	queue      JobQueue
	backoff    time.Duration
	logger     *zap.Logger
}

// NewRecordingProcessor creates a recording job processor.
func NewRecordingProcessor(recs RecordingLoader, audio AudioSource, runner Runner, q JobQueue, logger *zap.Logger) *RecordingProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingProcessor{recordings: recs, audio: audio, runner: runner, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

func (p *RecordingProcessor) payload(job *queue.Job) (queue.ProcessRecordingPayload, error) {
	var payload queue.ProcessRecordingPayload
	if job.Type != queue.JobTypeProcessRecording {
		return payload, fmt.Errorf("unknown job type: %s", job.Type)
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w", err)
	}
	return payload, nil
}

// Process executes one job. Errors before the pipeline starts are retryable; once
// the pipeline has run its outcome lives on the recording and nil is returned.
func (p *RecordingProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := p.payload(job)
	if err != nil {
		return err
	}
	rec, err := p.recordings.GetByID(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("load recording %s: %w", payload.RecordingID, err)
	}
	if models.IsTerminalStatus(rec.Status) {
		p.logger.Info("recording already finalized", zap.String("recording_id", rec.ID.String()), zap.String("status", rec.Status))
		return nil
	}

	key := payload.AudioKey
	if key == "" {
		key = rec.AudioKey
	}
	audio, err := p.audio.GetAudio(ctx, key)
	if err != nil {
		return fmt.Errorf("fetch audio: %w", err)
	}

	// A started pipeline runs to a terminal status even when the worker is stopping.
	if err := p.runner.Run(context.WithoutCancel(ctx), rec, audio); err != nil {
		p.logger.Error("pipeline run", zap.String("recording_id", rec.ID.String()), zap.Error(err))
	}
	return nil
}

// giveUp marks the recording failed at upload once its job is dead-lettered.
func (p *RecordingProcessor) giveUp(ctx context.Context, job *queue.Job, cause error) {
	payload, err := p.payload(job)
	if err != nil {
		return
	}
	rec, err := p.recordings.GetByID(ctx, payload.RecordingID)
	if err != nil || models.IsTerminalStatus(rec.Status) {
		return
	}
	if err := p.runner.FailUpload(ctx, rec, cause); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("fail upload", zap.String("recording_id", rec.ID.String()), zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error. Once ctx is done it
// stops dequeuing and returns after the job in hand has finished.
func (p *RecordingProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			dead, reErr := p.queue.Retry(context.WithoutCancel(ctx), job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			if dead {
				p.giveUp(context.WithoutCancel(ctx), job, err)
				continue
			}
			p.sleep(ctx)
		}
	}
}

func (p *RecordingProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
