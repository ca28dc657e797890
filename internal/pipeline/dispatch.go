package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/models"
)

// Dispatcher hands an admitted recording and its audio to the pipeline without
// waiting for it. A returned error means the audio never reached the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *models.Recording, audio []byte) error
}

// InlineDispatcher runs each pipeline in its own goroutine in this process.
type InlineDispatcher struct {
	orch   *Orchestrator
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewInlineDispatcher creates a dispatcher backed by orch.
func NewInlineDispatcher(orch *Orchestrator, logger *zap.Logger) *InlineDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineDispatcher{orch: orch, logger: logger}
}

// Dispatch starts the pipeline detached from the request context.
func (d *InlineDispatcher) Dispatch(ctx context.Context, rec *models.Recording, audio []byte) error {
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.orch.Run(runCtx, rec, audio); err != nil {
			d.logger.Error("pipeline run", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		}
	}()
	return nil
}

// Wait blocks until every dispatched pipeline has returned.
func (d *InlineDispatcher) Wait() { d.wg.Wait() }
