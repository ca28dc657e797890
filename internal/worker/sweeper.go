package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/internal/pipeline"
)

const sweepBatch = 100

// StuckLister lists recordings that stopped making progress.
type StuckLister interface {
	ListStuck(ctx context.Context, before time.Time, limit int) ([]models.Recording, error)
}

// Expirer finalizes a stuck recording.
type Expirer interface {
	Expire(ctx context.Context, rec *models.Recording) error
}

// Sweeper fails recordings left in processing longer than a threshold, e.g. after
// a crash mid-pipeline.
type Sweeper struct {
	store    StuckLister
	expirer  Expirer
	after    time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(store StuckLister, expirer Expirer, after, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, expirer: expirer, after: after, interval: interval, now: time.Now, logger: logger}
}

// SweepOnce expires one batch and returns how many recordings it finalized.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stuck, err := s.store.ListStuck(ctx, s.now().Add(-s.after), sweepBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range stuck {
		rec := &stuck[i]
		if err := s.expirer.Expire(ctx, rec); err != nil {
			if !errors.Is(err, pipeline.ErrAlreadyFinalized) {
				s.logger.Warn("expire recording", zap.String("recording_id", rec.ID.String()), zap.Error(err))
			}
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("expired stuck recordings", zap.Int("count", n))
	}
	return n, nil
}

// Run sweeps on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("sweep failed", zap.Error(err))
			}
		}
	}
}
