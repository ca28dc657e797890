// Package transcription turns uploaded audio into text through an ordered chain of
// speech-to-text providers.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/metrics"
)

var (
	// ErrTranscriptionFailed is returned when no provider produced usable text.
	ErrTranscriptionFailed = errors.New("transcription failed")
	// ErrNoProviders is wrapped into ErrTranscriptionFailed when the chain is empty.
	ErrNoProviders = errors.New("no transcription provider configured")
	// ErrEmptyTranscript marks a provider response without any text.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// Provider is one speech-to-text backend.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audio Audio, language string) (string, error)
}

// Chain tries providers in order; the first non-empty transcript wins.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a provider chain. Nil providers are skipped.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	list := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			list = append(list, p)
		}
	}
	return &Chain{providers: list, logger: logger}
}

// Providers returns the configured provider names in order.
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Transcribe sends the full clip to each provider until one succeeds. Earlier
// failures are logged, not returned.
func (c *Chain) Transcribe(ctx context.Context, audio Audio, language string) (string, error) {
	if len(c.providers) == 0 {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, ErrNoProviders)
	}
	var errs []error
	for _, p := range c.providers {
		start := time.Now()
		text, err := p.Transcribe(ctx, audio, language)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyTranscript
		}
		if err != nil {
			metrics.IncProvider(p.Name(), false)
			c.logger.Warn("transcription provider failed",
				zap.String("provider", p.Name()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		metrics.IncProvider(p.Name(), true)
		c.logger.Info("transcription completed",
			zap.String("provider", p.Name()),
			zap.Int("chars", len(text)),
			zap.Duration("elapsed", time.Since(start)),
		)
		return strings.TrimSpace(text), nil
	}
	return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, errors.Join(errs...))
}
