// Package app assembles the recording pipeline from configuration. Both the
// API server and the standalone worker build their orchestrator here.
package app

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/voxnote/backend/config"
	"github.com/voxnote/backend/internal/delivery"
	"github.com/voxnote/backend/internal/document"
	"github.com/voxnote/backend/internal/formats"
	"github.com/voxnote/backend/internal/integrations"
	"github.com/voxnote/backend/internal/llm"
	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/internal/pipeline"
	"github.com/voxnote/backend/internal/recordings"
	"github.com/voxnote/backend/internal/transcription"
	"github.com/voxnote/backend/internal/usage"
	"github.com/voxnote/backend/pkg/storage"
)

// Stack is the assembled pipeline plus the repositories it writes through.
type Stack struct {
	Orchestrator *pipeline.Orchestrator
	Recordings   *recordings.Repository
	Formats      *formats.Repository
	Integrations *integrations.Repository
	UsageRepo    *usage.Repository
	Usage        *usage.Service
	Location     *time.Location
}

// Location loads the document timezone, falling back to UTC when the zone
// database does not know it.
func Location(name string, logger *zap.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("unknown timezone, using UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

// Transcriber builds the provider chain from the enabled providers, primary first.
func Transcriber(cfg config.TranscriptionConfig, logger *zap.Logger) *transcription.Chain {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	var providers []transcription.Provider
	for _, p := range []config.ProviderConfig{cfg.Primary, cfg.Secondary} {
		if !p.Enabled() {
			logger.Info("transcription provider disabled", zap.String("provider", p.Name))
			continue
		}
		providers = append(providers, transcription.NewHTTPProvider(transcription.HTTPConfig{
			Name:    p.Name,
			BaseURL: p.BaseURL,
			APIKey:  p.APIKey,
			Model:   p.Model,
			Timeout: timeout,
		}))
	}
	return transcription.NewChain(logger, providers...)
}

// DeliveryClients builds the shared Notion and Slack clients.
func DeliveryClients(cfg *config.Config) delivery.Clients {
	return delivery.Clients{
		Notion: delivery.NewNotionClient(delivery.NotionConfig{
			BaseURL:       cfg.Notion.BaseURL,
			Version:       cfg.Notion.Version,
			RatePerSecond: cfg.Notion.RatePerSecond,
			Timeout:       time.Duration(cfg.Notion.TimeoutSeconds) * time.Second,
		}),
		Slack: delivery.NewSlackClient(delivery.SlackConfig{
			BaseURL: cfg.Slack.BaseURL,
			Timeout: time.Duration(cfg.Slack.TimeoutSeconds) * time.Second,
		}),
	}
}

// NewStack wires the orchestrator. pub may be nil. When audio is non-nil new
// recordings get an object key so they can be handed to the queue.
func NewStack(cfg *config.Config, pool *pgxpool.Pool, audio *storage.S3, pub pipeline.Publisher, logger *zap.Logger) (*Stack, error) {
	loc := Location(cfg.Pipeline.Timezone, logger)

	gen := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})
	formatter, err := document.NewFormatter(gen, loc, logger)
	if err != nil {
		return nil, fmt.Errorf("formatter: %w", err)
	}

	s := &Stack{
		Recordings:   recordings.NewRepository(pool),
		Formats:      formats.NewRepository(pool),
		Integrations: integrations.NewRepository(pool),
		UsageRepo:    usage.NewRepository(pool),
		Location:     loc,
	}
	s.Usage = usage.NewService(s.UsageRepo, loc)

	deps := pipeline.Deps{
		Recordings:    s.Recordings,
		Quota:         s.Usage,
		Transcriber:   Transcriber(cfg.Transcription, logger),
		Classifier:    document.NewClassifier(gen, logger),
		Formatter:     formatter,
		Deliverer:     delivery.NewFanout(logger),
		Integrations:  s.Integrations,
		Targets:       DeliveryClients(cfg).Targets,
		CustomFormats: s.Formats,
		Publisher:     pub,
		Logger:        logger,
		Location:      loc,
	}
	if audio != nil {
		deps.AudioKey = func(rec *models.Recording) string { return storage.AudioKey(rec.UserID, rec.ID) }
	}
	s.Orchestrator = pipeline.New(deps)
	return s, nil
}
