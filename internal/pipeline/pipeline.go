// Package pipeline drives a recording from admission to a terminal status:
// transcribe, classify (auto format only), format, deliver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/delivery"
	"github.com/voxnote/backend/internal/document"
	"github.com/voxnote/backend/internal/metrics"
	"github.com/voxnote/backend/internal/models"
	"github.com/voxnote/backend/internal/transcription"
	"github.com/voxnote/backend/internal/usage"
)

var (
	// ErrQuotaExceeded rejects an upload that would exceed the monthly limit.
	ErrQuotaExceeded = usage.ErrQuotaExceeded
	// ErrAlreadyFinalized is returned by stores when the recording is no longer processing.
	ErrAlreadyFinalized = errors.New("recording already finalized")
	ErrInvalidFormat    = errors.New("invalid format")
	// ErrCustomFormatNotFound means format=custom was requested without a usable template.
	ErrCustomFormatNotFound = errors.New("custom format not found")
	errPanic                = errors.New("pipeline panic")
)

// TitleLayout renders generated recording titles.
const TitleLayout = "2006/01/02 15:04"

// RecordingStore persists recordings. Finalize must only update rows still in
// processing and return ErrAlreadyFinalized otherwise.
type RecordingStore interface {
	Create(ctx context.Context, rec *models.Recording) error
	SaveTranscript(ctx context.Context, id uuid.UUID, transcript string) error
	Finalize(ctx context.Context, id uuid.UUID, out models.Outcome) error
}

// Quota checks and charges recording minutes.
type Quota interface {
	Check(ctx context.Context, userID uuid.UUID, durationSeconds int) (int, error)
	Charge(ctx context.Context, userID uuid.UUID, minutes int) error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio transcription.Audio, language string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, transcript string) document.ContentType
}

type Formatter interface {
	Format(ctx context.Context, transcript string, src document.TemplateSource, now time.Time) (document.Document, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, doc delivery.Document, t delivery.Targets) []delivery.Result
}

// IntegrationStore returns nil, nil when the user has no settings.
type IntegrationStore interface {
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Integrations, error)
}

type CustomFormatStore interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*models.CustomFormat, error)
	GetDefault(ctx context.Context, userID uuid.UUID) (*models.CustomFormat, error)
}

// Publisher broadcasts recording changes to connected clients.
type Publisher interface {
	PublishRecording(ctx context.Context, rec *models.Recording) error
}

// Deps are the orchestrator's collaborators. Publisher, AudioKey, Logger, Location
// and Now are optional. AudioKey names the stored audio object for a new
// recording (queue mode).
type Deps struct {
	Recordings    RecordingStore
	Quota         Quota
	Transcriber   Transcriber
	Classifier    Classifier
	Formatter     Formatter
	Deliverer     Deliverer
	Integrations  IntegrationStore
	Targets       func(*models.Integrations) delivery.Targets
	CustomFormats CustomFormatStore
	Publisher     Publisher
	AudioKey      func(rec *models.Recording) string
	Logger        *zap.Logger
	Location      *time.Location
	Now           func() time.Time
}

// AdmitRequest describes an upload.
type AdmitRequest struct {
	UserID          uuid.UUID
	DurationSeconds int
	Format          string
	CustomFormatID  *uuid.UUID
	Language        string
}

// Orchestrator is the only writer of recording rows while a pipeline runs.
type Orchestrator struct {
	d Deps
}

// New creates an orchestrator.
func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Orchestrator{d: d}
}

// Admit checks quota, creates the recording in processing and charges its minutes.
// A rejected upload creates no row and charges nothing.
func (o *Orchestrator) Admit(ctx context.Context, req AdmitRequest) (*models.Recording, error) {
	if !models.ValidFormat(req.Format) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, req.Format)
	}
	if req.DurationSeconds < 0 {
		req.DurationSeconds = 0
	}

	var customID *uuid.UUID
	if req.Format == models.FormatCustom {
		cf, err := o.resolveCustom(ctx, req.UserID, req.CustomFormatID)
		if err != nil {
			return nil, err
		}
		customID = &cf.ID
	}

	minutes, err := o.d.Quota.Check(ctx, req.UserID, req.DurationSeconds)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.IncAdmission("quota_exceeded")
		} else {
			metrics.IncAdmission("error")
		}
		return nil, err
	}

	now := o.d.Now()
	rec := &models.Recording{
		ID:              uuid.New(),
		UserID:          req.UserID,
		Title:           "Recording " + now.In(o.d.Location).Format(TitleLayout),
		DurationSeconds: req.DurationSeconds,
		Format:          req.Format,
		CustomFormatID:  customID,
		Language:        req.Language,
		Status:          models.RecordingStatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if o.d.AudioKey != nil {
		rec.AudioKey = o.d.AudioKey(rec)
	}
	if err := o.d.Recordings.Create(ctx, rec); err != nil {
		metrics.IncAdmission("error")
		return nil, fmt.Errorf("create recording: %w", err)
	}

	if err := o.d.Quota.Charge(ctx, req.UserID, minutes); err != nil {
		metrics.IncAdmission("error")
		o.d.Logger.Error("charge failed", zap.String("recording_id", rec.ID.String()), zap.Error(err))
		_ = o.finalize(ctx, rec, models.Outcome{
			Status:       models.RecordingStatusFailed,
			ErrorStep:    models.StepOther,
			ErrorMessage: "usage accounting failed",
		})
		return nil, err
	}

	metrics.IncAdmission("admitted")
	o.publish(ctx, rec)
	return rec, nil
}

// FailUpload finalizes a recording whose audio could not be handed to the pipeline.
func (o *Orchestrator) FailUpload(ctx context.Context, rec *models.Recording, cause error) error {
	msg := "audio upload failed"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	metrics.ObserveStage(models.StepUpload, metrics.OutcomeFailure, 0)
	return o.finalize(ctx, rec, models.Outcome{
		Status:       models.RecordingStatusFailed,
		ErrorStep:    models.StepUpload,
		ErrorMessage: msg,
	})
}

// Expire finalizes a recording that stayed in processing too long.
func (o *Orchestrator) Expire(ctx context.Context, rec *models.Recording) error {
	return o.finalize(ctx, rec, models.Outcome{
		Status:       models.RecordingStatusFailed,
		Transcript:   rec.Transcript,
		ErrorStep:    models.StepOther,
		ErrorMessage: "processing timed out",
	})
}

// Run executes the pipeline for an admitted recording and always leaves it in a
// terminal status unless the store refuses the write. Stage failures are recorded
// on the row, not returned.
func (o *Orchestrator) Run(ctx context.Context, rec *models.Recording, audio []byte) (err error) {
	log := o.d.Logger.With(zap.String("recording_id", rec.ID.String()), zap.String("format", rec.Format))
	defer func() {
		if p := recover(); p != nil {
			log.Error("pipeline panic", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			out := models.Outcome{
				Status:       models.RecordingStatusFailed,
				Transcript:   rec.Transcript,
				ErrorStep:    models.StepOther,
				ErrorMessage: fmt.Sprintf("internal error: %v", p),
			}
			if ferr := o.finalize(context.WithoutCancel(ctx), rec, out); ferr != nil {
				err = errors.Join(errPanic, ferr)
				return
			}
			err = errPanic
		}
	}()

	transcript, ok := o.transcribe(ctx, log, rec, audio)
	if !ok {
		return o.finalize(ctx, rec, models.Outcome{
			Status:       models.RecordingStatusFailed,
			ErrorStep:    models.StepTranscription,
			ErrorMessage: "transcription failed",
		})
	}

	src := o.template(ctx, log, rec, transcript)
	contentType := string(src.Key)

	start := time.Now()
	doc, ferr := o.d.Formatter.Format(ctx, transcript, src, o.d.Now())
	if ferr != nil {
		metrics.ObserveStage(models.StepFormatting, metrics.OutcomeFailure, time.Since(start))
		log.Warn("formatting failed", zap.Error(ferr))
		return o.finalize(ctx, rec, models.Outcome{
			Status:       models.RecordingStatusFailed,
			Transcript:   &transcript,
			ContentType:  contentType,
			ErrorStep:    models.StepFormatting,
			ErrorMessage: ferr.Error(),
		})
	}
	metrics.ObserveStage(models.StepFormatting, metrics.OutcomeSuccess, time.Since(start))

	refs, step, msg := o.deliver(ctx, log, rec, doc)
	content := doc.Content
	return o.finalize(ctx, rec, models.Outcome{
		Status:                models.RecordingStatusCompleted,
		Transcript:            &transcript,
		ContentType:           contentType,
		FormattedContent:      &content,
		DestinationReferences: refs,
		ErrorStep:             step,
		ErrorMessage:          msg,
	})
}

func (o *Orchestrator) transcribe(ctx context.Context, log *zap.Logger, rec *models.Recording, audio []byte) (string, bool) {
	start := time.Now()
	text, err := o.d.Transcriber.Transcribe(ctx, transcription.DetectAudio(audio), rec.Language)
	if err != nil {
		metrics.ObserveStage(models.StepTranscription, metrics.OutcomeFailure, time.Since(start))
		log.Warn("transcription failed", zap.Error(err))
		return "", false
	}
	metrics.ObserveStage(models.StepTranscription, metrics.OutcomeSuccess, time.Since(start))

	rec.Transcript = &text
	if err := o.d.Recordings.SaveTranscript(ctx, rec.ID, text); err != nil {
		// The terminal write carries the transcript again.
		log.Warn("save transcript failed", zap.Error(err))
	} else {
		o.publish(ctx, rec)
	}
	return text, true
}

// template picks the formatting source. Auto runs the classifier; a custom format
// that disappeared since admission falls back to the meeting template.
func (o *Orchestrator) template(ctx context.Context, log *zap.Logger, rec *models.Recording, transcript string) document.TemplateSource {
	switch rec.Format {
	case models.FormatAuto:
		start := time.Now()
		ct := o.d.Classifier.Classify(ctx, transcript)
		metrics.ObserveStage("classification", metrics.OutcomeSuccess, time.Since(start))
		log.Info("classified", zap.String("content_type", string(ct)))
		return document.BuiltIn(ct)
	case models.FormatCustom:
		metrics.ObserveStage("classification", metrics.OutcomeSkipped, 0)
		cf, err := o.resolveCustom(ctx, rec.UserID, rec.CustomFormatID)
		if err != nil {
			log.Warn("custom format unavailable, using meeting template", zap.Error(err))
			return document.BuiltIn(document.Meeting)
		}
		return document.Custom(cf.Name, cf.Prompt)
	default:
		metrics.ObserveStage("classification", metrics.OutcomeSkipped, 0)
		return document.BuiltIn(document.ContentType(rec.Format))
	}
}

func (o *Orchestrator) resolveCustom(ctx context.Context, userID uuid.UUID, id *uuid.UUID) (*models.CustomFormat, error) {
	if o.d.CustomFormats == nil {
		return nil, ErrCustomFormatNotFound
	}
	var (
		cf  *models.CustomFormat
		err error
	)
	if id != nil {
		cf, err = o.d.CustomFormats.Get(ctx, userID, *id)
	} else {
		cf, err = o.d.CustomFormats.GetDefault(ctx, userID)
	}
	if err != nil || cf == nil {
		return nil, fmt.Errorf("%w: %v", ErrCustomFormatNotFound, err)
	}
	return cf, nil
}

// deliver fans the document out and reduces the results to the stored
// references and the first error worth surfacing.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, rec *models.Recording, doc document.Document) (map[string]string, string, string) {
	if o.d.Deliverer == nil || o.d.Integrations == nil || o.d.Targets == nil {
		return nil, "", ""
	}
	start := time.Now()
	settings, err := o.d.Integrations.GetByUser(ctx, rec.UserID)
	if err != nil {
		metrics.ObserveStage("delivery", metrics.OutcomeFailure, time.Since(start))
		log.Warn("integration lookup failed", zap.Error(err))
		return nil, models.StepOther, "destination lookup failed"
	}
	targets := o.d.Targets(settings)
	if targets.Empty() {
		metrics.ObserveStage("delivery", metrics.OutcomeSkipped, 0)
		return nil, "", ""
	}

	results := o.d.Deliverer.Deliver(ctx, delivery.Document{
		RecordingID: rec.ID,
		Title:       doc.Title,
		Content:     doc.Content,
		Format:      rec.Format,
		CreatedAt:   rec.CreatedAt,
	}, targets)
	refs, step, msg := Summarize(results)

	outcome := metrics.OutcomeSuccess
	if step != "" {
		outcome = metrics.OutcomeFailure
	}
	metrics.ObserveStage("delivery", outcome, time.Since(start))
	return refs, step, msg
}

// Summarize collects successful references and the first destination failure.
// A notifier failure only counts when no document destination was attempted.
func Summarize(results []delivery.Result) (refs map[string]string, step, msg string) {
	docTargets := false
	for _, r := range results {
		if !r.Notification {
			docTargets = true
			break
		}
	}
	for _, r := range results {
		if r.Err == nil {
			if r.URL != "" {
				if refs == nil {
					refs = make(map[string]string)
				}
				refs[r.Destination] = r.URL
			}
			continue
		}
		if r.Notification && docTargets {
			continue
		}
		if step == "" {
			step = stepFor(r.Destination)
			msg = r.Err.Error()
		}
	}
	return refs, step, msg
}

func stepFor(destination string) string {
	switch destination {
	case models.StepNotion, models.StepSlack:
		return destination
	}
	return models.StepOther
}

func (o *Orchestrator) finalize(ctx context.Context, rec *models.Recording, out models.Outcome) error {
	log := o.d.Logger.With(zap.String("recording_id", rec.ID.String()))
	if err := o.d.Recordings.Finalize(ctx, rec.ID, out); err != nil {
		if errors.Is(err, ErrAlreadyFinalized) {
			log.Warn("recording already finalized", zap.String("status", out.Status))
			return err
		}
		log.Error("finalize failed", zap.Error(err))
		return fmt.Errorf("finalize recording: %w", err)
	}
	apply(rec, out, o.d.Now())
	metrics.IncFinalized(out.Status, out.ErrorStep)
	log.Info("recording finalized", zap.String("status", out.Status), zap.String("step", out.ErrorStep))
	o.publish(ctx, rec)
	return nil
}

func apply(rec *models.Recording, out models.Outcome, now time.Time) {
	rec.Status = out.Status
	if out.Transcript != nil {
		rec.Transcript = out.Transcript
	}
	if out.ContentType != "" {
		ct := out.ContentType
		rec.ContentType = &ct
	}
	if out.FormattedContent != nil {
		rec.FormattedContent = out.FormattedContent
	}
	if out.DestinationReferences != nil {
		rec.DestinationReferences = out.DestinationReferences
	}
	if out.ErrorStep != "" {
		step, msg := out.ErrorStep, out.ErrorMessage
		rec.ErrorStep, rec.ErrorMessage = &step, &msg
	}
	rec.UpdatedAt = now
}

func (o *Orchestrator) publish(ctx context.Context, rec *models.Recording) {
	if o.d.Publisher == nil {
		return
	}
	if err := o.d.Publisher.PublishRecording(context.WithoutCancel(ctx), rec); err != nil {
		o.d.Logger.Debug("publish recording event", zap.String("recording_id", rec.ID.String()), zap.Error(err))
	}
}
