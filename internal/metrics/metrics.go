// Package metrics exposes Prometheus counters for the recording pipeline.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxnote_pipeline_stage_total",
		Help: "Pipeline stage executions by stage and outcome",
	}, []string{"stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voxnote_pipeline_stage_duration_seconds",
		Help:    "Pipeline stage latency",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	finalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxnote_recordings_finalized_total",
		Help: "Recordings reaching a terminal status by status and error step",
	}, []string{"status", "error_step"})

	deliveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxnote_delivery_total",
		Help: "Delivery attempts by destination and outcome",
	}, []string{"destination", "outcome"})

	providerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxnote_transcription_provider_total",
		Help: "Speech-to-text provider attempts by provider and outcome",
	}, []string{"provider", "outcome"})

	admissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxnote_admissions_total",
		Help: "Upload admissions by result (admitted, quota_exceeded, error)",
	}, []string{"result"})
)

// ObserveStage records one stage execution.
func ObserveStage(stage, outcome string, d time.Duration) {
	s := normalizeStage(stage)
	stageTotal.WithLabelValues(s, normalizeOutcome(outcome)).Inc()
	if outcome != OutcomeSkipped {
		stageDuration.WithLabelValues(s).Observe(d.Seconds())
	}
}

// IncFinalized records a terminal transition.
// error_step is "none" for recordings that finished without a recorded failure.
func IncFinalized(status, errorStep string) {
	if errorStep == "" {
		errorStep = "none"
	}
	finalizedTotal.WithLabelValues(strings.ToLower(status), strings.ToLower(errorStep)).Inc()
}

// IncDelivery records one destination attempt.
func IncDelivery(destination string, ok bool) {
	deliveryTotal.WithLabelValues(strings.ToLower(destination), outcomeOf(ok)).Inc()
}

// IncProvider records one transcription provider attempt.
func IncProvider(provider string, ok bool) {
	providerTotal.WithLabelValues(strings.ToLower(provider), outcomeOf(ok)).Inc()
}

// IncAdmission records an upload admission result.
func IncAdmission(result string) {
	switch result {
	case "admitted", "quota_exceeded":
	default:
		result = "error"
	}
	admissionTotal.WithLabelValues(result).Inc()
}

func outcomeOf(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

func normalizeStage(stage string) string {
	switch s := strings.ToLower(strings.TrimSpace(stage)); s {
	case "upload", "transcription", "classification", "formatting", "delivery":
		return s
	default:
		return "other"
	}
}

func normalizeOutcome(outcome string) string {
	switch outcome {
	case OutcomeSuccess, OutcomeFailure, OutcomeSkipped:
		return outcome
	default:
		return OutcomeFailure
	}
}
