package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus values. A recording starts in processing and moves to exactly one terminal status.
const (
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// Recording formats chosen at upload.
const (
	FormatMeeting   = "meeting"
	FormatInterview = "interview"
	FormatLecture   = "lecture"
	FormatCustom    = "custom"
	FormatAuto      = "auto"
)

// Error steps recorded when a stage fails.
const (
	StepUpload        = "upload"
	StepTranscription = "transcription"
	StepFormatting    = "formatting"
	StepNotion        = "notion"
	StepSlack         = "slack"
	StepOther         = "other"
)

// ValidFormat reports whether f is an accepted upload format.
func ValidFormat(f string) bool {
	switch f {
	case FormatMeeting, FormatInterview, FormatLecture, FormatCustom, FormatAuto:
		return true
	}
	return false
}

// IsTerminalStatus reports whether status is completed or failed.
func IsTerminalStatus(status string) bool {
	return status == RecordingStatusCompleted || status == RecordingStatusFailed
}

// Recording is one user capture and its pipeline progress/results.
type Recording struct {
	ID                    uuid.UUID         `json:"id"`
	UserID                uuid.UUID         `json:"user_id"`
	Title                 string            `json:"title"`
	DurationSeconds       int               `json:"duration_seconds"`
	Format                string            `json:"format"`
	CustomFormatID        *uuid.UUID        `json:"custom_format_id,omitempty"`
	ContentType           *string           `json:"content_type,omitempty"`
	Language              string            `json:"language,omitempty"`
	AudioKey              string            `json:"-"`
	Status                string            `json:"status"`
	Transcript            *string           `json:"transcript"`
	FormattedContent      *string           `json:"formatted_content"`
	DestinationReferences map[string]string `json:"destination_references"`
	ErrorMessage          *string           `json:"error_message"`
	ErrorStep             *string           `json:"error_step"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// RecordingSummary is the list view of a recording.
type RecordingSummary struct {
	ID              uuid.UUID `json:"id"`
	Title           string    `json:"title"`
	DurationSeconds int       `json:"duration_seconds"`
	Format          string    `json:"format"`
	Status          string    `json:"status"`
	ErrorStep       *string   `json:"error_step"`
	CreatedAt       time.Time `json:"created_at"`
}

// Outcome is the terminal write for a recording. Nil pointers leave the stored
// column untouched.
type Outcome struct {
	Status                string
	Transcript            *string
	ContentType           string
	FormattedContent      *string
	DestinationReferences map[string]string
	ErrorStep             string
	ErrorMessage          string
}
