package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxCustomFormats is the per-user limit on custom formats.
const MaxCustomFormats = 3

// Placeholders recognised in custom format prompts.
const (
	PlaceholderTranscript = "{{transcript}}"
	PlaceholderDate       = "{{date}}"
)

// CustomFormat is a user-defined structuring template.
type CustomFormat struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
