// Package document classifies transcripts and turns them into titled, structured
// Markdown documents through a text-generation call.
package document

import (
	"strings"
	"time"

	"github.com/voxnote/backend/internal/models"
)

// ContentType selects a built-in template.
type ContentType string

const (
	Meeting   ContentType = models.FormatMeeting
	Lecture   ContentType = models.FormatLecture
	Interview ContentType = models.FormatInterview
)

// DateLayout is the date format used in prompts and fallback titles.
const DateLayout = "2006/01/02"

// Document is the structured output of the formatter.
type Document struct {
	Title   string
	Content string
}

// FormatDate renders now in loc with DateLayout.
func FormatDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

// Interpolate replaces every {{transcript}} and {{date}} literally in a single
// pass, so placeholder text inside the transcript itself is left alone.
func Interpolate(prompt, transcript, date string) string {
	r := strings.NewReplacer(
		models.PlaceholderTranscript, transcript,
		models.PlaceholderDate, date,
	)
	return r.Replace(prompt)
}
