package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/llm"
	"github.com/voxnote/backend/internal/models"
)

// ErrFormattingFailed is returned when generation fails or yields no content.
var ErrFormattingFailed = errors.New("formatting failed")

const (
	formatTemperature = 0.5
	formatMaxTokens   = 4096
)

const formatterSystem = `You structure transcripts into well organized Markdown documents.
Write in the same language as the transcript. Do not invent facts that are not in the transcript.`

const outputContract = `Return the result in exactly this format and nothing else:
[TITLE]a concise title for the document[/TITLE]
[CONTENT]
the Markdown document
[/CONTENT]`

// TemplateSource is either a built-in template key or a user custom prompt.
type TemplateSource struct {
	Key          ContentType
	CustomName   string
	CustomPrompt string
}

// BuiltIn selects a built-in template.
func BuiltIn(key ContentType) TemplateSource { return TemplateSource{Key: key} }

// Custom selects a user custom prompt.
func Custom(name, prompt string) TemplateSource {
	return TemplateSource{Key: models.FormatCustom, CustomName: name, CustomPrompt: prompt}
}

// IsCustom reports whether the source is a user prompt.
func (s TemplateSource) IsCustom() bool { return s.CustomPrompt != "" }

// Formatter applies templates to transcripts.
type Formatter struct {
	gen       llm.Generator
	templates *Templates
	loc       *time.Location
	logger    *zap.Logger
}

// NewFormatter creates a formatter with the embedded built-in templates. Dates are
// rendered in loc (UTC when nil).
func NewFormatter(gen llm.Generator, loc *time.Location, logger *zap.Logger) (*Formatter, error) {
	tpls, err := LoadTemplates()
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{gen: gen, templates: tpls, loc: loc, logger: logger}, nil
}

// BuildPrompt renders the generation prompt for transcript.
func (f *Formatter) BuildPrompt(transcript string, src TemplateSource, now time.Time) string {
	date := FormatDate(now, f.loc)
	body := f.templates.Get(src.Key).Body
	if src.IsCustom() {
		body = src.CustomPrompt
		if !strings.Contains(body, models.PlaceholderTranscript) {
			body += "\n\nTranscript:\n" + models.PlaceholderTranscript
		}
	}
	return Interpolate(body, transcript, date) + "\n\n" + outputContract
}

// FallbackTitle is used when the model output has no [TITLE] segment.
func (f *Formatter) FallbackTitle(src TemplateSource, now time.Time) string {
	label := f.templates.Get(src.Key).Label
	if src.IsCustom() && src.CustomName != "" {
		label = src.CustomName
	}
	return label + " " + FormatDate(now, f.loc)
}

// Format runs one generation call and parses the delimited output.
func (f *Formatter) Format(ctx context.Context, transcript string, src TemplateSource, now time.Time) (Document, error) {
	out, err := f.gen.Generate(ctx, llm.Request{
		System:      formatterSystem,
		Prompt:      f.BuildPrompt(transcript, src, now),
		Temperature: formatTemperature,
		MaxTokens:   formatMaxTokens,
	})
	if err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrFormattingFailed, err)
	}
	doc, structured := ParseOutput(out, f.FallbackTitle(src, now))
	if doc.Content == "" {
		return Document{}, fmt.Errorf("%w: empty model output", ErrFormattingFailed)
	}
	if !structured {
		f.logger.Warn("formatter output missing delimiters, using fallback title", zap.String("title", doc.Title))
	}
	return doc, nil
}
