package document

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/voxnote/backend/internal/llm"
)

const classifierSystem = `You classify recording transcripts.
Answer with exactly one word: "meeting" or "lecture".
Use "lecture" for talks, classes, seminars and presentations given mainly by one speaker.
Use "meeting" for everything else.`

// classifySampleRunes bounds how much of the transcript is sent for classification.
const classifySampleRunes = 4000

// Classifier picks a built-in template for format "auto".
type Classifier struct {
	gen    llm.Generator
	logger *zap.Logger
}

// NewClassifier creates a classifier.
func NewClassifier(gen llm.Generator, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{gen: gen, logger: logger}
}

// Classify returns meeting or lecture. Generation errors and unparseable answers
// default to meeting so the pipeline keeps moving.
func (c *Classifier) Classify(ctx context.Context, transcript string) ContentType {
	out, err := c.gen.Generate(ctx, llm.Request{
		System:      classifierSystem,
		Prompt:      truncateRunes(transcript, classifySampleRunes),
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		c.logger.Warn("classification failed, defaulting to meeting", zap.Error(err))
		return Meeting
	}
	ct, ok := ParseContentType(out)
	if !ok {
		c.logger.Info("classification ambiguous, defaulting to meeting", zap.String("response", truncateRunes(out, 80)))
		return Meeting
	}
	return ct
}

// ParseContentType accepts a single label, ignoring case, surrounding space and punctuation.
func ParseContentType(s string) (ContentType, bool) {
	label := strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '`'
	}))
	switch ContentType(label) {
	case Meeting:
		return Meeting, true
	case Lecture:
		return Lecture, true
	}
	return Meeting, false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
