package document

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voxnote/backend/internal/llm"
)

type fakeGenerator struct {
	out  string
	err  error
	last llm.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.last = req
	return g.out, g.err
}

var placeholder = regexp.MustCompile(`\{\{[^}]*\}\}`)

func fixedNow() time.Time { return time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC) }

func tokyo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

func TestInterpolateCustomPrompt(t *testing.T) {
	date := FormatDate(fixedNow(), tokyo(t))
	require.Equal(t, "2026/03/10", date)

	out := Interpolate("Summarize: {{transcript}} on {{date}}", "hello", date)
	require.Contains(t, out, "Summarize: hello on 2026/03/10")
	require.False(t, placeholder.MatchString(out))
}

func TestInterpolateReplacesEveryOccurrenceAndLeavesTranscriptAlone(t *testing.T) {
	out := Interpolate("{{date}} {{transcript}} {{date}}", "say {{date}} literally", "D")
	require.Equal(t, "D say {{date}} literally D", out)
}

func TestBuildPromptForCustomFormat(t *testing.T) {
	f, err := NewFormatter(&fakeGenerator{}, tokyo(t), nil)
	require.NoError(t, err)

	prompt := f.BuildPrompt("hello", Custom("Daily", "Summarize: {{transcript}} on {{date}}"), fixedNow())
	require.Contains(t, prompt, "Summarize: hello on 2026/03/10")
	require.Contains(t, prompt, "[TITLE]")
	require.NotContains(t, prompt, "{{transcript}}")
	require.NotContains(t, prompt, "{{date}}")
}

func TestBuildPromptAppendsTranscriptWhenPlaceholderMissing(t *testing.T) {
	f, err := NewFormatter(&fakeGenerator{}, time.UTC, nil)
	require.NoError(t, err)

	prompt := f.BuildPrompt("the words", Custom("Short", "Make it short."), fixedNow())
	require.Contains(t, prompt, "Make it short.\n\nTranscript:\nthe words")
}

func TestBuildPromptForBuiltIns(t *testing.T) {
	f, err := NewFormatter(&fakeGenerator{}, time.UTC, nil)
	require.NoError(t, err)

	for _, key := range []ContentType{Meeting, Lecture, Interview} {
		prompt := f.BuildPrompt("transcript body", BuiltIn(key), fixedNow())
		require.Contains(t, prompt, "transcript body", key)
		require.Contains(t, prompt, "2026/03/09", key)
		require.False(t, placeholder.MatchString(prompt), key)
	}
}

func TestFormatExtractsDelimitedSegments(t *testing.T) {
	gen := &fakeGenerator{out: "[TITLE]Weekly sync[/TITLE]\n[CONTENT]\n## Summary\n- shipped\n## Action Items\n- [ ] Ken: deploy\n[/CONTENT]"}
	f, err := NewFormatter(gen, time.UTC, nil)
	require.NoError(t, err)

	doc, err := f.Format(context.Background(), "we shipped", BuiltIn(Meeting), fixedNow())
	require.NoError(t, err)
	require.Equal(t, "Weekly sync", doc.Title)
	require.True(t, strings.HasPrefix(doc.Content, "## Summary"))
	require.Contains(t, doc.Content, "## Action Items")
	require.InDelta(t, formatTemperature, gen.last.Temperature, 0.0001)
	require.Greater(t, gen.last.Temperature, 0.0)
}

func TestFormatFallsBackWhenDelimitersMissing(t *testing.T) {
	gen := &fakeGenerator{out: "## Overview\nThe lecture covered Go."}
	f, err := NewFormatter(gen, time.UTC, nil)
	require.NoError(t, err)

	doc, err := f.Format(context.Background(), "t", BuiltIn(Lecture), fixedNow())
	require.NoError(t, err)
	require.Equal(t, "Lecture notes 2026/03/09", doc.Title)
	require.Equal(t, "## Overview\nThe lecture covered Go.", doc.Content)
}

func TestFormatFailsOnGenerationError(t *testing.T) {
	f, err := NewFormatter(&fakeGenerator{err: errors.New("503")}, time.UTC, nil)
	require.NoError(t, err)

	_, err = f.Format(context.Background(), "t", BuiltIn(Meeting), fixedNow())
	require.ErrorIs(t, err, ErrFormattingFailed)
}

func TestFormatFailsOnEmptyOutput(t *testing.T) {
	f, err := NewFormatter(&fakeGenerator{out: "  "}, time.UTC, nil)
	require.NoError(t, err)

	_, err = f.Format(context.Background(), "t", BuiltIn(Meeting), fixedNow())
	require.ErrorIs(t, err, ErrFormattingFailed)
}

func TestParseOutput(t *testing.T) {
	cases := []struct {
		name       string
		raw        string
		title      string
		content    string
		structured bool
	}{
		{"both segments", "[TITLE] T [/TITLE][CONTENT]body[/CONTENT]", "T", "body", true},
		{"no delimiters", "just text", "Fallback", "just text", false},
		{"title only", "[TITLE]T[/TITLE]\nbody here", "T", "body here", false},
		{"truncated content", "[TITLE]T[/TITLE][CONTENT]cut off", "T", "cut off", true},
		{"markdown heading title", "[TITLE]# Heading[/TITLE][CONTENT]x[/CONTENT]", "Heading", "x", true},
		{"empty title", "[TITLE] [/TITLE][CONTENT]x[/CONTENT]", "Fallback", "x", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, structured := ParseOutput(tc.raw, "Fallback")
			require.Equal(t, tc.title, doc.Title)
			require.Equal(t, tc.content, doc.Content)
			require.Equal(t, tc.structured, structured)
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		out  string
		err  error
		want ContentType
	}{
		{out: "lecture", want: Lecture},
		{out: " Lecture.\n", want: Lecture},
		{out: "meeting", want: Meeting},
		{out: "", want: Meeting},
		{out: "this is probably a lecture", want: Meeting},
		{out: "interview", want: Meeting},
		{err: errors.New("down"), want: Meeting},
	}
	for _, tc := range cases {
		gen := &fakeGenerator{out: tc.out, err: tc.err}
		got := NewClassifier(gen, nil).Classify(context.Background(), "transcript")
		require.Equal(t, tc.want, got, "output %q", tc.out)
		require.Zero(t, gen.last.Temperature)
	}
}

func TestLoadTemplatesRejectsMissingBuiltIn(t *testing.T) {
	_, err := parseTemplates([]byte("meeting:\n  label: M\n  body: x\n"))
	require.Error(t, err)

	tpls, err := LoadTemplates()
	require.NoError(t, err)
	require.Equal(t, []string{"interview", "lecture", "meeting"}, tpls.Keys())
	require.Equal(t, "Meeting notes", tpls.Get("unknown").Label)
}
