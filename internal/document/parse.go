package document

import (
	"strings"
)

const (
	titleOpen    = "[TITLE]"
	titleClose   = "[/TITLE]"
	contentOpen  = "[CONTENT]"
	contentClose = "[/CONTENT]"
)

// ParseOutput extracts the title and content segments from model output. It never
// fails: a missing title uses fallbackTitle and missing content markers make the
// whole response (minus any title segment) the content. structured reports whether
// both segments were found.
func ParseOutput(raw, fallbackTitle string) (doc Document, structured bool) {
	title, hasTitle, rest := cut(raw, titleOpen, titleClose)
	content, hasContent, _ := cut(raw, contentOpen, contentClose)

	title = cleanTitle(title)
	if title == "" {
		title = fallbackTitle
		hasTitle = false
	}
	if !hasContent {
		content = rest
		if i := strings.Index(content, contentOpen); i >= 0 {
			content = content[i+len(contentOpen):]
			hasContent = true
		}
	}
	return Document{Title: title, Content: strings.TrimSpace(content)}, hasTitle && hasContent
}

// cut returns the text between open and close. rest is s with that segment
// removed (or s unchanged when the pair is not present).
func cut(s, open, close string) (inner string, found bool, rest string) {
	i := strings.Index(s, open)
	if i < 0 {
		return "", false, s
	}
	j := strings.Index(s[i+len(open):], close)
	if j < 0 {
		return "", false, s
	}
	start := i + len(open)
	inner = s[start : start+j]
	rest = s[:i] + s[start+j+len(close):]
	return inner, true, rest
}

func cleanTitle(t string) string {
	t = strings.TrimSpace(t)
	t = strings.TrimLeft(t, "# ")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
