package document

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Template is a built-in structuring template.
type Template struct {
	Label string `yaml:"label"`
	Body  string `yaml:"body"`
}

// Templates holds built-in templates keyed by content type.
type Templates struct {
	byKey map[ContentType]Template
}

// LoadTemplates parses the embedded template definitions.
func LoadTemplates() (*Templates, error) {
	return parseTemplates(templatesYAML)
}

func parseTemplates(raw []byte) (*Templates, error) {
	var m map[string]Template
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	t := &Templates{byKey: make(map[ContentType]Template, len(m))}
	for k, v := range m {
		if v.Body == "" {
			return nil, fmt.Errorf("template %q has empty body", k)
		}
		t.byKey[ContentType(k)] = v
	}
	for _, required := range []ContentType{Meeting, Lecture, Interview} {
		if _, ok := t.byKey[required]; !ok {
			return nil, fmt.Errorf("missing built-in template %q", required)
		}
	}
	return t, nil
}

// Get returns the template for key; unknown keys fall back to meeting.
func (t *Templates) Get(key ContentType) Template {
	if tpl, ok := t.byKey[key]; ok {
		return tpl
	}
	return t.byKey[Meeting]
}

// Keys returns the available template keys, sorted.
func (t *Templates) Keys() []string {
	keys := make([]string, 0, len(t.byKey))
	for k := range t.byKey {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	return keys
}
