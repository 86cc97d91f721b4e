// Package prompt turns a question and retrieved chunks into the text sent
// to the generation model.
package prompt

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"compliance-rag-assistant/models"

	"gopkg.in/yaml.v3"
)

//go:embed reference_links.yaml
var defaultReferenceLinks []byte

// ReferenceLink is a downloadable document the model may link to.
type ReferenceLink struct {
	Code  string `yaml:"code" json:"code"`
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url" json:"url"`
}

// ReferenceTable is the versioned set of known document links plus
// free-form guidance for documents that cannot be downloaded.
type ReferenceTable struct {
	Version int             `yaml:"version" json:"version"`
	Links   []ReferenceLink `yaml:"links" json:"links"`
	Notes   []string        `yaml:"notes" json:"notes"`

	patterns []*regexp.Regexp
}

// DefaultReferenceTable returns the built-in table.
func DefaultReferenceTable() *ReferenceTable {
	t, err := ParseReferenceTable(defaultReferenceLinks)
	if err != nil {
		panic(fmt.Sprintf("built-in reference table: %v", err))
	}
	return t
}

// LoadReferenceTable reads a YAML table from path, or the built-in table
// when path is empty.
func LoadReferenceTable(path string) (*ReferenceTable, error) {
	if path == "" {
		return DefaultReferenceTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigurationError{Key: "REFERENCE_LINKS_PATH", Reason: err.Error()}
	}
	t, err := ParseReferenceTable(data)
	if err != nil {
		return nil, &models.ConfigurationError{Key: "REFERENCE_LINKS_PATH", Reason: fmt.Sprintf("%s: %v", path, err)}
	}
	return t, nil
}

// ParseReferenceTable decodes and validates a YAML table.
func ParseReferenceTable(data []byte) (*ReferenceTable, error) {
	var t ReferenceTable
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode reference table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the table and compiles the code matchers. Titles default
// to "Form <code>".
func (t *ReferenceTable) Validate() error {
	if t.Version <= 0 {
		return fmt.Errorf("version must be positive, got %d", t.Version)
	}
	if len(t.Links) == 0 {
		return fmt.Errorf("at least one link is required")
	}

	seen := make(map[string]bool, len(t.Links))
	t.patterns = make([]*regexp.Regexp, len(t.Links))
	for i := range t.Links {
		l := &t.Links[i]
		l.Code = strings.TrimSpace(l.Code)
		if l.Code == "" {
			return fmt.Errorf("link %d: code is empty", i)
		}
		key := strings.ToUpper(l.Code)
		if seen[key] {
			return fmt.Errorf("link %d: duplicate code %s", i, l.Code)
		}
		seen[key] = true

		u, err := url.Parse(l.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("link %s: %q is not an absolute http(s) URL", l.Code, l.URL)
		}
		if l.Title == "" {
			l.Title = "Form " + l.Code
		}
		t.patterns[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(l.Code) + `\b`)
	}
	return nil
}

// Lookup returns the link for a code, ignoring case.
func (t *ReferenceTable) Lookup(code string) (ReferenceLink, bool) {
	for _, l := range t.Links {
		if strings.EqualFold(l.Code, code) {
			return l, true
		}
	}
	return ReferenceLink{}, false
}

// Mentioned lists the links whose code appears in text as a whole token,
// in table order.
func (t *ReferenceTable) Mentioned(text string) []ReferenceLink {
	var out []ReferenceLink
	for i, l := range t.Links {
		if i < len(t.patterns) && t.patterns[i].MatchString(text) {
			out = append(out, l)
		}
	}
	return out
}
