package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"compliance-rag-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReferenceTable(t *testing.T) {
	table := DefaultReferenceTable()
	assert.Equal(t, 1, table.Version)
	assert.Len(t, table.Links, 6)
	assert.Len(t, table.Notes, 2)

	l, ok := table.Lookup("i-983")
	require.True(t, ok)
	assert.Equal(t, "https://www.ice.gov/doclib/sevis/pdf/i983.pdf", l.URL)

	_, ok = table.Lookup("I-20")
	assert.False(t, ok)
}

func TestParseReferenceTableValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero version", "version: 0\nlinks:\n  - {code: I-9, url: https://example.com/i9.pdf}\n"},
		{"no links", "version: 1\nlinks: []\n"},
		{"empty code", "version: 1\nlinks:\n  - {code: ' ', url: https://example.com/a.pdf}\n"},
		{"duplicate code", "version: 1\nlinks:\n  - {code: I-9, url: https://example.com/a.pdf}\n  - {code: i-9, url: https://example.com/b.pdf}\n"},
		{"relative url", "version: 1\nlinks:\n  - {code: I-9, url: /forms/i-9.pdf}\n"},
		{"ftp url", "version: 1\nlinks:\n  - {code: I-9, url: ftp://example.com/i-9.pdf}\n"},
		{"unknown field", "version: 1\nlink:\n  - {code: I-9, url: https://example.com/a.pdf}\n"},
		{"not yaml", "version: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReferenceTable([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseReferenceTableDefaultsTitle(t *testing.T) {
	table, err := ParseReferenceTable([]byte("version: 2\nlinks:\n  - {code: W-4, url: https://www.irs.gov/pub/irs-pdf/fw4.pdf}\n"))
	require.NoError(t, err)
	assert.Equal(t, "Form W-4", table.Links[0].Title)
	assert.Equal(t, 2, table.Version)
}

func TestLoadReferenceTable(t *testing.T) {
	table, err := LoadReferenceTable("")
	require.NoError(t, err)
	assert.Equal(t, 1, table.Version)

	path := filepath.Join(t.TempDir(), "links.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 3\nlinks:\n  - {code: DS-160, title: DS-160, url: https://ceac.state.gov/genniv/}\n"), 0o644))
	table, err = LoadReferenceTable(path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Version)

	_, err = LoadReferenceTable(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "REFERENCE_LINKS_PATH", cfgErr.Key)

	require.NoError(t, os.WriteFile(path, []byte("version: 1\nlinks: []\n"), 0o644))
	_, err = LoadReferenceTable(path)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestMentioned(t *testing.T) {
	table := DefaultReferenceTable()

	got := table.Mentioned("File Form I-983 with your DSO, then submit form i-765. Keep your I-94 record.")
	codes := make([]string, len(got))
	for i, l := range got {
		codes[i] = l.Code
	}
	assert.Equal(t, []string{"I-765", "I-983"}, codes)

	assert.Empty(t, table.Mentioned("No forms here."))
	assert.Len(t, table.Mentioned("Complete the I-9."), 1)
}
