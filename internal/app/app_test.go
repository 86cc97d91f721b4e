package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/vectorstore"
	"compliance-rag-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openAIConfig builds clients without touching the network.
func openAIConfig(indexPath string) *config.Config {
	return &config.Config{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		TopK:               4,
		EmbeddingsProvider: config.ProviderOpenAI,
		EmbeddingModelID:   "text-embedding-3-small",
		GenerationProvider: config.ProviderOpenAI,
		GenerationModelID:  "gpt-4o-mini",
		OpenAIAPIKey:       "test-key",
		ProviderRPM:        60,
		IndexPath:          indexPath,
		IndexAlgorithm:     config.IndexFlat,
	}
}

func TestNewWiresFreshIndex(t *testing.T) {
	cfg := openAIConfig(filepath.Join(t.TempDir(), "index.gob"))

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.Zero(t, a.Index.Len())
	assert.Equal(t, 1536, a.Index.Dimension())
	assert.Equal(t, 4, a.Pipeline.TopK())

	svc, err := a.Ingestion()
	require.NoError(t, err)
	assert.NotNil(t, svc)
	assert.Equal(t, cfg.SourceURLs, a.Sources().URLs)
}

func TestNewRejectsIndexFromAnotherModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	old, err := vectorstore.Open(path, 768, "text-embedding-004", vectorstore.NewFlat)
	require.NoError(t, err)
	require.NoError(t, old.Add(context.Background(), []models.IndexEntry{
		{ChunkID: "c1", Text: "Form I-9", Vector: make768()},
	}))

	a, err := New(context.Background(), openAIConfig(path))
	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, models.ErrDimensionMismatch))

	var dm *models.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 768, dm.Stored)
	assert.Equal(t, 1536, dm.Provided)
}

func TestNewRejectsBrokenReferenceTable(t *testing.T) {
	cfg := openAIConfig(filepath.Join(t.TempDir(), "index.gob"))
	cfg.ReferenceLinksPath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg)
	var cerr *models.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "REFERENCE_LINKS_PATH", cerr.Key)
}

func TestSearcherFactory(t *testing.T) {
	assert.IsType(t, &vectorstore.HNSW{}, SearcherFactory(config.IndexHNSW)())
	assert.IsType(t, &vectorstore.Flat{}, SearcherFactory(config.IndexFlat)())
}

// fakeEmbeddings answers OpenAI embedding requests with 1536-dim vectors.
func fakeEmbeddings(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			v := make([]float32, 1536)
			v[i%1536] = 1
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": v}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-3-small"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// seedIndex writes a one-chunk index at path.
func seedIndex(t *testing.T, path string) {
	t.Helper()
	store, err := vectorstore.Open(path, 1536, "text-embedding-3-small", vectorstore.NewFlat)
	require.NoError(t, err)
	v := make([]float32, 1536)
	v[0] = 1
	require.NoError(t, store.Add(context.Background(), []models.IndexEntry{{ChunkID: "old", Text: "old chunk", Vector: v}}))
}

func TestRunIngestRebuildKeepsIndexOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.gob")
	seedIndex(t, path)
	require.NoError(t, os.WriteFile(path+".tmp", []byte("stale"), 0o644))

	cfg := openAIConfig(path)
	cfg.SourceURLs = nil
	cfg.SourceFiles = []string{filepath.Join(dir, "missing.txt")}

	_, _, err := RunIngest(context.Background(), cfg, true)
	require.Error(t, err)

	store, err := vectorstore.Open(path, 1536, "text-embedding-3-small", vectorstore.NewFlat)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Has("old"))
	assert.NoFileExists(t, path+rebuildSuffix)
	assert.NoFileExists(t, path+".tmp")
}

func TestRunIngestRebuildReplacesIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.gob")
	seedIndex(t, path)

	source := filepath.Join(dir, "i9.txt")
	require.NoError(t, os.WriteFile(source, []byte("Employers must complete Form I-9 for every new hire within three business days."), 0o644))

	cfg := openAIConfig(path)
	cfg.OpenAIBaseURL = fakeEmbeddings(t).URL + "/v1"
	cfg.SourceURLs = nil
	cfg.SourceFiles = []string{source}

	report, chunks, err := RunIngest(context.Background(), cfg, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, report.Added, chunks)
	assert.Positive(t, chunks)

	store, err := vectorstore.Open(path, 1536, "text-embedding-3-small", vectorstore.NewFlat)
	require.NoError(t, err)
	assert.Equal(t, chunks, store.Len())
	assert.False(t, store.Has("old"))
	assert.NoFileExists(t, path+rebuildSuffix)
	assert.Equal(t, path, cfg.IndexPath)
}

func TestRunIngestWithoutRebuildExtendsIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.gob")
	seedIndex(t, path)

	source := filepath.Join(dir, "e-verify.txt")
	require.NoError(t, os.WriteFile(source, []byte("E-Verify confirms employment eligibility."), 0o644))

	cfg := openAIConfig(path)
	cfg.OpenAIBaseURL = fakeEmbeddings(t).URL + "/v1"
	cfg.SourceURLs = nil
	cfg.SourceFiles = []string{source}

	_, chunks, err := RunIngest(context.Background(), cfg, false)
	require.NoError(t, err)
	assert.Equal(t, 2, chunks)
}

func make768() []float32 {
	v := make([]float32, 768)
	v[0] = 1
	return v
}
