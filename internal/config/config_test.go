package config

import (
	"errors"
	"testing"

	"compliance-rag-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"EMBEDDINGS_PROVIDER", "GENERATION_PROVIDER", "EMBEDDING_MODEL_ID", "GENERATION_MODEL_ID",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "CHUNK_SIZE", "CHUNK_OVERLAP", "TOP_K",
		"INDEX_PATH", "INDEX_ALGORITHM", "SOURCE_URLS", "SOURCE_FILES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.TopK)
	assert.Equal(t, "text-embedding-004", cfg.EmbeddingModelID)
	assert.Equal(t, "gemini-2.0-flash", cfg.GenerationModelID)
	assert.Equal(t, IndexFlat, cfg.IndexAlgorithm)
	assert.Equal(t, []string{DefaultSourceURL}, cfg.SourceURLs)
	assert.Empty(t, cfg.SourceFiles)
}

func TestLoadConfigMissingCredential(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{"gemini key", map[string]string{}, "GEMINI_API_KEY"},
		{"openai key for embeddings", map[string]string{
			"GEMINI_API_KEY":      "g",
			"EMBEDDINGS_PROVIDER": ProviderOpenAI,
		}, "OPENAI_API_KEY"},
		{"openai key for generation", map[string]string{
			"GEMINI_API_KEY":      "g",
			"GENERATION_PROVIDER": ProviderOpenAI,
		}, "OPENAI_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errors.Is(err, models.ErrConfiguration))

			var cerr *models.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantKey, cerr.Key)
		})
	}
}

func TestValidateRanges(t *testing.T) {
	base := func() *Config {
		return &Config{
			ChunkSize: 1000, ChunkOverlap: 200, TopK: 4, ProviderRPM: 60,
			EmbeddingsProvider: ProviderGoogle, GenerationProvider: ProviderGoogle,
			EmbeddingModelID: "e", GenerationModelID: "g", GeminiAPIKey: "k",
			IndexPath: "index.gob", IndexAlgorithm: IndexFlat,
		}
	}
	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"overlap too large", func(c *Config) { c.ChunkOverlap = 1000 }, "CHUNK_OVERLAP"},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, "CHUNK_OVERLAP"},
		{"zero top k", func(c *Config) { c.TopK = 0 }, "TOP_K"},
		{"unknown provider", func(c *Config) { c.EmbeddingsProvider = "cohere" }, "EMBEDDINGS_PROVIDER"},
		{"unknown algorithm", func(c *Config) { c.IndexAlgorithm = "ivf" }, "INDEX_ALGORITHM"},
		{"empty index path", func(c *Config) { c.IndexPath = "" }, "INDEX_PATH"},
		{"empty model", func(c *Config) { c.GenerationModelID = "" }, "GENERATION_MODEL_ID"},
		{"bare origin", func(c *Config) { c.CORSOrigins = []string{"localhost:3000"} }, "CORS_ORIGINS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			var cerr *models.ConfigurationError
			require.ErrorAs(t, cfg.Validate(), &cerr)
			assert.Equal(t, tt.key, cerr.Key)
		})
	}
}

func TestNewRedisClientDisabled(t *testing.T) {
	rdb, err := NewRedisClient(&Config{})
	assert.NoError(t, err)
	assert.Nil(t, rdb)
}
