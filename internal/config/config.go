package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"compliance-rag-assistant/models"

	"github.com/joho/godotenv"
)

const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"

	IndexFlat = "flat"
	IndexHNSW = "hnsw"

	// DefaultSourceURL is the page the assistant answers from out of the box.
	DefaultSourceURL = "https://www.uscis.gov/working-in-the-united-states/students-and-exchange-visitors/optional-practical-training-extension-for-stem-students-stem-opt"
	// DefaultContentSelector keeps only the main content region of that page.
	DefaultContentSelector = ".container.container--main"
)

type Config struct {
	// Chunking and retrieval
	ChunkSize    int
	ChunkOverlap int
	TopK         int

	// Providers
	EmbeddingsProvider    string
	EmbeddingModelID      string
	GenerationProvider    string
	GenerationModelID     string
	GenerationTemperature float64
	GeminiAPIKey          string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	ProviderRPM           int
	RequestTimeout        time.Duration

	// Index
	IndexPath          string
	IndexAlgorithm     string
	ReferenceLinksPath string

	// Ingestion sources
	SourceURLs      []string
	SourceFiles     []string
	ContentSelector string
	RenderJS        bool

	// Redis (embedding cache and request limiting), disabled when RedisURL is empty
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// HTTP
	Port            string
	GinMode         string
	CORSOrigins     []string
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

// LoadConfig reads .env (if present) and the environment, then validates.
// No client is created here, so a ConfigurationError always precedes any
// network traffic.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	embeddingsProvider := getEnv("EMBEDDINGS_PROVIDER", ProviderGoogle)
	generationProvider := getEnv("GENERATION_PROVIDER", ProviderGoogle)

	cfg := &Config{
		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		TopK:         getEnvInt("TOP_K", 4),

		EmbeddingsProvider:    embeddingsProvider,
		EmbeddingModelID:      getEnv("EMBEDDING_MODEL_ID", defaultEmbeddingModel(embeddingsProvider)),
		GenerationProvider:    generationProvider,
		GenerationModelID:     getEnv("GENERATION_MODEL_ID", defaultGenerationModel(generationProvider)),
		GenerationTemperature: getEnvFloat64("GENERATION_TEMPERATURE", 0),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		ProviderRPM:           getEnvInt("PROVIDER_RPM", 60),
		RequestTimeout:        getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		IndexPath:          getEnv("INDEX_PATH", "./data/index.gob"),
		IndexAlgorithm:     getEnv("INDEX_ALGORITHM", IndexFlat),
		ReferenceLinksPath: getEnv("REFERENCE_LINKS_PATH", ""),

		SourceURLs:      getEnvList("SOURCE_URLS", DefaultSourceURL),
		SourceFiles:     getEnvList("SOURCE_FILES", ""),
		ContentSelector: getEnv("CONTENT_SELECTOR", DefaultContentSelector),
		RenderJS:        getEnvBool("RENDER_JS", false),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 24*time.Hour),

		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		CORSOrigins:     getEnvList("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat64("OTEL_SAMPLE_RATIO", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required credentials and value ranges.
func (c *Config) Validate() error {
	if err := checkProvider("EMBEDDINGS_PROVIDER", c.EmbeddingsProvider); err != nil {
		return err
	}
	if err := checkProvider("GENERATION_PROVIDER", c.GenerationProvider); err != nil {
		return err
	}
	for _, p := range []string{c.EmbeddingsProvider, c.GenerationProvider} {
		switch {
		case p == ProviderGoogle && c.GeminiAPIKey == "":
			return &models.ConfigurationError{Key: "GEMINI_API_KEY", Reason: "is required - set it in .env file"}
		case p == ProviderOpenAI && c.OpenAIAPIKey == "":
			return &models.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "is required - set it in .env file"}
		}
	}

	if c.EmbeddingModelID == "" {
		return &models.ConfigurationError{Key: "EMBEDDING_MODEL_ID", Reason: "must not be empty"}
	}
	if c.GenerationModelID == "" {
		return &models.ConfigurationError{Key: "GENERATION_MODEL_ID", Reason: "must not be empty"}
	}
	if c.IndexPath == "" {
		return &models.ConfigurationError{Key: "INDEX_PATH", Reason: "must not be empty"}
	}
	if c.IndexAlgorithm != IndexFlat && c.IndexAlgorithm != IndexHNSW {
		return &models.ConfigurationError{Key: "INDEX_ALGORITHM", Reason: fmt.Sprintf("unknown algorithm %q", c.IndexAlgorithm)}
	}
	if c.ChunkSize <= 0 {
		return &models.ConfigurationError{Key: "CHUNK_SIZE", Reason: "must be positive"}
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return &models.ConfigurationError{Key: "CHUNK_OVERLAP", Reason: "must be in [0, CHUNK_SIZE)"}
	}
	if c.TopK <= 0 {
		return &models.ConfigurationError{Key: "TOP_K", Reason: "must be positive"}
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return &models.ConfigurationError{Key: "CORS_ORIGINS", Reason: fmt.Sprintf("invalid origin %q", origin)}
		}
	}
	if c.ProviderRPM <= 0 {
		return &models.ConfigurationError{Key: "PROVIDER_RPM", Reason: "must be positive"}
	}
	return nil
}

func checkProvider(key, value string) error {
	if value != ProviderGoogle && value != ProviderOpenAI {
		return &models.ConfigurationError{Key: key, Reason: fmt.Sprintf("unknown provider %q", value)}
	}
	return nil
}

func defaultEmbeddingModel(provider string) string {
	if provider == ProviderOpenAI {
		return "text-embedding-3-small"
	}
	return "text-embedding-004"
}

func defaultGenerationModel(provider string) string {
	if provider == ProviderOpenAI {
		return "gpt-4o-mini"
	}
	return "gemini-2.0-flash"
}
