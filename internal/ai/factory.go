package ai

import (
	"context"
	"fmt"

	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

// NewEmbedder builds the configured embedding backend, wrapped in the Redis
// cache when rdb is non-nil.
func NewEmbedder(ctx context.Context, cfg *config.Config, rdb *redis.Client, metrics *telemetry.Metrics) (Embedder, error) {
	var e Embedder
	switch cfg.EmbeddingsProvider {
	case config.ProviderGoogle:
		ge, err := NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModelID, cfg.ProviderRPM, metrics)
		if err != nil {
			return nil, err
		}
		e = ge
	case config.ProviderOpenAI:
		e = NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModelID, cfg.ProviderRPM, metrics)
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %s", cfg.EmbeddingsProvider)
	}
	return NewCachedEmbedder(e, rdb, cfg.CacheTTL), nil
}

// NewGenerator builds the configured generation backend.
func NewGenerator(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (Generator, error) {
	switch cfg.GenerationProvider {
	case config.ProviderGoogle:
		return NewGeminiClient(ctx, GeminiOptions{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GenerationModelID,
			Temperature: float32(cfg.GenerationTemperature),
			RPM:         cfg.ProviderRPM,
			Metrics:     metrics,
		})
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GenerationModelID,
			float32(cfg.GenerationTemperature), cfg.ProviderRPM, metrics), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.GenerationProvider)
	}
}
