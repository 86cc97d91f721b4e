// Package app wires configuration into the long-lived components shared by
// the server and the command line tools.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"compliance-rag-assistant/internal/ai"
	"compliance-rag-assistant/internal/config"
	"compliance-rag-assistant/internal/crawler"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/internal/pipeline"
	"compliance-rag-assistant/internal/prompt"
	"compliance-rag-assistant/internal/telemetry"
	"compliance-rag-assistant/internal/vectorstore"
	"compliance-rag-assistant/services"

	"github.com/redis/go-redis/v9"
)

// App holds one instance of every component. Build it once per process.
type App struct {
	Config    *config.Config
	Metrics   *telemetry.Metrics
	Redis     *redis.Client
	Embedder  ai.Embedder
	Generator ai.Generator
	Index     *vectorstore.Store
	Pipeline  *pipeline.Context

	closers []func()
}

// New builds every component from cfg. A persisted index built with another
// embedding dimension fails here with a DimensionMismatchError.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdownTracer)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	a.Metrics = metrics

	// Redis only backs the embedding cache and request limiting, so an
	// unreachable server degrades instead of failing startup.
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache and rate limiting", "error", err)
	} else if rdb != nil {
		a.Redis = rdb
		a.closers = append(a.closers, func() { rdb.Close() })
	}

	table, err := prompt.LoadReferenceTable(cfg.ReferenceLinksPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Embedder, err = ai.NewEmbedder(ctx, cfg, a.Redis, metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	a.addCloser(a.Embedder)

	a.Generator, err = ai.NewGenerator(ctx, cfg, metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init generator: %w", err)
	}
	a.addCloser(a.Generator)

	a.Index, err = vectorstore.Open(cfg.IndexPath, a.Embedder.Dimension(), a.Embedder.ModelID(), SearcherFactory(cfg.IndexAlgorithm))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Pipeline, err = pipeline.New(a.Embedder, a.Index, prompt.NewAssembler(table), a.Generator, cfg.TopK, metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("Components ready",
		"embeddings_provider", cfg.EmbeddingsProvider,
		"embedding_model", a.Embedder.ModelID(),
		"generation_model", a.Generator.ModelID(),
		"index_path", cfg.IndexPath,
		"index_algorithm", cfg.IndexAlgorithm,
		"index_chunks", a.Index.Len(),
		"reference_table_version", table.Version,
	)
	return a, nil
}

// SearcherFactory maps an INDEX_ALGORITHM value to a searcher.
func SearcherFactory(algorithm string) vectorstore.SearcherFactory {
	if algorithm == config.IndexHNSW {
		return vectorstore.NewHNSW(vectorstore.DefaultHNSWConfig())
	}
	return vectorstore.NewFlat
}

// Ingestion returns a service that writes into the app's index.
func (a *App) Ingestion() (*services.IngestionService, error) {
	splitter, err := services.NewTextSplitter(a.Config.ChunkSize, a.Config.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	return services.NewIngestionService(splitter, a.Embedder, a.Index, a.Metrics), nil
}

// Sources is the configured ingestion input.
func (a *App) Sources() crawler.SourceConfig {
	return crawler.SourceConfig{
		URLs:     a.Config.SourceURLs,
		Files:    a.Config.SourceFiles,
		Selector: a.Config.ContentSelector,
		RenderJS: a.Config.RenderJS,
		Timeout:  a.Config.RequestTimeout,
	}
}

// rebuildSuffix names the sibling file a rebuild writes before it replaces
// the live index.
const rebuildSuffix = ".rebuild"

// RunIngest ingests the configured sources into cfg.IndexPath and returns
// the report and the resulting chunk count. With rebuild the fresh index is
// built next to IndexPath and renamed over it only after every source was
// embedded, so a failed run leaves the previous index in place.
func RunIngest(ctx context.Context, cfg *config.Config, rebuild bool) (*services.IngestReport, int, error) {
	target := cfg.IndexPath
	build := *cfg
	if rebuild {
		build.IndexPath = target + rebuildSuffix
		removeFiles(build.IndexPath, build.IndexPath+".tmp", target+".tmp")
	}

	report, chunks, err := ingestInto(ctx, &build)
	if err != nil {
		if rebuild {
			removeFiles(build.IndexPath, build.IndexPath+".tmp")
		}
		return nil, 0, err
	}

	if rebuild {
		if err := os.Rename(build.IndexPath, target); err != nil {
			removeFiles(build.IndexPath)
			return nil, 0, fmt.Errorf("replace index: %w", err)
		}
		logger.Info("Index rebuilt", "index_path", target, "chunks", chunks)
	}
	return report, chunks, nil
}

func ingestInto(ctx context.Context, cfg *config.Config) (*services.IngestReport, int, error) {
	a, err := New(ctx, cfg)
	if err != nil {
		return nil, 0, err
	}
	defer a.Close()

	svc, err := a.Ingestion()
	if err != nil {
		return nil, 0, err
	}
	report, err := svc.IngestSources(ctx, a.Sources())
	if err != nil {
		return nil, 0, err
	}
	// a run that added nothing still leaves a file to swap in
	if err := a.Index.Save(); err != nil {
		return nil, 0, fmt.Errorf("save index: %w", err)
	}
	return report, a.Index.Len(), nil
}

func removeFiles(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove file", "path", p, "error", err)
		}
	}
}

func (a *App) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				logger.Warn("Close failed", "error", err)
			}
		})
	}
}

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
