package services

import (
	"context"
	"fmt"
	"time"

	"compliance-rag-assistant/internal/ai"
	"compliance-rag-assistant/internal/crawler"
	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/internal/telemetry"
	"compliance-rag-assistant/internal/vectorstore"
	"compliance-rag-assistant/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// IngestionService builds the index: load, split, embed, then one atomic
// insert.
type IngestionService struct {
	splitter *TextSplitter
	embedder ai.Embedder
	index    vectorstore.Index
	metrics  *telemetry.Metrics
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Added     int           `json:"added"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(splitter *TextSplitter, embedder ai.Embedder, index vectorstore.Index, metrics *telemetry.Metrics) *IngestionService {
	return &IngestionService{
		splitter: splitter,
		embedder: embedder,
		index:    index,
		metrics:  metrics,
	}
}

// IngestSources loads the configured sources and ingests them.
func (s *IngestionService) IngestSources(ctx context.Context, cfg crawler.SourceConfig) (*IngestReport, error) {
	docs, err := crawler.LoadSources(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return s.Ingest(ctx, docs)
}

// Ingest chunks and embeds docs and adds them to the index in a single
// batch. Chunks already in the index are skipped. On any error the index
// is left unchanged.
func (s *IngestionService) Ingest(ctx context.Context, docs []models.Document) (*IngestReport, error) {
	tracer := otel.Tracer("ingestion")
	ctx, span := tracer.Start(ctx, "ingestion.ingest")
	defer span.End()

	start := time.Now()
	chunks := s.splitter.Split(docs)
	report := &IngestReport{Documents: len(docs), Chunks: len(chunks)}

	pending := make([]models.Chunk, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if seen[c.ID] || s.index.Has(c.ID) {
			report.Skipped++
			continue
		}
		seen[c.ID] = true
		pending = append(pending, c)
	}
	span.SetAttributes(
		attribute.Int("ingest.documents", len(docs)),
		attribute.Int("ingest.chunks", len(chunks)),
		attribute.Int("ingest.pending", len(pending)),
	)

	if len(pending) == 0 {
		report.Duration = time.Since(start)
		logger.Info("Nothing new to ingest", "documents", len(docs), "chunks", len(chunks))
		return report, nil
	}

	texts := make([]string, len(pending))
	for i, c := range pending {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(pending) {
		return nil, &models.ProviderUnavailableError{
			Provider: s.embedder.ModelID(),
			Err:      fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(pending)),
		}
	}

	entries := make([]models.IndexEntry, len(pending))
	perSource := make(map[string]int)
	for i, c := range pending {
		entries[i] = models.IndexEntry{
			Vector:   vectors[i],
			ChunkID:  c.ID,
			Text:     c.Text,
			Metadata: c.Metadata,
		}
		perSource[c.Source]++
	}
	if err := s.index.Add(ctx, entries); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("add to index: %w", err)
	}

	for source, n := range perSource {
		s.metrics.RecordIngest(ctx, n, source)
	}
	report.Added = len(entries)
	report.Duration = time.Since(start)
	logger.Info("Ingestion complete",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"added", report.Added,
		"skipped", report.Skipped,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}
