package ai

import (
	"context"
	"fmt"
	"sync/atomic"

	"compliance-rag-assistant/internal/telemetry"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
)

// maxEmbedBatch is the largest batch the embedding endpoint accepts.
const maxEmbedBatch = 100

// GeminiEmbedder embeds text with a Google embedding model
// (text-embedding-004 by default).
type GeminiEmbedder struct {
	client  *genai.Client
	docs    *genai.EmbeddingModel
	queries *genai.EmbeddingModel
	modelID string
	dim     atomic.Int64
	guard   *guard
	backend backend
}

func NewGeminiEmbedder(ctx context.Context, apiKey, model string, rpm int, metrics *telemetry.Metrics, extra ...option.ClientOption) (*GeminiEmbedder, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, extra...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}

	docs := client.EmbeddingModel(model)
	docs.TaskType = genai.TaskTypeRetrievalDocument
	queries := client.EmbeddingModel(model)
	queries.TaskType = genai.TaskTypeRetrievalQuery

	e := &GeminiEmbedder{
		client:  client,
		docs:    docs,
		queries: queries,
		modelID: model,
		guard:   newGuard("gemini-embed", rpm, metrics),
		backend: backend{
			provider: "google",
			model:    model,
			keyEnv:   "GEMINI_API_KEY",
			modelEnv: "EMBEDDING_MODEL_ID",
			embed:    true,
		},
	}
	e.dim.Store(int64(DimensionOf(model)))
	return e, nil
}

func (e *GeminiEmbedder) ModelID() string { return e.modelID }

func (e *GeminiEmbedder) Dimension() int { return int(e.dim.Load()) }

func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed")
	defer span.End()
	span.SetAttributes(attribute.String("gemini.model", e.modelID), attribute.Int("gemini.texts", len(texts)))

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		batch := e.docs.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		var resp *genai.BatchEmbedContentsResponse
		err := e.guard.run(ctx, e.backend.unavailable, func() error {
			var err error
			resp, err = e.docs.BatchEmbedContents(ctx, batch)
			return e.backend.classify(err)
		})
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			return nil, err
		}
		if len(resp.Embeddings) != end-start {
			return nil, e.backend.unavailable(fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), end-start))
		}
		for _, emb := range resp.Embeddings {
			v, err := e.accept(emb)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (e *GeminiEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_query")
	defer span.End()

	var resp *genai.EmbedContentResponse
	err := e.guard.run(ctx, e.backend.unavailable, func() error {
		var err error
		resp, err = e.queries.EmbedContent(ctx, genai.Text(text))
		return e.backend.classify(err)
	})
	if err != nil {
		return nil, err
	}
	return e.accept(resp.Embedding)
}

// accept checks a returned vector against the known dimension and learns
// it on first use for unlisted models.
func (e *GeminiEmbedder) accept(emb *genai.ContentEmbedding) ([]float32, error) {
	if emb == nil || len(emb.Values) == 0 {
		return nil, e.backend.unavailable(fmt.Errorf("no embedding returned"))
	}
	return checkDimension(&e.dim, emb.Values, e.backend)
}

func (e *GeminiEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func checkDimension(dim *atomic.Int64, v []float32, b backend) ([]float32, error) {
	n := int64(len(v))
	if dim.CompareAndSwap(0, n) || dim.Load() == n {
		return v, nil
	}
	return nil, b.unavailable(fmt.Errorf("model returned %d dimensions, expected %d", n, dim.Load()))
}
