package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"
	"sync/atomic"

	"compliance-rag-assistant/internal/telemetry"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// newOpenAIClient builds a client, pointing at baseURL when set.
func newOpenAIClient(key, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAIEmbedder uses the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client  *openai.Client
	modelID string
	dim     atomic.Int64
	guard   *guard
	backend backend
}

// NewOpenAIEmbedder creates an OpenAI embedder. baseURL may be empty.
func NewOpenAIEmbedder(key, baseURL, model string, rpm int, metrics *telemetry.Metrics) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		client:  newOpenAIClient(key, baseURL),
		modelID: model,
		guard:   newGuard("openai-embed", rpm, metrics),
		backend: backend{
			provider: "openai",
			model:    model,
			keyEnv:   "OPENAI_API_KEY",
			modelEnv: "EMBEDDING_MODEL_ID",
			embed:    true,
		},
	}
	e.dim.Store(int64(DimensionOf(model)))
	return e
}

func (e *OpenAIEmbedder) ModelID() string { return e.modelID }

func (e *OpenAIEmbedder) Dimension() int { return int(e.dim.Load()) }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	tracer := otel.Tracer("openai-client")
	ctx, span := tracer.Start(ctx, "openai.embed")
	defer span.End()
	span.SetAttributes(attribute.String("openai.model", e.modelID), attribute.Int("openai.texts", len(texts)))

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbedBatch {
		end := min(start+maxEmbedBatch, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			span.SetAttributes(attribute.Bool("openai.error", true))
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openai.EmbeddingResponse
	err := e.guard.run(ctx, e.backend.unavailable, func() error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.modelID),
			Input: texts,
		})
		return e.backend.classify(err)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, e.backend.unavailable(fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		if _, err := checkDimension(&e.dim, v, e.backend); err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// OpenAIGenerator answers with an OpenAI chat model.
type OpenAIGenerator struct {
	client      *openai.Client
	modelID     string
	temperature float32
	guard       *guard
	backend     backend
	metrics     *telemetry.Metrics
}

func NewOpenAIGenerator(key, baseURL, model string, temperature float32, rpm int, metrics *telemetry.Metrics) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:      newOpenAIClient(key, baseURL),
		modelID:     model,
		temperature: temperature,
		guard:       newGuard("openai-generate", rpm, metrics),
		backend: backend{
			provider: "openai",
			model:    model,
			keyEnv:   "OPENAI_API_KEY",
			modelEnv: "GENERATION_MODEL_ID",
		},
		metrics: metrics,
	}
}

func (g *OpenAIGenerator) ModelID() string { return g.modelID }

func (g *OpenAIGenerator) request(prompt string, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: g.modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   maxOutputTokens,
		Stream:      stream,
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("openai-client")
	ctx, span := tracer.Start(ctx, "openai.chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("openai.model", g.modelID))

	var answer string
	err := g.guard.run(ctx, g.backend.unavailable, func() error {
		resp, err := g.client.CreateChatCompletion(ctx, g.request(prompt, false))
		if err != nil {
			return g.backend.classify(err)
		}
		g.metrics.RecordTokensUsed(int64(resp.Usage.TotalTokens), g.modelID)
		if len(resp.Choices) > 0 {
			answer = resp.Choices[0].Message.Content
		}
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("openai.error", true), attribute.String("openai.error_message", err.Error()))
		return "", err
	}
	return answer, nil
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		tracer := otel.Tracer("openai-client")
		ctx, span := tracer.Start(ctx, "openai.chat_completion_stream")
		defer span.End()
		span.SetAttributes(attribute.String("openai.model", g.modelID))

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		err := g.guard.run(ctx, g.backend.unavailable, func() error {
			stream, err := g.client.CreateChatCompletionStream(ctx, g.request(prompt, true))
			if err != nil {
				return g.backend.classify(err)
			}
			defer stream.Close()

			for {
				resp, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return g.backend.classify(err)
				}
				if resp.Usage != nil {
					g.metrics.RecordTokensUsed(int64(resp.Usage.TotalTokens), g.modelID)
				}
				if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
					continue
				}
				if !yield(resp.Choices[0].Delta.Content, nil) {
					stopped = true
					return nil
				}
			}
		})
		span.SetAttributes(attribute.Bool("openai.stopped", stopped))
		if err != nil {
			span.SetAttributes(attribute.Bool("openai.error", true), attribute.String("openai.error_message", err.Error()))
			yield("", err)
		}
	}
}
