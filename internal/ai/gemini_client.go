package ai

import (
	"context"
	"errors"
	"iter"
	"strings"

	"compliance-rag-assistant/internal/telemetry"

	genai "github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const maxOutputTokens = 2048

// GeminiClient generates answers with a Gemini model.
type GeminiClient struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	modelID string
	guard   *guard
	backend backend
	metrics *telemetry.Metrics
}

// GeminiOptions configures NewGeminiClient.
type GeminiOptions struct {
	APIKey      string
	Model       string
	Temperature float32
	RPM         int
	Metrics     *telemetry.Metrics
	// ClientOptions are appended after the API key, e.g. an endpoint
	// override in tests.
	ClientOptions []option.ClientOption
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	clientOpts := append([]option.ClientOption{option.WithAPIKey(opts.APIKey)}, opts.ClientOptions...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(opts.Model)
	model.SetTemperature(opts.Temperature)
	model.SetMaxOutputTokens(maxOutputTokens)

	return &GeminiClient{
		client:  client,
		model:   model,
		modelID: opts.Model,
		guard:   newGuard("gemini-generate", opts.RPM, opts.Metrics),
		backend: backend{
			provider: "google",
			model:    opts.Model,
			keyEnv:   "GEMINI_API_KEY",
			modelEnv: "GENERATION_MODEL_ID",
		},
		metrics: opts.Metrics,
	}, nil
}

func (gc *GeminiClient) ModelID() string { return gc.modelID }

func (gc *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()
	span.SetAttributes(
		attribute.String("gemini.model", gc.modelID),
		attribute.Int("gemini.prompt_chars", len(prompt)),
	)

	var answer string
	err := gc.guard.run(ctx, gc.backend.unavailable, func() error {
		resp, err := gc.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return gc.backend.classify(err)
		}
		gc.recordUsage(resp.UsageMetadata)
		answer = responseText(resp)
		return nil
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true), attribute.String("gemini.error_message", err.Error()))
		return "", err
	}

	span.SetAttributes(attribute.Int("gemini.answer_chars", len(answer)))
	return answer, nil
}

func (gc *GeminiClient) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		tracer := otel.Tracer("gemini-client")
		ctx, span := tracer.Start(ctx, "gemini.generate_stream")
		defer span.End()
		span.SetAttributes(attribute.String("gemini.model", gc.modelID))

		// Cancelling tears down the HTTP stream when the consumer stops early.
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		fragments := 0
		err := gc.guard.run(ctx, gc.backend.unavailable, func() error {
			it := gc.model.GenerateContentStream(ctx, genai.Text(prompt))
			var usage *genai.UsageMetadata
			for {
				resp, err := it.Next()
				if errors.Is(err, iterator.Done) {
					gc.recordUsage(usage)
					return nil
				}
				if err != nil {
					return gc.backend.classify(err)
				}
				if resp.UsageMetadata != nil {
					usage = resp.UsageMetadata
				}
				text := responseText(resp)
				if text == "" {
					continue
				}
				fragments++
				if !yield(text, nil) {
					stopped = true
					return nil
				}
			}
		})
		span.SetAttributes(attribute.Int("gemini.fragments", fragments), attribute.Bool("gemini.stopped", stopped))
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true), attribute.String("gemini.error_message", err.Error()))
			yield("", err)
		}
	}
}

func (gc *GeminiClient) recordUsage(usage *genai.UsageMetadata) {
	if usage == nil {
		return
	}
	gc.metrics.RecordTokensUsed(int64(usage.TotalTokenCount), gc.modelID)
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
