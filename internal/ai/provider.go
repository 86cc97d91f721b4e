// Package ai adapts embedding and text-generation backends to the
// capabilities the pipeline needs. Every backend call goes through a
// circuit breaker and a client-side rate limiter and reports failures with
// the typed errors from the models package.
package ai

import (
	"context"
	"iter"
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// Embed vectorizes document chunks, preserving order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedOne vectorizes a query.
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// Dimension is the vector length, or 0 when the model is not known
	// until the first call.
	Dimension() int
	ModelID() string
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream yields answer fragments in order. Concatenated they
	// equal what Generate returns. The sequence is single-use; stopping
	// early releases the underlying connection.
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
	ModelID() string
}

// knownDimensions maps embedding model ids to their output length.
var knownDimensions = map[string]int{
	"text-embedding-004":     768,
	"embedding-001":          768,
	"models/embedding-001":   768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// DimensionOf returns the output length of a known embedding model, or 0.
func DimensionOf(model string) int {
	return knownDimensions[model]
}
