package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"iter"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder is an offline embedder for tests and local runs. It hashes
// lowercased words into a fixed number of buckets, so texts sharing words
// score higher under cosine similarity.
type HashEmbedder struct {
	Dim   int
	Model string
	// Err, when set, is returned by every call.
	Err error
}

const defaultHashDim = 64

// NewHashEmbedder uses defaultHashDim buckets when dim is not positive.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDim
	}
	return &HashEmbedder{Dim: dim, Model: "hash-embedder"}
}

func (h *HashEmbedder) ModelID() string { return h.Model }

func (h *HashEmbedder) Dimension() int { return h.Dim }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := h.EmbedOne(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (h *HashEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if h.Err != nil {
		return nil, h.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.Dim <= 0 {
		return nil, fmt.Errorf("hash embedder: dimension must be positive, got %d", h.Dim)
	}
	v := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[int(f.Sum32())%h.Dim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// keep the vector non-zero so cosine stays defined
		v[0] = 1
		return v, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= inv
	}
	return v, nil
}

// EchoGenerator answers by echoing the prompt's context section, streamed
// word by word. It lets pipelines run without a model.
type EchoGenerator struct {
	Model string
	// Err, when set, is returned instead of an answer. In a stream it is
	// yielded after FailAfter fragments.
	Err       error
	FailAfter int
}

func NewEchoGenerator() *EchoGenerator {
	return &EchoGenerator{Model: "echo"}
}

func (g *EchoGenerator) ModelID() string { return g.Model }

func (g *EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder
	for frag, err := range g.GenerateStream(ctx, prompt) {
		if err != nil {
			return "", err
		}
		sb.WriteString(frag)
	}
	return sb.String(), nil
}

func (g *EchoGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g.Err != nil && g.FailAfter == 0 {
			yield("", g.Err)
			return
		}
		for i, frag := range fragments(EchoAnswer(prompt)) {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if g.Err != nil && i == g.FailAfter {
				yield("", g.Err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// EchoAnswer is what EchoGenerator answers for prompt: the text between
// the "Context:" and "Question:" markers, or a fixed reply when empty.
func EchoAnswer(prompt string) string {
	ctxText := prompt
	if _, after, ok := strings.Cut(prompt, "Context:"); ok {
		ctxText = after
	}
	if before, _, ok := strings.Cut(ctxText, "Question:"); ok {
		ctxText = before
	}
	ctxText = strings.TrimSpace(ctxText)
	if ctxText == "" {
		return "I could not find this in the provided context."
	}
	return ctxText
}

// fragments splits s into pieces that concatenate back to s, each ending
// after a run of whitespace.
func fragments(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if inSpace && !space {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
