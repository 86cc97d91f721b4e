package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"compliance-rag-assistant/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderSharedWordsScoreHigher(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	q, err := e.EmbedOne(ctx, "STEM OPT extension")
	require.NoError(t, err)
	vecs, err := e.Embed(ctx, []string{"The STEM OPT extension lasts 24 months", "Payroll tax withholding"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 64)

	assert.Greater(t, vectorstore.CosineSimilarity(q, vecs[0]), vectorstore.CosineSimilarity(q, vecs[1]))
}

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	a, err := e.EmbedOne(context.Background(), "Form I-983")
	require.NoError(t, err)
	b, err := e.EmbedOne(context.Background(), "form i-983")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedderEmptyTextIsNonZero(t *testing.T) {
	v, err := NewHashEmbedder(8).EmbedOne(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, float32(1), v[0])
}

func TestHashEmbedderNonPositiveDimension(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, defaultHashDim, e.Dimension())
	v, err := e.EmbedOne(context.Background(), "Form I-9")
	require.NoError(t, err)
	assert.Len(t, v, defaultHashDim)

	_, err = (&HashEmbedder{Dim: -1}).Embed(context.Background(), []string{"Form I-9"})
	assert.Error(t, err)
}

func TestEchoGeneratorStreamMatchesGenerate(t *testing.T) {
	g := NewEchoGenerator()
	prompt := "You are an assistant.\n\nContext:\nMilvus is a vector database.\n\nIt stores embeddings.\n\nQuestion: what is Milvus?"

	full, err := g.Generate(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, "Milvus is a vector database.\n\nIt stores embeddings.", full)

	var sb strings.Builder
	n := 0
	for frag, err := range g.GenerateStream(context.Background(), prompt) {
		require.NoError(t, err)
		sb.WriteString(frag)
		n++
	}
	assert.Equal(t, full, sb.String())
	assert.Greater(t, n, 1)
}

func TestEchoGeneratorEmptyContext(t *testing.T) {
	answer, err := NewEchoGenerator().Generate(context.Background(), "Context:\n\nQuestion: anything?")
	require.NoError(t, err)
	assert.Equal(t, "I could not find this in the provided context.", answer)
}

func TestEchoGeneratorFailsMidStream(t *testing.T) {
	boom := errors.New("boom")
	g := &EchoGenerator{Model: "echo", Err: boom, FailAfter: 2}

	var got []string
	var streamErr error
	for frag, err := range g.GenerateStream(context.Background(), "Context: one two three four Question: x") {
		if err != nil {
			streamErr = err
			break
		}
		got = append(got, frag)
	}
	assert.Equal(t, []string{"one ", "two "}, got)
	assert.ErrorIs(t, streamErr, boom)
}

func TestEchoGeneratorStopsWhenConsumerBreaks(t *testing.T) {
	n := 0
	for range NewEchoGenerator().GenerateStream(context.Background(), "Context: a b c d e Question: x") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestFragmentsConcatenate(t *testing.T) {
	for _, s := range []string{"", "one", "a b  c\n\nd ", "  leading"} {
		assert.Equal(t, s, strings.Join(fragments(s), ""))
	}
}
