package ai

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("Form "), genai.Text("I-983")}},
		}},
	}
	assert.Equal(t, "Form I-983", responseText(resp))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))
	assert.Equal(t, "", responseText(nil))
}

func TestDimensionOf(t *testing.T) {
	assert.Equal(t, 768, DimensionOf("text-embedding-004"))
	assert.Equal(t, 1536, DimensionOf("text-embedding-3-small"))
	assert.Equal(t, 0, DimensionOf("unknown"))
}

// Runs against the live API when GEMINI_API_KEY is set.
func TestGeminiLive(t *testing.T) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		t.Skip("GEMINI_API_KEY not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e, err := NewGeminiEmbedder(ctx, key, "text-embedding-004", 60, nil)
	require.NoError(t, err)
	defer e.Close()
	v, err := e.EmbedOne(ctx, "What is the STEM OPT extension?")
	require.NoError(t, err)
	assert.Len(t, v, 768)

	g, err := NewGeminiClient(ctx, GeminiOptions{APIKey: key, Model: "gemini-2.0-flash", RPM: 60})
	require.NoError(t, err)
	defer g.Close()

	var sb strings.Builder
	for frag, err := range g.GenerateStream(ctx, "Reply with the single word: ok") {
		require.NoError(t, err)
		sb.WriteString(frag)
	}
	assert.NotEmpty(t, sb.String())
}
