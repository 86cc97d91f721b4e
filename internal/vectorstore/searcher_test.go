package vectorstore

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomUnitVectors(n, dim int, seed int64) [][]float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		out[i] = normalize(v)
	}
	return out
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, float32(0), CosineSimilarity([]float32{1}, []float32{1, 0}))
}

func TestFlatSearch(t *testing.T) {
	f := NewFlat()
	for i, v := range [][]float32{{1, 0}, {0, 1}, {1, 0}} {
		f.Insert(i, normalize(v))
	}

	hits := f.Search([]float32{1, 0}, 2)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].ID)
	assert.Equal(t, 2, hits[1].ID)
	assert.Nil(t, f.Search([]float32{1, 0}, 0))
	assert.Equal(t, 3, f.Len())
}

func TestHNSWInsertAndSearch(t *testing.T) {
	h := NewHNSW(HNSWConfig{M: 4, EfConstruction: 10, EfSearch: 10, Seed: 1})()
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
	for i, v := range vectors {
		h.Insert(i, v)
	}
	h.Insert(0, vectors[1])
	assert.Equal(t, 4, h.Len())

	hits := h.Search(normalize([]float32{0.9, 0.1, 0.1, 0.1}), 2)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].ID)

	assert.Nil(t, NewHNSW(DefaultHNSWConfig())().Search([]float32{1, 0, 0, 0}, 3))
}

func TestHNSWRecallAgainstFlat(t *testing.T) {
	const (
		n   = 400
		dim = 24
		k   = 5
	)
	data := randomUnitVectors(n, dim, 11)
	queries := randomUnitVectors(40, dim, 12)

	flat := NewFlat()
	graph := NewHNSW(DefaultHNSWConfig())()
	for i, v := range data {
		flat.Insert(i, v)
		graph.Insert(i, v)
	}

	found, total := 0, 0
	for _, q := range queries {
		exact := map[int]bool{}
		for _, h := range flat.Search(q, k) {
			exact[h.ID] = true
		}
		for _, h := range graph.Search(q, k) {
			if exact[h.ID] {
				found++
			}
		}
		total += k
	}
	recall := float64(found) / float64(total)
	assert.GreaterOrEqual(t, recall, 0.9, "recall@%d = %.2f", k, recall)

	selfHits := 0
	for i, v := range data {
		if hits := graph.Search(v, 1); len(hits) == 1 && hits[0].ID == i {
			selfHits++
		}
	}
	assert.GreaterOrEqual(t, selfHits, n*95/100)
}

func TestHNSWRebuildIsDeterministic(t *testing.T) {
	data := randomUnitVectors(150, 12, 21)
	q := randomUnitVectors(1, 12, 22)[0]

	build := func() Searcher {
		s := NewHNSW(DefaultHNSWConfig())()
		for i, v := range data {
			s.Insert(i, v)
		}
		return s
	}
	assert.Equal(t, build().Search(q, 6), build().Search(q, 6))
}
