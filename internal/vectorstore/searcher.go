// Package vectorstore holds embedded chunks and answers nearest-neighbour
// queries by cosine similarity. The search algorithm is pluggable through
// Searcher so the exact scan can be replaced by an approximate graph index
// without touching callers.
package vectorstore

import (
	"cmp"
	"math"
	"slices"
)

// Hit is a searcher result: the position of an entry and its cosine score.
type Hit struct {
	ID    int
	Score float32
}

// Searcher is a nearest-neighbour algorithm over unit vectors.
//
// IDs are assigned densely from 0 in insertion order. Insert is never called
// concurrently with anything else; Search may be called from many goroutines
// at once and must not mutate shared state.
type Searcher interface {
	Insert(id int, vector []float32)
	Search(query []float32, k int) []Hit
	Len() int
}

// SearcherFactory builds an empty searcher, used when an index is reopened.
type SearcherFactory func() Searcher

// sortHits orders by score descending, then by insertion order.
func sortHits(hits []Hit) {
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if a.Score != b.Score {
			return cmp.Compare(b.Score, a.Score)
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// normalize returns a unit-length copy of v. Zero vectors stay zero.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// CosineSimilarity returns a value between -1 and 1, 0 for zero vectors or
// mismatched lengths.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	return dot(normalize(a), normalize(b))
}
