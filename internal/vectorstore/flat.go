package vectorstore

// Flat is an exact linear scan. For the corpus sizes this service indexes
// (a handful of pages) it is faster than building a graph.
type Flat struct {
	ids     []int
	vectors [][]float32
}

func NewFlat() Searcher {
	return &Flat{}
}

func (f *Flat) Insert(id int, vector []float32) {
	f.ids = append(f.ids, id)
	f.vectors = append(f.vectors, vector)
}

func (f *Flat) Search(query []float32, k int) []Hit {
	if k <= 0 || len(f.vectors) == 0 {
		return nil
	}
	hits := make([]Hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = Hit{ID: f.ids[i], Score: dot(query, v)}
	}
	sortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

func (f *Flat) Len() int {
	return len(f.vectors)
}
