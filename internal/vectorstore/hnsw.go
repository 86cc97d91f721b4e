package vectorstore

import (
	"container/heap"
	"math"
	"math/rand"
	"slices"
)

// HNSWConfig holds the parameters of the hierarchical navigable small world
// graph. They trade build time and memory against recall.
type HNSWConfig struct {
	// M is the maximum number of links per node on layers above 0.
	// Layer 0 allows 2*M.
	M int

	// EfConstruction is the candidate list size while inserting.
	EfConstruction int

	// EfSearch is the candidate list size while querying. The effective
	// value is never below k.
	EfSearch int

	// Seed fixes level assignment so rebuilding the same entries in the
	// same order yields the same graph.
	Seed int64
}

// DefaultHNSWConfig suits indexes up to a few hundred thousand chunks.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{M: 16, EfConstruction: 200, EfSearch: 64, Seed: 1}
}

type hnswNode struct {
	id     int
	vector []float32
	// links[l] holds neighbour ids on layer l.
	links [][]int
}

// HNSW is an approximate nearest-neighbour graph over unit vectors using
// cosine distance (1 - dot).
type HNSW struct {
	m              int
	m0             int
	efConstruction int
	efSearch       int
	levelMult      float64

	nodes    map[int]*hnswNode
	entry    int
	maxLevel int
	rng      *rand.Rand
}

// NewHNSW returns a factory so reopened stores rebuild an identical graph.
func NewHNSW(cfg HNSWConfig) SearcherFactory {
	if cfg.M < 2 {
		cfg.M = 2
	}
	if cfg.EfConstruction < cfg.M {
		cfg.EfConstruction = cfg.M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 10
	}
	return func() Searcher {
		return &HNSW{
			m:              cfg.M,
			m0:             2 * cfg.M,
			efConstruction: cfg.EfConstruction,
			efSearch:       cfg.EfSearch,
			levelMult:      1 / math.Log(float64(cfg.M)),
			nodes:          make(map[int]*hnswNode),
			entry:          -1,
			maxLevel:       -1,
			rng:            rand.New(rand.NewSource(cfg.Seed)),
		}
	}
}

func (h *HNSW) Len() int {
	return len(h.nodes)
}

func (h *HNSW) maxLinks(layer int) int {
	if layer == 0 {
		return h.m0
	}
	return h.m
}

func (h *HNSW) randomLevel() int {
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.levelMult))
}

func (h *HNSW) distance(a []float32, id int) float32 {
	return 1 - dot(a, h.nodes[id].vector)
}

func (h *HNSW) Insert(id int, vector []float32) {
	if _, exists := h.nodes[id]; exists {
		return
	}
	level := h.randomLevel()
	node := &hnswNode{id: id, vector: vector, links: make([][]int, level+1)}
	h.nodes[id] = node

	if h.entry == -1 {
		h.entry = id
		h.maxLevel = level
		return
	}

	ep := h.entry
	for l := h.maxLevel; l > level; l-- {
		ep = h.greedyClosest(vector, ep, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vector, ep, h.efConstruction, l)
		neighbours := candidates
		if len(neighbours) > h.maxLinks(l) {
			neighbours = neighbours[:h.maxLinks(l)]
		}
		for _, c := range neighbours {
			node.links[l] = append(node.links[l], c.id)
			h.link(c.id, id, l)
		}
		ep = candidates[0].id
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = id
	}
}

// link adds a back edge from -> to on layer l, pruning from's neighbour
// list to the closest maxLinks when it overflows.
func (h *HNSW) link(from, to, layer int) {
	n := h.nodes[from]
	n.links[layer] = append(n.links[layer], to)
	limit := h.maxLinks(layer)
	if len(n.links[layer]) <= limit {
		return
	}
	cands := make([]candidate, len(n.links[layer]))
	for i, id := range n.links[layer] {
		cands[i] = candidate{id: id, dist: h.distance(n.vector, id)}
	}
	sortCandidates(cands)
	kept := make([]int, limit)
	for i := range kept {
		kept[i] = cands[i].id
	}
	n.links[layer] = kept
}

func (h *HNSW) greedyClosest(query []float32, ep, layer int) int {
	best := ep
	bestDist := h.distance(query, ep)
	for changed := true; changed; {
		changed = false
		for _, nb := range h.nodes[best].links[layer] {
			if d := h.distance(query, nb); d < bestDist || (d == bestDist && nb < best) {
				best, bestDist = nb, d
				changed = true
			}
		}
	}
	return best
}

// searchLayer is the beam search from the HNSW paper. The result is sorted
// by ascending distance.
func (h *HNSW) searchLayer(query []float32, ep, ef, layer int) []candidate {
	visited := map[int]bool{ep: true}
	start := candidate{id: ep, dist: h.distance(query, ep)}

	frontier := &candidateHeap{}
	results := &candidateHeap{max: true}
	heap.Push(frontier, start)
	heap.Push(results, start)

	for frontier.Len() > 0 {
		c := heap.Pop(frontier).(candidate)
		if results.Len() >= ef && c.dist > results.peek().dist {
			break
		}
		node := h.nodes[c.id]
		if layer >= len(node.links) {
			continue
		}
		for _, nb := range node.links[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := h.distance(query, nb)
			if results.Len() < ef || d < results.peek().dist {
				heap.Push(frontier, candidate{id: nb, dist: d})
				heap.Push(results, candidate{id: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, results.items)
	sortCandidates(out)
	return out
}

func (h *HNSW) Search(query []float32, k int) []Hit {
	if k <= 0 || h.entry == -1 {
		return nil
	}
	ep := h.entry
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedyClosest(query, ep, l)
	}
	cands := h.searchLayer(query, ep, max(h.efSearch, k), 0)

	hits := make([]Hit, len(cands))
	for i, c := range cands {
		hits[i] = Hit{ID: c.id, Score: dot(query, h.nodes[c.id].vector)}
	}
	sortHits(hits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

type candidate struct {
	id   int
	dist float32
}

func sortCandidates(c []candidate) {
	slices.SortFunc(c, func(a, b candidate) int {
		if a.less(b) {
			return -1
		}
		if b.less(a) {
			return 1
		}
		return 0
	})
}

func (c candidate) less(o candidate) bool {
	if c.dist != o.dist {
		return c.dist < o.dist
	}
	return c.id < o.id
}

// candidateHeap is a min-heap on distance, or a max-heap when max is set.
type candidateHeap struct {
	items []candidate
	max   bool
}

func (h candidateHeap) Len() int { return len(h.items) }

func (h candidateHeap) Less(i, j int) bool {
	if h.max {
		return h.items[j].less(h.items[i])
	}
	return h.items[i].less(h.items[j])
}

func (h candidateHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *candidateHeap) Push(x any) { h.items = append(h.items, x.(candidate)) }

func (h *candidateHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func (h *candidateHeap) peek() candidate { return h.items[0] }
