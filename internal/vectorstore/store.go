package vectorstore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"compliance-rag-assistant/internal/logger"
	"compliance-rag-assistant/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const fileVersion = 1

// Index is what the pipeline and ingestion depend on.
type Index interface {
	Add(ctx context.Context, entries []models.IndexEntry) error
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
	Has(chunkID string) bool
	Len() int
	Dimension() int
}

type fileHeader struct {
	Version   int
	Model     string
	Dimension int
	Count     int
	UpdatedAt time.Time
}

type fileData struct {
	Header  fileHeader
	Entries []models.IndexEntry
}

// Store is a file-backed vector index. Searches run concurrently under a
// read lock; Add and Save are exclusive.
type Store struct {
	mu       sync.RWMutex
	path     string
	model    string
	dim      int
	entries  []models.IndexEntry
	ids      map[string]struct{}
	searcher Searcher
}

var _ Index = (*Store)(nil)

// NewMemory creates a store that is never written to disk.
func NewMemory(dim int, newSearcher SearcherFactory) *Store {
	return &Store{
		dim:      dim,
		ids:      make(map[string]struct{}),
		searcher: newSearcher(),
	}
}

// Open loads the index at path, or starts an empty one if the file does not
// exist yet. dim is the dimension the current embedding provider produces;
// zero accepts whatever is stored. A stored index of another dimension is a
// DimensionMismatchError.
func Open(path string, dim int, model string, newSearcher SearcherFactory) (*Store, error) {
	s := &Store{
		path:     path,
		model:    model,
		dim:      dim,
		ids:      make(map[string]struct{}),
		searcher: newSearcher(),
	}

	data, err := readFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("Vector index not found, starting empty", "path", path, "dimension", dim)
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if data.Header.Version != fileVersion {
		return nil, fmt.Errorf("index %s: unsupported file version %d", path, data.Header.Version)
	}
	if dim != 0 && data.Header.Dimension != 0 && data.Header.Dimension != dim {
		return nil, &models.DimensionMismatchError{Path: path, Stored: data.Header.Dimension, Provided: dim}
	}
	if model != "" && data.Header.Model != "" && data.Header.Model != model {
		logger.Warn("Vector index was built with a different embedding model",
			"path", path, "stored_model", data.Header.Model, "model", model)
	}
	if data.Header.Dimension != 0 {
		s.dim = data.Header.Dimension
	}

	for i, e := range data.Entries {
		if len(e.Vector) != s.dim {
			return nil, fmt.Errorf("index %s: entry %d has dimension %d, header says %d", path, i, len(e.Vector), s.dim)
		}
		s.searcher.Insert(i, normalize(e.Vector))
		s.ids[e.ChunkID] = struct{}{}
	}
	s.entries = data.Entries

	logger.Info("Vector index opened", "path", path, "entries", len(s.entries), "dimension", s.dim)
	return s, nil
}

// Add appends a batch atomically: every entry is validated and the whole
// index is persisted before any entry becomes searchable. On error the
// store is unchanged.
func (s *Store) Add(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry %d (%s) has an empty vector", i, e.ChunkID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return &models.DimensionMismatchError{Path: s.path, Stored: dim, Provided: len(e.Vector)}
		}
	}

	batch := make([]models.IndexEntry, len(entries))
	for i, e := range entries {
		batch[i] = cloneEntry(e)
	}
	next := make([]models.IndexEntry, 0, len(s.entries)+len(batch))
	next = append(append(next, s.entries...), batch...)

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.path != "" {
		if err := writeFile(s.path, s.header(dim, len(next)), next); err != nil {
			return fmt.Errorf("persist index: %w", err)
		}
	}

	base := len(s.entries)
	for i, e := range batch {
		s.searcher.Insert(base+i, normalize(e.Vector))
		s.ids[e.ChunkID] = struct{}{}
	}
	s.entries = next
	s.dim = dim

	logger.Debug("Vector index batch committed", "path", s.path, "added", len(batch), "entries", len(s.entries))
	return nil
}

// Search returns up to k entries by descending cosine similarity. An empty
// index yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	_, span := otel.Tracer("vectorstore").Start(ctx, "vectorstore.search")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	span.SetAttributes(
		attribute.Int("vectorstore.k", k),
		attribute.Int("vectorstore.entries", len(s.entries)),
	)

	if k <= 0 || len(s.entries) == 0 {
		return []models.SearchResult{}, nil
	}
	if len(query) != s.dim {
		return nil, &models.DimensionMismatchError{Path: s.path, Stored: s.dim, Provided: len(query)}
	}

	hits := s.searcher.Search(normalize(query), k)
	results := make([]models.SearchResult, 0, len(hits))
	for _, h := range hits {
		e := s.entries[h.ID]
		results = append(results, models.SearchResult{
			ChunkID:  e.ChunkID,
			Text:     e.Text,
			Metadata: maps.Clone(e.Metadata),
			Score:    h.Score,
		})
	}
	span.SetAttributes(attribute.Int("vectorstore.hits", len(results)))
	return results, nil
}

// Save persists the current contents. Add already persists each batch;
// Save is for writing an index that received no entries.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFile(s.path, s.header(s.dim, len(s.entries)), s.entries)
}

func (s *Store) Has(chunkID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[chunkID]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

func (s *Store) Path() string {
	return s.path
}

// Entries returns a copy of everything stored, in insertion order.
func (s *Store) Entries() []models.IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IndexEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func (s *Store) header(dim, count int) fileHeader {
	return fileHeader{
		Version:   fileVersion,
		Model:     s.model,
		Dimension: dim,
		Count:     count,
		UpdatedAt: time.Now().UTC(),
	}
}

func cloneEntry(e models.IndexEntry) models.IndexEntry {
	return models.IndexEntry{
		Vector:   append([]float32(nil), e.Vector...),
		ChunkID:  e.ChunkID,
		Text:     e.Text,
		Metadata: maps.Clone(e.Metadata),
	}
}

func readFile(path string) (*fileData, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var data fileData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", path, err)
	}
	return &data, nil
}

// writeFile encodes to a temporary file and renames it over path, so a
// crash never leaves a half-written index behind.
func writeFile(path string, header fileHeader, entries []models.IndexEntry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(file).Encode(fileData{Header: header, Entries: entries}); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
