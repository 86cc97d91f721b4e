package vectorstore_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"compliance-rag-assistant/internal/vectorstore"
	"compliance-rag-assistant/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, vec ...float32) models.IndexEntry {
	return models.IndexEntry{
		ChunkID:  id,
		Text:     "text of " + id,
		Vector:   vec,
		Metadata: map[string]string{"source": "test"},
	}
}

func randomEntries(n, dim int, seed int64) []models.IndexEntry {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.IndexEntry, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		out[i] = entry(fmt.Sprintf("c%d", i), v...)
	}
	return out
}

func setupStore(t *testing.T, dim int) (*vectorstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.gob")
	store, err := vectorstore.Open(path, dim, "test-model", vectorstore.NewFlat)
	require.NoError(t, err)
	return store, path
}

func TestStoreSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("orders by similarity", func(t *testing.T) {
		store, _ := setupStore(t, 3)
		require.NoError(t, store.Add(ctx, []models.IndexEntry{
			entry("x", 1, 0, 0),
			entry("y", 0, 1, 0),
			entry("xy", 1, 1, 0),
		}))

		results, err := store.Search(ctx, []float32{0.9, 0.1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []string{"x", "xy", "y"}, []string{results[0].ChunkID, results[1].ChunkID, results[2].ChunkID})
		assert.Equal(t, "text of x", results[0].Text)
		assert.Equal(t, "test", results[0].Metadata["source"])
		assert.InDelta(t, 0.9939, results[0].Score, 1e-3)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		store, _ := setupStore(t, 2)
		require.NoError(t, store.Add(ctx, []models.IndexEntry{
			entry("first", 1, 0),
			entry("second", 2, 0),
			entry("third", 0.5, 0),
		}))

		results, err := store.Search(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, "first", results[0].ChunkID)
		assert.Equal(t, "second", results[1].ChunkID)
		assert.Equal(t, "third", results[2].ChunkID)
	})

	t.Run("top-k bound", func(t *testing.T) {
		store, _ := setupStore(t, 8)
		require.NoError(t, store.Add(ctx, randomEntries(10, 8, 1)))

		for _, k := range []int{0, 1, 4, 10, 25} {
			results, err := store.Search(ctx, randomEntries(1, 8, 99)[0].Vector, k)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(results), k)
			assert.LessOrEqual(t, len(results), store.Len())
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		store, _ := setupStore(t, 16)
		require.NoError(t, store.Add(ctx, randomEntries(50, 16, 2)))
		q := randomEntries(1, 16, 3)[0].Vector

		first, err := store.Search(ctx, q, 5)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := store.Search(ctx, q, 5)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("empty index returns empty result", func(t *testing.T) {
		store, _ := setupStore(t, 768)
		results, err := store.Search(ctx, make([]float32, 768), 4)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("query of wrong dimension", func(t *testing.T) {
		store, _ := setupStore(t, 3)
		require.NoError(t, store.Add(ctx, []models.IndexEntry{entry("a", 1, 0, 0)}))
		_, err := store.Search(ctx, []float32{1, 0}, 1)
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	})
}

func TestStorePersistence(t *testing.T) {
	ctx := context.Background()

	t.Run("reopen restores entries", func(t *testing.T) {
		store, path := setupStore(t, 4)
		require.NoError(t, store.Add(ctx, randomEntries(5, 4, 7)))
		q := []float32{0.1, 0.2, 0.3, 0.4}
		before, err := store.Search(ctx, q, 3)
		require.NoError(t, err)

		reopened, err := vectorstore.Open(path, 4, "test-model", vectorstore.NewFlat)
		require.NoError(t, err)
		assert.Equal(t, 5, reopened.Len())
		assert.True(t, reopened.Has("c3"))

		after, err := reopened.Search(ctx, q, 3)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("dimension mismatch on reopen", func(t *testing.T) {
		store, path := setupStore(t, 768)
		require.NoError(t, store.Add(ctx, randomEntries(3, 768, 1)))

		_, err := vectorstore.Open(path, 1536, "text-embedding-3-small", vectorstore.NewFlat)
		require.Error(t, err)
		var dm *models.DimensionMismatchError
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 768, dm.Stored)
		assert.Equal(t, 1536, dm.Provided)
	})

	t.Run("save writes an empty index", func(t *testing.T) {
		store, path := setupStore(t, 768)
		require.NoError(t, store.Save())

		_, err := os.Stat(path)
		require.NoError(t, err)
		_, err = vectorstore.Open(path, 1536, "", vectorstore.NewFlat)
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "index.gob")
		require.NoError(t, os.WriteFile(path, []byte("not gob"), 0o644))
		_, err := vectorstore.Open(path, 4, "", vectorstore.NewFlat)
		assert.Error(t, err)
	})
}

func TestStoreAtomicBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed dimensions discard the batch", func(t *testing.T) {
		store, _ := setupStore(t, 3)
		require.NoError(t, store.Add(ctx, []models.IndexEntry{entry("a", 1, 0, 0)}))

		err := store.Add(ctx, []models.IndexEntry{entry("b", 0, 1, 0), entry("c", 0, 1)})
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
		assert.Equal(t, 1, store.Len())
		assert.False(t, store.Has("b"))
	})

	t.Run("failed persist discards the batch", func(t *testing.T) {
		store, path := setupStore(t, 3)
		require.NoError(t, store.Add(ctx, []models.IndexEntry{entry("a", 1, 0, 0)}))
		require.NoError(t, os.Mkdir(path+".tmp", 0o755))

		err := store.Add(ctx, []models.IndexEntry{entry("b", 0, 1, 0)})
		require.Error(t, err)
		assert.Equal(t, 1, store.Len())

		results, err := store.Search(ctx, []float32{0, 1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].ChunkID)

		reopened, err := vectorstore.Open(path, 3, "", vectorstore.NewFlat)
		require.NoError(t, err)
		assert.Equal(t, 1, reopened.Len())
	})

	t.Run("cancelled context discards the batch", func(t *testing.T) {
		store, _ := setupStore(t, 3)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, store.Add(cctx, []models.IndexEntry{entry("a", 1, 0, 0)}), context.Canceled)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("caller slices are copied", func(t *testing.T) {
		store := vectorstore.NewMemory(2, vectorstore.NewFlat)
		e := entry("a", 1, 0)
		require.NoError(t, store.Add(ctx, []models.IndexEntry{e}))
		e.Vector[0] = -1

		results, err := store.Search(ctx, []float32{1, 0}, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})
}

func TestStoreConcurrentSearch(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemory(16, vectorstore.NewHNSW(vectorstore.DefaultHNSWConfig()))
	require.NoError(t, store.Add(ctx, randomEntries(200, 16, 5)))
	queries := randomEntries(8, 16, 6)

	want := make([][]models.SearchResult, len(queries))
	for i, q := range queries {
		res, err := store.Search(ctx, q.Vector, 4)
		require.NoError(t, err)
		want[i] = res
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, q := range queries {
				res, err := store.Search(ctx, q.Vector, 4)
				assert.NoError(t, err)
				assert.Equal(t, want[i], res)
			}
		}()
	}
	wg.Wait()
}
