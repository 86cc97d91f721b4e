package ai

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"math"
	"time"

	"compliance-rag-assistant/internal/logger"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder memoizes vectors in Redis keyed by task, model and text
// hash. Document and query vectors are cached apart because providers embed
// them with different task types. Redis failures are logged and the call
// falls through to the backend.
type CachedEmbedder struct {
	next Embedder
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCachedEmbedder wraps next. A nil client disables caching.
func NewCachedEmbedder(next Embedder, rdb *redis.Client, ttl time.Duration) Embedder {
	if rdb == nil {
		return next
	}
	return &CachedEmbedder{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedEmbedder) ModelID() string { return c.next.ModelID() }

func (c *CachedEmbedder) Dimension() int { return c.next.Dimension() }

func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := c.key(taskQuery, text)
	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		if v, ok := decodeVector(raw); ok {
			return v, nil
		}
	} else if err != redis.Nil {
		logger.Warn("Embedding cache read failed", "error", err)
	}

	v, err := c.next.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.rdb.Set(ctx, key, encodeVector(v), c.ttl).Err(); err != nil {
		logger.Warn("Embedding cache write failed", "error", err)
	}
	return v, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(taskDocument, t)
	}

	out := make([][]float32, len(texts))
	var missing []int
	cached, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warn("Embedding cache read failed", "error", err)
		cached = nil
	}
	for i := range texts {
		if i < len(cached) {
			if s, ok := cached[i].(string); ok {
				if v, ok := decodeVector([]byte(s)); ok {
					out[i] = v
					continue
				}
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	fresh, err := c.next.Embed(ctx, pending)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missing {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("Embedding cache write failed", "error", err)
	}
	return out, nil
}

// Close closes the wrapped embedder. The Redis client belongs to the caller.
func (c *CachedEmbedder) Close() error {
	if closer, ok := c.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

const (
	taskDocument = "doc"
	taskQuery    = "query"
)

func (c *CachedEmbedder) key(task, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + task + ":" + c.next.ModelID() + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, bool) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, true
}
