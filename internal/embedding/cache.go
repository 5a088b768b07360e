// Package embedding maintains the in-memory vector cache for captured turns,
// mirrored synchronously to durable storage.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/provider"
	"github.com/thebtf/domainforge/pkg/similarity"
)

// Cache holds every turn embedding in memory. It is loaded fully from the
// backing store at startup; every write goes to the store first so a restart
// reconstructs the cache exactly. The mutex exists because capture-time
// embedding runs on a background goroutine while detection reads the cache.
type Cache struct {
	mu       sync.RWMutex
	vectors  map[string][]float64
	dims     int
	embedder provider.Embedder
	store    *db.EmbeddingStore
}

// NewCache creates an empty cache. Call Load before serving.
func NewCache(embedder provider.Embedder, store *db.EmbeddingStore) *Cache {
	return &Cache{
		vectors:  make(map[string][]float64),
		embedder: embedder,
		store:    store,
	}
}

// Load replaces the in-memory contents with everything in the backing store.
// A dimensionality mismatch between stored vectors is fatal: it means the
// embedding model changed underneath the cache.
func (c *Cache) Load(ctx context.Context) error {
	stored, err := c.store.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}

	dims := 0
	for id, vec := range stored {
		if dims == 0 {
			dims = len(vec)
			continue
		}
		if len(vec) != dims {
			return fmt.Errorf("%w: stored vector for %s has %d dims, expected %d; re-embed the corpus",
				similarity.ErrDimensionMismatch, id, len(vec), dims)
		}
	}

	c.mu.Lock()
	c.vectors = stored
	c.dims = dims
	c.mu.Unlock()
	return nil
}

// Embed delegates to the external embedding service. Network and service
// errors propagate to the caller.
func (c *Cache) Embed(ctx context.Context, text string) ([]float64, error) {
	return c.embedder.Embed(ctx, text)
}

// Store persists the vector for a turn and then updates memory. The mirror
// write happens first; if it fails the cache is untouched.
func (c *Cache) Store(ctx context.Context, turnID string, vector []float64) error {
	if len(vector) == 0 {
		return fmt.Errorf("refusing to store empty vector for %s", turnID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dims != 0 && len(vector) != c.dims {
		return fmt.Errorf("%w: vector for %s has %d dims, cache holds %d-dim vectors",
			similarity.ErrDimensionMismatch, turnID, len(vector), c.dims)
	}

	if err := c.store.Upsert(ctx, turnID, vector); err != nil {
		return fmt.Errorf("mirror embedding for %s: %w", turnID, err)
	}

	if c.dims == 0 {
		c.dims = len(vector)
	}
	c.vectors[turnID] = vector
	return nil
}

// Similarity computes the cosine similarity of two vectors.
func (c *Cache) Similarity(a, b []float64) (float64, error) {
	return similarity.Cosine(a, b)
}

// Get returns the vector for a turn, if cached.
func (c *Cache) Get(turnID string) ([]float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.vectors[turnID]
	return vec, ok
}

// All returns a snapshot copy of every cached vector keyed by turn id.
func (c *Cache) All() map[string][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]float64, len(c.vectors))
	for id, vec := range c.vectors {
		out[id] = vec
	}
	return out
}

// Delete removes vectors from the store and memory.
func (c *Cache) Delete(ctx context.Context, turnIDs []string) error {
	if len(turnIDs) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Delete(ctx, turnIDs); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	for _, id := range turnIDs {
		delete(c.vectors, id)
	}
	return nil
}

// Forget drops vectors from memory only. Used when the durable rows were
// already removed as part of a turn's retirement transaction.
func (c *Cache) Forget(turnIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range turnIDs {
		delete(c.vectors, id)
	}
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}
