package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/pkg/similarity"
)

// fakeEmbedder returns canned vectors per input text.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float64{0, 0, 1}, nil
}

func testCache(t *testing.T) (*Cache, *db.EmbeddingStore, *fakeEmbedder) {
	t.Helper()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(t.TempDir(), "cache-test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedStore := db.NewEmbeddingStore(store)
	embedder := &fakeEmbedder{vectors: map[string][]float64{}}
	return NewCache(embedder, embedStore), embedStore, embedder
}

func TestCache_StoreMirrorsAndReloads(t *testing.T) {
	cache, embedStore, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "t1", []float64{0.1, 0.2, 0.3}))
	require.NoError(t, cache.Store(ctx, "t2", []float64{0.4, 0.5, 0.6}))
	assert.Equal(t, 2, cache.Len())

	// A fresh cache over the same store reconstructs the contents exactly.
	rebuilt := NewCache(&fakeEmbedder{}, embedStore)
	require.NoError(t, rebuilt.Load(ctx))
	assert.Equal(t, 2, rebuilt.Len())
	vec, ok := rebuilt.Get("t1")
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestCache_DimensionMismatchRejected(t *testing.T) {
	cache, _, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "t1", []float64{0.1, 0.2, 0.3}))

	err := cache.Store(ctx, "t2", []float64{0.1, 0.2})
	require.Error(t, err)
	assert.ErrorIs(t, err, similarity.ErrDimensionMismatch)
	assert.Equal(t, 1, cache.Len(), "mismatched vector must not enter the cache")
}

func TestCache_EmptyVectorRejected(t *testing.T) {
	cache, _, _ := testCache(t)
	assert.Error(t, cache.Store(context.Background(), "t1", nil))
}

func TestCache_EmbedDelegatesAndPropagatesErrors(t *testing.T) {
	cache, _, embedder := testCache(t)
	ctx := context.Background()

	embedder.vectors["went for a run"] = []float64{1, 0, 0}
	vec, err := cache.Embed(ctx, "went for a run")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, vec)

	embedder.err = fmt.Errorf("service unreachable")
	_, err = cache.Embed(ctx, "anything")
	assert.Error(t, err)
}

func TestCache_DeleteRemovesStoreAndMemory(t *testing.T) {
	cache, embedStore, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "t1", []float64{1, 2}))
	require.NoError(t, cache.Delete(ctx, []string{"t1"}))

	assert.Zero(t, cache.Len())
	all, err := embedStore.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCache_AllReturnsSnapshot(t *testing.T) {
	cache, _, _ := testCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Store(ctx, "t1", []float64{1, 2}))
	snapshot := cache.All()
	delete(snapshot, "t1")
	assert.Equal(t, 1, cache.Len(), "mutating the snapshot must not touch the cache")
}

func TestCache_SimilarityIdentity(t *testing.T) {
	cache, _, _ := testCache(t)
	v := []float64{0.3, 0.4, 0.5}
	sim, err := cache.Similarity(v, v)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 0.0001)
}
