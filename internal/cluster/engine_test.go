package cluster

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/embedding"
	"github.com/thebtf/domainforge/pkg/models"
)

type staticEmbedder struct{}

func (staticEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{0, 0, 1}, nil
}

func testEngine(t *testing.T) (*Engine, *db.CaptureStore, *embedding.Cache) {
	t.Helper()

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(t.TempDir(), "cluster-test.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	captures := db.NewCaptureStore(store)
	cache := embedding.NewCache(staticEmbedder{}, db.NewEmbeddingStore(store))
	return NewEngine(captures, cache, 3, 0.75), captures, cache
}

func capture(t *testing.T, captures *db.CaptureStore, text string) *models.CapturedTurn {
	t.Helper()
	turn, err := captures.Create(context.Background(), text, models.ExtractionResult{
		Intent:     "general_conversation",
		Confidence: 0.4,
	})
	require.NoError(t, err)
	return turn
}

func TestEngine_DetectSingleCluster(t *testing.T) {
	engine, captures, cache := testEngine(t)
	ctx := context.Background()

	base := []float64{0.8, 0.5, 0.3}
	texts := []string{"went for a run", "did yoga this morning", "30 min jog"}
	ids := make([]string, len(texts))
	for i, text := range texts {
		turn := capture(t, captures, text)
		ids[i] = turn.ID
		vec := append([]float64(nil), base...)
		vec[0] += float64(i) * 0.01
		require.NoError(t, cache.Store(ctx, turn.ID, vec))
	}

	clusters, err := engine.Detect(ctx, 3, 0.75)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	assert.ElementsMatch(t, ids, clusters[0].TurnIDs)
	assert.ElementsMatch(t, texts, clusters[0].Texts)
	assert.Greater(t, clusters[0].AvgSimilarity, 0.75)
	assert.Equal(t, 3, clusters[0].Size())
}

func TestEngine_UnembeddedTurnsExcluded(t *testing.T) {
	engine, captures, cache := testEngine(t)
	ctx := context.Background()

	base := []float64{0.8, 0.5, 0.3}
	for i := 0; i < 2; i++ {
		turn := capture(t, captures, "embedded turn")
		vec := append([]float64(nil), base...)
		vec[0] += float64(i) * 0.01
		require.NoError(t, cache.Store(ctx, turn.ID, vec))
	}
	// A third similar turn exists but has no embedding yet.
	capture(t, captures, "not yet embedded")

	clusters, err := engine.Detect(ctx, 3, 0.75)
	require.NoError(t, err)
	assert.Empty(t, clusters, "unembedded turns must not count toward minSize")
}

func TestEngine_DefaultsApplied(t *testing.T) {
	engine, captures, cache := testEngine(t)
	ctx := context.Background()

	base := []float64{0.8, 0.5, 0.3}
	for i := 0; i < 3; i++ {
		turn := capture(t, captures, "similar text")
		vec := append([]float64(nil), base...)
		vec[0] += float64(i) * 0.01
		require.NoError(t, cache.Store(ctx, turn.ID, vec))
	}

	// Zero values fall back to configured minSize 3 / threshold 0.75.
	clusters, err := engine.Detect(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, clusters, 1)
}

func TestEngine_DeterministicAcrossRuns(t *testing.T) {
	engine, captures, cache := testEngine(t)
	ctx := context.Background()

	base := []float64{0.2, 0.9, 0.4}
	for i := 0; i < 4; i++ {
		turn := capture(t, captures, "turn")
		vec := append([]float64(nil), base...)
		vec[1] += float64(i) * 0.01
		require.NoError(t, cache.Store(ctx, turn.ID, vec))
	}

	first, err := engine.Detect(ctx, 3, 0.75)
	require.NoError(t, err)
	second, err := engine.Detect(ctx, 3, 0.75)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_ThresholdAboveOneRejected(t *testing.T) {
	engine, _, _ := testEngine(t)
	_, err := engine.Detect(context.Background(), 3, 1.5)
	assert.Error(t, err)
}
