// Package cluster detects patterns across embedded captured turns.
package cluster

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/embedding"
	"github.com/thebtf/domainforge/pkg/models"
	"github.com/thebtf/domainforge/pkg/similarity"
)

// Engine runs greedy similarity clustering over captured turns. Results are
// ephemeral: nothing here is persisted.
type Engine struct {
	captures         *db.CaptureStore
	cache            *embedding.Cache
	defaultMinSize   int
	defaultThreshold float64
}

// NewEngine creates a clustering engine with the configured defaults.
func NewEngine(captures *db.CaptureStore, cache *embedding.Cache, minSize int, threshold float64) *Engine {
	return &Engine{
		captures:         captures,
		cache:            cache,
		defaultMinSize:   minSize,
		defaultThreshold: threshold,
	}
}

// Detect clusters all currently embedded captured turns. minSize <= 0 and
// threshold <= 0 fall back to the configured defaults. Turns without an
// embedding are excluded, never waited on. The pass visits turns
// most-recent-first, so repeated runs over unchanged data are identical.
func (e *Engine) Detect(ctx context.Context, minSize int, threshold float64) ([]models.PatternCluster, error) {
	if minSize <= 0 {
		minSize = e.defaultMinSize
	}
	if threshold <= 0 {
		threshold = e.defaultThreshold
	}
	if threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be at most 1, got %v", threshold)
	}

	turns, err := e.captures.ListRecent(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list captured turns: %w", err)
	}

	vectors := e.cache.All()
	textByID := make(map[string]string, len(turns))
	ordered := make([]similarity.Vector, 0, len(turns))
	for _, turn := range turns {
		vec, ok := vectors[turn.ID]
		if !ok {
			continue
		}
		textByID[turn.ID] = turn.RawText
		ordered = append(ordered, similarity.Vector{ID: turn.ID, Embedding: vec})
	}

	log.Debug().
		Int("captured", len(turns)).
		Int("embedded", len(ordered)).
		Int("min_size", minSize).
		Float64("threshold", threshold).
		Msg("Detecting patterns")

	raw, err := similarity.GreedyClusters(ordered, minSize, threshold)
	if err != nil {
		return nil, fmt.Errorf("cluster embedded turns: %w", err)
	}

	clusters := make([]models.PatternCluster, len(raw))
	for i, c := range raw {
		texts := make([]string, len(c.MemberIDs))
		for j, id := range c.MemberIDs {
			texts[j] = textByID[id]
		}
		clusters[i] = models.PatternCluster{
			SeedTurnID:    c.SeedID,
			TurnIDs:       c.MemberIDs,
			Texts:         texts,
			AvgSimilarity: c.AvgSimilarity,
		}
	}
	return clusters, nil
}
