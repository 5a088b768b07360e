// Package capture records conversational turns that extraction could not
// confidently classify and embeds them in the background.
package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/embedding"
	"github.com/thebtf/domainforge/pkg/models"
)

const embedTimeout = 30 * time.Second

// Metrics counts capture activity. Counters are atomic so the background
// embed goroutines can bump them without a lock.
type Metrics struct {
	Captured      atomic.Int64
	Embedded      atomic.Int64
	EmbedFailures atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Captured      int64 `json:"captured"`
	Embedded      int64 `json:"embedded"`
	EmbedFailures int64 `json:"embed_failures"`
}

// Service decides which turns to capture and keeps their embeddings current.
// Embedding runs asynchronously: a capture never blocks on the embedding
// service, and an embed failure never fails the capture. Failed embeds are
// picked up later by EmbedAll.
type Service struct {
	captures  *db.CaptureStore
	cache     *embedding.Cache
	threshold float64
	metrics   Metrics
	wg        sync.WaitGroup
}

// NewService creates a capture service. threshold is the extraction
// confidence below which a turn is captured.
func NewService(captures *db.CaptureStore, cache *embedding.Cache, threshold float64) *Service {
	return &Service{captures: captures, cache: cache, threshold: threshold}
}

// Capture stores the turn if its extraction confidence falls below the
// threshold. Returns the stored turn, or (nil, nil) when the extraction was
// confident enough to skip. The embedding is computed on a background
// goroutine after the turn is durable.
func (s *Service) Capture(ctx context.Context, rawText string, ex models.ExtractionResult) (*models.CapturedTurn, error) {
	if ex.Confidence >= s.threshold {
		return nil, nil
	}

	turn, err := s.captures.Create(ctx, rawText, ex)
	if err != nil {
		return nil, err
	}
	s.metrics.Captured.Add(1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
		defer cancel()
		s.embedTurn(ctx, turn.ID, rawText)
	}()

	log.Debug().
		Str("turn_id", turn.ID).
		Str("intent", ex.Intent).
		Float64("confidence", ex.Confidence).
		Msg("Captured low-confidence turn")
	return turn, nil
}

// embedTurn embeds one turn and mirrors the vector. Failures are logged and
// counted, never surfaced: the turn stays captured and unembedded. Returns
// whether the embedding landed.
func (s *Service) embedTurn(ctx context.Context, turnID, text string) bool {
	vec, err := s.cache.Embed(ctx, text)
	if err != nil {
		s.metrics.EmbedFailures.Add(1)
		log.Warn().Err(err).Str("turn_id", turnID).Msg("Failed to embed captured turn")
		return false
	}
	if err := s.cache.Store(ctx, turnID, vec); err != nil {
		s.metrics.EmbedFailures.Add(1)
		log.Warn().Err(err).Str("turn_id", turnID).Msg("Failed to store turn embedding")
		return false
	}
	s.metrics.Embedded.Add(1)
	return true
}

// EmbedAll embeds every captured turn that has no stored vector, oldest
// first. Per-turn failures are counted and skipped so one bad turn does not
// stall the backlog. Returns the number of turns embedded.
func (s *Service) EmbedAll(ctx context.Context) (int, error) {
	turns, err := s.captures.ListUnembedded(ctx)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for _, turn := range turns {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		if s.embedTurn(ctx, turn.ID, turn.RawText) {
			embedded++
		}
	}

	log.Info().Int("backlog", len(turns)).Int("embedded", embedded).Msg("Bulk embed pass finished")
	return embedded, nil
}

// Flush waits for all in-flight background embeds. Tests and shutdown use it.
func (s *Service) Flush() {
	s.wg.Wait()
}

// Snapshot returns the current counter values.
func (s *Service) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Captured:      s.metrics.Captured.Load(),
		Embedded:      s.metrics.Embedded.Load(),
		EmbedFailures: s.metrics.EmbedFailures.Load(),
	}
}
