// Package reprocess replays the captured turns behind a newly deployed domain
// through fresh extraction, migrating the ones that now classify cleanly.
package reprocess

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/embedding"
	"github.com/thebtf/domainforge/internal/extract"
	"github.com/thebtf/domainforge/internal/record"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/pkg/models"
)

// Reprocessor migrates captured turns into deployed domain records. One turn
// failing never aborts the batch; each failure is reported in its outcome.
type Reprocessor struct {
	captures   *db.CaptureStore
	embeddings *db.EmbeddingStore
	cache      *embedding.Cache
	extractor  extract.Extractor
	records    *record.Service
	registry   *registry.Registry
	threshold  float64
}

// NewReprocessor creates a reprocessor. threshold is the minimum extraction
// confidence for a turn to migrate.
func NewReprocessor(
	captures *db.CaptureStore,
	embeddings *db.EmbeddingStore,
	cache *embedding.Cache,
	extractor extract.Extractor,
	records *record.Service,
	reg *registry.Registry,
	threshold float64,
) *Reprocessor {
	return &Reprocessor{
		captures:   captures,
		embeddings: embeddings,
		cache:      cache,
		extractor:  extractor,
		records:    records,
		registry:   reg,
		threshold:  threshold,
	}
}

// Run replays the given turns against the deployed domain. Turns that extract
// into the domain with sufficient confidence become records and are retired:
// the turn and its embedding are removed together and the vector dropped from
// memory. Everything else stays captured, with the reason in its outcome.
func (r *Reprocessor) Run(ctx context.Context, domain string, turnIDs []string) (*models.ReprocessSummary, error) {
	if !r.registry.Has(domain) {
		return nil, fmt.Errorf("%w: %q", record.ErrUnknownDomain, domain)
	}

	turns, err := r.captures.GetByIDs(ctx, turnIDs)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}

	summary := &models.ReprocessSummary{}
	var retired []string
	for _, turn := range turns {
		outcome := r.reprocessTurn(ctx, domain, turn)
		if outcome.Migrated {
			summary.Successful++
			retired = append(retired, turn.ID)
		} else {
			summary.Failed++
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	for _, id := range retired {
		if err := r.embeddings.DeleteWithTurn(ctx, id); err != nil {
			log.Warn().Err(err).Str("turn_id", id).Msg("Failed to retire migrated turn")
			continue
		}
		r.cache.Forget([]string{id})
	}

	log.Info().
		Str("domain", domain).
		Int("migrated", summary.Successful).
		Int("kept", summary.Failed).
		Msg("Reprocessed captured turns")
	return summary, nil
}

// reprocessTurn runs one turn through extraction and record creation. Any
// failure keeps the turn captured and explains itself in the outcome.
func (r *Reprocessor) reprocessTurn(ctx context.Context, domain string, turn *models.CapturedTurn) models.ReprocessOutcome {
	outcome := models.ReprocessOutcome{TurnID: turn.ID}

	result, err := r.extractor.Extract(ctx, turn.RawText)
	if err != nil {
		outcome.Reason = fmt.Sprintf("extraction failed: %v", err)
		return outcome
	}
	if result.Domain != domain {
		outcome.Reason = fmt.Sprintf("extracted domain %q does not match", result.Domain)
		return outcome
	}
	if result.Confidence < r.threshold {
		outcome.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", result.Confidence, r.threshold)
		return outcome
	}

	rec, err := r.records.Create(ctx, domain, result.Data)
	if err != nil {
		outcome.Reason = fmt.Sprintf("record creation failed: %v", err)
		return outcome
	}

	outcome.Migrated = true
	if id, ok := rec["id"].(int64); ok {
		outcome.RecordID = id
	}
	return outcome
}

// Preview returns the captured turns behind a proposal unmodified, so a
// reviewer can read what would migrate before running the batch.
func (r *Reprocessor) Preview(ctx context.Context, turnIDs []string) ([]*models.CapturedTurn, error) {
	turns, err := r.captures.GetByIDs(ctx, turnIDs)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	return turns, nil
}
