package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/thebtf/domainforge/pkg/models"
)

// CaptureStore persists captured turns using GORM.
type CaptureStore struct {
	db *gorm.DB
}

// NewCaptureStore creates a new capture store.
func NewCaptureStore(store *Store) *CaptureStore {
	return &CaptureStore{db: store.DB}
}

// Create stores a new captured turn and returns it with id and timestamps set.
func (s *CaptureStore) Create(ctx context.Context, rawText string, ex models.ExtractionResult) (*models.CapturedTurn, error) {
	if rawText == "" {
		return nil, fmt.Errorf("raw text must not be empty")
	}
	if err := ex.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extraction result: %w", err)
	}

	turn := &CapturedTurn{
		RawText:    rawText,
		Intent:     ex.Intent,
		Domain:     nullString(ex.Domain),
		Confidence: ex.Confidence,
	}
	if err := s.db.WithContext(ctx).Create(turn).Error; err != nil {
		return nil, err
	}
	return toModelTurn(turn), nil
}

// GetByID retrieves a captured turn by id. Returns (nil, nil) when not found.
func (s *CaptureStore) GetByID(ctx context.Context, id string) (*models.CapturedTurn, error) {
	var turn CapturedTurn
	err := s.db.WithContext(ctx).First(&turn, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toModelTurn(&turn), nil
}

// GetByIDs retrieves captured turns by a list of ids, most recent first.
func (s *CaptureStore) GetByIDs(ctx context.Context, ids []string) ([]*models.CapturedTurn, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var turns []CapturedTurn
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at_epoch DESC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return toModelTurns(turns), nil
}

// ListRecent retrieves captured turns most recent first. limit <= 0 means all.
func (s *CaptureStore) ListRecent(ctx context.Context, limit int) ([]*models.CapturedTurn, error) {
	var turns []CapturedTurn
	query := s.db.WithContext(ctx).Order("created_at_epoch DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&turns).Error; err != nil {
		return nil, err
	}
	return toModelTurns(turns), nil
}

// ListUnembedded retrieves captured turns that have no stored embedding yet,
// oldest first so the bulk-embed pass works through the backlog in order.
func (s *CaptureStore) ListUnembedded(ctx context.Context) ([]*models.CapturedTurn, error) {
	var turns []CapturedTurn
	err := s.db.WithContext(ctx).
		Joins("LEFT JOIN turn_embeddings ON turn_embeddings.turn_id = captured_turns.id").
		Where("turn_embeddings.turn_id IS NULL").
		Order("captured_turns.created_at_epoch ASC").
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return toModelTurns(turns), nil
}

// Delete hard-deletes captured turns by ids and returns the affected count.
func (s *CaptureStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&CapturedTurn{})
	return result.RowsAffected, result.Error
}

// Count returns the number of captured turns.
func (s *CaptureStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&CapturedTurn{}).Count(&count).Error
	return count, err
}
