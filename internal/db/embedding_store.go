package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/domainforge/pkg/models"
)

// EmbeddingStore persists turn embeddings. It is the durable mirror of the
// in-memory embedding cache: every cache write lands here synchronously so a
// restart reconstructs the cache exactly.
type EmbeddingStore struct {
	db *gorm.DB
}

// NewEmbeddingStore creates a new embedding store.
func NewEmbeddingStore(store *Store) *EmbeddingStore {
	return &EmbeddingStore{db: store.DB}
}

// Upsert writes the vector for a turn, replacing any previous one.
func (s *EmbeddingStore) Upsert(ctx context.Context, turnID string, vector []float64) error {
	emb := &TurnEmbedding{
		TurnID: turnID,
		Vector: models.JSONFloat64Vector(vector),
		Dims:   len(vector),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "turn_id"}},
			UpdateAll: true,
		}).
		Create(emb).Error
}

// GetAll returns every stored embedding keyed by turn id.
func (s *EmbeddingStore) GetAll(ctx context.Context) (map[string][]float64, error) {
	var rows []TurnEmbedding
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]float64, len(rows))
	for i := range rows {
		out[rows[i].TurnID] = []float64(rows[i].Vector)
	}
	return out, nil
}

// Delete removes embeddings by turn ids.
func (s *EmbeddingStore) Delete(ctx context.Context, turnIDs []string) error {
	if len(turnIDs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("turn_id IN ?", turnIDs).Delete(&TurnEmbedding{}).Error
}

// DeleteWithTurn removes a turn's embedding and its captured-turn row in one
// transaction. Used when a migrated turn is retired: the pair always goes
// together.
func (s *EmbeddingStore) DeleteWithTurn(ctx context.Context, turnID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("turn_id = ?", turnID).Delete(&TurnEmbedding{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", turnID).Delete(&CapturedTurn{}).Error
	})
}

// Count returns the number of stored embeddings.
func (s *EmbeddingStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&TurnEmbedding{}).Count(&count).Error
	return count, err
}
