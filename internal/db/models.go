package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thebtf/domainforge/pkg/models"
)

// GORM Models

// CapturedTurn is an utterance extraction could not confidently classify.
// Rows are hard-deleted on migration or explicit deletion, never soft-deleted.
type CapturedTurn struct {
	ID             string         `gorm:"primaryKey;type:text"`
	RawText        string         `gorm:"type:text;not null"`
	Intent         string         `gorm:"type:text;not null"`
	Domain         sql.NullString `gorm:"type:text"`
	Confidence     float64        `gorm:"type:real;not null;check:confidence >= 0 AND confidence <= 1"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_captured_turns_created,sort:desc;not null"`
}

func (CapturedTurn) TableName() string { return "captured_turns" }

// BeforeCreate assigns an id and timestamps when unset.
func (t *CapturedTurn) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// TurnEmbedding is the fixed-length vector for one captured turn. It shares
// its turn's lifecycle: deleting the turn deletes the embedding.
type TurnEmbedding struct {
	TurnID         string                   `gorm:"primaryKey;type:text"`
	Vector         models.JSONFloat64Vector `gorm:"type:text;not null"`
	Dims           int                      `gorm:"not null"`
	CreatedAt      string                   `gorm:"not null"`
	CreatedAtEpoch int64                    `gorm:"not null"`
}

func (TurnEmbedding) TableName() string { return "turn_embeddings" }

// BeforeSave keeps timestamps and dimensionality consistent with the vector.
func (e *TurnEmbedding) BeforeSave(tx *gorm.DB) error {
	if e.Dims == 0 {
		e.Dims = len(e.Vector)
	}
	if e.CreatedAtEpoch == 0 {
		e.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if e.CreatedAt == "" {
		e.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// SchemaProposal is a candidate record type awaiting review.
type SchemaProposal struct {
	ID             int64                  `gorm:"primaryKey;autoIncrement"`
	DomainName     string                 `gorm:"type:text;index;not null"`
	Description    string                 `gorm:"type:text;not null"`
	Fields         models.JSONFieldList   `gorm:"type:text;not null"`
	SourceTurnIDs  models.JSONStringArray `gorm:"type:text"`
	Status         models.ProposalStatus  `gorm:"type:text;default:'pending';check:status IN ('pending', 'approved', 'rejected', 'deployed');index"`
	CreatedAt      string                 `gorm:"not null"`
	CreatedAtEpoch int64                  `gorm:"index:idx_proposals_created,sort:desc;not null"`
}

func (SchemaProposal) TableName() string { return "schema_proposals" }

// BeforeCreate sets defaults.
func (p *SchemaProposal) BeforeCreate(tx *gorm.DB) error {
	if p.Status == "" {
		p.Status = models.ProposalPending
	}
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// DeployedDomain is an activated record type with its own backing table.
// Name and table name are each globally unique; the schema blob is immutable
// once the row exists.
type DeployedDomain struct {
	ID              int64                `gorm:"primaryKey;autoIncrement"`
	Name            string               `gorm:"type:text;uniqueIndex;not null"`
	DomainTableName string               `gorm:"column:table_name;type:text;uniqueIndex;not null"`
	Schema          models.JSONFieldList `gorm:"type:text;not null"`
	DeployedAt      string               `gorm:"not null"`
	DeployedAtEpoch int64                `gorm:"not null"`
}

func (DeployedDomain) TableName() string { return "deployed_domains" }

// BeforeCreate sets timestamps.
func (d *DeployedDomain) BeforeCreate(tx *gorm.DB) error {
	if d.DeployedAtEpoch == 0 {
		d.DeployedAtEpoch = time.Now().UnixMilli()
	}
	if d.DeployedAt == "" {
		d.DeployedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// ====================
// Model conversions
// ====================

func toModelTurn(t *CapturedTurn) *models.CapturedTurn {
	return &models.CapturedTurn{
		ID:             t.ID,
		RawText:        t.RawText,
		Intent:         t.Intent,
		Domain:         t.Domain.String,
		Confidence:     t.Confidence,
		CreatedAt:      t.CreatedAt,
		CreatedAtEpoch: t.CreatedAtEpoch,
	}
}

func toModelTurns(turns []CapturedTurn) []*models.CapturedTurn {
	result := make([]*models.CapturedTurn, len(turns))
	for i := range turns {
		result[i] = toModelTurn(&turns[i])
	}
	return result
}

func toModelProposal(p *SchemaProposal) *models.SchemaProposal {
	return &models.SchemaProposal{
		ID:             p.ID,
		DomainName:     p.DomainName,
		Description:    p.Description,
		Fields:         []models.FieldDef(p.Fields),
		SourceTurnIDs:  []string(p.SourceTurnIDs),
		Status:         p.Status,
		CreatedAt:      p.CreatedAt,
		CreatedAtEpoch: p.CreatedAtEpoch,
	}
}

func toModelDomain(d *DeployedDomain) *models.DeployedDomain {
	return &models.DeployedDomain{
		ID:              d.ID,
		Name:            d.Name,
		TableName:       d.DomainTableName,
		Schema:          []models.FieldDef(d.Schema),
		DeployedAt:      d.DeployedAt,
		DeployedAtEpoch: d.DeployedAtEpoch,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}
