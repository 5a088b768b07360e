// Package models contains domain models for domainforge.
package models

import "fmt"

// FieldType enumerates the value types a dynamic domain field may declare.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// IsValid reports whether the field type is one of the supported types.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldDate:
		return true
	}
	return false
}

// FieldDef describes a single field of a schema proposal or deployed domain.
type FieldDef struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// ProposalStatus is the review state of a schema proposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalDeployed ProposalStatus = "deployed"
)

// CanAdvanceTo reports whether the status transition is legal.
// Legal transitions: pending->approved, pending->rejected, approved->deployed.
// rejected and deployed are terminal.
func (s ProposalStatus) CanAdvanceTo(next ProposalStatus) bool {
	switch s {
	case ProposalPending:
		return next == ProposalApproved || next == ProposalRejected
	case ProposalApproved:
		return next == ProposalDeployed
	}
	return false
}

// ExtractionResult is the outcome of running structured extraction over a
// conversational turn. Data carries the extracted field values when the
// extraction matched a known domain.
type ExtractionResult struct {
	Intent     string         `json:"intent"`
	Domain     string         `json:"domain,omitempty"`
	Confidence float64        `json:"confidence"`
	Data       map[string]any `json:"data,omitempty"`
}

// Validate checks the invariants an extraction result must satisfy before it
// can be captured.
func (e *ExtractionResult) Validate() error {
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0,1]", e.Confidence)
	}
	if e.Intent == "" {
		return fmt.Errorf("intent must not be empty")
	}
	return nil
}

// CapturedTurn is an utterance that extraction could not confidently classify.
type CapturedTurn struct {
	ID             string  `json:"id"`
	RawText        string  `json:"raw_text"`
	Intent         string  `json:"intent"`
	Domain         string  `json:"domain,omitempty"`
	Confidence     float64 `json:"confidence"`
	CreatedAt      string  `json:"created_at"`
	CreatedAtEpoch int64   `json:"created_at_epoch"`
}

// PatternCluster is an ephemeral grouping of captured turns whose embeddings
// exceed a similarity threshold. It is computed on demand and never persisted.
//
// AvgSimilarity is the mean of seed-to-member similarities only, not the mean
// over all member pairs. Reviewer-facing displays should label it accordingly.
type PatternCluster struct {
	SeedTurnID    string   `json:"seed_turn_id"`
	TurnIDs       []string `json:"turn_ids"`
	Texts         []string `json:"texts"`
	AvgSimilarity float64  `json:"avg_similarity"`
}

// Size returns the number of member turns, seed included.
func (c *PatternCluster) Size() int { return len(c.TurnIDs) }

// SchemaProposal is a candidate record type awaiting human review.
type SchemaProposal struct {
	ID             int64           `json:"id"`
	DomainName     string          `json:"domain_name"`
	Description    string          `json:"description"`
	Fields         []FieldDef      `json:"fields"`
	SourceTurnIDs  []string        `json:"source_turn_ids"`
	Status         ProposalStatus  `json:"status"`
	CreatedAt      string          `json:"created_at"`
	CreatedAtEpoch int64           `json:"created_at_epoch"`
}

// RequiredFields returns the required subset of Fields in declaration order.
func (p *SchemaProposal) RequiredFields() []FieldDef {
	var out []FieldDef
	for _, f := range p.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// DeployedDomain is an approved, activated record type backed by its own table.
// Its schema is immutable once deployed.
type DeployedDomain struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	TableName       string     `json:"table_name"`
	Schema          []FieldDef `json:"schema"`
	DeployedAt      string     `json:"deployed_at"`
	DeployedAtEpoch int64      `json:"deployed_at_epoch"`
}

// Field returns the schema field with the given name, if declared.
func (d *DeployedDomain) Field(name string) (FieldDef, bool) {
	for _, f := range d.Schema {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// ReprocessOutcome reports the result of replaying one captured turn against a
// newly deployed domain.
type ReprocessOutcome struct {
	TurnID   string `json:"turn_id"`
	Migrated bool   `json:"migrated"`
	RecordID int64  `json:"record_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ReprocessSummary aggregates per-turn outcomes of a reprocessing batch.
type ReprocessSummary struct {
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Outcomes   []ReprocessOutcome `json:"outcomes"`
}
