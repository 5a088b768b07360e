// Package synth turns a pattern cluster into a schema proposal via a
// generative-text call with a strict output contract.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/thebtf/domainforge/internal/config"
	"github.com/thebtf/domainforge/internal/provider"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/pkg/models"
)

// ErrMalformedOutput marks a generative reply that failed strict parsing.
// No partial proposal is ever produced from such a reply; the synthesizer
// does not retry internally, the caller decides.
var ErrMalformedOutput = errors.New("generative output failed schema contract")

const (
	minFields         = 3
	maxFields         = 6
	maxRequiredFields = 6
	maxMemberTexts    = 20
)

// Synthesizer builds schema proposals from clusters. It performs no
// persistence, so a failed attempt can be retried without double-allocating
// identifiers.
type Synthesizer struct {
	completer provider.Completer
	registry  *registry.Registry
	fixed     []config.FixedDomain
}

// NewSynthesizer creates a synthesizer. The registry and fixed-domain list
// feed the prompt so proposals do not overlap existing record types.
func NewSynthesizer(completer provider.Completer, reg *registry.Registry, fixed []config.FixedDomain) *Synthesizer {
	return &Synthesizer{completer: completer, registry: reg, fixed: fixed}
}

// Synthesize proposes a schema for the cluster. The returned proposal is
// unsaved, status pending, with the cluster's member ids attached.
func (s *Synthesizer) Synthesize(ctx context.Context, cluster models.PatternCluster) (*models.SchemaProposal, error) {
	if cluster.Size() == 0 {
		return nil, fmt.Errorf("cluster has no members")
	}

	reply, err := s.completer.Complete(ctx, s.buildPrompt(cluster))
	if err != nil {
		return nil, fmt.Errorf("generative-text call: %w", err)
	}

	proposal, err := parseReply(reply)
	if err != nil {
		return nil, err
	}
	proposal.SourceTurnIDs = cluster.TurnIDs
	proposal.Status = models.ProposalPending
	return proposal, nil
}

func (s *Synthesizer) buildPrompt(cluster models.PatternCluster) string {
	var b strings.Builder
	b.WriteString("You design record schemas for a personal assistant that extracts structured data from chat messages.\n\n")
	b.WriteString("These record types already exist. Do NOT propose a type that overlaps them:\n")
	for _, d := range s.fixed {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	for _, d := range s.registry.All() {
		fmt.Fprintf(&b, "- %s (dynamic)\n", d.Name)
	}

	b.WriteString("\nThe user repeatedly says things like:\n")
	texts := cluster.Texts
	if len(texts) > maxMemberTexts {
		texts = texts[:maxMemberTexts]
	}
	for _, text := range texts {
		fmt.Fprintf(&b, "- %q\n", text)
	}

	b.WriteString(`
Propose ONE new record type covering these messages. Reply with a single JSON object and nothing else:
{
  "name": "snake_case identifier",
  "description": "one sentence",
  "fields": [
    {"name": "snake_case identifier", "type": "string|number|boolean|date", "required": true, "description": "..."}
  ]
}
Rules: 3 to 6 fields total, 1 to 6 of them required, types only from string, number, boolean, date.
`)
	return b.String()
}

// parseReply parses the untrusted model reply strictly against the contract.
type replyPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Fields      []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Required    bool   `json:"required"`
		Description string `json:"description"`
	} `json:"fields"`
}

func parseReply(reply string) (*models.SchemaProposal, error) {
	raw, err := extractJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var payload replyPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if payload.Name == "" {
		return nil, fmt.Errorf("%w: missing domain name", ErrMalformedOutput)
	}
	if payload.Description == "" {
		return nil, fmt.Errorf("%w: missing description", ErrMalformedOutput)
	}
	if n := len(payload.Fields); n < minFields || n > maxFields {
		return nil, fmt.Errorf("%w: expected %d-%d fields, got %d", ErrMalformedOutput, minFields, maxFields, n)
	}

	// Normalize before any uniqueness check downstream.
	name, err := models.NormalizeIdentifier(payload.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: domain name: %v", ErrMalformedOutput, err)
	}

	fields := make([]models.FieldDef, 0, len(payload.Fields))
	required := 0
	seen := make(map[string]bool)
	for _, f := range payload.Fields {
		fieldName, err := models.NormalizeIdentifier(f.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: field name: %v", ErrMalformedOutput, err)
		}
		if seen[fieldName] {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrMalformedOutput, fieldName)
		}
		seen[fieldName] = true

		fieldType := models.FieldType(f.Type)
		if !fieldType.IsValid() {
			return nil, fmt.Errorf("%w: field %q has unsupported type %q", ErrMalformedOutput, fieldName, f.Type)
		}
		if f.Required {
			required++
		}
		fields = append(fields, models.FieldDef{
			Name:        fieldName,
			Type:        fieldType,
			Required:    f.Required,
			Description: f.Description,
		})
	}

	if required < 1 || required > maxRequiredFields {
		return nil, fmt.Errorf("%w: expected 1-%d required fields, got %d", ErrMalformedOutput, maxRequiredFields, required)
	}

	return &models.SchemaProposal{
		DomainName:  name,
		Description: payload.Description,
		Fields:      fields,
	}, nil
}

// extractJSONObject pulls the outermost JSON object out of a reply that may
// wrap it in prose or a code fence.
func extractJSONObject(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return reply[start : end+1], nil
}
