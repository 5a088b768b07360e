// Package extract runs structured extraction over conversational turns: it
// classifies the intent, picks a target domain, and pulls field values.
package extract

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

// ErrMalformedExtraction marks a generative reply that did not parse into a
// usable extraction result.
var ErrMalformedExtraction = errors.New("extraction output unparseable")

// Extractor classifies a turn and extracts structured data from it.
// Implementations must be safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, text string) (*models.ExtractionResult, error)
}

// LLMExtractor extracts via a generative-text call. The prompt lists every
// known domain with its fields so freshly deployed domains take effect on the
// next call without a restart.
type LLMExtractor struct {
	completer provider.Completer
	registry  *registry.Registry
	fixed     []config.FixedDomain
}

// NewLLMExtractor creates an extractor over the given completer and catalog.
func NewLLMExtractor(completer provider.Completer, reg *registry.Registry, fixed []config.FixedDomain) *LLMExtractor {
	return &LLMExtractor{completer: completer, registry: reg, fixed: fixed}
}

// Extract classifies one turn. A reply that fails to parse returns
// ErrMalformedExtraction; confidence outside [0,1] is treated the same.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (*models.ExtractionResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text must not be empty")
	}

	reply, err := e.completer.Complete(ctx, e.buildPrompt(text))
	if err != nil {
		return nil, fmt.Errorf("generative-text call: %w", err)
	}
	return parseExtraction(reply)
}

func (e *LLMExtractor) buildPrompt(text string) string {
	var b strings.Builder
	b.WriteString("You extract structured records from a user's chat messages.\n\nKnown record types:\n")
	for _, d := range e.fixed {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	for _, d := range e.registry.All() {
		fmt.Fprintf(&b, "- %s: fields %s\n", d.Name, strings.Join(fieldSignatures(d.Schema), ", "))
	}

	fmt.Fprintf(&b, "\nMessage: %q\n", text)
	b.WriteString(`
Reply with a single JSON object and nothing else:
{
  "intent": "create_record|query_records|general_conversation",
  "domain": "one of the record types above, or empty",
  "confidence": 0.0,
  "data": {"field": "value extracted from the message"}
}
confidence is your certainty in [0,1] that domain and data are right. Use
field names exactly as listed. Leave domain empty and data absent for
general conversation.
`)
	return b.String()
}

func fieldSignatures(schema []models.FieldDef) []string {
	out := make([]string, len(schema))
	for i, f := range schema {
		sig := fmt.Sprintf("%s (%s)", f.Name, f.Type)
		if f.Required {
			sig += " required"
		}
		out[i] = sig
	}
	return out
}

func parseExtraction(reply string) (*models.ExtractionResult, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedExtraction)
	}

	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(reply[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	return &result, nil
}
