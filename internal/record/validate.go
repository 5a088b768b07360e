package record

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/thebtf/domainforge/pkg/models"
)

// FieldViolation names one field that failed validation and why.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError reports every violation found in a payload, not just the
// first, so a caller can fix them all in one round trip.
type ValidationError struct {
	Domain     string           `json:"domain"`
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Reason)
	}
	return fmt.Sprintf("invalid %s record: %s", e.Domain, strings.Join(parts, "; "))
}

// dateLayouts are accepted on input; stored values are normalized to RFC3339.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// validateFields checks a payload against a domain schema and returns the
// coerced column values ready for storage. Keys not in the schema are
// silently dropped. When full is true, every required field must be present;
// when false (partial update) only supplied fields are checked.
func validateFields(d *models.DeployedDomain, input map[string]any, full bool) (map[string]any, *ValidationError) {
	coerced := make(map[string]any, len(input))
	var violations []FieldViolation

	for _, f := range d.Schema {
		value, supplied := input[f.Name]

		if !supplied || value == nil {
			if f.Required && (full || supplied) {
				violations = append(violations, FieldViolation{Field: f.Name, Reason: "required field is missing"})
			} else if supplied {
				coerced[f.Name] = nil
			}
			continue
		}

		stored, err := coerceValue(f.Type, value)
		if err != nil {
			violations = append(violations, FieldViolation{Field: f.Name, Reason: err.Error()})
			continue
		}
		coerced[f.Name] = stored
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Domain: d.Name, Violations: violations}
	}
	return coerced, nil
}

// coerceValue converts a decoded JSON value into its storage representation:
// booleans become 0/1, dates become RFC3339 strings.
func coerceValue(t models.FieldType, value any) (any, error) {
	switch t {
	case models.FieldString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return s, nil

	case models.FieldNumber:
		n, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("number must be finite")
		}
		return n, nil

	case models.FieldBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", value)
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil

	case models.FieldDate:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected date string, got %T", value)
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("date %q is not RFC3339 or YYYY-MM-DD", s)
	}
	return nil, fmt.Errorf("unsupported field type %q", t)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	}
	return 0, fmt.Errorf("expected number, got %T", value)
}
