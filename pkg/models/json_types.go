package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON column types. These serialize to TEXT columns so that ordered lists
// round-trip through SQLite without loss.

// JSONStringArray stores a []string as a JSON TEXT column.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value any) error {
	return scanJSON(value, a)
}

// Value implements driver.Valuer.
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return marshalJSON(a)
}

// JSONFieldList stores an ordered []FieldDef as a JSON TEXT column.
// Field order is significant and must survive a round-trip.
type JSONFieldList []FieldDef

// Scan implements sql.Scanner.
func (l *JSONFieldList) Scan(value any) error {
	return scanJSON(value, l)
}

// Value implements driver.Valuer.
func (l JSONFieldList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return marshalJSON(l)
}

// JSONFloat64Vector stores an embedding vector as a JSON TEXT column.
type JSONFloat64Vector []float64

// Scan implements sql.Scanner.
func (v *JSONFloat64Vector) Scan(value any) error {
	return scanJSON(value, v)
}

// Value implements driver.Valuer.
func (v JSONFloat64Vector) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	return marshalJSON(v)
}

func scanJSON(value, dest any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func marshalJSON(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
