// Package record serves validated CRUD over dynamically deployed domain
// tables. It never issues DDL; the table name and schema come from the
// registry and only allow-listed identifiers ever reach a statement.
package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/thebtf/domainforge/internal/db"
	"github.com/thebtf/domainforge/internal/registry"
	"github.com/thebtf/domainforge/pkg/models"
)

// ErrUnknownDomain is returned when the named domain is not registered.
var ErrUnknownDomain = errors.New("unknown domain")

const defaultListLimit = 100

// Service is the generic data plane shared by every deployed domain.
type Service struct {
	store    *db.Store
	registry *registry.Registry
}

// NewService creates a record service.
func NewService(store *db.Store, reg *registry.Registry) *Service {
	return &Service{store: store, registry: reg}
}

// Create validates the payload against the domain schema and inserts a row.
// Validation failures report every violation and persist nothing.
func (s *Service) Create(ctx context.Context, domain string, fields map[string]any) (map[string]any, error) {
	d, ok := s.registry.Get(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	coerced, verr := validateFields(d, fields, true)
	if verr != nil {
		return nil, verr
	}

	now := time.Now().UTC().Format(time.RFC3339)
	columns := []string{"created_at", "updated_at"}
	values := []any{now, now}
	for _, f := range d.Schema {
		if v, ok := coerced[f.Name]; ok {
			columns = append(columns, f.Name)
			values = append(values, v)
		}
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		d.TableName, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	res, err := s.store.GetRawDB().ExecContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("insert %s record: %w", domain, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert %s record: %w", domain, err)
	}
	return s.Get(ctx, domain, id)
}

// Get retrieves one record by id. Returns (nil, nil) when not found.
func (s *Service) Get(ctx context.Context, domain string, id int64) (map[string]any, error) {
	d, ok := s.registry.Get(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	query := fmt.Sprintf("SELECT * FROM %q WHERE id = ?", d.TableName)
	rows, err := s.store.GetRawDB().QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get %s record: %w", domain, err)
	}
	defer rows.Close()

	records, err := scanRecords(rows, d)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// List retrieves records most recent first. limit <= 0 uses the default.
func (s *Service) List(ctx context.Context, domain string, limit int) ([]map[string]any, error) {
	d, ok := s.registry.Get(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := fmt.Sprintf("SELECT * FROM %q ORDER BY id DESC LIMIT ?", d.TableName)
	rows, err := s.store.GetRawDB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", domain, err)
	}
	defer rows.Close()

	return scanRecords(rows, d)
}

// Update validates the supplied fields only and applies them to the row.
// Returns (nil, nil) when the record does not exist.
func (s *Service) Update(ctx context.Context, domain string, id int64, fields map[string]any) (map[string]any, error) {
	d, ok := s.registry.Get(domain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	coerced, verr := validateFields(d, fields, false)
	if verr != nil {
		return nil, verr
	}

	assignments := []string{`"updated_at" = ?`}
	values := []any{time.Now().UTC().Format(time.RFC3339)}
	for _, f := range d.Schema {
		if v, ok := coerced[f.Name]; ok {
			assignments = append(assignments, fmt.Sprintf("%q = ?", f.Name))
			values = append(values, v)
		}
	}
	values = append(values, id)

	query := fmt.Sprintf("UPDATE %q SET %s WHERE id = ?", d.TableName, strings.Join(assignments, ", "))
	res, err := s.store.GetRawDB().ExecContext(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("update %s record: %w", domain, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.Get(ctx, domain, id)
}

// Delete removes a record by id. Returns false when no row matched.
func (s *Service) Delete(ctx context.Context, domain string, id int64) (bool, error) {
	d, ok := s.registry.Get(domain)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	query := fmt.Sprintf("DELETE FROM %q WHERE id = ?", d.TableName)
	res, err := s.store.GetRawDB().ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete %s record: %w", domain, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// scanRecords reads all rows into maps, converting storage representations
// back to API types using the domain schema.
func scanRecords(rows *sql.Rows, d *models.DeployedDomain) ([]map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(map[string]any, len(columns))
		for i, col := range columns {
			rec[col] = presentValue(d, col, raw[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// presentValue maps a stored column value to its API representation.
func presentValue(d *models.DeployedDomain, column string, value any) any {
	if value == nil {
		return nil
	}
	if b, ok := value.([]byte); ok {
		value = string(b)
	}
	f, ok := d.Field(column)
	if !ok {
		return value
	}
	switch f.Type {
	case models.FieldBoolean:
		if n, ok := value.(int64); ok {
			return n != 0
		}
	case models.FieldNumber:
		if n, ok := value.(int64); ok {
			return float64(n)
		}
	}
	return value
}
