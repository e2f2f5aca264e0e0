// Package inspect provides read-only catalog lookups against the target
// database, with a per-session cache to avoid redundant round-trips
// across iterations.
package inspect

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"qtune/internal/domain"
)

// Querier is the subset of the engine handle the inspector needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Relation identifies one table or view in the catalog.
type Relation struct {
	Schema string
	Name   string
	Type   string
}

// Inspector answers catalog questions. Descriptions are cached per
// case-normalized relation name for the lifetime of the session; the
// cache is dropped with the inspector when the session ends.
type Inspector struct {
	db    Querier
	cache map[string][]domain.Column
	log   *slog.Logger
}

// New creates an Inspector over the given engine handle.
func New(db Querier, log *slog.Logger) *Inspector {
	if log == nil {
		log = slog.Default()
	}
	return &Inspector{
		db:    db,
		cache: make(map[string][]domain.Column),
		log:   log.With("component", "inspect"),
	}
}

// ListRelations returns all user tables and views, ordered by schema and
// name. System schemas are excluded.
func (i *Inspector) ListRelations(ctx context.Context) ([]Relation, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('information_schema', 'pg_catalog')
		ORDER BY table_schema, table_name`)
	if err != nil {
		return nil, domain.ErrExecution("list relations: %v", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.Schema, &r.Name, &r.Type); err != nil {
			return nil, domain.ErrExecution("scan relation: %v", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("list relations: %v", err)
	}
	return out, nil
}

// Exists reports whether the named relation is present in the catalog.
// Accepts schema.table or a bare table name.
func (i *Inspector) Exists(ctx context.Context, name string) (bool, error) {
	if _, ok := i.cache[cacheKey(name)]; ok {
		return true, nil
	}
	schema, table := splitName(name)

	var query string
	var args []any
	if schema != "" {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`
		args = []any{schema, table}
	} else {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?`
		args = []any{table}
	}

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return false, domain.ErrExecution("table exists %s: %v", name, err)
	}
	defer rows.Close() //nolint:errcheck

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, domain.ErrExecution("table exists %s: %v", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, domain.ErrExecution("table exists %s: %v", name, err)
	}
	return n > 0, nil
}

// Describe returns the ordered column list of a relation. Results are
// cached; unknown relations fail with a NotFoundError the caller may
// treat as non-fatal.
func (i *Inspector) Describe(ctx context.Context, name string) ([]domain.Column, error) {
	key := cacheKey(name)
	if cols, ok := i.cache[key]; ok {
		return cols, nil
	}

	schema, table := splitName(name)

	var query string
	var args []any
	if schema != "" {
		query = `
			SELECT column_name, data_type
			FROM information_schema.columns
			WHERE table_schema = ? AND table_name = ?
			ORDER BY ordinal_position`
		args = []any{schema, table}
	} else {
		query = `
			SELECT column_name, data_type
			FROM information_schema.columns
			WHERE table_name = ?
			ORDER BY table_schema, ordinal_position`
		args = []any{table}
	}

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.ErrExecution("describe %s: %v", name, err)
	}
	defer rows.Close() //nolint:errcheck

	var cols []domain.Column
	for rows.Next() {
		var c domain.Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, domain.ErrExecution("describe %s: %v", name, err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrExecution("describe %s: %v", name, err)
	}
	if len(cols) == 0 {
		return nil, domain.ErrNotFound("relation not found in catalog: %s", name)
	}

	i.cache[key] = cols
	i.log.Debug("cached relation schema", "relation", key, "columns", len(cols))
	return cols, nil
}

func cacheKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func splitName(name string) (schema, table string) {
	name = strings.TrimSpace(name)
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}
