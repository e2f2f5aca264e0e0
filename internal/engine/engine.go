// Package engine wraps the DuckDB connection used by the tuning session.
// The session owns exactly one connection; no two operations are ever in
// flight at the same time, so measurements stay comparable.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"qtune/internal/domain"
)

// DB is a handle to the target analytical database.
type DB struct {
	sql *sql.DB
}

// Open opens the DuckDB database at path. readOnly guards against
// accidental writes to the target file and is the default for tuning
// sessions.
func Open(path string, readOnly bool) (*DB, error) {
	dsn := path
	if readOnly {
		dsn = path + "?access_mode=read_only"
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}

	// One connection: benchmark timing integrity requires exclusive use of
	// the engine within a session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb %s: %w", path, err)
	}

	return &DB{sql: db}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// QueryContext runs a read query and returns the raw rows. Used by the
// schema inspector for catalog lookups.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sql.QueryContext(ctx, query, args...)
}

// ExplainJSON returns the engine's JSON plan for sqlText without
// executing the query.
func (d *DB) ExplainJSON(ctx context.Context, sqlText string) (string, error) {
	plan, err := d.explainDoc(ctx, "EXPLAIN (FORMAT json) "+sqlText)
	if err != nil {
		return "", domain.ErrExecution("explain: %v", err)
	}
	return plan, nil
}

// Analyze is the outcome of one EXPLAIN ANALYZE execution: the profiling
// document plus the client-observed wall clock.
type Analyze struct {
	PlanJSON string
	Elapsed  time.Duration
}

// ExplainAnalyze executes sqlText through EXPLAIN ANALYZE, which runs the
// query without shipping its result set, and times it from the client
// side. The caller bounds the run with ctx.
func (d *DB) ExplainAnalyze(ctx context.Context, sqlText string) (Analyze, error) {
	start := time.Now()
	plan, err := d.explainDoc(ctx, "EXPLAIN (ANALYZE, FORMAT json) "+sqlText)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Analyze{}, domain.ErrExecution("explain analyze: timed out after %s", elapsed.Round(time.Millisecond))
		}
		return Analyze{}, domain.ErrExecution("explain analyze: %v", err)
	}
	return Analyze{PlanJSON: plan, Elapsed: elapsed}, nil
}

// explainDoc collects the plan document from DuckDB's (key, value) explain
// rows. The physical plan value wins when several rows come back.
func (d *DB) explainDoc(ctx context.Context, stmt string) (string, error) {
	rows, err := d.sql.QueryContext(ctx, stmt)
	if err != nil {
		return "", err
	}
	defer rows.Close() //nolint:errcheck

	var doc string
	for rows.Next() {
		var key, value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return "", err
		}
		if !value.Valid {
			continue
		}
		doc = value.String
		if key.Valid && key.String == "physical_plan" {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if doc == "" {
		return "", fmt.Errorf("engine returned no plan output")
	}
	return doc, nil
}
