// Package audit optionally persists a session's attempt sequence to a
// SQLite report artifact. The artifact is write-only output: the core
// never reads history back across runs.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"qtune/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	sql         TEXT NOT NULL,
	baseline_ms REAL NOT NULL,
	reason      TEXT NOT NULL,
	best_sql    TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS attempts (
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	idx         INTEGER NOT NULL,
	sql         TEXT NOT NULL,
	rationale   TEXT NOT NULL,
	median_ms   REAL,
	improvement REAL,
	accepted    INTEGER NOT NULL,
	error       TEXT NOT NULL,
	PRIMARY KEY (session_id, idx)
);`

// Recorder writes session reports to a SQLite file.
type Recorder struct {
	db *sql.DB
}

// Open opens (or creates) the report database at path.
func Open(path string) (*Recorder, error) {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_synchronous", "NORMAL")
	params.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("open report db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init report db: %w", err)
	}
	return &Recorder{db: db}, nil
}

// Close releases the underlying handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record writes the whole session, baseline plus attempts, in one
// transaction.
func (r *Recorder) Record(ctx context.Context, sess *domain.Session) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin report tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, label, sql, baseline_ms, reason, best_sql, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Spec.Label, sess.Spec.SQL,
		toMs(sess.Baseline.Median), string(sess.Reason), sess.BestSQL(),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, a := range sess.Attempts {
		var median, improvement any
		if a.Result.OK {
			median = toMs(a.Result.Median)
			improvement = a.Improvement
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO attempts (session_id, idx, sql, rationale, median_ms, improvement, accepted, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, a.Index, a.SQL, a.Rationale, median, improvement,
			boolToInt(a.Accepted), firstNonEmpty(a.Err, a.Result.Err))
		if err != nil {
			return fmt.Errorf("insert attempt %d: %w", a.Index, err)
		}
	}

	return tx.Commit()
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
