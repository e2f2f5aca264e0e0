package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qtune/internal/domain"
)

func sampleSession() *domain.Session {
	return &domain.Session{
		ID:   "s-1",
		Spec: domain.QuerySpec{SQL: "SELECT * FROM t", Label: "orders-rollup"},
		Baseline: domain.BenchResult{
			Samples: []time.Duration{100 * time.Millisecond},
			Median:  100 * time.Millisecond,
			OK:      true,
		},
		Attempts: []domain.CandidateAttempt{
			{
				Index:     0,
				SQL:       "SELECT a FROM t",
				Rationale: "pruned columns",
				Result: domain.BenchResult{
					Median: 80 * time.Millisecond,
					OK:     true,
				},
				Improvement: 0.2,
				Accepted:    true,
			},
			{
				Index: 1,
				SQL:   "SELECT b FROM t",
				Err:   "candidate contains disallowed verb",
			},
		},
		BestIndex: 0,
		Reason:    domain.ReasonThresholdMet,
	}
}

func TestRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.db")
	rec, err := Open(path)
	require.NoError(t, err)
	defer rec.Close() //nolint:errcheck

	require.NoError(t, rec.Record(context.Background(), sampleSession()))

	var label, reason, bestSQL string
	var baselineMs float64
	row := rec.db.QueryRow(`SELECT label, reason, best_sql, baseline_ms FROM sessions WHERE id = 's-1'`)
	require.NoError(t, row.Scan(&label, &reason, &bestSQL, &baselineMs))
	assert.Equal(t, "orders-rollup", label)
	assert.Equal(t, "threshold_met", reason)
	assert.Equal(t, "SELECT a FROM t", bestSQL)
	assert.InDelta(t, 100.0, baselineMs, 0.001)

	var n int
	require.NoError(t, rec.db.QueryRow(`SELECT COUNT(*) FROM attempts WHERE session_id = 's-1'`).Scan(&n))
	assert.Equal(t, 2, n)

	// The failed attempt carries no measurements, only its error.
	var median, improvement any
	var errText string
	row = rec.db.QueryRow(`SELECT median_ms, improvement, error FROM attempts WHERE session_id = 's-1' AND idx = 1`)
	require.NoError(t, row.Scan(&median, &improvement, &errText))
	assert.Nil(t, median)
	assert.Nil(t, improvement)
	assert.Contains(t, errText, "disallowed verb")
}

func TestRecord_ReopenAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.db")

	rec, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, rec.Record(context.Background(), sampleSession()))
	require.NoError(t, rec.Close())

	rec, err = Open(path)
	require.NoError(t, err)
	defer rec.Close() //nolint:errcheck

	second := sampleSession()
	second.ID = "s-2"
	require.NoError(t, rec.Record(context.Background(), second))

	var n int
	require.NoError(t, rec.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n))
	assert.Equal(t, 2, n)
}

func TestRecord_DuplicateSessionFails(t *testing.T) {
	rec, err := Open(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	defer rec.Close() //nolint:errcheck

	sess := sampleSession()
	require.NoError(t, rec.Record(context.Background(), sess))
	assert.Error(t, rec.Record(context.Background(), sess))
}
