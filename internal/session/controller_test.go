package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qtune/internal/domain"
	"qtune/internal/reason"
)

const (
	originalSQL = "SELECT * FROM a JOIN b ON a.id=b.id WHERE a.x=1"
	prunedSQL   = "SELECT a.id, b.y FROM a JOIN b ON a.id=b.id AND a.x=1"
)

// mapBencher returns a fixed median per SQL text; unknown queries fail.
type mapBencher struct {
	medians map[string]time.Duration
	calls   []string
}

func (b *mapBencher) Measure(_ context.Context, sqlText string) domain.BenchResult {
	b.calls = append(b.calls, sqlText)
	median, ok := b.medians[sqlText]
	if !ok {
		return domain.BenchResult{Err: "execution failed"}
	}
	return domain.BenchResult{
		Samples: []time.Duration{median, median, median},
		Median:  median,
		Min:     median,
		Max:     median,
		OK:      true,
	}
}

type stubProfiler struct {
	profiled []string
}

func (p *stubProfiler) Profile(_ context.Context, sqlText string) (*domain.PlanSummary, error) {
	p.profiled = append(p.profiled, sqlText)
	return &domain.PlanSummary{
		Root: &domain.PlanNode{Kind: domain.KindScan, Name: "SEQ_SCAN", Rows: 1000},
	}, nil
}

// scriptedProposer returns one scripted outcome per iteration.
type scriptedProposer struct {
	candidates []reason.Candidate
	errs       []error
	calls      int
}

func (p *scriptedProposer) Propose(_ context.Context, _ reason.Request) (reason.Candidate, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return reason.Candidate{}, p.errs[idx]
	}
	if idx >= len(p.candidates) {
		idx = len(p.candidates) - 1
	}
	return p.candidates[idx], nil
}

type stubSchema struct{}

func (stubSchema) Describe(_ context.Context, name string) ([]domain.Column, error) {
	switch name {
	case "a":
		return []domain.Column{{Name: "id", Type: "BIGINT"}, {Name: "x", Type: "INTEGER"}}, nil
	case "b":
		return []domain.Column{{Name: "id", Type: "BIGINT"}, {Name: "y", Type: "INTEGER"}}, nil
	default:
		return nil, domain.ErrNotFound("relation not found in catalog: %s", name)
	}
}

func newController(t *testing.T, b Bencher, p reason.Proposer, opts Options) *Controller {
	t.Helper()
	c, err := New(b, &stubProfiler{}, p, stubSchema{}, opts, nil)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero iters", Options{MaxIters: 0, Threshold: 0.1}},
		{"zero threshold", Options{MaxIters: 3, Threshold: 0}},
		{"threshold of one", Options{MaxIters: 3, Threshold: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(&mapBencher{}, &stubProfiler{}, &scriptedProposer{}, stubSchema{}, tc.opts, nil)
			require.Error(t, err)
			var cfgErr *domain.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

// Column-pruned rewrite cuts the median by a third: with threshold 0.2
// the session must stop at iteration 1 with the rewrite as best.
func TestRun_ThresholdMet(t *testing.T) {
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL: 300 * time.Millisecond,
		prunedSQL:   200 * time.Millisecond,
	}}
	proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: prunedSQL, Rationale: "pruned columns, pushed predicate"}}}

	c := newController(t, bencher, proposer, Options{MaxIters: 3, Threshold: 0.2})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	assert.Equal(t, domain.ReasonThresholdMet, sess.Reason)
	require.Len(t, sess.Attempts, 1)
	best := sess.Best()
	require.NotNil(t, best)
	assert.Equal(t, prunedSQL, best.SQL)
	assert.True(t, best.Accepted)
	assert.InDelta(t, 1.0/3.0, best.Improvement, 0.001)
	assert.GreaterOrEqual(t, best.Improvement, 0.2)
}

// A proposer that always returns the original query burns the whole
// budget with ~0 improvement and leaves the baseline as best.
func TestRun_BudgetExhausted(t *testing.T) {
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL: 100 * time.Millisecond,
	}}
	proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: originalSQL}}}

	c := newController(t, bencher, proposer, Options{MaxIters: 3, Threshold: 0.1})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	assert.Equal(t, domain.ReasonBudgetExhausted, sess.Reason)
	require.Len(t, sess.Attempts, 3)
	for _, a := range sess.Attempts {
		assert.InDelta(t, 0, a.Improvement, 0.001)
		assert.False(t, a.Accepted)
	}
	assert.Nil(t, sess.Best())
	assert.Equal(t, originalSQL, sess.BestSQL())
	assert.Equal(t, 3, proposer.calls)
}

// Baseline failure terminates immediately with zero attempts.
func TestRun_BaselineFailed(t *testing.T) {
	bencher := &mapBencher{medians: map[string]time.Duration{}} // everything fails
	proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: prunedSQL}}}

	c := newController(t, bencher, proposer, Options{MaxIters: 3, Threshold: 0.1})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	assert.Equal(t, domain.ReasonBaselineFailed, sess.Reason)
	assert.Empty(t, sess.Attempts)
	assert.Equal(t, 0, proposer.calls)
	assert.False(t, sess.Baseline.OK)
}

// An invalid candidate consumes an iteration slot and the loop carries
// on to the next iteration.
func TestRun_InvalidCandidateConsumesSlot(t *testing.T) {
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL: 300 * time.Millisecond,
		prunedSQL:   200 * time.Millisecond,
	}}
	proposer := &scriptedProposer{
		candidates: []reason.Candidate{{SQL: originalSQL}, {}, {SQL: prunedSQL}},
		errs:       []error{nil, domain.ErrCandidate("no SQL found in answer"), nil},
	}

	c := newController(t, bencher, proposer, Options{MaxIters: 3, Threshold: 0.2})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	require.Len(t, sess.Attempts, 3)
	assert.Contains(t, sess.Attempts[1].Err, "no SQL found")
	assert.False(t, sess.Attempts[1].Result.OK)
	assert.Equal(t, domain.ReasonThresholdMet, sess.Reason)
	assert.Equal(t, 2, sess.Best().Index)
}

// Candidate benchmark failures are localized to their iteration.
func TestRun_FailedCandidateBenchmarkContinues(t *testing.T) {
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL: 300 * time.Millisecond,
		// prunedSQL missing: its benchmark fails
	}}
	proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: prunedSQL}}}

	c := newController(t, bencher, proposer, Options{MaxIters: 2, Threshold: 0.1})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	assert.Equal(t, domain.ReasonBudgetExhausted, sess.Reason)
	require.Len(t, sess.Attempts, 2)
	for _, a := range sess.Attempts {
		assert.False(t, a.Result.OK)
	}
	assert.Nil(t, sess.Best())
}

// Best-so-far is kept when under threshold, and never regresses.
func TestRun_BestUnderThresholdIsKept(t *testing.T) {
	slightlyBetter := "SELECT a.id FROM a JOIN b ON a.id=b.id WHERE a.x=1"
	worse := "SELECT a.id, b.y FROM b JOIN a ON a.id=b.id WHERE a.x=1"
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL:    300 * time.Millisecond,
		slightlyBetter: 270 * time.Millisecond, // 10%, under a 50% threshold
		worse:          400 * time.Millisecond,
	}}
	proposer := &scriptedProposer{candidates: []reason.Candidate{
		{SQL: slightlyBetter},
		{SQL: worse},
	}}

	c := newController(t, bencher, proposer, Options{MaxIters: 2, Threshold: 0.5})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	assert.Equal(t, domain.ReasonBudgetExhausted, sess.Reason)
	require.Len(t, sess.Attempts, 2)

	best := sess.Best()
	require.NotNil(t, best)
	assert.Equal(t, slightlyBetter, best.SQL)
	assert.Equal(t, 0, best.Index)

	// Monotonic non-regression: best median never exceeds baseline.
	assert.LessOrEqual(t, sess.BestMedian(), sess.Baseline.Median)
	assert.Negative(t, sess.Attempts[1].Improvement)
}

// Equal improvement keeps the earliest attempt as best.
func TestRun_TieKeepsEarliestAttempt(t *testing.T) {
	twinA := "SELECT a.id FROM a WHERE a.x=1"
	twinB := "SELECT id FROM a WHERE x=1"
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL: 300 * time.Millisecond,
		twinA:       270 * time.Millisecond,
		twinB:       270 * time.Millisecond,
	}}
	proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: twinA}, {SQL: twinB}}}

	c := newController(t, bencher, proposer, Options{MaxIters: 2, Threshold: 0.5})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	require.NotNil(t, sess.Best())
	assert.Equal(t, 0, sess.Best().Index)
	assert.Equal(t, twinA, sess.Best().SQL)
}

// The baseline is measured exactly once, before any candidate.
func TestRun_BaselineMeasuredOnce(t *testing.T) {
	bencher := &mapBencher{medians: map[string]time.Duration{
		originalSQL: 100 * time.Millisecond,
	}}
	proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: originalSQL}}}

	c := newController(t, bencher, proposer, Options{MaxIters: 2, Threshold: 0.1})
	sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})

	require.NotEmpty(t, bencher.calls)
	assert.Equal(t, originalSQL, bencher.calls[0])
	assert.Len(t, sess.Attempts, 2)
	// 1 baseline + 2 candidate measurements
	assert.Len(t, bencher.calls, 3)
}

// The attempt sequence length never exceeds the budget.
func TestRun_AttemptsBoundedByBudget(t *testing.T) {
	for _, maxIters := range []int{1, 2, 5} {
		bencher := &mapBencher{medians: map[string]time.Duration{
			originalSQL: 100 * time.Millisecond,
		}}
		proposer := &scriptedProposer{candidates: []reason.Candidate{{SQL: originalSQL}}}
		c := newController(t, bencher, proposer, Options{MaxIters: maxIters, Threshold: 0.1})

		sess := c.Run(context.Background(), domain.QuerySpec{SQL: originalSQL})
		assert.LessOrEqual(t, len(sess.Attempts), maxIters)
		assert.Len(t, sess.Attempts, maxIters)
	}
}
