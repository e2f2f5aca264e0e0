// Package session drives the optimization loop: baseline, iterate,
// compare, terminate. The controller owns all session state and is the
// only thing that mutates it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"qtune/internal/domain"
	"qtune/internal/reason"
)

// Bencher measures a query under the session's fixed settings.
type Bencher interface {
	Measure(ctx context.Context, sqlText string) domain.BenchResult
}

// Profiler produces a plan summary for a query.
type Profiler interface {
	Profile(ctx context.Context, sqlText string) (*domain.PlanSummary, error)
}

// SchemaSource resolves relation schemas for prompt context.
type SchemaSource interface {
	Describe(ctx context.Context, name string) ([]domain.Column, error)
}

// Options bound one session.
type Options struct {
	MaxIters  int     // hard iteration ceiling, >= 1
	Threshold float64 // improvement ratio that ends the session, in (0, 1)
}

// Validate rejects budgets and thresholds a session cannot run with.
func (o Options) Validate() error {
	if o.MaxIters < 1 {
		return domain.ErrConfig("max iterations must be >= 1, got %d", o.MaxIters)
	}
	if o.Threshold <= 0 || o.Threshold >= 1 {
		return domain.ErrConfig("improvement threshold must be in (0, 1), got %g", o.Threshold)
	}
	return nil
}

// Controller runs optimization sessions. All work is strictly
// sequential: benchmark timing integrity requires exclusive use of the
// engine connection.
type Controller struct {
	bench    Bencher
	profiler Profiler
	proposer reason.Proposer
	schema   SchemaSource
	opts     Options
	log      *slog.Logger
}

// New validates the options and builds a controller.
func New(bench Bencher, profiler Profiler, proposer reason.Proposer, schema SchemaSource, opts Options, log *slog.Logger) (*Controller, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		bench:    bench,
		profiler: profiler,
		proposer: proposer,
		schema:   schema,
		opts:     opts,
		log:      log.With("component", "session"),
	}, nil
}

// Run executes one session for the given query. The returned session
// always carries a termination reason; per-iteration failures are
// recorded as failed attempts, never surfaced as errors.
//
// Policy: an invalid or failed candidate consumes an iteration slot. The
// attempt sequence is the complete record of what the budget was spent
// on.
func (c *Controller) Run(ctx context.Context, spec domain.QuerySpec) *domain.Session {
	sess := &domain.Session{
		ID:        uuid.NewString(),
		Spec:      spec,
		BestIndex: -1,
	}
	log := c.log.With("session", sess.ID)

	// Baseline is measured exactly once, before any candidate.
	log.Info("measuring baseline", "label", spec.Label)
	sess.Baseline = c.bench.Measure(ctx, spec.SQL)
	if !sess.Baseline.OK {
		log.Error("baseline benchmark failed", "error", sess.Baseline.Err)
		sess.Reason = domain.ReasonBaselineFailed
		return sess
	}
	log.Info("baseline measured", "median", sess.Baseline.Median)

	schemas, notes := c.schemaContext(ctx, spec.SQL)

	// Plan context follows the current best query; re-profiled only when
	// the best changes.
	var currentPlan *domain.PlanSummary
	profiledSQL := ""

	for i := 0; i < c.opts.MaxIters; i++ {
		if bestSQL := sess.BestSQL(); bestSQL != profiledSQL {
			if summary, err := c.profiler.Profile(ctx, bestSQL); err != nil {
				log.Warn("profiling failed, continuing with stale plan context", "error", err)
				notes = appendOnce(notes, "execution plan unavailable for the current best query")
			} else {
				currentPlan = summary
				profiledSQL = bestSQL
			}
		}

		attempt := c.iterate(ctx, sess, reason.Request{
			Spec:    spec,
			Plan:    currentPlan,
			Schemas: schemas,
			History: sess.Attempts,
			Notes:   notes,
		})
		attempt.Index = i
		sess.Attempts = append(sess.Attempts, attempt)
		idx := len(sess.Attempts) - 1

		if attempt.Err != "" || !attempt.Result.OK {
			log.Warn("iteration failed", "iteration", i+1, "error", firstNonEmpty(attempt.Err, attempt.Result.Err))
			continue
		}

		log.Info("candidate measured",
			"iteration", i+1,
			"median", attempt.Result.Median,
			"improvement", fmt.Sprintf("%.1f%%", attempt.Improvement*100))

		if attempt.Improvement >= c.opts.Threshold {
			sess.Attempts[idx].Accepted = true
			sess.BestIndex = idx
			sess.Reason = domain.ReasonThresholdMet
			log.Info("improvement threshold met", "threshold", c.opts.Threshold)
			return sess
		}

		// Better than the best so far but under the threshold: keep it and
		// continue. Strict comparison keeps the earliest attempt on ties.
		if attempt.Improvement > sess.BestImprovement() {
			sess.Attempts[idx].Accepted = true
			sess.BestIndex = idx
			log.Info("new best under threshold", "improvement", fmt.Sprintf("%.1f%%", attempt.Improvement*100))
		}
	}

	sess.Reason = domain.ReasonBudgetExhausted
	log.Info("iteration budget exhausted", "attempts", len(sess.Attempts))
	return sess
}

// iterate performs one candidate cycle: propose, validate, benchmark,
// compare. Failures come back inside the attempt.
func (c *Controller) iterate(ctx context.Context, sess *domain.Session, req reason.Request) domain.CandidateAttempt {
	candidate, err := c.proposer.Propose(ctx, req)
	if err != nil {
		var candErr *domain.CandidateError
		var reasonErr *domain.ReasoningError
		switch {
		case errors.As(err, &candErr), errors.As(err, &reasonErr):
			return domain.CandidateAttempt{Err: err.Error()}
		default:
			return domain.CandidateAttempt{Err: domain.ErrReasoning("propose: %v", err).Error()}
		}
	}

	attempt := domain.CandidateAttempt{
		SQL:       candidate.SQL,
		Rationale: candidate.Rationale,
	}

	attempt.Result = c.bench.Measure(ctx, candidate.SQL)
	if attempt.Result.OK {
		attempt.Improvement = improvement(sess.Baseline.Median, attempt.Result.Median)
	}
	return attempt
}

// improvement is the fractional reduction in median time versus the
// session baseline. Every attempt shares that one reference point.
func improvement(baseline, candidate time.Duration) float64 {
	if baseline <= 0 {
		return 0
	}
	return float64(baseline-candidate) / float64(baseline)
}

// schemaContext pre-seeds relation schemas for the relations the query
// references. Missing relations degrade context with a note instead of
// failing the session.
func (c *Controller) schemaContext(ctx context.Context, sqlText string) (map[string][]domain.Column, []string) {
	schemas := map[string][]domain.Column{}
	var notes []string
	for _, ref := range reason.TableRefs(sqlText) {
		cols, err := c.schema.Describe(ctx, ref)
		if err != nil {
			var notFound *domain.NotFoundError
			if errors.As(err, &notFound) {
				notes = append(notes, fmt.Sprintf("relation %s is not in the catalog", ref))
			} else {
				c.log.Warn("schema lookup failed", "relation", ref, "error", err)
			}
			continue
		}
		schemas[ref] = cols
	}
	return schemas, notes
}

func appendOnce(notes []string, note string) []string {
	for _, n := range notes {
		if n == note {
			return notes
		}
	}
	return append(notes, note)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
