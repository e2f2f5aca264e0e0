// Package bench measures query execution time with warmup runs and
// robust statistics. EXPLAIN ANALYZE is the measurement primitive: the
// engine executes the query fully without shipping the result set.
package bench

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"qtune/internal/domain"
	"qtune/internal/engine"
	"qtune/internal/plan"
)

// Runner executes one measurement run against the engine.
type Runner interface {
	ExplainAnalyze(ctx context.Context, sqlText string) (engine.Analyze, error)
}

// Options bound one harness.
type Options struct {
	Warmup  int           // discarded priming runs, >= 0
	Runs    int           // measured runs, >= 1
	Timeout time.Duration // per individual run, not the batch
}

// Harness runs queries under fixed measurement settings.
type Harness struct {
	runner Runner
	opts   Options
	log    *slog.Logger
}

// New validates the measurement settings and builds a harness.
func New(runner Runner, opts Options, log *slog.Logger) (*Harness, error) {
	if opts.Runs < 1 {
		return nil, domain.ErrConfig("benchmark runs must be >= 1, got %d", opts.Runs)
	}
	if opts.Warmup < 0 {
		return nil, domain.ErrConfig("benchmark warmup must be >= 0, got %d", opts.Warmup)
	}
	if opts.Timeout <= 0 {
		return nil, domain.ErrConfig("benchmark timeout must be positive, got %s", opts.Timeout)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Harness{runner: runner, opts: opts, log: log.With("component", "bench")}, nil
}

// Measure executes the warmup and measured runs sequentially and returns
// an immutable result snapshot. A failure on any run, warmup included,
// marks the whole result failed and discards partial timings: a
// benchmark is only trustworthy if every run completed.
func (h *Harness) Measure(ctx context.Context, sqlText string) domain.BenchResult {
	start := time.Now()

	for i := 0; i < h.opts.Warmup; i++ {
		if _, err := h.run(ctx, sqlText); err != nil {
			return failed(err, time.Since(start))
		}
	}

	samples := make([]time.Duration, 0, h.opts.Runs)
	var last engine.Analyze
	for i := 0; i < h.opts.Runs; i++ {
		res, err := h.run(ctx, sqlText)
		if err != nil {
			return failed(err, time.Since(start))
		}
		samples = append(samples, res.Elapsed)
		last = res
	}

	result := domain.BenchResult{
		Samples:     samples,
		Median:      Median(samples),
		Min:         minOf(samples),
		Max:         maxOf(samples),
		Elapsed:     time.Since(start),
		OK:          true,
		AnalyzeJSON: last.PlanJSON,
	}
	if root, err := plan.Parse(last.PlanJSON); err == nil {
		result.Rows = root.Rows
	}

	h.log.Debug("measured query",
		"runs", h.opts.Runs, "warmup", h.opts.Warmup,
		"median", result.Median, "min", result.Min, "max", result.Max)
	return result
}

func (h *Harness) run(ctx context.Context, sqlText string) (engine.Analyze, error) {
	runCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()
	return h.runner.ExplainAnalyze(runCtx, sqlText)
}

func failed(err error, elapsed time.Duration) domain.BenchResult {
	return domain.BenchResult{Elapsed: elapsed, Err: err.Error()}
}

// Median returns the statistical median of the samples: the middle value
// for odd counts, the average of the two middle values for even counts.
func Median(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func minOf(samples []time.Duration) time.Duration {
	m := samples[0]
	for _, s := range samples[1:] {
		if s < m {
			m = s
		}
	}
	return m
}

func maxOf(samples []time.Duration) time.Duration {
	m := samples[0]
	for _, s := range samples[1:] {
		if s > m {
			m = s
		}
	}
	return m
}
