package plan

import (
	"context"
	"log/slog"

	"qtune/internal/domain"
	"qtune/internal/engine"
)

// Analyzer is the engine facility the profiler runs queries through.
type Analyzer interface {
	ExplainAnalyze(ctx context.Context, sqlText string) (engine.Analyze, error)
}

// Profiler produces PlanSummary snapshots. Profiling runs outside the
// timed benchmark so its overhead never contaminates measurements.
type Profiler struct {
	db  Analyzer
	log *slog.Logger
}

// NewProfiler creates a Profiler over the given engine facility.
func NewProfiler(db Analyzer, log *slog.Logger) *Profiler {
	if log == nil {
		log = slog.Default()
	}
	return &Profiler{db: db, log: log.With("component", "plan")}
}

// Profile runs the query once through EXPLAIN ANALYZE and returns the
// normalized plan summary. A plan the engine cannot produce (syntax
// error) propagates as an ExecutionError; nothing is fabricated.
func (p *Profiler) Profile(ctx context.Context, sqlText string) (*domain.PlanSummary, error) {
	res, err := p.db.ExplainAnalyze(ctx, sqlText)
	if err != nil {
		return nil, err
	}

	root, err := Parse(res.PlanJSON)
	if err != nil {
		return nil, domain.ErrExecution("parse plan: %v", err)
	}

	patterns := Detect(root, sqlText)
	p.log.Debug("profiled query", "operators", countNodes(root), "anti_patterns", patterns)

	return &domain.PlanSummary{
		Root:         root,
		AntiPatterns: patterns,
		Raw:          res.PlanJSON,
	}, nil
}

func countNodes(root *domain.PlanNode) int {
	n := 0
	root.Walk(func(*domain.PlanNode) { n++ })
	return n
}
