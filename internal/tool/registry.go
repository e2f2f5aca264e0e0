package tool

import (
	"context"
	"log/slog"
	"time"

	"qtune/internal/domain"
	"qtune/internal/inspect"
)

// Catalog answers schema questions.
type Catalog interface {
	ListRelations(ctx context.Context) ([]inspect.Relation, error)
	Exists(ctx context.Context, name string) (bool, error)
	Describe(ctx context.Context, name string) ([]domain.Column, error)
}

// Explainer produces a plan without executing the query.
type Explainer interface {
	ExplainJSON(ctx context.Context, sqlText string) (string, error)
}

// Bencher measures a query under the session's fixed settings. The tool
// surface reuses those settings so numbers the reasoning service sees are
// comparable with the controller's own measurements.
type Bencher interface {
	Measure(ctx context.Context, sqlText string) domain.BenchResult
}

// Deps are the components the standard registry exposes.
type Deps struct {
	Catalog   Catalog
	Explainer Explainer
	Bencher   Bencher
}

// NewRegistry builds the fixed tool registry: list_tables, table_exists,
// describe_relation, explain, benchmark.
func NewRegistry(deps Deps, log *slog.Logger) *Dispatcher {
	d := NewDispatcher(log)

	d.Register(Definition{
		Name:        "list_tables",
		Description: "List tables and views in the database catalog, excluding system schemas.",
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			rels, err := deps.Catalog.ListRelations(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]string, 0, len(rels))
			for _, r := range rels {
				out = append(out, map[string]string{"schema": r.Schema, "name": r.Name, "type": r.Type})
			}
			return map[string]any{"tables": out}, nil
		},
	})

	d.Register(Definition{
		Name:        "table_exists",
		Description: "Check whether a relation exists in the catalog. Accepts schema.table or table.",
		Params: []Param{
			{Name: "name", Type: "string", Description: "Relation name", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			name := args["name"].(string)
			exists, err := deps.Catalog.Exists(ctx, name)
			if err != nil {
				return nil, err
			}
			return map[string]any{"name": name, "exists": exists}, nil
		},
	})

	d.Register(Definition{
		Name:        "describe_relation",
		Description: "Get ordered column names and types for a table or view.",
		Params: []Param{
			{Name: "name", Type: "string", Description: "Relation name", Required: true},
			{Name: "max_columns", Type: "integer", Description: "Column limit in the response", Default: 200},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			name := args["name"].(string)
			limit := args["max_columns"].(int)
			cols, err := deps.Catalog.Describe(ctx, name)
			if err != nil {
				return nil, err
			}
			total := len(cols)
			if limit > 0 && len(cols) > limit {
				cols = cols[:limit]
			}
			out := make([]map[string]string, 0, len(cols))
			for _, c := range cols {
				out = append(out, map[string]string{"name": c.Name, "type": c.Type})
			}
			return map[string]any{"relation": name, "columns": out, "num_columns": total}, nil
		},
	})

	d.Register(Definition{
		Name:        "explain",
		Description: "Return the engine's execution plan for a query without running it. Pass raw SQL only: no markdown, no backticks.",
		Params: []Param{
			{Name: "sql", Type: "string", Description: "Raw SQL text", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			doc, err := deps.Explainer.ExplainJSON(ctx, args["sql"].(string))
			if err != nil {
				return nil, err
			}
			return map[string]any{"plan": doc}, nil
		},
	})

	d.Register(Definition{
		Name:        "benchmark",
		Description: "Benchmark a query with the session's warmup and run settings and return median timing. Pass raw SQL only: no markdown, no backticks.",
		Params: []Param{
			{Name: "sql", Type: "string", Description: "Raw SQL text", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			res := deps.Bencher.Measure(ctx, args["sql"].(string))
			if !res.OK {
				return nil, domain.ErrExecution("benchmark failed: %s", res.Err)
			}
			samples := make([]float64, len(res.Samples))
			for i, s := range res.Samples {
				samples[i] = durToMs(s)
			}
			return map[string]any{
				"median_ms": durToMs(res.Median),
				"min_ms":    durToMs(res.Min),
				"max_ms":    durToMs(res.Max),
				"runs_ms":   samples,
			}, nil
		},
	})

	return d
}

func durToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
