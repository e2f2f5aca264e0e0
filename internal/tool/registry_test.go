package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qtune/internal/domain"
	"qtune/internal/inspect"
)

type stubCatalog struct{}

func (stubCatalog) ListRelations(context.Context) ([]inspect.Relation, error) {
	return []inspect.Relation{{Schema: "main", Name: "a", Type: "BASE TABLE"}}, nil
}

func (stubCatalog) Exists(_ context.Context, name string) (bool, error) {
	return name == "a", nil
}

func (stubCatalog) Describe(_ context.Context, name string) ([]domain.Column, error) {
	if name != "a" {
		return nil, domain.ErrNotFound("relation not found in catalog: %s", name)
	}
	return []domain.Column{{Name: "id", Type: "BIGINT"}, {Name: "x", Type: "INTEGER"}}, nil
}

type stubExplainer struct{}

func (stubExplainer) ExplainJSON(context.Context, string) (string, error) {
	return `{"name":"PROJECTION","children":[]}`, nil
}

type stubBencher struct{ fail bool }

func (s stubBencher) Measure(context.Context, string) domain.BenchResult {
	if s.fail {
		return domain.BenchResult{Err: "timeout"}
	}
	return domain.BenchResult{
		Samples: []time.Duration{10 * time.Millisecond, 12 * time.Millisecond, 11 * time.Millisecond},
		Median:  11 * time.Millisecond,
		Min:     10 * time.Millisecond,
		Max:     12 * time.Millisecond,
		OK:      true,
	}
}

func newTestRegistry(failBench bool) *Dispatcher {
	return NewRegistry(Deps{
		Catalog:   stubCatalog{},
		Explainer: stubExplainer{},
		Bencher:   stubBencher{fail: failBench},
	}, nil)
}

func TestNewRegistry_FixedToolSet(t *testing.T) {
	d := newTestRegistry(false)
	var names []string
	for _, def := range d.Definitions() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"list_tables", "table_exists", "describe_relation", "explain", "benchmark"}, names)
}

func TestRegistry_ListTables(t *testing.T) {
	res := newTestRegistry(false).Invoke(context.Background(), "list_tables", nil)
	require.True(t, res.OK, res.Error)
	tables := res.Data.(map[string]any)["tables"].([]map[string]string)
	require.Len(t, tables, 1)
	assert.Equal(t, "a", tables[0]["name"])
}

func TestRegistry_DescribeRelation(t *testing.T) {
	d := newTestRegistry(false)

	res := d.Invoke(context.Background(), "describe_relation", map[string]any{"name": "a"})
	require.True(t, res.OK, res.Error)
	data := res.Data.(map[string]any)
	assert.Equal(t, 2, data["num_columns"])

	res = d.Invoke(context.Background(), "describe_relation", map[string]any{"name": "a", "max_columns": float64(1)})
	require.True(t, res.OK, res.Error)
	data = res.Data.(map[string]any)
	assert.Len(t, data["columns"], 1)
	assert.Equal(t, 2, data["num_columns"])

	// Unknown relation comes back as a structured error, not a fault.
	res = d.Invoke(context.Background(), "describe_relation", map[string]any{"name": "ghost"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "ghost")
}

func TestRegistry_TableExists(t *testing.T) {
	d := newTestRegistry(false)
	res := d.Invoke(context.Background(), "table_exists", map[string]any{"name": "ghost"})
	require.True(t, res.OK, res.Error)
	assert.Equal(t, false, res.Data.(map[string]any)["exists"])
}

func TestRegistry_Benchmark(t *testing.T) {
	res := newTestRegistry(false).Invoke(context.Background(), "benchmark", map[string]any{"sql": "SELECT 1"})
	require.True(t, res.OK, res.Error)
	data := res.Data.(map[string]any)
	assert.InDelta(t, 11.0, data["median_ms"], 0.001)
	assert.Len(t, data["runs_ms"], 3)
}

func TestRegistry_BenchmarkFailure(t *testing.T) {
	res := newTestRegistry(true).Invoke(context.Background(), "benchmark", map[string]any{"sql": "SELECT 1"})
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "timeout")
}
