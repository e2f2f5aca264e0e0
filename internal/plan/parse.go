// Package plan turns DuckDB explain output into a normalized operator
// tree and flags heuristic anti-patterns over it.
package plan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"qtune/internal/domain"
)

// Operator names that are wrappers around the real plan root. They are
// unwrapped when they carry exactly one child.
var wrapperNames = map[string]struct{}{
	"QUERY":            {},
	"QUERY_ROOT":       {},
	"EXPLAIN":          {},
	"EXPLAIN_ANALYZE":  {},
	"RESULT_COLLECTOR": {},
}

// Parse reads a DuckDB EXPLAIN (FORMAT json) or EXPLAIN (ANALYZE, FORMAT
// json) document and produces the operator tree. The two formats share
// the nested children shape but differ in field names, so lookups are
// tolerant of both.
func Parse(raw string) (*domain.PlanNode, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode plan json: %w", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	node, err := parseNode(entry)
	if err != nil {
		return nil, err
	}

	for node != nil && len(node.Children) == 1 {
		if _, ok := wrapperNames[node.Name]; !ok {
			break
		}
		node = node.Children[0]
	}
	if node == nil {
		return nil, fmt.Errorf("plan json: empty operator tree")
	}
	return node, nil
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("plan json: empty payload")
		}
		obj, ok := v[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("plan json: unexpected entry type %T", v[0])
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("plan json: unexpected top-level type %T", payload)
	}
}

func parseNode(data map[string]any) (*domain.PlanNode, error) {
	name := asString(firstOf(data, "operator_type", "operator_name", "name"))

	node := &domain.PlanNode{
		Name:  strings.TrimSpace(name),
		Extra: map[string]string{},
	}
	node.Kind = classify(node.Name)

	if extra, ok := data["extra_info"].(map[string]any); ok {
		for k, v := range extra {
			node.Extra[k] = asString(v)
		}
	} else if s := asString(data["extra_info"]); s != "" {
		node.Extra["info"] = s
	}

	node.Rows = rowCount(data, node.Extra)

	children, _ := data["children"].([]any)
	for i, childVal := range children {
		childMap, ok := childVal.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("plan json: child %d is %T, not an object", i, childVal)
		}
		child, err := parseNode(childMap)
		if err != nil {
			return nil, err
		}
		// The profiling format wraps the tree in an unnamed root node.
		if child.Name == "" && len(child.Children) == 1 {
			child = child.Children[0]
		}
		node.Children = append(node.Children, child)
	}

	return node, nil
}

// rowCount prefers the actual cardinality of an ANALYZE run and falls
// back to the planner's estimate.
func rowCount(data map[string]any, extra map[string]string) int64 {
	if v := asInt64(firstOf(data, "operator_cardinality", "cardinality")); v > 0 {
		return v
	}
	for _, key := range []string{"Estimated Cardinality", "estimated_cardinality", "EC"} {
		if s, ok := extra[key]; ok {
			if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return v
			}
		}
	}
	return 0
}

func classify(name string) domain.PlanNodeKind {
	n := strings.ToUpper(name)
	switch {
	case strings.Contains(n, "SCAN") || strings.Contains(n, "GET"):
		return domain.KindScan
	case strings.Contains(n, "JOIN") || strings.Contains(n, "CROSS_PRODUCT"):
		return domain.KindJoin
	case strings.Contains(n, "AGGREGATE") || strings.Contains(n, "GROUP"):
		return domain.KindAggregate
	case strings.Contains(n, "ORDER") || strings.Contains(n, "SORT") || strings.Contains(n, "TOP_N"):
		return domain.KindSort
	case strings.Contains(n, "PROJECTION"):
		return domain.KindProjection
	case strings.Contains(n, "FILTER"):
		return domain.KindFilter
	default:
		return domain.KindOther
	}
}

func firstOf(data map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asInt64(val any) int64 {
	switch v := val.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
		return 0
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
