package plan

import (
	"regexp"
	"sort"

	"qtune/internal/domain"
)

// Detection thresholds. These shape the context handed to the reasoning
// service; they are not correctness guarantees.
const (
	largeScanRows = 10_000
	blowupFactor  = 10
)

var wildcardRe = regexp.MustCompile(`(?is)\bselect\s+(\w+\.)?\*`)

// Detect runs the rule set over a parsed plan tree and returns the sorted
// set of anti-pattern tags.
func Detect(root *domain.PlanNode, sqlText string) []string {
	tags := map[string]struct{}{}

	if wildcardRe.MatchString(sqlText) {
		tags[domain.PatternWildcard] = struct{}{}
	}

	root.Walk(func(n *domain.PlanNode) {
		switch n.Kind {
		case domain.KindScan:
			if n.Rows >= largeScanRows && !scanHasFilter(n) {
				tags[domain.PatternFullScan] = struct{}{}
			}
		case domain.KindFilter:
			if subtreeHasJoin(n) {
				tags[domain.PatternLateFilter] = struct{}{}
			}
		case domain.KindJoin:
			if joinBlowsUp(n) {
				tags[domain.PatternJoinBlowup] = struct{}{}
			}
		}
	})

	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// scanHasFilter reports whether the engine pushed a predicate into the
// scan operator itself.
func scanHasFilter(n *domain.PlanNode) bool {
	for key := range n.Extra {
		switch key {
		case "Filters", "filters", "Filter", "filter":
			return true
		}
	}
	return false
}

func subtreeHasJoin(n *domain.PlanNode) bool {
	found := false
	for _, c := range n.Children {
		c.Walk(func(d *domain.PlanNode) {
			if d.Kind == domain.KindJoin {
				found = true
			}
		})
	}
	return found
}

// joinBlowsUp flags joins whose output is disproportionately larger than
// either input, the cartesian-like shape.
func joinBlowsUp(n *domain.PlanNode) bool {
	if len(n.Children) < 2 || n.Rows == 0 {
		return false
	}
	var largest int64
	for _, c := range n.Children {
		if c.Rows > largest {
			largest = c.Rows
		}
	}
	if largest == 0 {
		return false
	}
	return n.Rows >= largest*blowupFactor
}
