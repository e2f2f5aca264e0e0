package reason

import (
	"fmt"
	"strings"
	"time"

	"qtune/internal/domain"
)

const systemPrompt = `You are a SQL optimization agent for DuckDB.

Rules:
- Do NOT assume tables or columns. Use tools to check existence and schema.
- Use explain and benchmark tools to evaluate rewrites before answering.
- When calling tools, pass raw SQL only. Never include backticks, markdown
  headings, or commentary in tool arguments.
- Preserve semantics: do not add LIMIT, sampling, or approximations.
- Prefer rewrites that reduce scanned columns/rows and intermediate join
  cardinality:
  - Avoid SELECT *
  - Push filters down
  - Pre-aggregate before joins when safe
  - Replace correlated subqueries with joins/CTEs
  - Deduplicate repeated subqueries
- Do not repeat rewrites that already failed in the attempt history.
- Final answer: exactly one SELECT statement inside a single fenced block
  marked sql, followed by a short rationale. Keep it concise.`

// buildUserPrompt renders the structured request as the opening user turn.
func buildUserPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: propose a faster, semantically equivalent rewrite of this DuckDB query.\n\n")
	fmt.Fprintf(&b, "SQL:\n```sql\n%s\n```\n", strings.TrimSpace(req.Spec.SQL))

	if req.Plan != nil {
		b.WriteString("\nExecution plan of the current best query:\n")
		renderPlan(&b, req.Plan.Root, 0)
		if len(req.Plan.AntiPatterns) > 0 {
			fmt.Fprintf(&b, "\nDetected anti-patterns: %s\n", strings.Join(req.Plan.AntiPatterns, ", "))
		}
	}

	if len(req.Schemas) > 0 {
		b.WriteString("\nRelation schemas:\n")
		for name, cols := range req.Schemas {
			parts := make([]string, 0, len(cols))
			for _, c := range cols {
				parts = append(parts, c.Name+" "+c.Type)
			}
			fmt.Fprintf(&b, "- %s(%s)\n", name, strings.Join(parts, ", "))
		}
	}

	for _, note := range req.Notes {
		fmt.Fprintf(&b, "\nNote: %s\n", note)
	}

	if len(req.History) > 0 {
		b.WriteString("\nPrior attempts (do not repeat these):\n")
		for _, a := range req.History {
			b.WriteString(renderAttempt(a))
		}
	}

	return b.String()
}

func renderPlan(b *strings.Builder, node *domain.PlanNode, depth int) {
	if node == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%s- %s [%s] rows=%d\n", indent, node.Name, node.Kind, node.Rows)
	for _, c := range node.Children {
		renderPlan(b, c, depth+1)
	}
}

func renderAttempt(a domain.CandidateAttempt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- attempt %d: ", a.Index+1)
	switch {
	case a.Err != "":
		fmt.Fprintf(&b, "failed (%s)", a.Err)
	case !a.Result.OK:
		fmt.Fprintf(&b, "benchmark failed (%s)", a.Result.Err)
	default:
		fmt.Fprintf(&b, "median %s, improvement %.1f%%",
			a.Result.Median.Round(time.Microsecond), a.Improvement*100)
	}
	if a.SQL != "" {
		fmt.Fprintf(&b, "\n  sql: %s", condense(a.SQL))
	}
	b.WriteString("\n")
	return b.String()
}

// condense flattens a query to one line for the history block.
func condense(sqlText string) string {
	return strings.Join(strings.Fields(sqlText), " ")
}
