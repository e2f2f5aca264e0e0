package cli

import (
	"fmt"
	"io"
	"time"

	"qtune/internal/domain"
)

// printReport writes the human-readable session summary. Improvements
// shown here are always independently measured by the benchmark harness;
// the reasoning service's own claims never appear as numbers.
func printReport(w io.Writer, sess *domain.Session) {
	fmt.Fprintf(w, "\nSession %s\n", sess.ID)
	if sess.Spec.Label != "" {
		fmt.Fprintf(w, "Query: %s\n", sess.Spec.Label)
	}

	if !sess.Baseline.OK {
		fmt.Fprintf(w, "Baseline benchmark failed: %s\n", sess.Baseline.Err)
		fmt.Fprintf(w, "Termination: %s\n", sess.Reason)
		return
	}

	fmt.Fprintf(w, "Baseline median: %s (%d runs)\n",
		fmtDur(sess.Baseline.Median), len(sess.Baseline.Samples))

	for _, a := range sess.Attempts {
		switch {
		case a.Err != "":
			fmt.Fprintf(w, "  iter %d: failed — %s\n", a.Index+1, a.Err)
		case !a.Result.OK:
			fmt.Fprintf(w, "  iter %d: benchmark failed — %s\n", a.Index+1, a.Result.Err)
		default:
			marker := ""
			if a.Accepted {
				marker = "  *"
			}
			fmt.Fprintf(w, "  iter %d: median %s, improvement %.1f%%%s\n",
				a.Index+1, fmtDur(a.Result.Median), a.Improvement*100, marker)
		}
	}

	fmt.Fprintf(w, "Termination: %s\n", sess.Reason)
	if best := sess.Best(); best != nil {
		fmt.Fprintf(w, "Best: iteration %d, median %s, improvement %.1f%% over baseline\n",
			best.Index+1, fmtDur(best.Result.Median), best.Improvement*100)
		fmt.Fprintf(w, "\n%s\n", best.SQL)
		if best.Rationale != "" {
			fmt.Fprintf(w, "\nRationale: %s\n", best.Rationale)
		}
	} else {
		fmt.Fprintf(w, "Best: baseline (no measured improvement)\n")
	}
}

func fmtDur(d time.Duration) string {
	return d.Round(10 * time.Microsecond).String()
}
