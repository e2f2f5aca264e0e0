// Package domain holds the core types shared across the tuning loop.
// It has no dependencies on the engine, the reasoning service, or the
// CLI; everything else depends on it.
package domain

import "time"

// QuerySpec is the immutable description of the query under optimization.
type QuerySpec struct {
	SQL   string
	Label string
}

// BenchResult is the immutable outcome of one benchmark batch. A failed
// result carries no timings: partial measurements are never reported.
type BenchResult struct {
	Samples     []time.Duration // per measured run, in execution order
	Median      time.Duration
	Min         time.Duration
	Max         time.Duration
	Rows        int64 // result cardinality reported by the engine
	Elapsed     time.Duration
	OK          bool
	Err         string
	AnalyzeJSON string // raw plan document of the last measured run
}

// PlanNodeKind classifies plan operators into the coarse categories the
// anti-pattern rules reason about.
type PlanNodeKind int

const (
	KindOther PlanNodeKind = iota
	KindScan
	KindJoin
	KindAggregate
	KindSort
	KindProjection
	KindFilter
)

func (k PlanNodeKind) String() string {
	switch k {
	case KindScan:
		return "scan"
	case KindJoin:
		return "join"
	case KindAggregate:
		return "aggregate"
	case KindSort:
		return "sort"
	case KindProjection:
		return "projection"
	case KindFilter:
		return "filter"
	default:
		return "other"
	}
}

// PlanNode is one operator in the normalized plan tree.
type PlanNode struct {
	Kind     PlanNodeKind
	Name     string // engine operator name, e.g. SEQ_SCAN
	Rows     int64  // actual cardinality, or the estimate when unanalyzed
	Extra    map[string]string
	Children []*PlanNode
}

// Walk visits the node and every descendant in depth-first order.
func (n *PlanNode) Walk(fn func(*PlanNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Anti-pattern tags attached to a plan summary.
const (
	PatternFullScan   = "full_scan"
	PatternWildcard   = "wildcard_projection"
	PatternLateFilter = "late_filter"
	PatternJoinBlowup = "join_blowup"
)

// PlanSummary is the profiling snapshot handed to the reasoning service.
type PlanSummary struct {
	Root         *PlanNode
	AntiPatterns []string // sorted, de-duplicated
	Raw          string   // original plan document
}

// Column describes one column of a relation.
type Column struct {
	Name string
	Type string
}

// CandidateAttempt records one iteration of the loop: the proposed SQL
// and its independently measured outcome. A failed attempt stays in the
// sequence; the attempt list is the complete record of the budget.
type CandidateAttempt struct {
	Index       int // zero-based position in the session
	SQL         string
	Rationale   string
	Result      BenchResult
	Improvement float64 // fractional reduction versus the session baseline
	Accepted    bool
	Err         string // proposal failure, distinct from a benchmark failure
}

// TerminationReason says why a session ended.
type TerminationReason string

const (
	ReasonThresholdMet    TerminationReason = "threshold_met"
	ReasonBudgetExhausted TerminationReason = "budget_exhausted"
	ReasonBaselineFailed  TerminationReason = "baseline_failed"
)

// Session is the full record of one optimization run. BestIndex of -1
// means no candidate beat the baseline.
type Session struct {
	ID        string
	Spec      QuerySpec
	Baseline  BenchResult
	Attempts  []CandidateAttempt
	BestIndex int
	Reason    TerminationReason
}

// Best returns the best-performing attempt, or nil when the baseline is
// still the best known query.
func (s *Session) Best() *CandidateAttempt {
	if s.BestIndex < 0 || s.BestIndex >= len(s.Attempts) {
		return nil
	}
	return &s.Attempts[s.BestIndex]
}

// BestSQL returns the SQL of the best known query, the original when no
// candidate improved on it.
func (s *Session) BestSQL() string {
	if best := s.Best(); best != nil {
		return best.SQL
	}
	return s.Spec.SQL
}

// BestMedian returns the median time of the best known query.
func (s *Session) BestMedian() time.Duration {
	if best := s.Best(); best != nil {
		return best.Result.Median
	}
	return s.Baseline.Median
}

// BestImprovement returns the improvement ratio of the best known query
// over the baseline, zero when the baseline is still best.
func (s *Session) BestImprovement() float64 {
	if best := s.Best(); best != nil {
		return best.Improvement
	}
	return 0
}
