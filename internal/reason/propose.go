// Package reason invokes the external reasoning service to propose
// semantically-equivalent query rewrites, relaying its tool calls through
// the dispatcher and validating what comes back. The service is an
// oracle: its claims never substitute for measured results.
package reason

import (
	"context"

	"qtune/internal/domain"
)

// Request carries the structured context for one proposal.
type Request struct {
	Spec    domain.QuerySpec
	Plan    *domain.PlanSummary        // plan of the current best query, may be nil
	Schemas map[string][]domain.Column // relation name -> ordered columns
	History []domain.CandidateAttempt  // condensed prior attempts
	Notes   []string                   // data-quality notes, e.g. relations missing from the catalog
}

// Candidate is a terminal answer from the reasoning service.
type Candidate struct {
	SQL       string
	Rationale string
}

// Proposer asks the reasoning service for one rewrite. Implementations
// must bound every external interaction; the caller never trusts the
// service to terminate on its own.
type Proposer interface {
	Propose(ctx context.Context, req Request) (Candidate, error)
}
