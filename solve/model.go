// Package solve defines the pluggable estimation solver used by the
// estimation phase, and ships a deterministic default implementation.
package solve

import "github.com/synthcensus/topdown/topderr"

// Sense is the comparison operator of one linear constraint row.
type Sense int

const (
	// Eq requires the linear functional to equal RHS exactly.
	Eq Sense = iota
	// Le requires the linear functional to be at most RHS.
	Le
	// Ge requires the linear functional to be at least RHS.
	Ge
)

func (s Sense) String() string {
	switch s {
	case Eq:
		return "="
	case Le:
		return "<="
	case Ge:
		return ">="
	default:
		return "?"
	}
}

// Constraint is one user- or root-declared linear constraint over the
// components of the vector a solve call is asked to produce:
//
//	sum_i Coefficients[i]*x[i] <Sense> RHS
//
// Coefficients must have the same length as the vector being solved for.
// This is the abstract (coefficients, sense, rhs) row the estimation
// phase's configuration surfaces as root_constraint_rows and
// geo_constraints[level].
type Constraint struct {
	Coefficients []float64
	Sense        Sense
	RHS          float64
}

// Group is one jointly constrained estimation problem: the noisy values of
// a set of siblings (children of one tree node, or query components of one
// node), restricted to a single basis component, together with the sum
// those siblings must add up to and any of them already pinned to a known
// value by a user- or root-level constraint.
type Group struct {
	// Target holds each sibling's noisy (pre-estimation) value for this
	// component, in a fixed, caller-defined order.
	Target []float64
	// Sum is the value the siblings must add up to: the parent's
	// estimated value for this component, or a registered root constraint.
	Sum float64
	// Fixed maps a sibling's index in Target to a value a user or root
	// constraint pins it to. Entries here are excluded from the
	// optimization and always reproduced exactly in the result.
	Fixed map[int]float64
	// Constraints holds additional general linear rows over Target (e.g.
	// a registered root_constraint_rows or geo_constraints[level] row that
	// mixes more than one component), beyond the single Sum equality and
	// the single-component Fixed pins above. A Group with no Constraints
	// is solved by the fast closed-form water-filling path; a non-empty
	// Constraints falls back to a general projection that also honors
	// Sum and Fixed, expressed as constraint rows of their own.
	Constraints []Constraint
}

// Solver performs Stage A and Stage B of one node's estimation step.
//
// SolveNonNegativeReal projects Target onto the set of real vectors that
// are non-negative, satisfy the Fixed pins and any Constraints, and sum to
// Sum, minimizing squared L2 distance to Target.
//
// SolveRounding takes the Stage A result x and produces an integer vector
// satisfying the same Sum and Fixed constraints, minimizing L1 distance to
// x. The optional constraints, when given, are honored on a best-effort
// basis bounded by a fixed number of repair steps; a caller that cannot
// reach a feasible integer point within that bound gets a SolverError.
type Solver interface {
	SolveNonNegativeReal(g Group) ([]float64, error)
	SolveRounding(x []float64, sum int64, fixed map[int]int64, constraints ...Constraint) ([]int64, error)
}

func infeasible(phase, msg string) error {
	return topderr.New(topderr.InfeasibleError, phase, nil, msg)
}

func solverFailure(phase, msg string) error {
	return topderr.New(topderr.SolverError, phase, nil, msg)
}
