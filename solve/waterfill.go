package solve

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const waterfillPhase = "estimate.solve"

// WaterfillSolver is the default Solver. With no registered Constraints,
// Stage A solves the non-negative L2 projection by bisecting the water
// level of the classic simplex projection and Stage B rounds by largest
// remainder; both are exact for the disjoint-group structure the
// estimation phase presents when unconstrained, since every basis
// component is then solved independently of every other one. Registered
// Constraints fall back to a more general, iterative projection for
// Stage A and a bounded greedy repair for Stage B, described next to
// each.
type WaterfillSolver struct {
	// Iterations bounds the Stage A bisection. Zero selects a default
	// deep enough for float64 precision.
	Iterations int
}

// NewWaterfillSolver returns the default solver.
func NewWaterfillSolver() *WaterfillSolver {
	return &WaterfillSolver{}
}

func (s *WaterfillSolver) iterations() int {
	if s.Iterations > 0 {
		return s.Iterations
	}
	return 100
}

// SolveNonNegativeReal projects g.Target onto {y >= 0, y respects g.Fixed,
// sum(y) == g.Sum, y respects g.Constraints} in squared L2 distance.
//
// With no Fixed entries and no Constraints, this is the textbook
// projection of a point onto the intersection of the non-negative orthant
// and an affine hyperplane: the optimum has the form y_i = max(0,
// target_i + lambda) for a single scalar lambda shared by every free
// coordinate (the Lagrange multiplier of the sum constraint), because the
// objective separates across coordinates once lambda is fixed. f(lambda) =
// sum_i max(0, target_i + lambda) is continuous and non-decreasing in
// lambda, so lambda is found by bisection rather than sorting into an
// active set.
//
// When g.Constraints is non-empty the problem no longer separates this
// way (a row can mix several coordinates), so it falls back to
// projectOntoConstraints, which finds the same projection by Dykstra's
// alternating-projection algorithm over the non-negative orthant and
// every constraint's hyperplane or halfspace; the Fixed pins and the Sum
// equality are folded into that same constraint list rather than handled
// specially, since a Fixed entry is just a single-coefficient Eq row and
// Sum is an all-ones Eq row.
func (s *WaterfillSolver) SolveNonNegativeReal(g Group) ([]float64, error) {
	if len(g.Constraints) > 0 {
		return s.solveNonNegativeRealConstrained(g)
	}
	n := len(g.Target)
	out := make([]float64, n)

	var freeIdx []int
	remaining := g.Sum
	for i := range g.Target {
		if fv, ok := g.Fixed[i]; ok {
			if fv < 0 {
				return nil, infeasible(waterfillPhase, fmt.Sprintf("fixed value at index %d is negative: %v", i, fv))
			}
			out[i] = fv
			remaining -= fv
			continue
		}
		freeIdx = append(freeIdx, i)
	}

	if len(freeIdx) == 0 {
		if math.Abs(remaining) > 1e-6 {
			return nil, infeasible(waterfillPhase, fmt.Sprintf("fixed values sum to %v, need %v", g.Sum-remaining, g.Sum))
		}
		return out, nil
	}
	if remaining < -1e-9 {
		return nil, infeasible(waterfillPhase, fmt.Sprintf("required sum %v is less than the total already pinned by fixed values", g.Sum))
	}
	if remaining < 0 {
		remaining = 0
	}

	free := make([]float64, len(freeIdx))
	for j, i := range freeIdx {
		free[j] = g.Target[i]
	}

	lambda := waterLevel(free, remaining, s.iterations())
	for j, i := range freeIdx {
		out[i] = math.Max(0, free[j]+lambda)
	}

	// The bisection converges the sum to within floating point tolerance
	// but not exactly; nudge the single largest free coordinate so the
	// sum constraint holds exactly, matching what Stage B will demand.
	got := floats.Sum(out)
	residual := g.Sum - got
	if residual != 0 && len(freeIdx) > 0 {
		maxJ := freeIdx[0]
		for _, i := range freeIdx {
			if out[i] > out[maxJ] {
				maxJ = i
			}
		}
		out[maxJ] += residual
		if out[maxJ] < 0 {
			out[maxJ] = 0
		}
	}
	return out, nil
}

const (
	dykstraIterations = 2000
	dykstraTolerance  = 1e-9
	feasibilityTol    = 1e-5
)

// solveNonNegativeRealConstrained handles the general case of
// SolveNonNegativeReal: g.Sum and g.Fixed are rewritten as constraint rows
// and solved together with g.Constraints by repeated projection.
func (s *WaterfillSolver) solveNonNegativeRealConstrained(g Group) ([]float64, error) {
	n := len(g.Target)
	rows := make([]Constraint, 0, len(g.Constraints)+len(g.Fixed)+1)

	sumCoeffs := make([]float64, n)
	for i := range sumCoeffs {
		sumCoeffs[i] = 1
	}
	rows = append(rows, Constraint{Coefficients: sumCoeffs, Sense: Eq, RHS: g.Sum})
	for i, v := range g.Fixed {
		coeffs := make([]float64, n)
		coeffs[i] = 1
		rows = append(rows, Constraint{Coefficients: coeffs, Sense: Eq, RHS: v})
	}
	rows = append(rows, g.Constraints...)

	return projectOntoConstraints(g.Target, rows, dykstraIterations)
}

// projectOntoConstraints finds the point nearest target, in squared L2
// distance, in the intersection of the non-negative orthant and every row
// in constraints, via Dykstra's alternating-projection algorithm: each
// sweep projects onto the orthant and then onto each row's hyperplane
// (Eq) or halfspace (Le/Ge) in turn, carrying forward the correction the
// previous projection onto that same set introduced. Repeated sweeps
// converge to the true nearest point in the intersection whenever the
// intersection is non-empty; a result that still violates a row after the
// iteration budget is reported as infeasible.
func projectOntoConstraints(target []float64, constraints []Constraint, iterations int) ([]float64, error) {
	n := len(target)
	x := append([]float64(nil), target...)

	corrections := make([][]float64, len(constraints)+1)
	for i := range corrections {
		corrections[i] = make([]float64, n)
	}

	for iter := 0; iter < iterations; iter++ {
		prev := append([]float64(nil), x...)

		y := addVec(x, corrections[0])
		proj := make([]float64, n)
		for i, v := range y {
			if v > 0 {
				proj[i] = v
			}
		}
		corrections[0] = subVec(y, proj)
		x = proj

		for ci, c := range constraints {
			y := addVec(x, corrections[ci+1])
			np, err := projectHyperplane(y, c)
			if err != nil {
				return nil, err
			}
			corrections[ci+1] = subVec(y, np)
			x = np
		}

		if vecClose(prev, x, dykstraTolerance) {
			break
		}
	}

	for _, c := range constraints {
		if !constraintSatisfied(x, c, feasibilityTol) {
			return nil, infeasible(waterfillPhase, "registered constraints are jointly infeasible with non-negativity")
		}
	}
	for _, v := range x {
		if v < -feasibilityTol {
			return nil, infeasible(waterfillPhase, "registered constraints are jointly infeasible with non-negativity")
		}
	}
	return x, nil
}

// projectHyperplane projects v onto one constraint row: for Eq, the
// hyperplane dot(coefficients, x) == rhs; for Le/Ge, the corresponding
// halfspace, which is only a projection when the row is already violated
// (otherwise v is already in the halfspace, so it is its own projection).
func projectHyperplane(v []float64, c Constraint) ([]float64, error) {
	normSq := 0.0
	dot := 0.0
	for i, a := range c.Coefficients {
		normSq += a * a
		dot += a * v[i]
	}
	if normSq == 0 {
		return nil, infeasible(waterfillPhase, "constraint row has an all-zero coefficient vector")
	}
	violated := false
	switch c.Sense {
	case Eq:
		violated = math.Abs(dot-c.RHS) > 1e-12
	case Le:
		violated = dot > c.RHS
	case Ge:
		violated = dot < c.RHS
	}
	if !violated {
		return append([]float64(nil), v...), nil
	}
	lambda := (c.RHS - dot) / normSq
	out := append([]float64(nil), v...)
	for i, a := range c.Coefficients {
		out[i] += lambda * a
	}
	return out, nil
}

func constraintSatisfied(x []float64, c Constraint, tol float64) bool {
	dot := 0.0
	for i, a := range c.Coefficients {
		dot += a * x[i]
	}
	switch c.Sense {
	case Eq:
		return math.Abs(dot-c.RHS) <= tol
	case Le:
		return dot <= c.RHS+tol
	case Ge:
		return dot >= c.RHS-tol
	default:
		return false
	}
}

func addVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}

func subVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func vecClose(a, b []float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// waterLevel bisects for the lambda solving sum_i max(0, target_i+lambda) == sum.
func waterLevel(target []float64, sum float64, iterations int) float64 {
	lo := -floats.Max(target) - sum - 1
	hi := sum - floats.Max(target) + 1
	for i := 0; i < iterations; i++ {
		mid := (lo + hi) / 2
		total := 0.0
		for _, t := range target {
			total += math.Max(0, t+mid)
		}
		if total < sum {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// SolveRounding rounds x to integers summing to sum and respecting fixed,
// minimizing L1 distance to x via the largest-remainder method: floor
// every free coordinate, then distribute the shortfall one unit at a time
// to the coordinates with the largest fractional part. When constraints
// are given, the largest-remainder result is then repaired in place by
// repairRounding, which moves mass between free coordinates in
// sum-preserving pairs until every row is satisfied or a bounded number
// of repair steps is exhausted.
func (s *WaterfillSolver) SolveRounding(x []float64, sum int64, fixed map[int]int64, constraints ...Constraint) ([]int64, error) {
	n := len(x)
	out := make([]int64, n)
	var free []int
	remaining := sum
	for i, v := range x {
		if fv, ok := fixed[i]; ok {
			if fv < 0 {
				return nil, infeasible(waterfillPhase, fmt.Sprintf("fixed integer value at index %d is negative: %v", i, fv))
			}
			out[i] = fv
			remaining -= fv
			continue
		}
		if v < 0 {
			v = 0
		}
		free = append(free, i)
	}
	if remaining < 0 {
		return nil, infeasible(waterfillPhase, fmt.Sprintf("fixed values sum to more than the required total %d", sum))
	}
	if len(free) == 0 {
		if remaining != 0 {
			return nil, infeasible(waterfillPhase, fmt.Sprintf("fixed values sum to %d, need %d", sum-remaining, sum))
		}
		return out, nil
	}

	type frac struct {
		idx  int
		frac float64
	}
	fracs := make([]frac, len(free))
	floorSum := int64(0)
	for j, i := range free {
		v := x[i]
		if v < 0 {
			v = 0
		}
		fl := math.Floor(v)
		out[i] = int64(fl)
		floorSum += int64(fl)
		fracs[j] = frac{idx: i, frac: v - fl}
	}

	shortfall := remaining - floorSum
	if shortfall < 0 {
		return nil, infeasible(waterfillPhase, fmt.Sprintf("rounding target sum %d is smaller than the floor of its non-negative components", remaining))
	}
	if shortfall > int64(len(free)) {
		return nil, infeasible(waterfillPhase, fmt.Sprintf("rounding target sum %d exceeds what %d free components can reach", remaining, len(free)))
	}

	sort.Slice(fracs, func(a, b int) bool {
		if fracs[a].frac != fracs[b].frac {
			return fracs[a].frac > fracs[b].frac
		}
		return fracs[a].idx < fracs[b].idx
	})
	for k := int64(0); k < shortfall; k++ {
		out[fracs[k].idx]++
	}

	if len(constraints) == 0 {
		return out, nil
	}
	if err := repairRounding(out, free, constraints); err != nil {
		return nil, err
	}
	return out, nil
}

const maxRoundingRepairSteps = 2000

// repairRounding adjusts out in place, moving one unit at a time between
// pairs of free coordinates (so the overall sum is untouched), until every
// row in constraints is satisfied. It is a bounded greedy heuristic, not
// an exact integer solver: no integer-programming library is available to
// this module, so a violated row is fixed by repeatedly taking a unit
// from the first free coordinate (in index order) whose step moves the
// row's value toward RHS and giving it to a coordinate the row does not
// mention (so the row improves without the sum being disturbed; another
// row that mentions either coordinate can change, and every row is
// rechecked before the next step). If no such
// pair exists, or the step budget runs out first, the repair reports a
// SolverError: the real-valued projection already proved the constraints
// are jointly feasible, so a repair failure here is a limitation of this
// heuristic rather than evidence the targets themselves are infeasible.
func repairRounding(out []int64, free []int, constraints []Constraint) error {
	for step := 0; step < maxRoundingRepairSteps; step++ {
		settled := true
		for _, c := range constraints {
			if intConstraintSatisfied(out, c) {
				continue
			}
			settled = false
			if !repairStep(out, free, c) {
				return solverFailure(waterfillPhase, "could not satisfy a registered constraint within the bounded integer repair search")
			}
			break
		}
		if settled {
			return nil
		}
	}
	return solverFailure(waterfillPhase, "integer constraint repair did not converge within the step budget")
}

// repairStep looks for a coordinate i whose row coefficient can move the
// row's value one unit closer to being satisfied, and a coordinate j the
// row does not mention (coefficient 0) to give the compensating unit to,
// so the move is sum-neutral. It returns false if no such pair exists.
func repairStep(out []int64, free []int, c Constraint) bool {
	dot := dotInt(out, c.Coefficients)
	wantIncrease := c.Sense == Ge || (c.Sense == Eq && dot < c.RHS)

	for _, i := range free {
		coeff := c.Coefficients[i]
		if coeff == 0 {
			continue
		}
		// delta is the unit step on out[i] that moves dot in the needed
		// direction: increasing a positive coefficient's value (or
		// decreasing a negative one) raises dot; the opposite lowers it.
		var delta int64
		if wantIncrease == (coeff > 0) {
			delta = 1
		} else {
			delta = -1
		}
		if out[i]+delta < 0 {
			continue
		}
		for _, j := range free {
			if j == i || c.Coefficients[j] != 0 {
				continue
			}
			if out[j]-delta < 0 {
				continue
			}
			out[i] += delta
			out[j] -= delta
			return true
		}
	}
	return false
}

func dotInt(x []int64, coeffs []float64) float64 {
	total := 0.0
	for i, a := range coeffs {
		total += a * float64(x[i])
	}
	return total
}

func intConstraintSatisfied(x []int64, c Constraint) bool {
	dot := dotInt(x, c.Coefficients)
	switch c.Sense {
	case Eq:
		return dot == c.RHS
	case Le:
		return dot <= c.RHS
	case Ge:
		return dot >= c.RHS
	default:
		return false
	}
}
