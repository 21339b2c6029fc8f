// Package estimate implements the estimation phase of the TopDown
// algorithm: a top-down breadth-first pass that reconciles every node's
// noisy contingency vector into a non-negative integer estimate
// consistent with its parent's estimate and any registered constraints.
package estimate

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/synthcensus/topdown/solve"
	"github.com/synthcensus/topdown/topderr"
	"github.com/synthcensus/topdown/tree"
)

const phase = "estimate"

// Params configures one estimation pass.
type Params struct {
	// RootTotal, if non-nil, pins the sum of the root's estimated vector
	// to a known value (e.g. the true total population), rather than
	// letting it float to the sum of the root's noisy vector.
	RootTotal *float64
	// RootFixed pins specific basis components of the root to known
	// values, from user-registered root constraints.
	RootFixed map[int]float64
	// RootConstraints lists general linear rows over the root's vector
	// (coefficients spanning more than one component, and/or an
	// inequality), beyond the single-component pins in RootFixed.
	RootConstraints []solve.Constraint
	// EnforceParentSum indicates, per tree level, whether that level's
	// nodes must jointly reconcile to their parent's estimate (Stage A
	// and Stage B solved across all siblings at once) or may instead be
	// estimated independently of their siblings and parent. Index 0 is
	// unused; children at level L consult EnforceParentSum[L].
	EnforceParentSum []bool
	// LevelConstraints lists, per tree level, general linear constraint
	// rows applied to every node at that level in addition to whatever
	// EnforceParentSum already requires. Index 0 is unused (the root is
	// configured through RootConstraints instead). A level with
	// EnforceParentSum set must have no entry here: internal/config.Validate
	// rejects that combination, and Run returns a ConfigError if it is
	// given one anyway, since reconciling a node-local constraint row
	// against a cross-sibling equality needs a single joint solve this
	// package does not implement.
	LevelConstraints [][]solve.Constraint
}

// Run walks t level by level, writing every node's Est field. Every
// parent at one level is independent of every other parent at that same
// level, so they are reconciled concurrently, one goroutine per parent,
// bounded by GOMAXPROCS. The solver is therefore called from several
// goroutines at once and must be safe for concurrent use; WaterfillSolver
// keeps no mutable state.
func Run(t *tree.Tree, solver solve.Solver, p Params) error {
	if err := estimateRoot(t.Root, solver, p); err != nil {
		return err
	}

	level := []*tree.Node{t.Root}
	for len(level) > 0 {
		var next []*tree.Node
		var parents []*tree.Node
		for _, n := range level {
			if len(n.Children) > 0 {
				parents = append(parents, n)
				next = append(next, n.Children...)
			}
		}
		if err := estimateLevel(parents, solver, p); err != nil {
			return err
		}
		level = next
	}
	return nil
}

func estimateLevel(parents []*tree.Node, solver solve.Solver, p Params) error {
	if len(parents) == 0 {
		return nil
	}
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, parent := range parents {
		parent := parent
		enforce := false
		childLevel := parent.Level + 1
		if childLevel < len(p.EnforceParentSum) {
			enforce = p.EnforceParentSum[childLevel]
		}
		var constraints []solve.Constraint
		if childLevel < len(p.LevelConstraints) {
			constraints = p.LevelConstraints[childLevel]
		}
		g.Go(func() error {
			if enforce {
				if len(constraints) > 0 {
					return topderr.New(topderr.ConfigError, phase, parent.Path,
						"level has both enforce_parent_sum and geo_constraints; internal/config.Validate rejects this combination")
				}
				return estimateChildrenJoint(parent, solver)
			}
			return estimateChildrenIndependent(parent, solver, constraints)
		})
	}
	return g.Wait()
}

func estimateRoot(root *tree.Node, solver solve.Solver, p Params) error {
	sum := 0.0
	for _, v := range root.Noisy {
		sum += v
	}
	if p.RootTotal != nil {
		sum = *p.RootTotal
	}
	g := solve.Group{Target: root.Noisy, Sum: sum, Fixed: p.RootFixed, Constraints: p.RootConstraints}
	real, err := solver.SolveNonNegativeReal(g)
	if err != nil {
		return annotate(err, root)
	}
	fixedInt := make(map[int]int64, len(p.RootFixed))
	for i, v := range p.RootFixed {
		fixedInt[i] = int64(v)
	}
	est, err := solver.SolveRounding(real, int64(sum), fixedInt, p.RootConstraints...)
	if err != nil {
		return annotate(err, root)
	}
	root.Est = est
	return nil
}

// estimateChildrenJoint runs Stage A and Stage B independently for each
// basis component, pooling that component's value across every child of
// parent so the children's estimates sum exactly to the parent's estimate.
func estimateChildrenJoint(parent *tree.Node, solver solve.Solver) error {
	k := len(parent.Est)
	children := parent.Children
	stageA := make([][]float64, len(children))
	for c := range children {
		stageA[c] = make([]float64, k)
	}

	for comp := 0; comp < k; comp++ {
		target := make([]float64, len(children))
		for c, child := range children {
			target[c] = child.Noisy[comp]
		}
		g := solve.Group{Target: target, Sum: float64(parent.Est[comp])}
		real, err := solver.SolveNonNegativeReal(g)
		if err != nil {
			return annotate(err, parent)
		}
		for c := range children {
			stageA[c][comp] = real[c]
		}
	}

	for _, child := range children {
		child.Est = make([]int64, k)
	}
	for comp := 0; comp < k; comp++ {
		x := make([]float64, len(children))
		for c := range children {
			x[c] = stageA[c][comp]
		}
		rounded, err := solver.SolveRounding(x, parent.Est[comp], nil)
		if err != nil {
			return annotate(err, parent)
		}
		for c, child := range children {
			child.Est[comp] = rounded[c]
		}
	}
	return nil
}

// estimateChildrenIndependent projects and rounds each child's noisy
// vector on its own, with no cross-sibling or parent-sum reconciliation,
// honoring any general constraints registered for this level.
func estimateChildrenIndependent(parent *tree.Node, solver solve.Solver, constraints []solve.Constraint) error {
	for _, child := range parent.Children {
		sum := 0.0
		for _, v := range child.Noisy {
			sum += v
		}
		if sum < 0 {
			sum = 0
		}
		g := solve.Group{Target: child.Noisy, Sum: sum, Constraints: constraints}
		real, err := solver.SolveNonNegativeReal(g)
		if err != nil {
			return annotate(err, child)
		}
		est, err := solver.SolveRounding(real, int64(sum), nil, constraints...)
		if err != nil {
			return annotate(err, child)
		}
		child.Est = est
	}
	return nil
}

func annotate(err error, n *tree.Node) error {
	if te, ok := err.(*topderr.Error); ok && len(te.Path) == 0 {
		te.Path = n.Path
		te.Phase = phase
		return te
	}
	return err
}
