// Package measurement implements the measurement phase of the TopDown
// algorithm: it walks a built geographic tree and adds calibrated noise to
// every node's true contingency vector, producing the noisy vector the
// estimation phase then reconciles.
package measurement

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/synthcensus/topdown/noise"
	"github.com/synthcensus/topdown/topderr"
	"github.com/synthcensus/topdown/tree"
)

const phase = "measurement"

// Mechanism selects which noise distribution the measurement phase draws from.
type Mechanism int

const (
	// DiscreteLaplace adds noise proportional to exp(-|k|/t), scale t = sensitivity/epsilon.
	DiscreteLaplace Mechanism = iota
	// DiscreteGaussian adds noise proportional to exp(-k²/(2σ²)), variance σ² = sensitivity²/(2·rho).
	DiscreteGaussian
)

// Budget is the privacy budget assigned to one tree level.
type Budget struct {
	// Epsilon is used when Mechanism is DiscreteLaplace.
	Epsilon float64
	// Rho is used when Mechanism is DiscreteGaussian.
	Rho float64
}

// Params configures one measurement pass.
type Params struct {
	Mechanism Mechanism
	// LevelBudgets holds one Budget per tree level, indexed by node.Level.
	// LevelBudgets[0], the root's budget, is read only when RootExempt is
	// false.
	LevelBudgets []Budget
	// RootExempt marks the root as noise-exempt: its Noisy vector is set
	// equal to its True vector rather than measured. The root is exempt
	// iff the caller has registered a fixed-root constraint; otherwise it
	// is measured uniformly like any other level.
	RootExempt bool
	// Sensitivity is the L1 sensitivity of the per-node counting query,
	// i.e. how much adding or removing a single record can change one
	// node's vector in L1 norm. Adding or removing one individual changes
	// exactly one component of one node's vector by 1, so this is fixed at
	// 1 in practice.
	Sensitivity float64
	// Parallel bounds the number of components measured concurrently
	// within one node. A value <= 1 measures sequentially.
	Parallel int
}

// Run adds noise to every node of t under its level's budget, writing each
// node's Noisy field from its True field. If p.RootExempt, the root is the
// one exception: its True field is copied into Noisy verbatim, since a
// fixed-root constraint means its vector is already known exactly.
func Run(ctx context.Context, t *tree.Tree, p Params) error {
	nodes := t.TraverseBFS()
	if len(nodes) == 0 {
		return nil
	}

	rest := nodes
	if p.RootExempt {
		root := nodes[0]
		root.Noisy = make([]float64, len(root.True))
		for i, v := range root.True {
			root.Noisy[i] = float64(v)
		}
		rest = nodes[1:]
	}

	for _, n := range rest {
		if n.Level < 0 || n.Level >= len(p.LevelBudgets) {
			return topderr.New(topderr.ParameterError, phase, n.Path,
				"no privacy budget is registered for this tree level")

		}
		if err := measureNode(ctx, n, p); err != nil {
			return err
		}
	}
	return nil
}

func measureNode(ctx context.Context, n *tree.Node, p Params) error {
	budget := p.LevelBudgets[n.Level]
	n.Noisy = make([]float64, len(n.True))

	if p.Parallel <= 1 {
		for i, v := range n.True {
			noisy, err := drawOne(v, budget, p)
			if err != nil {
				return wrapNode(err, n, phase)
			}
			n.Noisy[i] = noisy
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Parallel)
	for i, v := range n.True {
		i, v := i, v
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			noisy, err := drawOne(v, budget, p)
			if err != nil {
				return err
			}
			n.Noisy[i] = noisy
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return wrapNode(err, n, phase)
	}
	return nil
}

func drawOne(trueValue int64, budget Budget, p Params) (float64, error) {
	switch p.Mechanism {
	case DiscreteLaplace:
		t := p.Sensitivity / budget.Epsilon
		d, err := noise.SampleDiscreteLaplace(t)
		if err != nil {
			return 0, err
		}
		return float64(trueValue + d), nil
	case DiscreteGaussian:
		sigma2 := (p.Sensitivity * p.Sensitivity) / (2 * budget.Rho)
		d, err := noise.SampleDiscreteGaussian(sigma2)
		if err != nil {
			return 0, err
		}
		return float64(trueValue + d), nil
	default:
		return 0, topderr.New(topderr.ConfigError, phase, nil, "unknown noise mechanism")
	}
}

func wrapNode(err error, n *tree.Node, phase string) error {
	if te, ok := err.(*topderr.Error); ok && len(te.Path) == 0 {
		te.Path = n.Path
		te.Phase = phase
		return te
	}
	return err
}
