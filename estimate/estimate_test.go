package estimate

import (
	"testing"

	"github.com/synthcensus/topdown/solve"
	"github.com/synthcensus/topdown/tree"
)

func TestRunRootOnly(t *testing.T) {
	root := &tree.Node{Noisy: []float64{5.2, -1.1, 3.4}}
	tr := &tree.Tree{Root: root}
	total := 9.0

	if err := Run(tr, solve.NewWaterfillSolver(), Params{RootTotal: &total}); err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	var sum int64
	for _, v := range root.Est {
		if v < 0 {
			t.Errorf("root.Est contains a negative value: %v", root.Est)
		}
		sum += v
	}
	if sum != 9 {
		t.Errorf("sum(root.Est) = %d, want 9", sum)
	}
}

func TestRunEnforcesParentSumAtConfiguredLevel(t *testing.T) {
	parent := &tree.Node{Level: 0, Noisy: []float64{10, 10}}
	child1 := &tree.Node{Level: 1, Noisy: []float64{4, 6}}
	child2 := &tree.Node{Level: 1, Noisy: []float64{5, 3}}
	parent.Children = []*tree.Node{child1, child2}
	tr := &tree.Tree{Root: parent}

	p := Params{EnforceParentSum: []bool{false, true}}
	if err := Run(tr, solve.NewWaterfillSolver(), p); err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}

	for comp := 0; comp < 2; comp++ {
		sum := child1.Est[comp] + child2.Est[comp]
		if sum != parent.Est[comp] {
			t.Errorf("component %d: child sum %d != parent estimate %d", comp, sum, parent.Est[comp])
		}
	}
}

func TestRunHonorsLevelConstraintsOnIndependentLevel(t *testing.T) {
	parent := &tree.Node{Level: 0, Noisy: []float64{10, 10}}
	child := &tree.Node{Level: 1, Noisy: []float64{9, 1}}
	parent.Children = []*tree.Node{child}
	tr := &tree.Tree{Root: parent}

	p := Params{
		EnforceParentSum: []bool{false, false},
		LevelConstraints: [][]solve.Constraint{
			nil,
			{{Coefficients: []float64{1, 0}, Sense: solve.Le, RHS: 5}},
		},
	}
	if err := Run(tr, solve.NewWaterfillSolver(), p); err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if child.Est[0] > 5 {
		t.Errorf("child.Est[0] = %d, want <= 5 per the registered level constraint", child.Est[0])
	}
}

func TestRunIndependentLevelSkipsParentReconciliation(t *testing.T) {
	parent := &tree.Node{Level: 0, Noisy: []float64{10}}
	child := &tree.Node{Level: 1, Noisy: []float64{3}}
	parent.Children = []*tree.Node{child}
	tr := &tree.Tree{Root: parent}

	p := Params{EnforceParentSum: []bool{false, false}}
	if err := Run(tr, solve.NewWaterfillSolver(), p); err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if child.Est[0] != 3 {
		t.Errorf("child.Est[0] = %d, want 3 (its own noisy value, unconstrained by the parent)", child.Est[0])
	}
}
