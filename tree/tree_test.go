package tree

import (
	"testing"

	"github.com/synthcensus/topdown/basis"
)

func buildTestBasis(t *testing.T) *basis.Basis {
	t.Helper()
	b, err := basis.New([]string{"q"}, [][]string{{"a", "b"}})
	if err != nil {
		t.Fatalf("basis.New: unexpected error: %v", err)
	}
	return b
}

func TestBuildCountsTrueVectors(t *testing.T) {
	b := buildTestBasis(t)
	records := []Record{
		{GeoValues: []string{"R1", "P1"}, QueryTuple: []string{"a"}},
		{GeoValues: []string{"R1", "P1"}, QueryTuple: []string{"a"}},
		{GeoValues: []string{"R1", "P1"}, QueryTuple: []string{"b"}},
		{GeoValues: []string{"R1", "P2"}, QueryTuple: []string{"b"}},
		{GeoValues: []string{"R2", "P3"}, QueryTuple: []string{"a"}},
	}
	tr, err := Build(records, []string{"region", "province"}, b, 2)
	if err != nil {
		t.Fatalf("Build: unexpected error: %v", err)
	}

	if got, want := tr.Root.True, []int64{3, 2}; !equalInt64(got, want) {
		t.Errorf("root.True = %v, want %v", got, want)
	}

	leaves := tr.Leaves()
	if len(leaves) != 3 {
		t.Fatalf("len(Leaves()) = %d, want 3", len(leaves))
	}
	for _, leaf := range leaves {
		switch leaf.Path[len(leaf.Path)-1] {
		case "P1":
			if !equalInt64(leaf.True, []int64{2, 1}) {
				t.Errorf("leaf P1 True = %v, want [2 1]", leaf.True)
			}
		case "P2":
			if !equalInt64(leaf.True, []int64{0, 1}) {
				t.Errorf("leaf P2 True = %v, want [0 1]", leaf.True)
			}
		case "P3":
			if !equalInt64(leaf.True, []int64{1, 0}) {
				t.Errorf("leaf P3 True = %v, want [1 0]", leaf.True)
			}
		}
	}
}

func TestBuildRejectsMissingGeoValue(t *testing.T) {
	b := buildTestBasis(t)
	records := []Record{{GeoValues: []string{"", "P1"}, QueryTuple: []string{"a"}}}
	if _, err := Build(records, []string{"region", "province"}, b, 2); err == nil {
		t.Error("Build with a missing geographic value: got no error, want one")
	}
}

func TestTraverseBFSVisitsRootFirst(t *testing.T) {
	b := buildTestBasis(t)
	records := []Record{{GeoValues: []string{"R1", "P1"}, QueryTuple: []string{"a"}}}
	tr, err := Build(records, []string{"region", "province"}, b, 2)
	if err != nil {
		t.Fatalf("Build: unexpected error: %v", err)
	}
	order := tr.TraverseBFS()
	if order[0] != tr.Root {
		t.Error("TraverseBFS()[0] is not the root")
	}
}

func TestExtendPreservesExistingLevels(t *testing.T) {
	b := buildTestBasis(t)
	records := []Record{
		{GeoValues: []string{"R1", "P1", "C1"}, QueryTuple: []string{"a"}},
		{GeoValues: []string{"R1", "P1", "C2"}, QueryTuple: []string{"b"}},
	}
	tr, err := Build(records, []string{"region", "province", "comuna"}, b, 1)
	if err != nil {
		t.Fatalf("Build: unexpected error: %v", err)
	}
	rootBefore := append([]int64(nil), tr.Root.True...)
	r1Before := append([]int64(nil), tr.Root.Children[0].True...)

	if err := tr.Extend(3); err != nil {
		t.Fatalf("Extend: unexpected error: %v", err)
	}
	if !equalInt64(tr.Root.True, rootBefore) {
		t.Errorf("root.True changed after Extend: got %v, want %v", tr.Root.True, rootBefore)
	}
	if !equalInt64(tr.Root.Children[0].True, r1Before) {
		t.Errorf("former leaf True changed after Extend (double-counted): got %v, want %v", tr.Root.Children[0].True, r1Before)
	}
	leaves := tr.Leaves()
	if len(leaves) != 2 {
		t.Fatalf("len(Leaves()) after Extend = %d, want 2", len(leaves))
	}
}

func equalInt64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
