// Package tree implements the geographic hierarchy the TopDown algorithm
// walks: a rooted tree whose levels correspond to nested administrative
// divisions, with one contingency vector triple (true, noisy, estimated)
// per node.
package tree

import (
	"fmt"
	"sort"

	"github.com/synthcensus/topdown/basis"
	"github.com/synthcensus/topdown/topderr"
)

// Record is one raw input row: a value per geographic attribute and one
// query-attribute tuple.
type Record struct {
	GeoValues  []string
	QueryTuple []string
}

// Node is one geographic entity in the hierarchy: the root has an empty
// Path and Level 0; every other node's Path is the sequence of
// geographic-attribute values from the root down to it.
type Node struct {
	Path     []string
	Level    int
	True     []int64
	Noisy    []float64
	Est      []int64
	Children []*Node
}

// Tree is the full geographic hierarchy built from one input dataset.
type Tree struct {
	Root      *Node
	Basis     *basis.Basis
	GeoAttrs  []string
	Depth     int // the level tree construction stopped at (process_until)
	records   []Record
}

// Build constructs the tree down to level depth (process_until), grouping
// records first by geoAttrs[0], then within each group by geoAttrs[1], and
// so on. Each node's True vector counts, per basis component, the records
// matching that node's path whose query tuple equals that component.
func Build(records []Record, geoAttrs []string, b *basis.Basis, depth int) (*Tree, error) {
	if depth < 0 || depth > len(geoAttrs) {
		return nil, topderr.New(topderr.ConfigError, "tree.Build", nil,
			fmt.Sprintf("process_until depth %d is out of range for %d geographic attributes", depth, len(geoAttrs)))
	}
	for i, r := range records {
		if len(r.GeoValues) < depth {
			return nil, topderr.New(topderr.InputError, "tree.Build", nil,
				fmt.Sprintf("record %d has %d geographic values, need at least %d", i, len(r.GeoValues), depth))
		}
		for j, v := range r.GeoValues[:depth] {
			if v == "" {
				return nil, topderr.New(topderr.InputError, "tree.Build", geoAttrs[:j+1],
					fmt.Sprintf("record %d is missing a value for geographic attribute %q", i, geoAttrs[j]))
			}
		}
	}

	t := &Tree{
		Basis:    b,
		GeoAttrs: append([]string(nil), geoAttrs...),
		Depth:    depth,
		records:  records,
	}
	t.Root = newNode(nil, 0, b.Len())
	populate(t.Root, records, b, depth)
	return t, nil
}

// Restore reconstructs a Tree from a root node and raw records recovered
// from a checkpoint, so a resumed run can still call Extend. root's
// vectors are trusted as-is and are not recomputed from records.
func Restore(root *Node, geoAttrs []string, b *basis.Basis, depth int, records []Record) *Tree {
	return &Tree{
		Root:     root,
		Basis:    b,
		GeoAttrs: append([]string(nil), geoAttrs...),
		Depth:    depth,
		records:  records,
	}
}

func newNode(path []string, level int, basisLen int) *Node {
	return &Node{
		Path:  append([]string(nil), path...),
		Level: level,
		True:  make([]int64, basisLen),
	}
}

// populate recursively counts records into n (which is at the given level,
// rooted at n.Path) and, if level < depth, builds n's children.
func populate(n *Node, records []Record, b *basis.Basis, depth int) {
	countTrue(n, records, b)
	buildChildren(n, records, b, depth)
}

// countTrue tallies records into n.True by basis component.
func countTrue(n *Node, records []Record, b *basis.Basis) {
	for _, r := range records {
		idx, err := b.Index(r.QueryTuple)
		if err != nil {
			continue
		}
		n.True[idx]++
	}
}

// buildChildren groups records by their geo-attribute value at n's level and
// recursively populates one child per distinct value, provided n is above
// depth. It does not touch n.True, so it is safe to call on a node whose
// True vector was already counted (as Extend does on a former leaf).
func buildChildren(n *Node, records []Record, b *basis.Basis, depth int) {
	if n.Level >= depth {
		return
	}

	groups := make(map[string][]Record)
	var order []string
	for _, r := range records {
		v := r.GeoValues[n.Level]
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], r)
	}
	sort.Strings(order)

	for _, v := range order {
		child := newNode(append(n.Path, v), n.Level+1, b.Len())
		populate(child, groups[v], b, depth)
		n.Children = append(n.Children, child)
	}
}

// TraverseBFS yields every node in breadth-first order, root first.
func (t *Tree) TraverseBFS() []*Node {
	var order []*Node
	queue := []*Node{t.Root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		queue = append(queue, n.Children...)
	}
	return order
}

// Leaves yields the level-Depth nodes in deterministic, lexicographic-by-path order.
func (t *Tree) Leaves() []*Node {
	var leaves []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if len(n.Children) == 0 {
			leaves = append(leaves, n)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return leaves
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Extend grows children below the existing leaves down to newDepth using
// the tree's original raw records. Every node at level <= the tree's prior
// Depth, and all its vectors, is left untouched; Extend only appends new
// Children slices to the former leaves.
func (t *Tree) Extend(newDepth int) error {
	if newDepth <= t.Depth {
		return topderr.New(topderr.ConfigError, "tree.Extend", nil,
			fmt.Sprintf("new depth %d must exceed current depth %d", newDepth, t.Depth))
	}
	if newDepth > len(t.GeoAttrs) {
		return topderr.New(topderr.ConfigError, "tree.Extend", nil,
			fmt.Sprintf("new depth %d exceeds the %d declared geographic attributes", newDepth, len(t.GeoAttrs)))
	}

	for _, leaf := range t.Leaves() {
		matching := recordsUnderPath(t.records, leaf.Path)
		buildChildren(leaf, matching, t.Basis, newDepth)
	}
	t.Depth = newDepth
	return nil
}

func recordsUnderPath(records []Record, path []string) []Record {
	var out []Record
	for _, r := range records {
		match := true
		for i, v := range path {
			if r.GeoValues[i] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, r)
		}
	}
	return out
}
