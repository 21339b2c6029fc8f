// Package microdata expands the estimated leaf contingency vectors of a
// tree back into synthetic individual records.
package microdata

import (
	"github.com/synthcensus/topdown/basis"
	"github.com/synthcensus/topdown/tree"
)

// Record is one synthesized individual: a path down the geographic tree
// paired with a query-attribute tuple from the basis.
type Record struct {
	GeoValues  []string
	QueryTuple []string
}

// Expand emits, for each leaf of t in lexicographic path order and for
// each basis component in basis order, Est many copies of a Record
// combining the leaf's path with that component's tuple.
func Expand(t *tree.Tree, b *basis.Basis) []Record {
	var out []Record
	for _, leaf := range t.Leaves() {
		for comp, count := range leaf.Est {
			if count <= 0 {
				continue
			}
			tuple := b.Tuple(comp)
			for i := int64(0); i < count; i++ {
				out = append(out, Record{
					GeoValues:  append([]string(nil), leaf.Path...),
					QueryTuple: append([]string(nil), tuple...),
				})
			}
		}
	}
	return out
}
