// Package basis implements the permutation basis: the canonical,
// lexicographically ordered Cartesian product of the query attributes'
// value domains that indexes every contingency vector in a run.
package basis

import (
	"fmt"
	"strings"

	"github.com/synthcensus/topdown/topderr"
)

// Basis is the canonical ordered table of query-attribute tuples shared by
// every contingency vector in a run. It is built once and shared by
// reference; Index and Tuple are mutual inverses.
type Basis struct {
	attrs   []string
	domains [][]string
	tuples  [][]string
	index   map[string]int
}

// New builds the permutation basis for the given query attributes, each
// with its ordered value domain. The domains must be supplied in the same
// order as attrs. Domains must be non-empty.
func New(attrs []string, domains [][]string) (*Basis, error) {
	if len(attrs) != len(domains) {
		return nil, topderr.New(topderr.ConfigError, "basis.New", nil,
			fmt.Sprintf("got %d query attributes but %d domains", len(attrs), len(domains)))
	}
	for i, d := range domains {
		if len(d) == 0 {
			return nil, topderr.New(topderr.ConfigError, "basis.New", nil,
				fmt.Sprintf("query attribute %q has an empty value domain", attrs[i]))
		}
	}

	b := &Basis{
		attrs:   append([]string(nil), attrs...),
		domains: domains,
		index:   make(map[string]int),
	}
	b.tuples = cartesianProduct(domains)
	for i, t := range b.tuples {
		b.index[key(t)] = i
	}
	return b, nil
}

// Len returns |P|, the number of rows in the basis.
func (b *Basis) Len() int { return len(b.tuples) }

// Attrs returns the ordered query attribute names the basis was built from.
func (b *Basis) Attrs() []string { return append([]string(nil), b.attrs...) }

// Tuple returns the query-attribute tuple at position i.
func (b *Basis) Tuple(i int) []string {
	return append([]string(nil), b.tuples[i]...)
}

// Index returns the position of tuple in the basis. Index and Tuple are
// mutual inverses: Index(Tuple(i)) == i and Tuple(Index(t)) == t for every
// tuple t appearing in the basis.
func (b *Basis) Index(tuple []string) (int, error) {
	i, ok := b.index[key(tuple)]
	if !ok {
		return 0, topderr.New(topderr.InputError, "basis.Index", nil,
			fmt.Sprintf("tuple %v is not a member of the basis", tuple))
	}
	return i, nil
}

func key(tuple []string) string {
	return strings.Join(tuple, "\x1f")
}

// cartesianProduct enumerates the lexicographically ordered Cartesian
// product of domains, one row per combination.
func cartesianProduct(domains [][]string) [][]string {
	total := 1
	for _, d := range domains {
		total *= len(d)
	}
	rows := make([][]string, total)
	for i := range rows {
		rows[i] = make([]string, len(domains))
	}
	stride := total
	for col, d := range domains {
		stride /= len(d)
		for i := 0; i < total; i++ {
			rows[i][col] = d[(i/stride)%len(d)]
		}
	}
	return rows
}
