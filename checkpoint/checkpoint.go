// Package checkpoint persists and restores the state of an in-progress
// TopDown run, so a run interrupted after the measurement phase need not
// redraw its noise, and one interrupted after estimation need not resolve
// its already-reconciled levels.
//
// It follows the differential-privacy library's pattern for encoding
// aggregator state: a private, stable mirror struct carries an explicit
// version tag through encoding/gob, and decoding refuses a checkpoint
// whose version does not match what this build expects.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/synthcensus/topdown/topderr"
	"github.com/synthcensus/topdown/tree"
)

const stateVersion = 1

// Phase marks how far a run has progressed.
type Phase int

const (
	// PhaseBuilt means the tree has true vectors but no noise yet.
	PhaseBuilt Phase = iota
	// PhaseMeasured means every node has a noisy vector.
	PhaseMeasured
	// PhaseEstimated means every node has an estimated vector.
	PhaseEstimated
)

// State is the full snapshot of one run.
type State struct {
	Phase       Phase
	GeoAttrs    []string
	QueryAttrs  []string
	Domains     [][]string
	Depth       int
	Root        *tree.Node
}

type nodeSnapshot struct {
	Path     []string
	Level    int
	True     []int64
	Noisy    []float64
	Est      []int64
	Children []*nodeSnapshot
}

type encodableState struct {
	Version    int
	Phase      Phase
	GeoAttrs   []string
	QueryAttrs []string
	Domains    [][]string
	Depth      int
	Root       *nodeSnapshot
}

// GobEncode implements gob.GobEncoder.
func (s *State) GobEncode() ([]byte, error) {
	es := encodableState{
		Version:    stateVersion,
		Phase:      s.Phase,
		GeoAttrs:   s.GeoAttrs,
		QueryAttrs: s.QueryAttrs,
		Domains:    s.Domains,
		Depth:      s.Depth,
		Root:       snapshotNode(s.Root),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(es); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (s *State) GobDecode(data []byte) error {
	var es encodableState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&es); err != nil {
		return err
	}
	if es.Version != stateVersion {
		return topderr.New(topderr.StateError, "checkpoint.GobDecode", nil,
			fmt.Sprintf("checkpoint was written by version %d, this build reads version %d", es.Version, stateVersion))
	}
	s.Phase = es.Phase
	s.GeoAttrs = es.GeoAttrs
	s.QueryAttrs = es.QueryAttrs
	s.Domains = es.Domains
	s.Depth = es.Depth
	s.Root = restoreNode(es.Root)
	return nil
}

func snapshotNode(n *tree.Node) *nodeSnapshot {
	if n == nil {
		return nil
	}
	s := &nodeSnapshot{
		Path:  n.Path,
		Level: n.Level,
		True:  n.True,
		Noisy: n.Noisy,
		Est:   n.Est,
	}
	for _, c := range n.Children {
		s.Children = append(s.Children, snapshotNode(c))
	}
	return s
}

func restoreNode(s *nodeSnapshot) *tree.Node {
	if s == nil {
		return nil
	}
	n := &tree.Node{
		Path:  s.Path,
		Level: s.Level,
		True:  s.True,
		Noisy: s.Noisy,
		Est:   s.Est,
	}
	for _, c := range s.Children {
		n.Children = append(n.Children, restoreNode(c))
	}
	return n
}

// Save writes state to path, overwriting any existing file.
func Save(path string, state *State) error {
	f, err := os.Create(path)
	if err != nil {
		return topderr.Wrap(topderr.StateError, "checkpoint.Save", nil, "could not create checkpoint file", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(state); err != nil {
		return topderr.Wrap(topderr.StateError, "checkpoint.Save", nil, "could not encode checkpoint", err)
	}
	return nil
}

// Load reads a State previously written by Save. It returns (nil, nil) if
// path does not exist, and a StateError if the file cannot be opened, is
// corrupt, or was written by an incompatible version of this package.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, topderr.Wrap(topderr.StateError, "checkpoint.Load", nil, "could not open checkpoint file", err)
	}
	defer f.Close()

	var state State
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		if te, ok := err.(*topderr.Error); ok {
			return nil, te
		}
		return nil, topderr.Wrap(topderr.StateError, "checkpoint.Load", nil, "could not decode checkpoint", err)
	}
	return &state, nil
}
