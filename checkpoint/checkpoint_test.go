package checkpoint

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/synthcensus/topdown/tree"
)

func testState() *State {
	return &State{
		Phase:      PhaseMeasured,
		GeoAttrs:   []string{"region", "province"},
		QueryAttrs: []string{"sex"},
		Domains:    [][]string{{"M", "F"}},
		Depth:      2,
		Root: &tree.Node{
			Path:  nil,
			Level: 0,
			True:  []int64{10, 5},
			Noisy: []float64{9.5, 5.2},
			Children: []*tree.Node{
				{Path: []string{"R1"}, Level: 1, True: []int64{10, 5}, Noisy: []float64{9.5, 5.2}},
			},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.gob")
	want := testState()

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: unexpected error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: unexpected error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load(Save(_)) mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "does-not-exist.gob"))
	if err != nil {
		t.Fatalf("Load on a missing file: unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("Load on a missing file = %v, want nil", got)
	}
}

func TestGobDecodeRejectsVersionMismatch(t *testing.T) {
	es := encodableState{Version: stateVersion + 1, Phase: PhaseBuilt}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(es); err != nil {
		t.Fatalf("gob.Encode: unexpected error: %v", err)
	}

	var s State
	if err := s.GobDecode(buf.Bytes()); err == nil {
		t.Error("GobDecode with a mismatched version tag: got no error, want one")
	}
}
