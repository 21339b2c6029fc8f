package basis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewOrdersLexicographically(t *testing.T) {
	b, err := New([]string{"sex", "age"}, [][]string{{"M", "F"}, {"young", "old"}})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	want := [][]string{
		{"M", "young"}, {"M", "old"},
		{"F", "young"}, {"F", "old"},
	}
	if b.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(want))
	}
	for i, w := range want {
		if got := b.Tuple(i); !cmp.Equal(got, w) {
			t.Errorf("Tuple(%d) = %v, want %v", i, got, w)
		}
	}
}

func TestIndexTupleRoundTrip(t *testing.T) {
	b, err := New([]string{"sex", "age", "race"}, [][]string{{"M", "F"}, {"young", "old"}, {"A", "B", "C"}})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	for i := 0; i < b.Len(); i++ {
		tuple := b.Tuple(i)
		got, err := b.Index(tuple)
		if err != nil {
			t.Fatalf("Index(%v): unexpected error: %v", tuple, err)
		}
		if got != i {
			t.Errorf("Index(Tuple(%d)) = %d, want %d", i, got, i)
		}
	}
}

func TestIndexUnknownTuple(t *testing.T) {
	b, err := New([]string{"sex"}, [][]string{{"M", "F"}})
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if _, err := b.Index([]string{"X"}); err == nil {
		t.Error("Index with an unknown tuple: got no error, want one")
	}
}

func TestNewRejectsMismatchedLengths(t *testing.T) {
	if _, err := New([]string{"sex", "age"}, [][]string{{"M", "F"}}); err == nil {
		t.Error("New with mismatched attrs/domains lengths: got no error, want one")
	}
}

func TestNewRejectsEmptyDomain(t *testing.T) {
	if _, err := New([]string{"sex"}, [][]string{{}}); err == nil {
		t.Error("New with an empty domain: got no error, want one")
	}
}
