package hlc_test

import (
	"testing"

	"github.com/Leftium/epicenter/pkg/hlc"
)

func TestSource_NowIsMonotonic(t *testing.T) {
	src := hlc.NewSource("node-a")
	prev := src.Now()
	for i := 0; i < 100; i++ {
		next := src.Now()
		if !next.After(prev) {
			t.Fatalf("expected timestamp %d to be after %d", i, i-1)
		}
		prev = next
	}
}

func TestTimestamp_Advance(t *testing.T) {
	src := hlc.NewSource("node-a")
	ts := src.Now()
	advanced := ts.Advance()
	if !advanced.After(ts) {
		t.Fatalf("Advance() did not move the timestamp forward")
	}
}

func TestMax(t *testing.T) {
	src := hlc.NewSource("node-a")
	a := src.Now()
	b := a.Advance()
	if got := hlc.Max(a, b); got.Compare(b) != 0 {
		t.Fatalf("Max(a, b) should equal b when b is later")
	}
	if got := hlc.Max(b, a); got.Compare(b) != 0 {
		t.Fatalf("Max(b, a) should equal b regardless of argument order")
	}
}
