package cellkey_test

import (
	"testing"

	"github.com/Leftium/epicenter/pkg/cellkey"
)

func TestKeyRoundTrip(t *testing.T) {
	row, err := cellkey.NewRowID("r1")
	if err != nil {
		t.Fatalf("NewRowID failed: %v", err)
	}
	field, err := cellkey.NewFieldID("title")
	if err != nil {
		t.Fatalf("NewFieldID failed: %v", err)
	}

	key := cellkey.Key(row, field)
	if key != "r1:title" {
		t.Fatalf("expected key %q, got %q", "r1:title", key)
	}

	parsed, err := cellkey.Parse(key)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if parsed.Row != row || parsed.Field != field {
		t.Fatalf("expected row=%q field=%q, got row=%q field=%q", row, field, parsed.Row, parsed.Field)
	}
}

func TestNewRowID_RejectsColon(t *testing.T) {
	if _, err := cellkey.NewRowID("r1:bad"); err == nil {
		t.Fatalf("expected an error for an id containing ':'")
	}
}

func TestNewRowID_RejectsEmpty(t *testing.T) {
	if _, err := cellkey.NewRowID(""); err == nil {
		t.Fatalf("expected an error for an empty id")
	}
}

func TestParse_RejectsMissingSeparator(t *testing.T) {
	if _, err := cellkey.Parse("nosep"); err == nil {
		t.Fatalf("expected an error for a key with no ':' separator")
	}
}

func TestParse_RejectsExtraSeparator(t *testing.T) {
	if _, err := cellkey.Parse("r1:f1:extra"); err == nil {
		t.Fatalf("expected an error for a key with more than one ':' separator")
	}
}

func TestHasRowPrefix(t *testing.T) {
	row, _ := cellkey.NewRowID("r1")
	if !cellkey.HasRowPrefix("r1:title", row) {
		t.Fatalf("expected r1:title to have row prefix r1:")
	}
	if cellkey.HasRowPrefix("r2:title", row) {
		t.Fatalf("expected r2:title to not have row prefix r1:")
	}
}
