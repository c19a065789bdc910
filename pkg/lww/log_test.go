package lww_test

import (
	"testing"

	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/lww"
)

func newLog(t *testing.T) (*crdt.Doc, *lww.Log) {
	t.Helper()
	doc := crdt.NewDoc("doc-1", true)
	clock := hlc.NewSource("node-a")
	return doc, lww.Open(doc, "table:t", clock)
}

func TestLog_SetGetDelete(t *testing.T) {
	_, log := newLog(t)

	if err := log.Set("k1", "v1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	entry, ok := log.Get("k1")
	if !ok || entry.Val != "v1" {
		t.Fatalf("expected k1=v1, got %v (ok=%v)", entry.Val, ok)
	}

	if !log.Delete("k1") {
		t.Fatalf("expected Delete to report true for an existing key")
	}
	if _, ok := log.Get("k1"); ok {
		t.Fatalf("expected k1 to be gone after Delete")
	}
}

func TestLog_DeleteMissingIsNoOp(t *testing.T) {
	_, log := newLog(t)
	if log.Delete("missing") {
		t.Fatalf("expected Delete on a missing key to return false")
	}
}

func TestLog_ObserveFiresWithChangeSet(t *testing.T) {
	_, log := newLog(t)

	var seen map[string]lww.Change
	log.Observe(func(changes map[string]lww.Change) { seen = changes })

	log.Transact(func(tx *lww.Txn) {
		_ = tx.Set("a", 1)
		_ = tx.Set("b", 2)
	})

	if len(seen) != 2 {
		t.Fatalf("expected 2 changed keys, got %d", len(seen))
	}
	if seen["a"].Action != "add" {
		t.Fatalf("expected action 'add' for a new key, got %q", seen["a"].Action)
	}
}

func TestLog_ClearEmptiesButKeepsLogUsable(t *testing.T) {
	_, log := newLog(t)
	_ = log.Set("a", 1)
	_ = log.Set("b", 2)

	log.Clear()

	if log.Size() != 0 {
		t.Fatalf("expected Size 0 after Clear, got %d", log.Size())
	}
	if err := log.Set("c", 3); err != nil {
		t.Fatalf("expected log to remain usable after Clear: %v", err)
	}
	if log.Size() != 1 {
		t.Fatalf("expected Size 1 after writing post-Clear, got %d", log.Size())
	}
}

func TestLog_CompactShrinksRawLength(t *testing.T) {
	_, log := newLog(t)
	_ = log.Set("a", 1)
	_ = log.Set("a", 2)
	log.Delete("a")

	before := log.RawLength()
	log.Compact()
	if log.RawLength() >= before {
		t.Fatalf("expected Compact to shrink raw length, before=%d after=%d", before, log.RawLength())
	}
}

func TestLog_RoundTripsStringSlice(t *testing.T) {
	_, log := newLog(t)
	if err := log.Set("tags", []string{"urgent", "home"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	entry, ok := log.Get("tags")
	if !ok {
		t.Fatalf("expected tags to be set")
	}
	got, ok := entry.Val.([]string)
	if !ok {
		t.Fatalf("expected decoded value to be []string, got %T", entry.Val)
	}
	if len(got) != 2 || got[0] != "urgent" || got[1] != "home" {
		t.Fatalf("expected []string{\"urgent\",\"home\"}, got %v", got)
	}
}

func TestLog_RoundTripsMap(t *testing.T) {
	_, log := newLog(t)
	if err := log.Set("meta", map[string]any{"author": "ada", "version": int64(2)}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	entry, ok := log.Get("meta")
	if !ok {
		t.Fatalf("expected meta to be set")
	}
	got, ok := entry.Val.(map[string]any)
	if !ok {
		t.Fatalf("expected decoded value to be map[string]any, got %T", entry.Val)
	}
	if got["author"] != "ada" {
		t.Fatalf("expected author=ada, got %v", got["author"])
	}
}

func TestLog_ReplaysExistingSequenceOnOpen(t *testing.T) {
	doc := crdt.NewDoc("doc-1", true)
	clock := hlc.NewSource("node-a")
	first := lww.Open(doc, "table:t", clock)
	_ = first.Set("k1", "v1")

	second := lww.Open(doc, "table:t", clock)
	entry, ok := second.Get("k1")
	if !ok || entry.Val != "v1" {
		t.Fatalf("expected the second Log opened on the same sequence to see k1=v1, got %v (ok=%v)", entry.Val, ok)
	}
}
