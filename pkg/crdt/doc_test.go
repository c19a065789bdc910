package crdt_test

import (
	"testing"

	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/hlc"
)

func TestSequence_SetThenGet(t *testing.T) {
	doc := crdt.NewDoc("doc-1", true)
	seq := doc.Sequence("table:t")
	clock := hlc.NewSource("node-a")

	doc.Transact(func(txn *crdt.Txn) {
		txn.Set(seq, "r1:f1", []byte("hello"), clock.Now())
	})

	items := seq.All()
	if len(items) != 1 {
		t.Fatalf("expected 1 live item, got %d", len(items))
	}
	if string(items[0].Value) != "hello" {
		t.Fatalf("expected value %q, got %q", "hello", items[0].Value)
	}
}

func TestTxn_DeleteWithNoPriorIsNoOp(t *testing.T) {
	doc := crdt.NewDoc("doc-1", true)
	seq := doc.Sequence("table:t")

	var notified bool
	doc.Transact(func(txn *crdt.Txn) {
		notified = txn.Delete(seq, "missing")
	})
	if notified {
		t.Fatalf("expected Delete on missing key to report false")
	}
	if seq.Len() != 0 {
		t.Fatalf("expected no tombstone to be written for a missing key, len=%d", seq.Len())
	}
}

func TestDoc_TransactFiresObserverOncePerTransaction(t *testing.T) {
	doc := crdt.NewDoc("doc-1", true)
	seq := doc.Sequence("table:t")
	clock := hlc.NewSource("node-a")

	var calls int
	var lastChanges map[string]crdt.Change
	seq.Subscribe(func(changes map[string]crdt.Change, _ *crdt.Txn) {
		calls++
		lastChanges = changes
	})

	doc.Transact(func(txn *crdt.Txn) {
		txn.Set(seq, "r1:f1", []byte("a"), clock.Now())
		txn.Set(seq, "r1:f2", []byte("b"), clock.Now())
	})

	if calls != 1 {
		t.Fatalf("expected observer to fire exactly once per transaction, got %d", calls)
	}
	if len(lastChanges) != 2 {
		t.Fatalf("expected 2 changed keys, got %d", len(lastChanges))
	}
}

func TestSequence_CompactMergesTombstones(t *testing.T) {
	doc := crdt.NewDoc("doc-1", true)
	seq := doc.Sequence("table:t")
	clock := hlc.NewSource("node-a")

	doc.Transact(func(txn *crdt.Txn) {
		txn.Set(seq, "r1:f1", []byte("v1"), clock.Now())
	})
	doc.Transact(func(txn *crdt.Txn) {
		txn.Set(seq, "r1:f1", []byte("v2"), clock.Now())
	})
	doc.Transact(func(txn *crdt.Txn) {
		txn.Delete(seq, "r1:f1")
	})

	before := seq.Len()
	removed := seq.Compact()
	if removed == 0 {
		t.Fatalf("expected Compact to remove at least one superseded tombstone")
	}
	if seq.Len() >= before {
		t.Fatalf("expected Compact to shrink the sequence, before=%d after=%d", before, seq.Len())
	}
}

func TestObserverPanicIsolatesSubscribers(t *testing.T) {
	doc := crdt.NewDoc("doc-1", true)
	seq := doc.Sequence("table:t")
	clock := hlc.NewSource("node-a")

	var secondCalled bool
	seq.Subscribe(func(map[string]crdt.Change, *crdt.Txn) { panic("boom") })
	seq.Subscribe(func(map[string]crdt.Change, *crdt.Txn) { secondCalled = true })

	doc.Transact(func(txn *crdt.Txn) {
		txn.Set(seq, "r1:f1", []byte("v"), clock.Now())
	})

	if !secondCalled {
		t.Fatalf("expected the second observer to run despite the first panicking")
	}
}
