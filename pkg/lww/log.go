// Package lww implements C1: a generic last-write-wins Map<string, {val,
// ts}> over an ordered CRDT sequence (pkg/crdt.Sequence), with tombstone
// compaction. This is the single hardest, most load-bearing piece spec.md
// names (§2, §4.1): every table column and every KV entry is ultimately one
// key in one Log.
//
// Grounded on the teacher's pkg/storage/engine.go Put/Del path: "write new
// version, keep old as tombstone, maintain an in-memory index for O(1)
// reads" is exactly StorageEngine's B+Tree-points-at-heap-offset design,
// generalized here to an arbitrary string key instead of a typed index key
// and a generic value instead of a BSON document.
package lww

import (
	"sync"

	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/hlc"
)

// Entry is the live {val, ts} pair for one key (spec.md §4.1).
type Entry struct {
	Val any
	Ts  hlc.Timestamp
}

// Change mirrors spec.md §4.1's observer payload, with values decoded back
// to Go values (pkg/crdt.Change carries raw bytes).
type Change struct {
	Action   string // "add" | "update" | "delete"
	OldValue any
	NewValue any
	OldTs    hlc.Timestamp
	NewTs    hlc.Timestamp
}

// ObserverFunc receives the union of keys changed by one transaction, plus
// their Change. The CRDT notification phase this fires from is read-only;
// see pkg/crdt's Txn doc comment.
type ObserverFunc func(changes map[string]Change)

// Log is one LWW map, backed by one named crdt.Sequence within a crdt.Doc.
type Log struct {
	doc   *crdt.Doc
	seq   *crdt.Sequence
	clock *hlc.Source

	mu   sync.RWMutex
	live map[string]Entry

	obsMu     sync.Mutex
	observers map[int]ObserverFunc
	nextObsID int
}

// Open attaches a Log to the named sequence of doc, replaying whatever items
// already exist (e.g. after a persistence provider restored doc's state)
// into the in-memory mirror map spec.md §4.1 requires.
func Open(doc *crdt.Doc, sequenceName string, clock *hlc.Source) *Log {
	l := &Log{
		doc:       doc,
		seq:       doc.Sequence(sequenceName),
		clock:     clock,
		live:      make(map[string]Entry),
		observers: make(map[int]ObserverFunc),
	}
	for _, item := range l.seq.All() {
		val, err := decode(item.Value)
		if err != nil {
			continue
		}
		l.live[item.Key] = Entry{Val: val, Ts: item.ID}
	}
	l.seq.Subscribe(func(changes map[string]crdt.Change, _ *crdt.Txn) {
		l.applyAndForward(changes)
	})
	return l
}

func (l *Log) applyAndForward(changes map[string]crdt.Change) {
	out := make(map[string]Change, len(changes))
	l.mu.Lock()
	for key, c := range changes {
		var newVal any
		if c.Action != "delete" {
			if v, err := decode(c.NewValue); err == nil {
				newVal = v
			}
		}
		var oldVal any
		if len(c.OldValue) > 0 {
			if v, err := decode(c.OldValue); err == nil {
				oldVal = v
			}
		}
		if c.Action == "delete" {
			delete(l.live, key)
		} else {
			l.live[key] = Entry{Val: newVal, Ts: c.NewTs}
		}
		out[key] = Change{Action: c.Action, OldValue: oldVal, NewValue: newVal, OldTs: c.OldTs, NewTs: c.NewTs}
	}
	l.mu.Unlock()

	if len(out) == 0 {
		return
	}
	l.obsMu.Lock()
	obs := make([]ObserverFunc, 0, len(l.observers))
	for _, o := range l.observers {
		obs = append(obs, o)
	}
	l.obsMu.Unlock()
	for _, o := range obs {
		invokeSafely(o, out)
	}
}

func invokeSafely(o ObserverFunc, changes map[string]Change) {
	defer func() { _ = recover() }()
	o(changes)
}

// Get returns the live entry for key, if any.
func (l *Log) Get(key string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.live[key]
	return e, ok
}

// Has reports whether key has a live entry.
func (l *Log) Has(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.live[key]
	return ok
}

// Size returns the number of live keys.
func (l *Log) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.live)
}

// Entries returns a snapshot of every live {key: Entry}.
func (l *Log) Entries() map[string]Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Entry, len(l.live))
	for k, v := range l.live {
		out[k] = v
	}
	return out
}

// Txn batches several Set/Delete calls into one underlying CRDT transaction
// so observers fire exactly once (spec.md §4.3 "Batching").
type Txn struct {
	log *Log
	txn *crdt.Txn
}

// Set appends a new version of key (spec.md §4.1's `ts = max(now,
// existing.ts + 1)`) inside the transaction.
func (t *Txn) Set(key string, val any) error {
	return t.log.setIn(t.txn, key, val)
}

// Delete tombstones the live entry for key inside the transaction, a no-op
// if no live entry exists locally (spec.md §9 Open Question 1).
func (t *Txn) Delete(key string) bool {
	return t.log.deleteIn(t.txn, key)
}

func (l *Log) setIn(txn *crdt.Txn, key string, val any) error {
	raw, err := encode(val)
	if err != nil {
		return err
	}
	l.mu.RLock()
	existing, hadPrior := l.live[key]
	l.mu.RUnlock()

	now := l.clock.Now()
	if hadPrior {
		now = hlc.Max(now, existing.Ts.Advance())
	}
	txn.Set(l.seq, key, raw, now)
	return nil
}

func (l *Log) deleteIn(txn *crdt.Txn, key string) bool {
	return txn.Delete(l.seq, key)
}

// Transact runs fn within one CRDT transaction over this Log's sequence.
func (l *Log) Transact(fn func(tx *Txn)) {
	l.doc.Transact(func(txn *crdt.Txn) {
		fn(&Txn{log: l, txn: txn})
	})
}

// Set is the single-key convenience wrapper (spec.md §4.1).
func (l *Log) Set(key string, val any) error {
	var err error
	l.Transact(func(t *Txn) { err = t.Set(key, val) })
	return err
}

// Delete is the single-key convenience wrapper.
func (l *Log) Delete(key string) bool {
	var found bool
	l.Transact(func(t *Txn) { found = t.Delete(key) })
	return found
}

// Clear removes every live key in one transaction (spec.md §4.3's "Clear-
// is-empty" invariant; tables remain usable afterwards — only the mirror
// map and sequence tombstones are affected, the Log itself is never torn
// down, matching "Storage permanence" in spec.md §4.3).
func (l *Log) Clear() {
	l.Transact(func(t *Txn) {
		l.mu.RLock()
		keys := make([]string, 0, len(l.live))
		for k := range l.live {
			keys = append(keys, k)
		}
		l.mu.RUnlock()
		for _, k := range keys {
			t.Delete(k)
		}
	})
}

// Observe subscribes cb to every future change; returns an unsubscribe func.
func (l *Log) Observe(cb ObserverFunc) func() {
	l.obsMu.Lock()
	id := l.nextObsID
	l.nextObsID++
	l.observers[id] = cb
	l.obsMu.Unlock()
	return func() {
		l.obsMu.Lock()
		delete(l.observers, id)
		l.obsMu.Unlock()
	}
}

// Compact drops superseded tombstones (all but the latest per key) from the
// underlying sequence (see crdt.Sequence.Compact), mirroring the teacher's
// StorageEngine.Vacuum.
func (l *Log) Compact() int { return l.seq.Compact() }

// RawLength returns the underlying sequence's item count, tombstones
// included — used by tests asserting the "storage compaction" property
// (spec.md §8.1 #12).
func (l *Log) RawLength() int { return l.seq.Len() }
