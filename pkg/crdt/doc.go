// Package crdt implements the in-memory substrate spec.md §2 calls "a CRDT
// document": named ordered Sequences and named Maps, grouped under one Doc,
// with transactions and a GC on/off knob per document (spec.md §4.1, §4.6,
// §9 "Two GC regimes in one system").
//
// This is deliberately NOT a general-purpose op-based CRDT runtime (no
// operational-transform, no vector-clock-per-peer merge graph). It is a
// state-based log: every Sequence is a slice of items ordered by insertion,
// each stamped with an hlc.Timestamp id so concurrent appends from different
// replicas interleave deterministically on merge. That is exactly enough
// machinery for pkg/lww to build last-write-wins semantics on top, which is
// the only thing layered on a Sequence in this codebase (spec.md §9: "avoid
// native CRDT map types for row data").
//
// Grounded on the teacher's append-only heap + WAL model
// (pkg/heap.HeapManager, pkg/wal.WALWriter): a Sequence plays the role the
// heap's version chain plays there (append new, mark prior dead, compact
// adjacent dead entries), minus on-disk segments — persistence is an
// external Lifecycle provider's job here (spec.md §6.3), not the document's.
package crdt

import (
	"sync"

	"github.com/Leftium/epicenter/pkg/hlc"
)

// Item is one entry appended to a Sequence.
type Item struct {
	ID        hlc.Timestamp // uniquely orders/identifies this append
	Key       string
	Value     []byte
	Tombstone bool
}

// Change describes one key's fate within a single transaction, mirroring
// spec.md §4.1's observer Change shape.
type Change struct {
	Action   string // "add" | "update" | "delete"
	OldValue []byte
	NewValue []byte
	OldTs    hlc.Timestamp
	NewTs    hlc.Timestamp
}

// Observer is notified once per transaction with the union of changed keys.
type Observer func(changes map[string]Change, txn *Txn)

// Sequence is an ordered, append-mostly log of Items, the storage backing a
// pkg/lww.Log. Superseded tombstones are dropped by Compact, which runs
// whenever it is called; Doc.GC is not consulted.
type Sequence struct {
	name      string
	doc       *Doc
	mu        sync.RWMutex
	items     []Item          // append order; tombstoned items remain until Compact
	observers []Observer
}

// Name returns the sequence's key within its document ("table:<id>" or "kv").
func (s *Sequence) Name() string { return s.name }

// append adds a new, live item to the end of the sequence. Must be called
// from within a transaction (see Doc.Transact).
func (s *Sequence) append(item Item) {
	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()
}

// markTombstone flips the most recent still-live item matching key to a tombstone,
// in place, without appending a new item. Returns the tombstoned item and
// whether one was found.
func (s *Sequence) markTombstone(key string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Key == key && !s.items[i].Tombstone {
			s.items[i].Tombstone = true
			return s.items[i], true
		}
	}
	return Item{}, false
}

// liveLatest returns the most recent live item for key, if any.
func (s *Sequence) liveLatest(key string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Key == key && !s.items[i].Tombstone {
			return s.items[i], true
		}
	}
	return Item{}, false
}

// All returns a snapshot copy of every live item in append order. Live
// duplicates for the same key are not filtered out (they should not exist
// under normal use, but a remote merge that raced a local write could
// momentarily produce one — callers that need the uniqueness invariant
// should go through pkg/lww.Log, which maintains it).
func (s *Sequence) All() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if !it.Tombstone {
			out = append(out, it)
		}
	}
	return out
}

// Len returns the raw item count, tombstones included — the metric
// spec.md §4.1's GC invariant is measured against.
func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Compact drops superseded tombstones for the same key, keeping only the
// most recent tombstone per key, so rewriting one key many times leaves at
// most one live item and one tombstone for it. Tombstones of different keys
// are not merged, even when adjacent. Safe to call at any time; never
// removes a live item.
func (s *Sequence) Compact() (removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latestTombstoneIdx := make(map[string]int)
	for i, it := range s.items {
		if it.Tombstone {
			latestTombstoneIdx[it.Key] = i
		}
	}

	kept := s.items[:0:0]
	for i, it := range s.items {
		if it.Tombstone && latestTombstoneIdx[it.Key] != i {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	s.items = kept
	return removed
}

// Subscribe registers obs to be called once per transaction that touches
// this sequence, with the union of changed keys. Returns an unsubscribe
// function.
func (s *Sequence) Subscribe(obs Observer) func() {
	s.mu.Lock()
	s.observers = append(s.observers, obs)
	idx := len(s.observers) - 1
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < len(s.observers) {
			s.observers[idx] = nil
		}
	}
}

func (s *Sequence) notify(changes map[string]Change, txn *Txn) {
	if len(changes) == 0 {
		return
	}
	s.mu.RLock()
	obs := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()
	for _, o := range obs {
		if o == nil {
			continue
		}
		safeInvoke(o, changes, txn)
	}
}

// safeInvoke isolates one observer's panic/error from the others, per
// spec.md §7: "Observer callbacks' thrown errors are isolated per
// subscriber."
func safeInvoke(o Observer, changes map[string]Change, txn *Txn) {
	defer func() { _ = recover() }()
	o(changes, txn)
}

// NamedMap is a small shared CRDT map, used for markdown frontmatter
// (spec.md §4.6, §6.1): per-field merge matters more than storage compaction
// at this size, so unlike table/KV data it is NOT built on a Sequence.
type NamedMap struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (m *NamedMap) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *NamedMap) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
}

func (m *NamedMap) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *NamedMap) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

// Text is a shared CRDT text body, used for plain-text file content and the
// markdown "richtext" body (spec.md §3, §6.1). Concurrent edits are not
// character-merged (that needs a true RGA/sequence-CRDT over runes, out of
// scope for the storage/observation layer this module covers) — whole-buffer
// replace/append only, which is exactly what pkg/vfs's writeFile/appendFile
// need.
type Text struct {
	mu   sync.RWMutex
	body []rune
}

func (t *Text) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return string(t.body)
}

func (t *Text) Replace(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.body = []rune(s)
}

func (t *Text) Append(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.body = append(t.body, []rune(s)...)
}

// Doc is one CRDT document: a GUID, a GC policy, and the named Sequences,
// Maps and Text bodies it owns. spec.md §3: "One CRDT document per
// workspace, GC enabled" and "One content document per file... GC disabled".
type Doc struct {
	GUID string
	GC   bool

	mu        sync.Mutex
	sequences map[string]*Sequence
	maps      map[string]*NamedMap
	texts     map[string]*Text
	destroyed bool
}

// NewDoc creates a document. gc is recorded as Doc.GC, an advisory flag
// (spec.md §9's "implementers must expose both knobs on their CRDT
// runtime"); nothing in this module reads it, and Sequence.Compact runs
// whenever it is called, regardless of the flag.
func NewDoc(guid string, gc bool) *Doc {
	return &Doc{
		GUID:      guid,
		GC:        gc,
		sequences: make(map[string]*Sequence),
		maps:      make(map[string]*NamedMap),
		texts:     make(map[string]*Text),
	}
}

// Sequence returns (creating if necessary) the named ordered log.
func (d *Doc) Sequence(name string) *Sequence {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sequences[name]
	if !ok {
		s = &Sequence{name: name, doc: d}
		d.sequences[name] = s
	}
	return s
}

// Map returns (creating if necessary) the named shared map.
func (d *Doc) Map(name string) *NamedMap {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.maps[name]
	if !ok {
		m = &NamedMap{}
		d.maps[name] = m
	}
	return m
}

// TextBody returns (creating if necessary) the named shared text.
func (d *Doc) TextBody(name string) *Text {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.texts[name]
	if !ok {
		t = &Text{}
		d.texts[name] = t
	}
	return t
}

// Destroy marks the document as torn down. Idempotent.
func (d *Doc) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

// Destroyed reports whether Destroy was already called.
func (d *Doc) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// Txn is the handle passed to a transaction body and to observers. Observer
// callbacks must treat the document as read-only during notification
// (spec.md §5, §9 "read → decide → write outside transactions"); Txn
// exposes no mutation methods for that reason — mutation happens through
// Sequence methods called from inside Doc.Transact's function argument only.
type Txn struct {
	doc     *Doc
	pending map[*Sequence]map[string]Change
}

func newTxn(d *Doc) *Txn {
	return &Txn{doc: d, pending: make(map[*Sequence]map[string]Change)}
}

func (t *Txn) record(s *Sequence, key string, c Change) {
	m, ok := t.pending[s]
	if !ok {
		m = make(map[string]Change)
		t.pending[s] = m
	}
	m[key] = c
}

// Transact runs fn, batching every mutation made through the Sequences this
// Doc owns, then fires each touched Sequence's observers exactly once with
// the union of keys that changed (spec.md §5: "all mutations are atomic to
// observers: callbacks fire exactly once per transaction").
func (d *Doc) Transact(fn func(txn *Txn)) {
	txn := newTxn(d)
	fn(txn)
	for seq, changes := range txn.pending {
		seq.notify(changes, txn)
	}
}

// Set appends a new live item for key (LWW write primitive) inside txn,
// recording the resulting Change against the sequence's pending batch.
func (txn *Txn) Set(s *Sequence, key string, value []byte, ts hlc.Timestamp) {
	prior, hadPrior := s.liveLatest(key)
	if hadPrior {
		s.markTombstone(key)
	}
	s.append(Item{ID: ts, Key: key, Value: value, Tombstone: false})

	action := "add"
	var oldVal []byte
	var oldTs hlc.Timestamp
	if hadPrior {
		action = "update"
		oldVal = prior.Value
		oldTs = prior.ID
	}
	txn.record(s, key, Change{Action: action, OldValue: oldVal, NewValue: value, OldTs: oldTs, NewTs: ts})
}

// Delete tombstones the live item for key, if any, inside txn. Returns
// whether a live item existed (spec.md §9 Open Question 1: deleting with no
// local evidence is a pure no-op, no Change is recorded).
func (txn *Txn) Delete(s *Sequence, key string) bool {
	prior, ok := s.liveLatest(key)
	if !ok {
		return false
	}
	s.markTombstone(key)
	txn.record(s, key, Change{Action: "delete", OldValue: prior.Value, OldTs: prior.ID})
	return true
}

// Clear tombstones every live item in s inside txn.
func (txn *Txn) Clear(s *Sequence) {
	for _, it := range s.All() {
		txn.Delete(s, it.Key)
	}
}
