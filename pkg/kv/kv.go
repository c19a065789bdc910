// Package kv implements C4: a typed key-value store, one lww.Log keyed
// directly by field id (no row decomposition — spec.md §3's "KV field" is
// Field minus the id variant, and each entry is its own independent LWW
// cell already).
//
// Grounded on the teacher's pkg/storage engine Get/Put path, the same way
// pkg/table is, but without the cellkey row/field composition: a KV store
// is pkg/table's row concept flattened to a single implicit row.
package kv

import (
	"fmt"

	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/epierr"
	"github.com/Leftium/epicenter/pkg/field"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/lww"
)

// Definition describes a KV store's fields (spec.md §3).
type Definition struct {
	ID     string
	Fields []field.Field
}

// Store is one KV engine.
type Store struct {
	def    Definition
	fields *field.Set
	log    *lww.Log

	observers      map[int]func(map[string]struct{})
	nextObsID      int
	keyObservers   map[string]map[int]func()
	nextKeyObsID   int
}

// New compiles def's fields (no KindID allowed) and attaches a Log to the
// "kv:<id>" sequence of doc.
func New(doc *crdt.Doc, clock *hlc.Source, def Definition) (*Store, error) {
	fs, err := field.Compile(def.Fields, false)
	if err != nil {
		return nil, fmt.Errorf("kv %q: %w", def.ID, err)
	}
	s := &Store{
		def:          def,
		fields:       fs,
		log:          lww.Open(doc, "kv:"+def.ID, clock),
		observers:    make(map[int]func(map[string]struct{})),
		keyObservers: make(map[string]map[int]func()),
	}
	s.log.Observe(s.onLogChange)
	return s, nil
}

func (s *Store) onLogChange(changes map[string]lww.Change) {
	keys := make(map[string]struct{}, len(changes))
	for k := range changes {
		keys[k] = struct{}{}
	}
	for _, o := range s.observers {
		o(keys)
	}
	for k := range keys {
		for _, cb := range s.keyObservers[k] {
			cb()
		}
	}
}

// Status tags a Get result, mirroring pkg/table's tagged-union style
// (spec.md §7: data-path outcomes are values, never errors).
type Status string

const (
	StatusValid    Status = "valid"
	StatusInvalid  Status = "invalid"
	StatusNotFound Status = "not_found"
)

// GetResult is Get's tagged-union return (spec.md §4.4: "If no entry: return
// the field's default when defined; else null if nullable; else
// not_found.").
type GetResult struct {
	Status Status
	Value  any
	Exists bool
}

// Get returns fieldID's live value, or its declared default if no entry
// exists yet. Validation happens here, at read, never at write (spec.md
// §4.4 "validation-at-read").
func (s *Store) Get(fieldID string) (GetResult, []epierr.ValidationIssue) {
	f, ok := s.fields.Get(fieldID)
	if !ok {
		return GetResult{Status: StatusInvalid}, []epierr.ValidationIssue{{Path: "/" + fieldID, Message: "unknown field"}}
	}
	entry, ok := s.log.Get(fieldID)
	if !ok {
		if f.HasDefault {
			return GetResult{Status: StatusValid, Value: f.Default, Exists: false}, nil
		}
		if f.Nullable {
			return GetResult{Status: StatusValid, Value: nil, Exists: false}, nil
		}
		return GetResult{Status: StatusNotFound, Exists: false}, nil
	}
	issues := s.fields.Validate(map[string]any{fieldID: entry.Val})
	status := StatusValid
	if len(issues) > 0 {
		status = StatusInvalid
	}
	return GetResult{Status: status, Value: entry.Val, Exists: true}, issues
}

// Set writes fieldID's value, unvalidated (spec.md §4.4).
func (s *Store) Set(fieldID string, val any) error {
	if _, ok := s.fields.Get(fieldID); !ok {
		return fmt.Errorf("kv: unknown field %q", fieldID)
	}
	return s.log.Set(fieldID, val)
}

// SetMany writes several fields in one transaction.
func (s *Store) SetMany(values map[string]any) error {
	var firstErr error
	s.log.Transact(func(tx *lww.Txn) {
		for fieldID, val := range values {
			if _, ok := s.fields.Get(fieldID); !ok {
				if firstErr == nil {
					firstErr = fmt.Errorf("kv: unknown field %q", fieldID)
				}
				continue
			}
			if err := tx.Set(fieldID, val); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// Reset deletes fieldID's live entry, reverting Get to the field's default
// (spec.md §4.4).
func (s *Store) Reset(fieldID string) bool { return s.log.Delete(fieldID) }

// Has reports whether fieldID has a live entry (a default does not count).
func (s *Store) Has(fieldID string) bool { return s.log.Has(fieldID) }

// Clear removes every live entry; declared fields still answer Get with
// their defaults afterwards.
func (s *Store) Clear() { s.log.Clear() }

// ToJSON renders every declared field's current (live-or-default) value.
func (s *Store) ToJSON() map[string]any {
	out := make(map[string]any, len(s.fields.Fields()))
	for _, f := range s.fields.Fields() {
		res, _ := s.Get(f.ID)
		if res.Status != StatusNotFound {
			out[f.ID] = res.Value
		}
	}
	return out
}

// Observe subscribes cb to the set of field ids changed by each transaction.
func (s *Store) Observe(cb func(map[string]struct{})) func() {
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = cb
	return func() { delete(s.observers, id) }
}

// ObserveKey subscribes cb to changes of a single field id.
func (s *Store) ObserveKey(fieldID string, cb func()) func() {
	id := s.nextKeyObsID
	s.nextKeyObsID++
	if s.keyObservers[fieldID] == nil {
		s.keyObservers[fieldID] = make(map[int]func())
	}
	s.keyObservers[fieldID][id] = cb
	return func() { delete(s.keyObservers[fieldID], id) }
}

// Compact drops superseded tombstones in the backing log (see
// lww.Log.Compact).
func (s *Store) Compact() int { return s.log.Compact() }

// Log returns the lww.Log backing this store, for extensions
// (extensions/persistence, extensions/sync) that operate on logs directly
// rather than through the table/kv abstractions.
func (s *Store) Log() *lww.Log { return s.log }
