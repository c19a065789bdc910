// Package field is the shared column/field type system used by both the
// table engine (pkg/table) and the KV store (pkg/kv): the tagged union
// spec.md §3 describes ("id | text | integer | real | boolean | date |
// select<options> | tags<options?> | json<schema>"), plus the validator
// compilation spec.md §4.3 requires ("compiles its Field[] into a single
// JSON-schema-compatible validator at construction").
//
// No pack library performs "validate a dynamic field-tagged union against an
// arbitrary map[string]any value" — invopop/jsonschema (seen in
// kasuganosora-sqlexec) runs the other direction, generating schema *from*
// Go structs. This package is therefore hand-written; see DESIGN.md.
package field

import (
	"fmt"
	"time"

	"github.com/Leftium/epicenter/pkg/epierr"
)

// Kind is the field's value type tag.
type Kind string

const (
	KindID      Kind = "id"
	KindText    Kind = "text"
	KindInteger Kind = "integer"
	KindReal    Kind = "real"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
	KindSelect  Kind = "select"
	KindTags    Kind = "tags"
	KindJSON    Kind = "json"
)

// JSONSchema is a minimal structural schema for KindJSON fields: just enough
// to validate shape (required keys + per-key kind), not a full JSON Schema
// implementation.
type JSONSchema struct {
	Required []string
	Props    map[string]Kind
}

// Field is one column definition (table) or one KV entry definition.
// ID doubles as the storage key for KV fields (spec.md §3).
type Field struct {
	ID       string
	Name     string
	Kind     Kind
	Nullable bool
	HasDefault bool
	Default  any
	Options  []string    // KindSelect / KindTags
	Schema   *JSONSchema // KindJSON

	// Strict is reserved per SPEC_FULL.md's Open Question 3 resolution: it
	// is never read by upsert/set (writes are never validated), kept only
	// so a future strict-write mode has a place to live without changing
	// the Field shape again.
	Strict bool
}

// Set is a compiled collection of Fields: validates field ids are unique and
// precomputes a map for O(1) lookup, the same "compile once" discipline the
// teacher applies to B+Tree comparators per index.
type Set struct {
	ordered []Field
	byID    map[string]Field
}

// Compile validates and indexes a field list. allowID controls whether a
// KindID field is permitted (true for table row schemas, false for KV field
// sets, per spec.md §3's "KV field — same as Field minus the id variant").
func Compile(fields []Field, allowID bool) (*Set, error) {
	byID := make(map[string]Field, len(fields))
	for _, f := range fields {
		if f.ID == "" {
			return nil, fmt.Errorf("field: empty id")
		}
		if _, dup := byID[f.ID]; dup {
			return nil, fmt.Errorf("field: duplicate field id %q", f.ID)
		}
		if f.Kind == KindID && !allowID {
			return nil, fmt.Errorf("field: kv fields may not use kind %q", KindID)
		}
		if (f.Kind == KindSelect || f.Kind == KindTags) && len(f.Options) == 0 && f.Kind == KindSelect {
			return nil, fmt.Errorf("field %q: select fields require Options", f.ID)
		}
		byID[f.ID] = f
	}
	return &Set{ordered: append([]Field(nil), fields...), byID: byID}, nil
}

// Fields returns the fields in definition order.
func (s *Set) Fields() []Field { return s.ordered }

// Get looks up a field by id.
func (s *Set) Get(id string) (Field, bool) {
	f, ok := s.byID[id]
	return f, ok
}

// Validate checks row (a sparse map of fieldID -> value) against the
// compiled field set. Only keys present in row are checked against type/
// nullability/options; missing keys are not reported here (callers combine
// this with Defaults for "no entry at all" handling per spec.md §4.4).
// Unknown keys in row (not defined on the Set) are reported as issues too,
// since a row reconstructed from cells may contain stale/foreign fields.
func (s *Set) Validate(row map[string]any) []epierr.ValidationIssue {
	var issues []epierr.ValidationIssue
	for key, val := range row {
		f, ok := s.byID[key]
		if !ok {
			issues = append(issues, epierr.ValidationIssue{Path: "/" + key, Message: "unknown field"})
			continue
		}
		if val == nil {
			if !f.Nullable {
				issues = append(issues, epierr.ValidationIssue{Path: "/" + key, Message: "value is null but field is not nullable"})
			}
			continue
		}
		if msg, ok := kindMismatch(f, val); !ok {
			issues = append(issues, epierr.ValidationIssue{Path: "/" + key, Message: msg})
		}
	}
	return issues
}

func kindMismatch(f Field, val any) (string, bool) {
	switch f.Kind {
	case KindID, KindText:
		if _, ok := val.(string); !ok {
			return "expected string", false
		}
	case KindInteger:
		switch val.(type) {
		case int, int32, int64:
		default:
			return "expected integer", false
		}
	case KindReal:
		switch val.(type) {
		case float32, float64, int, int64:
		default:
			return "expected number", false
		}
	case KindBoolean:
		if _, ok := val.(bool); !ok {
			return "expected boolean", false
		}
	case KindDate:
		switch val.(type) {
		case time.Time, string, int64:
		default:
			return "expected date", false
		}
	case KindSelect:
		s, ok := val.(string)
		if !ok {
			return "expected string", false
		}
		if !contains(f.Options, s) {
			return fmt.Sprintf("value %q is not one of the declared options", s), false
		}
	case KindTags:
		arr, ok := val.([]string)
		if !ok {
			return "expected []string", false
		}
		if len(f.Options) > 0 {
			for _, t := range arr {
				if !contains(f.Options, t) {
					return fmt.Sprintf("tag %q is not one of the declared options", t), false
				}
			}
		}
	case KindJSON:
		obj, ok := val.(map[string]any)
		if !ok {
			return "expected object", false
		}
		if f.Schema != nil {
			for _, req := range f.Schema.Required {
				if _, ok := obj[req]; !ok {
					return fmt.Sprintf("missing required key %q", req), false
				}
			}
		}
	}
	return "", true
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
