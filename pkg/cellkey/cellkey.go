// Package cellkey implements C2: branded rowId/fieldId and the
// "rowId:fieldId" composite key scheme spec.md §4.2 describes. The ":"
// separator is an architectural contract — any id containing it is rejected
// at construction so parseCellKey stays unambiguous.
//
// Grounded on the teacher's pkg/types branding style: small value types with
// a validating constructor, used throughout pkg/storage instead of bare
// strings.
package cellkey

import (
	"fmt"
	"strings"
)

// RowID is a validated row identifier: non-empty, no ":".
type RowID string

// FieldID is a validated column/field identifier: non-empty, no ":".
type FieldID string

// NewRowID validates and brands s as a RowID.
func NewRowID(s string) (RowID, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	return RowID(s), nil
}

// NewFieldID validates and brands s as a FieldID.
func NewFieldID(s string) (FieldID, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	return FieldID(s), nil
}

func validate(s string) error {
	if s == "" {
		return fmt.Errorf("cellkey: id must not be empty")
	}
	if strings.Contains(s, ":") {
		return fmt.Errorf("cellkey: id %q must not contain ':'", s)
	}
	return nil
}

// Key builds the composite "rowId:fieldId" cell key.
func Key(row RowID, field FieldID) string {
	return string(row) + ":" + string(field)
}

// RowPrefix builds the "rowId:" prefix used for prefix scans over a row's
// cells.
func RowPrefix(row RowID) string {
	return string(row) + ":"
}

// HasRowPrefix reports whether key belongs to row (i.e. starts with its
// RowPrefix).
func HasRowPrefix(key string, row RowID) bool {
	return strings.HasPrefix(key, RowPrefix(row))
}

// Parsed is the decomposition of a cell key.
type Parsed struct {
	Row   RowID
	Field FieldID
}

// Parse splits a "rowId:fieldId" key. It rejects keys that do not contain
// exactly one ":", matching spec.md §4.2.
func Parse(key string) (Parsed, error) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return Parsed{}, fmt.Errorf("cellkey: %q has no ':' separator", key)
	}
	if strings.IndexByte(key[idx+1:], ':') >= 0 {
		return Parsed{}, fmt.Errorf("cellkey: %q contains more than one ':' separator", key)
	}
	row, field := key[:idx], key[idx+1:]
	if row == "" || field == "" {
		return Parsed{}, fmt.Errorf("cellkey: %q has an empty rowId or fieldId", key)
	}
	return Parsed{Row: RowID(row), Field: FieldID(field)}, nil
}
