// Package table implements C3: a typed, cell-addressed row store on top of
// one pkg/lww.Log per table, keyed via pkg/cellkey. This is the component
// spec.md calls out as load-bearing: decomposing rows into independently
// mergeable cells is what lets concurrent field edits survive merge without
// loss (spec.md §8.2 scenario S1).
//
// Grounded on the teacher's pkg/storage/table.go (TableMetaData/Index
// registry) for the definition/registry shape, and transaction_write.go's
// "accumulate a write-set, apply as one transaction" pattern for
// UpsertMany/UpdateMany/DeleteMany.
package table

import (
	"fmt"

	"github.com/Leftium/epicenter/pkg/cellkey"
	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/epierr"
	"github.com/Leftium/epicenter/pkg/field"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/lww"
)

// Definition describes a table (spec.md §3).
type Definition struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Fields      []field.Field
}

// Row is a reconstructed record: fieldID -> value, including the id field.
type Row map[string]any

// Status tags a single-row read/write result (spec.md §4.3, §7 — data-path
// outcomes are values, never errors).
type Status string

const (
	StatusValid            Status = "valid"
	StatusInvalid          Status = "invalid"
	StatusNotFound         Status = "not_found"
	StatusNotFoundLocally  Status = "not_found_locally"
	StatusDeleted          Status = "deleted"
	StatusAllApplied       Status = "all_applied"
	StatusPartiallyApplied Status = "partially_applied"
	StatusNoneApplied      Status = "none_applied"
)

// GetResult is table.Get's tagged-union return value.
type GetResult struct {
	Status Status
	ID     string
	Row    Row
	Errors []epierr.ValidationIssue
}

// WriteResult is table.Delete/table.Update's tagged-union return value.
type WriteResult struct {
	Status Status
}

// BatchResult is table.UpdateMany/DeleteMany's aggregate return value.
type BatchResult struct {
	Status         Status
	Applied        []string
	NotFoundLocally []string
}

// ChangeSet is what Table.Observe delivers: the set of rows that changed in
// one transaction (spec.md §4.3: "the callback is told which rows changed,
// not what happened").
type ChangeSet map[string]struct{}

// Table is one table's engine: one Log, one compiled field Set, and the id
// field designating which declared field represents the row id itself
// (spec.md §3's `id` field kind).
type Table struct {
	def     Definition
	fields  *field.Set
	idField string
	log     *lww.Log

	obsMu     int
	observers map[int]func(ChangeSet)
	nextObsID int
}

// New compiles def's fields and attaches a Log to the "table:<id>" sequence
// of doc. def must declare exactly one field of kind field.KindID.
func New(doc *crdt.Doc, clock *hlc.Source, def Definition) (*Table, error) {
	fs, err := field.Compile(def.Fields, true)
	if err != nil {
		return nil, fmt.Errorf("table %q: %w", def.ID, err)
	}
	idField := ""
	for _, f := range def.Fields {
		if f.Kind == field.KindID {
			if idField != "" {
				return nil, fmt.Errorf("table %q: more than one id field declared", def.ID)
			}
			idField = f.ID
		}
	}
	if idField == "" {
		return nil, fmt.Errorf("table %q: no field of kind %q declared", def.ID, field.KindID)
	}

	t := &Table{
		def:       def,
		fields:    fs,
		idField:   idField,
		log:       lww.Open(doc, "table:"+def.ID, clock),
		observers: make(map[int]func(ChangeSet)),
	}
	t.log.Observe(t.onLogChange)
	return t, nil
}

// Definition returns the table's compiled definition.
func (t *Table) Definition() Definition { return t.def }

// Log returns the lww.Log backing this table, for extensions
// (extensions/persistence, extensions/sync) that operate on logs directly
// rather than through the table/kv abstractions.
func (t *Table) Log() *lww.Log { return t.log }

func (t *Table) onLogChange(changes map[string]lww.Change) {
	rows := make(ChangeSet)
	for key := range changes {
		parsed, err := cellkey.Parse(key)
		if err != nil {
			continue
		}
		rows[string(parsed.Row)] = struct{}{}
	}
	if len(rows) == 0 {
		return
	}
	for _, o := range t.snapshotObservers() {
		o(rows)
	}
}

func (t *Table) snapshotObservers() []func(ChangeSet) {
	out := make([]func(ChangeSet), 0, len(t.observers))
	for _, o := range t.observers {
		out = append(out, o)
	}
	return out
}

// Observe subscribes cb to row-level changes (spec.md §4.3). Returns an
// unsubscribe function.
func (t *Table) Observe(cb func(ChangeSet)) func() {
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = cb
	return func() { delete(t.observers, id) }
}

func rowIDOf(row Row, idField string) (string, error) {
	v, ok := row[idField]
	if !ok {
		return "", fmt.Errorf("table: row is missing id field %q", idField)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("table: id field %q must be a string, got %T", idField, v)
	}
	return s, nil
}

// Upsert writes every non-id field of row as a cell, in one transaction.
// Writes are never validated (spec.md §4.3).
func (t *Table) Upsert(row Row) error {
	return t.UpsertMany([]Row{row})
}

// UpsertMany writes every row in one transaction (spec.md §4.3 "Batching").
func (t *Table) UpsertMany(rows []Row) error {
	var firstErr error
	t.log.Transact(func(tx *lww.Txn) {
		for _, row := range rows {
			rowID, err := rowIDOf(row, t.idField)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			rid, err := cellkey.NewRowID(rowID)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			for fieldID, val := range row {
				if fieldID == t.idField {
					continue
				}
				fid, err := cellkey.NewFieldID(fieldID)
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if err := tx.Set(cellkey.Key(rid, fid), val); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		}
	})
	return firstErr
}

// existsLocally reports whether any cell with rowId's prefix is live
// (spec.md §3 "Row existence = cell existence").
func (t *Table) existsLocally(rowID string) bool {
	prefix := cellkey.RowPrefix(cellkey.RowID(rowID))
	for key := range t.log.Entries() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// Update writes the provided fields of a partial row, merging with whatever
// other peers have concurrently written to other fields of the same row
// (cell-level LWW). Returns not_found_locally and writes nothing if no cell
// with this rowId exists locally yet (spec.md §4.3, §8.1 invariant #8).
func (t *Table) Update(row Row) WriteResult {
	res := t.UpdateMany([]Row{row})
	if len(res.NotFoundLocally) > 0 {
		return WriteResult{Status: StatusNotFoundLocally}
	}
	return WriteResult{Status: StatusAllApplied}
}

// UpdateMany applies partial updates to several rows in one transaction,
// skipping (and reporting) rows with no local cells.
func (t *Table) UpdateMany(rows []Row) BatchResult {
	var applied, notFound []string
	t.log.Transact(func(tx *lww.Txn) {
		for _, row := range rows {
			rowID, err := rowIDOf(row, t.idField)
			if err != nil {
				continue
			}
			if !t.existsLocally(rowID) {
				notFound = append(notFound, rowID)
				continue
			}
			rid, _ := cellkey.NewRowID(rowID)
			for fieldID, val := range row {
				if fieldID == t.idField {
					continue
				}
				fid, err := cellkey.NewFieldID(fieldID)
				if err != nil {
					continue
				}
				_ = tx.Set(cellkey.Key(rid, fid), val)
			}
			applied = append(applied, rowID)
		}
	})

	status := StatusAllApplied
	switch {
	case len(applied) == 0:
		status = StatusNoneApplied
	case len(notFound) > 0:
		status = StatusPartiallyApplied
	}
	return BatchResult{Status: status, Applied: applied, NotFoundLocally: notFound}
}

// Get reconstructs a row by scanning the log for the rowId: prefix
// (spec.md §4.3).
func (t *Table) Get(id string) GetResult {
	prefix := cellkey.RowPrefix(cellkey.RowID(id))
	row := Row{}
	found := false
	for key, entry := range t.log.Entries() {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		found = true
		parsed, err := cellkey.Parse(key)
		if err != nil {
			continue
		}
		row[string(parsed.Field)] = entry.Val
	}
	if !found {
		return GetResult{Status: StatusNotFound, ID: id}
	}
	row[t.idField] = id
	if issues := t.fields.Validate(row); len(issues) > 0 {
		return GetResult{Status: StatusInvalid, ID: id, Row: row, Errors: issues}
	}
	return GetResult{Status: StatusValid, ID: id, Row: row}
}

// Has reports row existence without reconstructing it.
func (t *Table) Has(id string) bool { return t.existsLocally(id) }

// rowIDs returns every distinct row id with at least one live cell.
func (t *Table) rowIDs() []string {
	seen := make(map[string]struct{})
	for key := range t.log.Entries() {
		parsed, err := cellkey.Parse(key)
		if err != nil {
			continue
		}
		seen[string(parsed.Row)] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids
}

// GetAll returns every row, valid or invalid.
func (t *Table) GetAll() []GetResult {
	ids := t.rowIDs()
	out := make([]GetResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Get(id))
	}
	return out
}

// GetAllValid returns only rows that pass validation.
func (t *Table) GetAllValid() []Row {
	var out []Row
	for _, r := range t.GetAll() {
		if r.Status == StatusValid {
			out = append(out, r.Row)
		}
	}
	return out
}

// GetAllInvalid returns only rows that fail validation.
func (t *Table) GetAllInvalid() []GetResult {
	var out []GetResult
	for _, r := range t.GetAll() {
		if r.Status == StatusInvalid {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of distinct rows with at least one live cell.
func (t *Table) Count() int { return len(t.rowIDs()) }

// Filter returns every valid row matching pred.
func (t *Table) Filter(pred func(Row) bool) []Row {
	var out []Row
	for _, row := range t.GetAllValid() {
		if pred(row) {
			out = append(out, row)
		}
	}
	return out
}

// Find returns the first valid row matching pred, if any.
func (t *Table) Find(pred func(Row) bool) (Row, bool) {
	for _, row := range t.GetAllValid() {
		if pred(row) {
			return row, true
		}
	}
	return nil, false
}

// Delete removes every cell with id's rowId prefix in one transaction.
func (t *Table) Delete(id string) WriteResult {
	res := t.DeleteMany([]string{id})
	if len(res.NotFoundLocally) > 0 {
		return WriteResult{Status: StatusNotFoundLocally}
	}
	return WriteResult{Status: StatusDeleted}
}

// DeleteMany removes several rows' cells in one transaction.
func (t *Table) DeleteMany(ids []string) BatchResult {
	var applied, notFound []string
	t.log.Transact(func(tx *lww.Txn) {
		for _, id := range ids {
			prefix := cellkey.RowPrefix(cellkey.RowID(id))
			var keys []string
			for key := range t.log.Entries() {
				if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
					keys = append(keys, key)
				}
			}
			if len(keys) == 0 {
				notFound = append(notFound, id)
				continue
			}
			for _, k := range keys {
				tx.Delete(k)
			}
			applied = append(applied, id)
		}
	})
	status := StatusAllApplied
	switch {
	case len(applied) == 0:
		status = StatusNoneApplied
	case len(notFound) > 0:
		status = StatusPartiallyApplied
	}
	return BatchResult{Status: status, Applied: applied, NotFoundLocally: notFound}
}

// Clear empties the table. The table itself remains usable afterwards
// (spec.md §4.3 "Storage permanence").
func (t *Table) Clear() { t.log.Clear() }

// Compact drops superseded tombstones in the backing log (see
// lww.Log.Compact).
func (t *Table) Compact() int { return t.log.Compact() }
