// Package epierr is the shared error taxonomy (C10), extending the
// teacher's pkg/errors one-struct-per-failure-kind style with the
// categories spec.md §7 requires: POSIX filesystem codes, validation
// records, and the "programmer error" class (malformed ids, missing table)
// that is fatal rather than a returned value.
package epierr

import "fmt"

// FSCode is a POSIX-like error code returned by pkg/vfs operations.
type FSCode string

const (
	ENOENT    FSCode = "ENOENT"
	EEXIST    FSCode = "EEXIST"
	EISDIR    FSCode = "EISDIR"
	ENOTDIR   FSCode = "ENOTDIR"
	ENOTEMPTY FSCode = "ENOTEMPTY"
	ENOSYS    FSCode = "ENOSYS"
)

// FSError carries a POSIX code and the path it applies to (spec.md §7,
// §4.10).
type FSError struct {
	Code FSCode
	Path string
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

// NewFSError constructs an *FSError.
func NewFSError(code FSCode, path string) *FSError {
	return &FSError{Code: code, Path: path}
}

// IsCode reports whether err is an *FSError carrying code.
func IsCode(err error, code FSCode) bool {
	fe, ok := err.(*FSError)
	return ok && fe.Code == code
}

// ValidationIssue is one field-level validation failure, the {path,
// message} record shape spec.md §7 and §4.3 describe for 'invalid' reads.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string { return fmt.Sprintf("%s: %s", v.Path, v.Message) }

// TableNotFoundError: a programmer error — requesting an undefined table
// id. Mirrors the teacher's errors.TableNotFoundError, fatal (thrown/
// panicked at the call site), not a tagged-union result.
type TableNotFoundError struct {
	TableID string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q is not defined in this workspace", e.TableID)
}

// KeyFormatError: a programmer error — an id containing ':' or empty.
// Mirrors pkg/cellkey's validation failures surfaced at the table/KV layer.
type KeyFormatError struct {
	Value string
	Why   string
}

func (e *KeyFormatError) Error() string {
	return fmt.Sprintf("invalid id %q: %s", e.Value, e.Why)
}

// UnknownFieldError: a programmer error — a field id not present in the
// table/KV definition.
type UnknownFieldError struct {
	FieldID string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("field %q is not defined", e.FieldID)
}

// ExtensionError wraps a failure from a workspace extension's whenReady or
// destroy, tagging which extension key produced it (spec.md §7: "Extension
// lifecycle failure").
type ExtensionError struct {
	Key string
	Err error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("extension %q: %v", e.Key, e.Err)
}

func (e *ExtensionError) Unwrap() error { return e.Err }
