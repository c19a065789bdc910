// Package content implements C6: a process-wide store of per-file content
// documents, each file's body living in its own crdt.Doc so concurrent
// edits to two files never contend on one sequence, and a file's content
// can be garbage-collected independently of the file tree entry that names
// it (pkg/filetree).
//
// Grounded on the teacher's pkg/storage heap allocator: one independently
// addressable unit of storage per key (there: a heap record chain keyed by
// row id; here: a crdt.Doc keyed by file id), with explicit Ensure/Destroy
// lifecycle instead of GC-by-reachability.
package content

import (
	"sync"

	"github.com/Leftium/epicenter/pkg/crdt"
)

// Store owns every file's content document, keyed by file id (spec.md §6).
type Store struct {
	mu   sync.RWMutex
	docs map[string]*crdt.Doc
	gc   bool
}

// New returns an empty content store. gc is propagated to every document
// Ensure creates.
func New(gc bool) *Store {
	return &Store{docs: make(map[string]*crdt.Doc), gc: gc}
}

// Ensure returns fileId's content document, creating it on first use.
func (s *Store) Ensure(fileID string) *crdt.Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[fileID]; ok {
		return d
	}
	d := crdt.NewDoc(fileID, s.gc)
	s.docs[fileID] = d
	return d
}

// Get looks up fileId's content document without creating it.
func (s *Store) Get(fileID string) (*crdt.Doc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[fileID]
	return d, ok
}

// Destroy tears down and forgets fileId's content document, if any. Called
// by pkg/vfs.Rm when it soft-deletes a file (directly or as a descendant of
// a recursively removed directory).
func (s *Store) Destroy(fileID string) {
	s.mu.Lock()
	d, ok := s.docs[fileID]
	delete(s.docs, fileID)
	s.mu.Unlock()
	if ok {
		d.Destroy()
	}
}

// DestroyAll tears down every content document the store owns (workspace
// shutdown).
func (s *Store) DestroyAll() {
	s.mu.Lock()
	docs := s.docs
	s.docs = make(map[string]*crdt.Doc)
	s.mu.Unlock()
	for _, d := range docs {
		d.Destroy()
	}
}

// Len returns the number of content documents currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
