// Package vfs implements C8: a virtual POSIX filesystem over pkg/filetree
// (names/hierarchy) and pkg/content (per-file bodies). Path resolution is a
// pure function of the file tree's current state; every operation here is
// local-first — no network calls, no OS filesystem calls.
//
// Grounded on the teacher's pkg/query package for the "resolve then act"
// shape (Scan resolves an index range, then the caller acts on what it
// finds) and on launix-de-memcp's use of golang.org/x/text/collate for
// locale-aware ordering, applied here to directory listings instead of SQL
// result sets.
package vfs

import (
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/Leftium/epicenter/pkg/content"
	"github.com/Leftium/epicenter/pkg/epierr"
	"github.com/Leftium/epicenter/pkg/filetree"
	"github.com/Leftium/epicenter/pkg/hlc"
)

// FS is the virtual filesystem: a file tree plus the content store backing
// its file (not directory) nodes.
type FS struct {
	tree    *filetree.Tree
	content *content.Store
	clock   *hlc.Source
	collate *collate.Collator
}

// New builds a virtual filesystem over tree and content, using loc for
// directory-listing order (language.Und uses the root collation order).
func New(tree *filetree.Tree, store *content.Store, clock *hlc.Source, loc language.Tag) *FS {
	return &FS{tree: tree, content: store, clock: clock, collate: collate.New(loc)}
}

// DirEntry is one ReadDir result.
type DirEntry struct {
	Name  string
	ID    string
	IsDir bool
}

// Stat describes a node (spec.md §4.2's stat shape).
type Stat struct {
	ID        string
	IsDir     bool
	Size      int64
	CreatedAt time.Time
	MTime     time.Time
}

func toTime(millis int64) time.Time { return time.UnixMilli(millis) }

// Realpath resolves p to its node id.
func (f *FS) Realpath(p string) (string, error) { return f.tree.ResolveID(p) }

// Exists reports whether p names a live node.
func (f *FS) Exists(p string) bool {
	id, err := f.tree.ResolveID(p)
	return err == nil && f.tree.Exists(id)
}

// Stat returns p's metadata.
func (f *FS) Stat(p string) (Stat, error) {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		return Stat{}, err
	}
	n, ok := f.tree.GetRow(id)
	if !ok || n.DeletedAt != 0 {
		return Stat{}, epierr.NewFSError(epierr.ENOENT, p)
	}
	st := Stat{ID: id, IsDir: n.Kind == filetree.KindDir, CreatedAt: toTime(n.CreatedAt), MTime: toTime(n.MTime)}
	if !st.IsDir {
		if doc, ok := f.content.Get(id); ok {
			st.Size = int64(len(doc.TextBody("body").String()))
			if raw, ok := doc.Map("content").Get("bytes"); ok {
				st.Size = int64(len(raw))
			}
		}
	}
	return st, nil
}

// Mkdir creates a directory at p. Intermediate components must already
// exist (no -p semantics; spec.md names this as explicit scope).
func (f *FS) Mkdir(p string) (string, error) {
	parentPath, name := splitLast(p)
	parentID, err := f.tree.ResolveID(parentPath)
	if err != nil {
		return "", err
	}
	if err := f.tree.AssertDirectory(parentID); err != nil {
		return "", err
	}
	if childExists(f, parentID, name) {
		return "", epierr.NewFSError(epierr.EEXIST, p)
	}
	return f.tree.Create(f.clock, parentID, name, filetree.KindDir)
}

// childExists reports whether parentID already has a live child literally
// named name (pre-disambiguation — this is the create-time uniqueness
// check, distinct from ActiveChildren's display-time disambiguation).
func childExists(f *FS, parentID, name string) bool {
	for _, e := range f.tree.ActiveChildren(parentID) {
		if e.Name == name {
			return true
		}
	}
	return false
}

func splitLast(p string) (dir, name string) {
	segs, err := filetree.ParsePath(p)
	if err != nil || len(segs) == 0 {
		return "/", ""
	}
	name = segs[len(segs)-1]
	dir = "/"
	for _, s := range segs[:len(segs)-1] {
		dir += s + "/"
	}
	return dir, name
}

// Rm removes p. If p is a non-empty directory, recursive must be true.
func (f *FS) Rm(p string, recursive bool) error {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		return err
	}
	n, ok := f.tree.GetRow(id)
	if !ok {
		return epierr.NewFSError(epierr.ENOENT, p)
	}
	if n.Kind == filetree.KindDir {
		children := f.tree.ActiveChildren(id)
		if len(children) > 0 && !recursive {
			return epierr.NewFSError(epierr.ENOTEMPTY, p)
		}
		for _, d := range f.tree.DescendantIDs(id) {
			if dn, ok := f.tree.GetRow(d); ok && dn.Kind == filetree.KindFile {
				f.content.Destroy(d)
			}
			_ = f.tree.SoftDelete(f.clock, d)
		}
	} else {
		f.content.Destroy(id)
	}
	return f.tree.SoftDelete(f.clock, id)
}

// Mv moves/renames the node at src to dst.
func (f *FS) Mv(src, dst string) error {
	id, err := f.tree.ResolveID(src)
	if err != nil {
		return err
	}
	parentPath, name := splitLast(dst)
	parentID, err := f.tree.ResolveID(parentPath)
	if err != nil {
		return err
	}
	if childExists(f, parentID, name) {
		return epierr.NewFSError(epierr.EEXIST, dst)
	}
	return f.tree.Move(f.clock, id, parentID, name)
}

// ReadDir lists p's children, sorted by the filesystem's configured
// collation order.
func (f *FS) ReadDir(p string) ([]DirEntry, error) {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		return nil, err
	}
	if err := f.tree.AssertDirectory(id); err != nil {
		return nil, err
	}
	entries := f.tree.ActiveChildren(id)
	out := make([]DirEntry, len(entries))
	for i, e := range entries {
		out[i] = DirEntry{Name: e.DisplayName, ID: e.ID, IsDir: e.Kind == filetree.KindDir}
	}
	sortByCollation(out, f.collate)
	return out, nil
}

func sortByCollation(entries []DirEntry, c *collate.Collator) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && c.CompareString(entries[j-1].Name, entries[j].Name) > 0 {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func (f *FS) resolveFile(p string) (string, error) {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		return "", err
	}
	n, ok := f.tree.GetRow(id)
	if !ok || n.DeletedAt != 0 {
		return "", epierr.NewFSError(epierr.ENOENT, p)
	}
	if n.Kind == filetree.KindDir {
		return "", epierr.NewFSError(epierr.EISDIR, p)
	}
	return id, nil
}

// ReadFile returns p's text content.
func (f *FS) ReadFile(p string) (string, error) {
	id, err := f.resolveFile(p)
	if err != nil {
		return "", err
	}
	doc := f.content.Ensure(id)
	return doc.TextBody("body").String(), nil
}

// WriteFile creates p (if missing) or replaces its whole content.
func (f *FS) WriteFile(p string, data string) (string, error) {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		if fe, ok := err.(*epierr.FSError); !ok || fe.Code != epierr.ENOENT {
			return "", err
		}
		parentPath, name := splitLast(p)
		parentID, perr := f.tree.ResolveID(parentPath)
		if perr != nil {
			return "", perr
		}
		id, err = f.tree.Create(f.clock, parentID, name, filetree.KindFile)
		if err != nil {
			return "", err
		}
	} else if n, ok := f.tree.GetRow(id); ok && n.Kind == filetree.KindDir {
		return "", epierr.NewFSError(epierr.EISDIR, p)
	}
	f.content.Ensure(id).TextBody("body").Replace(data)
	_ = f.tree.Touch(f.clock, id)
	return id, nil
}

// AppendFile appends data to p's existing content (creating p if absent).
func (f *FS) AppendFile(p string, data string) (string, error) {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		return f.WriteFile(p, data)
	}
	if n, ok := f.tree.GetRow(id); ok && n.Kind == filetree.KindDir {
		return "", epierr.NewFSError(epierr.EISDIR, p)
	}
	f.content.Ensure(id).TextBody("body").Append(data)
	_ = f.tree.Touch(f.clock, id)
	return id, nil
}

// Cp copies src's content (and, recursively, a directory's children) to
// dst as new nodes.
func (f *FS) Cp(src, dst string) error {
	srcID, err := f.tree.ResolveID(src)
	if err != nil {
		return err
	}
	n, ok := f.tree.GetRow(srcID)
	if !ok {
		return epierr.NewFSError(epierr.ENOENT, src)
	}
	if n.Kind == filetree.KindFile {
		body, _ := f.ReadFile(src)
		_, err := f.WriteFile(dst, body)
		return err
	}
	if _, err := f.Mkdir(dst); err != nil {
		return err
	}
	for _, c := range f.tree.ActiveChildren(srcID) {
		if err := f.Cp(src+"/"+c.DisplayName, dst+"/"+c.DisplayName); err != nil {
			return err
		}
	}
	return nil
}

// Chmod is a no-op: epicenter does not model POSIX permission bits, but
// accepts the call for API compatibility with tools that always call it.
func (f *FS) Chmod(p string, _ uint32) error {
	_, err := f.tree.ResolveID(p)
	return err
}

// Utimes sets p's modification time (creation time is immutable).
func (f *FS) Utimes(p string, mtime time.Time) error {
	id, err := f.tree.ResolveID(p)
	if err != nil {
		return err
	}
	return f.tree.SetMTime(id, mtime.UnixMilli())
}

// Symlink and Link are out of scope for a CRDT-addressed tree (spec.md
// Non-goals): both report ENOSYS.
func (f *FS) Symlink(_, target string) error { return epierr.NewFSError(epierr.ENOSYS, target) }
func (f *FS) Link(_, target string) error    { return epierr.NewFSError(epierr.ENOSYS, target) }
