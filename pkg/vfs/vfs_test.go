package vfs_test

import (
	"testing"

	"golang.org/x/text/language"

	"github.com/Leftium/epicenter/pkg/content"
	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/epierr"
	"github.com/Leftium/epicenter/pkg/filetree"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/vfs"
)

func newFS(t *testing.T) *vfs.FS {
	t.Helper()
	doc := crdt.NewDoc("doc-1", true)
	clock := hlc.NewSource("node-a")
	tree, err := filetree.Open(doc, clock)
	if err != nil {
		t.Fatalf("filetree.Open failed: %v", err)
	}
	store := content.New(true)
	return vfs.New(tree, store, clock, language.English)
}

func TestWriteThenReadFile(t *testing.T) {
	fs := newFS(t)
	if _, err := fs.WriteFile("/hello.txt", "hi there"); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	got, err := fs.ReadFile("/hello.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got != "hi there" {
		t.Fatalf("expected 'hi there', got %q", got)
	}
}

func TestAppendFile_CreatesWhenAbsent(t *testing.T) {
	fs := newFS(t)
	if _, err := fs.AppendFile("/log.txt", "line1"); err != nil {
		t.Fatalf("AppendFile failed: %v", err)
	}
	if _, err := fs.AppendFile("/log.txt", "line2"); err != nil {
		t.Fatalf("AppendFile failed: %v", err)
	}
	got, _ := fs.ReadFile("/log.txt")
	if got != "line1line2" {
		t.Fatalf("expected concatenated content, got %q", got)
	}
}

func TestMkdir_RejectsDuplicateName(t *testing.T) {
	fs := newFS(t)
	if _, err := fs.Mkdir("/docs"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, err := fs.Mkdir("/docs"); err == nil {
		t.Fatalf("expected EEXIST creating a duplicate directory")
	}
}

func TestRm_NonEmptyRequiresRecursive(t *testing.T) {
	fs := newFS(t)
	_, _ = fs.Mkdir("/docs")
	_, _ = fs.WriteFile("/docs/a.txt", "x")

	if err := fs.Rm("/docs", false); err == nil {
		t.Fatalf("expected ENOTEMPTY removing a non-empty directory without recursive")
	}
	if err := fs.Rm("/docs", true); err != nil {
		t.Fatalf("Rm(recursive) failed: %v", err)
	}
	if fs.Exists("/docs") {
		t.Fatalf("expected /docs to be gone after recursive remove")
	}
}

func TestMv_RenamesFile(t *testing.T) {
	fs := newFS(t)
	_, _ = fs.WriteFile("/a.txt", "content")
	if err := fs.Mv("/a.txt", "/b.txt"); err != nil {
		t.Fatalf("Mv failed: %v", err)
	}
	if fs.Exists("/a.txt") {
		t.Fatalf("expected /a.txt to no longer exist after move")
	}
	got, err := fs.ReadFile("/b.txt")
	if err != nil || got != "content" {
		t.Fatalf("expected /b.txt to carry the moved content, got %q err=%v", got, err)
	}
}

func TestReadDir_SortedByCollation(t *testing.T) {
	fs := newFS(t)
	_, _ = fs.WriteFile("/banana.txt", "")
	_, _ = fs.WriteFile("/apple.txt", "")

	entries, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "apple.txt" || entries[1].Name != "banana.txt" {
		t.Fatalf("expected collated alphabetical order, got %v", entries)
	}
}

func TestReadFile_MissingReportsENOENT(t *testing.T) {
	fs := newFS(t)
	_, err := fs.ReadFile("/missing.txt")
	fe, ok := err.(*epierr.FSError)
	if !ok || fe.Code != epierr.ENOENT {
		t.Fatalf("expected an ENOENT FSError, got %v", err)
	}
}

func TestReadFile_RejectsDirectory(t *testing.T) {
	fs := newFS(t)
	_, _ = fs.Mkdir("/docs")
	_, err := fs.ReadFile("/docs")
	fe, ok := err.(*epierr.FSError)
	if !ok || fe.Code != epierr.EISDIR {
		t.Fatalf("expected an EISDIR FSError, got %v", err)
	}
}

func TestCp_CopiesDirectoryRecursively(t *testing.T) {
	fs := newFS(t)
	_, _ = fs.Mkdir("/src")
	_, _ = fs.WriteFile("/src/a.txt", "payload")

	if err := fs.Cp("/src", "/dst"); err != nil {
		t.Fatalf("Cp failed: %v", err)
	}
	got, err := fs.ReadFile("/dst/a.txt")
	if err != nil || got != "payload" {
		t.Fatalf("expected copied file content, got %q err=%v", got, err)
	}
	if orig, _ := fs.ReadFile("/src/a.txt"); orig != "payload" {
		t.Fatalf("expected original to be unaffected by the copy")
	}
}

func TestSymlinkAndLink_ReportENOSYS(t *testing.T) {
	fs := newFS(t)
	if err := fs.Symlink("/a", "/b"); err == nil {
		t.Fatalf("expected Symlink to report ENOSYS")
	}
	if err := fs.Link("/a", "/b"); err == nil {
		t.Fatalf("expected Link to report ENOSYS")
	}
}
