package kv_test

import (
	"testing"

	"github.com/Leftium/epicenter/pkg/crdt"
	"github.com/Leftium/epicenter/pkg/field"
	"github.com/Leftium/epicenter/pkg/hlc"
	"github.com/Leftium/epicenter/pkg/kv"
)

func newStore(t *testing.T) *kv.Store {
	t.Helper()
	doc := crdt.NewDoc("doc-1", true)
	clock := hlc.NewSource("node-a")
	store, err := kv.New(doc, clock, kv.Definition{
		ID: "settings",
		Fields: []field.Field{
			{ID: "theme", Kind: field.KindText, HasDefault: true, Default: "light"},
			{ID: "tabSize", Kind: field.KindInteger, HasDefault: true, Default: int64(2)},
			{ID: "bio", Kind: field.KindText, Nullable: true},
			{ID: "handle", Kind: field.KindText},
		},
	})
	if err != nil {
		t.Fatalf("kv.New failed: %v", err)
	}
	return store
}

func TestGet_FallsBackToDefault(t *testing.T) {
	store := newStore(t)
	res, issues := store.Get("theme")
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if res.Exists {
		t.Fatalf("expected Exists=false before any write")
	}
	if res.Value != "light" {
		t.Fatalf("expected default value 'light', got %v", res.Value)
	}
	if res.Status != kv.StatusValid {
		t.Fatalf("expected status valid for a defaulted field, got %s", res.Status)
	}
}

func TestGet_NullableWithoutDefaultReturnsNull(t *testing.T) {
	store := newStore(t)
	res, issues := store.Get("bio")
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if res.Exists {
		t.Fatalf("expected Exists=false before any write")
	}
	if res.Value != nil {
		t.Fatalf("expected a nullable field with no entry to read as nil, got %v", res.Value)
	}
	if res.Status != kv.StatusValid {
		t.Fatalf("expected status valid for a nullable-no-default field with no entry, got %s", res.Status)
	}
}

func TestGet_NonNullableWithoutDefaultIsNotFound(t *testing.T) {
	store := newStore(t)
	res, issues := store.Get("handle")
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if res.Status != kv.StatusNotFound {
		t.Fatalf("expected status not_found for a non-nullable field with no entry and no default, got %s", res.Status)
	}
}

func TestSetThenGet(t *testing.T) {
	store := newStore(t)
	if err := store.Set("theme", "dark"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, _ := store.Get("theme")
	if !res.Exists || res.Value != "dark" {
		t.Fatalf("expected theme=dark, got %v (exists=%v)", res.Value, res.Exists)
	}
}

func TestReset_RevertsToDefault(t *testing.T) {
	store := newStore(t)
	_ = store.Set("theme", "dark")
	if !store.Reset("theme") {
		t.Fatalf("expected Reset to report true for an existing key")
	}
	res, _ := store.Get("theme")
	if res.Exists || res.Value != "light" {
		t.Fatalf("expected theme to fall back to default after Reset, got %v", res)
	}
}

func TestSet_UnknownFieldErrors(t *testing.T) {
	store := newStore(t)
	if err := store.Set("nope", "x"); err == nil {
		t.Fatalf("expected an error for an undeclared field")
	}
}

func TestToJSON(t *testing.T) {
	store := newStore(t)
	_ = store.Set("theme", "dark")
	out := store.ToJSON()
	if out["theme"] != "dark" {
		t.Fatalf("expected theme=dark in ToJSON output, got %v", out["theme"])
	}
	if out["tabSize"] != int64(2) {
		t.Fatalf("expected tabSize default 2 in ToJSON output, got %v", out["tabSize"])
	}
	if _, ok := out["handle"]; ok {
		t.Fatalf("expected a not_found field to be omitted from ToJSON, got %v", out["handle"])
	}
}

func TestObserveKey(t *testing.T) {
	store := newStore(t)
	var fired bool
	store.ObserveKey("theme", func() { fired = true })
	_ = store.Set("theme", "dark")
	if !fired {
		t.Fatalf("expected ObserveKey callback to fire on a matching change")
	}
}
