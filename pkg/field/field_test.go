package field_test

import (
	"testing"

	"github.com/Leftium/epicenter/pkg/field"
)

func TestCompile_RejectsDuplicateIDs(t *testing.T) {
	_, err := field.Compile([]field.Field{
		{ID: "a", Kind: field.KindText},
		{ID: "a", Kind: field.KindText},
	}, true)
	if err == nil {
		t.Fatalf("expected an error for duplicate field ids")
	}
}

func TestCompile_RejectsIDKindWhenDisallowed(t *testing.T) {
	_, err := field.Compile([]field.Field{{ID: "id", Kind: field.KindID}}, false)
	if err == nil {
		t.Fatalf("expected an error for a KV field set declaring kind id")
	}
}

func TestCompile_RejectsSelectWithoutOptions(t *testing.T) {
	_, err := field.Compile([]field.Field{{ID: "status", Kind: field.KindSelect}}, true)
	if err == nil {
		t.Fatalf("expected an error for a select field with no options")
	}
}

func TestSet_ValidateReportsUnknownField(t *testing.T) {
	set, err := field.Compile([]field.Field{{ID: "title", Kind: field.KindText}}, true)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	issues := set.Validate(map[string]any{"unknown": "x"})
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue for an unknown field, got %d", len(issues))
	}
}

func TestSet_ValidateRejectsNullOnNonNullable(t *testing.T) {
	set, _ := field.Compile([]field.Field{{ID: "title", Kind: field.KindText}}, true)
	issues := set.Validate(map[string]any{"title": nil})
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue for a null value on a non-nullable field, got %d", len(issues))
	}
}

func TestSet_ValidateAllowsNullOnNullable(t *testing.T) {
	set, _ := field.Compile([]field.Field{{ID: "body", Kind: field.KindText, Nullable: true}}, true)
	issues := set.Validate(map[string]any{"body": nil})
	if len(issues) != 0 {
		t.Fatalf("expected no issues for a null value on a nullable field, got %v", issues)
	}
}

func TestSet_ValidateChecksSelectOptions(t *testing.T) {
	set, _ := field.Compile([]field.Field{{ID: "status", Kind: field.KindSelect, Options: []string{"open", "closed"}}}, true)
	if issues := set.Validate(map[string]any{"status": "open"}); len(issues) != 0 {
		t.Fatalf("expected 'open' to be valid, got %v", issues)
	}
	if issues := set.Validate(map[string]any{"status": "archived"}); len(issues) != 1 {
		t.Fatalf("expected 'archived' to be rejected, got %v", issues)
	}
}

func TestSet_GetReturnsField(t *testing.T) {
	set, _ := field.Compile([]field.Field{{ID: "title", Kind: field.KindText}}, true)
	f, ok := set.Get("title")
	if !ok || f.Kind != field.KindText {
		t.Fatalf("expected to find field 'title' with kind text")
	}
	if _, ok := set.Get("missing"); ok {
		t.Fatalf("expected Get to report false for an undeclared field")
	}
}
