package sanitize

import (
	"reflect"
	"testing"
)

func TestRowsRedactsStringValues(t *testing.T) {
	t.Parallel()

	s, err := New([]Rule{
		{Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Replacement: "[REDACTED-SSN]"},
		{Pattern: `(?i)secret`, Replacement: "[REDACTED]"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows := []map[string]any{
		{"ssn": "123-45-6789", "note": "the Secret plan", "age": 42},
	}
	got := s.Rows(rows)

	want := []map[string]any{
		{"ssn": "[REDACTED-SSN]", "note": "the [REDACTED] plan", "age": 42},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rows = %v, want %v", got, want)
	}
}

func TestRowsWalksNestedValues(t *testing.T) {
	t.Parallel()

	s, err := New([]Rule{{Pattern: "password", Replacement: "***"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows := []map[string]any{
		{
			"doc":  map[string]any{"field": "the password is here", "n": 1},
			"list": []any{"password one", map[string]any{"inner": "password two"}},
		},
	}
	s.Rows(rows)

	doc := rows[0]["doc"].(map[string]any)
	if doc["field"] != "the *** is here" {
		t.Errorf("nested map not sanitized: %v", doc["field"])
	}
	list := rows[0]["list"].([]any)
	if list[0] != "*** one" {
		t.Errorf("array element not sanitized: %v", list[0])
	}
	if inner := list[1].(map[string]any)["inner"]; inner != "*** two" {
		t.Errorf("map inside array not sanitized: %v", inner)
	}
}

func TestInactiveWithoutRules(t *testing.T) {
	t.Parallel()

	s, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Active() {
		t.Error("Active with no rules")
	}
	rows := []map[string]any{{"v": "untouched"}}
	if got := s.Rows(rows); got[0]["v"] != "untouched" {
		t.Errorf("Rows changed values with no rules: %v", got)
	}
}

func TestNewInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := New([]Rule{{Pattern: "*bad"}}); err == nil {
		t.Error("New accepted an invalid regex")
	}
}
