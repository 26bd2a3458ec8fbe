package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractString(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{"string", "hello", "hello"},
		{"json number", float64(42), "42"},
		{"fraction", 3.5, "3.5"},
		{"int", 7, "7"},
		{"bool", true, "true"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractString(tt.arg); got != tt.want {
				t.Errorf("ExtractString(%v) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestExtractInt(t *testing.T) {
	tests := []struct {
		name   string
		arg    interface{}
		want   int
		wantOK bool
	}{
		{"float64", float64(3), 3, true},
		{"int", 5, 5, true},
		{"numeric string", " 12 ", 12, true},
		{"bad string", "three", 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractInt(tt.arg)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractInt(%v) = (%d, %v), want (%d, %v)", tt.arg, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtractBool(t *testing.T) {
	if v, ok := ExtractBool("true"); !ok || !v {
		t.Errorf("string true not parsed")
	}
	if v, ok := ExtractBool(false); !ok || v {
		t.Errorf("bool false not parsed")
	}
	if _, ok := ExtractBool(float64(1)); ok {
		t.Errorf("numbers are not booleans")
	}
}

func TestExtractStringSlice(t *testing.T) {
	got, ok := ExtractStringSlice([]interface{}{"a", "b"})
	if !ok {
		t.Fatal("expected ok")
	}
	if diff := cmp.Diff([]string{"a", "b"}, got); diff != "" {
		t.Errorf("slice mismatch (-want +got):\n%s", diff)
	}

	got, ok = ExtractStringSlice("solo")
	if !ok || len(got) != 1 || got[0] != "solo" {
		t.Errorf("single string should wrap, got %v", got)
	}

	if _, ok := ExtractStringSlice([]interface{}{"a", 1.0}); ok {
		t.Error("mixed slice should fail")
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]interface{}{
		"path":      "a.txt",
		"max_depth": float64(2),
		"overwrite": true,
		"threshold": "0.25",
		"meta":      map[string]interface{}{"topic": "go", "n": float64(1)},
	}

	if got := ArgString(args, "path"); got != "a.txt" {
		t.Errorf("ArgString = %q", got)
	}
	if got := ArgInt(args, "max_depth", 3); got != 2 {
		t.Errorf("ArgInt = %d", got)
	}
	if got := ArgInt(args, "missing", 3); got != 3 {
		t.Errorf("ArgInt default = %d", got)
	}
	if !ArgBool(args, "overwrite", false) {
		t.Error("ArgBool should read true")
	}
	if got := ArgFloat64(args, "threshold", 0.5); got != 0.25 {
		t.Errorf("ArgFloat64 = %v", got)
	}

	meta, ok := ExtractStringMap(args["meta"])
	if !ok {
		t.Fatal("expected map")
	}
	if diff := cmp.Diff(map[string]string{"topic": "go", "n": "1"}, meta); diff != "" {
		t.Errorf("map mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"user": RoleHuman, "assistant": RoleAI, "model": RoleAI,
		"System": RoleSystem, "human": RoleHuman, "tool": RoleTool,
	} {
		got, ok := ParseRole(in)
		if !ok || got != want {
			t.Errorf("ParseRole(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseRole("narrator"); ok {
		t.Error("unknown roles should not parse")
	}
}

func TestLastAI(t *testing.T) {
	msgs := []Message{
		SystemMessage("sys"),
		HumanMessage("q"),
		AIMessage("first"),
		{Role: RoleAI, ToolCalls: []ToolCall{{ID: "1", Name: "read_file"}}},
		ToolMessage("1", "read_file", "contents"),
	}
	got, ok := LastAI(msgs)
	if !ok || got.Content != "first" {
		t.Errorf("LastAI = %+v, %v", got, ok)
	}
	if _, ok := LastAI(msgs[:2]); ok {
		t.Error("no AI message expected")
	}
}
