package diff

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func numbered(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "line" + string(rune('a'+i))
	}
	return out
}

func TestComputeDiff_SimpleAddition(t *testing.T) {
	engine := NewEngine()
	diff := engine.ComputeDiff("old.txt", "new.txt", "line1\nline2\nline3", "line1\nline2\nline2.5\nline3", DefaultOptions())

	if len(diff.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(diff.Hunks))
	}

	want := []Line{
		{Content: "line1", Type: LineContext},
		{Content: "line2", Type: LineContext},
		{Content: "line2.5", Type: LineAdded},
		{Content: "line3", Type: LineContext},
	}
	if d := cmp.Diff(want, diff.Hunks[0].Lines); d != "" {
		t.Errorf("hunk lines mismatch (-want +got):\n%s", d)
	}
}

func TestComputeDiff_SimpleDeletion(t *testing.T) {
	engine := NewEngine()
	diff := engine.ComputeDiff("a", "b", "line1\nline2\nline3\nline4", "line1\nline2\nline4", DefaultOptions())

	got := diff.Unified()
	if !strings.Contains(got, "\n-line3\n") {
		t.Errorf("expected removed line3, got:\n%s", got)
	}
	if !strings.Contains(got, "@@ -1,4 +1,3 @@") {
		t.Errorf("unexpected hunk header:\n%s", got)
	}
}

func TestUnified_GitHeader(t *testing.T) {
	engine := NewEngine()
	got := engine.ComputeDiff("x.go", "y.go", "a\nb\n", "a\nc\n", DefaultOptions()).Unified()

	want := strings.Join([]string{
		"diff --git a/x.go b/y.go",
		"index 0000000..0000000 100644",
		"--- a/x.go",
		"+++ b/y.go",
		"@@ -1,2 +1,2 @@",
		" a",
		"-b",
		"+c",
	}, "\n")
	if got != want {
		t.Errorf("Unified() =\n%s\nwant\n%s", got, want)
	}
}

func TestUnified_NoDifferences(t *testing.T) {
	engine := NewEngine()
	d := engine.ComputeDiff("a", "b", "same\ntext", "same\ntext", DefaultOptions())
	if !d.Empty() {
		t.Fatal("expected empty diff")
	}
	if d.Unified() != NoDifferences {
		t.Errorf("got %q", d.Unified())
	}
}

func TestComputeDiff_IgnoreWhitespace(t *testing.T) {
	engine := NewEngine()
	oldContent := "func main() {\n\tfmt.Println(\"hi\")\n}"
	newContent := "func main()  {\n    fmt.Println(\"hi\")   \n}"

	if d := engine.ComputeDiff("a", "b", oldContent, newContent, Options{Context: 3, IgnoreWhitespace: true}); !d.Empty() {
		t.Errorf("whitespace-only change should be ignored:\n%s", d.Unified())
	}
	if d := engine.ComputeDiff("a", "b", oldContent, newContent, Options{Context: 3}); d.Empty() {
		t.Error("whitespace change should be reported when not ignored")
	}
}

func TestComputeDiff_ContextAndHunkSplitting(t *testing.T) {
	engine := NewEngine()
	old := numbered(20)

	near := append([]string(nil), old...)
	near[1] = "CHANGED1"
	near[6] = "CHANGED6"
	hunks := engine.Lines(old, near, Options{Context: 3})
	if len(hunks) != 1 {
		t.Fatalf("changes 4 lines apart should share a hunk, got %d", len(hunks))
	}

	far := append([]string(nil), old...)
	far[1] = "CHANGED1"
	far[15] = "CHANGED15"
	hunks = engine.Lines(old, far, Options{Context: 3})
	if len(hunks) != 2 {
		t.Fatalf("distant changes should split, got %d hunks", len(hunks))
	}
	if hunks[0].OldStart != 0 || hunks[0].OldCount != 5 {
		t.Errorf("first hunk range = %d,%d want 0,5", hunks[0].OldStart, hunks[0].OldCount)
	}
	if hunks[1].OldStart != 12 || hunks[1].OldCount != 7 {
		t.Errorf("second hunk range = %d,%d want 12,7", hunks[1].OldStart, hunks[1].OldCount)
	}

	hunks = engine.Lines(old, far, Options{Context: 0})
	if len(hunks) != 2 || len(hunks[0].Lines) != 2 {
		t.Errorf("zero context should only keep changed lines: %+v", hunks)
	}
}

func TestComputeDiff_NewFile(t *testing.T) {
	engine := NewEngine()
	got := engine.ComputeDiff("empty", "new.txt", "", "first\nsecond", DefaultOptions()).Unified()
	if !strings.Contains(got, "@@ -0,0 +1,2 @@") {
		t.Errorf("unexpected header for new content:\n%s", got)
	}
}

func TestFormatRange(t *testing.T) {
	tests := []struct {
		start, count int
		want         string
	}{
		{0, 1, "1"},
		{4, 3, "5,3"},
		{3, 0, "3,0"},
		{0, 0, "0,0"},
	}
	for _, tt := range tests {
		if got := formatRange(tt.start, tt.count); got != tt.want {
			t.Errorf("formatRange(%d,%d) = %q, want %q", tt.start, tt.count, got, tt.want)
		}
	}
}

func TestCompareFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(a, []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("one\nthree\n"), 0644); err != nil {
		t.Fatal(err)
	}

	engine := NewEngine()
	got := engine.CompareFiles(a, b, DefaultOptions())
	if !strings.Contains(got, "-two") || !strings.Contains(got, "+three") {
		t.Errorf("unexpected diff:\n%s", got)
	}

	if got := engine.CompareFiles(a, a, DefaultOptions()); got != NoDifferences {
		t.Errorf("identical files: got %q", got)
	}

	missing := filepath.Join(dir, "missing.txt")
	if got := engine.CompareFiles(a, missing, DefaultOptions()); got != "[ERROR] File not found: "+missing {
		t.Errorf("missing file: got %q", got)
	}
}
