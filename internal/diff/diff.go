// Package diff computes line-level unified diffs on top of the sergi/go-diff
// engine.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType represents the type of diff line
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Added line
	LineRemoved                 // Removed line
)

// Line represents a single line in the diff
type Line struct {
	Content string
	Type    LineType
}

// Hunk represents a group of changes. Starts are 0-based indexes into the
// old and new line slices.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// FileDiff represents changes to a single file
type FileDiff struct {
	OldPath string
	NewPath string
	Hunks   []Hunk
}

// Empty reports whether the files are equivalent.
func (d *FileDiff) Empty() bool {
	return len(d.Hunks) == 0
}

// Options control diff computation.
type Options struct {
	// Context is the number of unchanged lines around each change.
	Context int
	// IgnoreWhitespace treats lines differing only in whitespace runs
	// (or leading/trailing whitespace) as equal.
	IgnoreWhitespace bool
}

// DefaultOptions returns 3 lines of context, ignoring whitespace.
func DefaultOptions() Options {
	return Options{Context: 3, IgnoreWhitespace: true}
}

// Engine provides diff computation.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates a new diff engine tuned for exact code diffs.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Engine{dmp: dmp}
}

// ComputeDiff diffs two file contents.
func (e *Engine) ComputeDiff(oldPath, newPath, oldContent, newContent string, opts Options) *FileDiff {
	return &FileDiff{
		OldPath: oldPath,
		NewPath: newPath,
		Hunks:   e.Lines(splitLines(oldContent), splitLines(newContent), opts),
	}
}

// op is one line-level edit. oi/ni are the old/new positions before it.
type op struct {
	typ    LineType
	oi, ni int
	text   string
}

// Lines diffs two line slices and groups the edits into hunks.
func (e *Engine) Lines(oldLines, newLines []string, opts Options) []Hunk {
	if opts.Context < 0 {
		opts.Context = 0
	}
	ops := e.lineOps(oldLines, newLines, opts.IgnoreWhitespace)
	return groupHunks(ops, opts.Context)
}

// lineOps encodes each distinct line as one rune so the character-level
// engine diffs whole lines.
func (e *Engine) lineOps(oldLines, newLines []string, ignoreWS bool) []op {
	codes := make(map[string]rune)
	next := rune(1)
	encode := func(lines []string) []rune {
		out := make([]rune, len(lines))
		for i, l := range lines {
			key := l
			if ignoreWS {
				key = strings.Join(strings.Fields(l), " ")
			}
			r, ok := codes[key]
			if !ok {
				r = next
				codes[key] = r
				next++
				// Surrogates do not survive the []rune -> string round trip.
				if next == 0xD800 {
					next = 0xE000
				}
			}
			out[i] = r
		}
		return out
	}

	a, b := encode(oldLines), encode(newLines)
	diffs := e.dmp.DiffMainRunes(a, b, false)

	var ops []op
	oi, ni := 0, 0
	for _, d := range diffs {
		n := len([]rune(d.Text))
		for k := 0; k < n; k++ {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, op{typ: LineContext, oi: oi, ni: ni, text: oldLines[oi]})
				oi++
				ni++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, op{typ: LineRemoved, oi: oi, ni: ni, text: oldLines[oi]})
				oi++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, op{typ: LineAdded, oi: oi, ni: ni, text: newLines[ni]})
				ni++
			}
		}
	}
	return ops
}

// groupHunks keeps ctx lines of context around changes. Changes separated
// by at most 2*ctx unchanged lines share a hunk.
func groupHunks(ops []op, ctx int) []Hunk {
	var changes []int
	for i, o := range ops {
		if o.typ != LineContext {
			changes = append(changes, i)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	var hunks []Hunk
	start := changes[0]
	end := changes[0]
	flush := func() {
		from := max(0, start-ctx)
		to := min(len(ops), end+ctx+1)
		h := Hunk{OldStart: ops[from].oi, NewStart: ops[from].ni}
		for _, o := range ops[from:to] {
			h.Lines = append(h.Lines, Line{Content: o.text, Type: o.typ})
			if o.typ != LineAdded {
				h.OldCount++
			}
			if o.typ != LineRemoved {
				h.NewCount++
			}
		}
		hunks = append(hunks, h)
	}

	for _, c := range changes[1:] {
		if c-end-1 > 2*ctx {
			flush()
			start = c
		}
		end = c
	}
	flush()
	return hunks
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
