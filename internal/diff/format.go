package diff

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// NoDifferences is returned instead of an empty diff.
const NoDifferences = "[INFO] No differences found."

// Unified renders the diff in git's unified format. An empty diff renders
// as NoDifferences.
func (d *FileDiff) Unified() string {
	if d.Empty() {
		return NoDifferences
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "diff --git a/%s b/%s\n", d.OldPath, d.NewPath)
	sb.WriteString("index 0000000..0000000 100644\n")
	fmt.Fprintf(&sb, "--- a/%s\n", d.OldPath)
	fmt.Fprintf(&sb, "+++ b/%s\n", d.NewPath)

	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%s +%s @@\n", formatRange(h.OldStart, h.OldCount), formatRange(h.NewStart, h.NewCount))
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteByte('+')
			case LineRemoved:
				sb.WriteByte('-')
			default:
				sb.WriteByte(' ')
			}
			sb.WriteString(l.Content)
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// formatRange follows the unified format: 1-based start, count omitted when
// 1, and an empty range points at the line before it.
func formatRange(start, count int) string {
	beginning := start + 1
	switch count {
	case 1:
		return fmt.Sprintf("%d", beginning)
	case 0:
		beginning--
	}
	return fmt.Sprintf("%d,%d", beginning, count)
}

// CompareFiles diffs two files on disk. Unreadable files never produce an
// error value; the returned text carries an "[ERROR] ..." marker instead so
// callers can show it as-is.
func (e *Engine) CompareFiles(oldPath, newPath string, opts Options) string {
	oldContent, errText := readForDiff(oldPath)
	if errText != "" {
		return errText
	}
	newContent, errText := readForDiff(newPath)
	if errText != "" {
		return errText
	}
	return e.ComputeDiff(oldPath, newPath, oldContent, newContent, opts).Unified()
}

func readForDiff(path string) (string, string) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return string(data), ""
	case errors.Is(err, fs.ErrNotExist):
		return "", "[ERROR] File not found: " + path
	case errors.Is(err, fs.ErrPermission):
		return "", "[ERROR] Permission denied: " + path
	default:
		return "", fmt.Sprintf("[ERROR] Could not read %s: %v", path, err)
	}
}
