package tactile

import "strings"

// promptIndicators are substrings (compared case-insensitively) suggesting
// the child is waiting on a human.
var promptIndicators = []string{
	"?", ":", "[y/n]", "y/n", "password", "passphrase", "continue", "proceed",
	"confirm", "enter", "input", "choose", "select",
}

// LooksLikePrompt reports whether a line of output looks like a request for
// input. It is a best-effort heuristic: misses degrade to the quiet-period
// and hard timeouts.
func LooksLikePrompt(line string) bool {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return false
	}
	for _, ind := range promptIndicators {
		if strings.Contains(line, ind) {
			return true
		}
	}
	return false
}

// lastLine returns the last non-blank line of s.
func lastLine(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimRight(s, "\r")
}
