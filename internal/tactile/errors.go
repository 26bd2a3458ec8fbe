// Package tactile runs commands in persistent shell sessions. One
// long-lived child process is kept per shell flavor; its output is drained
// continuously so the child never blocks on a full pipe.
package tactile

import "errors"

var (
	// ErrNotRunning is returned when executing against a session that was
	// never started, was stopped, or whose process exited.
	ErrNotRunning = errors.New("shell session not running")

	// ErrUnavailable is returned when the shell binary cannot be found.
	ErrUnavailable = errors.New("shell unavailable")

	// ErrTimeout is returned alongside partial output when a command hits
	// the hard timeout.
	ErrTimeout = errors.New("command timed out")
)
