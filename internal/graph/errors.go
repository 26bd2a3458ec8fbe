package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrClassification means the understanding node produced no valid route.
	ErrClassification = errors.New("query classification failed")

	// ErrModelUnavailable means a node could not reach the language model.
	ErrModelUnavailable = errors.New("language model unavailable")

	// ErrCapabilityAborted means a non-recoverable capability stopped the turn.
	ErrCapabilityAborted = errors.New("capability aborted the turn")
)

// TurnError is a turn-fatal failure. Reason is safe to show to the user.
type TurnError struct {
	Node   NodeID
	Reason string
	Err    error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s node: %s: %v", e.Node, e.Reason, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

func turnError(node NodeID, reason string, kind, cause error) *TurnError {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &TurnError{Node: node, Reason: reason, Err: err}
}

var errEmptySummary = errors.New("model returned an empty summary")
