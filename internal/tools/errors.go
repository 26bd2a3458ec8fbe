package tools

import (
	"errors"
	"fmt"
)

// Tool registry errors.
var (
	// ErrToolNotFound is returned when a tool is not registered.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("tool name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("tool execute function cannot be nil")

	// ErrSchemaMismatch is returned when a required argument has no property.
	ErrSchemaMismatch = errors.New("required argument missing from schema properties")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrNonRecoverable marks errors that abort the agent loop instead of
	// being fed back to the model.
	ErrNonRecoverable = errors.New("non-recoverable tool error")
)

// Kind classifies a capability failure.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindAlreadyExists    Kind = "already_exists"
	KindNotAFile         Kind = "not_a_file"
	KindNotADirectory    Kind = "not_a_directory"
	KindInvalidPattern   Kind = "invalid_pattern"
	KindPermissionDenied Kind = "permission_denied"
	KindInvalidArgument  Kind = "invalid_argument"
	KindUnknownTool      Kind = "unknown_tool"
	KindUnavailable      Kind = "unavailable"
	KindRefused          Kind = "refused"
	KindFailed           Kind = "failed"
)

// ToolError is the typed failure of a capability.
type ToolError struct {
	Kind    Kind
	Message string

	// Fatal errors abort the agent loop.
	Fatal bool

	Err error
}

func (e *ToolError) Error() string {
	return e.Message
}

// Unwrap exposes the cause and, for fatal errors, ErrNonRecoverable.
func (e *ToolError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Fatal {
		errs = append(errs, ErrNonRecoverable)
	}
	return errs
}

// Errorf builds a recoverable ToolError.
func Errorf(kind Kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Fatalf builds a ToolError that aborts the agent loop.
func Fatalf(kind Kind, format string, args ...any) *ToolError {
	return &ToolError{Kind: kind, Message: fmt.Sprintf(format, args...), Fatal: true}
}

// Wrap attaches a cause to a ToolError.
func (e *ToolError) Wrap(err error) *ToolError {
	e.Err = err
	return e
}

// KindOf returns the kind of a ToolError anywhere in err's chain, or
// KindFailed.
func KindOf(err error) Kind {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindFailed
}

// IsNonRecoverable reports whether err must abort the agent loop.
func IsNonRecoverable(err error) bool {
	return errors.Is(err, ErrNonRecoverable)
}

// Observation renders err as text for the model.
func Observation(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("[ERROR] (%s) %s", KindOf(err), err.Error())
}
