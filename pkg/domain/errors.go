package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a tool name is not registered.
	ErrToolNotFound = errors.New("tool not found")
	// ErrStepsExhausted is returned when a model-driven run reaches its step limit.
	ErrStepsExhausted = errors.New("step limit exhausted")
	// ErrAlreadyRunning is returned when starting a second sandbox from one manager.
	ErrAlreadyRunning = errors.New("a sandbox container is already running")
	// ErrNotReady is returned when the readiness probe gives up.
	ErrNotReady = errors.New("sandbox did not become ready")
)

// NetworkError reports that the sandbox could not be reached, as opposed to
// the sandbox rejecting or failing an action.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("sandbox unreachable: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError reports a malformed ActionCommand.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid action command: " + e.Reason
	}
	return fmt.Sprintf("invalid action command: %s %s", e.Field, e.Reason)
}

// ActionExecutionError reports that the executor could not perform a
// structurally valid command.
type ActionExecutionError struct {
	Action  ActionKind
	Message string
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Action, e.Message)
}

// LocateError reports that the locator output could not be turned into a
// normalized point.
type LocateError struct {
	Query string
	Raw   string
	Err   error
}

func (e *LocateError) Error() string {
	msg := fmt.Sprintf("locating %q", e.Query)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Raw != "" {
		msg += fmt.Sprintf(" (model output %q)", e.Raw)
	}
	return msg
}

func (e *LocateError) Unwrap() error { return e.Err }

// ContainerLifecycleError reports an inconsistent start/stop sequence or a
// sandbox that never became ready.
type ContainerLifecycleError struct {
	Op  string
	Err error
}

func (e *ContainerLifecycleError) Error() string {
	return fmt.Sprintf("sandbox %s: %v", e.Op, e.Err)
}

func (e *ContainerLifecycleError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a model-driven run instead of being
// recorded as a tool result.
func IsFatal(err error) bool {
	var le *LocateError
	var ce *ContainerLifecycleError
	return errors.As(err, &le) || errors.As(err, &ce)
}
