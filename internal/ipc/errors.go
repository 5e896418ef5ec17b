package ipc

import (
	"errors"
	"fmt"
)

var (
	// ErrProcessNotRunning is returned by Send when no engine is active.
	ErrProcessNotRunning = errors.New("engine process not running")

	// ErrChannelClosed is returned once the stdin writer has stopped.
	ErrChannelClosed = errors.New("engine input channel closed")
)

// DependencyError means the engine project cannot be started: its manifest is
// missing or installing its dependencies failed. Output holds the installer's
// captured stderr.
type DependencyError struct {
	Reason string
	Output string
	Err    error
}

func (e *DependencyError) Error() string {
	msg := "engine dependencies: " + e.Reason
	if e.Output != "" {
		msg += ": " + e.Output
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DependencyError) Unwrap() error { return e.Err }

// SpawnError wraps a failure to launch the engine.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError reports an engine that exited without being asked to.
type ExitError struct {
	PID int
	Err error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine process %d exited unexpectedly", e.PID)
	}
	return fmt.Sprintf("engine process %d exited unexpectedly: %v", e.PID, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }
