package proc

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("command not found")
	ErrForkFailed = errors.New("couldn't create process")

	// ErrStopped is returned by Process.Wait when the process was stopped by
	// a signal. It's still a child and has to be collected later.
	ErrStopped = errors.New("stopped")
)

// LaunchErrorKind classifies launch failures.
type LaunchErrorKind int

const (
	// NotFound means the program couldn't be resolved or loaded.
	NotFound LaunchErrorKind = iota
	// ForkFailed means process creation failed and no child exists.
	ForkFailed
)

func (k LaunchErrorKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case ForkFailed:
		return "ForkFailed"
	default:
		return fmt.Sprintf("LaunchErrorKind(%d)", int(k))
	}
}

// LaunchError is returned when a program couldn't be started. There is never
// a process to wait on after a LaunchError.
type LaunchError struct {
	Kind    LaunchErrorKind
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	if e.Kind == NotFound {
		return fmt.Sprintf("%s: %v", e.Program, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *LaunchError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == NotFound
	case ErrForkFailed:
		return e.Kind == ForkFailed
	}
	return false
}

// ExitStatus is the shell status reported for the error.
func (e *LaunchError) ExitStatus() int {
	if e.Kind == NotFound {
		return 127
	}
	return 126
}
