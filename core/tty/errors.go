package tty

import (
	"errors"
	"fmt"
)

var (
	ErrNoControllingTerminal = errors.New("no controlling terminal")
	ErrTransferRejected      = errors.New("terminal ownership transfer rejected")
)

// ErrorKind classifies terminal failures.
type ErrorKind int

const (
	NoControllingTerminal ErrorKind = iota
	TransferRejected
)

// TerminalError is returned when the terminal can't be opened or the kernel
// refuses to change its foreground process group.
type TerminalError struct {
	Kind ErrorKind
	Op   string
	Pgid int
	Err  error
}

func (e *TerminalError) Error() string {
	switch e.Kind {
	case NoControllingTerminal:
		if e.Err == nil {
			return ErrNoControllingTerminal.Error()
		}
		return fmt.Sprintf("%v: %v", ErrNoControllingTerminal, e.Err)
	default:
		return fmt.Sprintf("%s %d: %v", e.Op, e.Pgid, e.Err)
	}
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *TerminalError) Is(target error) bool {
	switch target {
	case ErrNoControllingTerminal:
		return e.Kind == NoControllingTerminal
	case ErrTransferRejected:
		return e.Kind == TransferRejected
	}
	return false
}
