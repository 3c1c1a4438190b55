//go:build linux

// Package tty arbitrates which process group owns the controlling terminal.
package tty

import (
	"os"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// DevicePath is the controlling terminal of the calling process.
const DevicePath = "/dev/tty"

// Terminal is the shell's handle on its controlling terminal.
type Terminal struct {
	f *os.File
}

// Open opens the controlling terminal. It fails with ErrNoControllingTerminal
// when the shell's input doesn't come from a terminal.
func Open() (*Terminal, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, &TerminalError{Kind: NoControllingTerminal}
	}

	f, err := os.OpenFile(DevicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, &TerminalError{Kind: NoControllingTerminal, Err: err}
	}

	return &Terminal{f: f}, nil
}

// Fd is the terminal's descriptor in this process.
func (t *Terminal) Fd() int {
	return int(t.f.Fd())
}

// CurrentForeground returns the foreground process group.
func (t *Terminal) CurrentForeground() (int, error) {
	pgid, err := unix.IoctlGetInt(t.Fd(), unix.TIOCGPGRP)
	if err != nil {
		return 0, &TerminalError{Kind: TransferRejected, Op: "tcgetpgrp", Err: err}
	}
	return pgid, nil
}

// GrantForeground hands the terminal to pgid.
func (t *Terminal) GrantForeground(pgid int) error {
	return t.setForeground("grant", pgid)
}

// RestoreForeground hands the terminal back to pgid, normally the shell's
// own group saved before the grant. Restoring the current owner is a no-op.
func (t *Terminal) RestoreForeground(pgid int) error {
	return t.setForeground("restore", pgid)
}

// Close releases the terminal descriptor.
func (t *Terminal) Close() error {
	return t.f.Close()
}

// setForeground calls tcsetpgrp with SIGTTOU blocked. A process outside the
// foreground group is sent SIGTTOU by tcsetpgrp unless it blocks the signal,
// and the mask is per thread so the goroutine stays on one for the call.
func (t *Terminal) setForeground(op string, pgid int) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var block, old unix.Sigset_t
	sigaddset(&block, unix.SIGTTOU)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &block, &old); err != nil {
		return &TerminalError{Kind: TransferRejected, Op: op, Pgid: pgid, Err: err}
	}
	defer unix.PthreadSigmask(unix.SIG_SETMASK, &old, nil)

	if err := unix.IoctlSetPointerInt(t.Fd(), unix.TIOCSPGRP, pgid); err != nil {
		return &TerminalError{Kind: TransferRejected, Op: op, Pgid: pgid, Err: err}
	}
	return nil
}

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	bits := uint(unsafe.Sizeof(set.Val[0])) * 8
	n := uint(sig) - 1
	set.Val[n/bits] |= 1 << (n % bits)
}
