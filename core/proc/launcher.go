// Package proc starts programs as members of process groups.
package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/josephlewis42/bshell/core/command"
	"golang.org/x/sys/unix"
)

// Options control how a process is started.
type Options struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Pgid is the group to join, 0 makes the process the leader of a new group.
	Pgid int

	// Foreground hands the terminal in TTY to the new group before the program
	// image is loaded.
	Foreground bool
	TTY        int
}

// Process is a started child.
type Process interface {
	Pid() int
	Pgid() int

	// Wait blocks until the process exits or is stopped and returns its shell
	// status. A stop is reported as ErrStopped.
	Wait() (int, error)

	// SignalGroup sends sig to every member of the process's group.
	SignalGroup(sig syscall.Signal) error

	// Release gives up the handle without waiting, the caller becomes
	// responsible for collecting the process.
	Release() error
}

// Launcher starts processes.
type Launcher interface {
	Launch(inv command.Invocation, opts Options) (Process, error)
}

// OSLauncher starts real child processes.
type OSLauncher struct{}

var _ Launcher = OSLauncher{}

// Launch starts inv.
//
// Every descriptor other than the three standard ones is close-on-exec so
// the child never holds another pipeline stage's pipe ends. Signals the
// shell catches are reset to their defaults in the child and the signal mask
// is restored after the terminal is handed over.
func (OSLauncher) Launch(inv command.Invocation, opts Options) (Process, error) {
	cmd := exec.Command(inv.Program, inv.Args...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    opts.Pgid,
	}
	if opts.Foreground {
		cmd.SysProcAttr.Foreground = true
		cmd.SysProcAttr.Ctty = opts.TTY
	}

	if err := cmd.Start(); err != nil {
		return nil, classify(inv.Program, err)
	}

	pgid := opts.Pgid
	if pgid == 0 {
		pgid = cmd.Process.Pid
	}

	return &handle{cmd: cmd, pid: cmd.Process.Pid, pgid: pgid}, nil
}

func classify(program string, err error) *LaunchError {
	switch {
	case errors.Is(err, exec.ErrNotFound),
		errors.Is(err, exec.ErrDot),
		errors.Is(err, syscall.ENOENT),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.ENOEXEC):
		return &LaunchError{Kind: NotFound, Program: program, Err: err}
	default:
		return &LaunchError{Kind: ForkFailed, Program: program, Err: err}
	}
}

type handle struct {
	cmd  *exec.Cmd
	pid  int
	pgid int
}

var _ Process = (*handle)(nil)

func (h *handle) Pid() int {
	return h.pid
}

func (h *handle) Pgid() int {
	return h.pgid
}

// Wait uses wait4 instead of cmd.Wait, which never returns for a stopped
// child. The standard files are *os.File so there are no copying goroutines
// for cmd.Wait to collect.
func (h *handle) Wait() (int, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(h.pid, &ws, unix.WUNTRACED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 1, err
		}
		break
	}

	if ws.Stopped() {
		return 128 + int(ws.StopSignal()), ErrStopped
	}

	h.cmd.Process.Release()
	return Status(ws), nil
}

func (h *handle) SignalGroup(sig syscall.Signal) error {
	return syscall.Kill(-h.pgid, sig)
}

func (h *handle) Release() error {
	return h.cmd.Process.Release()
}

// Status converts the wait status of a terminated process to a shell exit
// status: the exit code, or 128 plus the signal number if it was killed.
func Status(ws unix.WaitStatus) int {
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ws.ExitStatus()
}
