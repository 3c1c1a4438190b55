package jobs

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/josephlewis42/bshell/core/proc"
	"golang.org/x/sys/unix"
)

// WaitFunc collects pid without blocking. exited is true only once the
// process has terminated, either normally or by a signal; status is then
// its shell exit status.
type WaitFunc func(pid int) (exited bool, status int, err error)

// Option configures a Reaper.
type Option func(*Reaper)

// WithWaitFunc replaces the wait4 based collector. Group members other than
// the tracked pid are then left alone.
func WithWaitFunc(wait WaitFunc) Option {
	return func(r *Reaper) {
		r.wait = wait
		r.collectGroup = func(int) {}
	}
}

// OnReap is called with every job removed from the registry.
func OnReap(callback func(Job)) Option {
	return func(r *Reaper) {
		r.onReap = callback
	}
}

// Reaper removes background jobs from a Registry once they exit. It runs on
// its own goroutine, woken by SIGCHLD, so the prompt never waits on a job.
type Reaper struct {
	registry *Registry
	wait     WaitFunc
	onReap   func(Job)
	// collectGroup reaps the remaining exited members of a finished job's
	// group, left over when a stopped pipeline became a job.
	collectGroup func(pgid int)

	kick   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewReaper creates a reaper for registry, call Start to begin listening.
func NewReaper(registry *Registry, opts ...Option) *Reaper {
	r := &Reaper{
		registry:     registry,
		wait:         waitNoHang,
		onReap:       func(Job) {},
		collectGroup: collectGroup,
		kick:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start listens for child termination until ctx is done or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGCHLD)

	go func() {
		defer close(r.done)
		defer signal.Stop(sigs)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
			case <-r.kick:
			}
			r.Reap()
		}
	}()
}

// Stop ends the listener and waits for it to return.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// Kick wakes the listener without a signal. A child can exit before it's
// added to the registry, and the SIGCHLD for it is consumed with nothing to
// collect; kicking after Add closes that window.
func (r *Reaper) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Reap collects every tracked job that has terminated and returns them.
func (r *Reaper) Reap() []Job {
	var reaped []Job
	for _, pid := range r.registry.Pids() {
		exited, status, err := r.wait(pid)
		switch {
		case errors.Is(err, unix.ECHILD):
			// Someone else collected it.
			status = -1
		case err != nil, !exited:
			continue
		}

		job, ok := r.registry.Remove(pid)
		if !ok {
			continue
		}
		job.State = Exited
		job.ExitCode = status
		r.collectGroup(job.Pgid)

		r.onReap(job)
		reaped = append(reaped, job)
	}
	return reaped
}

func waitNoHang(pid int) (bool, int, error) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	switch {
	case err != nil:
		return false, 0, err
	case wpid != pid:
		return false, 0, nil
	case ws.Exited(), ws.Signaled():
		return true, proc.Status(ws), nil
	default:
		// Stopped or continued.
		return false, 0, nil
	}
}

func collectGroup(pgid int) {
	for {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(-pgid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || wpid <= 0 {
			return
		}
	}
}
