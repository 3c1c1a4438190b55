package core

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/josephlewis42/bshell/core/command"
	"github.com/josephlewis42/bshell/core/config"
	"github.com/josephlewis42/bshell/core/jobs"
	"github.com/josephlewis42/bshell/core/logger"
	"github.com/josephlewis42/bshell/core/proc"
	"github.com/josephlewis42/bshell/core/shell"
	"github.com/josephlewis42/bshell/core/tty"
)

// Arbiter hands the controlling terminal between process groups.
// *tty.Terminal implements it.
type Arbiter interface {
	CurrentForeground() (int, error)
	GrantForeground(pgid int) error
	RestoreForeground(pgid int) error
}

var _ Arbiter = (*tty.Terminal)(nil)

// Kicker wakes the job reaper after a job is registered.
type Kicker interface {
	Kick()
}

// Executor runs commands as child processes. It's only used from one
// goroutine; the job registry is the one piece of state it shares.
type Executor struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	Launcher proc.Launcher
	// Terminal is nil when there is no controlling terminal, foreground work
	// is then just waited on.
	Terminal Arbiter
	Jobs     *jobs.Registry
	Reaper   Kicker

	Events *logger.SessionLogger
	Colors *ColorPrinter
	Debug  *log.Logger

	// Exit terminates the shell.
	Exit func(code int)

	status int
}

// NewExecutor creates an Executor attached to the process's standard files
// with no terminal control.
func NewExecutor(registry *jobs.Registry) *Executor {
	return &Executor{
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Launcher: proc.OSLauncher{},
		Jobs:     registry,
		Events:   logger.Discard().NewSession(),
		Colors:   NewColorPrinter(config.ColorNever, os.Stderr),
		Debug:    log.New(io.Discard, "", 0),
		Exit:     os.Exit,
	}
}

// LastStatus is the exit status of the most recent command.
func (x *Executor) LastStatus() int {
	return x.status
}

// RunLine parses and executes one line of input.
func (x *Executor) RunLine(line string) {
	cmd, err := shell.Parse(line)
	if err != nil {
		x.report(nil, err)
		x.status = 2
		return
	}

	x.Execute(cmd)
}

// Execute runs cmd. Failures are reported on Stderr and never returned.
func (x *Executor) Execute(cmd command.Command) {
	switch cmd := cmd.(type) {
	case nil, command.Empty:
		// nothing to do

	case command.Single:
		x.status = x.runSingle(cmd.Invocation)

	case command.Chain:
		switch cmd.Kind {
		case command.AllMustSucceed:
			x.status = x.runSequence(cmd.Invocations, func(status int) bool { return status != 0 })
		case command.FirstSuccessWins:
			x.status = x.runSequence(cmd.Invocations, func(status int) bool { return status == 0 })
		case command.Pipeline:
			x.status = x.runPipeline(cmd.Invocations)
		default:
			x.report(nil, fmt.Errorf("unknown chain kind %v", cmd.Kind))
			x.status = 2
		}
	}
}

func (x *Executor) runSingle(inv command.Invocation) int {
	if builtin, ok := AllBuiltins[inv.Program]; ok {
		return x.runBuiltin(builtin, inv)
	}
	if inv.Background {
		return x.runBackground(inv)
	}
	return x.runForeground(inv)
}

// runSequence runs each invocation in the foreground until stop returns true
// for a status.
func (x *Executor) runSequence(invocations []command.Invocation, stop func(status int) bool) int {
	status := 0
	for _, inv := range invocations {
		status = x.runSingle(inv)
		if stop(status) {
			break
		}
	}
	return status
}

func (x *Executor) runBuiltin(builtin Builtin, inv command.Invocation) int {
	status := builtin.Main(x, inv.Argv())
	x.record(&logger.Builtin{Command: inv.Argv(), Status: status})
	return status
}

func (x *Executor) runForeground(inv command.Invocation) int {
	return x.foreground(func(grant func(pgid int)) (int, error) {
		p, err := x.launch(inv, proc.Options{Stdin: x.Stdin, Stdout: x.Stdout, Stderr: x.Stderr}, grant)
		if err != nil {
			return launchStatus(err), err
		}

		if grant != nil {
			grant(p.Pgid())
		}
		status, err := x.wait(inv, p)
		if errors.Is(err, proc.ErrStopped) {
			return status, x.suspend(inv.String(), p, nil)
		}
		return status, err
	})
}

func (x *Executor) runBackground(inv command.Invocation) int {
	stdin := x.Stdin
	if x.Terminal == nil {
		// Without job control a background job must not compete for input.
		devNull, err := os.Open(os.DevNull)
		if err != nil {
			x.report(inv.Argv(), err)
			return 1
		}
		defer devNull.Close()
		stdin = devNull
	}

	p, err := x.launch(inv, proc.Options{Stdin: stdin, Stdout: x.Stdout, Stderr: x.Stderr}, nil)
	if err != nil {
		x.report(inv.Argv(), err)
		return launchStatus(err)
	}

	job := x.Jobs.Add(inv.String(), p.Pid(), p.Pgid())
	if x.Reaper != nil {
		x.Reaper.Kick()
	}
	if err := p.Release(); err != nil {
		x.Debug.Printf("releasing %d: %v", p.Pid(), err)
	}

	fmt.Fprintln(x.Stderr, x.Colors.Sprintf(ColorBoldBlue, "[%d] %d", job.Number, job.Pid))
	return 0
}

func (x *Executor) runPipeline(invocations []command.Invocation) int {
	if len(invocations) == 1 {
		return x.runSingle(invocations[0])
	}

	for _, inv := range invocations {
		if _, ok := AllBuiltins[inv.Program]; ok {
			x.report(inv.Argv(), &UsageError{Builtin: inv.Program, Msg: "can't be used in a pipeline"})
			return 2
		}
	}

	return x.foreground(func(grant func(pgid int)) (int, error) {
		return x.pipeline(invocations, grant)
	})
}

// pipeline launches every stage into one process group before waiting on
// any of them. If a stage can't be launched the stages already running are
// killed so none is left blocked on a pipe. grant is nil when the terminal
// isn't held.
func (x *Executor) pipeline(invocations []command.Invocation, grant func(pgid int)) (int, error) {
	n := len(invocations)

	var pipes []*os.File
	closePipes := func() {
		for _, f := range pipes {
			f.Close()
		}
		pipes = nil
	}
	defer closePipes()

	readers := make([]*os.File, n-1)
	writers := make([]*os.File, n-1)
	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			return 1, fmt.Errorf("creating pipe: %w", err)
		}
		readers[i], writers[i] = r, w
		pipes = append(pipes, r, w)
	}

	procs := make([]proc.Process, 0, n)
	for i, inv := range invocations {
		opts := proc.Options{Stdin: x.Stdin, Stdout: x.Stdout, Stderr: x.Stderr}
		if i > 0 {
			opts.Stdin = readers[i-1]
			opts.Pgid = procs[0].Pgid()
		}
		if i < n-1 {
			opts.Stdout = writers[i]
		}

		stageGrant := grant
		if i > 0 {
			stageGrant = nil
		}
		p, err := x.launch(inv, opts, stageGrant)
		if err != nil {
			closePipes()
			x.abort(invocations, procs)
			return launchStatus(err), err
		}
		procs = append(procs, p)

		if stageGrant != nil {
			stageGrant(p.Pgid())
		}
	}

	// The children hold their own copies, a write end left open here would
	// keep the next stage from ever seeing EOF.
	closePipes()

	status := 0
	var firstErr error
	for i, p := range procs {
		stageStatus, err := x.wait(invocations[i], p)
		if errors.Is(err, proc.ErrStopped) {
			// The whole group got the stop, the stages after this one are
			// handed to the job with it.
			return stageStatus, x.suspend(pipelineName(invocations), p, procs[i+1:])
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if i == n-1 {
			status = stageStatus
		}
	}
	return status, firstErr
}

// abort kills a partially launched pipeline and collects its stages.
func (x *Executor) abort(invocations []command.Invocation, procs []proc.Process) {
	if len(procs) == 0 {
		return
	}

	if err := procs[0].SignalGroup(syscall.SIGKILL); err != nil {
		x.Debug.Printf("killing group %d: %v", procs[0].Pgid(), err)
	}
	for i, p := range procs {
		x.wait(invocations[i], p)
	}
}

// stoppedJob is returned from a foreground run whose group was stopped and
// moved to the job table.
type stoppedJob struct {
	job jobs.Job
}

func (s *stoppedJob) Error() string {
	return fmt.Sprintf("%s: stopped", s.job.Name)
}

// suspend registers a stopped foreground group as a job tracked by p, the
// stopped process. The handles of p and rest are given up; the reaper
// collects the group once p exits.
func (x *Executor) suspend(name string, p proc.Process, rest []proc.Process) error {
	job := x.Jobs.AddStopped(name, p.Pid(), p.Pgid())
	for _, member := range append([]proc.Process{p}, rest...) {
		if err := member.Release(); err != nil {
			x.Debug.Printf("releasing %d: %v", member.Pid(), err)
		}
	}
	if x.Reaper != nil {
		x.Reaper.Kick()
	}
	return &stoppedJob{job: job}
}

func pipelineName(invocations []command.Invocation) string {
	names := make([]string, len(invocations))
	for i, inv := range invocations {
		names[i] = inv.String()
	}
	return strings.Join(names, " | ")
}

// foreground runs fn with the terminal handed to the group fn grants and
// gives it back to the previous owner on every return path. grant is nil
// unless the previous owner is known, so a group is never handed a terminal
// nobody will take back. Errors are reported once the terminal has been
// restored.
func (x *Executor) foreground(fn func(grant func(pgid int)) (int, error)) int {
	var errs []error
	status := x.holdTerminal(fn, &errs)
	for _, err := range errs {
		var stopped *stoppedJob
		if errors.As(err, &stopped) {
			// ^Z leaves the cursor after the echoed control character.
			fmt.Fprintln(x.Stderr)
			fmt.Fprintln(x.Stderr, x.Colors.Sprintf(ColorBoldBlue, "[%d]+  %-8s %s", stopped.job.Number, stopped.job.State, stopped.job.Name))
			continue
		}
		x.report(nil, err)
	}
	return status
}

func (x *Executor) holdTerminal(fn func(grant func(pgid int)) (int, error), errs *[]error) int {
	var grant func(pgid int)

	if x.Terminal != nil {
		saved, err := x.Terminal.CurrentForeground()
		if err != nil {
			*errs = append(*errs, err)
		} else {
			defer func() {
				if err := x.Terminal.RestoreForeground(saved); err != nil {
					*errs = append(*errs, err)
				}
			}()

			grant = func(pgid int) {
				if err := x.Terminal.GrantForeground(pgid); err != nil {
					*errs = append(*errs, err)
				}
			}
		}
	}

	status, err := fn(grant)
	if err != nil {
		*errs = append(*errs, err)
	}
	return status
}

// launch starts inv. With a non-nil grant the child takes the terminal
// itself before exec when the Terminal has a descriptor to pass.
func (x *Executor) launch(inv command.Invocation, opts proc.Options, grant func(pgid int)) (proc.Process, error) {
	if grant != nil {
		if t, ok := x.Terminal.(interface{ Fd() int }); ok {
			opts.Foreground = true
			opts.TTY = t.Fd()
		}
	}

	p, err := x.Launcher.Launch(inv, opts)
	if err != nil {
		return nil, err
	}

	x.Debug.Printf("started %q pid=%d pgid=%d", inv.String(), p.Pid(), p.Pgid())
	x.record(&logger.Launch{
		Command:    inv.Argv(),
		Pid:        p.Pid(),
		Pgid:       p.Pgid(),
		Background: inv.Background,
	})
	return p, nil
}

func (x *Executor) wait(inv command.Invocation, p proc.Process) (int, error) {
	status, err := p.Wait()
	switch {
	case errors.Is(err, proc.ErrStopped):
		x.Debug.Printf("%q pid=%d stopped", inv.String(), p.Pid())
		return status, err
	case err != nil:
		return status, fmt.Errorf("waiting for %s: %w", inv.Program, err)
	}

	x.Debug.Printf("%q pid=%d exited with %d", inv.String(), p.Pid(), status)
	x.record(&logger.Exit{Command: inv.Argv(), Pid: p.Pid(), Status: status})
	return status, nil
}

// JobDone records a background job collected by the reaper. It's called from
// the reaper's goroutine.
func (x *Executor) JobDone(job jobs.Job) {
	x.Debug.Printf("job [%d] %q exited with %d", job.Number, job.Name, job.ExitCode)
	x.record(&logger.Reap{
		JobID:     job.ID.String(),
		JobNumber: job.Number,
		Name:      job.Name,
		Pid:       job.Pid,
		Status:    job.ExitCode,
	})
}

// report prints a one line diagnostic and records the failure.
func (x *Executor) report(argv []string, err error) {
	fmt.Fprintln(x.Stderr, x.Colors.Sprintf(ColorBoldRed, "bshell: %v", err))

	var launchErr *proc.LaunchError
	if argv == nil && errors.As(err, &launchErr) {
		argv = []string{launchErr.Program}
	}
	x.record(&logger.Failure{Command: argv, Kind: failureKind(err), Error: err.Error()})
}

func (x *Executor) record(event logger.LogType) {
	if err := x.Events.Record(event); err != nil {
		x.Debug.Printf("couldn't record event: %v", err)
	}
}

func launchStatus(err error) int {
	var launchErr *proc.LaunchError
	if errors.As(err, &launchErr) {
		return launchErr.ExitStatus()
	}
	return 1
}

func failureKind(err error) string {
	var (
		launchErr   *proc.LaunchError
		terminalErr *tty.TerminalError
		usageErr    *UsageError
		syntaxErr   *shell.SyntaxError
	)

	switch {
	case errors.As(err, &launchErr):
		return launchErr.Kind.String()
	case errors.As(err, &terminalErr):
		return "TerminalError"
	case errors.As(err, &usageErr):
		return "UsageError"
	case errors.As(err, &syntaxErr):
		return "SyntaxError"
	default:
		return "Error"
	}
}
