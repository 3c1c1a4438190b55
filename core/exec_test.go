package core

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/josephlewis42/bshell/core/command"
	"github.com/josephlewis42/bshell/core/config"
	"github.com/josephlewis42/bshell/core/jobs"
	"github.com/josephlewis42/bshell/core/logger"
	"github.com/josephlewis42/bshell/core/proc"
	"github.com/josephlewis42/bshell/core/shell"
	"github.com/josephlewis42/bshell/core/tty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shellPgid = 4242

// fakeTerminal records foreground transfers.
type fakeTerminal struct {
	mu    sync.Mutex
	owner int
	calls []string
}

func (f *fakeTerminal) CurrentForeground() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "current")
	return f.owner, nil
}

func (f *fakeTerminal) GrantForeground(pgid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "grant")
	f.owner = pgid
	return nil
}

func (f *fakeTerminal) RestoreForeground(pgid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "restore")
	f.owner = pgid
	return nil
}

// brokenTerminal has a descriptor but can't report its foreground group.
type brokenTerminal struct {
	fakeTerminal
}

func (b *brokenTerminal) Fd() int {
	return 99
}

func (b *brokenTerminal) CurrentForeground() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "current")
	return 0, &tty.TerminalError{Kind: tty.TransferRejected, Op: "tcgetpgrp", Err: syscall.ENOTTY}
}

// fdTerminal is a working fakeTerminal with a descriptor to pass to children.
type fdTerminal struct {
	fakeTerminal
}

func (f *fdTerminal) Fd() int {
	return 99
}

// recordingLauncher records the options of every launch and starts the
// process without touching the terminal.
type recordingLauncher struct {
	mu   sync.Mutex
	opts []proc.Options
}

func (r *recordingLauncher) Launch(inv command.Invocation, opts proc.Options) (proc.Process, error) {
	r.mu.Lock()
	r.opts = append(r.opts, opts)
	r.mu.Unlock()

	opts.Foreground = false
	opts.TTY = 0
	return proc.OSLauncher{}.Launch(inv, opts)
}

type testShell struct {
	*Executor
	stdout *os.File
	stderr *os.File
}

func (ts *testShell) Output(t *testing.T) string {
	t.Helper()
	out, err := os.ReadFile(ts.stdout.Name())
	require.NoError(t, err)
	return string(out)
}

func (ts *testShell) Errors(t *testing.T) string {
	t.Helper()
	out, err := os.ReadFile(ts.stderr.Name())
	require.NoError(t, err)
	return string(out)
}

func (ts *testShell) Run(t *testing.T, line string) int {
	t.Helper()
	cmd, err := shell.Parse(line)
	require.NoError(t, err, line)
	ts.Execute(cmd)
	return ts.LastStatus()
}

func newTestShell(t *testing.T) *testShell {
	t.Helper()
	dir := t.TempDir()

	create := func(name string) *os.File {
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		t.Cleanup(func() { f.Close() })
		return f
	}

	stdin, err := os.Open(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() { stdin.Close() })

	x := NewExecutor(jobs.NewRegistry())
	x.Stdin = stdin
	x.Stdout = create("stdout")
	x.Stderr = create("stderr")
	x.Exit = func(code int) {
		t.Fatalf("unexpected exit(%d)", code)
	}

	return &testShell{Executor: x, stdout: x.Stdout, stderr: x.Stderr}
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { os.Chdir(orig) })

	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return dir
}

func TestForegroundRestoresTerminal(t *testing.T) {
	cases := map[string]struct {
		line   string
		status int
		calls  []string
	}{
		"success":   {"true", 0, []string{"current", "grant", "restore"}},
		"failure":   {"false", 1, []string{"current", "grant", "restore"}},
		"signaled":  {"sh -c 'kill -9 $$'", 137, []string{"current", "grant", "restore"}},
		"not found": {"bshell-missing-program", 127, []string{"current", "restore"}},
		"pipeline":  {"echo hi | cat", 0, []string{"current", "grant", "restore"}},
		"missing stage": {
			"echo hi | bshell-missing-program | cat", 127, []string{"current", "grant", "restore"},
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			ts := newTestShell(t)
			terminal := &fakeTerminal{owner: shellPgid}
			ts.Terminal = terminal

			assert.Equal(t, tc.status, ts.Run(t, tc.line))
			assert.Equal(t, shellPgid, terminal.owner)
			assert.Equal(t, tc.calls, terminal.calls)
		})
	}
}

func TestForegroundOnlyWithKnownOwner(t *testing.T) {
	t.Run("owner unknown", func(t *testing.T) {
		ts := newTestShell(t)
		terminal := &brokenTerminal{}
		launcher := &recordingLauncher{}
		ts.Terminal = terminal
		ts.Launcher = launcher

		assert.Equal(t, 0, ts.Run(t, "true"))
		assert.Equal(t, []string{"current"}, terminal.calls)
		require.Len(t, launcher.opts, 1)
		assert.False(t, launcher.opts[0].Foreground, "nobody would take the terminal back")
		assert.Contains(t, ts.Errors(t), "tcgetpgrp")
	})

	t.Run("owner known", func(t *testing.T) {
		ts := newTestShell(t)
		terminal := &fdTerminal{fakeTerminal{owner: shellPgid}}
		launcher := &recordingLauncher{}
		ts.Terminal = terminal
		ts.Launcher = launcher

		assert.Equal(t, 0, ts.Run(t, "echo hi | cat"))
		require.Len(t, launcher.opts, 2)
		assert.True(t, launcher.opts[0].Foreground)
		assert.Equal(t, 99, launcher.opts[0].TTY)
		assert.False(t, launcher.opts[1].Foreground, "later stages join a group that already has the terminal")
		assert.Equal(t, shellPgid, terminal.owner)
	})
}

func TestForegroundStop(t *testing.T) {
	ts := newTestShell(t)
	terminal := &fakeTerminal{owner: shellPgid}
	ts.Terminal = terminal
	reaper := jobs.NewReaper(ts.Jobs, jobs.OnReap(ts.JobDone))
	reaper.Start(context.Background())
	defer reaper.Stop()
	ts.Reaper = reaper

	done := make(chan int)
	go func() {
		cmd, _ := shell.Parse("sh -c 'kill -STOP $$'")
		ts.Execute(cmd)
		done <- ts.LastStatus()
	}()

	select {
	case status := <-done:
		assert.Equal(t, 128+int(syscall.SIGSTOP), status)
	case <-time.After(10 * time.Second):
		t.Fatal("stopped foreground job never returned to the shell")
	}

	assert.Equal(t, shellPgid, terminal.owner)
	assert.Equal(t, []string{"current", "grant", "restore"}, terminal.calls)

	list := ts.Jobs.List()
	require.Len(t, list, 1)
	assert.Equal(t, jobs.Stopped, list[0].State)
	assert.Equal(t, "sh -c kill -STOP $$", list[0].Name)
	assert.Equal(t, "\n[1]+  Stopped  sh -c kill -STOP $$\n", ts.Errors(t))

	// The shell keeps working while the job is stopped.
	assert.Equal(t, 0, ts.Run(t, "echo after-stop"))
	assert.Equal(t, "after-stop\n", ts.Output(t))

	require.NoError(t, syscall.Kill(-list[0].Pgid, syscall.SIGKILL))
	assert.Eventually(t, func() bool {
		return ts.Jobs.Len() == 0
	}, 10*time.Second, 20*time.Millisecond)
}

func TestPipelineStop(t *testing.T) {
	ts := newTestShell(t)
	reaper := jobs.NewReaper(ts.Jobs)
	reaper.Start(context.Background())
	defer reaper.Stop()
	ts.Reaper = reaper

	done := make(chan int)
	go func() {
		cmd, _ := shell.Parse("sh -c 'kill -STOP 0' | cat")
		ts.Execute(cmd)
		done <- ts.LastStatus()
	}()

	select {
	case status := <-done:
		assert.Equal(t, 128+int(syscall.SIGSTOP), status)
	case <-time.After(10 * time.Second):
		t.Fatal("stopped pipeline never returned to the shell")
	}

	list := ts.Jobs.List()
	require.Len(t, list, 1)
	assert.Equal(t, "sh -c kill -STOP 0 | cat", list[0].Name)
	assert.Equal(t, jobs.Stopped, list[0].State)

	require.NoError(t, syscall.Kill(-list[0].Pgid, syscall.SIGKILL))
	assert.Eventually(t, func() bool {
		return ts.Jobs.Len() == 0
	}, 10*time.Second, 20*time.Millisecond)
}

func TestBuiltinsDontTouchTerminal(t *testing.T) {
	chdirTemp(t)
	ts := newTestShell(t)
	terminal := &fakeTerminal{owner: shellPgid}
	ts.Terminal = terminal

	ts.Run(t, "cd .")
	ts.Run(t, "jobs")
	assert.Empty(t, terminal.calls)
}

func TestPipelineOutput(t *testing.T) {
	ts := newTestShell(t)

	assert.Equal(t, 0, ts.Run(t, "echo hello | cat"))
	assert.Equal(t, "hello\n", ts.Output(t))
	assert.Empty(t, ts.Errors(t))
}

func TestPipelineLongChain(t *testing.T) {
	ts := newTestShell(t)

	assert.Equal(t, 0, ts.Run(t, "printf 'b\\na\\nb\\n' | sort | uniq | wc -l"))
	assert.Equal(t, "2", strings.TrimSpace(ts.Output(t)))
}

func TestPipelineStatus(t *testing.T) {
	ts := newTestShell(t)

	assert.Equal(t, 0, ts.Run(t, "false | true"))
	assert.Equal(t, 1, ts.Run(t, "true | false"))
}

func TestPipelineMissingStage(t *testing.T) {
	ts := newTestShell(t)

	// yes never ends on its own, it has to be killed for the engine to return.
	done := make(chan int)
	go func() {
		cmd, _ := shell.Parse("yes | bshell-missing-program | cat")
		ts.Execute(cmd)
		done <- ts.LastStatus()
	}()

	select {
	case status := <-done:
		assert.Equal(t, 127, status)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline with a missing stage didn't return")
	}

	assert.Equal(t, "bshell: bshell-missing-program: command not found\n", ts.Errors(t))
	assert.Empty(t, ts.Output(t))
}

func TestPipelineRejectsBuiltins(t *testing.T) {
	dir := chdirTemp(t)
	ts := newTestShell(t)

	assert.Equal(t, 2, ts.Run(t, "cd / | cat"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, dir, wd)
	assert.Contains(t, ts.Errors(t), "cd: can't be used in a pipeline")
}

func TestAllMustSucceed(t *testing.T) {
	dir := chdirTemp(t)
	ts := newTestShell(t)
	marker := filepath.Join(dir, "marker")

	assert.Equal(t, 1, ts.Run(t, "true && false && touch marker"))
	assert.NoFileExists(t, marker)

	assert.Equal(t, 0, ts.Run(t, "true && touch marker"))
	assert.FileExists(t, marker)
}

func TestFirstSuccessWins(t *testing.T) {
	dir := chdirTemp(t)
	ts := newTestShell(t)
	marker := filepath.Join(dir, "marker")

	assert.Equal(t, 0, ts.Run(t, "true || touch marker || touch marker"))
	assert.NoFileExists(t, marker)

	assert.Equal(t, 0, ts.Run(t, "false || touch marker"))
	assert.FileExists(t, marker)

	assert.Equal(t, 1, ts.Run(t, "false || false"))
}

func TestChainWithBuiltin(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0700))
	ts := newTestShell(t)

	assert.Equal(t, 0, ts.Run(t, "cd sub && touch marker"))
	assert.FileExists(t, filepath.Join(dir, "sub", "marker"))
}

func TestBackgroundJob(t *testing.T) {
	ts := newTestShell(t)
	reaper := jobs.NewReaper(ts.Jobs, jobs.OnReap(ts.JobDone))
	reaper.Start(context.Background())
	defer reaper.Stop()
	ts.Reaper = reaper

	start := time.Now()
	assert.Equal(t, 0, ts.Run(t, "sleep 0.5 &"))
	assert.Less(t, time.Since(start), 400*time.Millisecond, "background jobs aren't waited on")

	list := ts.Jobs.List()
	require.Len(t, list, 1)
	assert.Equal(t, "sleep 0.5 &", list[0].Name)
	assert.Contains(t, ts.Errors(t), "[1] ")

	assert.Eventually(t, func() bool {
		return ts.Jobs.Len() == 0
	}, 10*time.Second, 20*time.Millisecond)
}

func TestJobNoticeColor(t *testing.T) {
	ts := newTestShell(t)
	ts.Colors = NewColorPrinter(config.ColorAlways, ts.stderr)
	reaper := jobs.NewReaper(ts.Jobs, jobs.OnReap(ts.JobDone))
	reaper.Start(context.Background())
	defer reaper.Stop()
	ts.Reaper = reaper

	assert.Equal(t, 0, ts.Run(t, "sleep 0.1 &"))
	assert.Contains(t, ts.Errors(t), "\x1b[34;1m[1] ")

	assert.Eventually(t, func() bool {
		return ts.Jobs.Len() == 0
	}, 10*time.Second, 20*time.Millisecond)
}

func TestBackgroundNotFound(t *testing.T) {
	ts := newTestShell(t)

	assert.Equal(t, 127, ts.Run(t, "bshell-missing-program &"))
	assert.Zero(t, ts.Jobs.Len())
	assert.Contains(t, ts.Errors(t), "command not found")
}

func TestCd(t *testing.T) {
	t.Run("home", func(t *testing.T) {
		chdirTemp(t)
		home, err := filepath.EvalSymlinks(t.TempDir())
		require.NoError(t, err)
		t.Setenv(EnvHome, home)
		ts := newTestShell(t)

		assert.Equal(t, 0, ts.Run(t, "cd"))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, home, wd)
		assert.Equal(t, home, os.Getenv(EnvPWD))
	})

	t.Run("path", func(t *testing.T) {
		dir := chdirTemp(t)
		require.NoError(t, os.Mkdir(filepath.Join(dir, "child"), 0700))
		ts := newTestShell(t)

		assert.Equal(t, 0, ts.Run(t, "cd child"))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "child"), wd)
	})

	t.Run("too many arguments", func(t *testing.T) {
		dir := chdirTemp(t)
		ts := newTestShell(t)

		assert.Equal(t, 2, ts.Run(t, "cd a b"))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, dir, wd)
		assert.Equal(t, "bshell: cd: only takes one argument but 2 were provided\n", ts.Errors(t))
	})

	t.Run("nonexistent", func(t *testing.T) {
		dir := chdirTemp(t)
		ts := newTestShell(t)

		assert.Equal(t, 1, ts.Run(t, "cd /nonexistent"))
		wd, err := os.Getwd()
		require.NoError(t, err)
		assert.Equal(t, dir, wd)
		assert.Contains(t, ts.Errors(t), "bshell: cd: ")
		assert.Contains(t, ts.Errors(t), "no such file or directory")
	})
}

func TestExit(t *testing.T) {
	ts := newTestShell(t)
	code := -1
	ts.Exit = func(c int) { code = c }

	ts.Run(t, "exit 3")
	assert.Equal(t, 0, code)
}

func TestJobsBuiltin(t *testing.T) {
	ts := newTestShell(t)
	ts.Jobs.Add("sleep 10 &", 100, 100)
	ts.Jobs.Add("yes &", 200, 200)

	assert.Equal(t, 0, ts.Run(t, "jobs"))
	assert.Equal(t, 0, ts.Run(t, "jobs -l"))
	assert.Equal(t, 0, ts.Run(t, "jobs -p"))
	assert.Equal(t, strings.Join([]string{
		"[1]  Running  sleep 10 &",
		"[2]  Running  yes &",
		"[1]  100 Running  sleep 10 &",
		"[2]  200 Running  yes &",
		"100",
		"200",
		"",
	}, "\n"), ts.Output(t))

	assert.Equal(t, 2, ts.Run(t, "jobs -x"))
	assert.Contains(t, ts.Errors(t), "usage: jobs [-lp]")
}

func TestRunLineSyntaxError(t *testing.T) {
	ts := newTestShell(t)

	ts.RunLine("echo $HOME\n")
	assert.Equal(t, 2, ts.LastStatus())
	assert.Contains(t, ts.Errors(t), "bshell: syntax error")
	assert.Empty(t, ts.Output(t))
}

func TestExecuteEmpty(t *testing.T) {
	ts := newTestShell(t)
	ts.Run(t, "false")

	ts.Execute(command.Empty{})
	ts.Execute(nil)
	assert.Equal(t, 1, ts.LastStatus(), "empty lines keep the last status")
}

func TestEvents(t *testing.T) {
	ts := newTestShell(t)
	var buf bytes.Buffer
	ts.Events = logger.NewJSONLinesLogRecorder(&buf).NewSession()

	ts.Run(t, "true")
	ts.Run(t, "bshell-missing-program")
	ts.Run(t, "jobs")

	var report logger.Report
	require.NoError(t, logger.ReadJSONLinesLog(&buf, report.Update))

	assert.Equal(t, 1, report.Launch.CommandNames.Get("true"))
	assert.Equal(t, 1, report.Exit.Statuses.Get("0"))
	assert.Equal(t, 1, report.Builtin.CommandNames.Get("jobs"))
	assert.Zero(t, report.InvalidEntries)
	require.NotNil(t, report.Failure.Failures)
	assert.Equal(t, 4, report.LogEntries)
}
