package core

import (
	"fmt"
	"os"
	"sort"

	"github.com/pborman/getopt/v2"
)

const (
	EnvHome = "HOME"
	EnvPWD  = "PWD"
	EnvUser = "USER"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]Builtin)

// Builtin is a command run inside the shell process.
type Builtin interface {
	Main(x *Executor, args []string) int
}

type BuiltinFunc func(x *Executor, args []string) int

func (f BuiltinFunc) Main(x *Executor, args []string) int {
	return f(x, args)
}

var _ Builtin = (BuiltinFunc)(nil)

// UsageError is reported when a builtin is called with the wrong arguments.
type UsageError struct {
	Builtin string
	Msg     string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Builtin, e.Msg)
}

// BuiltinNames returns the sorted names of every builtin.
func BuiltinNames() []string {
	var names []string
	for name := range AllBuiltins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cd is the cd shell builtin
func Cd(x *Executor, args []string) int {
	var dir string
	switch len(args) {
	case 1:
		home, err := os.UserHomeDir()
		if err != nil {
			x.report(args, fmt.Errorf("%s: %w", args[0], err))
			return 1
		}
		dir = home
	case 2:
		dir = args[1]
	default:
		x.report(args, &UsageError{
			Builtin: args[0],
			Msg:     fmt.Sprintf("only takes one argument but %d were provided", len(args)-1),
		})
		return 2
	}

	if err := os.Chdir(dir); err != nil {
		x.report(args, fmt.Errorf("%s: %w", args[0], err))
		return 1
	}

	// Children inherit the directory, PWD tells them how it was reached.
	if wd, err := os.Getwd(); err == nil {
		os.Setenv(EnvPWD, wd)
	}
	return 0
}

// Exit quits the shell
func Exit(x *Executor, args []string) int {
	x.Exit(0)
	return 0
}

// Jobs lists the background jobs that haven't been collected yet.
func Jobs(x *Executor, args []string) int {
	opts := getopt.New()
	long := opts.Bool('l', "list process IDs in addition to the normal information")
	pidsOnly := opts.Bool('p', "list process IDs only")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := x.Stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-lp]")
		fmt.Fprintln(w, "Display status of background jobs.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		if err != nil {
			return 2
		}
		return 0
	}

	w := x.Stdout
	for _, job := range x.Jobs.List() {
		switch {
		case *pidsOnly:
			fmt.Fprintln(w, job.Pid)
		case *long:
			fmt.Fprintf(w, "[%d]  %d %-8s %s\n", job.Number, job.Pid, job.State, job.Name)
		default:
			fmt.Fprintf(w, "[%d]  %-8s %s\n", job.Number, job.State, job.Name)
		}
	}
	return 0
}

// Help lists the builtins.
func Help(x *Executor, args []string) int {
	w := x.Stdout
	fmt.Fprintln(w, "bshell runs programs found on PATH. Lines may join programs with")
	fmt.Fprintln(w, "|, && or || and a single program may be run in the background with &.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	for _, name := range BuiltinNames() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return 0
}

func init() {
	AllBuiltins["cd"] = BuiltinFunc(Cd)
	AllBuiltins["exit"] = BuiltinFunc(Exit)
	AllBuiltins["jobs"] = BuiltinFunc(Jobs)
	AllBuiltins["help"] = BuiltinFunc(Help)
}
