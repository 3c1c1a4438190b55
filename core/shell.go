package core

import (
	"errors"
	"io"
	"os"
	"os/user"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/bshell/core/config"
	"golang.org/x/term"
)

const DefaultPrompt = "bshell> "

// Shell is the interactive read-eval loop in front of an Executor.
type Shell struct {
	Executor *Executor
	Readline *readline.Instance

	prompt string
}

// NewShell creates a line editor on the executor's standard files.
func NewShell(cfg *config.Configuration, x *Executor) (*Shell, error) {
	historyLimit := cfg.HistoryLimit
	if cfg.HistoryPath() == "" {
		historyLimit = -1
	}

	rlCfg := &readline.Config{
		Stdin:        readline.NewCancelableStdin(x.Stdin),
		Stdout:       x.Stdout,
		Stderr:       x.Stderr,
		HistoryFile:  cfg.HistoryPath(),
		HistoryLimit: historyLimit,
		FuncIsTerminal: func() bool {
			return term.IsTerminal(int(x.Stdin.Fd())) && term.IsTerminal(int(x.Stdout.Fd()))
		},
	}

	if err := rlCfg.Init(); err != nil {
		return nil, err
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return nil, err
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	return &Shell{
		Executor: x,
		Readline: rl,
		prompt:   prompt,
	}, nil
}

// Prompt expands the configured prompt for the current state.
func (s *Shell) Prompt() string {
	return s.Executor.Colors.Sprintf(ColorBoldGreen, "%s", expandPrompt(s.prompt, currentPromptEnv()))
}

// Run reads and executes lines until input ends and returns the status of the
// last command.
func (s *Shell) Run() int {
	for {
		s.Readline.SetPrompt(s.Prompt())
		line, err := s.Readline.Readline()

		switch {
		case errors.Is(err, io.EOF):
			return s.Executor.LastStatus() // Input closed, quit.

		case errors.Is(err, readline.ErrInterrupt):
			continue // ^C discards the line.

		case err != nil:
			s.Executor.Debug.Printf("Error readline: %v", err)
			return 1

		case strings.TrimSpace(line) == "":
			continue // empty line

		default:
			s.Executor.RunLine(line)
		}
	}
}

func (s *Shell) Close() error {
	return s.Readline.Close()
}

type promptEnv struct {
	User string
	Host string
	Dir  string
	Home string
	Root bool
}

func currentPromptEnv() promptEnv {
	env := promptEnv{
		User: os.Getenv(EnvUser),
		Root: os.Geteuid() == 0,
	}
	if env.User == "" {
		if u, err := user.Current(); err == nil {
			env.User = u.Username
		}
	}
	env.Host, _ = os.Hostname()
	env.Dir, _ = os.Getwd()
	env.Home, _ = os.UserHomeDir()
	return env
}

// expandPrompt replaces \u, \h, \w and \$ in prompt.
func expandPrompt(prompt string, env promptEnv) string {
	if !strings.Contains(prompt, `\`) {
		return prompt
	}

	dir := env.Dir
	if env.Home != "" && (dir == env.Home || strings.HasPrefix(dir, env.Home+"/")) {
		dir = "~" + strings.TrimPrefix(dir, env.Home)
	}

	sigil := "$"
	if env.Root {
		sigil = "#"
	}

	return strings.NewReplacer(
		`\u`, env.User,
		`\h`, env.Host,
		`\w`, dir,
		`\$`, sigil,
	).Replace(prompt)
}
