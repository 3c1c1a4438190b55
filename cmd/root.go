package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/josephlewis42/bshell/core"
	"github.com/josephlewis42/bshell/core/config"
	"github.com/josephlewis42/bshell/core/jobs"
	"github.com/josephlewis42/bshell/core/logger"
	"github.com/josephlewis42/bshell/core/proc"
	"github.com/josephlewis42/bshell/core/tty"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string
)

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bshell",
	Short: "A small job control shell",
	Long: `bshell runs programs from PATH in their own process groups, hands them
the terminal while they run in the foreground and collects the ones run in
the background.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return err
		}

		status, err := runShell(cmd, cfg)
		if err != nil {
			return err
		}
		os.Exit(status)
		return nil
	},
}

func runShell(cmd *cobra.Command, cfg *config.Configuration) (int, error) {
	debug := log.New(io.Discard, "", 0)
	if cfg.Debug {
		debug = log.New(cmd.ErrOrStderr(), "[bshell] ", 0)
	}

	events := logger.Discard()
	switch fd, err := cfg.OpenEventLog(); {
	case errors.Is(err, config.ErrEventLogDisabled):
		// Nothing to record to.
	case err != nil:
		return 0, err
	default:
		defer fd.Close()
		events = logger.NewJSONLinesLogRecorder(fd)
	}

	release := proc.HoldJobSignals()
	defer release()

	registry := jobs.NewRegistry()
	x := core.NewExecutor(registry)
	x.Events = events.NewSession()
	x.Debug = debug
	x.Colors = core.NewColorPrinter(cfg.Color, x.Stderr)

	switch terminal, err := tty.Open(); {
	case errors.Is(err, tty.ErrNoControllingTerminal):
		debug.Printf("running without job control: %v", err)
	case err != nil:
		return 0, err
	default:
		defer terminal.Close()
		x.Terminal = terminal
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reaper := jobs.NewReaper(registry, jobs.OnReap(x.JobDone))
	reaper.Start(ctx)
	defer reaper.Stop()
	x.Reaper = reaper

	if cmd.Flags().Changed("command") {
		x.RunLine(commandLine)
		return x.LastStatus(), nil
	}

	sh, err := core.NewShell(cfg, x)
	if err != nil {
		return 0, err
	}
	defer sh.Close()
	return sh.Run(), nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultDir(), "config path")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run a single command line and exit with its status")
}
