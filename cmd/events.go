package cmd

import (
	"fmt"

	"github.com/josephlewis42/bshell/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the log of processes the shell started.",
	Long: `Every shell session appends launches, exits, reaped background jobs,
builtin runs and failures to the event log named in config.yaml.`,
}

var reportSession string

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Summarize launches, exit statuses, reaped jobs and failures.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := cfg.ReadEventLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		var report logger.Report
		err = logger.ReadJSONLinesLog(fd, func(le *logger.LogEntry) {
			if reportSession == "" || le.SessionID == reportSession {
				report.Update(le)
			}
		})
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

func init() {
	reportCommand.Flags().StringVar(&reportSession, "session", "", "only count events from this session ID")

	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
}
