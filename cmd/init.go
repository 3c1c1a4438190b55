package cmd

import (
	"log"
	"path/filepath"

	"github.com/josephlewis42/bshell/core/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default shell configuration.",
	Long: `Write config.yaml with the default prompt, color mode, history and event
log settings to the directory given by --config. An existing file is left
untouched, so init is safe to run again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		logger := log.New(cmd.ErrOrStderr(), "", 0)

		cfg, err := config.Initialize(cfgPath, logger)
		if err != nil {
			return err
		}

		logger.Printf("Configuration: %s", filepath.Join(cfg.Dir(), config.ConfigurationName))
		if path := cfg.HistoryPath(); path != "" {
			logger.Printf("History: %s", path)
		}
		if path := cfg.EventLogPath(); path != "" {
			logger.Printf("Event log: %s", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
