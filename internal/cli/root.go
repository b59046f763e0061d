// Package cli provides the command-line interface for the acquisition service.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"jobmate/acquisition-service/internal/config"
)

var (
	// Version is set at build time.
	Version = "1.0.0"

	// Global flags
	verbose bool

	cfg        *config.Config
	logger     *slog.Logger
	closeLog   func() error
	skipConfig = map[string]bool{"fingerprint": true, "help": true, "completion": true}
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "acquisition",
	Short: "Incremental, deduplicated job acquisition",
	Long: `acquisition fetches job postings page by page, records every posting once per
(search, profile version), and stops paginating as soon as a page holds
nothing new.

Configuration comes from the environment (and an optional .env file).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if skipConfig[cmd.Name()] {
			return nil
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level, _ := config.ParseLevel(cfg.LogLevel)
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(savingsCmd)
	rootCmd.AddCommand(migrateCmd)
}
