// Package cli provides the command-line interface for reelfacts.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/reelfacts/internal/app"
	"github.com/raphaelgruber/reelfacts/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger
	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error
	application *app.App
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reelfacts",
	Short: "Extract restaurant facts from promotional videos",
	Long: `Reelfacts turns a short restaurant video into structured facts: key frames,
a verified menu, restaurant details and a brand style profile, with a quality
report and a persisted, step-by-step record of every run.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		opts := config.LogOptions{File: cfg.LogFile, Level: cfg.LogLevel}
		if verbose {
			opts.Level = slog.LevelDebug
		} else if cmd == extractCmd && showProgress() {
			// A progress bar owns the terminal; keep console output to warnings.
			warn := slog.LevelWarn
			opts.StderrLevel = &warn
		}
		logger, closeLogger = config.SetupLogger(opts)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil {
			if err := application.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close connections: %v\n", err)
			}
		}
		if closeLogger != nil {
			_ = closeLogger()
		}
	},
}

// getApp builds the application lazily. Commands that only read the ledger
// pass full=false and skip the analysis clients.
func getApp(ctx context.Context, full bool) (*app.App, error) {
	if application != nil {
		return application, nil
	}
	var err error
	if full {
		application, err = app.New(ctx, cfg, logger)
	} else {
		application, err = app.NewLedgerOnly(ctx, cfg, logger)
	}
	if err != nil {
		return nil, err
	}
	return application, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(doctorCmd)
}
