package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"signalfolio/internal/config"
	"signalfolio/internal/engine"
	"signalfolio/internal/logger"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var cfgErr *engine.ConfigurationError
		if errors.As(err, &cfgErr) {
			err = cfgErr
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	var (
		verbose bool
		quiet   bool
		mode    string
		baseDir string
	)
	rootCmd := &cobra.Command{
		Use:   "signalfolio",
		Short: "Strategy signals, evaluation and portfolio backtests",
		Long: `signalfolio downloads daily prices, generates per-strategy buy/sell decisions,
evaluates each strategy on its own and simulates a multi-asset portfolio driven by the combined decisions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				m, err := config.ParseMode(mode)
				if err != nil {
					return &engine.ConfigurationError{Field: "mode", Value: mode, Reason: "must be production, testing or demo"}
				}
				cfg.Mode = m
			}
			if baseDir != "" {
				cfg.BaseDir = baseDir
			}

			log := logger.New(logger.LevelFor(verbose, quiet))
			cmd.SetContext(logger.WithLogger(cmd.Context(), log))
			log.Debugw("configuration", "base_dir", cfg.BaseDir, "mode", cfg.Mode, "batch_size", cfg.BatchSize)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.FromContext(cmd.Context()).Sync()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "Execution mode: production, testing or demo (default from SIGNALFOLIO_MODE)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "Root folder for data, decisions and outputs (default from SIGNALFOLIO_BASE_DIR)")

	rootCmd.AddCommand(newFetchCmd(cfg))
	rootCmd.AddCommand(newSignalsCmd(cfg))
	rootCmd.AddCommand(newEvaluateCmd(cfg))
	rootCmd.AddCommand(newPortfolioCmd(cfg))

	return rootCmd
}
