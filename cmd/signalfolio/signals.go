package main

import (
	"fmt"

	"signalfolio/internal/config"
	"signalfolio/internal/logger"
	"signalfolio/internal/repository"
	"signalfolio/internal/signals"

	"github.com/spf13/cobra"
)

func newSignalsCmd(cfg *config.Config) *cobra.Command {
	var (
		universes    []string
		strategies   []string
		batchSize    int
		showProgress bool
	)
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Generate per-strategy decision files from the universe price files",
		Long: `Run every strategy over every ticker's price history and write one
TICKER_strategy_decisions.csv per pair. Pairs that already have a file are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			selected, err := signals.ByName(strategies...)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("batch-size") {
				batchSize = cfg.BatchSize
			}

			for _, u := range expandUniverses(universes) {
				bars, err := repository.NewPriceFile(cfg.PriceFile(u)).LoadAll()
				if err != nil {
					return fmt.Errorf("%s: %w", u, err)
				}
				dir := repository.NewDecisionDir(cfg.DecisionDir(u))
				gen := signals.NewGenerator(dir, batchSize, selected...).WithProgress(showProgress)

				logger.FromContext(ctx).Infow("generating signals", "universe", u, "tickers", len(bars), "dir", dir.Dir())
				result, err := gen.Run(ctx, bars)
				if err != nil {
					return err
				}
				if result.Failed > 0 {
					logger.FromContext(ctx).Warnw("some tickers failed", "universe", u, "tickers", result.FailedTickers)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&universes, "universe", "u", []string{"SC1"}, "Universes or shorthands")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Strategies to run: donchian, sma_cross, rsi (default all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", signals.DefaultBatchSize, "Tickers processed concurrently (default from SIGNALFOLIO_BATCH_SIZE)")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Show a progress bar")

	return cmd
}
