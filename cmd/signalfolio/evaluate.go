package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"signalfolio/internal/config"
	"signalfolio/internal/engine"
	"signalfolio/internal/logger"
	"signalfolio/internal/repository"

	"github.com/spf13/cobra"
)

func newEvaluateCmd(cfg *config.Config) *cobra.Command {
	var (
		universes  []string
		strategies []string
		label      string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score every strategy on its own against the price history",
		Long: `For every (ticker, strategy) decision file, compute short, medium and long term holding
returns and accuracy plus the buy-and-hold return, then average them per strategy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger.FromContext(ctx)
			expanded := expandUniverses(universes)
			if label == "" {
				label = strings.Join(universes, "_")
			}

			var evaluations []engine.StrategyEvaluation
			for _, u := range expanded {
				series, err := repository.NewPriceFile(cfg.PriceFile(u)).LoadAll()
				if err != nil {
					return fmt.Errorf("%s: %w", u, err)
				}
				tickers := make([]string, 0, len(series))
				for t := range series {
					tickers = append(tickers, t)
				}
				sort.Strings(tickers)

				decisions, err := repository.NewDecisionDir(cfg.DecisionDir(u), strategies...).LoadDecisions(ctx, tickers)
				if errors.Is(err, repository.ErrNoDecisions) {
					log.Warnw("no decisions for universe", "universe", u)
					continue
				}
				if err != nil {
					return err
				}
				evaluations = append(evaluations, engine.EvaluateStrategies(series, decisions)...)
			}
			if len(evaluations) == 0 {
				return fmt.Errorf("evaluate %s: %w", label, repository.ErrNoDecisions)
			}

			results, averages := cfg.PerformanceFile(label), cfg.StrategyAveragesFile(label)
			if err := cfg.EnsureDirectories(filepath.Dir(results)); err != nil {
				return err
			}
			if err := engine.WriteEvaluation(results, averages, evaluations); err != nil {
				return err
			}
			log.Infow("evaluation written", "pairs", len(evaluations), "results", results, "averages", averages)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&universes, "universe", "u", []string{"SC1"}, "Universes or shorthands")
	cmd.Flags().StringSliceVar(&strategies, "strategies", nil, "Only evaluate these strategies")
	cmd.Flags().StringVar(&label, "label", "", "Name used for the output files (default the joined universe names)")

	return cmd
}
