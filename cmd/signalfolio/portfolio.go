package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"signalfolio/internal/config"
	"signalfolio/internal/engine"
	"signalfolio/internal/logger"
	"signalfolio/internal/repository"
	"signalfolio/types"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

const (
	sourceCSV = "csv"
	sourceDB  = "db"
)

type priceLoader interface {
	LoadPrices(ctx context.Context, tickers []string, start, end time.Time) (map[string][]types.PriceBar, error)
}

type portfolioFlags struct {
	universes          []string
	tickers            []string
	strategies         []string
	size               int
	stopLoss           string
	priority           string
	policy             string
	cash               string
	commission         string
	rebalance          bool
	rebalanceThreshold string
	start              string
	end                string
	output             string
	printTrades        bool
	showProgress       bool
	persist            bool
	source             string
}

func newPortfolioCmd(cfg *config.Config) *cobra.Command {
	var f portfolioFlags
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Simulate a portfolio driven by the combined strategy decisions",
		Long: `Aggregate every strategy's decisions per ticker and day, then run the daily portfolio
simulation with position limits, stop-loss and optional rebalancing.
Example: signalfolio portfolio --universe SC1 --size 20 --stop-loss 0.1 --priority donchian`,
		RunE: func(cmd *cobra.Command, args []string) error {
			simCfg, err := f.simulationConfig()
			if err != nil {
				return err
			}
			if err := simCfg.Validate(); err != nil {
				return err
			}
			if f.source != sourceCSV && f.source != sourceDB {
				return &engine.ConfigurationError{Field: "source", Value: f.source, Reason: "must be csv or db"}
			}
			if (f.persist || f.source == sourceDB) && cfg.DatabaseURL == "" {
				return &engine.ConfigurationError{Field: "database_url", Value: "", Reason: "is required for --persist and --source db"}
			}

			ctx := cmd.Context()
			var db *repository.Database
			if f.persist || f.source == sourceDB {
				db, err = repository.NewDatabase(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer db.Close()
				if f.persist {
					if err := db.Migrate(ctx); err != nil {
						return err
					}
				}
			}

			now := time.Now()
			for _, u := range expandUniverses(f.universes) {
				if err := runPortfolio(ctx, cfg, f, *simCfg, db, u, now); err != nil {
					return fmt.Errorf("%s: %w", u, err)
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&f.universes, "universe", "u", []string{"SC1"}, "Universes or shorthands")
	flags.StringSliceVarP(&f.tickers, "tickers", "t", nil, "Restrict the run to these tickers (default every ticker of the universe)")
	flags.StringSliceVar(&f.strategies, "strategies", nil, "Only use decisions from these strategies")
	flags.IntVar(&f.size, "size", 10, "Maximum number of simultaneous positions")
	flags.StringVar(&f.stopLoss, "stop-loss", "0.1", "Stop-loss fraction of the entry price, 0 disables")
	flags.StringVar(&f.priority, "priority", "", "Priority strategy for ranked allocation (empty counts every strategy)")
	flags.StringVar(&f.policy, "policy", string(engine.PolicyRankedAllocation), "ranked-allocation, average, majority, unanimous or min-agree(k)")
	flags.StringVar(&f.cash, "cash", "10000", "Starting cash")
	flags.StringVar(&f.commission, "commission", "0", "Flat commission per fill")
	flags.BoolVar(&f.rebalance, "rebalance", false, "Rebalance open positions to equal weight every day")
	flags.StringVar(&f.rebalanceThreshold, "rebalance-threshold", "0", "Minimum weight drift before a position is rebalanced")
	flags.StringVar(&f.start, "start", "", "First trading date, YYYY-MM-DD")
	flags.StringVar(&f.end, "end", "", "Last trading date, YYYY-MM-DD")
	flags.StringVarP(&f.output, "output", "o", "", "Output folder (default from mode and universe)")
	flags.BoolVar(&f.printTrades, "print-trades", false, "Print every closed trade")
	flags.BoolVar(&f.showProgress, "progress", false, "Show a progress bar")
	flags.BoolVar(&f.persist, "persist", false, "Store the run in PostgreSQL")
	flags.StringVar(&f.source, "source", sourceCSV, "Price source: csv or db")

	return cmd
}

func (f portfolioFlags) simulationConfig() (*engine.SimulationConfig, error) {
	policy, err := engine.ParsePolicy(f.policy)
	if err != nil {
		return nil, err
	}
	cash, err := decimalFlag("initial_cash", f.cash)
	if err != nil {
		return nil, err
	}
	stopLoss, err := decimalFlag("stop_loss_pct", f.stopLoss)
	if err != nil {
		return nil, err
	}
	commission, err := decimalFlag("commission", f.commission)
	if err != nil {
		return nil, err
	}
	threshold, err := decimalFlag("rebalance_threshold", f.rebalanceThreshold)
	if err != nil {
		return nil, err
	}
	start, err := parseDate("start", f.start)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("end", f.end)
	if err != nil {
		return nil, err
	}

	c := engine.NewSimulationConfig(cash, f.size, stopLoss, f.priority, policy)
	c.Commission = commission
	c.Rebalance = f.rebalance
	c.RebalanceThreshold = threshold
	c.Start = start
	c.End = end
	return c, nil
}

func decimalFlag(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &engine.ConfigurationError{Field: field, Value: value, Reason: "must be a number"}
	}
	return d, nil
}

func runPortfolio(ctx context.Context, cfg *config.Config, f portfolioFlags, simCfg engine.SimulationConfig, db *repository.Database, universe string, now time.Time) error {
	log := logger.FromContext(ctx).With("universe", universe)

	var (
		prices          priceLoader
		universeTickers []string
	)
	switch f.source {
	case sourceDB:
		tickers, err := db.ListTickers(ctx, config.AssetType(universe))
		if err != nil {
			return err
		}
		prices, universeTickers = db, tickers
	default:
		file := repository.NewPriceFile(cfg.PriceFile(universe))
		all, err := file.LoadAll()
		if err != nil {
			return err
		}
		for t := range all {
			universeTickers = append(universeTickers, t)
		}
		sort.Strings(universeTickers)
		prices = file
	}

	simCfg.TickerFilter = config.NormalizeTickers(f.tickers, universe)
	if len(simCfg.TickerFilter) == 0 {
		simCfg.TickerFilter = universeTickers
	}

	outputDir := f.output
	if outputDir == "" {
		outputDir = cfg.OutputDir(universe, now)
	}
	decisions := repository.NewDecisionDir(cfg.DecisionDir(universe), f.strategies...)

	eng := engine.NewEngine(prices, decisions, &simCfg, engine.NewReportingConfig(outputDir, f.printTrades, f.showProgress)).
		WithOutput(os.Stdout)
	if f.persist {
		eng = eng.WithStore(db)
	}

	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}
	log.Infow("portfolio run complete", "run_id", result.RunID, "output", outputDir)
	return nil
}
