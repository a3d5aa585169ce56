package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"signalfolio/internal/config"
	"signalfolio/internal/logger"
	"signalfolio/internal/repository"
	"signalfolio/types"

	"github.com/spf13/cobra"
)

func newFetchCmd(cfg *config.Config) *cobra.Command {
	var (
		universes []string
		tickers   []string
		start     string
		end       string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily prices from Yahoo Finance into the universe price files",
		Long: `Download daily OHLCV bars and merge them into each universe's price CSV.
Tickers come from --tickers, else from the assets table when SIGNALFOLIO_DATABASE_URL is set,
else from the tickers already in the price file.
Example: signalfolio fetch --universe SC1 --tickers AAPL,MSFT --start 2020-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseDate("start", start)
			if err != nil {
				return err
			}
			to, err := parseDate("end", end)
			if err != nil {
				return err
			}
			if to.IsZero() {
				to = time.Now().UTC()
			}
			if from.IsZero() {
				from = to.AddDate(-5, 0, 0)
			}

			yahoo := repository.NewYahoo()
			for _, u := range expandUniverses(universes) {
				if err := fetchUniverse(cmd.Context(), cfg, yahoo, u, config.NormalizeTickers(tickers, u), from, to); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&universes, "universe", "u", []string{"SC1"}, "Universes or shorthands (SC, MC, LC, Micro, Stocks, Crypto)")
	cmd.Flags().StringSliceVarP(&tickers, "tickers", "t", nil, "Tickers to download")
	cmd.Flags().StringVar(&start, "start", "", "First date, YYYY-MM-DD (default five years before end)")
	cmd.Flags().StringVar(&end, "end", "", "Last date, YYYY-MM-DD (default today)")

	return cmd
}

func fetchUniverse(ctx context.Context, cfg *config.Config, yahoo *repository.Yahoo, universe string, tickers []string, start, end time.Time) error {
	log := logger.FromContext(ctx).With("universe", universe)
	file := repository.NewPriceFile(cfg.PriceFile(universe))

	series, err := file.LoadAll()
	switch {
	case errors.Is(err, os.ErrNotExist):
		series = make(map[string][]types.PriceBar)
	case err != nil:
		return err
	}

	if len(tickers) == 0 {
		tickers, err = knownTickers(ctx, cfg, universe, series)
		if err != nil {
			return err
		}
	}
	if len(tickers) == 0 {
		log.Warnw("no tickers to fetch")
		return nil
	}

	var fetched, failed int
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		bars, err := yahoo.FetchDailyBars(ctx, ticker, start, end)
		if err != nil {
			log.Warnw("fetch failed", "ticker", ticker, "error", err)
			failed++
			continue
		}
		series[ticker] = bars
		fetched++
	}

	if err := file.Save(series); err != nil {
		return fmt.Errorf("save %s: %w", file.Path(), err)
	}
	log.Infow("prices saved", "file", file.Path(), "fetched", fetched, "failed", failed, "tickers", len(series))
	return nil
}

func knownTickers(ctx context.Context, cfg *config.Config, universe string, series map[string][]types.PriceBar) ([]string, error) {
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return db.ListTickers(ctx, config.AssetType(universe))
	}

	out := make([]string, 0, len(series))
	for t := range series {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
