package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalfolio/internal/logger"
	"signalfolio/types"

	"github.com/jackc/pgx/v5"
)

// GetDailyBars returns the ticker's bars in [start, end], ascending. Zero bounds are open.
func (db *Database) GetDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]types.PriceBar, error) {
	asset, err := db.GetAssetByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	args := dailyBarsParams{AssetID: int32(asset.Id)}
	if !start.IsZero() {
		args.Start = &start
	}
	if !end.IsZero() {
		args.End = &end
	}
	rows, err := db.bars.GetDailyBars(ctx, args)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrNoPrices)
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("ticker %s %w", ticker, ErrNoPrices)
	}
	return convertBars(rows, asset.Ticker), nil
}

// LoadPrices loads every ticker that has bars. Unknown tickers and tickers without bars are skipped.
func (db *Database) LoadPrices(ctx context.Context, tickers []string, start, end time.Time) (map[string][]types.PriceBar, error) {
	log := logger.FromContext(ctx)
	out := make(map[string][]types.PriceBar, len(tickers))
	for _, ticker := range tickers {
		bars, err := db.GetDailyBars(ctx, ticker, start, end)
		if errors.Is(err, ErrAssetNotFound) || errors.Is(err, ErrNoPrices) {
			log.Warnw("no prices for ticker", "ticker", ticker, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", ticker, err)
		}
		out[ticker] = bars
	}
	if len(out) == 0 && len(tickers) > 0 {
		return nil, ErrNoPrices
	}
	return out, nil
}

func convertBars(rows []dailyBarRow, ticker string) []types.PriceBar {
	bars := make([]types.PriceBar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, types.PriceBar{
			Ticker: ticker,
			Date:   dateOnly(row.Date),
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return bars
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
