package repository

import (
	"context"
	"fmt"
	"time"

	"signalfolio/types"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/shopspring/decimal"
)

type barIterator interface {
	Next() bool
	Bar() *finance.ChartBar
	Err() error
}

// Yahoo downloads daily bars from Yahoo Finance.
type Yahoo struct {
	chart func(params *chart.Params) barIterator
}

func NewYahoo() *Yahoo {
	return &Yahoo{
		chart: func(params *chart.Params) barIterator { return chart.Get(params) },
	}
}

// FetchDailyBars downloads the ticker's daily bars in [start, end].
func (y *Yahoo) FetchDailyBars(ctx context.Context, ticker string, start, end time.Time) ([]types.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := &chart.Params{
		Symbol:   ticker,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}
	iter := y.chart(params)

	var bars []types.PriceBar
	for iter.Next() {
		bar := iter.Bar()
		if bar == nil || !bar.Close.IsPositive() {
			continue
		}
		bars = append(bars, types.PriceBar{
			Ticker: ticker,
			Date:   dateOnly(time.Unix(int64(bar.Timestamp), 0).UTC()),
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: decimal.NewFromInt(int64(bar.Volume)),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to get prices for %s: %w", ticker, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("ticker %s %w", ticker, ErrNoPrices)
	}
	return bars, nil
}
