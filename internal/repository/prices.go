package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"signalfolio/types"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// csvDate reads YYYY-MM-DD, also accepting a trailing time component.
type csvDate time.Time

func (d *csvDate) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", s, err)
	}
	*d = csvDate(t)
	return nil
}

func (d csvDate) MarshalCSV() (string, error) {
	return time.Time(d).Format(time.DateOnly), nil
}

type priceRow struct {
	Ticker string          `csv:"ticker"`
	Date   csvDate         `csv:"date"`
	Open   decimal.Decimal `csv:"open"`
	High   decimal.Decimal `csv:"high"`
	Low    decimal.Decimal `csv:"low"`
	Close  decimal.Decimal `csv:"close"`
	Volume decimal.Decimal `csv:"volume"`
}

// PriceFile is a long-format price CSV: ticker,date,open,high,low,close,volume.
type PriceFile struct {
	path string
}

func NewPriceFile(path string) *PriceFile {
	return &PriceFile{path: path}
}

func (f *PriceFile) Path() string {
	return f.path
}

// LoadPrices reads the file and returns the requested tickers' bars within [start, end].
// Ticker matching is case-insensitive; results are keyed by the requested spelling.
func (f *PriceFile) LoadPrices(ctx context.Context, tickers []string, start, end time.Time) (map[string][]types.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer file.Close()

	all, err := ReadPrices(file)
	if err != nil {
		return nil, err
	}
	return selectPrices(all, tickers, start, end), nil
}

// LoadAll returns every ticker in the file.
func (f *PriceFile) LoadAll() (map[string][]types.PriceBar, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer file.Close()
	return ReadPrices(file)
}

// Save replaces the file atomically.
func (f *PriceFile) Save(series map[string][]types.PriceBar) error {
	return writeAtomic(f.path, func(w io.Writer) error { return WritePrices(w, series) })
}

// ReadPrices groups rows per ticker, ascending by date. A duplicate (ticker, date) keeps the last row.
func ReadPrices(r io.Reader) (map[string][]types.PriceBar, error) {
	var rows []*priceRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}

	byTicker := make(map[string]map[time.Time]types.PriceBar)
	for _, row := range rows {
		ticker := strings.TrimSpace(row.Ticker)
		if ticker == "" {
			continue
		}
		date := time.Time(row.Date)
		if byTicker[ticker] == nil {
			byTicker[ticker] = make(map[time.Time]types.PriceBar)
		}
		byTicker[ticker][date] = types.PriceBar{
			Ticker: ticker,
			Date:   date,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		}
	}

	out := make(map[string][]types.PriceBar, len(byTicker))
	for ticker, bars := range byTicker {
		series := make([]types.PriceBar, 0, len(bars))
		for _, b := range bars {
			series = append(series, b)
		}
		sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
		out[ticker] = series
	}
	return out, nil
}

// WritePrices writes tickers in ascending order, each ascending by date.
func WritePrices(w io.Writer, series map[string][]types.PriceBar) error {
	tickers := make([]string, 0, len(series))
	for t := range series {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var rows []*priceRow
	for _, t := range tickers {
		for _, b := range series[t] {
			rows = append(rows, &priceRow{
				Ticker: t,
				Date:   csvDate(b.Date),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			})
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write prices: %w", err)
	}
	return nil
}

func selectPrices(all map[string][]types.PriceBar, tickers []string, start, end time.Time) map[string][]types.PriceBar {
	folded := make(map[string]string, len(all))
	for t := range all {
		folded[strings.ToUpper(t)] = t
	}

	out := make(map[string][]types.PriceBar, len(tickers))
	for _, want := range tickers {
		key, ok := folded[strings.ToUpper(want)]
		if !ok {
			continue
		}
		var bars []types.PriceBar
		for _, b := range all[key] {
			if !start.IsZero() && b.Date.Before(start) {
				continue
			}
			if !end.IsZero() && b.Date.After(end) {
				continue
			}
			b.Ticker = want
			bars = append(bars, b)
		}
		if len(bars) > 0 {
			out[want] = bars
		}
	}
	return out
}

// writeAtomic writes to a temporary file in the target directory and renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
