package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"signalfolio/internal/logger"
	"signalfolio/types"

	"github.com/google/uuid"
)

type priceSource interface {
	LoadPrices(ctx context.Context, tickers []string, start, end time.Time) (map[string][]types.PriceBar, error)
}

type decisionSource interface {
	LoadDecisions(ctx context.Context, tickers []string) ([]types.Decision, error)
}

type runStore interface {
	SaveRun(ctx context.Context, runID string, report *Report, trades []types.Trade, snapshots []types.DailySnapshot) error
}

type Result struct {
	RunID        string
	Trades       []types.Trade
	Snapshots    []types.DailySnapshot
	Transactions []types.Transaction
	Report       *Report
}

type Engine struct {
	prices          priceSource
	decisions       decisionSource
	store           runStore
	config          *SimulationConfig
	reportingConfig *ReportingConfig
	out             io.Writer
}

func NewEngine(prices priceSource, decisions decisionSource, config *SimulationConfig, reportingConfig *ReportingConfig) *Engine {
	if reportingConfig == nil {
		reportingConfig = NewReportingConfig("", false, false)
	}
	return &Engine{
		prices:          prices,
		decisions:       decisions,
		config:          config,
		reportingConfig: reportingConfig,
		out:             io.Discard,
	}
}

// WithStore persists every completed run.
func (e *Engine) WithStore(store runStore) *Engine {
	e.store = store
	return e
}

// WithOutput sets where the printed report goes.
func (e *Engine) WithOutput(w io.Writer) *Engine {
	e.out = w
	return e
}

// Run validates the configuration, loads all inputs, simulates every trading date and reports.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	log := logger.FromContext(ctx)
	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	decisions, err := e.decisions.LoadDecisions(ctx, e.config.TickerFilter)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	decisions = e.filterDecisions(decisions)
	tickers := tickersOf(decisions)
	if len(tickers) == 0 {
		log.Warnw("no decisions to simulate")
	}

	series, err := e.prices.LoadPrices(ctx, tickers, e.config.Start, e.config.End)
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	series = clipSeries(series, e.config.Start, e.config.End)
	calendar := buildCalendar(series, e.config.Start, e.config.End)
	log.Infow("inputs loaded", "tickers", len(tickers), "decisions", len(decisions), "trading_days", len(calendar))

	signals, err := aggregateSignals(ctx, decisions, calendar, e.config.Policy, e.config.PriorityStrategy)
	if err != nil {
		return nil, fmt.Errorf("aggregate signals: %w", err)
	}

	bt := newBacktester(e.config, series, calendar, signals, log, e.reportingConfig.showProgress)
	if err := bt.run(ctx); err != nil {
		return nil, err
	}

	p := bt.portfolio
	report := generateReport(e.config.InitialCash, p.trades, p.snapshots, p.cash, p.realizedPnL, p.totalCommission)
	report.RunID = uuid.NewString()
	report.Policy = e.config.Policy.String()
	for ticker, n := range bt.gaps {
		report.SkippedTickers[ticker] = n
	}

	result := &Result{
		RunID:        report.RunID,
		Trades:       p.trades,
		Snapshots:    p.snapshots,
		Transactions: p.transactions,
		Report:       report,
	}
	log.Infow("simulation finished", "run_id", result.RunID, "trades", len(result.Trades), "final_value", report.FinalValue.StringFixed(2))

	if e.reportingConfig.outputDir != "" {
		if err := writeOutputs(e.reportingConfig.outputDir, result); err != nil {
			return nil, err
		}
	}
	if e.reportingConfig.printTrades {
		if err := writeTradesCSV(e.out, result.Trades); err != nil {
			return nil, err
		}
	}
	printReport(e.out, report)

	if e.store != nil {
		if err := e.store.SaveRun(ctx, result.RunID, report, result.Trades, result.Snapshots); err != nil {
			return nil, fmt.Errorf("persist run: %w", err)
		}
	}
	return result, nil
}

func (e *Engine) filterDecisions(decisions []types.Decision) []types.Decision {
	out := decisions[:0:0]
	for _, d := range decisions {
		if e.config.includes(d.Ticker) {
			out = append(out, d)
		}
	}
	return out
}

func tickersOf(decisions []types.Decision) []string {
	seen := make(map[string]struct{})
	for _, d := range decisions {
		seen[d.Ticker] = struct{}{}
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// clipSeries keeps bars inside [start, end], sorted ascending, dropping empty tickers.
func clipSeries(series map[string][]types.PriceBar, start, end time.Time) map[string][]types.PriceBar {
	out := make(map[string][]types.PriceBar, len(series))
	for ticker, bars := range series {
		clipped := make([]types.PriceBar, 0, len(bars))
		for _, bar := range bars {
			if inRange(bar.Date, start, end) {
				clipped = append(clipped, bar)
			}
		}
		sort.SliceStable(clipped, func(i, j int) bool { return clipped[i].Date.Before(clipped[j].Date) })
		if len(clipped) > 0 {
			out[strings.TrimSpace(ticker)] = clipped
		}
	}
	return out
}
