package engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"signalfolio/types"

	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// backtester is the daily state machine. Dates are processed strictly in ascending order.
type backtester struct {
	cfg          *SimulationConfig
	calendar     []time.Time
	bars         map[string]map[time.Time]types.PriceBar
	series       map[string][]types.PriceBar
	signals      signalBook
	portfolio    *portfolio
	log          *zap.SugaredLogger
	showProgress bool

	// pendingExits carries exits that could not fill because the price was missing.
	pendingExits   map[string]bool
	// pendingEntries holds flagged candidates that have not opened yet.
	pendingEntries map[string]types.AggregatedSignal
	// weights is the |combined position| each open voting position was last sized to.
	weights        map[string]decimal.Decimal
	gaps           map[string]int
}

func newBacktester(cfg *SimulationConfig, series map[string][]types.PriceBar, calendar []time.Time, signals signalBook, log *zap.SugaredLogger, showProgress bool) *backtester {
	bars := make(map[string]map[time.Time]types.PriceBar, len(series))
	for ticker, bs := range series {
		m := make(map[time.Time]types.PriceBar, len(bs))
		for _, bar := range bs {
			m[bar.Date] = bar
		}
		bars[ticker] = m
	}
	return &backtester{
		cfg:          cfg,
		calendar:     calendar,
		bars:         bars,
		series:       series,
		signals:      signals,
		portfolio:    newPortfolio(cfg.InitialCash, cfg.Commission, cfg.StopLossPct),
		log:          log,
		showProgress: showProgress,
		pendingExits:   make(map[string]bool),
		pendingEntries: make(map[string]types.AggregatedSignal),
		weights:        make(map[string]decimal.Decimal),
		gaps:           make(map[string]int),
	}
}

func (b *backtester) run(ctx context.Context) error {
	bar := initProgressBar(len(b.calendar), b.showProgress)
	for _, date := range b.calendar {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.step(date)
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	b.closeAll()
	return nil
}

// step applies one trading date: stop-losses, signal exits, rebalance, entries, valuation.
func (b *backtester) step(date time.Time) {
	signals := b.signals.on(date)
	stopped := b.applyStopLosses(date)
	b.applySignalExits(date, signals)
	if b.cfg.Rebalance {
		b.rebalance(date)
	}
	b.enter(date, signals, stopped)
	b.valuate(date)
}

func (b *backtester) bar(ticker string, date time.Time) (types.PriceBar, bool) {
	bar, ok := b.bars[ticker][date]
	if !ok || !bar.Close.IsPositive() {
		return types.PriceBar{}, false
	}
	return bar, true
}

func (b *backtester) gap(ticker string, date time.Time, op string) {
	err := &DataGapError{Ticker: ticker, Date: date, Op: op}
	b.gaps[ticker]++
	b.log.Warnw("skipping action", "ticker", ticker, "date", date.Format(time.DateOnly), "op", op, "error", err)
}

func (b *backtester) applyStopLosses(date time.Time) map[string]bool {
	stopped := make(map[string]bool)
	if b.cfg.StopLossPct.IsZero() {
		return stopped
	}
	for _, ticker := range b.portfolio.openTickers() {
		bar, ok := b.bar(ticker, date)
		if !ok {
			continue
		}
		pos := b.portfolio.positions[ticker]
		hit := bar.Close.LessThanOrEqual(pos.StopLossPrice)
		if pos.Direction == types.DirectionShort {
			hit = bar.Close.GreaterThanOrEqual(pos.StopLossPrice)
		}
		if !hit {
			continue
		}
		if _, err := b.portfolio.closePosition(ticker, date, bar.Close, types.ExitStopLoss); err != nil {
			b.log.Errorw("stop-loss close failed", "ticker", ticker, "error", err)
			continue
		}
		delete(b.pendingExits, ticker)
		stopped[ticker] = true
		b.log.Debugw("stop-loss", "ticker", ticker, "date", date.Format(time.DateOnly), "close", bar.Close, "stop", pos.StopLossPrice)
	}
	return stopped
}

func (b *backtester) exitTriggered(pos *types.Position, sig types.AggregatedSignal, ok bool) bool {
	if b.pendingExits[pos.Ticker] {
		return true
	}
	if !ok {
		return false
	}
	if !b.cfg.Policy.voting() {
		return sig.Exit
	}
	if sig.CombinedPosition == 0 {
		return true
	}
	return directionOf(sig.CombinedPosition) != pos.Direction
}

func (b *backtester) applySignalExits(date time.Time, signals map[string]types.AggregatedSignal) {
	for _, ticker := range b.portfolio.openTickers() {
		pos := b.portfolio.positions[ticker]
		sig, ok := signals[ticker]
		if !b.exitTriggered(pos, sig, ok) {
			continue
		}
		bar, ok := b.bar(ticker, date)
		if !ok {
			b.pendingExits[ticker] = true
			b.gap(ticker, date, "exit")
			continue
		}
		if _, err := b.portfolio.closePosition(ticker, date, bar.Close, types.ExitSignal); err != nil {
			b.log.Errorw("signal close failed", "ticker", ticker, "error", err)
			continue
		}
		delete(b.pendingExits, ticker)
	}
}

type resize struct {
	ticker string
	price  decimal.Decimal
	shares decimal.Decimal
}

// rebalance restores positions that drifted from their target weight by more than the threshold.
// The target is one slot under ranked allocation and |combined position| slots under voting.
// Trims run before top-ups so top-ups only use freed cash.
func (b *backtester) rebalance(date time.Time) {
	for _, ticker := range b.portfolio.openTickers() {
		if bar, ok := b.bar(ticker, date); ok {
			b.portfolio.mark(ticker, bar.Close)
		}
	}
	slotCash := b.portfolio.value().Div(decimal.NewFromInt(int64(b.cfg.PortfolioSize)))
	if !slotCash.IsPositive() {
		return
	}

	var trims, topUps []resize
	for _, ticker := range b.portfolio.openTickers() {
		bar, ok := b.bar(ticker, date)
		if !ok {
			continue
		}
		target := slotCash.Mul(b.weight(ticker))
		if !target.IsPositive() {
			continue
		}
		pos := b.portfolio.positions[ticker]
		weight := pos.Shares.Mul(bar.Close)
		deviation := weight.Sub(target).Abs().Div(target)
		if deviation.LessThanOrEqual(b.cfg.RebalanceThreshold) {
			continue
		}
		shares := sharesFor(bar.Close, target)
		switch {
		case shares.IsZero():
			if _, err := b.portfolio.closePosition(ticker, date, bar.Close, types.ExitRebalance); err != nil {
				b.log.Errorw("rebalance close failed", "ticker", ticker, "error", err)
			}
		case shares.LessThan(pos.Shares):
			trims = append(trims, resize{ticker, bar.Close, shares})
		case shares.GreaterThan(pos.Shares):
			topUps = append(topUps, resize{ticker, bar.Close, shares})
		}
	}

	for _, r := range append(trims, topUps...) {
		err := b.portfolio.resizePosition(r.ticker, date, r.price, r.shares, string(types.ExitRebalance))
		if errors.Is(err, ErrInsufficientCash) {
			b.log.Debugw("rebalance top-up skipped", "ticker", r.ticker, "date", date.Format(time.DateOnly))
			continue
		}
		if err != nil {
			b.log.Errorw("rebalance failed", "ticker", r.ticker, "error", err)
		}
	}
}

// enter ranks pending candidates and opens positions into free slots. A flagged candidate
// that finds no slot stays pending on later dates. Under voting policies, open positions
// with an unchanged direction are resized to their new target first.
func (b *backtester) enter(date time.Time, signals map[string]types.AggregatedSignal, stopped map[string]bool) {
	var held []types.AggregatedSignal
	for ticker, sig := range signals {
		switch {
		case sig.Candidate:
			b.pendingEntries[ticker] = sig
		case sig.Exit || b.cfg.Policy.voting():
			delete(b.pendingEntries, ticker)
		}
		if _, open := b.portfolio.positions[ticker]; open && sig.Candidate && !stopped[ticker] && b.cfg.Policy.voting() {
			held = append(held, sig)
		}
	}

	var candidates []types.AggregatedSignal
	for ticker, sig := range b.pendingEntries {
		if _, open := b.portfolio.positions[ticker]; open || stopped[ticker] {
			delete(b.pendingEntries, ticker)
			continue
		}
		candidates = append(candidates, sig)
	}
	if len(candidates) == 0 && len(held) == 0 {
		return
	}

	slotCash := b.portfolio.value().Div(decimal.NewFromInt(int64(b.cfg.PortfolioSize)))

	sort.Slice(held, func(i, j int) bool { return held[i].Ticker < held[j].Ticker })
	for _, sig := range held {
		b.retarget(date, sig, slotCash)
	}

	rankCandidates(candidates)
	slots := b.cfg.PortfolioSize - len(b.portfolio.positions)
	if slots <= 0 {
		return
	}
	if len(candidates) > slots {
		b.log.Debugw("candidates exceed free slots", "date", date.Format(time.DateOnly), "candidates", len(candidates), "slots", slots)
		candidates = candidates[:slots]
	}

	for _, sig := range candidates {
		bar, ok := b.bar(sig.Ticker, date)
		if !ok {
			b.gap(sig.Ticker, date, "entry")
			continue
		}
		price := bar.EntryPrice()
		direction := types.DirectionLong
		weight := decimal.NewFromInt(1)
		if b.cfg.Policy.voting() {
			direction = directionOf(sig.CombinedPosition)
			weight = decimal.NewFromFloat(absFloat(sig.CombinedPosition))
		}
		target := slotCash.Mul(weight)
		shares := sharesFor(price, b.budget(direction, target))
		if shares.IsZero() {
			b.log.Debugw("allocation below one share", "ticker", sig.Ticker, "date", date.Format(time.DateOnly), "price", price, "target", target)
			continue
		}
		if _, err := b.portfolio.openPosition(sig.Ticker, direction, date, price, shares); err != nil {
			b.log.Warnw("entry failed", "ticker", sig.Ticker, "date", date.Format(time.DateOnly), "error", err)
			continue
		}
		delete(b.pendingEntries, sig.Ticker)
		b.weights[sig.Ticker] = weight
	}
}

// weight is the number of slots an open position targets.
func (b *backtester) weight(ticker string) decimal.Decimal {
	if w, ok := b.weights[ticker]; ok && b.cfg.Policy.voting() {
		return w
	}
	return decimal.NewFromInt(1)
}

// budget caps long entries at spendable cash.
func (b *backtester) budget(direction types.Direction, target decimal.Decimal) decimal.Decimal {
	if direction == types.DirectionShort {
		return target
	}
	return decimal.Min(target, b.portfolio.cash.Sub(b.cfg.Commission))
}

func (b *backtester) retarget(date time.Time, sig types.AggregatedSignal, slotCash decimal.Decimal) {
	bar, ok := b.bar(sig.Ticker, date)
	if !ok {
		b.gap(sig.Ticker, date, "resize")
		return
	}
	pos := b.portfolio.positions[sig.Ticker]
	price := bar.EntryPrice()
	weight := decimal.NewFromFloat(absFloat(sig.CombinedPosition))
	b.weights[sig.Ticker] = weight
	target := slotCash.Mul(weight)
	shares := sharesFor(price, target)
	if pos.Direction == types.DirectionLong && shares.GreaterThan(pos.Shares) {
		affordable := pos.Shares.Add(sharesFor(price, b.portfolio.cash.Sub(b.cfg.Commission)))
		shares = decimal.Min(shares, affordable)
	}
	if shares.IsZero() || shares.Equal(pos.Shares) {
		return
	}
	if err := b.portfolio.resizePosition(sig.Ticker, date, price, shares, "Adjust"); err != nil {
		b.log.Debugw("resize skipped", "ticker", sig.Ticker, "date", date.Format(time.DateOnly), "error", err)
	}
}

// valuate marks open positions at the close and appends the day's snapshot.
// A missing close keeps the previous mark.
func (b *backtester) valuate(date time.Time) {
	for _, ticker := range b.portfolio.openTickers() {
		bar, ok := b.bar(ticker, date)
		if !ok {
			b.log.Debugw("stale valuation", "ticker", ticker, "date", date.Format(time.DateOnly))
			continue
		}
		b.portfolio.mark(ticker, bar.Close)
	}
	b.portfolio.snapshot(date)
}

// closeAll force-closes every open position at its last available bar.
func (b *backtester) closeAll() {
	for _, ticker := range b.portfolio.openTickers() {
		pos := b.portfolio.positions[ticker]
		date, price := pos.EntryDate, pos.LastPrice
		if bars := b.series[ticker]; len(bars) > 0 {
			last := bars[len(bars)-1]
			date, price = last.Date, last.Close
		}
		if _, err := b.portfolio.closePosition(ticker, date, price, types.ExitFinal); err != nil {
			b.log.Errorw("final close failed", "ticker", ticker, "error", err)
		}
	}
}

func directionOf(combined float64) types.Direction {
	if combined < 0 {
		return types.DirectionShort
	}
	return types.DirectionLong
}

// buildCalendar is the sorted union of bar dates within [start, end]; zero bounds are open.
func buildCalendar(series map[string][]types.PriceBar, start, end time.Time) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, bars := range series {
		for _, bar := range bars {
			if inRange(bar.Date, start, end) {
				seen[bar.Date] = struct{}{}
			}
		}
	}
	calendar := make([]time.Time, 0, len(seen))
	for d := range seen {
		calendar = append(calendar, d)
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })
	return calendar
}

func inRange(d, start, end time.Time) bool {
	if !start.IsZero() && d.Before(start) {
		return false
	}
	if !end.IsZero() && d.After(end) {
		return false
	}
	return true
}

func initProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	opts := []progressbar.Option{
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Simulating portfolio..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	}
	if !visible {
		opts = append(opts, progressbar.OptionSetWriter(io.Discard))
	}
	return progressbar.NewOptions(maxTicks, opts...)
}
