package engine

import (
	"errors"
	"sort"
	"time"

	"signalfolio/types"

	"github.com/shopspring/decimal"
)

var ErrInsufficientCash = errors.New("insufficient cash for fill")
var ErrPositionExists = errors.New("position already open for ticker")
var ErrNoPosition = errors.New("no open position for ticker")
var ErrInvalidShares = errors.New("share count must be positive")

// portfolio is the single mutable state of a run. The simulator is its only writer.
type portfolio struct {
	cash            decimal.Decimal
	positions       map[string]*types.Position
	trades          []types.Trade
	snapshots       []types.DailySnapshot
	transactions    []types.Transaction
	realizedPnL     decimal.Decimal
	totalCommission decimal.Decimal
	commission      decimal.Decimal
	stopLossPct     decimal.Decimal
}

func newPortfolio(initialCash, commission, stopLossPct decimal.Decimal) *portfolio {
	return &portfolio{
		cash:        initialCash,
		positions:   make(map[string]*types.Position),
		commission:  commission,
		stopLossPct: stopLossPct,
	}
}

// openTickers returns open position tickers in ascending order.
func (p *portfolio) openTickers() []string {
	tickers := make([]string, 0, len(p.positions))
	for t := range p.positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// equityValue sums the signed market value of open positions at their last mark, in ticker order.
func (p *portfolio) equityValue() decimal.Decimal {
	equity := decimal.Zero
	for _, t := range p.openTickers() {
		pos := p.positions[t]
		equity = equity.Add(pos.MarketValue(pos.LastPrice))
	}
	return equity
}

func (p *portfolio) value() decimal.Decimal {
	return p.cash.Add(p.equityValue())
}

func (p *portfolio) stopLossPrice(direction types.Direction, entry decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if direction == types.DirectionShort {
		return entry.Mul(one.Add(p.stopLossPct))
	}
	return entry.Mul(one.Sub(p.stopLossPct))
}

func (p *portfolio) openPosition(ticker string, direction types.Direction, date time.Time, price, shares decimal.Decimal) (*types.Position, error) {
	if _, ok := p.positions[ticker]; ok {
		return nil, ErrPositionExists
	}
	if !shares.IsPositive() {
		return nil, ErrInvalidShares
	}

	notional := price.Mul(shares)
	newCash := p.cash.Sub(p.commission)
	if direction == types.DirectionShort {
		newCash = newCash.Add(notional)
	} else {
		newCash = newCash.Sub(notional)
	}
	if newCash.IsNegative() {
		return nil, ErrInsufficientCash
	}
	p.cash = newCash
	p.totalCommission = p.totalCommission.Add(p.commission)
	p.realizedPnL = p.realizedPnL.Sub(p.commission)

	pos := &types.Position{
		Ticker:        ticker,
		Direction:     direction,
		EntryDate:     date,
		EntryPrice:    price,
		Shares:        shares,
		StopLossPrice: p.stopLossPrice(direction, price),
		Status:        types.PositionOpen,
		LastPrice:     price,
		Commission:    p.commission,
		Cost:          notional,
	}
	p.positions[ticker] = pos
	p.record(date, ticker, entrySide(direction), shares, price, "Entry")
	return pos, nil
}

// closePosition fully liquidates an open position and appends its Trade.
func (p *portfolio) closePosition(ticker string, date time.Time, price decimal.Decimal, reason types.ExitReason) (types.Trade, error) {
	pos, ok := p.positions[ticker]
	if !ok {
		return types.Trade{}, ErrNoPosition
	}

	notional := price.Mul(pos.Shares)
	if pos.Direction == types.DirectionShort {
		p.cash = p.cash.Sub(notional)
	} else {
		p.cash = p.cash.Add(notional)
	}
	p.cash = p.cash.Sub(p.commission)
	p.totalCommission = p.totalCommission.Add(p.commission)

	pos.Commission = pos.Commission.Add(p.commission)
	pos.Status = types.PositionClosed
	pos.ExitDate = date
	pos.ExitPrice = price
	pos.ExitReason = reason
	pos.LastPrice = price
	delete(p.positions, ticker)

	trade := pos.ToTrade()
	p.trades = append(p.trades, trade)
	p.realizedPnL = p.realizedPnL.
		Add(price.Sub(pos.EntryPrice).Mul(pos.Shares).Mul(decimal.NewFromInt(pos.Direction.Sign()))).
		Sub(p.commission)
	p.record(date, ticker, exitSide(pos.Direction), pos.Shares, price, string(reason))
	return trade, nil
}

// resizePosition trims or tops up an open position to shares without closing it.
// Trims carry their gross profit on the position; top-ups move the entry price to the weighted average cost.
func (p *portfolio) resizePosition(ticker string, date time.Time, price, shares decimal.Decimal, reason string) error {
	pos, ok := p.positions[ticker]
	if !ok {
		return ErrNoPosition
	}
	if !shares.IsPositive() {
		return ErrInvalidShares
	}
	delta := shares.Sub(pos.Shares)
	if delta.IsZero() {
		return nil
	}

	sign := decimal.NewFromInt(pos.Direction.Sign())
	// Long top-ups and short trims spend cash.
	cashDelta := price.Mul(delta).Mul(sign).Neg()
	newCash := p.cash.Add(cashDelta).Sub(p.commission)
	if newCash.IsNegative() {
		return ErrInsufficientCash
	}
	p.cash = newCash
	p.totalCommission = p.totalCommission.Add(p.commission)
	pos.Commission = pos.Commission.Add(p.commission)

	side := entrySide(pos.Direction)
	if delta.IsNegative() {
		side = exitSide(pos.Direction)
		gain := price.Sub(pos.EntryPrice).Mul(delta.Abs()).Mul(sign)
		pos.RealizedPnL = pos.RealizedPnL.Add(gain)
		p.realizedPnL = p.realizedPnL.Add(gain)
	} else {
		pos.Cost = pos.Cost.Add(price.Mul(delta))
		pos.EntryPrice = weightedAvg(pos.EntryPrice, pos.Shares, price, delta)
		pos.StopLossPrice = p.stopLossPrice(pos.Direction, pos.EntryPrice)
	}
	p.realizedPnL = p.realizedPnL.Sub(p.commission)

	pos.Shares = shares
	pos.LastPrice = price
	p.record(date, ticker, side, delta.Abs(), price, reason)
	return nil
}

// mark updates the valuation price of an open position.
func (p *portfolio) mark(ticker string, price decimal.Decimal) {
	if pos, ok := p.positions[ticker]; ok {
		pos.LastPrice = price
	}
}

func (p *portfolio) snapshot(date time.Time) types.DailySnapshot {
	equity := p.equityValue()
	snap := types.DailySnapshot{
		Date:           date,
		PortfolioValue: p.cash.Add(equity),
		Cash:           p.cash,
		EquityValue:    equity,
		PositionCount:  len(p.positions),
	}
	p.snapshots = append(p.snapshots, snap)
	return snap
}

func (p *portfolio) record(date time.Time, ticker string, side types.Side, shares, price decimal.Decimal, reason string) {
	p.transactions = append(p.transactions, types.Transaction{
		Date:       date,
		Ticker:     ticker,
		Side:       side,
		Shares:     shares,
		Price:      price,
		Commission: p.commission,
		CashAfter:  p.cash,
		Reason:     reason,
	})
}

func entrySide(d types.Direction) types.Side {
	if d == types.DirectionShort {
		return types.SideTypeSell
	}
	return types.SideTypeBuy
}

func exitSide(d types.Direction) types.Side {
	if d == types.DirectionShort {
		return types.SideTypeBuy
	}
	return types.SideTypeSell
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}

// sharesFor is the whole number of shares budget buys at price.
func sharesFor(price, budget decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !budget.IsPositive() {
		return decimal.Zero
	}
	return budget.Div(price).Floor()
}
