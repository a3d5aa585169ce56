package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "Open"
	PositionClosed PositionStatus = "Closed"
)

type Position struct {
	Ticker        string
	Direction     Direction
	EntryDate     time.Time
	EntryPrice    decimal.Decimal
	Shares        decimal.Decimal
	StopLossPrice decimal.Decimal
	Status        PositionStatus
	ExitDate      time.Time
	ExitPrice     decimal.Decimal
	ExitReason    ExitReason
	// LastPrice is the most recent mark used for valuation.
	LastPrice  decimal.Decimal
	Commission decimal.Decimal
	// RealizedPnL accumulates the gross profit of shares trimmed while the position was open.
	RealizedPnL decimal.Decimal
	// Cost is the notional paid for every share ever added to the position.
	Cost decimal.Decimal
}

// MarketValue is the signed value of the position at price.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Shares.Mul(price).Mul(decimal.NewFromInt(p.Direction.Sign()))
}

// ToTrade projects a closed position onto its Trade record.
func (p *Position) ToTrade() Trade {
	ret := decimal.Zero
	if p.EntryPrice.IsPositive() {
		ret = p.ExitPrice.Div(p.EntryPrice).Sub(decimal.NewFromInt(1)).
			Mul(decimal.NewFromInt(100)).
			Mul(decimal.NewFromInt(p.Direction.Sign()))
	}
	cost := p.Cost
	if !cost.IsPositive() {
		cost = p.EntryPrice.Mul(p.Shares)
	}
	return Trade{
		Ticker:      p.Ticker,
		Direction:   p.Direction,
		EntryDate:   p.EntryDate,
		EntryPrice:  p.EntryPrice,
		ExitDate:    p.ExitDate,
		ExitPrice:   p.ExitPrice,
		Shares:      p.Shares,
		ReturnPct:   ret,
		ExitReason:  p.ExitReason,
		Commission:  p.Commission,
		RealizedPnL: p.RealizedPnL,
		Cost:        cost,
	}
}

type Trade struct {
	Ticker     string
	Direction  Direction
	EntryDate  time.Time
	EntryPrice decimal.Decimal
	ExitDate   time.Time
	ExitPrice  decimal.Decimal
	Shares     decimal.Decimal
	// ReturnPct is the price return in percent, sign adjusted for shorts.
	ReturnPct  decimal.Decimal
	ExitReason ExitReason
	Commission decimal.Decimal
	// RealizedPnL is the gross profit already taken by partial trims.
	RealizedPnL decimal.Decimal
	Cost        decimal.Decimal
}

// PnL is the realized profit of the trade, trims included, net of every commission.
func (t Trade) PnL() decimal.Decimal {
	return t.ExitPrice.Sub(t.EntryPrice).
		Mul(t.Shares).
		Mul(decimal.NewFromInt(t.Direction.Sign())).
		Add(t.RealizedPnL).
		Sub(t.Commission)
}

// NetReturnPct is PnL as a percentage of Cost.
func (t Trade) NetReturnPct() decimal.Decimal {
	if !t.Cost.IsPositive() {
		return decimal.Zero
	}
	return t.PnL().Div(t.Cost).Mul(decimal.NewFromInt(100))
}

// HoldingDays is the number of calendar days between entry and exit.
func (t Trade) HoldingDays() int {
	return int(t.ExitDate.Sub(t.EntryDate).Hours() / 24)
}

type DailySnapshot struct {
	Date           time.Time
	PortfolioValue decimal.Decimal
	Cash           decimal.Decimal
	EquityValue    decimal.Decimal
	PositionCount  int
}

type Transaction struct {
	Date       time.Time
	Ticker     string
	Side       Side
	Shares     decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	CashAfter  decimal.Decimal
	Reason     string
}
