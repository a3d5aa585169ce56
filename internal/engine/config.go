package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type SimulationConfig struct {
	InitialCash        decimal.Decimal
	PortfolioSize      int
	StopLossPct        decimal.Decimal
	PriorityStrategy   string
	Policy             Policy
	Rebalance          bool
	RebalanceThreshold decimal.Decimal
	Commission         decimal.Decimal
	// TickerFilter restricts the run to these tickers when non-empty.
	TickerFilter []string
	// Start and End bound the trading calendar when non-zero.
	Start time.Time
	End   time.Time
}

func NewSimulationConfig(initialCash decimal.Decimal, portfolioSize int, stopLossPct decimal.Decimal, priorityStrategy string, policy Policy) *SimulationConfig {
	return &SimulationConfig{
		InitialCash:        initialCash,
		PortfolioSize:      portfolioSize,
		StopLossPct:        stopLossPct,
		PriorityStrategy:   priorityStrategy,
		Policy:             policy,
		RebalanceThreshold: decimal.Zero,
		Commission:         decimal.Zero,
	}
}

// Validate rejects parameters the simulator cannot run with.
func (c *SimulationConfig) Validate() error {
	switch {
	case c.PortfolioSize <= 0:
		return &ConfigurationError{Field: "portfolio_size", Value: c.PortfolioSize, Reason: "must be greater than 0"}
	case c.StopLossPct.IsNegative() || c.StopLossPct.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return &ConfigurationError{Field: "stop_loss_pct", Value: c.StopLossPct, Reason: "must be in [0, 1)"}
	case !c.InitialCash.IsPositive():
		return &ConfigurationError{Field: "initial_cash", Value: c.InitialCash, Reason: "must be greater than 0"}
	case c.Commission.IsNegative():
		return &ConfigurationError{Field: "commission", Value: c.Commission, Reason: "must not be negative"}
	case c.RebalanceThreshold.IsNegative():
		return &ConfigurationError{Field: "rebalance_threshold", Value: c.RebalanceThreshold, Reason: "must not be negative"}
	case !c.Start.IsZero() && !c.End.IsZero() && c.End.Before(c.Start):
		return &ConfigurationError{Field: "end", Value: c.End.Format(time.DateOnly), Reason: "is before start"}
	}
	return c.Policy.validate()
}

// includes reports whether the ticker passes the ticker filter.
func (c *SimulationConfig) includes(ticker string) bool {
	if len(c.TickerFilter) == 0 {
		return true
	}
	for _, t := range c.TickerFilter {
		if strings.EqualFold(t, ticker) {
			return true
		}
	}
	return false
}

type ReportingConfig struct {
	outputDir    string
	printTrades  bool
	showProgress bool
}

func NewReportingConfig(outputDir string, printTrades, showProgress bool) *ReportingConfig {
	return &ReportingConfig{
		outputDir:    outputDir,
		printTrades:  printTrades,
		showProgress: showProgress,
	}
}
