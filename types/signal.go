package types

import (
	"time"
)

// Decision is a dated Buy/Sell event emitted by one strategy for one ticker.
type Decision struct {
	Ticker   string    `json:"ticker"`
	Strategy string    `json:"strategy"`
	Date     time.Time `json:"date"`
	Action   Action    `json:"action"`
}

func NewDecision(ticker, strategy string, date time.Time, action Action) Decision {
	return Decision{
		Ticker:   ticker,
		Strategy: strategy,
		Date:     date,
		Action:   action,
	}
}

// AggregatedSignal is the combined view of every Decision for one ticker that executes on Date.
type AggregatedSignal struct {
	Ticker string
	// Date is the trading date the signal executes on, one trading day after SignalDate.
	Date       time.Time
	SignalDate time.Time

	PriorityScore    int
	Candidate        bool
	Exit             bool
	CombinedPosition float64

	Buys       int
	Sells      int
	Strategies int
}
