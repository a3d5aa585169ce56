package types

import (
	"fmt"
	"strings"
)

type Action string
type Direction string
type ExitReason string
type Side string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"

	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"

	ExitSignal    ExitReason = "Signal"
	ExitStopLoss  ExitReason = "StopLoss"
	ExitRebalance ExitReason = "Rebalance"
	ExitFinal     ExitReason = "Final"

	SideTypeBuy  Side = "BUY"
	SideTypeSell Side = "SELL"
)

// ParseAction accepts BUY/SELL in any case.
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() int64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}
