package signals

import (
	"errors"
	"fmt"

	"signalfolio/types"
)

var ErrNotEnoughBars = errors.New("not enough bars")

// Strategy turns one ticker's price history into its dated Buy/Sell decisions.
// Bars must be ascending by date and belong to a single ticker.
type Strategy interface {
	Name() string
	Decide(bars []types.PriceBar) ([]types.Decision, error)
}

// Defaults are the reference strategies with their standard parameters.
func Defaults() []Strategy {
	return []Strategy{
		NewDonchian(20),
		NewSMACross(10, 30),
		NewRSI(14, 30, 70),
	}
}

// ByName selects strategies from Defaults. An empty list selects all of them.
func ByName(names ...string) ([]Strategy, error) {
	all := Defaults()
	if len(names) == 0 {
		return all, nil
	}
	index := make(map[string]Strategy, len(all))
	for _, s := range all {
		index[s.Name()] = s
	}
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		s, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

func needBars(bars []types.PriceBar, n int) error {
	if len(bars) < n {
		return fmt.Errorf("have %d, need %d: %w", len(bars), n, ErrNotEnoughBars)
	}
	return nil
}

// edge emits a decision only when the action differs from the previous one.
type edge struct {
	last types.Action
	out  []types.Decision
}

func (e *edge) emit(strategy string, bar types.PriceBar, action types.Action) {
	if action == e.last {
		return
	}
	e.last = action
	e.out = append(e.out, types.NewDecision(bar.Ticker, strategy, bar.Date, action))
}
