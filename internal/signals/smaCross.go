package signals

import (
	"fmt"

	"signalfolio/types"

	"github.com/montanaflynn/stats"
)

// SMACross buys when the fast moving average of closes crosses above the slow one and sells on the cross below.
type SMACross struct {
	Fast int
	Slow int
}

func NewSMACross(fast, slow int) *SMACross {
	return &SMACross{Fast: fast, Slow: slow}
}

func (s *SMACross) Name() string {
	return "sma_cross"
}

func (s *SMACross) Decide(bars []types.PriceBar) ([]types.Decision, error) {
	if s.Fast <= 0 || s.Slow <= s.Fast {
		return nil, fmt.Errorf("sma_cross periods fast=%d slow=%d", s.Fast, s.Slow)
	}
	if err := needBars(bars, s.Slow+1); err != nil {
		return nil, err
	}

	closes := closesOf(bars)
	var (
		e        edge
		prevDiff float64
	)
	for i := s.Slow - 1; i < len(closes); i++ {
		fast, err := stats.Mean(closes[i-s.Fast+1 : i+1])
		if err != nil {
			return nil, err
		}
		slow, err := stats.Mean(closes[i-s.Slow+1 : i+1])
		if err != nil {
			return nil, err
		}
		diff := fast - slow
		if i >= s.Slow {
			switch {
			case prevDiff <= 0 && diff > 0:
				e.emit(s.Name(), bars[i], types.ActionBuy)
			case prevDiff >= 0 && diff < 0:
				e.emit(s.Name(), bars[i], types.ActionSell)
			}
		}
		prevDiff = diff
	}
	return e.out, nil
}

func closesOf(bars []types.PriceBar) stats.Float64Data {
	out := make(stats.Float64Data, len(bars))
	for i, b := range bars {
		out[i] = b.Close.InexactFloat64()
	}
	return out
}
