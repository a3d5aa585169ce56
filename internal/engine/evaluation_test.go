package engine

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"signalfolio/types"

	"github.com/stretchr/testify/require"
)

func closes(ticker string, prices ...string) []types.PriceBar {
	bars := make([]types.PriceBar, 0, len(prices))
	for i, p := range prices {
		bars = append(bars, priceBar(ticker, i+1, p, p))
	}
	return bars
}

func TestEvaluateStrategy(t *testing.T) {
	// Returns: d2 +10%, d3 -10%, d4 +20%, d5 0%
	bars := closes("X", "100", "110", "99", "118.8", "118.8")
	decisions := []types.Decision{buy("X", "s", 2), sell("X", "s", 4)}

	ev := evaluateStrategy(bars, decisions)

	// Held on d2 and d3 (d4 is the sell day).
	require.InDelta(t, 0.0, ev.ShortTerm.CumReturn, 1e-9)
	require.InDelta(t, 0.5, ev.ShortTerm.Accuracy, 1e-9)
	require.Equal(t, ev.ShortTerm, ev.MediumTerm)
	require.Equal(t, ev.ShortTerm, ev.LongTerm)
	require.Equal(t, ev.ShortTerm, ev.BuyHold)
	require.InDelta(t, 0.188, ev.BuyAndHoldReturn, 1e-9)
}

func TestEvaluateStrategy_HoldWindowsExpire(t *testing.T) {
	var bars []types.PriceBar
	price := 100
	for d := 1; d <= 30; d++ {
		bars = append(bars, priceBar("X", d, "1", strconv.Itoa(price)))
		price++
	}
	ev := evaluateStrategy(bars, []types.Decision{buy("X", "s", 1)})

	// Short-term window closes after 20 days; the others stay open.
	require.Less(t, ev.ShortTerm.CumReturn, ev.MediumTerm.CumReturn)
	require.Equal(t, ev.MediumTerm, ev.BuyHold)
	// The buy day itself has no return.
	require.InDelta(t, 20.0/21.0, ev.ShortTerm.Accuracy, 1e-9)
	require.InDelta(t, 29.0/30.0, ev.BuyHold.Accuracy, 1e-9)
}

func TestEvaluateStrategies_GroupsAndSorts(t *testing.T) {
	series := map[string][]types.PriceBar{
		"B": closes("B", "10", "11"),
		"A": closes("A", "10", "9"),
	}
	decisions := []types.Decision{
		buy("B", "z", 1), buy("B", "a", 1), buy("A", "a", 1),
		buy("MISSING", "a", 1),
	}
	evs := EvaluateStrategies(series, decisions)
	require.Len(t, evs, 3)
	require.Equal(t, [2]string{"A", "a"}, [2]string{evs[0].Ticker, evs[0].Strategy})
	require.Equal(t, [2]string{"B", "a"}, [2]string{evs[1].Ticker, evs[1].Strategy})
	require.Equal(t, [2]string{"B", "z"}, [2]string{evs[2].Ticker, evs[2].Strategy})
}

func TestAverageByStrategy(t *testing.T) {
	evs := []StrategyEvaluation{
		{Ticker: "A", Strategy: "s1", ShortTerm: HoldStats{CumReturn: 0.1, Accuracy: 0.2}},
		{Ticker: "B", Strategy: "s1", ShortTerm: HoldStats{CumReturn: 0.3, Accuracy: 0.4}},
		{Ticker: "A", Strategy: "s2", ShortTerm: HoldStats{Accuracy: 0.9}},
	}
	avgs := AverageByStrategy(evs)
	require.Len(t, avgs, 2)
	require.Equal(t, "s2", avgs[0].Strategy)
	require.Equal(t, "s1", avgs[1].Strategy)
	require.InDelta(t, 0.2, avgs[1].ShortTerm.CumReturn, 1e-9)
	require.InDelta(t, 0.3, avgs[1].ShortTerm.Accuracy, 1e-9)
	require.Empty(t, avgs[1].Ticker)
}

func TestWriteEvaluationCSV(t *testing.T) {
	var buf bytes.Buffer
	evs := []StrategyEvaluation{{Ticker: "A", Strategy: "s", ShortTerm: HoldStats{CumReturn: 0.5, Accuracy: 1}}}
	require.NoError(t, WriteEvaluationCSV(&buf, evs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "ticker,strategy,st_cum_return,st_accuracy,mt_cum_return,mt_accuracy,lt_cum_return,lt_accuracy,bh_cum_return,bh_accuracy,buy_and_hold_return", lines[0])
	require.Equal(t, "A,s,0.500000,1.000000,0.000000,0.000000,0.000000,0.000000,0.000000,0.000000,0.000000", lines[1])

	buf.Reset()
	require.NoError(t, WriteAveragesCSV(&buf, AverageByStrategy(evs)))
	require.True(t, strings.HasPrefix(buf.String(), "strategy,st_cum_return,"))
}
