package engine

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"signalfolio/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func trade(entry, exit string, shares string, entryDay, exitDay int) types.Trade {
	p := &types.Position{
		Ticker:     "X",
		Direction:  types.DirectionLong,
		EntryDate:  day(entryDay),
		EntryPrice: dec(entry),
		ExitDate:   day(exitDay),
		ExitPrice:  dec(exit),
		Shares:     dec(shares),
		ExitReason: types.ExitSignal,
	}
	return p.ToTrade()
}

func tradeWithCommission(entry, exit, shares, commission string) types.Trade {
	tr := trade(entry, exit, shares, 1, 2)
	tr.Commission = dec(commission)
	return tr
}

func snapshots(values ...string) []types.DailySnapshot {
	out := make([]types.DailySnapshot, 0, len(values))
	for i, v := range values {
		out = append(out, types.DailySnapshot{Date: day(i + 1), PortfolioValue: dec(v), Cash: dec(v)})
	}
	return out
}

func TestCalcTradeStats(t *testing.T) {
	tests := []struct {
		name             string
		trades           []types.Trade
		wantWins         int
		wantLosses       int
		wantWinRate      float64
		wantAvgWin       float64
		wantAvgLoss      float64
		wantGrossLoss    float64
		wantProfitFactor float64
	}{
		{
			name: "no trades",
		},
		{
			name:             "no losses gives infinite profit factor",
			trades:           []types.Trade{trade("100", "110", "1", 1, 2), trade("100", "120", "1", 1, 3)},
			wantWins:         2,
			wantWinRate:      1,
			wantAvgWin:       15,
			wantProfitFactor: math.Inf(1),
		},
		{
			name:             "mixed",
			trades:           []types.Trade{trade("100", "130", "1", 1, 2), trade("100", "90", "1", 1, 3), trade("100", "100", "1", 1, 3)},
			wantWins:         1,
			wantLosses:       1,
			wantWinRate:      1.0 / 3.0,
			wantAvgWin:       30,
			wantAvgLoss:      -10,
			wantGrossLoss:    10,
			wantProfitFactor: 3,
		},
		{
			name:             "commission larger than the price gain is a loss",
			trades:           []types.Trade{tradeWithCommission("50", "50.05", "100", "20")},
			wantLosses:       1,
			wantAvgLoss:      -0.3,
			wantGrossLoss:    0.3,
			wantProfitFactor: 0,
		},
		{
			name:             "only flat trades",
			trades:           []types.Trade{trade("100", "100", "1", 1, 2)},
			wantProfitFactor: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var wg sync.WaitGroup
			wg.Add(1)
			got := calcTradeStats(tc.trades, &wg)
			wg.Wait()

			require.Equal(t, len(tc.trades), got.total)
			require.Equal(t, tc.wantWins, got.wins)
			require.Equal(t, tc.wantLosses, got.losses)
			require.InDelta(t, tc.wantWinRate, got.winRate, 1e-9)
			require.InDelta(t, tc.wantAvgWin, got.avgWin, 1e-9)
			require.InDelta(t, tc.wantAvgLoss, got.avgLoss, 1e-9)
			require.InDelta(t, tc.wantGrossLoss, got.grossLoss, 1e-9)
			if got.losses > 0 {
				require.Negative(t, got.avgLoss)
			}
			if math.IsInf(tc.wantProfitFactor, 1) {
				require.True(t, math.IsInf(got.profitFactor, 1), "profit factor = %v", got.profitFactor)
				return
			}
			require.InDelta(t, tc.wantProfitFactor, got.profitFactor, 1e-9)
		})
	}
}

func TestCalcDrawdownMetrics(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	// Peak starts at the initial cash, so an immediate dip counts.
	got := calcDrawdownMetrics(dec("100"), snapshots("90", "120", "60", "150"), &wg)
	wg.Wait()

	require.InDelta(t, 0.5, got.maxDrawdown, 1e-9)
	require.Equal(t, 24*time.Hour, got.duration)

	wg.Add(1)
	got = calcDrawdownMetrics(dec("100"), nil, &wg)
	wg.Wait()
	require.Zero(t, got.maxDrawdown)
}

func TestCalcSharpeRatio(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	sharpe, vol := calcSharpeRatio([]float64{0.01, -0.01, 0.01, -0.01}, &wg)
	wg.Wait()
	require.InDelta(t, 0, sharpe, 1e-12)
	require.InDelta(t, 0.01*math.Sqrt(252), vol, 1e-12)

	wg.Add(1)
	sharpe, vol = calcSharpeRatio([]float64{0.01, 0.03}, &wg)
	wg.Wait()
	// population stdev of {0.01, 0.03} is 0.01
	require.InDelta(t, 2*math.Sqrt(252), sharpe, 1e-9)
	require.InDelta(t, 0.01*math.Sqrt(252), vol, 1e-9)

	wg.Add(1)
	sharpe, _ = calcSharpeRatio([]float64{0.02, 0.02, 0.02}, &wg)
	wg.Wait()
	require.Zero(t, sharpe)
}

func TestCalcCAGR(t *testing.T) {
	snaps := []types.DailySnapshot{
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), PortfolioValue: dec("100")},
		{Date: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(2 * 365.25 * 24 * float64(time.Hour))), PortfolioValue: dec("121")},
	}
	var wg sync.WaitGroup
	wg.Add(1)
	got := calcCAGR(snaps, &wg)
	wg.Wait()
	require.InDelta(t, 0.1, got, 1e-9)
}

func TestCalcMaxConsecutiveLosses(t *testing.T) {
	trades := []types.Trade{
		trade("100", "90", "1", 1, 2),
		trade("100", "110", "1", 1, 3),
		trade("100", "90", "1", 1, 4),
		trade("100", "95", "1", 1, 5),
		trade("100", "99", "1", 1, 6),
	}
	var wg sync.WaitGroup
	wg.Add(1)
	require.Equal(t, 3, calcMaxConsecutiveLosses(trades, &wg))
	wg.Wait()
}

func TestCalcHoldingStats(t *testing.T) {
	trades := []types.Trade{trade("1", "1", "1", 1, 3), trade("1", "1", "1", 1, 7)}
	var wg sync.WaitGroup
	wg.Add(1)
	got := calcHoldingStats(trades, &wg)
	wg.Wait()
	require.Equal(t, holdingStats{avg: 4, min: 2, max: 6}, got)
}

func TestCalmarRatio(t *testing.T) {
	require.Zero(t, calmarRatio(0.2, 0))
	require.InDelta(t, 2, calmarRatio(0.2, 0.1), 1e-12)
}

func TestGenerateReport(t *testing.T) {
	trades := []types.Trade{trade("100", "110", "10", 1, 3)}
	snaps := snapshots("1000", "1050", "1100")
	report := generateReport(dec("1000"), trades, snaps, dec("1100"), dec("100"), decimal.Zero)

	require.Equal(t, day(1), report.StartDate)
	require.Equal(t, day(3), report.EndDate)
	require.True(t, report.NetProfit.Equal(dec("100")))
	require.InDelta(t, 0.1, float64(report.TotalReturn), 1e-12)
	require.Equal(t, 1, report.TotalTrades)
	require.True(t, math.IsInf(float64(report.ProfitFactor), 1))
	require.Zero(t, float64(report.MaxDrawdown))
	require.Zero(t, float64(report.CalmarRatio))
	require.NotNil(t, report.SkippedTickers)
}

func TestRatio_JSON(t *testing.T) {
	tests := []struct {
		in   Ratio
		want string
	}{
		{Ratio(math.Inf(1)), `"Infinity"`},
		{Ratio(math.Inf(-1)), `"-Infinity"`},
		{Ratio(1.5), `1.5`},
		{Ratio(0), `0`},
	}
	for _, tc := range tests {
		b, err := json.Marshal(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, string(b))

		var back Ratio
		require.NoError(t, json.Unmarshal(b, &back))
		require.Equal(t, tc.in, back)
	}

	var r Ratio
	require.Error(t, json.Unmarshal([]byte(`"NaN?"`), &r))
}

func TestSummaryJSON_InfiniteProfitFactor(t *testing.T) {
	report := generateReport(dec("1000"), []types.Trade{trade("10", "20", "1", 1, 2)}, snapshots("1000", "1010"), dec("1010"), dec("10"), decimal.Zero)

	var buf bytes.Buffer
	require.NoError(t, writeSummaryJSON(&buf, report))
	require.Contains(t, buf.String(), `"profit_factor": "Infinity"`)

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.True(t, math.IsInf(float64(decoded.ProfitFactor), 1))
}

func TestPrintReport(t *testing.T) {
	report := generateReport(dec("1000"), nil, snapshots("1000", "1000"), dec("1000"), decimal.Zero, decimal.Zero)
	report.SkippedTickers["ZZZ"] = 2
	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()
	require.True(t, strings.Contains(out, "Portfolio Report"))
	require.True(t, strings.Contains(out, "ZZZ:"))
}
