package signals

import (
	"testing"
	"time"

	"signalfolio/types"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time {
	return start.AddDate(0, 0, i)
}

// series builds bars whose high/low are close ± 1.
func series(ticker string, closes ...float64) []types.PriceBar {
	out := make([]types.PriceBar, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		out[i] = types.PriceBar{
			Ticker: ticker,
			Date:   day(i),
			Open:   price,
			High:   price.Add(decimal.NewFromInt(1)),
			Low:    price.Sub(decimal.NewFromInt(1)),
			Close:  price,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestDonchian(t *testing.T) {
	closes := concat(repeat(10, 5), []float64{15, 16, 17}, repeat(16, 2), []float64{5})
	got, err := NewDonchian(5).Decide(series("AAPL", closes...))
	require.NoError(t, err)

	want := []types.Decision{
		types.NewDecision("AAPL", "donchian", day(5), types.ActionBuy),
		types.NewDecision("AAPL", "donchian", day(10), types.ActionSell),
	}
	require.Equal(t, "", cmp.Diff(want, got), "repeated breakouts in the same direction emit once")
}

func TestDonchianHighLow(t *testing.T) {
	high, low := donchianHighLow(series("X", 3, 9, 1, 4))
	require.True(t, high.Equal(decimal.NewFromInt(10)))
	require.True(t, low.Equal(decimal.Zero))

	high, low = donchianHighLow(nil)
	require.True(t, high.IsZero())
	require.True(t, low.IsZero())
}

func TestSMACross(t *testing.T) {
	closes := concat(repeat(10, 4), repeat(20, 4), repeat(5, 4))
	got, err := NewSMACross(2, 4).Decide(series("MSFT", closes...))
	require.NoError(t, err)

	want := []types.Decision{
		types.NewDecision("MSFT", "sma_cross", day(4), types.ActionBuy),
		types.NewDecision("MSFT", "sma_cross", day(8), types.ActionSell),
	}
	require.Equal(t, "", cmp.Diff(want, got))
}

func TestRSI(t *testing.T) {
	// the falling leg drives RSI to 0; the rising leg lifts it through 30 on day 6
	// and above 70 by day 9; the final drop pulls it back under 70
	closes := concat(
		[]float64{20, 19, 18, 17, 16},
		[]float64{17, 18, 19, 20, 21, 22, 23},
		[]float64{15},
	)
	got, err := NewRSI(4, 30, 70).Decide(series("btc", closes...))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, types.ActionBuy, got[0].Action)
	require.Equal(t, day(6), got[0].Date)
	require.Equal(t, types.ActionSell, got[1].Action)
	require.Equal(t, day(12), got[1].Date)
}

func TestWilderRSI(t *testing.T) {
	values := wilderRSI([]float64{1, 2, 3, 4, 5}, 3)
	require.Equal(t, []float64{0, 0, 0, 100, 100}, values)

	flat := wilderRSI([]float64{5, 5, 5}, 2)
	require.Equal(t, 50.0, flat[2])
}

func TestNotEnoughBars(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		bars     int
	}{
		{"donchian", NewDonchian(20), 20},
		{"sma_cross", NewSMACross(10, 30), 30},
		{"rsi", NewRSI(14, 30, 70), 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.strategy.Decide(series("X", repeat(10, tt.bars)...))
			require.ErrorIs(t, err, ErrNotEnoughBars)
		})
	}
}

func TestBadParameters(t *testing.T) {
	bars := series("X", repeat(10, 50)...)
	for _, s := range []Strategy{NewDonchian(0), NewSMACross(10, 5), NewRSI(14, 70, 30)} {
		_, err := s.Decide(bars)
		require.Error(t, err, s.Name())
		require.NotErrorIs(t, err, ErrNotEnoughBars)
	}
}

func TestByName(t *testing.T) {
	all, err := ByName()
	require.NoError(t, err)
	require.Len(t, all, 3)

	got, err := ByName("rsi", "donchian")
	require.NoError(t, err)
	require.Equal(t, "rsi", got[0].Name())
	require.Equal(t, "donchian", got[1].Name())

	_, err = ByName("macd")
	require.Error(t, err)
}
