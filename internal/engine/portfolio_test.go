package engine

import (
	"testing"

	"signalfolio/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPortfolio_OpenClose(t *testing.T) {
	tests := []struct {
		name       string
		direction  types.Direction
		entry      string
		exit       string
		shares     string
		commission string
		wantCash   string
		wantPnL    string
		wantReturn string
	}{
		{
			name:       "long gain",
			direction:  types.DirectionLong,
			entry:      "100",
			exit:       "110",
			shares:     "5",
			commission: "0",
			wantCash:   "1050",
			wantPnL:    "50",
			wantReturn: "10",
		},
		{
			name:       "long loss with commission",
			direction:  types.DirectionLong,
			entry:      "100",
			exit:       "90",
			shares:     "5",
			commission: "1",
			wantCash:   "948",
			wantPnL:    "-52",
			wantReturn: "-10",
		},
		{
			name:       "short gain",
			direction:  types.DirectionShort,
			entry:      "100",
			exit:       "80",
			shares:     "5",
			commission: "0",
			wantCash:   "1100",
			wantPnL:    "100",
			wantReturn: "20",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPortfolio(dec("1000"), dec(tc.commission), dec("0.1"))
			_, err := p.openPosition("X", tc.direction, day(1), dec(tc.entry), dec(tc.shares))
			require.NoError(t, err)

			trade, err := p.closePosition("X", day(3), dec(tc.exit), types.ExitSignal)
			require.NoError(t, err)

			if !p.cash.Equal(dec(tc.wantCash)) {
				t.Errorf("cash = %s, want %s", p.cash, tc.wantCash)
			}
			if !p.realizedPnL.Equal(dec(tc.wantPnL)) {
				t.Errorf("realized = %s, want %s", p.realizedPnL, tc.wantPnL)
			}
			if !trade.PnL().Equal(dec(tc.wantPnL)) {
				t.Errorf("trade pnl = %s, want %s", trade.PnL(), tc.wantPnL)
			}
			if !trade.ReturnPct.Equal(dec(tc.wantReturn)) {
				t.Errorf("return = %s, want %s", trade.ReturnPct, tc.wantReturn)
			}
			require.Equal(t, 2, trade.HoldingDays())
			require.Empty(t, p.positions)
			require.Len(t, p.transactions, 2)
		})
	}
}

func TestPortfolio_StopLossPrice(t *testing.T) {
	p := newPortfolio(dec("1000"), decimal.Zero, dec("0.1"))
	long, err := p.openPosition("L", types.DirectionLong, day(1), dec("50"), dec("1"))
	require.NoError(t, err)
	short, err := p.openPosition("S", types.DirectionShort, day(1), dec("50"), dec("1"))
	require.NoError(t, err)

	require.True(t, long.StopLossPrice.Equal(dec("45")), "long stop=%s", long.StopLossPrice)
	require.True(t, short.StopLossPrice.Equal(dec("55")), "short stop=%s", short.StopLossPrice)
}

func TestPortfolio_Errors(t *testing.T) {
	p := newPortfolio(dec("100"), dec("1"), decimal.Zero)

	_, err := p.openPosition("X", types.DirectionLong, day(1), dec("10"), dec("10"))
	require.ErrorIs(t, err, ErrInsufficientCash)
	require.True(t, p.cash.Equal(dec("100")), "failed fill must not touch cash")

	_, err = p.openPosition("X", types.DirectionLong, day(1), dec("10"), decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidShares)

	_, err = p.openPosition("X", types.DirectionLong, day(1), dec("10"), dec("5"))
	require.NoError(t, err)
	_, err = p.openPosition("X", types.DirectionLong, day(1), dec("10"), dec("1"))
	require.ErrorIs(t, err, ErrPositionExists)

	_, err = p.closePosition("Y", day(2), dec("10"), types.ExitSignal)
	require.ErrorIs(t, err, ErrNoPosition)
	require.ErrorIs(t, p.resizePosition("Y", day(2), dec("10"), dec("1"), "Adjust"), ErrNoPosition)
	require.ErrorIs(t, p.resizePosition("X", day(2), dec("10"), decimal.Zero, "Adjust"), ErrInvalidShares)
}

func TestPortfolio_Resize(t *testing.T) {
	p := newPortfolio(dec("1000"), decimal.Zero, dec("0.1"))
	_, err := p.openPosition("X", types.DirectionLong, day(1), dec("10"), dec("20"))
	require.NoError(t, err)

	// Top-up moves the entry to the weighted average cost.
	require.NoError(t, p.resizePosition("X", day(2), dec("20"), dec("40"), "Adjust"))
	pos := p.positions["X"]
	require.True(t, pos.EntryPrice.Equal(dec("15")), "entry=%s", pos.EntryPrice)
	require.True(t, pos.StopLossPrice.Equal(dec("13.5")), "stop=%s", pos.StopLossPrice)
	require.True(t, p.cash.Equal(dec("400")), "cash=%s", p.cash)

	// Trim realizes PnL on the sold shares only.
	require.NoError(t, p.resizePosition("X", day(3), dec("25"), dec("30"), "Rebalance"))
	require.True(t, p.realizedPnL.Equal(dec("100")), "realized=%s", p.realizedPnL)
	require.True(t, p.cash.Equal(dec("650")), "cash=%s", p.cash)
	require.True(t, pos.Shares.Equal(dec("30")))

	require.ErrorIs(t, p.resizePosition("X", day(4), dec("25"), dec("1000"), "Adjust"), ErrInsufficientCash)

	trade, err := p.closePosition("X", day(4), dec("25"), types.ExitFinal)
	require.NoError(t, err)
	require.True(t, p.cash.Equal(dec("1000").Add(p.realizedPnL)))

	// The trade keeps the trimmed profit, so it reports the whole round trip.
	require.True(t, trade.RealizedPnL.Equal(dec("100")), "trade realized=%s", trade.RealizedPnL)
	require.True(t, trade.PnL().Equal(dec("400")), "trade pnl=%s", trade.PnL())
	require.True(t, trade.PnL().Equal(p.realizedPnL), "trade pnl=%s realized=%s", trade.PnL(), p.realizedPnL)
	require.True(t, trade.Cost.Equal(dec("600")), "cost=%s", trade.Cost)
}

func TestTrade_NetReturnPct(t *testing.T) {
	tests := []struct {
		name       string
		direction  types.Direction
		entry      string
		exit       string
		commission string
		want       string
	}{
		{"long gain", types.DirectionLong, "100", "110", "0", "10"},
		{"commission turns a gain into a loss", types.DirectionLong, "50", "50.05", "20", "-0.3"},
		{"short gain net of commission", types.DirectionShort, "100", "90", "10", "9.9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := newPortfolio(dec("100000"), decimal.Zero, decimal.Zero)
			_, err := p.openPosition("X", tc.direction, day(1), dec(tc.entry), dec("100"))
			require.NoError(t, err)
			p.positions["X"].Commission = dec(tc.commission)

			trade, err := p.closePosition("X", day(2), dec(tc.exit), types.ExitSignal)
			require.NoError(t, err)
			require.True(t, trade.NetReturnPct().Equal(dec(tc.want)), "net return=%s, want %s", trade.NetReturnPct(), tc.want)
		})
	}
}

func TestPortfolio_ValueAndSnapshot(t *testing.T) {
	p := newPortfolio(dec("1000"), decimal.Zero, decimal.Zero)
	_, err := p.openPosition("L", types.DirectionLong, day(1), dec("10"), dec("10"))
	require.NoError(t, err)
	_, err = p.openPosition("S", types.DirectionShort, day(1), dec("20"), dec("5"))
	require.NoError(t, err)

	p.mark("L", dec("12"))
	p.mark("S", dec("18"))
	p.mark("missing", dec("1"))

	snap := p.snapshot(day(1))
	// cash 1000 - 100 + 100; equity 120 - 90
	require.True(t, snap.Cash.Equal(dec("1000")))
	require.True(t, snap.EquityValue.Equal(dec("30")))
	require.True(t, snap.PortfolioValue.Equal(dec("1030")))
	require.Equal(t, 2, snap.PositionCount)
	require.Equal(t, []string{"L", "S"}, p.openTickers())
}

func TestSharesFor(t *testing.T) {
	tests := []struct {
		price, budget, want string
	}{
		{"50", "5000", "100"},
		{"40", "5000", "125"},
		{"33", "100", "3"},
		{"600", "500", "0"},
		{"0", "500", "0"},
		{"10", "-5", "0"},
	}
	for _, tc := range tests {
		got := sharesFor(dec(tc.price), dec(tc.budget))
		if !got.Equal(dec(tc.want)) {
			t.Errorf("sharesFor(%s, %s) = %s, want %s", tc.price, tc.budget, got, tc.want)
		}
	}
}
