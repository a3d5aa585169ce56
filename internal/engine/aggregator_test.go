package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"signalfolio/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{input: "ranked-allocation", want: Policy{Kind: PolicyRankedAllocation}},
		{input: " Average ", want: Policy{Kind: PolicyAverage}},
		{input: "majority", want: Policy{Kind: PolicyMajority}},
		{input: "unanimous", want: Policy{Kind: PolicyUnanimous}},
		{input: "min-agree(3)", want: Policy{Kind: PolicyMinAgree, MinAgree: 3}},
		{input: "min-agree:2", want: Policy{Kind: PolicyMinAgree, MinAgree: 2}},
		{input: "min-agree(0)", wantErr: true},
		{input: "min-agree", wantErr: true},
		{input: "min-agree(x)", wantErr: true},
		{input: "plurality", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParsePolicy(tc.input)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrConfiguration)
				var cfgErr *ConfigurationError
				require.True(t, errors.As(err, &cfgErr))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPolicy_String(t *testing.T) {
	require.Equal(t, "min-agree(2)", Policy{Kind: PolicyMinAgree, MinAgree: 2}.String())
	require.Equal(t, "majority", Policy{Kind: PolicyMajority}.String())
}

func TestPolicy_Combine(t *testing.T) {
	tests := []struct {
		name         string
		policy       Policy
		buys, sells  int
		n            int
		wantCombined float64
	}{
		{"average net buy", Policy{Kind: PolicyAverage}, 3, 1, 4, 0.5},
		{"average net sell", Policy{Kind: PolicyAverage}, 0, 2, 4, -0.5},
		{"average flat", Policy{Kind: PolicyAverage}, 1, 1, 3, 0},
		{"majority strict", Policy{Kind: PolicyMajority}, 2, 0, 4, 0},
		{"majority buy", Policy{Kind: PolicyMajority}, 3, 0, 4, 1},
		{"majority sell", Policy{Kind: PolicyMajority}, 0, 2, 3, -1},
		{"unanimous buy", Policy{Kind: PolicyUnanimous}, 3, 0, 3, 1},
		{"unanimous partial", Policy{Kind: PolicyUnanimous}, 2, 0, 3, 0},
		{"unanimous sell", Policy{Kind: PolicyUnanimous}, 0, 2, 2, -1},
		{"min-agree buy", Policy{Kind: PolicyMinAgree, MinAgree: 2}, 2, 2, 5, 1},
		{"min-agree sell", Policy{Kind: PolicyMinAgree, MinAgree: 2}, 1, 2, 5, -1},
		{"min-agree none", Policy{Kind: PolicyMinAgree, MinAgree: 3}, 2, 2, 5, 0},
		{"no strategies", Policy{Kind: PolicyAverage}, 0, 0, 0, 0},
		{"ranked has no combined position", Policy{Kind: PolicyRankedAllocation}, 3, 0, 3, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.Combine(tc.buys, tc.sells, tc.n)
			if got != tc.wantCombined {
				t.Errorf("Combine(%d, %d, %d) = %v, want %v", tc.buys, tc.sells, tc.n, got, tc.wantCombined)
			}
		})
	}
}

func TestExecutionDate(t *testing.T) {
	calendar := []time.Time{day(2), day(3), day(5)}
	tests := []struct {
		in     time.Time
		want   time.Time
		wantOK bool
	}{
		{day(1), time.Time{}, false},
		{day(2), day(3), true},
		{day(4), day(5), true},
		{day(5), time.Time{}, false},
		{day(9), time.Time{}, false},
	}
	for _, tc := range tests {
		got, ok := executionDate(calendar, tc.in)
		if ok != tc.wantOK || !got.Equal(tc.want) {
			t.Errorf("executionDate(%s) = %s, %v; want %s, %v",
				tc.in.Format(time.DateOnly), got.Format(time.DateOnly), ok, tc.want.Format(time.DateOnly), tc.wantOK)
		}
	}
	_, ok := executionDate(nil, day(1))
	require.False(t, ok)
}

func TestAggregateSignals_Ranked(t *testing.T) {
	// Day 2 is not a trading day, so decisions from days 1 and 2 share the day 3 bucket.
	calendar := []time.Time{day(1), day(3), day(4)}
	decisions := []types.Decision{
		buy("A", "p", 1), buy("A", "q", 1),
		buy("B", "q", 1),
		buy("C", "p", 1), sell("C", "q", 1),
		// q changes its mind within the bucket; only the latest vote counts.
		sell("D", "q", 1), buy("D", "p", 2), buy("D", "q", 2),
	}
	book, err := aggregateSignals(context.Background(), decisions, calendar, Policy{Kind: PolicyRankedAllocation}, "p")
	require.NoError(t, err)

	signals := book.on(day(3))
	require.True(t, signals["A"].Candidate)
	require.Equal(t, 2, signals["A"].PriorityScore)
	require.Equal(t, day(1), signals["A"].SignalDate)
	require.False(t, signals["B"].Candidate, "B has no priority buy")
	require.False(t, signals["C"].Candidate, "conflicting sell blocks entry")
	require.True(t, signals["C"].Exit)

	require.True(t, signals["D"].Candidate)
	require.False(t, signals["D"].Exit)
	require.Equal(t, 2, signals["D"].PriorityScore)
	require.Equal(t, day(2), signals["D"].SignalDate)

	require.Nil(t, book.on(day(1)))
	require.Nil(t, book.on(day(4)))
}

func TestAggregateSignals_NoPriorityStrategy(t *testing.T) {
	calendar := []time.Time{day(1), day(2)}
	book, err := aggregateSignals(context.Background(), []types.Decision{buy("B", "q", 1)}, calendar, Policy{Kind: PolicyRankedAllocation}, "")
	require.NoError(t, err)
	require.True(t, book.on(day(2))["B"].Candidate)
}

func TestAggregateSignals_Voting(t *testing.T) {
	calendar := []time.Time{day(1), day(2), day(3)}
	decisions := []types.Decision{
		buy("A", "a", 1), buy("A", "b", 1), sell("A", "c", 1), buy("A", "d", 1),
		sell("A", "a", 2),
	}
	book, err := aggregateSignals(context.Background(), decisions, calendar, Policy{Kind: PolicyAverage}, "")
	require.NoError(t, err)

	got := book.on(day(2))["A"]
	want := types.AggregatedSignal{
		Ticker:           "A",
		Date:             day(2),
		SignalDate:       day(1),
		PriorityScore:    3,
		Candidate:        true,
		CombinedPosition: 0.5,
		Buys:             3,
		Sells:            1,
		Strategies:       4,
	}
	require.Equal(t, "", cmp.Diff(want, got))

	got = book.on(day(3))["A"]
	require.Equal(t, -0.25, got.CombinedPosition)
	require.True(t, got.Candidate)
}

func TestAggregateSignals_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := aggregateSignals(ctx, []types.Decision{buy("A", "a", 1)}, []time.Time{day(1), day(2)}, Policy{Kind: PolicyAverage}, "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRankCandidates(t *testing.T) {
	candidates := []types.AggregatedSignal{
		{Ticker: "D", CombinedPosition: 0.5, PriorityScore: 9},
		{Ticker: "C", CombinedPosition: -1, PriorityScore: 1},
		{Ticker: "B", CombinedPosition: 0.5, PriorityScore: 2},
		{Ticker: "A", CombinedPosition: 0.5, PriorityScore: 2},
	}
	rankCandidates(candidates)
	var got []string
	for _, c := range candidates {
		got = append(got, c.Ticker)
	}
	require.Equal(t, "", cmp.Diff([]string{"C", "D", "A", "B"}, got))
}

func TestSimulationConfig_Validate(t *testing.T) {
	valid := func() *SimulationConfig {
		return NewSimulationConfig(dec("10000"), 5, dec("0.1"), "", Policy{Kind: PolicyRankedAllocation})
	}
	tests := []struct {
		name      string
		mutate    func(c *SimulationConfig)
		wantField string
	}{
		{name: "valid", mutate: func(c *SimulationConfig) {}},
		{name: "zero size", mutate: func(c *SimulationConfig) { c.PortfolioSize = 0 }, wantField: "portfolio_size"},
		{name: "negative stop", mutate: func(c *SimulationConfig) { c.StopLossPct = dec("-0.1") }, wantField: "stop_loss_pct"},
		{name: "stop of one", mutate: func(c *SimulationConfig) { c.StopLossPct = dec("1") }, wantField: "stop_loss_pct"},
		{name: "no cash", mutate: func(c *SimulationConfig) { c.InitialCash = dec("0") }, wantField: "initial_cash"},
		{name: "negative commission", mutate: func(c *SimulationConfig) { c.Commission = dec("-1") }, wantField: "commission"},
		{name: "negative threshold", mutate: func(c *SimulationConfig) { c.RebalanceThreshold = dec("-0.1") }, wantField: "rebalance_threshold"},
		{name: "inverted range", mutate: func(c *SimulationConfig) { c.Start, c.End = day(5), day(1) }, wantField: "end"},
		{name: "bad min-agree", mutate: func(c *SimulationConfig) { c.Policy = Policy{Kind: PolicyMinAgree} }, wantField: "min_agree"},
		{name: "unknown policy", mutate: func(c *SimulationConfig) { c.Policy = Policy{Kind: "x"} }, wantField: "combination_policy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantField == "" {
				require.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			require.Equal(t, tc.wantField, cfgErr.Field)
			require.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestSimulationConfig_Includes(t *testing.T) {
	cfg := NewSimulationConfig(dec("1"), 1, dec("0"), "", Policy{Kind: PolicyAverage})
	require.True(t, cfg.includes("ANY"))
	cfg.TickerFilter = []string{"aapl", "btc"}
	require.True(t, cfg.includes("AAPL"))
	require.False(t, cfg.includes("MSFT"))
}
