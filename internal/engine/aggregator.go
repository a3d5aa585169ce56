package engine

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"signalfolio/types"

	"golang.org/x/sync/errgroup"
)

type PolicyKind string

const (
	PolicyRankedAllocation PolicyKind = "ranked-allocation"
	PolicyAverage          PolicyKind = "average"
	PolicyMajority         PolicyKind = "majority"
	PolicyUnanimous        PolicyKind = "unanimous"
	PolicyMinAgree         PolicyKind = "min-agree"
)

// Policy is the combination policy. MinAgree is only meaningful for PolicyMinAgree.
type Policy struct {
	Kind     PolicyKind
	MinAgree int
}

// ParsePolicy accepts a policy name; min-agree takes its threshold as "min-agree(3)" or "min-agree:3".
func ParsePolicy(name string) (Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch PolicyKind(name) {
	case PolicyRankedAllocation, PolicyAverage, PolicyMajority, PolicyUnanimous:
		return Policy{Kind: PolicyKind(name)}, nil
	}

	if rest, ok := strings.CutPrefix(name, string(PolicyMinAgree)); ok {
		rest = strings.TrimPrefix(rest, ":")
		rest = strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")")
		k, err := strconv.Atoi(rest)
		if err != nil {
			return Policy{}, &ConfigurationError{Field: "combination_policy", Value: name, Reason: "min-agree needs an integer threshold"}
		}
		p := Policy{Kind: PolicyMinAgree, MinAgree: k}
		return p, p.validate()
	}
	return Policy{}, &ConfigurationError{Field: "combination_policy", Value: name, Reason: "is not a known policy"}
}

func (p Policy) String() string {
	if p.Kind == PolicyMinAgree {
		return fmt.Sprintf("%s(%d)", p.Kind, p.MinAgree)
	}
	return string(p.Kind)
}

func (p Policy) validate() error {
	switch p.Kind {
	case PolicyRankedAllocation, PolicyAverage, PolicyMajority, PolicyUnanimous:
		return nil
	case PolicyMinAgree:
		if p.MinAgree <= 0 {
			return &ConfigurationError{Field: "min_agree", Value: p.MinAgree, Reason: "must be greater than 0"}
		}
		return nil
	}
	return &ConfigurationError{Field: "combination_policy", Value: p.Kind, Reason: "is not a known policy"}
}

// voting reports whether the policy produces a signed combined position.
func (p Policy) voting() bool {
	return p.Kind != PolicyRankedAllocation
}

// Combine folds buy and sell votes out of n tracked strategies into a position in [-1, 1].
func (p Policy) Combine(buys, sells, n int) float64 {
	if n <= 0 {
		return 0
	}
	switch p.Kind {
	case PolicyAverage:
		return combineAverage(buys, sells, n)
	case PolicyMajority:
		return combineMajority(buys, sells, n)
	case PolicyUnanimous:
		return combineUnanimous(buys, sells, n)
	case PolicyMinAgree:
		return combineThreshold(buys, sells, p.MinAgree)
	}
	return 0
}

func combineAverage(buys, sells, n int) float64 {
	return float64(buys-sells) / float64(n)
}

func combineMajority(buys, sells, n int) float64 {
	half := float64(n) / 2
	switch {
	case float64(buys) > half:
		return 1
	case float64(sells) > half:
		return -1
	}
	return 0
}

func combineUnanimous(buys, sells, n int) float64 {
	switch {
	case buys == n:
		return 1
	case sells == n:
		return -1
	}
	return 0
}

func combineThreshold(buys, sells, k int) float64 {
	switch {
	case buys >= k:
		return 1
	case sells >= k:
		return -1
	}
	return 0
}

// signalBook holds the aggregated signals keyed by the date they execute on.
type signalBook map[time.Time]map[string]types.AggregatedSignal

func (b signalBook) on(date time.Time) map[string]types.AggregatedSignal {
	return b[date]
}

// executionDate is the first calendar date strictly after d. ok is false for decisions
// dated before the calendar or on/after its last date.
func executionDate(calendar []time.Time, d time.Time) (time.Time, bool) {
	if len(calendar) == 0 || d.Before(calendar[0]) {
		return time.Time{}, false
	}
	i := sort.Search(len(calendar), func(i int) bool { return calendar[i].After(d) })
	if i >= len(calendar) {
		return time.Time{}, false
	}
	return calendar[i], true
}

// aggregateSignals buckets decisions onto the trading calendar with a one-day lag and combines
// them per ticker. Tickers are aggregated concurrently; results are merged by a single writer.
func aggregateSignals(ctx context.Context, decisions []types.Decision, calendar []time.Time, policy Policy, priorityStrategy string) (signalBook, error) {
	byTicker := make(map[string][]types.Decision)
	for _, d := range decisions {
		byTicker[d.Ticker] = append(byTicker[d.Ticker], d)
	}
	tickers := make([]string, 0, len(byTicker))
	for t := range byTicker {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	book := make(signalBook)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			signals := aggregateTicker(ticker, byTicker[ticker], calendar, policy, priorityStrategy)

			mu.Lock()
			defer mu.Unlock()
			for _, s := range signals {
				if book[s.Date] == nil {
					book[s.Date] = make(map[string]types.AggregatedSignal)
				}
				book[s.Date][ticker] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return book, nil
}

// aggregateTicker combines one ticker's decisions. Each strategy votes once per execution date,
// with its latest decision in the bucket.
func aggregateTicker(ticker string, decisions []types.Decision, calendar []time.Time, policy Policy, priorityStrategy string) []types.AggregatedSignal {
	strategies := make(map[string]struct{})
	for _, d := range decisions {
		strategies[d.Strategy] = struct{}{}
	}
	tracked := len(strategies)

	sorted := make([]types.Decision, len(decisions))
	copy(sorted, decisions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	type bucket struct {
		signalDate time.Time
		votes      map[string]types.Action
	}
	buckets := make(map[time.Time]*bucket)
	var dates []time.Time
	for _, d := range sorted {
		exec, ok := executionDate(calendar, d.Date)
		if !ok {
			continue
		}
		b := buckets[exec]
		if b == nil {
			b = &bucket{votes: make(map[string]types.Action)}
			buckets[exec] = b
			dates = append(dates, exec)
		}
		b.votes[d.Strategy] = d.Action
		if d.Date.After(b.signalDate) {
			b.signalDate = d.Date
		}
	}

	out := make([]types.AggregatedSignal, 0, len(dates))
	for _, exec := range dates {
		b := buckets[exec]
		s := types.AggregatedSignal{
			Ticker:     ticker,
			Date:       exec,
			SignalDate: b.signalDate,
			Strategies: tracked,
		}
		priorityBuy := false
		for strategy, action := range b.votes {
			switch action {
			case types.ActionBuy:
				s.Buys++
				if priorityStrategy == "" || strategy == priorityStrategy {
					priorityBuy = true
				}
			case types.ActionSell:
				s.Sells++
			}
		}

		if policy.voting() {
			s.CombinedPosition = policy.Combine(s.Buys, s.Sells, tracked)
			s.Candidate = s.CombinedPosition != 0
			s.PriorityScore = s.Buys
		} else {
			s.Exit = s.Sells > 0
			s.Candidate = priorityBuy && !s.Exit
			if s.Candidate {
				s.PriorityScore = s.Buys
			}
		}
		out = append(out, s)
	}
	return out
}

// rankCandidates orders entry candidates by combined strength, then priority score, then ticker.
func rankCandidates(candidates []types.AggregatedSignal) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := absFloat(candidates[i].CombinedPosition), absFloat(candidates[j].CombinedPosition)
		if a != b {
			return a > b
		}
		if candidates[i].PriorityScore != candidates[j].PriorityScore {
			return candidates[i].PriorityScore > candidates[j].PriorityScore
		}
		return candidates[i].Ticker < candidates[j].Ticker
	})
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
