package engine

import (
	"fmt"
	"io"
	"sort"
	"time"

	"signalfolio/types"

	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
)

// Hold windows in calendar days after the most recent Buy.
const (
	shortTermDays  = 20
	mediumTermDays = 100
	longTermDays   = 250
)

type HoldStats struct {
	CumReturn float64
	Accuracy  float64
}

type StrategyEvaluation struct {
	Ticker           string
	Strategy         string
	ShortTerm        HoldStats
	MediumTerm       HoldStats
	LongTerm         HoldStats
	BuyHold          HoldStats
	BuyAndHoldReturn float64
}

// EvaluateStrategies scores every (ticker, strategy) decision stream against the ticker's prices.
// Results are sorted by ticker then strategy.
func EvaluateStrategies(series map[string][]types.PriceBar, decisions []types.Decision) []StrategyEvaluation {
	type key struct{ ticker, strategy string }
	grouped := make(map[key][]types.Decision)
	for _, d := range decisions {
		k := key{d.Ticker, d.Strategy}
		grouped[k] = append(grouped[k], d)
	}

	out := make([]StrategyEvaluation, 0, len(grouped))
	for k, ds := range grouped {
		bars := series[k.ticker]
		if len(bars) == 0 {
			continue
		}
		ev := evaluateStrategy(bars, ds)
		ev.Ticker, ev.Strategy = k.ticker, k.strategy
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

type holdTracker struct {
	cumReturn float64
	positive  int
	days      int
}

func (h *holdTracker) add(position, ret float64) {
	h.cumReturn += position * ret
	if position == 1 {
		h.days++
		if ret > 0 {
			h.positive++
		}
	}
}

func (h *holdTracker) stats() HoldStats {
	s := HoldStats{CumReturn: h.cumReturn}
	if h.days > 0 {
		s.Accuracy = float64(h.positive) / float64(h.days)
	}
	return s
}

func evaluateStrategy(bars []types.PriceBar, decisions []types.Decision) StrategyEvaluation {
	sorted := make([]types.PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	actions := make(map[time.Time]types.Action, len(decisions))
	for _, d := range decisions {
		actions[d.Date] = d.Action
	}

	var (
		bh, st, mt, lt     float64
		lastBuy            time.Time
		bhT, stT, mtT, ltT holdTracker
	)
	for i, bar := range sorted {
		ret := 0.0
		if i > 0 && sorted[i-1].Close.IsPositive() {
			ret = bar.Close.Div(sorted[i-1].Close).InexactFloat64() - 1
		}

		switch actions[bar.Date] {
		case types.ActionBuy:
			if lastBuy.IsZero() {
				bh = 1
			}
			st, mt, lt = 1, 1, 1
			lastBuy = bar.Date
		case types.ActionSell:
			bh, st, mt, lt = 0, 0, 0, 0
			lastBuy = time.Time{}
		default:
			if !lastBuy.IsZero() {
				days := int(bar.Date.Sub(lastBuy).Hours() / 24)
				if days > shortTermDays {
					st = 0
				}
				if days > mediumTermDays {
					mt = 0
				}
				if days > longTermDays {
					lt = 0
				}
			}
		}

		bhT.add(bh, ret)
		stT.add(st, ret)
		mtT.add(mt, ret)
		ltT.add(lt, ret)
	}

	ev := StrategyEvaluation{
		ShortTerm:  stT.stats(),
		MediumTerm: mtT.stats(),
		LongTerm:   ltT.stats(),
		BuyHold:    bhT.stats(),
	}
	first, last := sorted[0].Close, sorted[len(sorted)-1].Close
	if first.IsPositive() {
		ev.BuyAndHoldReturn = last.Div(first).InexactFloat64() - 1
	}
	return ev
}

type evaluationRow struct {
	Ticker           string `csv:"ticker"`
	Strategy         string `csv:"strategy"`
	STCumReturn      string `csv:"st_cum_return"`
	STAccuracy       string `csv:"st_accuracy"`
	MTCumReturn      string `csv:"mt_cum_return"`
	MTAccuracy       string `csv:"mt_accuracy"`
	LTCumReturn      string `csv:"lt_cum_return"`
	LTAccuracy       string `csv:"lt_accuracy"`
	BHCumReturn      string `csv:"bh_cum_return"`
	BHAccuracy       string `csv:"bh_accuracy"`
	BuyAndHoldReturn string `csv:"buy_and_hold_return"`
}

func newEvaluationRow(ticker, strategy string, ev StrategyEvaluation) *evaluationRow {
	return &evaluationRow{
		Ticker:           ticker,
		Strategy:         strategy,
		STCumReturn:      formatFloat(ev.ShortTerm.CumReturn),
		STAccuracy:       formatFloat(ev.ShortTerm.Accuracy),
		MTCumReturn:      formatFloat(ev.MediumTerm.CumReturn),
		MTAccuracy:       formatFloat(ev.MediumTerm.Accuracy),
		LTCumReturn:      formatFloat(ev.LongTerm.CumReturn),
		LTAccuracy:       formatFloat(ev.LongTerm.Accuracy),
		BHCumReturn:      formatFloat(ev.BuyHold.CumReturn),
		BHAccuracy:       formatFloat(ev.BuyHold.Accuracy),
		BuyAndHoldReturn: formatFloat(ev.BuyAndHoldReturn),
	}
}

func WriteEvaluationCSV(w io.Writer, evaluations []StrategyEvaluation) error {
	rows := make([]*evaluationRow, 0, len(evaluations))
	for _, ev := range evaluations {
		rows = append(rows, newEvaluationRow(ev.Ticker, ev.Strategy, ev))
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write evaluation csv: %w", err)
	}
	return nil
}

// AverageByStrategy averages every metric per strategy, sorted by short-term accuracy descending.
// The Ticker of each result is empty.
func AverageByStrategy(evaluations []StrategyEvaluation) []StrategyEvaluation {
	grouped := make(map[string][]StrategyEvaluation)
	for _, ev := range evaluations {
		grouped[ev.Strategy] = append(grouped[ev.Strategy], ev)
	}

	out := make([]StrategyEvaluation, 0, len(grouped))
	for strategy, evs := range grouped {
		pick := func(f func(StrategyEvaluation) float64) float64 {
			vals := make([]float64, 0, len(evs))
			for _, ev := range evs {
				vals = append(vals, f(ev))
			}
			m, _ := stats.Mean(vals)
			return m
		}
		out = append(out, StrategyEvaluation{
			Strategy: strategy,
			ShortTerm: HoldStats{
				CumReturn: pick(func(e StrategyEvaluation) float64 { return e.ShortTerm.CumReturn }),
				Accuracy:  pick(func(e StrategyEvaluation) float64 { return e.ShortTerm.Accuracy }),
			},
			MediumTerm: HoldStats{
				CumReturn: pick(func(e StrategyEvaluation) float64 { return e.MediumTerm.CumReturn }),
				Accuracy:  pick(func(e StrategyEvaluation) float64 { return e.MediumTerm.Accuracy }),
			},
			LongTerm: HoldStats{
				CumReturn: pick(func(e StrategyEvaluation) float64 { return e.LongTerm.CumReturn }),
				Accuracy:  pick(func(e StrategyEvaluation) float64 { return e.LongTerm.Accuracy }),
			},
			BuyHold: HoldStats{
				CumReturn: pick(func(e StrategyEvaluation) float64 { return e.BuyHold.CumReturn }),
				Accuracy:  pick(func(e StrategyEvaluation) float64 { return e.BuyHold.Accuracy }),
			},
			BuyAndHoldReturn: pick(func(e StrategyEvaluation) float64 { return e.BuyAndHoldReturn }),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShortTerm.Accuracy != out[j].ShortTerm.Accuracy {
			return out[i].ShortTerm.Accuracy > out[j].ShortTerm.Accuracy
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

type strategyAverageRow struct {
	Strategy         string `csv:"strategy"`
	STCumReturn      string `csv:"st_cum_return"`
	STAccuracy       string `csv:"st_accuracy"`
	MTCumReturn      string `csv:"mt_cum_return"`
	MTAccuracy       string `csv:"mt_accuracy"`
	LTCumReturn      string `csv:"lt_cum_return"`
	LTAccuracy       string `csv:"lt_accuracy"`
	BHCumReturn      string `csv:"bh_cum_return"`
	BHAccuracy       string `csv:"bh_accuracy"`
	BuyAndHoldReturn string `csv:"buy_and_hold_return"`
}

func WriteAveragesCSV(w io.Writer, averages []StrategyEvaluation) error {
	rows := make([]*strategyAverageRow, 0, len(averages))
	for _, ev := range averages {
		r := newEvaluationRow("", ev.Strategy, ev)
		rows = append(rows, &strategyAverageRow{
			Strategy:         r.Strategy,
			STCumReturn:      r.STCumReturn,
			STAccuracy:       r.STAccuracy,
			MTCumReturn:      r.MTCumReturn,
			MTAccuracy:       r.MTAccuracy,
			LTCumReturn:      r.LTCumReturn,
			LTAccuracy:       r.LTAccuracy,
			BHCumReturn:      r.BHCumReturn,
			BHAccuracy:       r.BHAccuracy,
			BuyAndHoldReturn: r.BuyAndHoldReturn,
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write strategy averages csv: %w", err)
	}
	return nil
}

// WriteEvaluation writes per-ticker results to resultsPath and per-strategy averages to averagesPath.
func WriteEvaluation(resultsPath, averagesPath string, evaluations []StrategyEvaluation) error {
	if err := writeFile(resultsPath, func(w io.Writer) error { return WriteEvaluationCSV(w, evaluations) }); err != nil {
		return err
	}
	averages := AverageByStrategy(evaluations)
	return writeFile(averagesPath, func(w io.Writer) error { return WriteAveragesCSV(w, averages) })
}
