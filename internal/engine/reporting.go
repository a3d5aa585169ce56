package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"signalfolio/types"

	"github.com/charmbracelet/lipgloss"
	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"
)

const tradingDaysPerYear = 252

// Ratio is a float metric that may legitimately be +Inf. It encodes to JSON as a number,
// or as the string "Infinity" / "-Infinity".
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(f):
		return []byte(`0`), nil
	}
	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*r = Ratio(math.Inf(1))
			return nil
		case "-Infinity":
			*r = Ratio(math.Inf(-1))
			return nil
		}
		return fmt.Errorf("invalid ratio %q", s)
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

type Report struct {
	// Meta / period info
	RunID       string        `json:"run_id"`
	Policy      string        `json:"policy"`
	StartDate   time.Time     `json:"start_date"`
	EndDate     time.Time     `json:"end_date"`
	TotalPeriod time.Duration `json:"total_period"`

	// Absolute performance
	InitialValue    decimal.Decimal `json:"initial_value"`
	FinalValue      decimal.Decimal `json:"final_value"`
	NetProfit       decimal.Decimal `json:"net_profit"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalReturn     Ratio           `json:"total_return"`
	CAGR            Ratio           `json:"cagr"`

	// Trade-level metrics; percentages are in percent units net of commission, like Trade.NetReturnPct.
	TotalTrades          int   `json:"total_trades"`
	WinningTrades        int   `json:"winning_trades"`
	LosingTrades         int   `json:"losing_trades"`
	WinRate              Ratio `json:"win_rate"`
	AvgWinPct            Ratio `json:"avg_win_pct"`
	AvgLossPct           Ratio `json:"avg_loss_pct"`
	GrossProfitPct       Ratio `json:"gross_profit_pct"`
	GrossLossPct         Ratio `json:"gross_loss_pct"`
	ProfitFactor         Ratio `json:"profit_factor"`
	AvgHoldingDays       Ratio `json:"avg_holding_days"`
	MinHoldingDays       int   `json:"min_holding_days"`
	MaxHoldingDays       int   `json:"max_holding_days"`
	MaxConsecutiveLosses int   `json:"max_consecutive_losses"`

	// Portfolio-level metrics
	MaxDrawdown         Ratio         `json:"max_drawdown"`
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`
	SharpeRatio         Ratio         `json:"sharpe_ratio"`
	CalmarRatio         Ratio         `json:"calmar_ratio"`
	Volatility          Ratio         `json:"volatility"`

	// SkippedTickers counts entry/exit actions skipped for missing prices.
	SkippedTickers map[string]int `json:"skipped_tickers"`
}

type tradeStats struct {
	total, wins, losses      int
	winRate, avgWin, avgLoss float64
	grossProfit, grossLoss   float64
	profitFactor             float64
}

type holdingStats struct {
	avg      float64
	min, max int
}

type drawdownStats struct {
	maxDrawdown float64
	duration    time.Duration
}

// generateReport derives every metric from the closed trades and the snapshot series.
// Calculators are independent and run concurrently.
func generateReport(initialCash decimal.Decimal, trades []types.Trade, snapshots []types.DailySnapshot, finalCash decimal.Decimal, realizedPnL, commission decimal.Decimal) *Report {
	report := &Report{
		InitialValue:    initialCash,
		FinalValue:      finalCash,
		NetProfit:       finalCash.Sub(initialCash),
		RealizedPnL:     realizedPnL,
		TotalCommission: commission,
		SkippedTickers:  map[string]int{},
	}
	if len(snapshots) > 0 {
		report.StartDate = snapshots[0].Date
		report.EndDate = snapshots[len(snapshots)-1].Date
		report.TotalPeriod = report.EndDate.Sub(report.StartDate).Truncate(24 * time.Hour)
	}
	if initialCash.IsPositive() {
		report.TotalReturn = Ratio(finalCash.Div(initialCash).InexactFloat64() - 1)
	}

	returns := dailyReturns(snapshots)
	var (
		ts     tradeStats
		hs     holdingStats
		dd     drawdownStats
		streak int
		sharpe float64
		vol    float64
		cagr   float64
		wg     sync.WaitGroup
	)
	wg.Add(6)
	go func() {
		ts = calcTradeStats(trades, &wg)
	}()
	go func() {
		hs = calcHoldingStats(trades, &wg)
	}()
	go func() {
		dd = calcDrawdownMetrics(initialCash, snapshots, &wg)
	}()
	go func() {
		streak = calcMaxConsecutiveLosses(trades, &wg)
	}()
	go func() {
		sharpe, vol = calcSharpeRatio(returns, &wg)
	}()
	go func() {
		cagr = calcCAGR(snapshots, &wg)
	}()
	wg.Wait()

	report.TotalTrades = ts.total
	report.WinningTrades = ts.wins
	report.LosingTrades = ts.losses
	report.WinRate = Ratio(ts.winRate)
	report.AvgWinPct = Ratio(ts.avgWin)
	report.AvgLossPct = Ratio(ts.avgLoss)
	report.GrossProfitPct = Ratio(ts.grossProfit)
	report.GrossLossPct = Ratio(ts.grossLoss)
	report.ProfitFactor = Ratio(ts.profitFactor)
	report.AvgHoldingDays = Ratio(hs.avg)
	report.MinHoldingDays = hs.min
	report.MaxHoldingDays = hs.max
	report.MaxConsecutiveLosses = streak
	report.MaxDrawdown = Ratio(dd.maxDrawdown)
	report.MaxDrawdownDuration = dd.duration
	report.SharpeRatio = Ratio(sharpe)
	report.Volatility = Ratio(vol)
	report.CAGR = Ratio(cagr)
	report.CalmarRatio = Ratio(calmarRatio(cagr, dd.maxDrawdown))
	return report
}

// calcTradeStats classifies and averages trades by their net return on cost.
func calcTradeStats(trades []types.Trade, wg *sync.WaitGroup) tradeStats {
	defer wg.Done()

	st := tradeStats{total: len(trades)}
	var wins, losses []float64
	for _, tr := range trades {
		net := tr.NetReturnPct()
		switch {
		case net.IsPositive():
			wins = append(wins, net.InexactFloat64())
		case net.IsNegative():
			losses = append(losses, net.InexactFloat64())
		}
	}
	st.wins, st.losses = len(wins), len(losses)
	if st.total > 0 {
		st.winRate = float64(st.wins) / float64(st.total)
	}
	if len(wins) > 0 {
		st.grossProfit, _ = stats.Sum(wins)
		st.avgWin, _ = stats.Mean(wins)
	}
	if len(losses) > 0 {
		sum, _ := stats.Sum(losses)
		st.grossLoss = math.Abs(sum)
		st.avgLoss, _ = stats.Mean(losses)
	}
	st.profitFactor = profitFactor(st.grossProfit, st.grossLoss)
	return st
}

// profitFactor is gross profit over gross loss: +Inf with no losses and some profit, 0 when both are 0.
func profitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

func calcHoldingStats(trades []types.Trade, wg *sync.WaitGroup) holdingStats {
	defer wg.Done()

	if len(trades) == 0 {
		return holdingStats{}
	}
	days := make([]float64, 0, len(trades))
	hs := holdingStats{min: math.MaxInt}
	for _, tr := range trades {
		d := tr.HoldingDays()
		days = append(days, float64(d))
		hs.min = min(hs.min, d)
		hs.max = max(hs.max, d)
	}
	hs.avg, _ = stats.Mean(days)
	return hs
}

// calcCAGR uses the first and last snapshot values over 365.25-day years.
func calcCAGR(snapshots []types.DailySnapshot, wg *sync.WaitGroup) float64 {
	defer wg.Done()
	if len(snapshots) < 2 {
		return 0
	}

	startSnap := snapshots[0]
	endSnap := snapshots[len(snapshots)-1]
	if !startSnap.PortfolioValue.IsPositive() {
		return 0
	}

	years := endSnap.Date.Sub(startSnap.Date).Hours() / (24.0 * 365.25)
	if years <= 0 {
		return 0
	}

	ratio := endSnap.PortfolioValue.Div(startSnap.PortfolioValue).InexactFloat64()
	if ratio <= 0 {
		return -1
	}
	return math.Pow(ratio, 1.0/years) - 1.0
}

// calcDrawdownMetrics tracks the running peak from the initial cash.
func calcDrawdownMetrics(initialCash decimal.Decimal, snapshots []types.DailySnapshot, wg *sync.WaitGroup) drawdownStats {
	defer wg.Done()

	if len(snapshots) == 0 {
		return drawdownStats{}
	}

	peak := initialCash
	peakTime := snapshots[0].Date
	var out drawdownStats

	for _, snap := range snapshots {
		if snap.PortfolioValue.GreaterThan(peak) {
			peak = snap.PortfolioValue
			peakTime = snap.Date
		}
		if !peak.IsPositive() {
			continue
		}
		dd := peak.Sub(snap.PortfolioValue).Div(peak).InexactFloat64()
		if dd > out.maxDrawdown {
			out.maxDrawdown = dd
			out.duration = snap.Date.Sub(peakTime)
		}
	}
	return out
}

func calcMaxConsecutiveLosses(trades []types.Trade, wg *sync.WaitGroup) int {
	defer wg.Done()

	sorted := make([]types.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitDate.Before(sorted[j].ExitDate)
	})

	maxLossStreak := 0
	currentStreak := 0
	for _, tr := range sorted {
		if tr.PnL().IsNegative() {
			currentStreak++
			maxLossStreak = max(maxLossStreak, currentStreak)
		} else {
			currentStreak = 0
		}
	}
	return maxLossStreak
}

// calcSharpeRatio annualizes mean/stdev of daily returns by sqrt(252). The standard deviation is
// the population one. It also returns the annualized volatility.
func calcSharpeRatio(returns []float64, wg *sync.WaitGroup) (float64, float64) {
	defer wg.Done()
	if len(returns) < 2 {
		return 0, 0
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return 0, 0
	}
	std, err := stats.StandardDeviationPopulation(returns)
	if err != nil || std == 0 {
		return 0, 0
	}
	annualize := math.Sqrt(tradingDaysPerYear)
	return mean / std * annualize, std * annualize
}

func dailyReturns(snapshots []types.DailySnapshot) []float64 {
	if len(snapshots) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].PortfolioValue
		if !prev.IsPositive() {
			continue
		}
		returns = append(returns, snapshots[i].PortfolioValue.Div(prev).InexactFloat64()-1)
	}
	return returns
}

func calmarRatio(cagr, maxDrawdown float64) float64 {
	if maxDrawdown == 0 {
		return 0
	}
	return cagr / maxDrawdown
}

var (
	reportTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4")).
				Padding(0, 1)
	reportSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#3B82F6"))
)

func formatRatio(r Ratio) string {
	f := float64(r)
	if math.IsInf(f, 1) {
		return "+Inf"
	}
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func printReport(w io.Writer, report *Report) {
	fmt.Fprintln(w, reportTitleStyle.Render("Portfolio Report"))
	fmt.Fprintf(w, "Run:                   %s\n", report.RunID)
	fmt.Fprintf(w, "Policy:                %s\n", report.Policy)
	fmt.Fprintf(w, "Period:                %s -> %s (%d days)\n",
		report.StartDate.Format(time.DateOnly), report.EndDate.Format(time.DateOnly), report.TotalPeriod/(24*time.Hour))

	fmt.Fprintln(w, reportSectionStyle.Render("\n-- Absolute Performance --"))
	fmt.Fprintf(w, "Initial Value:         %s\n", report.InitialValue.StringFixed(2))
	fmt.Fprintf(w, "Final Value:           %s\n", report.FinalValue.StringFixed(2))
	fmt.Fprintf(w, "Net Profit:            %s\n", report.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Total Return:          %s\n", formatRatio(report.TotalReturn))
	fmt.Fprintf(w, "CAGR:                  %s\n", formatRatio(report.CAGR))
	fmt.Fprintf(w, "Total Commission:      %s\n", report.TotalCommission.StringFixed(2))

	fmt.Fprintln(w, reportSectionStyle.Render("\n-- Trade-Level Metrics --"))
	fmt.Fprintf(w, "Total Trades:          %d\n", report.TotalTrades)
	fmt.Fprintf(w, "Winning / Losing:      %d / %d\n", report.WinningTrades, report.LosingTrades)
	fmt.Fprintf(w, "Win Rate:              %s\n", formatRatio(report.WinRate))
	fmt.Fprintf(w, "Avg Win %%:             %s\n", formatRatio(report.AvgWinPct))
	fmt.Fprintf(w, "Avg Loss %%:            %s\n", formatRatio(report.AvgLossPct))
	fmt.Fprintf(w, "Profit Factor:         %s\n", formatRatio(report.ProfitFactor))
	fmt.Fprintf(w, "Holding Days:          avg %s, min %d, max %d\n", formatRatio(report.AvgHoldingDays), report.MinHoldingDays, report.MaxHoldingDays)
	fmt.Fprintf(w, "Max Consecutive Losses:%d\n", report.MaxConsecutiveLosses)

	fmt.Fprintln(w, reportSectionStyle.Render("\n-- Risk-Adjusted Metrics --"))
	fmt.Fprintf(w, "Max Drawdown:          %s\n", formatRatio(report.MaxDrawdown))
	fmt.Fprintf(w, "Max Drawdown Days:     %d\n", report.MaxDrawdownDuration/(24*time.Hour))
	fmt.Fprintf(w, "Sharpe Ratio:          %s\n", formatRatio(report.SharpeRatio))
	fmt.Fprintf(w, "Calmar Ratio:          %s\n", formatRatio(report.CalmarRatio))
	fmt.Fprintf(w, "Volatility:            %s\n", formatRatio(report.Volatility))

	if len(report.SkippedTickers) > 0 {
		fmt.Fprintln(w, reportSectionStyle.Render("\n-- Skipped For Missing Prices --"))
		tickers := make([]string, 0, len(report.SkippedTickers))
		for t := range report.SkippedTickers {
			tickers = append(tickers, t)
		}
		sort.Strings(tickers)
		for _, t := range tickers {
			fmt.Fprintf(w, "%-22s %d\n", t+":", report.SkippedTickers[t])
		}
	}
}
