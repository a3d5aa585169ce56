package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"signalfolio/types"

	"github.com/gocarina/gocsv"
)

const (
	TradesFile       = "trades.csv"
	SnapshotsFile    = "snapshots.csv"
	TransactionsFile = "transactions.csv"
	SummaryFile      = "summary.json"
)

// Column order of tradeRow and snapshotRow is the output contract for downstream tooling.
type tradeRow struct {
	Ticker     string `csv:"ticker"`
	EntryDate  string `csv:"entry_date"`
	EntryPrice string `csv:"entry_price"`
	ExitDate   string `csv:"exit_date"`
	ExitPrice  string `csv:"exit_price"`
	Shares     string `csv:"shares"`
	ReturnPct  string `csv:"return_pct"`
	ExitReason string `csv:"exit_reason"`
}

type snapshotRow struct {
	Date           string `csv:"date"`
	PortfolioValue string `csv:"portfolio_value"`
	Cash           string `csv:"cash"`
	EquityValue    string `csv:"equity_value"`
	PositionCount  int    `csv:"position_count"`
}

type transactionRow struct {
	Date       string `csv:"date"`
	Ticker     string `csv:"ticker"`
	Side       string `csv:"side"`
	Shares     string `csv:"shares"`
	Price      string `csv:"price"`
	Commission string `csv:"commission"`
	CashAfter  string `csv:"cash_after"`
	Reason     string `csv:"reason"`
}

func toTradeRows(trades []types.Trade) []*tradeRow {
	rows := make([]*tradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, &tradeRow{
			Ticker:     t.Ticker,
			EntryDate:  t.EntryDate.Format(time.DateOnly),
			EntryPrice: t.EntryPrice.String(),
			ExitDate:   t.ExitDate.Format(time.DateOnly),
			ExitPrice:  t.ExitPrice.String(),
			Shares:     t.Shares.String(),
			ReturnPct:  t.ReturnPct.StringFixed(6),
			ExitReason: string(t.ExitReason),
		})
	}
	return rows
}

func toSnapshotRows(snapshots []types.DailySnapshot) []*snapshotRow {
	rows := make([]*snapshotRow, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, &snapshotRow{
			Date:           s.Date.Format(time.DateOnly),
			PortfolioValue: s.PortfolioValue.String(),
			Cash:           s.Cash.String(),
			EquityValue:    s.EquityValue.String(),
			PositionCount:  s.PositionCount,
		})
	}
	return rows
}

func toTransactionRows(txs []types.Transaction) []*transactionRow {
	rows := make([]*transactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &transactionRow{
			Date:       tx.Date.Format(time.DateOnly),
			Ticker:     tx.Ticker,
			Side:       string(tx.Side),
			Shares:     tx.Shares.String(),
			Price:      tx.Price.String(),
			Commission: tx.Commission.String(),
			CashAfter:  tx.CashAfter.String(),
			Reason:     tx.Reason,
		})
	}
	return rows
}

// writeTradesCSV writes trades to any io.Writer as CSV.
func writeTradesCSV(w io.Writer, trades []types.Trade) error {
	if err := gocsv.Marshal(toTradeRows(trades), w); err != nil {
		return fmt.Errorf("write trades csv: %w", err)
	}
	return nil
}

func writeSnapshotsCSV(w io.Writer, snapshots []types.DailySnapshot) error {
	if err := gocsv.Marshal(toSnapshotRows(snapshots), w); err != nil {
		return fmt.Errorf("write snapshots csv: %w", err)
	}
	return nil
}

func writeTransactionsCSV(w io.Writer, txs []types.Transaction) error {
	if err := gocsv.Marshal(toTransactionRows(txs), w); err != nil {
		return fmt.Errorf("write transactions csv: %w", err)
	}
	return nil
}

func writeSummaryJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// writeOutputs writes every run artifact into dir.
func writeOutputs(dir string, result *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{TradesFile, func(w io.Writer) error { return writeTradesCSV(w, result.Trades) }},
		{SnapshotsFile, func(w io.Writer) error { return writeSnapshotsCSV(w, result.Snapshots) }},
		{TransactionsFile, func(w io.Writer) error { return writeTransactionsCSV(w, result.Transactions) }},
		{SummaryFile, func(w io.Writer) error { return writeSummaryJSON(w, result.Report) }},
	}
	for _, f := range files {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}
