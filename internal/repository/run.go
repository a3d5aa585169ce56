package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"signalfolio/internal/engine"
	"signalfolio/types"

	"github.com/google/uuid"
)

// SaveRun persists a finished run, its trades and its daily snapshots in one transaction.
func (db *Database) SaveRun(ctx context.Context, runID string, report *engine.Report, trades []types.Trade, snapshots []types.DailySnapshot) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("run id %q: %w", runID, err)
	}
	summary, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	run := insertRunParams{
		ID:           id,
		Policy:       report.Policy,
		StartDate:    optionalDate(report.StartDate),
		EndDate:      optionalDate(report.EndDate),
		InitialValue: report.InitialValue,
		FinalValue:   report.FinalValue,
		Summary:      summary,
	}

	return db.inTx(ctx, func(runs runsRepository) error {
		if err := runs.InsertRun(ctx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		if _, err := runs.CopyTrades(ctx, tradeRows(id, trades)); err != nil {
			return fmt.Errorf("copy trades: %w", err)
		}
		if _, err := runs.CopySnapshots(ctx, snapshotRows(id, snapshots)); err != nil {
			return fmt.Errorf("copy snapshots: %w", err)
		}
		return nil
	})
}

func tradeRows(id uuid.UUID, trades []types.Trade) [][]any {
	rows := make([][]any, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []any{
			id, t.Ticker, string(t.Direction), t.EntryDate, t.EntryPrice, t.ExitDate, t.ExitPrice, t.Shares, t.ReturnPct, string(t.ExitReason),
		})
	}
	return rows
}

func snapshotRows(id uuid.UUID, snapshots []types.DailySnapshot) [][]any {
	rows := make([][]any, 0, len(snapshots))
	for _, s := range snapshots {
		rows = append(rows, []any{id, s.Date, s.PortfolioValue, s.Cash, s.EquityValue, int32(s.PositionCount)})
	}
	return rows
}

func optionalDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
