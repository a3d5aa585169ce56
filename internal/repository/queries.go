package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type queries struct {
	db dbtx
}

func newQueries(db dbtx) *queries {
	return &queries{db: db}
}

type assetRow struct {
	ID     int32  `db:"id"`
	Ticker string `db:"ticker"`
	Name   string `db:"name"`
	Type   string `db:"type"`
}

type dailyBarRow struct {
	AssetID int32           `db:"asset_id"`
	Date    time.Time       `db:"date"`
	Open    decimal.Decimal `db:"open"`
	High    decimal.Decimal `db:"high"`
	Low     decimal.Decimal `db:"low"`
	Close   decimal.Decimal `db:"close"`
	Volume  decimal.Decimal `db:"volume"`
}

type dailyBarsParams struct {
	AssetID int32
	Start   *time.Time
	End     *time.Time
}

type insertRunParams struct {
	ID           uuid.UUID
	Policy       string
	StartDate    *time.Time
	EndDate      *time.Time
	InitialValue decimal.Decimal
	FinalValue   decimal.Decimal
	Summary      []byte
}

const getAssetByTicker = `SELECT id, ticker, name, type FROM assets WHERE ticker = $1 LIMIT 1`

func (q *queries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	rows, err := q.db.Query(ctx, getAssetByTicker, ticker)
	if err != nil {
		return assetRow{}, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[assetRow])
}

const listAssets = `SELECT id, ticker, name, type FROM assets WHERE type = $1 ORDER BY ticker`

func (q *queries) ListAssets(ctx context.Context, assetType string) ([]assetRow, error) {
	rows, err := q.db.Query(ctx, listAssets, assetType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[assetRow])
}

const getDailyBars = `
SELECT asset_id, date, open, high, low, close, volume
FROM daily_bars
WHERE asset_id = $1
  AND ($2::date IS NULL OR date >= $2::date)
  AND ($3::date IS NULL OR date <= $3::date)
ORDER BY date`

func (q *queries) GetDailyBars(ctx context.Context, arg dailyBarsParams) ([]dailyBarRow, error) {
	rows, err := q.db.Query(ctx, getDailyBars, arg.AssetID, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[dailyBarRow])
}

const insertRun = `
INSERT INTO backtest_runs (id, policy, start_date, end_date, initial_value, final_value, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *queries) InsertRun(ctx context.Context, arg insertRunParams) error {
	_, err := q.db.Exec(ctx, insertRun,
		arg.ID, arg.Policy, arg.StartDate, arg.EndDate, arg.InitialValue, arg.FinalValue, arg.Summary)
	return err
}

var tradeColumns = []string{
	"run_id", "ticker", "direction", "entry_date", "entry_price", "exit_date", "exit_price", "shares", "return_pct", "exit_reason",
}

func (q *queries) CopyTrades(ctx context.Context, rows [][]any) (int64, error) {
	return q.db.CopyFrom(ctx, pgx.Identifier{"backtest_trades"}, tradeColumns, pgx.CopyFromRows(rows))
}

var snapshotColumns = []string{"run_id", "date", "portfolio_value", "cash", "equity_value", "position_count"}

func (q *queries) CopySnapshots(ctx context.Context, rows [][]any) (int64, error) {
	return q.db.CopyFrom(ctx, pgx.Identifier{"backtest_snapshots"}, snapshotColumns, pgx.CopyFromRows(rows))
}
