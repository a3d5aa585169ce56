package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Global error declarations.
var (
	ErrAssetNotFound = errors.New("not found in datasource")
	ErrNoPrices      = errors.New("no prices found in datasource")
	ErrNoDecisions   = errors.New("no decisions found")
)

//go:embed schema.sql
var schema string

type assetsRepository interface {
	GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error)
	ListAssets(ctx context.Context, assetType string) ([]assetRow, error)
}

type barsRepository interface {
	GetDailyBars(ctx context.Context, arg dailyBarsParams) ([]dailyBarRow, error)
}

type runsRepository interface {
	InsertRun(ctx context.Context, arg insertRunParams) error
	CopyTrades(ctx context.Context, rows [][]any) (int64, error)
	CopySnapshots(ctx context.Context, rows [][]any) (int64, error)
}

// Database holds the connection pool and the queries run against it.
type Database struct {
	assets assetsRepository
	bars   barsRepository
	runs   runsRepository
	conn   *pgxpool.Pool
}

// NewDatabase creates a new Database instance and verifies connectivity.
func NewDatabase(ctx context.Context, dbURL string) (*Database, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Register shopspring decimal
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	conn, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	// Ensure the connection is established.
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	queries := newQueries(conn)
	return &Database{
		assets: queries,
		bars:   queries,
		runs:   queries,
		conn:   conn,
	}, nil
}

// Migrate creates the tables the repository reads and writes.
func (db *Database) Migrate(ctx context.Context) error {
	if _, err := db.conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	if db.conn != nil {
		db.conn.Close()
	}
}

// inTx runs fn against a transaction, or directly against the runs repository when there is no pool.
func (db *Database) inTx(ctx context.Context, fn func(runs runsRepository) error) error {
	if db.conn == nil {
		return fn(db.runs)
	}
	return pgx.BeginFunc(ctx, db.conn, func(tx pgx.Tx) error {
		return fn(newQueries(tx))
	})
}
