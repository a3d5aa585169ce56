package repository

import (
	"context"
	"errors"
	"fmt"

	"signalfolio/types"

	"github.com/jackc/pgx/v5"
)

// GetAssetByTicker retrieves a types.Asset by its ticker.
func (db *Database) GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error) {
	asset, err := db.assets.GetAssetByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	return toAsset(asset), nil
}

// ListTickers returns every ticker of the asset type in ascending order.
func (db *Database) ListTickers(ctx context.Context, assetType types.AssetType) ([]string, error) {
	assets, err := db.assets.ListAssets(ctx, string(assetType))
	if err != nil {
		return nil, err
	}
	tickers := make([]string, 0, len(assets))
	for _, a := range assets {
		tickers = append(tickers, a.Ticker)
	}
	return tickers, nil
}

func toAsset(row assetRow) *types.Asset {
	return &types.Asset{
		Id:     int(row.ID),
		Ticker: row.Ticker,
		Name:   row.Name,
		Type:   types.AssetType(row.Type),
	}
}
