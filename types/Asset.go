package types

import (
	"strings"
)

type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeEtf    AssetType = "ETF"
)

type Asset struct {
	Id     int       `json:"id"`
	Ticker string    `json:"ticker"`
	Name   string    `json:"name"`
	Type   AssetType `json:"type"`
}

// NormalizeTicker lowercases crypto tickers and uppercases everything else.
func NormalizeTicker(ticker string, assetType AssetType) string {
	ticker = strings.TrimSpace(ticker)
	if assetType == AssetTypeCrypto {
		return strings.ToLower(ticker)
	}
	return strings.ToUpper(ticker)
}
