package config

import (
	"signalfolio/types"
)

var stockUniverses = []string{
	"SC1", "SC2", "SC3", "SC4", "MC1", "MC2", "LC1", "LC2",
	"Micro1", "Micro2", "Micro3", "Micro4",
}

var universeDefinitions = map[string][]string{
	"SC":     {"SC1", "SC2", "SC3", "SC4"},
	"MC":     {"MC1", "MC2"},
	"LC":     {"LC1", "LC2"},
	"Micro":  {"Micro1", "Micro2", "Micro3", "Micro4"},
	"Stocks": stockUniverses,
	"Crypto": {"Crypto"},
}

// ExpandUniverse resolves a shorthand to its member universes. Unknown names expand to themselves.
func ExpandUniverse(name string) []string {
	if members, ok := universeDefinitions[name]; ok {
		out := make([]string, len(members))
		copy(out, members)
		return out
	}
	return []string{name}
}

func IsCrypto(universe string) bool {
	return universe == "Crypto"
}

func IsStock(universe string) bool {
	for _, u := range stockUniverses {
		if u == universe {
			return true
		}
	}
	return false
}

func AssetType(universe string) types.AssetType {
	if IsCrypto(universe) {
		return types.AssetTypeCrypto
	}
	return types.AssetTypeStock
}

// AssetTypeTag names the decision folder for the universe's asset class.
func AssetTypeTag(universe string) string {
	if IsCrypto(universe) {
		return "crypto"
	}
	return "stocks"
}

func outputFolderType(universe string) string {
	if IsCrypto(universe) {
		return "output_crypto"
	}
	return "output"
}

// NormalizeTickers applies the universe's ticker casing to every entry.
func NormalizeTickers(tickers []string, universe string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t == "" {
			continue
		}
		out = append(out, types.NormalizeTicker(t, AssetType(universe)))
	}
	return out
}
