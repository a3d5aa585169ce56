package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one daily OHLCV bar. Bars are ordered ascending by Date per ticker.
type PriceBar struct {
	Ticker string          `json:"ticker"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// EntryPrice is the fill price for an entry on this bar: the open, or the close when the open is missing.
func (b PriceBar) EntryPrice() decimal.Decimal {
	if b.Open.IsPositive() {
		return b.Open
	}
	return b.Close
}
