package signals

import (
	"fmt"

	"signalfolio/types"

	"github.com/shopspring/decimal"
)

// Donchian buys a break of the highest high of the preceding Period bars and sells a break of the lowest low.
type Donchian struct {
	Period int
}

func NewDonchian(period int) *Donchian {
	return &Donchian{Period: period}
}

func (d *Donchian) Name() string {
	return "donchian"
}

func (d *Donchian) Decide(bars []types.PriceBar) ([]types.Decision, error) {
	if d.Period <= 0 {
		return nil, fmt.Errorf("donchian period %d", d.Period)
	}
	if err := needBars(bars, d.Period+1); err != nil {
		return nil, err
	}

	var e edge
	for i := d.Period; i < len(bars); i++ {
		// channel over the preceding bars, excluding the current one
		highestHigh, lowestLow := donchianHighLow(bars[i-d.Period : i])
		bar := bars[i]

		breakUp := bar.High.GreaterThan(highestHigh)
		breakDown := bar.Low.LessThan(lowestLow)
		switch {
		case breakUp && breakDown:
			// outside bar, no direction
		case breakUp:
			e.emit(d.Name(), bar, types.ActionBuy)
		case breakDown:
			e.emit(d.Name(), bar, types.ActionSell)
		}
	}
	return e.out, nil
}

func donchianHighLow(bars []types.PriceBar) (decimal.Decimal, decimal.Decimal) {
	if len(bars) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := bars[0].High
	lowest := bars[0].Low

	for _, b := range bars {
		if b.High.GreaterThan(highest) {
			highest = b.High
		}
		if b.Low.LessThan(lowest) {
			lowest = b.Low
		}
	}
	return highest, lowest
}
