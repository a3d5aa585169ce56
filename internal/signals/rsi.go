package signals

import (
	"fmt"

	"signalfolio/types"
)

// RSI uses Wilder's relative strength index: buy when it crosses up through Lower, sell when it
// crosses down through Upper.
type RSI struct {
	Period int
	Lower  float64
	Upper  float64
}

func NewRSI(period int, lower, upper float64) *RSI {
	return &RSI{Period: period, Lower: lower, Upper: upper}
}

func (r *RSI) Name() string {
	return "rsi"
}

func (r *RSI) Decide(bars []types.PriceBar) ([]types.Decision, error) {
	if r.Period <= 0 || r.Lower >= r.Upper {
		return nil, fmt.Errorf("rsi period=%d lower=%v upper=%v", r.Period, r.Lower, r.Upper)
	}
	if err := needBars(bars, r.Period+2); err != nil {
		return nil, err
	}

	values := wilderRSI(closesOf(bars), r.Period)
	var e edge
	for i := r.Period + 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		switch {
		case prev < r.Lower && cur >= r.Lower:
			e.emit(r.Name(), bars[i], types.ActionBuy)
		case prev > r.Upper && cur <= r.Upper:
			e.emit(r.Name(), bars[i], types.ActionSell)
		}
	}
	return e.out, nil
}

// wilderRSI returns one value per close; entries before index period are zero.
func wilderRSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	if len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := change(closes[i-1], closes[i])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := change(closes[i-1], closes[i])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func change(prev, cur float64) (gain, loss float64) {
	d := cur - prev
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
