package testutils

import (
	"time"

	"github.com/evdnx/gobinary/types"
)

// Candles builds a window from closing prices; every candle spans
// close±spread and is spaced by period, ending at end.
func Candles(closes []float64, spread float64, period time.Duration, end time.Time) []types.Candle {
	out := make([]types.Candle, len(closes))
	start := end.Add(-time.Duration(len(closes)-1) * period)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = types.Candle{
			Open:   open,
			High:   max(open, c) + spread,
			Low:    min(open, c) - spread,
			Close:  c,
			Volume: 1000,
			Time:   start.Add(time.Duration(i) * period),
		}
	}
	return out
}

// Zigzag returns n closes oscillating around base by amp, drifting by
// drift per candle.
func Zigzag(n int, base, amp, drift float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		off := amp
		if i%2 == 1 {
			off = -amp
		}
		out[i] = base + float64(i)*drift + off
	}
	return out
}
