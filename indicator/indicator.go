// Package indicator turns a window of candles into the indicator snapshot
// the strategy votes on: EMA(15), EMA(50), RSI(12), Bollinger(20,2) and
// ATR(14), all evaluated at the most recent candle.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/evdnx/gobinary/types"
)

// ErrInsufficientHistory is returned when the window is shorter than
// Params.MinCandles.
var ErrInsufficientHistory = errors.New("indicator: insufficient candle history")

// Params holds indicator periods.
type Params struct {
	FastEMA    int
	SlowEMA    int
	RSIPeriod  int
	BandPeriod int
	BandWidth  float64 // number of standard deviations
	ATRPeriod  int
	// MinCandles is the shortest window Compute accepts.
	MinCandles int
}

// DefaultParams returns EMA 15/50, RSI 12, Bollinger 20/2, ATR 14 and a
// 50 candle minimum.
func DefaultParams() Params {
	return Params{
		FastEMA:    15,
		SlowEMA:    50,
		RSIPeriod:  12,
		BandPeriod: 20,
		BandWidth:  2,
		ATRPeriod:  14,
		MinCandles: 50,
	}
}

// Validate checks the periods are usable.
func (p Params) Validate() error {
	switch {
	case p.FastEMA <= 0 || p.SlowEMA <= 0:
		return errors.New("indicator: EMA periods must be positive")
	case p.RSIPeriod <= 0:
		return errors.New("indicator: RSI period must be positive")
	case p.BandPeriod < 2:
		return errors.New("indicator: band period must be at least 2")
	case p.BandWidth <= 0:
		return errors.New("indicator: band width must be positive")
	case p.ATRPeriod <= 0:
		return errors.New("indicator: ATR period must be positive")
	}
	longest := max(p.SlowEMA, p.RSIPeriod+1, p.BandPeriod, p.ATRPeriod)
	if p.MinCandles < longest {
		return fmt.Errorf("indicator: MinCandles (%d) below longest period (%d)", p.MinCandles, longest)
	}
	return nil
}

// Snapshot is the indicator state for the latest candle. Undefined values
// are NaN.
type Snapshot struct {
	Close float64
	EMA15 float64
	EMA50 float64
	RSI   float64
	SMA20 float64
	STD20 float64
	Upper float64
	Lower float64
	ATR   float64
}

// HasRSI is false when RSI is undefined (no losses in the RSI window).
func (s Snapshot) HasRSI() bool { return !math.IsNaN(s.RSI) }

// Compute evaluates the default indicator set over candles (oldest first).
func Compute(candles []types.Candle) (Snapshot, error) {
	return DefaultParams().Compute(candles)
}

// Compute evaluates the indicator set over candles (oldest first).
func (p Params) Compute(candles []types.Candle) (Snapshot, error) {
	if len(candles) < p.MinCandles {
		return Snapshot{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientHistory, len(candles), p.MinCandles)
	}
	closes := Closes(candles)
	sma := SMA(closes, p.BandPeriod)
	std := StdDev(closes, p.BandPeriod)
	return Snapshot{
		Close: closes[len(closes)-1],
		EMA15: last(EMA(closes, p.FastEMA)),
		EMA50: last(EMA(closes, p.SlowEMA)),
		RSI:   RSI(closes, p.RSIPeriod),
		SMA20: sma,
		STD20: std,
		Upper: sma + p.BandWidth*std,
		Lower: sma - p.BandWidth*std,
		ATR:   ATR(candles, p.ATRPeriod),
	}, nil
}

// EMA returns the exponential moving average series of x, seeded with x[0].
func EMA(x []float64, n int) []float64 {
	res := make([]float64, len(x))
	if len(x) == 0 {
		return res
	}
	k := 2.0 / (float64(n) + 1)
	res[0] = x[0]
	for i := 1; i < len(x); i++ {
		res[i] = x[i]*k + res[i-1]*(1-k)
	}
	return res
}

// SMA returns the simple mean of the last n values, or NaN when fewer exist.
func SMA(x []float64, n int) float64 {
	if n <= 0 || len(x) < n {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range x[len(x)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// StdDev returns the sample standard deviation (n-1) of the last n values.
func StdDev(x []float64, n int) float64 {
	if n < 2 || len(x) < n {
		return math.NaN()
	}
	mean := SMA(x, n)
	ss := 0.0
	for _, v := range x[len(x)-n:] {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// RSI returns the relative strength index of the last close using simple
// n-sample averages of gains and losses. The first close has no delta and
// counts as a zero move. RSI is NaN when the average loss is zero.
func RSI(closes []float64, n int) float64 {
	if n <= 0 || len(closes) < n {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		if i == 0 {
			continue
		}
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(n)
	avgLoss := loss / float64(n)
	if avgLoss == 0 {
		return math.NaN()
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// TrueRange returns the true range of every candle. The first candle has no
// previous close, so its range is high-low.
func TrueRange(candles []types.Candle) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		hl := c.High - c.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prev := candles[i-1].Close
		tr[i] = max(hl, math.Abs(c.High-prev), math.Abs(c.Low-prev))
	}
	return tr
}

// ATR is the n-sample simple average of the true range.
func ATR(candles []types.Candle, n int) float64 {
	return SMA(TrueRange(candles), n)
}

// Closes extracts closing prices.
func Closes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

func last(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return x[len(x)-1]
}
