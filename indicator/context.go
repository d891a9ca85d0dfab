package indicator

import (
	"errors"
	"fmt"

	"github.com/evdnx/goti"

	"github.com/evdnx/gobinary/types"
)

// Context carries secondary oscillator readings from the goti suite. It is
// logged alongside each cycle and plays no part in the vote.
type Context struct {
	WilderRSI float64
	MFI       float64
	ATSO      float64
}

// MarketContext replays candles through a fresh goti IndicatorSuite.
func MarketContext(candles []types.Candle) (Context, error) {
	if len(candles) == 0 {
		return Context{}, errors.New("indicator: no candles for market context")
	}
	suite, err := goti.NewIndicatorSuiteWithConfig(goti.DefaultConfig())
	if err != nil {
		return Context{}, fmt.Errorf("indicator: build suite: %w", err)
	}
	for _, c := range candles {
		if err := suite.Add(c.High, c.Low, c.Close, c.Volume); err != nil {
			return Context{}, fmt.Errorf("indicator: suite add: %w", err)
		}
	}
	var ctx Context
	if ctx.WilderRSI, err = suite.GetRSI().Calculate(); err != nil {
		return Context{}, fmt.Errorf("indicator: rsi: %w", err)
	}
	if ctx.MFI, err = suite.GetMFI().Calculate(); err != nil {
		return Context{}, fmt.Errorf("indicator: mfi: %w", err)
	}
	if ctx.ATSO, err = suite.GetATSO().Calculate(); err != nil {
		return Context{}, fmt.Errorf("indicator: atso: %w", err)
	}
	return ctx, nil
}
