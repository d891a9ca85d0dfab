package strategy

import (
	"errors"
	"math"

	"github.com/evdnx/gobinary/config"
	"github.com/evdnx/gobinary/indicator"
	"github.com/evdnx/gobinary/types"
)

// Ballot records how each heuristic voted on one snapshot. NoSignal means
// the heuristic abstained.
type Ballot struct {
	RSI   types.Signal // momentum
	Trend types.Signal // EMA alignment
	Band  types.Signal // Bollinger mean reversion, trend filtered
	// Gated is true when the volatility filter suppressed the vote.
	Gated bool
}

// Count returns the number of buy and sell votes.
func (b Ballot) Count() (buys, sells int) {
	for _, v := range []types.Signal{b.RSI, b.Trend, b.Band} {
		switch v {
		case types.BuySignal:
			buys++
		case types.SellSignal:
			sells++
		}
	}
	return buys, sells
}

// Vote is a majority-of-three strategy: RSI extremes, EMA trend and a
// Bollinger touch in the trend's direction. Two agreeing votes produce a
// signal, and a flat market (ATR below MinATR) produces none.
type Vote struct {
	oversold   float64
	overbought float64
	minATR     float64
}

// NewVote validates the thresholds and builds the strategy.
func NewVote(cfg config.StrategyConfig) (*Vote, error) {
	if cfg.RSIOversold >= cfg.RSIOverbought {
		return nil, errors.New("strategy: RSIOversold must be below RSIOverbought")
	}
	if cfg.MinATR < 0 {
		return nil, errors.New("strategy: MinATR cannot be negative")
	}
	return &Vote{oversold: cfg.RSIOversold, overbought: cfg.RSIOverbought, minATR: cfg.MinATR}, nil
}

// Generate maps a snapshot to a signal.
func (v *Vote) Generate(s indicator.Snapshot) types.Signal {
	b := v.Explain(s)
	if b.Gated {
		return types.NoSignal
	}
	buys, sells := b.Count()
	switch {
	case buys >= 2:
		return types.BuySignal
	case sells >= 2:
		return types.SellSignal
	}
	return types.NoSignal
}

// Explain collects the individual votes.
func (v *Vote) Explain(s indicator.Snapshot) Ballot {
	var b Ballot
	if math.IsNaN(s.ATR) || s.ATR < v.minATR {
		b.Gated = true
		return b
	}

	if s.HasRSI() {
		switch {
		case s.RSI < v.oversold:
			b.RSI = types.BuySignal
		case s.RSI > v.overbought:
			b.RSI = types.SellSignal
		}
	}

	uptrend := s.EMA15 > s.EMA50
	downtrend := s.EMA15 < s.EMA50
	switch {
	case uptrend:
		b.Trend = types.BuySignal
	case downtrend:
		b.Trend = types.SellSignal
	}

	switch {
	case s.Close <= s.Lower && uptrend:
		b.Band = types.BuySignal
	case s.Close >= s.Upper && downtrend:
		b.Band = types.SellSignal
	}
	return b
}
