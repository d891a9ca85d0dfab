package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a digital option: Buy ("call") bets on the price
// finishing higher, Sell ("put") on it finishing lower.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// BrokerDirection returns the wire name used by option brokers.
func (s Side) BrokerDirection() string {
	if s == Sell {
		return "put"
	}
	return "call"
}

// Signal is the outcome of the strategy for one cycle.
type Signal int

const (
	NoSignal Signal = iota
	BuySignal
	SellSignal
)

func (s Signal) String() string {
	switch s {
	case BuySignal:
		return "buy"
	case SellSignal:
		return "sell"
	default:
		return "none"
	}
}

// Side maps an actionable signal to an order side. ok is false for NoSignal.
func (s Signal) Side() (side Side, ok bool) {
	switch s {
	case BuySignal:
		return Buy, true
	case SellSignal:
		return Sell, true
	}
	return "", false
}

// Candle is one OHLC bar as delivered by the market-data feed.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}

// Order is a digital-option order request.
type Order struct {
	Instrument    string
	Side          Side
	Stake         decimal.Decimal
	ExpiryMinutes int
}

// TradeResult is produced once per executed trade.
type TradeResult struct {
	TradeID      string
	Side         Side
	Stake        decimal.Decimal
	ProfitOrLoss decimal.Decimal
	// Accepted is false when the broker rejected the order.
	Accepted bool
	// Settled is false when the broker never reported an outcome.
	Settled bool
}

// Win reports whether the trade settled with a positive payout.
func (r TradeResult) Win() bool {
	return r.Settled && r.ProfitOrLoss.IsPositive()
}
