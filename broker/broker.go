// Package broker defines the brokerage collaborator the trading loop talks
// to, plus a retrying decorator. Concrete venues live in subpackages.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/types"
)

var (
	// ErrNotConnected is returned by calls made before Connect succeeded.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrUnknownTrade is returned when polling an id the broker never issued.
	ErrUnknownTrade = errors.New("broker: unknown trade id")
)

// Broker is the digital-options brokerage API.
type Broker interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Balance(ctx context.Context) (decimal.Decimal, error)
	// Candles returns up to count candles of periodSeconds each, ending at
	// asOf, oldest first.
	Candles(ctx context.Context, instrument string, periodSeconds, count int, asOf time.Time) ([]types.Candle, error)
	// PlaceTrade submits an order. accepted is false when the broker
	// refused it; err is reserved for transport failures.
	PlaceTrade(ctx context.Context, o types.Order) (accepted bool, tradeID string, err error)
	// PollTradeResult reports whether the trade has settled and, if so, its
	// profit (negative on a loss).
	PollTradeResult(ctx context.Context, tradeID string) (settled bool, profit decimal.Decimal, err error)
	Close() error
}
