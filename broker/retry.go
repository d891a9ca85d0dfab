package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/clock"
	"github.com/evdnx/gobinary/logger"
	"github.com/evdnx/gobinary/metrics"
	"github.com/evdnx/gobinary/types"
)

// Retrying wraps a Broker and retries idempotent reads with a linear
// backoff, reconnecting first when the connection dropped. PlaceTrade is
// passed through untouched so an order is never submitted twice.
type Retrying struct {
	inner    Broker
	attempts int
	backoff  time.Duration
	clk      clock.Clock
	log      logger.Logger
}

// NewRetrying decorates inner. attempts is the number of retries after the
// first failure.
func NewRetrying(inner Broker, attempts int, backoff time.Duration, clk clock.Clock, log logger.Logger) *Retrying {
	if attempts < 0 {
		attempts = 0
	}
	return &Retrying{inner: inner, attempts: attempts, backoff: backoff, clk: clk, log: log}
}

func (r *Retrying) Connect(ctx context.Context) error { return r.inner.Connect(ctx) }
func (r *Retrying) IsConnected() bool                 { return r.inner.IsConnected() }
func (r *Retrying) Close() error                      { return r.inner.Close() }

func (r *Retrying) Balance(ctx context.Context) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := r.do(ctx, "balance", func() error {
		var err error
		bal, err = r.inner.Balance(ctx)
		return err
	})
	return bal, err
}

func (r *Retrying) Candles(ctx context.Context, instrument string, periodSeconds, count int, asOf time.Time) ([]types.Candle, error) {
	var out []types.Candle
	err := r.do(ctx, "candles", func() error {
		var err error
		out, err = r.inner.Candles(ctx, instrument, periodSeconds, count, asOf)
		return err
	})
	return out, err
}

func (r *Retrying) PlaceTrade(ctx context.Context, o types.Order) (bool, string, error) {
	ok, id, err := r.inner.PlaceTrade(ctx, o)
	if err != nil {
		metrics.BrokerErrors.WithLabelValues("place_trade").Inc()
	}
	return ok, id, err
}

func (r *Retrying) PollTradeResult(ctx context.Context, tradeID string) (bool, decimal.Decimal, error) {
	var (
		settled bool
		profit  decimal.Decimal
	)
	err := r.do(ctx, "poll_trade", func() error {
		var err error
		settled, profit, err = r.inner.PollTradeResult(ctx, tradeID)
		return err
	})
	return settled, profit, err
}

func (r *Retrying) do(ctx context.Context, op string, call func() error) error {
	var err error
	for i := 0; i <= r.attempts; i++ {
		if i > 0 {
			if serr := r.clk.Sleep(ctx, time.Duration(i)*r.backoff); serr != nil {
				return serr
			}
			if !r.inner.IsConnected() {
				if cerr := r.inner.Connect(ctx); cerr != nil {
					r.log.Warn("broker_reconnect_failed", logger.String("op", op), logger.Err(cerr))
					err = cerr
					continue
				}
				r.log.Info("broker_reconnected", logger.String("op", op))
			}
		}
		if err = call(); err == nil || errors.Is(err, ErrUnknownTrade) {
			return err
		}
		metrics.BrokerErrors.WithLabelValues(op).Inc()
		r.log.Warn("broker_call_failed",
			logger.String("op", op),
			logger.Int("attempt", i+1),
			logger.Err(err),
		)
	}
	return err
}
