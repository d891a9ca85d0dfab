// Package executor submits a digital-option order and waits for the
// broker to settle it.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/broker"
	"github.com/evdnx/gobinary/clock"
	"github.com/evdnx/gobinary/config"
	"github.com/evdnx/gobinary/logger"
	"github.com/evdnx/gobinary/metrics"
	"github.com/evdnx/gobinary/types"
)

// ErrSettlementTimeout is returned when an accepted trade is still open
// after the settlement bound.
var ErrSettlementTimeout = errors.New("executor: settlement timed out")

// Options controls submission and polling.
type Options struct {
	Instrument        string
	ExpiryMinutes     int
	PollInterval      time.Duration
	SettlementTimeout time.Duration
}

// OptionsFromConfig derives executor options from the trading section.
func OptionsFromConfig(c config.TradingConfig) Options {
	return Options{
		Instrument:        c.Instrument,
		ExpiryMinutes:     c.Expiry(),
		PollInterval:      c.PollInterval,
		SettlementTimeout: c.SettlementBound(),
	}
}

// Executor places one trade at a time and blocks until it settles.
type Executor struct {
	broker broker.Broker
	clk    clock.Clock
	log    logger.Logger
	opts   Options
}

func New(b broker.Broker, clk clock.Clock, log logger.Logger, opts Options) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.SettlementTimeout <= 0 {
		opts.SettlementTimeout = time.Duration(opts.ExpiryMinutes)*time.Minute + 2*time.Minute
	}
	return &Executor{broker: b, clk: clk, log: log, opts: opts}
}

// Execute submits a side/stake order. A refused order, or one the broker
// could not receive, yields a non-accepted result and a nil error. An
// accepted order is polled until it settles, the settlement bound passes
// (ErrSettlementTimeout) or ctx is done.
func (e *Executor) Execute(ctx context.Context, side types.Side, stake decimal.Decimal) (types.TradeResult, error) {
	res := types.TradeResult{Side: side, Stake: stake}
	order := types.Order{
		Instrument:    e.opts.Instrument,
		Side:          side,
		Stake:         stake,
		ExpiryMinutes: e.opts.ExpiryMinutes,
	}

	accepted, id, err := e.broker.PlaceTrade(ctx, order)
	if err != nil || !accepted {
		fields := []logger.Field{
			logger.String("direction", side.BrokerDirection()),
			logger.Decimal("stake", stake),
		}
		if err != nil {
			fields = append(fields, logger.Err(err))
		}
		e.log.Error("order_rejected", fields...)
		metrics.Trades.WithLabelValues("rejected").Inc()
		return res, nil
	}
	res.Accepted = true
	res.TradeID = id
	e.log.Info("order_submitted",
		logger.String("trade_id", id),
		logger.String("instrument", order.Instrument),
		logger.String("direction", side.BrokerDirection()),
		logger.Decimal("stake", stake),
		logger.Int("expiry_minutes", order.ExpiryMinutes))

	started := e.clk.Now()
	deadline := started.Add(e.opts.SettlementTimeout)
	for {
		settled, profit, err := e.broker.PollTradeResult(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			e.log.Warn("settlement_poll_failed", logger.String("trade_id", id), logger.Err(err))
		case settled:
			res.Settled = true
			res.ProfitOrLoss = profit
			outcome := "loss"
			if res.Win() {
				outcome = "win"
			}
			metrics.Trades.WithLabelValues(outcome).Inc()
			metrics.SettlementSeconds.Observe(e.clk.Now().Sub(started).Seconds())
			e.log.Info("trade_settled",
				logger.String("trade_id", id),
				logger.String("outcome", outcome),
				logger.Decimal("profit", profit))
			return res, nil
		}

		if !e.clk.Now().Before(deadline) {
			metrics.Trades.WithLabelValues("unsettled").Inc()
			e.log.Error("settlement_timeout",
				logger.String("trade_id", id),
				logger.Duration("waited", e.clk.Now().Sub(started)))
			return res, ErrSettlementTimeout
		}
		if err := e.clk.Sleep(ctx, e.opts.PollInterval); err != nil {
			return res, err
		}
	}
}
