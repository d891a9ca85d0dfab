// Package bot is the trading control loop. Each Tick evaluates the risk
// gates, reads the market, votes on a direction and, when a signal is
// present, places and settles one trade.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/broker"
	"github.com/evdnx/gobinary/clock"
	"github.com/evdnx/gobinary/config"
	"github.com/evdnx/gobinary/executor"
	"github.com/evdnx/gobinary/indicator"
	"github.com/evdnx/gobinary/logger"
	"github.com/evdnx/gobinary/metrics"
	"github.com/evdnx/gobinary/risk"
	"github.com/evdnx/gobinary/strategy"
	"github.com/evdnx/gobinary/types"
)

// ErrNotStarted is returned by Tick before Start succeeded.
var ErrNotStarted = errors.New("bot: not started")

// Outcome summarizes one cycle.
type Outcome struct {
	Phase  risk.Phase
	Reason risk.Reason
	// Delay is how long to wait before the next cycle.
	Delay   time.Duration
	Balance decimal.Decimal
	Signal  types.Signal
	// Trade is nil when no order was attempted.
	Trade *types.TradeResult
}

// Bot owns the risk state and drives the broker. Not safe for concurrent
// use.
type Bot struct {
	cfg    config.Config
	broker broker.Broker
	clk    clock.Clock
	log    logger.Logger

	params indicator.Params
	vote   *strategy.Vote
	exec   *executor.Executor
	limits risk.Limits

	state    *risk.State
	realized decimal.Decimal
}

// New validates cfg and wires the components around b.
func New(cfg config.Config, b broker.Broker, clk clock.Clock, log logger.Logger) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	params := cfg.Strategy.IndicatorParams()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	vote, err := strategy.NewVote(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	limits, err := risk.LimitsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}
	return &Bot{
		cfg:    cfg,
		broker: b,
		clk:    clk,
		log:    log,
		params: params,
		vote:   vote,
		exec:   executor.New(b, clk, log, executor.OptionsFromConfig(cfg.Trading)),
		limits: limits,
	}, nil
}

// Start makes sure the broker is connected and seeds the daily levels from
// the opening balance.
func (b *Bot) Start(ctx context.Context) error {
	if !b.broker.IsConnected() {
		if err := b.broker.Connect(ctx); err != nil {
			return fmt.Errorf("bot: connect: %w", err)
		}
	}
	bal, err := b.broker.Balance(ctx)
	if err != nil {
		return fmt.Errorf("bot: initial balance: %w", err)
	}
	b.state = risk.NewState(bal, b.limits)
	b.realized = decimal.Zero
	b.log.Info("session_started",
		logger.String("instrument", b.cfg.Trading.Instrument),
		logger.Int("timeframe_minutes", b.cfg.Trading.TimeframeMinutes),
		logger.Decimal("balance", bal),
		logger.Decimal("stop_win", b.state.StopWinLevel),
		logger.Decimal("stop_loss", b.state.StopLossLevel))
	metrics.Balance.Set(bal.InexactFloat64())
	b.publish(risk.Trading)
	return nil
}

// State exposes the risk state for inspection. Nil before Start.
func (b *Bot) State() *risk.State { return b.state }

// Tick runs one cycle without sleeping.
func (b *Bot) Tick(ctx context.Context) (Outcome, error) {
	if b.state == nil {
		return Outcome{}, ErrNotStarted
	}
	now := b.clk.Now()
	timeframe := b.cfg.Trading.Timeframe()

	if d := b.state.Gate(now); !d.CanTrade() {
		b.paused(d)
		return Outcome{Phase: d.Phase, Reason: d.Reason, Delay: d.Wait}, nil
	}

	bal, err := b.broker.Balance(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("bot: balance: %w", err)
	}
	metrics.Balance.Set(bal.InexactFloat64())

	d := b.state.CheckBalance(now, bal)
	if d.Rebased {
		b.log.Info("levels_rebased",
			logger.Decimal("balance", bal),
			logger.Decimal("stop_win", b.state.StopWinLevel),
			logger.Decimal("stop_loss", b.state.StopLossLevel))
	}
	if d.Ratcheted {
		b.log.Info("trailing_stop_raised",
			logger.Decimal("trailing", b.state.TrailingStopLevel),
			logger.Decimal("stop_loss", b.state.StopLossLevel))
	}
	if !d.CanTrade() {
		b.log.Warn("day_halted",
			logger.String("reason", string(d.Reason)),
			logger.Decimal("balance", bal),
			logger.Time("until", d.PauseUntil))
		b.publish(d.Phase)
		return Outcome{Phase: d.Phase, Reason: d.Reason, Delay: d.Wait, Balance: bal}, nil
	}

	out := Outcome{Phase: risk.Trading, Delay: timeframe, Balance: bal}
	candles, err := b.broker.Candles(ctx, b.cfg.Trading.Instrument, int(timeframe/time.Second), b.cfg.Strategy.CandleCount, now)
	if err != nil {
		return out, fmt.Errorf("bot: candles: %w", err)
	}
	snap, err := b.params.Compute(candles)
	if errors.Is(err, indicator.ErrInsufficientHistory) {
		b.log.Warn("insufficient_history", logger.Int("candles", len(candles)), logger.Int("required", b.params.MinCandles))
		b.publish(risk.Trading)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("bot: indicators: %w", err)
	}
	if mc, err := indicator.MarketContext(candles); err == nil {
		b.log.Debug("market_context",
			logger.Float64("wilder_rsi", mc.WilderRSI),
			logger.Float64("mfi", mc.MFI),
			logger.Float64("atso", mc.ATSO))
	}

	out.Signal = b.vote.Generate(snap)
	metrics.Signals.WithLabelValues(out.Signal.String()).Inc()
	side, ok := out.Signal.Side()
	if !ok {
		b.log.Info("no_signal",
			logger.Float64("close", snap.Close),
			logger.Float64("rsi", snap.RSI),
			logger.Float64("ema_fast", snap.EMA15),
			logger.Float64("ema_slow", snap.EMA50),
			logger.Float64("atr", snap.ATR))
		b.publish(risk.Trading)
		return out, nil
	}

	stake := risk.CalcStake(bal, b.cfg.Risk.EntryPct, b.cfg.Risk.MinStake)
	if !stake.IsPositive() {
		b.log.Warn("stake_unavailable", logger.Decimal("balance", bal))
		b.publish(risk.Trading)
		return out, nil
	}
	b.log.Info("signal",
		logger.String("signal", out.Signal.String()),
		logger.Decimal("stake", stake),
		logger.Float64("close", snap.Close),
		logger.Float64("rsi", snap.RSI))

	res, err := b.exec.Execute(ctx, side, stake)
	out.Trade = &res
	switch {
	case errors.Is(err, executor.ErrSettlementTimeout):
		// the outcome is unknown, so the streak is left as is
	case err != nil:
		return out, fmt.Errorf("bot: execute: %w", err)
	}

	rd := b.state.RecordTrade(b.clk.Now(), res)
	if res.Settled {
		b.realized = b.realized.Add(res.ProfitOrLoss)
		metrics.RealizedPnL.Set(b.realized.InexactFloat64())
	}
	if res.Accepted {
		b.logBalance(ctx)
	}
	if !rd.CanTrade() {
		b.log.Warn("cooldown_started",
			logger.Int("consecutive_losses", b.state.ConsecutiveLosses),
			logger.Time("until", rd.PauseUntil))
		out.Phase, out.Reason = rd.Phase, rd.Reason
	}
	b.publish(out.Phase)
	return out, nil
}

// Run loops Tick until ctx is done. A failed cycle is logged and retried
// after PauseRetryDelay.
func (b *Bot) Run(ctx context.Context) error {
	if b.state == nil {
		if err := b.Start(ctx); err != nil {
			return err
		}
	}
	for {
		out, err := b.Tick(ctx)
		delay := out.Delay
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Error("cycle_failed", logger.Err(err))
			delay = b.cfg.Trading.PauseRetryDelay
		}
		if err := b.clk.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (b *Bot) paused(d risk.Decision) {
	b.publish(d.Phase)
	if d.Phase == risk.PausedForWindow {
		b.log.Info("outside_trading_hours", logger.Duration("retry_in", d.Wait))
		return
	}
	b.log.Info("paused",
		logger.String("reason", string(d.Reason)),
		logger.Time("until", d.PauseUntil))
}

func (b *Bot) logBalance(ctx context.Context) {
	bal, err := b.broker.Balance(ctx)
	if err != nil {
		b.log.Warn("balance_refresh_failed", logger.Err(err))
		return
	}
	metrics.Balance.Set(bal.InexactFloat64())
	b.log.Info("balance", logger.Decimal("balance", bal), logger.Decimal("realized", b.realized))
}

func (b *Bot) publish(p risk.Phase) {
	metrics.Phase.Set(float64(p))
	metrics.ConsecutiveLosses.Set(float64(b.state.ConsecutiveLosses))
	metrics.RiskLevel.WithLabelValues("stop_win").Set(b.state.StopWinLevel.InexactFloat64())
	metrics.RiskLevel.WithLabelValues("stop_loss").Set(b.state.StopLossLevel.InexactFloat64())
	metrics.RiskLevel.WithLabelValues("trailing").Set(b.state.TrailingStopLevel.InexactFloat64())
}
