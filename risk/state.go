package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/config"
	"github.com/evdnx/gobinary/types"
)

// Phase is the trading permission for the current cycle.
type Phase int

const (
	Trading Phase = iota
	PausedForWindow
	PausedForCooldown
	HaltedForDay
)

func (p Phase) String() string {
	switch p {
	case Trading:
		return "trading"
	case PausedForWindow:
		return "paused_for_window"
	case PausedForCooldown:
		return "paused_for_cooldown"
	case HaltedForDay:
		return "halted_for_day"
	}
	return "unknown"
}

// Reason explains a pause or halt.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonOutsideHours Reason = "outside_hours"
	ReasonLossStreak   Reason = "loss_streak"
	ReasonStopLoss     Reason = "stop_loss"
	ReasonTarget       Reason = "target_reached"
)

func (r Reason) phase() Phase {
	switch r {
	case ReasonStopLoss, ReasonTarget:
		return HaltedForDay
	case ReasonLossStreak:
		return PausedForCooldown
	case ReasonOutsideHours:
		return PausedForWindow
	}
	return Trading
}

// Decision is the outcome of one evaluation step.
type Decision struct {
	Phase  Phase
	Reason Reason
	// Wait is the suggested delay before the next cycle when not trading.
	Wait       time.Duration
	PauseUntil time.Time
	// Ratcheted is set when the trailing stop moved up.
	Ratcheted bool
	// Rebased is set when the daily levels were re-seeded.
	Rebased bool
}

// CanTrade is true for the Trading phase.
func (d Decision) CanTrade() bool { return d.Phase == Trading }

// Limits are the fixed parameters of the state machine.
type Limits struct {
	StopWinPct   float64
	StopLossPct  float64
	TrailingStep float64

	SessionStartHour int
	SessionEndHour   int
	Location         *time.Location

	CooldownLosses   int
	CooldownDuration time.Duration
	DailyReset       bool

	WindowRetryDelay time.Duration
	PauseRetryDelay  time.Duration
}

// LimitsFromConfig assembles Limits from the risk and trading sections.
func LimitsFromConfig(cfg config.Config) (Limits, error) {
	loc, err := cfg.Risk.Location()
	if err != nil {
		return Limits{}, err
	}
	return Limits{
		StopWinPct:       cfg.Risk.StopWinPct,
		StopLossPct:      cfg.Risk.StopLossPct,
		TrailingStep:     cfg.Risk.TrailingStep,
		SessionStartHour: cfg.Risk.SessionStartHour,
		SessionEndHour:   cfg.Risk.SessionEndHour,
		Location:         loc,
		CooldownLosses:   cfg.Risk.CooldownLosses,
		CooldownDuration: cfg.Risk.CooldownDuration,
		DailyReset:       cfg.Risk.DailyReset,
		WindowRetryDelay: cfg.Trading.WindowRetryDelay,
		PauseRetryDelay:  cfg.Trading.PauseRetryDelay,
	}, nil
}

// State tracks the daily levels and the loss streak. It is owned by the
// control loop and is not safe for concurrent use.
//
// StopLossLevel never exceeds TrailingStopLevel, and both only move up
// between re-seeds.
type State struct {
	InitialBalance    decimal.Decimal
	StopWinLevel      decimal.Decimal
	StopLossLevel     decimal.Decimal
	TrailingStopLevel decimal.Decimal
	ConsecutiveLosses int
	// PauseUntil is zero when no pause is active.
	PauseUntil  time.Time
	PauseReason Reason

	lim           Limits
	rebasePending bool
}

// NewState seeds the levels from the opening balance.
func NewState(initial decimal.Decimal, lim Limits) *State {
	if lim.Location == nil {
		lim.Location = time.Local
	}
	s := &State{lim: lim}
	s.reset(initial)
	return s
}

// Limits returns the parameters the state was built with.
func (s *State) Limits() Limits { return s.lim }

func (s *State) reset(balance decimal.Decimal) {
	one := decimal.NewFromInt(1)
	s.InitialBalance = balance
	s.StopWinLevel = balance.Mul(one.Add(decimal.NewFromFloat(s.lim.StopWinPct)))
	s.StopLossLevel = balance.Mul(one.Sub(decimal.NewFromFloat(s.lim.StopLossPct)))
	s.TrailingStopLevel = balance
	s.ConsecutiveLosses = 0
	s.rebasePending = false
}

// Gate applies the session window and any active pause. It never reads the
// balance; a Trading result means the caller should go on to CheckBalance.
func (s *State) Gate(now time.Time) Decision {
	if !InSession(now, s.lim.SessionStartHour, s.lim.SessionEndHour, s.lim.Location) {
		return Decision{Phase: PausedForWindow, Reason: ReasonOutsideHours, Wait: s.lim.WindowRetryDelay}
	}
	if !s.PauseUntil.IsZero() {
		if now.Before(s.PauseUntil) {
			return Decision{
				Phase:      s.PauseReason.phase(),
				Reason:     s.PauseReason,
				Wait:       s.lim.PauseRetryDelay,
				PauseUntil: s.PauseUntil,
			}
		}
		s.endPause()
	}
	return Decision{Phase: Trading}
}

func (s *State) endPause() {
	switch s.PauseReason {
	case ReasonStopLoss, ReasonTarget:
		s.rebasePending = s.lim.DailyReset
	}
	s.PauseUntil = time.Time{}
	s.PauseReason = ReasonNone
}

// CheckBalance applies the daily stop-loss and target, then ratchets the
// trailing stop.
func (s *State) CheckBalance(now time.Time, balance decimal.Decimal) Decision {
	var d Decision
	if s.rebasePending {
		s.reset(balance)
		d.Rebased = true
	}

	switch {
	case balance.LessThanOrEqual(s.StopLossLevel):
		return s.halt(now, ReasonStopLoss, d)
	case balance.GreaterThanOrEqual(s.StopWinLevel):
		return s.halt(now, ReasonTarget, d)
	}

	if s.lim.TrailingStep > 0 {
		one := decimal.NewFromInt(1)
		step := decimal.NewFromFloat(s.lim.TrailingStep)
		if balance.GreaterThan(s.TrailingStopLevel.Mul(one.Add(step))) {
			s.TrailingStopLevel = balance
			s.StopLossLevel = decimal.Max(s.StopLossLevel, s.TrailingStopLevel.Mul(one.Sub(step)))
			d.Ratcheted = true
		}
	}
	d.Phase = Trading
	return d
}

func (s *State) halt(now time.Time, reason Reason, d Decision) Decision {
	s.PauseUntil = NextSessionOpen(now, s.lim.SessionStartHour, s.lim.Location)
	s.PauseReason = reason
	d.Phase = HaltedForDay
	d.Reason = reason
	d.Wait = s.lim.PauseRetryDelay
	d.PauseUntil = s.PauseUntil
	return d
}

// RecordTrade folds a trade outcome into the loss streak. Rejected and
// unsettled trades leave the state untouched.
func (s *State) RecordTrade(now time.Time, r types.TradeResult) Decision {
	if !r.Accepted || !r.Settled {
		return Decision{Phase: Trading}
	}
	if r.Win() {
		s.ConsecutiveLosses = 0
		return Decision{Phase: Trading}
	}
	s.ConsecutiveLosses++
	if s.ConsecutiveLosses >= s.lim.CooldownLosses {
		s.PauseUntil = now.Add(s.lim.CooldownDuration)
		s.PauseReason = ReasonLossStreak
		return Decision{
			Phase:      PausedForCooldown,
			Reason:     ReasonLossStreak,
			Wait:       s.lim.PauseRetryDelay,
			PauseUntil: s.PauseUntil,
		}
	}
	return Decision{Phase: Trading}
}
