package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/types"
)

func testLimits() Limits {
	return Limits{
		StopWinPct:       0.10,
		StopLossPct:      0.30,
		TrailingStep:     0.03,
		SessionStartHour: 9,
		SessionEndHour:   18,
		Location:         time.UTC,
		CooldownLosses:   3,
		CooldownDuration: 30 * time.Minute,
		DailyReset:       true,
		WindowRetryDelay: time.Minute,
		PauseRetryDelay:  30 * time.Second,
	}
}

// Monday 2024-03-04 10:00 UTC, inside the session.
var morning = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func loss() types.TradeResult {
	return types.TradeResult{Accepted: true, Settled: true, ProfitOrLoss: dec("-5")}
}

func win() types.TradeResult {
	return types.TradeResult{Accepted: true, Settled: true, ProfitOrLoss: dec("4.25")}
}

func TestNewStateLevels(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	if !s.StopWinLevel.Equal(dec("1100")) || !s.StopLossLevel.Equal(dec("700")) || !s.TrailingStopLevel.Equal(dec("1000")) {
		t.Fatalf("unexpected levels win=%s loss=%s trail=%s", s.StopWinLevel, s.StopLossLevel, s.TrailingStopLevel)
	}
}

func TestTargetReachedHaltsUntilNextSession(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	if d := s.Gate(morning); !d.CanTrade() {
		t.Fatalf("expected trading inside session, got %s", d.Phase)
	}
	d := s.CheckBalance(morning, dec("1105"))
	if d.Phase != HaltedForDay || d.Reason != ReasonTarget {
		t.Fatalf("expected target halt, got %s/%s", d.Phase, d.Reason)
	}
	want := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	if !s.PauseUntil.Equal(want) {
		t.Fatalf("expected pause until %v, got %v", want, s.PauseUntil)
	}

	later := morning.Add(2 * time.Hour)
	if d := s.Gate(later); d.Phase != HaltedForDay || d.Wait != 30*time.Second {
		t.Fatalf("expected halt to persist with pause delay, got %+v", d)
	}
}

func TestStopLossHalts(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	d := s.CheckBalance(morning, dec("700"))
	if d.Phase != HaltedForDay || d.Reason != ReasonStopLoss {
		t.Fatalf("expected stop-loss halt at the level itself, got %s/%s", d.Phase, d.Reason)
	}
}

func TestTrailingStopRatchet(t *testing.T) {
	s := NewState(dec("1000"), testLimits())

	// 1030 is exactly 1000*1.03: not strictly above, no ratchet.
	if d := s.CheckBalance(morning, dec("1030")); d.Ratcheted {
		t.Fatal("ratchet must require balance strictly above the step")
	}

	d := s.CheckBalance(morning, dec("1035"))
	if !d.Ratcheted || !d.CanTrade() {
		t.Fatalf("expected ratchet while trading, got %+v", d)
	}
	if !s.TrailingStopLevel.Equal(dec("1035")) {
		t.Fatalf("expected trailing 1035, got %s", s.TrailingStopLevel)
	}
	if !s.StopLossLevel.Equal(dec("1003.95")) {
		t.Fatalf("expected stop loss 1035*0.97=1003.95, got %s", s.StopLossLevel)
	}
	if s.StopLossLevel.GreaterThan(s.TrailingStopLevel) {
		t.Fatal("stop loss above trailing stop")
	}

	// The raised floor, not the initial 700, now halts the day.
	d = s.CheckBalance(morning, dec("1003.95"))
	if d.Phase != HaltedForDay || d.Reason != ReasonStopLoss {
		t.Fatalf("expected stop-loss halt on the ratcheted floor, got %s/%s", d.Phase, d.Reason)
	}
}

func TestTrailingStopNeverLowersFloor(t *testing.T) {
	lim := testLimits()
	lim.StopLossPct = 0.0005 // floor 999.5, tighter than a trailing step would give
	s := NewState(dec("1000"), lim)
	// 1030.01*0.97 = 999.1097 would sit below the configured floor.
	s.CheckBalance(morning, dec("1030.01"))
	if !s.StopLossLevel.Equal(dec("999.5")) {
		t.Fatalf("floor moved down to %s", s.StopLossLevel)
	}
}

func TestLossStreakCooldown(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	s.RecordTrade(morning, loss())
	s.RecordTrade(morning, loss())
	d := s.RecordTrade(morning, loss())
	if d.Phase != PausedForCooldown || s.ConsecutiveLosses != 3 {
		t.Fatalf("expected cooldown after three losses, got %s with %d losses", d.Phase, s.ConsecutiveLosses)
	}
	if !s.PauseUntil.Equal(morning.Add(30 * time.Minute)) {
		t.Fatalf("unexpected pause end %v", s.PauseUntil)
	}
	if d := s.Gate(morning.Add(10 * time.Minute)); d.Phase != PausedForCooldown {
		t.Fatalf("expected cooldown to hold, got %s", d.Phase)
	}
	if d := s.Gate(morning.Add(31 * time.Minute)); !d.CanTrade() {
		t.Fatalf("expected trading after cooldown, got %s", d.Phase)
	}
	if s.ConsecutiveLosses != 3 {
		t.Fatalf("expected streak kept after cooldown, got %d", s.ConsecutiveLosses)
	}
}

func TestLossAfterCooldownPausesAgain(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	for i := 0; i < 3; i++ {
		s.RecordTrade(morning, loss())
	}
	resume := morning.Add(31 * time.Minute)
	if d := s.Gate(resume); !d.CanTrade() {
		t.Fatalf("expected trading after cooldown, got %s", d.Phase)
	}
	d := s.RecordTrade(resume, loss())
	if d.Phase != PausedForCooldown || s.ConsecutiveLosses != 4 {
		t.Fatalf("expected a fresh cooldown on the fourth loss, got %s with %d losses", d.Phase, s.ConsecutiveLosses)
	}
	if !s.PauseUntil.Equal(resume.Add(30 * time.Minute)) {
		t.Fatalf("unexpected pause end %v", s.PauseUntil)
	}
}

func TestWinResetsStreak(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	s.RecordTrade(morning, loss())
	s.RecordTrade(morning, loss())
	if d := s.RecordTrade(morning, win()); !d.CanTrade() {
		t.Fatalf("unexpected phase %s", d.Phase)
	}
	if s.ConsecutiveLosses != 0 {
		t.Fatalf("expected streak reset by win, got %d", s.ConsecutiveLosses)
	}
}

func TestRejectedAndUnsettledTradesIgnored(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	s.RecordTrade(morning, types.TradeResult{})
	s.RecordTrade(morning, types.TradeResult{Accepted: true})
	if s.ConsecutiveLosses != 0 {
		t.Fatalf("expected no streak change, got %d", s.ConsecutiveLosses)
	}
}

func TestDrawCountsAsLoss(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	s.RecordTrade(morning, types.TradeResult{Accepted: true, Settled: true})
	if s.ConsecutiveLosses != 1 {
		t.Fatalf("expected a zero payout to count as a loss, got %d", s.ConsecutiveLosses)
	}
}

func TestOutsideSessionPausesWithoutMutation(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	evening := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	d := s.Gate(evening)
	if d.Phase != PausedForWindow || d.Wait != time.Minute {
		t.Fatalf("expected window pause, got %+v", d)
	}
	if !s.PauseUntil.IsZero() || s.ConsecutiveLosses != 0 {
		t.Fatal("window pause must not mutate state")
	}
}

func TestDailyResetAfterHalt(t *testing.T) {
	s := NewState(dec("1000"), testLimits())
	s.CheckBalance(morning, dec("1105"))

	nextDay := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	if d := s.Gate(nextDay); !d.CanTrade() {
		t.Fatalf("expected halt to clear at next session, got %s", d.Phase)
	}
	d := s.CheckBalance(nextDay, dec("1105"))
	if !d.Rebased || !d.CanTrade() {
		t.Fatalf("expected rebaseline and trading, got %+v", d)
	}
	if !s.StopWinLevel.Equal(dec("1215.5")) || !s.InitialBalance.Equal(dec("1105")) {
		t.Fatalf("unexpected rebased levels: initial=%s win=%s", s.InitialBalance, s.StopWinLevel)
	}
}

func TestNoDailyResetKeepsBaselines(t *testing.T) {
	lim := testLimits()
	lim.DailyReset = false
	s := NewState(dec("1000"), lim)
	s.CheckBalance(morning, dec("1105"))
	nextDay := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)
	s.Gate(nextDay)
	if d := s.CheckBalance(nextDay, dec("1105")); d.Phase != HaltedForDay {
		t.Fatalf("expected target halt to repeat without rebaseline, got %s", d.Phase)
	}
}

func TestNextSessionOpenAcrossMonthEnd(t *testing.T) {
	now := time.Date(2024, 3, 31, 17, 0, 0, 0, time.UTC)
	want := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	if got := NextSessionOpen(now, 9, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
