package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evdnx/gobinary/config"
	"github.com/evdnx/gobinary/metrics"
	"github.com/evdnx/gobinary/testutils"
	"github.com/evdnx/gobinary/types"
)

var start = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func newExecutor(b *testutils.MockBroker) (*Executor, *testutils.FakeClock, *testutils.MockLogger) {
	clk := testutils.NewFakeClock(start)
	log := &testutils.MockLogger{}
	ex := New(b, clk, log, Options{
		Instrument:        "EURUSD-OTC",
		ExpiryMinutes:     5,
		PollInterval:      time.Second,
		SettlementTimeout: 7 * time.Minute,
	})
	return ex, clk, log
}

func TestExecuteWin(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.QueueOutcomes(decimal.RequireFromString("8.50"))
	ex, _, log := newExecutor(b)

	res, err := ex.Execute(context.Background(), types.Buy, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Settled)
	assert.True(t, res.Win())
	assert.Equal(t, "T1", res.TradeID)
	assert.True(t, res.ProfitOrLoss.Equal(decimal.RequireFromString("8.5")))

	orders := b.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, types.Order{Instrument: "EURUSD-OTC", Side: types.Buy, Stake: decimal.NewFromInt(10), ExpiryMinutes: 5}, orders[0])
	assert.True(t, log.Has("order_submitted"))
	assert.True(t, log.Has("trade_settled"))
}

func TestExecuteLossAfterPolling(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.PendingPolls = 3
	ex, clk, _ := newExecutor(b)

	res, err := ex.Execute(context.Background(), types.Sell, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, res.Settled)
	assert.False(t, res.Win())
	assert.True(t, res.ProfitOrLoss.Equal(decimal.NewFromInt(-10)))
	assert.Equal(t, 4, b.Polls("T1"))
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clk.Sleeps())
}

func TestExecuteRejected(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.RejectNext(1)
	ex, clk, log := newExecutor(b)

	res, err := ex.Execute(context.Background(), types.Buy, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.False(t, res.Settled)
	assert.True(t, res.ProfitOrLoss.IsZero())
	assert.Equal(t, "order_rejected", log.LastMessage())
	assert.Empty(t, clk.Sleeps())
}

func TestExecuteTransportErrorIsNonFatal(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.FailPlace(errors.New("socket closed"))
	ex, _, log := newExecutor(b)

	res, err := ex.Execute(context.Background(), types.Buy, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.True(t, log.Has("order_rejected"))
}

func TestExecutePollErrorsRetried(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.QueueOutcomes(decimal.NewFromInt(9))
	b.FailPolls(errors.New("timeout"), errors.New("timeout"))
	ex, _, log := newExecutor(b)

	res, err := ex.Execute(context.Background(), types.Buy, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, res.Win())
	assert.True(t, log.Has("settlement_poll_failed"))
}

func TestExecuteSettlementTimeout(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.NeverSettle = true
	ex, clk, log := newExecutor(b)
	unsettled := metrics.Trades.WithLabelValues("unsettled")
	before := promtest.ToFloat64(unsettled)

	res, err := ex.Execute(context.Background(), types.Buy, decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrSettlementTimeout)
	assert.Equal(t, before+1, promtest.ToFloat64(unsettled))
	assert.True(t, res.Accepted)
	assert.False(t, res.Settled)
	assert.Equal(t, start.Add(7*time.Minute), clk.Now())
	assert.True(t, log.Has("settlement_timeout"))
}

func TestExecuteCancelled(t *testing.T) {
	b := testutils.NewMockBroker(decimal.NewFromInt(1000))
	b.NeverSettle = true
	ex, _, _ := newExecutor(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := ex.Execute(ctx, types.Buy, decimal.NewFromInt(10))
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Accepted)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Trading
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, cfg.Instrument, opts.Instrument)
	assert.Equal(t, 5, opts.ExpiryMinutes)
	assert.Equal(t, 7*time.Minute, opts.SettlementTimeout)
}
