package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/broker"
	"github.com/evdnx/gobinary/types"
)

// MockBroker implements broker.Broker in-memory with scripted responses.
type MockBroker struct {
	mu sync.Mutex

	connected  bool
	ConnectErr error

	balances    []decimal.Decimal // consumed front to back, last one sticks
	balanceErrs []error           // returned before any balance

	candles    []types.Candle
	candlesErr error

	rejectNext int
	placeErr   error

	outcomes     []decimal.Decimal // profit per accepted trade, in order
	trades       map[string]decimal.Decimal
	polls        map[string]int
	PendingPolls int  // polls answered "not settled" before each settlement
	NeverSettle  bool // every poll answers "not settled"
	pollErrs     []error

	orders        []types.Order
	balanceCalls  int
	candleCalls   int
	connectCalls  int
	lastCandleReq CandleRequest
}

// CandleRequest captures the arguments of the last Candles call.
type CandleRequest struct {
	Instrument    string
	PeriodSeconds int
	Count         int
	AsOf          time.Time
}

var _ broker.Broker = (*MockBroker)(nil)

// NewMockBroker creates a connected broker reporting balance.
func NewMockBroker(balance decimal.Decimal) *MockBroker {
	return &MockBroker{
		connected: true,
		balances:  []decimal.Decimal{balance},
		trades:    make(map[string]decimal.Decimal),
		polls:     make(map[string]int),
	}
}

// SetBalances scripts successive Balance answers.
func (m *MockBroker) SetBalances(b ...decimal.Decimal) {
	m.mu.Lock()
	m.balances = append([]decimal.Decimal(nil), b...)
	m.mu.Unlock()
}

// FailBalance makes the next Balance calls return errs in order.
func (m *MockBroker) FailBalance(errs ...error) {
	m.mu.Lock()
	m.balanceErrs = append(m.balanceErrs, errs...)
	m.mu.Unlock()
}

// SetCandles sets the window returned by Candles.
func (m *MockBroker) SetCandles(c []types.Candle, err error) {
	m.mu.Lock()
	m.candles, m.candlesErr = c, err
	m.mu.Unlock()
}

// RejectNext makes the next n orders be refused.
func (m *MockBroker) RejectNext(n int) {
	m.mu.Lock()
	m.rejectNext = n
	m.mu.Unlock()
}

// FailPlace makes PlaceTrade return a transport error.
func (m *MockBroker) FailPlace(err error) {
	m.mu.Lock()
	m.placeErr = err
	m.mu.Unlock()
}

// QueueOutcomes scripts the profit of the next accepted trades.
func (m *MockBroker) QueueOutcomes(p ...decimal.Decimal) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, p...)
	m.mu.Unlock()
}

// FailPolls makes the next polls return errs in order.
func (m *MockBroker) FailPolls(errs ...error) {
	m.mu.Lock()
	m.pollErrs = append(m.pollErrs, errs...)
	m.mu.Unlock()
}

// Disconnect simulates a dropped connection.
func (m *MockBroker) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *MockBroker) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

func (m *MockBroker) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockBroker) Balance(ctx context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balanceCalls++
	if len(m.balanceErrs) > 0 {
		err := m.balanceErrs[0]
		m.balanceErrs = m.balanceErrs[1:]
		return decimal.Zero, err
	}
	if len(m.balances) == 0 {
		return decimal.Zero, nil
	}
	b := m.balances[0]
	if len(m.balances) > 1 {
		m.balances = m.balances[1:]
	}
	return b, nil
}

func (m *MockBroker) Candles(ctx context.Context, instrument string, periodSeconds, count int, asOf time.Time) ([]types.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candleCalls++
	m.lastCandleReq = CandleRequest{Instrument: instrument, PeriodSeconds: periodSeconds, Count: count, AsOf: asOf}
	if m.candlesErr != nil {
		return nil, m.candlesErr
	}
	out := make([]types.Candle, len(m.candles))
	copy(out, m.candles)
	return out, nil
}

func (m *MockBroker) PlaceTrade(ctx context.Context, o types.Order) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeErr != nil {
		return false, "", m.placeErr
	}
	m.orders = append(m.orders, o)
	if m.rejectNext > 0 {
		m.rejectNext--
		return false, "", nil
	}
	id := fmt.Sprintf("T%d", len(m.orders))
	profit := o.Stake.Neg()
	if len(m.outcomes) > 0 {
		profit = m.outcomes[0]
		m.outcomes = m.outcomes[1:]
	}
	m.trades[id] = profit
	return true, id, nil
}

func (m *MockBroker) PollTradeResult(ctx context.Context, tradeID string) (bool, decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pollErrs) > 0 {
		err := m.pollErrs[0]
		m.pollErrs = m.pollErrs[1:]
		return false, decimal.Zero, err
	}
	profit, ok := m.trades[tradeID]
	if !ok {
		return false, decimal.Zero, broker.ErrUnknownTrade
	}
	m.polls[tradeID]++
	if m.NeverSettle || m.polls[tradeID] <= m.PendingPolls {
		return false, decimal.Zero, nil
	}
	return true, profit, nil
}

func (m *MockBroker) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	return nil
}

// Orders returns a copy of all submitted orders (useful for assertions).
func (m *MockBroker) Orders() []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

// Calls returns how often Balance, Candles and Connect were invoked.
func (m *MockBroker) Calls() (balance, candles, connect int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balanceCalls, m.candleCalls, m.connectCalls
}

// LastCandleRequest returns the arguments of the last Candles call.
func (m *MockBroker) LastCandleRequest() CandleRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCandleReq
}

// Polls returns how many times tradeID was polled successfully.
func (m *MockBroker) Polls(tradeID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[tradeID]
}
