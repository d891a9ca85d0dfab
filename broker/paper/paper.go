// Package paper implements a simulated digital-options account: a seeded
// random-walk price feed, perfect fills and a fixed payout on winners.
package paper

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evdnx/gobinary/broker"
	"github.com/evdnx/gobinary/clock"
	"github.com/evdnx/gobinary/logger"
	"github.com/evdnx/gobinary/types"
)

// Options configures the simulation.
type Options struct {
	Balance    decimal.Decimal
	Payout     float64 // profit fraction on a win, e.g. 0.85
	Seed       int64   // 0 seeds from the clock
	StartPrice float64
	Volatility float64 // max relative move per simulated minute
	History    time.Duration
}

// DefaultOptions is a EUR/USD-like feed with a 1000 account.
func DefaultOptions() Options {
	return Options{
		Balance:    decimal.NewFromInt(1000),
		Payout:     0.85,
		StartPrice: 1.1000,
		Volatility: 0.0004,
		History:    7 * 24 * time.Hour,
	}
}

type position struct {
	side   types.Side
	stake  decimal.Decimal
	entry  float64
	expiry time.Time
	done   bool
	profit decimal.Decimal
}

// Broker is the paper account. Safe for concurrent use.
type Broker struct {
	opts Options
	clk  clock.Clock
	log  logger.Logger

	mu        sync.Mutex
	connected bool
	balance   decimal.Decimal
	payout    decimal.Decimal
	rng       *rand.Rand
	origin    time.Time
	path      []float64 // one price per simulated minute since origin
	volume    []float64
	positions map[string]*position
}

var _ broker.Broker = (*Broker)(nil)

// New creates a disconnected paper broker.
func New(opts Options, clk clock.Clock, log logger.Logger) *Broker {
	def := DefaultOptions()
	if opts.StartPrice <= 0 {
		opts.StartPrice = def.StartPrice
	}
	if opts.Volatility <= 0 {
		opts.Volatility = def.Volatility
	}
	if opts.History <= 0 {
		opts.History = def.History
	}
	return &Broker{
		opts:      opts,
		clk:       clk,
		log:       log,
		balance:   opts.Balance,
		payout:    decimal.NewFromFloat(opts.Payout),
		positions: make(map[string]*position),
	}
}

func (b *Broker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connected {
		return nil
	}
	if b.rng == nil {
		seed := b.opts.Seed
		if seed == 0 {
			seed = b.clk.Now().UnixNano()
		}
		b.rng = rand.New(rand.NewSource(seed))
		b.origin = b.clk.Now().Add(-b.opts.History).Truncate(time.Minute)
		b.path = []float64{b.opts.StartPrice}
		b.volume = []float64{10_000}
	}
	b.connected = true
	b.log.Info("paper_connected", logger.Decimal("balance", b.balance), logger.Int64("seed", b.opts.Seed))
	return nil
}

func (b *Broker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *Broker) Close() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

func (b *Broker) Balance(ctx context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return decimal.Zero, broker.ErrNotConnected
	}
	return b.balance, nil
}

func (b *Broker) Candles(ctx context.Context, instrument string, periodSeconds, count int, asOf time.Time) ([]types.Candle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, broker.ErrNotConnected
	}
	if periodSeconds <= 0 || count <= 0 {
		return nil, nil
	}
	period := time.Duration(periodSeconds) * time.Second
	last := asOf.Truncate(period)
	out := make([]types.Candle, 0, count)
	for i := count - 1; i >= 0; i-- {
		start := last.Add(-time.Duration(i) * period)
		if start.Before(b.origin) {
			continue
		}
		end := start.Add(period)
		if end.After(asOf) {
			end = asOf
		}
		out = append(out, b.bar(start, end))
	}
	return out, nil
}

// bar aggregates the minute path over [start, end].
func (b *Broker) bar(start, end time.Time) types.Candle {
	from, to := b.index(start), b.index(end)
	b.extend(to)
	c := types.Candle{Open: b.path[from], Close: b.path[to], High: b.path[from], Low: b.path[from], Time: start}
	for i := from; i <= to; i++ {
		c.High = math.Max(c.High, b.path[i])
		c.Low = math.Min(c.Low, b.path[i])
		c.Volume += b.volume[i]
	}
	return c
}

func (b *Broker) PlaceTrade(ctx context.Context, o types.Order) (bool, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return false, "", broker.ErrNotConnected
	}
	if !o.Stake.IsPositive() || o.Stake.GreaterThan(b.balance) || o.ExpiryMinutes <= 0 {
		b.log.Warn("paper_order_refused",
			logger.Decimal("stake", o.Stake),
			logger.Decimal("balance", b.balance),
			logger.Int("expiry_minutes", o.ExpiryMinutes))
		return false, "", nil
	}
	now := b.clk.Now()
	id := uuid.NewString()
	b.positions[id] = &position{
		side:   o.Side,
		stake:  o.Stake,
		entry:  b.priceAt(now),
		expiry: now.Add(time.Duration(o.ExpiryMinutes) * time.Minute),
	}
	b.balance = b.balance.Sub(o.Stake)
	return true, id, nil
}

func (b *Broker) PollTradeResult(ctx context.Context, tradeID string) (bool, decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return false, decimal.Zero, broker.ErrNotConnected
	}
	p, ok := b.positions[tradeID]
	if !ok {
		return false, decimal.Zero, broker.ErrUnknownTrade
	}
	if p.done {
		return true, p.profit, nil
	}
	if b.clk.Now().Before(p.expiry) {
		return false, decimal.Zero, nil
	}
	exit := b.priceAt(p.expiry)
	win := (p.side == types.Buy && exit > p.entry) || (p.side == types.Sell && exit < p.entry)
	switch {
	case win:
		p.profit = p.stake.Mul(b.payout).Round(2)
		b.balance = b.balance.Add(p.stake).Add(p.profit)
	case exit == p.entry:
		// draw: stake refunded
		p.profit = decimal.Zero
		b.balance = b.balance.Add(p.stake)
	default:
		p.profit = p.stake.Neg()
	}
	p.done = true
	return true, p.profit, nil
}

func (b *Broker) priceAt(t time.Time) float64 {
	i := b.index(t)
	b.extend(i)
	return b.path[i]
}

func (b *Broker) index(t time.Time) int {
	i := int(t.Sub(b.origin) / time.Minute)
	if i < 0 {
		return 0
	}
	return i
}

// extend grows the random walk up to minute i.
func (b *Broker) extend(i int) {
	for len(b.path) <= i {
		prev := b.path[len(b.path)-1]
		ret := (b.rng.Float64() - 0.5) * 2.0 * b.opts.Volatility
		b.path = append(b.path, prev*(1.0+ret))
		b.volume = append(b.volume, 10_000+b.rng.Float64()*5_000)
	}
}
