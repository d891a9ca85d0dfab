package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/evdnx/gobinary/indicator"
)

// StrategyConfig holds the indicator periods and vote thresholds.
type StrategyConfig struct {
	RSIOverbought float64 // default 70
	RSIOversold   float64 // default 30
	// MinATR is the volatility floor below which no trade is taken.
	MinATR float64 // default 0.00005

	FastEMA    int     // default 15
	SlowEMA    int     // default 50
	RSIPeriod  int     // default 12
	BandPeriod int     // default 20
	BandWidth  float64 // default 2
	ATRPeriod  int     // default 14

	// CandleCount is the window fetched every cycle.
	CandleCount int // default 100
	// MinCandles is the shortest window the indicator engine accepts.
	MinCandles int // default 50
}

// IndicatorParams converts the periods for the indicator engine.
func (c StrategyConfig) IndicatorParams() indicator.Params {
	return indicator.Params{
		FastEMA:    c.FastEMA,
		SlowEMA:    c.SlowEMA,
		RSIPeriod:  c.RSIPeriod,
		BandPeriod: c.BandPeriod,
		BandWidth:  c.BandWidth,
		ATRPeriod:  c.ATRPeriod,
		MinCandles: c.MinCandles,
	}
}

// RiskConfig holds the daily limits, sizing and session window.
type RiskConfig struct {
	StopWinPct   float64 // e.g. 0.10 = stop for the day at +10 %
	StopLossPct  float64 // e.g. 0.30 = stop for the day at -30 %
	EntryPct     float64 // e.g. 0.05 = stake 5 % of balance
	TrailingStep float64 // e.g. 0.03, 0 = trailing disabled

	// MinStake is the smallest stake ever placed.
	MinStake decimal.Decimal

	// Trading is allowed in [SessionStartHour, SessionEndHour) local time.
	SessionStartHour int
	SessionEndHour   int
	Timezone         string

	CooldownLosses   int           // consecutive losses before a pause
	CooldownDuration time.Duration // length of that pause

	// DailyReset re-seeds the daily levels from the balance once a
	// day-halt elapses.
	DailyReset bool
}

// Location resolves Timezone; empty means the process local zone.
func (c RiskConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// TradingConfig describes the instrument and loop timing.
type TradingConfig struct {
	Instrument       string
	TimeframeMinutes int
	// ExpiryMinutes is the option expiry; 0 means TimeframeMinutes.
	ExpiryMinutes int

	PollInterval time.Duration
	// SettlementTimeout bounds the wait for a trade outcome; 0 means
	// expiry plus two minutes.
	SettlementTimeout time.Duration
	WindowRetryDelay  time.Duration
	PauseRetryDelay   time.Duration
}

// Timeframe is the candle period and the trading cycle length.
func (c TradingConfig) Timeframe() time.Duration {
	return time.Duration(c.TimeframeMinutes) * time.Minute
}

// Expiry returns the effective option expiry in minutes.
func (c TradingConfig) Expiry() int {
	if c.ExpiryMinutes > 0 {
		return c.ExpiryMinutes
	}
	return c.TimeframeMinutes
}

// SettlementBound returns the effective settlement timeout.
func (c TradingConfig) SettlementBound() time.Duration {
	if c.SettlementTimeout > 0 {
		return c.SettlementTimeout
	}
	return time.Duration(c.Expiry())*time.Minute + 2*time.Minute
}

// Broker kinds.
const (
	BrokerPaper = "paper"
	BrokerWS    = "ws"
)

// BrokerConfig selects and parameterises the brokerage connection.
type BrokerConfig struct {
	Kind     string // paper | ws
	URL      string // websocket endpoint
	AuthURL  string // login endpoint returning a session token
	Email    string
	Password string

	RequestsPerSecond float64
	RequestTimeout    time.Duration

	RetryAttempts int
	RetryBackoff  time.Duration

	PaperBalance decimal.Decimal
	PaperPayout  float64 // profit fraction paid on a winning paper trade
	PaperSeed    int64
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string
	File  string
}

// Config is the complete, startup-fixed configuration.
type Config struct {
	Trading  TradingConfig
	Strategy StrategyConfig
	Risk     RiskConfig
	Broker   BrokerConfig
	Log      LogConfig

	// MetricsAddr, when set, exposes Prometheus metrics (e.g. ":9102").
	MetricsAddr string
}

// Default returns the stock EURUSD-OTC M5 setup.
func Default() Config {
	return Config{
		Trading: TradingConfig{
			Instrument:       "EURUSD-OTC",
			TimeframeMinutes: 5,
			PollInterval:     time.Second,
			WindowRetryDelay: time.Minute,
			PauseRetryDelay:  30 * time.Second,
		},
		Strategy: StrategyConfig{
			RSIOverbought: 70,
			RSIOversold:   30,
			MinATR:        0.00005,
			FastEMA:       15,
			SlowEMA:       50,
			RSIPeriod:     12,
			BandPeriod:    20,
			BandWidth:     2,
			ATRPeriod:     14,
			CandleCount:   100,
			MinCandles:    50,
		},
		Risk: RiskConfig{
			StopWinPct:       0.10,
			StopLossPct:      0.30,
			EntryPct:         0.05,
			TrailingStep:     0.03,
			MinStake:         decimal.NewFromInt(3),
			SessionStartHour: 9,
			SessionEndHour:   18,
			CooldownLosses:   3,
			CooldownDuration: 30 * time.Minute,
			DailyReset:       true,
		},
		Broker: BrokerConfig{
			Kind:              BrokerPaper,
			RequestsPerSecond: 5,
			RequestTimeout:    15 * time.Second,
			RetryAttempts:     3,
			RetryBackoff:      500 * time.Millisecond,
			PaperBalance:      decimal.NewFromInt(1000),
			PaperPayout:       0.85,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks every section and reports all problems at once, so a
// misconfiguration surfaces before any trading starts.
func (c *Config) Validate() error {
	return multierr.Combine(
		c.Trading.Validate(),
		c.Strategy.Validate(),
		c.Risk.Validate(),
		c.Broker.Validate(),
	)
}

// Validate checks instrument and timing.
func (c TradingConfig) Validate() error {
	var err error
	if c.Instrument == "" {
		err = multierr.Append(err, errors.New("Instrument is required"))
	}
	if c.TimeframeMinutes <= 0 {
		err = multierr.Append(err, fmt.Errorf("TimeframeMinutes (%d) must be positive", c.TimeframeMinutes))
	}
	if c.ExpiryMinutes < 0 {
		err = multierr.Append(err, errors.New("ExpiryMinutes cannot be negative"))
	}
	if c.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("PollInterval must be positive"))
	}
	if c.SettlementTimeout < 0 {
		err = multierr.Append(err, errors.New("SettlementTimeout cannot be negative"))
	}
	if c.WindowRetryDelay <= 0 || c.PauseRetryDelay <= 0 {
		err = multierr.Append(err, errors.New("retry delays must be positive"))
	}
	return err
}

// Validate checks thresholds and periods.
func (c StrategyConfig) Validate() error {
	var err error
	if c.RSIOversold >= c.RSIOverbought {
		err = multierr.Append(err, fmt.Errorf("RSIOversold (%v) must be below RSIOverbought (%v)", c.RSIOversold, c.RSIOverbought))
	}
	if c.MinATR < 0 {
		err = multierr.Append(err, errors.New("MinATR cannot be negative"))
	}
	if perr := c.IndicatorParams().Validate(); perr != nil {
		err = multierr.Append(err, perr)
	}
	if c.CandleCount < c.MinCandles {
		err = multierr.Append(err, fmt.Errorf("CandleCount (%d) below MinCandles (%d)", c.CandleCount, c.MinCandles))
	}
	return err
}

// Validate checks limits, sizing and the session window.
func (c RiskConfig) Validate() error {
	var err error
	if c.StopWinPct <= 0 {
		err = multierr.Append(err, fmt.Errorf("StopWinPct (%f) must be positive", c.StopWinPct))
	}
	if c.StopLossPct <= 0 || c.StopLossPct >= 1 {
		err = multierr.Append(err, fmt.Errorf("StopLossPct (%f) must be >0 and <1", c.StopLossPct))
	}
	if c.EntryPct <= 0 || c.EntryPct > 1 {
		err = multierr.Append(err, fmt.Errorf("EntryPct (%f) must be >0 and <=1", c.EntryPct))
	}
	if c.TrailingStep < 0 || c.TrailingStep >= 1 {
		err = multierr.Append(err, fmt.Errorf("TrailingStep (%f) must be between 0 and 1", c.TrailingStep))
	}
	if c.MinStake.IsNegative() {
		err = multierr.Append(err, errors.New("MinStake cannot be negative"))
	}
	if c.SessionStartHour < 0 || c.SessionEndHour > 24 || c.SessionStartHour >= c.SessionEndHour {
		err = multierr.Append(err, fmt.Errorf("session window [%d,%d) is invalid", c.SessionStartHour, c.SessionEndHour))
	}
	if _, lerr := c.Location(); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("Timezone: %w", lerr))
	}
	if c.CooldownLosses < 1 {
		err = multierr.Append(err, errors.New("CooldownLosses must be at least 1"))
	}
	if c.CooldownDuration < 0 {
		err = multierr.Append(err, errors.New("CooldownDuration cannot be negative"))
	}
	return err
}

// Validate checks the broker selection.
func (c BrokerConfig) Validate() error {
	var err error
	switch c.Kind {
	case BrokerPaper:
		if !c.PaperBalance.IsPositive() {
			err = multierr.Append(err, errors.New("PaperBalance must be positive"))
		}
		if c.PaperPayout <= 0 || c.PaperPayout > 1 {
			err = multierr.Append(err, fmt.Errorf("PaperPayout (%f) must be >0 and <=1", c.PaperPayout))
		}
	case BrokerWS:
		if c.URL == "" {
			err = multierr.Append(err, errors.New("broker URL is required"))
		}
		if c.AuthURL == "" {
			err = multierr.Append(err, errors.New("AuthURL is required"))
		}
		if c.Email == "" || c.Password == "" {
			err = multierr.Append(err, errors.New("broker credentials are required"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("unknown broker kind %q", c.Kind))
	}
	if c.RequestsPerSecond <= 0 {
		err = multierr.Append(err, errors.New("RequestsPerSecond must be positive"))
	}
	if c.RetryAttempts < 0 {
		err = multierr.Append(err, errors.New("RetryAttempts cannot be negative"))
	}
	return err
}
