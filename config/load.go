package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment key, e.g. GOBINARY_INSTRUMENT.
const EnvPrefix = "GOBINARY"

// Load reads the configuration from the environment. Each existing file in
// envFiles (default ".env") is loaded first without overriding variables
// already set, which is where broker credentials usually live.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v, Default())

	minStake, err := decimal.NewFromString(v.GetString("min_stake"))
	if err != nil {
		return Config{}, fmt.Errorf("config: MIN_STAKE: %w", err)
	}
	paperBalance, err := decimal.NewFromString(v.GetString("paper_balance"))
	if err != nil {
		return Config{}, fmt.Errorf("config: PAPER_BALANCE: %w", err)
	}

	cfg := Config{
		Trading: TradingConfig{
			Instrument:        v.GetString("instrument"),
			TimeframeMinutes:  v.GetInt("timeframe_minutes"),
			ExpiryMinutes:     v.GetInt("expiry_minutes"),
			PollInterval:      v.GetDuration("poll_interval"),
			SettlementTimeout: v.GetDuration("settlement_timeout"),
			WindowRetryDelay:  v.GetDuration("window_retry_delay"),
			PauseRetryDelay:   v.GetDuration("pause_retry_delay"),
		},
		Strategy: StrategyConfig{
			RSIOverbought: v.GetFloat64("rsi_overbought"),
			RSIOversold:   v.GetFloat64("rsi_oversold"),
			MinATR:        v.GetFloat64("min_atr"),
			FastEMA:       v.GetInt("fast_ema"),
			SlowEMA:       v.GetInt("slow_ema"),
			RSIPeriod:     v.GetInt("rsi_period"),
			BandPeriod:    v.GetInt("band_period"),
			BandWidth:     v.GetFloat64("band_width"),
			ATRPeriod:     v.GetInt("atr_period"),
			CandleCount:   v.GetInt("candle_count"),
			MinCandles:    v.GetInt("min_candles"),
		},
		Risk: RiskConfig{
			StopWinPct:       v.GetFloat64("stop_win_pct"),
			StopLossPct:      v.GetFloat64("stop_loss_pct"),
			EntryPct:         v.GetFloat64("entry_pct"),
			TrailingStep:     v.GetFloat64("trailing_step"),
			MinStake:         minStake,
			SessionStartHour: v.GetInt("session_start_hour"),
			SessionEndHour:   v.GetInt("session_end_hour"),
			Timezone:         v.GetString("timezone"),
			CooldownLosses:   v.GetInt("cooldown_losses"),
			CooldownDuration: v.GetDuration("cooldown_duration"),
			DailyReset:       v.GetBool("daily_reset"),
		},
		Broker: BrokerConfig{
			Kind:              v.GetString("broker"),
			URL:               v.GetString("broker_url"),
			AuthURL:           v.GetString("auth_url"),
			Email:             v.GetString("email"),
			Password:          v.GetString("password"),
			RequestsPerSecond: v.GetFloat64("requests_per_second"),
			RequestTimeout:    v.GetDuration("request_timeout"),
			RetryAttempts:     v.GetInt("retry_attempts"),
			RetryBackoff:      v.GetDuration("retry_backoff"),
			PaperBalance:      paperBalance,
			PaperPayout:       v.GetFloat64("paper_payout"),
			PaperSeed:         v.GetInt64("paper_seed"),
		},
		Log: LogConfig{
			Level: v.GetString("log_level"),
			File:  v.GetString("log_file"),
		},
		MetricsAddr: v.GetString("metrics_addr"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("instrument", d.Trading.Instrument)
	v.SetDefault("timeframe_minutes", d.Trading.TimeframeMinutes)
	v.SetDefault("expiry_minutes", d.Trading.ExpiryMinutes)
	v.SetDefault("poll_interval", d.Trading.PollInterval)
	v.SetDefault("settlement_timeout", d.Trading.SettlementTimeout)
	v.SetDefault("window_retry_delay", d.Trading.WindowRetryDelay)
	v.SetDefault("pause_retry_delay", d.Trading.PauseRetryDelay)

	v.SetDefault("rsi_overbought", d.Strategy.RSIOverbought)
	v.SetDefault("rsi_oversold", d.Strategy.RSIOversold)
	v.SetDefault("min_atr", d.Strategy.MinATR)
	v.SetDefault("fast_ema", d.Strategy.FastEMA)
	v.SetDefault("slow_ema", d.Strategy.SlowEMA)
	v.SetDefault("rsi_period", d.Strategy.RSIPeriod)
	v.SetDefault("band_period", d.Strategy.BandPeriod)
	v.SetDefault("band_width", d.Strategy.BandWidth)
	v.SetDefault("atr_period", d.Strategy.ATRPeriod)
	v.SetDefault("candle_count", d.Strategy.CandleCount)
	v.SetDefault("min_candles", d.Strategy.MinCandles)

	v.SetDefault("stop_win_pct", d.Risk.StopWinPct)
	v.SetDefault("stop_loss_pct", d.Risk.StopLossPct)
	v.SetDefault("entry_pct", d.Risk.EntryPct)
	v.SetDefault("trailing_step", d.Risk.TrailingStep)
	v.SetDefault("min_stake", d.Risk.MinStake.String())
	v.SetDefault("session_start_hour", d.Risk.SessionStartHour)
	v.SetDefault("session_end_hour", d.Risk.SessionEndHour)
	v.SetDefault("timezone", d.Risk.Timezone)
	v.SetDefault("cooldown_losses", d.Risk.CooldownLosses)
	v.SetDefault("cooldown_duration", d.Risk.CooldownDuration)
	v.SetDefault("daily_reset", d.Risk.DailyReset)

	v.SetDefault("broker", d.Broker.Kind)
	v.SetDefault("broker_url", d.Broker.URL)
	v.SetDefault("auth_url", d.Broker.AuthURL)
	v.SetDefault("email", d.Broker.Email)
	v.SetDefault("password", d.Broker.Password)
	v.SetDefault("requests_per_second", d.Broker.RequestsPerSecond)
	v.SetDefault("request_timeout", d.Broker.RequestTimeout)
	v.SetDefault("retry_attempts", d.Broker.RetryAttempts)
	v.SetDefault("retry_backoff", d.Broker.RetryBackoff)
	v.SetDefault("paper_balance", d.Broker.PaperBalance.String())
	v.SetDefault("paper_payout", d.Broker.PaperPayout)
	v.SetDefault("paper_seed", d.Broker.PaperSeed)

	v.SetDefault("log_level", d.Log.Level)
	v.SetDefault("log_file", d.Log.File)
	v.SetDefault("metrics_addr", d.MetricsAddr)
}
