package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Balance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gobinary_balance",
			Help: "Last account balance read from the broker.",
		},
	)

	RiskLevel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gobinary_risk_level",
			Help: "Current daily risk levels (stop_win, stop_loss, trailing).",
		},
		[]string{"level"},
	)

	ConsecutiveLosses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gobinary_consecutive_losses",
			Help: "Losing trades in a row since the last win or cooldown.",
		},
	)

	Phase = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gobinary_phase",
			Help: "0=trading, 1=paused_for_window, 2=paused_for_cooldown, 3=halted_for_day.",
		},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobinary_signals_total",
			Help: "Strategy signals by direction (buy, sell, none).",
		},
		[]string{"signal"},
	)

	Trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobinary_trades_total",
			Help: "Trades by outcome (win, loss, rejected, unsettled).",
		},
		[]string{"outcome"},
	)

	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gobinary_realized_pnl",
			Help: "Sum of settled profit and loss since start.",
		},
	)

	SettlementSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gobinary_settlement_seconds",
			Help:    "Time from order acceptance to settlement.",
			Buckets: []float64{30, 60, 120, 300, 600, 900},
		},
	)

	BrokerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gobinary_broker_errors_total",
			Help: "Failed broker calls by operation.",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(
		Balance, RiskLevel, ConsecutiveLosses, Phase,
		Signals, Trades, RealizedPnL, SettlementSeconds, BrokerErrors,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
