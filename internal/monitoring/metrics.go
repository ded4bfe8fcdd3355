// Package monitoring exposes Prometheus metrics for the trading loop.
// The collector subscribes to the event bus so the core never calls
// into it directly.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"

	"forex-trading-bot/internal/events"
)

var (
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxbot_signals_total",
			Help: "Signals selected by the strategy manager",
		},
		[]string{"symbol", "strategy", "action"},
	)

	signalsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxbot_signals_rejected_total",
			Help: "Signals denied at admission",
		},
		[]string{"symbol", "reason"},
	)

	tradesOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxbot_trades_opened_total",
			Help: "Positions opened",
		},
		[]string{"symbol", "strategy", "side"},
	)

	tradesClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxbot_trades_closed_total",
			Help: "Positions closed, by exit reason",
		},
		[]string{"symbol", "exit_reason"},
	)

	tradePnL = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fxbot_trade_pnl",
			Help:    "Realized profit and loss per closed trade",
			Buckets: []float64{-500, -200, -100, -50, -20, 0, 20, 50, 100, 200, 500},
		},
		[]string{"symbol"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fxbot_errors_total",
			Help: "Errors surfaced on the event bus",
		},
		[]string{"component"},
	)

	accountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxbot_account_equity",
			Help: "Current account equity",
		},
	)

	accountBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxbot_account_balance",
			Help: "Current account balance",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fxbot_open_positions",
			Help: "Number of tracked open positions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		signalsTotal,
		signalsRejectedTotal,
		tradesOpenedTotal,
		tradesClosedTotal,
		tradePnL,
		errorsTotal,
		accountEquity,
		accountBalance,
		openPositions,
	)
}

// Attach subscribes the metric collectors to the event bus
func Attach(bus *events.Bus) {
	bus.Subscribe(events.EventSignal, func(e events.Event) {
		signalsTotal.WithLabelValues(e.Symbol, str(e.Data["strategy"]), str(e.Data["action"])).Inc()
	})
	bus.Subscribe(events.EventSignalRejected, func(e events.Event) {
		signalsRejectedTotal.WithLabelValues(e.Symbol, str(e.Data["reason"])).Inc()
	})
	bus.Subscribe(events.EventTradeEntry, func(e events.Event) {
		tradesOpenedTotal.WithLabelValues(e.Symbol, str(e.Data["strategy"]), str(e.Data["side"])).Inc()
	})
	bus.Subscribe(events.EventTradeExit, func(e events.Event) {
		tradesClosedTotal.WithLabelValues(e.Symbol, str(e.Data["exit_reason"])).Inc()
		if pnl, ok := e.Data["pnl"].(float64); ok {
			tradePnL.WithLabelValues(e.Symbol).Observe(pnl)
		}
	})
	bus.Subscribe(events.EventError, func(e events.Event) {
		errorsTotal.WithLabelValues(str(e.Data["component"])).Inc()
	})
}

// UpdateAccount refreshes the account gauges; called by the supervisor's
// health summary
func UpdateAccount(balance, equity float64) {
	accountBalance.Set(balance)
	accountEquity.Set(equity)
}

// UpdateOpenPositions refreshes the open position gauge
func UpdateOpenPositions(n int) {
	openPositions.Set(float64(n))
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
