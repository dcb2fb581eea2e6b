package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_orders_submitted_total",
			Help: "Orders accepted by the venue, by symbol and purpose.",
		},
		[]string{"symbol", "purpose"},
	)

	OrderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_order_failures_total",
			Help: "Order placement attempts that failed, by symbol and purpose.",
		},
		[]string{"symbol", "purpose"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_signals_total",
			Help: "Entry evaluations, by symbol and decision (enter / skip).",
		},
		[]string{"symbol", "decision"},
	)

	PositionsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spotbot_positions_open",
			Help: "1 while a position is being monitored for the symbol.",
		},
		[]string{"symbol"},
	)

	MonitorPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_monitor_polls_total",
			Help: "Position monitor iterations, by symbol and outcome.",
		},
		[]string{"symbol", "outcome"},
	)

	PositionExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spotbot_position_exits_total",
			Help: "Closed positions, by symbol and exit reason.",
		},
		[]string{"symbol", "reason"},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spotbot_equity",
			Help: "Account equity seen at the last sizing decision.",
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersSubmitted, OrderFailures, Signals, PositionsOpen, MonitorPolls, PositionExits, EquityGauge)
}
