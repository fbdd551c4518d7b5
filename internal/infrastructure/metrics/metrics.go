// Package metrics holds the Prometheus collectors for the trader.
//
// Exposed series:
//   - trader_signals_total{direction,trigger}  consumed entry signals
//   - trader_orders_total{kind,tag}            order requests sent to the venue
//   - trader_order_updates_total{state}        venue notifications received
//   - trader_flattens_total{reason}            emergency flattens issued
//   - trader_observations_total{result}        per-bar pipeline outcomes
//   - trader_daily_pnl{kind}                   realized/unrealized/total P&L
//   - trader_daily_limit_reached               1 once a daily limit trips
//   - trader_levels                            levels in the registry
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	signals      *prometheus.CounterVec
	orders       *prometheus.CounterVec
	updates      *prometheus.CounterVec
	flattens     *prometheus.CounterVec
	observations *prometheus.CounterVec
	dailyPnL     *prometheus.GaugeVec
	limitReached prometheus.Gauge
	levels       prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Entry signals consumed",
		}, []string{"direction", "trigger"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Order requests sent to the venue",
		}, []string{"kind", "tag"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_order_updates_total",
			Help: "Order state notifications received",
		}, []string{"state"}),
		flattens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_flattens_total",
			Help: "Emergency flattens issued",
		}, []string{"reason"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_observations_total",
			Help: "Bar observations by pipeline result",
		}, []string{"result"}),
		dailyPnL: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_daily_pnl",
			Help: "Daily P&L in account currency",
		}, []string{"kind"}),
		limitReached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_daily_limit_reached",
			Help: "1 when the daily loss or target limit has been reached",
		}),
		levels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_levels",
			Help: "Price levels currently registered",
		}),
	}

	m.registry.MustRegister(
		m.signals,
		m.orders,
		m.updates,
		m.flattens,
		m.observations,
		m.dailyPnL,
		m.limitReached,
		m.levels,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Signal(direction, trigger string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(direction, trigger).Inc()
}

func (m *Metrics) Order(kind, tag string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(kind, tag).Inc()
}

func (m *Metrics) OrderUpdate(state string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(state).Inc()
}

func (m *Metrics) Flatten(reason string) {
	if m == nil {
		return
	}
	m.flattens.WithLabelValues(reason).Inc()
}

func (m *Metrics) Observation(result string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(result).Inc()
}

func (m *Metrics) DailyPnL(realized, unrealized decimal.Decimal, limitReached bool) {
	if m == nil {
		return
	}
	r, _ := realized.Float64()
	u, _ := unrealized.Float64()
	m.dailyPnL.WithLabelValues("realized").Set(r)
	m.dailyPnL.WithLabelValues("unrealized").Set(u)
	m.dailyPnL.WithLabelValues("total").Set(r + u)
	if limitReached {
		m.limitReached.Set(1)
	} else {
		m.limitReached.Set(0)
	}
}

func (m *Metrics) Levels(n int) {
	if m == nil {
		return
	}
	m.levels.Set(float64(n))
}
