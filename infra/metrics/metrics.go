// Package metrics exposes engine counters and latencies on a private
// Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"apex/domain/orderbook"
)

const namespace = "apex"

type Metrics struct {
	reg *prometheus.Registry

	events   *prometheus.CounterVec
	trades   prometheus.Counter
	volume   prometheus.Counter
	outcomes *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_events_total",
			Help:      "Book events by kind.",
		}, []string{"kind"}),
		trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed trades.",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traded_quantity_total",
			Help:      "Quantity exchanged across all trades.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_outcomes_total",
			Help:      "Order submissions by resulting status.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed operations by operation and error class.",
		}, []string{"op", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
	}
	m.reg.MustRegister(
		m.events, m.trades, m.volume, m.outcomes, m.failures, m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Syncer wraps next, counting every event before passing it on.
func (m *Metrics) Syncer(next orderbook.Syncer) orderbook.Syncer {
	if next == nil {
		next = orderbook.NopSyncer{}
	}
	return orderbook.SyncerFunc(func(ev orderbook.Event) {
		m.events.WithLabelValues(ev.Kind.String()).Inc()
		if ev.Kind == orderbook.EventFilled && ev.Maker {
			m.trades.Inc()
			m.volume.Add(float64(ev.Delta))
		}
		next.Notify(ev)
	})
}

func (m *Metrics) ObserveOutcome(st orderbook.Status) {
	m.outcomes.WithLabelValues(st.String()).Inc()
}

func (m *Metrics) ObserveLatency(op string, since time.Time) {
	m.latency.WithLabelValues(op).Observe(time.Since(since).Seconds())
}

func (m *Metrics) ObserveError(op, class string) {
	m.failures.WithLabelValues(op, class).Inc()
}

// WatchBook publishes resting depth gauges read from book at scrape time.
func (m *Metrics) WatchBook(book *orderbook.Book) {
	for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
		side := side
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "book_levels",
			Help:        "Price levels per side.",
			ConstLabels: prometheus.Labels{"side": side.String()},
		}, func() float64 { return float64(book.LevelCount(side)) }))
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "book_live_orders",
		Help:      "Orders that are not yet terminal.",
	}, func() float64 { return float64(book.Len()) }))
}

// Gauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
