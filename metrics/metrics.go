package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tello"

// Metrics holds the Prometheus collectors for the command engine and the
// control loop. A nil *Metrics is valid and records nothing.
type Metrics struct {
	commandsTotal  *prometheus.CounterVec
	attemptsTotal  *prometheus.CounterVec
	rcRateLimited  prometheus.Counter
	replyLatency   prometheus.Histogram
	flightMode     prometheus.Gauge
	ticksTotal     prometheus.Counter
	vectorsDropped prometheus.Counter
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands completed by verb and final status",
		}, []string{"verb", "status"}),

		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_attempts_total",
			Help:      "Datagrams sent for acknowledged commands and queries",
		}, []string{"verb"}),

		rcRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rc_rate_limited_total",
			Help:      "RC commands dropped by the pacing gate",
		}),

		replyLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_seconds",
			Help:      "Round trip time of request/response exchanges",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		flightMode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flight_mode",
			Help:      "Active flight mode (0 manual, 1 tracking)",
		}),

		ticksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control loop ticks",
		}),

		vectorsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vectors_dropped_total",
			Help:      "Direction vectors replaced by a newer one before a tick consumed them",
		}),
	}
}

func (m *Metrics) CommandDone(verb string, status string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(verb, status).Inc()
}

func (m *Metrics) Attempt(verb string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(verb).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rcRateLimited.Inc()
}

func (m *Metrics) ReplyLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.replyLatency.Observe(d.Seconds())
}

func (m *Metrics) FlightMode(tracking bool) {
	if m == nil {
		return
	}
	if tracking {
		m.flightMode.Set(1)
	} else {
		m.flightMode.Set(0)
	}
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}

func (m *Metrics) VectorDropped() {
	if m == nil {
		return
	}
	m.vectorsDropped.Inc()
}
