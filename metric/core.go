package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the SDK's core instrumentation: connection lifecycle,
// state machine activity, RPC latencies and value traffic.
type Metrics struct {
	// Connection lifecycle
	ConnectionState  *prometheus.GaugeVec
	StateTransitions *prometheus.CounterVec
	TriggersIgnored  *prometheus.CounterVec

	// Broker link
	BrokerConnected  prometheus.Gauge
	BrokerReconnects prometheus.Counter

	// Value traffic
	ValuesPublished     *prometheus.CounterVec
	ActuationsTotal     *prometheus.CounterVec
	SubscriptionUpdates *prometheus.CounterVec

	// RPC latency
	RPCDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all core metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "vsslink",
				Subsystem: "connection",
				Name:      "state",
				Help:      "Connection lifecycle state (0=disconnected, 1=connecting, 2=establishing, 3=active, 4=failed)",
			},
			[]string{"client", "role"},
		),

		StateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vsslink",
				Subsystem: "fsm",
				Name:      "transitions_total",
				Help:      "Total number of fired state machine transitions",
			},
			[]string{"machine", "from", "to", "trigger"},
		),

		TriggersIgnored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vsslink",
				Subsystem: "fsm",
				Name:      "triggers_ignored_total",
				Help:      "Total number of triggers that matched no transition",
			},
			[]string{"machine", "trigger"},
		),

		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "vsslink",
				Subsystem: "broker",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		BrokerReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "vsslink",
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Total number of broker reconnections",
			},
		),

		ValuesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vsslink",
				Subsystem: "values",
				Name:      "published_total",
				Help:      "Total number of published datapoints",
			},
			[]string{"client", "status"},
		),

		ActuationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vsslink",
				Subsystem: "actuations",
				Name:      "total",
				Help:      "Total number of actuation requests handled or sent",
			},
			[]string{"client", "direction", "status"},
		),

		SubscriptionUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "vsslink",
				Subsystem: "subscriptions",
				Name:      "updates_total",
				Help:      "Total number of subscription value updates delivered",
			},
			[]string{"client"},
		),

		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "vsslink",
				Subsystem: "rpc",
				Name:      "duration_seconds",
				Help:      "Broker RPC round-trip duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
	}
}

// ObserveRPC records one RPC round trip.
func (m *Metrics) ObserveRPC(method string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RPCDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionState,
		m.StateTransitions,
		m.TriggersIgnored,
		m.BrokerConnected,
		m.BrokerReconnects,
		m.ValuesPublished,
		m.ActuationsTotal,
		m.SubscriptionUpdates,
		m.RPCDuration,
	}
}
