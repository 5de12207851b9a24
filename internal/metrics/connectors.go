package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConnectorCollector exposes Prometheus metrics for outbound provider
// traffic: connection tests, background polls and latency.
type ConnectorCollector struct {
	testsTotal  *prometheus.CounterVec
	pollsTotal  *prometheus.CounterVec
	testLatency *prometheus.HistogramVec
	connected   prometheus.Gauge
}

// NewConnectorCollector constructs the collector and registers its metrics
// on the given registerer.
func NewConnectorCollector(reg prometheus.Registerer) (*ConnectorCollector, error) {
	testsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "connectors",
		Name:      "tests_total",
		Help:      "Total number of connection tests by provider and outcome.",
	}, []string{"provider", "outcome"})

	pollsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pulseboard",
		Subsystem: "connectors",
		Name:      "polls_total",
		Help:      "Total number of background polls by provider and outcome.",
	}, []string{"provider", "outcome"})

	testLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pulseboard",
		Subsystem: "connectors",
		Name:      "test_latency_seconds",
		Help:      "Latency distribution for successful connection tests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pulseboard",
		Subsystem: "connectors",
		Name:      "connected",
		Help:      "Number of connectors currently in status connected.",
	})

	for _, c := range []prometheus.Collector{testsTotal, pollsTotal, testLatency, connected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &ConnectorCollector{
		testsTotal:  testsTotal,
		pollsTotal:  pollsTotal,
		testLatency: testLatency,
		connected:   connected,
	}, nil
}

// RecordTest counts one connection test.
func (c *ConnectorCollector) RecordTest(provider, outcome string) {
	c.testsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordPoll counts one background poll.
func (c *ConnectorCollector) RecordPoll(provider, outcome string) {
	c.pollsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveLatency records the round-trip time of a successful test.
func (c *ConnectorCollector) ObserveLatency(provider string, d time.Duration) {
	c.testLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// SetConnected updates the connected-connector gauge.
func (c *ConnectorCollector) SetConnected(n int) {
	c.connected.Set(float64(n))
}
