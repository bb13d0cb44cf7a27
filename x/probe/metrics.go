package probe

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ledger-harness/metrics"
)

// Metrics holds reachability metrics.
type Metrics struct {
	ProbesTotal  *prometheus.CounterVec
	ProbeLatency prometheus.Histogram
}

// NewMetrics registers probe metrics with reg.
func NewMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		ProbesTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "probes_total",
			Help: "Reachability probes by outcome",
		}, []string{"result"}),
		ProbeLatency: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "probe_latency_seconds",
			Help:    "Time to connect or fail",
			Buckets: metrics.NetworkBuckets,
		}),
	}
}

func (m *Metrics) observe(ok bool, latency time.Duration) {
	if m == nil {
		return
	}
	result := "reachable"
	if !ok {
		result = "unreachable"
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
	m.ProbeLatency.Observe(latency.Seconds())
}
