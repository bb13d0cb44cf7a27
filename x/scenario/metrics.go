package scenario

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ledger-harness/metrics"
)

// Metrics holds runner metrics.
type Metrics struct {
	ScenariosTotal   *prometheus.CounterVec
	ScenarioDuration *prometheus.HistogramVec
	Passed           prometheus.Gauge
	Failed           prometheus.Gauge
}

// NewMetrics registers runner metrics with reg.
func NewMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		ScenariosTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "scenarios_total",
			Help: "Scenarios by final state and verdict",
		}, []string{"state", "passed"}),
		ScenarioDuration: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scenario_duration_seconds",
			Help:    "Wall time per scenario including retries",
			Buckets: metrics.DurationBuckets,
		}, []string{"scenario"}),
		Passed: reg.NewGauge(prometheus.GaugeOpts{
			Name: "scenarios_passed",
			Help: "Passed scenarios in the last run",
		}),
		Failed: reg.NewGauge(prometheus.GaugeOpts{
			Name: "scenarios_failed",
			Help: "Failed scenarios in the last run",
		}),
	}
}

func (m *Metrics) record(rec Record) {
	if m == nil {
		return
	}
	passed := "false"
	if rec.Passed {
		passed = "true"
	}
	m.ScenariosTotal.WithLabelValues(string(rec.State), passed).Inc()
	if rec.State != StateSkipped {
		m.ScenarioDuration.WithLabelValues(rec.Name).Observe(rec.Duration.Seconds())
	}
}

func (m *Metrics) summary(r Report) {
	if m == nil {
		return
	}
	m.Passed.Set(float64(r.Passed()))
	m.Failed.Set(float64(r.Failed()))
}
