package submit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/compose-network/ledger-harness/metrics"
)

// Metrics holds submission metrics.
type Metrics struct {
	SubmissionsTotal   *prometheus.CounterVec
	SubmissionDuration prometheus.Histogram
	Polls              prometheus.Histogram
}

// NewMetrics registers submission metrics with reg.
func NewMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		SubmissionsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "submissions_total",
			Help: "Submitted transactions by terminal status",
		}, []string{"status"}),
		SubmissionDuration: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "submission_duration_seconds",
			Help:    "Time from submit to terminal status",
			Buckets: metrics.DurationBuckets,
		}),
		Polls: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "status_polls",
			Help:    "Status queries needed per transaction",
			Buckets: metrics.CountBuckets,
		}),
	}
}

func (m *Metrics) observe(status string, elapsed time.Duration, polls int) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(status).Inc()
	m.SubmissionDuration.Observe(elapsed.Seconds())
	m.Polls.Observe(float64(polls))
}
