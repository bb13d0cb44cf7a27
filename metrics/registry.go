package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DurationBuckets suits RPC round trips and scenario steps.
	DurationBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}
	// NetworkBuckets suits dial and probe latencies.
	NetworkBuckets = []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5}
	// CountBuckets suits poll counts and block sizes.
	CountBuckets = []float64{1, 2, 5, 10, 20, 50, 100, 200}
)

// ComponentRegistry creates collectors under a fixed namespace/subsystem pair.
// Registering the same collector twice returns the one already registered, so
// components can be constructed more than once per process (tests, devnet nodes).
type ComponentRegistry struct {
	namespace string
	subsystem string
	reg       prometheus.Registerer
}

// NewComponentRegistry registers against prometheus.DefaultRegisterer.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return NewComponentRegistryWith(prometheus.DefaultRegisterer, namespace, subsystem)
}

// NewComponentRegistryWith registers against reg.
func NewComponentRegistryWith(reg prometheus.Registerer, namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{namespace: namespace, subsystem: subsystem, reg: reg}
}

func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewCounter(opts))
}

func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewCounterVec(opts, labels))
}

func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewGauge(opts))
}

func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewHistogram(opts))
}

func (r *ComponentRegistry) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(r.reg, prometheus.NewHistogramVec(opts, labels))
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// WriteTextfile dumps everything gathered from g in the node-exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return prometheus.WriteToTextfile(path, g)
}
