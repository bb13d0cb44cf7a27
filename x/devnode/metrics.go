package devnode

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/compose-network/ledger-harness/metrics"
	"github.com/compose-network/ledger-harness/x/ledger"
)

// Metrics holds devnode metrics.
type Metrics struct {
	IntakeTotal       *prometheus.CounterVec
	AppliedTotal      *prometheus.CounterVec
	BlockHeight       prometheus.Gauge
	BlockSize         prometheus.Histogram
	RPCRequestsTotal  *prometheus.CounterVec
	RPCRequestSeconds *prometheus.HistogramVec
}

// NewMetrics registers devnode metrics with reg.
func NewMetrics(reg *metrics.ComponentRegistry) *Metrics {
	return &Metrics{
		IntakeTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_total",
			Help: "Submitted transactions by intake outcome",
		}, []string{"result"}),
		AppliedTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "applied_total",
			Help: "Transactions applied at block commit by outcome",
		}, []string{"result"}),
		BlockHeight: reg.NewGauge(prometheus.GaugeOpts{
			Name: "block_height",
			Help: "Height of the last sealed block",
		}),
		BlockSize: reg.NewHistogram(prometheus.HistogramOpts{
			Name:    "block_transactions",
			Help:    "Committed transactions per block",
			Buckets: metrics.CountBuckets,
		}),
		RPCRequestsTotal: reg.NewCounterVec(prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "gRPC requests by service, method and code",
		}, []string{"service", "method", "code"}),
		RPCRequestSeconds: reg.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "gRPC request latency",
			Buckets: metrics.DurationBuckets,
		}, []string{"service", "method"}),
	}
}

func (m *Metrics) intake(result string) {
	if m == nil {
		return
	}
	m.IntakeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) applied(result string) {
	if m == nil {
		return
	}
	m.AppliedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) sealed(b ledger.Block) {
	if m == nil {
		return
	}
	m.BlockHeight.Set(float64(b.Height))
	m.BlockSize.Observe(float64(len(b.Transactions)))
}

// UnaryServerInterceptor counts and times every unary call.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if m == nil {
			return resp, err
		}
		service, method := splitMethodName(info.FullMethod)
		m.RPCRequestsTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
		m.RPCRequestSeconds.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

func splitMethodName(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	if service, method, ok := strings.Cut(fullMethod, "/"); ok {
		return service, method
	}
	return "unknown", fullMethod
}
