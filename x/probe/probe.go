package probe

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
)

// DefaultTimeout bounds a single connect attempt.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of probing one endpoint.
type Result struct {
	Endpoint  endpoint.Endpoint
	Reachable bool
	Latency   time.Duration
	Err       error
}

// Report holds per-endpoint results in the order the endpoints were given.
type Report struct {
	Results []Result
}

// AllReachable reports whether every endpoint accepted a connection.
func (r Report) AllReachable() bool {
	for _, res := range r.Results {
		if !res.Reachable {
			return false
		}
	}
	return len(r.Results) > 0
}

// Unreachable returns the endpoints that failed.
func (r Report) Unreachable() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Reachable {
			out = append(out, res)
		}
	}
	return out
}

// ByAddress maps endpoint address to reachability.
func (r Report) ByAddress() map[string]bool {
	out := make(map[string]bool, len(r.Results))
	for _, res := range r.Results {
		out[res.Endpoint.Address()] = res.Reachable
	}
	return out
}

// Err returns nil when all endpoints are reachable, otherwise an Unreachable
// error listing the failed nodes.
func (r Report) Err() error {
	bad := r.Unreachable()
	if len(bad) == 0 {
		return nil
	}
	names := make([]string, len(bad))
	for i, res := range bad {
		names[i] = res.Endpoint.String()
	}
	return errs.Newf(errs.KindUnreachable, "probe", "%d of %d nodes unreachable", len(bad), len(r.Results)).
		WithContext("nodes", names)
}

// Dialer opens a connection. net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Prober checks that endpoints accept TCP connections.
type Prober struct {
	timeout time.Duration
	dialer  Dialer
	log     zerolog.Logger
	metrics *Metrics
}

// Option configures a Prober.
type Option func(*Prober)

// WithDialer replaces the TCP dialer.
func WithDialer(d Dialer) Option {
	return func(p *Prober) { p.dialer = d }
}

// WithMetrics records probe outcomes.
func WithMetrics(m *Metrics) Option {
	return func(p *Prober) { p.metrics = m }
}

// New creates a Prober. A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration, log zerolog.Logger, opts ...Option) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := &Prober{
		timeout: timeout,
		dialer:  &net.Dialer{},
		log:     log.With().Str("component", "prober").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe connects to every endpoint concurrently and waits for all of them.
// A failing node never stops the sweep.
func (p *Prober) Probe(ctx context.Context, endpoints []endpoint.Endpoint) Report {
	results := make([]Result, len(endpoints))

	var g errgroup.Group
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = p.probeOne(ctx, ep)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range results {
		evt := p.log.Info()
		if !res.Reachable {
			evt = p.log.Warn().Err(res.Err)
		}
		evt.Int("node", i+1).
			Str("name", res.Endpoint.Name).
			Str("addr", res.Endpoint.Address()).
			Bool("reachable", res.Reachable).
			Dur("latency", res.Latency).
			Msg("probe result")
	}

	return Report{Results: results}
}

func (p *Prober) probeOne(ctx context.Context, ep endpoint.Endpoint) Result {
	dialCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.log.Debug().Str("addr", ep.Address()).Dur("timeout", p.timeout).Msg("probing node")

	start := time.Now()
	conn, err := p.dialer.DialContext(dialCtx, "tcp", ep.Address())
	latency := time.Since(start)
	if err != nil {
		kind := errs.KindUnreachable
		if dialCtx.Err() != nil {
			kind = errs.KindTimeout
		}
		p.metrics.observe(false, latency)
		return Result{
			Endpoint: ep,
			Latency:  latency,
			Err:      errs.New(kind, "probe", ep.String()).WithCause(err),
		}
	}
	_ = conn.Close()

	p.metrics.observe(true, latency)
	return Result{Endpoint: ep, Reachable: true, Latency: latency}
}
