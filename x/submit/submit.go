package submit

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/tx"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

// Config bounds a single submission.
type Config struct {
	Timeout      time.Duration `mapstructure:"timeout"       yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// DefaultConfig returns the default submission bounds.
func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, PollInterval: DefaultPollInterval}
}

// Result is the terminal outcome of one submitted transaction.
type Result struct {
	TxHash    ledger.Hash
	Status    ledger.Status
	ErrorCode uint32
	Detail    string
	Polls     int
	Elapsed   time.Duration
}

// Committed reports whether the transaction made it into a block.
func (r Result) Committed() bool {
	return r.Status == ledger.StatusCommitted
}

// Client sends signed transactions and waits for their terminal status.
type Client struct {
	cfg     Config
	dialer  ledger.Dialer
	log     zerolog.Logger
	metrics *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records submission outcomes.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a submission client. Zero config fields take their defaults.
func New(cfg Config, dialer ledger.Dialer, log zerolog.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	c := &Client{
		cfg:    cfg,
		dialer: dialer,
		log:    log.With().Str("component", "submitter").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit sends t to ep and polls until a terminal status or the timeout.
// A rejection is a normal Result; errors are reserved for Unreachable and Timeout.
func (c *Client) Submit(ctx context.Context, t ledger.Transaction, ep endpoint.Endpoint) (Result, error) {
	start := time.Now()
	hash, err := tx.Hash(t.Payload)
	if err != nil {
		return Result{}, errs.New(errs.KindMalformedCommand, "submit", "payload cannot be encoded").WithCause(err)
	}

	client, err := c.dialer.Dial(ep)
	if err != nil {
		return Result{TxHash: hash}, errs.New(errs.KindUnreachable, "submit", ep.String()).WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	log := c.log.With().Str("node", ep.Name).Str("tx", hash.Short()).Logger()
	log.Debug().Int("commands", len(t.Payload.Commands)).Msg("submitting transaction")

	ack, err := client.Submit(ctx, &t)
	if err != nil {
		c.metrics.observe("error", time.Since(start), 0)
		return Result{TxHash: hash}, c.classify(ctx, "submit", ep, err)
	}
	if ack.TxHash != hash {
		log.Warn().Str("ack_tx", ack.TxHash.Short()).Msg("node acknowledged a different hash")
	}

	res := Result{TxHash: hash, Status: ack.Status, ErrorCode: ack.ErrorCode, Detail: ack.Detail}
	if ack.Status.Terminal() {
		res.Elapsed = time.Since(start)
		c.finish(log, res)
		return res, nil
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			res.Elapsed = time.Since(start)
			c.metrics.observe("timeout", res.Elapsed, res.Polls)
			return res, errs.Newf(errs.KindTimeout, "submit", "no terminal status within %s", c.cfg.Timeout).
				WithContext("tx", hash.Short()).
				WithContext("last_status", res.Status.String()).
				WithCause(ctx.Err())
		case <-ticker.C:
		}

		res.Polls++
		st, err := client.Status(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if isUnavailable(err) {
				res.Elapsed = time.Since(start)
				c.metrics.observe("error", res.Elapsed, res.Polls)
				return res, errs.New(errs.KindUnreachable, "status", ep.String()).WithCause(err)
			}
			log.Debug().Err(err).Msg("status query failed, retrying")
			continue
		}

		if st.Status != res.Status {
			log.Debug().Stringer("status", st.Status).Int("poll", res.Polls).Msg("status changed")
		}
		res.Status, res.ErrorCode, res.Detail = st.Status, st.ErrorCode, st.Detail
		if st.Status.Terminal() {
			res.Elapsed = time.Since(start)
			c.finish(log, res)
			return res, nil
		}
	}
}

func (c *Client) finish(log zerolog.Logger, res Result) {
	c.metrics.observe(res.Status.String(), res.Elapsed, res.Polls)
	evt := log.Info()
	if !res.Committed() {
		evt = log.Warn().Uint32("error_code", res.ErrorCode).Str("detail", res.Detail)
	}
	evt.Stringer("status", res.Status).
		Int("polls", res.Polls).
		Dur("elapsed", res.Elapsed).
		Msg("transaction reached terminal status")
}

func (c *Client) classify(ctx context.Context, op string, ep endpoint.Endpoint, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
		return errs.Newf(errs.KindTimeout, op, "no answer within %s", c.cfg.Timeout).WithCause(err)
	case ctx.Err() != nil:
		return errs.New(errs.KindTimeout, op, "cancelled").WithCause(err)
	case isUnavailable(err):
		return errs.New(errs.KindUnreachable, op, ep.String()).WithCause(err)
	default:
		return errs.New(errs.KindUnknown, op, ep.String()).WithCause(err)
	}
}

func isUnavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}
