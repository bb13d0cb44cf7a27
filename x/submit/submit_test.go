package submit

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/compose-network/ledger-harness/metrics"
	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/tx"
)

type scriptedClient struct {
	ledger.Client

	mu        sync.Mutex
	ack       *ledger.SubmitAck
	submitErr error
	statuses  []ledger.Status
	statusErr error
	polls     int
}

func (c *scriptedClient) Submit(_ context.Context, t *ledger.Transaction) (*ledger.SubmitAck, error) {
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	ack := *c.ack
	ack.TxHash = tx.MustHash(t.Payload)
	return &ack, nil
}

func (c *scriptedClient) Status(_ context.Context, h ledger.Hash) (*ledger.TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	if len(c.statuses) == 0 {
		return &ledger.TxStatus{TxHash: h, Status: ledger.StatusStatelessValidationSuccess}, nil
	}
	s := c.statuses[0]
	c.statuses = c.statuses[1:]
	return &ledger.TxStatus{TxHash: h, Status: s}, nil
}

type staticDialer struct {
	client ledger.Client
	err    error
}

func (d staticDialer) Dial(endpoint.Endpoint) (ledger.Client, error) {
	return d.client, d.err
}

func signedTx(t *testing.T) ledger.Transaction {
	t.Helper()
	kp, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)
	unsigned, err := tx.Build([]ledger.Command{ledger.NewAddPeer("10.0.0.5:10001", []byte{1, 2, 3})}, "admin@test", 1)
	require.NoError(t, err)
	signed, err := tx.Sign(unsigned, kp)
	require.NoError(t, err)
	return signed
}

func node(t *testing.T) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.New("node1", "127.0.0.1", 50051)
	require.NoError(t, err)
	return ep
}

var fastConfig = Config{Timeout: 2 * time.Second, PollInterval: 5 * time.Millisecond}

func TestSubmit_PollsUntilCommitted(t *testing.T) {
	t.Parallel()

	fake := &scriptedClient{
		ack: &ledger.SubmitAck{Status: ledger.StatusStatelessValidationSuccess},
		statuses: []ledger.Status{
			ledger.StatusEnoughSignaturesCollected,
			ledger.StatusStatefulValidationSuccess,
			ledger.StatusCommitted,
		},
	}
	reg := prometheus.NewRegistry()
	m := NewMetrics(metrics.NewComponentRegistryWith(reg, "harness", "submit"))
	c := New(fastConfig, staticDialer{client: fake}, zerolog.Nop(), WithMetrics(m))

	signed := signedTx(t)
	res, err := c.Submit(context.Background(), signed, node(t))
	require.NoError(t, err)
	require.True(t, res.Committed())
	require.Equal(t, 3, res.Polls)
	require.Equal(t, tx.MustHash(signed.Payload), res.TxHash)
	require.Equal(t, float64(1), testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("COMMITTED")))
}

func TestSubmit_RejectionIsAResult(t *testing.T) {
	t.Parallel()

	fake := &scriptedClient{
		ack:      &ledger.SubmitAck{Status: ledger.StatusStatelessValidationSuccess},
		statuses: []ledger.Status{ledger.StatusStatefulValidationFailed},
	}
	c := New(fastConfig, staticDialer{client: fake}, zerolog.Nop())

	res, err := c.Submit(context.Background(), signedTx(t), node(t))
	require.NoError(t, err)
	require.False(t, res.Committed())
	require.Equal(t, ledger.StatusStatefulValidationFailed, res.Status)
}

func TestSubmit_TerminalAckSkipsPolling(t *testing.T) {
	t.Parallel()

	fake := &scriptedClient{
		ack: &ledger.SubmitAck{Status: ledger.StatusRejected, Detail: "replayed transaction"},
	}
	c := New(fastConfig, staticDialer{client: fake}, zerolog.Nop())

	res, err := c.Submit(context.Background(), signedTx(t), node(t))
	require.NoError(t, err)
	require.Equal(t, ledger.StatusRejected, res.Status)
	require.Equal(t, "replayed transaction", res.Detail)
	require.Zero(t, res.Polls)
	require.Zero(t, fake.polls)
}

func TestSubmit_Timeout(t *testing.T) {
	t.Parallel()

	fake := &scriptedClient{ack: &ledger.SubmitAck{Status: ledger.StatusStatelessValidationSuccess}}
	cfg := Config{Timeout: 60 * time.Millisecond, PollInterval: 5 * time.Millisecond}
	c := New(cfg, staticDialer{client: fake}, zerolog.Nop())

	start := time.Now()
	res, err := c.Submit(context.Background(), signedTx(t), node(t))
	require.ErrorIs(t, err, errs.ErrTimeout)
	require.Less(t, time.Since(start), time.Second)
	require.False(t, res.Status.Terminal())
}

func TestSubmit_Unreachable(t *testing.T) {
	t.Parallel()

	unavailable := status.Error(codes.Unavailable, "connection refused")

	c := New(fastConfig, staticDialer{client: &scriptedClient{submitErr: unavailable}}, zerolog.Nop())
	_, err := c.Submit(context.Background(), signedTx(t), node(t))
	require.ErrorIs(t, err, errs.ErrUnreachable)

	c = New(fastConfig, staticDialer{err: errors.New("bad target")}, zerolog.Nop())
	_, err = c.Submit(context.Background(), signedTx(t), node(t))
	require.ErrorIs(t, err, errs.ErrUnreachable)

	fake := &scriptedClient{
		ack:       &ledger.SubmitAck{Status: ledger.StatusStatelessValidationSuccess},
		statusErr: unavailable,
	}
	c = New(fastConfig, staticDialer{client: fake}, zerolog.Nop())
	_, err = c.Submit(context.Background(), signedTx(t), node(t))
	require.ErrorIs(t, err, errs.ErrUnreachable)
}

func TestSubmit_UnreachableOverGRPC(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	ep, err := endpoint.New("node1", "127.0.0.1", port)
	require.NoError(t, err)

	pool := ledger.NewPool()
	t.Cleanup(func() { _ = pool.Close() })

	c := New(fastConfig, pool, zerolog.Nop())
	_, err = c.Submit(context.Background(), signedTx(t), ep)
	require.ErrorIs(t, err, errs.ErrUnreachable)
	require.Equal(t, errs.KindUnreachable, errs.KindOf(err))
}
