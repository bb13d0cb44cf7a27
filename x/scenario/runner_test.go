package scenario

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/submit"
	"github.com/compose-network/ledger-harness/x/tx"
)

type reply struct {
	status ledger.Status
	err    error
}

// fakeSubmitter answers by the first command's peer address, falling back to COMMITTED.
type fakeSubmitter struct {
	replies map[string][]reply
	sent    []string
}

func (f *fakeSubmitter) Submit(_ context.Context, t ledger.Transaction, _ endpoint.Endpoint) (submit.Result, error) {
	label := t.Payload.Commands[0].AddPeer.Peer.Address
	f.sent = append(f.sent, label)
	res := submit.Result{TxHash: tx.MustHash(t.Payload), Status: ledger.StatusCommitted}
	if q := f.replies[label]; len(q) > 0 {
		f.replies[label] = q[1:]
		res.Status = q[0].status
		return res, q[0].err
	}
	return res, nil
}

func newEnv(t *testing.T, sub Submitter) *Env {
	t.Helper()
	kp, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)
	ep1, err := endpoint.New("node1", "127.0.0.1", 50051)
	require.NoError(t, err)
	ep2, err := endpoint.New("node2", "127.0.0.1", 50052)
	require.NoError(t, err)
	reg, err := endpoint.NewRegistry(ep1, ep2)
	require.NoError(t, err)
	return &Env{
		Identity:  keys.Identity{AccountID: "admin@test", Key: kp},
		Endpoints: reg,
		Submitter: sub,
		Log:       zerolog.Nop(),
	}
}

// step builds a scenario whose transaction is labelled by name.
func step(name string, requires, provides []Key) Scenario {
	return Scenario{
		Name:     name,
		Requires: requires,
		Provides: provides,
		Commands: func(*Outputs) ([]ledger.Command, error) {
			return []ledger.Command{ledger.NewAddPeer(name, []byte{1})}, nil
		},
		After: func(_ context.Context, _ *Env, _ Attempt, out *Outputs) error {
			for _, k := range provides {
				out.Set(k, name)
			}
			return nil
		},
	}
}

func TestValidateOrder(t *testing.T) {
	t.Parallel()

	a := step("a", nil, []Key{"x"})
	b := step("b", []Key{"x"}, nil)
	c := step("c", nil, nil)

	require.NoError(t, ValidateOrder([]Scenario{a, b, c}, 2))
	require.ErrorIs(t, ValidateOrder([]Scenario{b, c, a}, 2), errs.ErrInvalidOrder)
	require.NoError(t, ValidateOrder([]Scenario{b, c}, 2, "x"))
	require.ErrorIs(t, ValidateOrder([]Scenario{a, a}, 2), errs.ErrInvalidOrder)

	far := step("far", nil, nil)
	far.Node = 3
	require.ErrorIs(t, ValidateOrder([]Scenario{far}, 2), errs.ErrInvalidOrder)

	empty := Scenario{Name: "empty"}
	require.ErrorIs(t, ValidateOrder([]Scenario{empty}, 2), errs.ErrInvalidOrder)
}

func TestRun_OutOfOrderSubmitsNothing(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	r := NewRunner(Config{}, newEnv(t, sub), zerolog.Nop())

	_, err := r.Run(context.Background(), []Scenario{
		step("b", []Key{"x"}, nil),
		step("c", nil, nil),
		step("a", nil, []Key{"x"}),
	})
	require.ErrorIs(t, err, errs.ErrInvalidOrder)
	require.Empty(t, sub.sent)
}

func TestRun_ThreadsOutputs(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	r := NewRunner(Config{}, newEnv(t, sub), zerolog.Nop())

	consumer := Scenario{
		Name:     "consumer",
		Requires: []Key{"x"},
		Commands: func(in *Outputs) ([]ledger.Command, error) {
			v, err := Get[string](in, "x")
			if err != nil {
				return nil, err
			}
			return []ledger.Command{ledger.NewAddPeer("from-"+v, []byte{2})}, nil
		},
	}

	report, err := r.Run(context.Background(), []Scenario{step("producer", nil, []Key{"x"}), consumer})
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 2, report.Passed())
	require.Equal(t, []string{"producer", "from-producer"}, sub.sent)
	require.NotEmpty(t, report.RunID)
}

func TestRun_FailFast(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{replies: map[string][]reply{"b": {{status: ledger.StatusStatefulValidationFailed}}}}
	r := NewRunner(Config{Policy: PolicyFailFast}, newEnv(t, sub), zerolog.Nop())

	report, err := r.Run(context.Background(), []Scenario{step("a", nil, nil), step("b", nil, nil), step("c", nil, nil)})
	require.ErrorIs(t, err, errs.ErrAssertionFailed)
	require.Contains(t, err.Error(), "expected COMMITTED, got STATEFUL_VALIDATION_FAILED")
	require.Equal(t, []string{"a", "b"}, sub.sent)

	rec, ok := report.Get("b")
	require.True(t, ok)
	require.Equal(t, StateRejected, rec.State)
	require.False(t, rec.Passed)
	rec, _ = report.Get("c")
	require.Equal(t, StateSkipped, rec.State)
	require.Equal(t, 1, report.Failed())
	require.Equal(t, 1, report.Skipped())
}

func TestRun_ContinueReportsAll(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{replies: map[string][]reply{
		"a": {{status: ledger.StatusRejected}},
		"c": {{status: ledger.StatusStatelessValidationFailed}},
	}}
	r := NewRunner(Config{Policy: PolicyContinue}, newEnv(t, sub), zerolog.Nop())

	report, err := r.Run(context.Background(), []Scenario{step("a", nil, nil), step("b", nil, nil), step("c", nil, nil)})
	require.Error(t, err)
	require.Equal(t, 2, report.Failed())
	require.Equal(t, 1, report.Passed())
	require.Equal(t, 2, strings.Count(err.Error(), "assertion_failed"))
}

func TestRun_SkipDependents(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{replies: map[string][]reply{"deploy": {{status: ledger.StatusStatefulValidationFailed}}}}
	r := NewRunner(Config{Policy: PolicySkipDependents}, newEnv(t, sub), zerolog.Nop())

	report, err := r.Run(context.Background(), []Scenario{
		step("deploy", nil, []Key{"contract"}),
		step("call", []Key{"contract"}, nil),
		step("unrelated", nil, nil),
	})
	require.Error(t, err)
	require.Equal(t, []string{"deploy", "unrelated"}, sub.sent)
	rec, _ := report.Get("call")
	require.Equal(t, StateSkipped, rec.State)
	require.Contains(t, rec.Detail, "contract")
	rec, _ = report.Get("unrelated")
	require.True(t, rec.Passed)
}

func TestRun_ContinueFailsDependentsDeterministically(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{replies: map[string][]reply{"deploy": {{status: ledger.StatusStatefulValidationFailed}}}}
	r := NewRunner(Config{Policy: PolicyContinue}, newEnv(t, sub), zerolog.Nop())

	report, err := r.Run(context.Background(), []Scenario{
		step("deploy", nil, []Key{"contract"}),
		step("call", []Key{"contract"}, nil),
	})
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrMissingInput)
	rec, _ := report.Get("call")
	require.Equal(t, StateErrored, rec.State)
	require.Equal(t, []string{"deploy"}, sub.sent)
}

func TestRun_Retries(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{replies: map[string][]reply{"flaky": {{status: ledger.StatusRejected}}}}
	r := NewRunner(Config{Retries: 1}, newEnv(t, sub), zerolog.Nop())

	report, err := r.Run(context.Background(), []Scenario{step("flaky", nil, nil)})
	require.NoError(t, err)
	rec, _ := report.Get("flaky")
	require.True(t, rec.Passed)
	require.Equal(t, 2, rec.Attempts)
}

func TestRun_TimeoutState(t *testing.T) {
	t.Parallel()

	timeout := errs.New(errs.KindTimeout, "submit", "no terminal status")
	sub := &fakeSubmitter{replies: map[string][]reply{"slow": {{status: ledger.StatusStatelessValidationSuccess, err: timeout}}}}
	r := NewRunner(Config{}, newEnv(t, sub), zerolog.Nop())

	report, err := r.Run(context.Background(), []Scenario{step("slow", nil, nil)})
	require.ErrorIs(t, err, errs.ErrTimeout)
	rec, _ := report.Get("slow")
	require.Equal(t, StateTimedOut, rec.State)
}

func TestRun_ExpectRejected(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{replies: map[string][]reply{"dup": {{status: ledger.StatusRejected}}}}
	r := NewRunner(Config{}, newEnv(t, sub), zerolog.Nop())

	dup := step("dup", nil, nil)
	dup.Expect = ExpectRejected()
	commit := step("commit", nil, nil)
	commit.Expect = ExpectRejected()

	report, err := r.Run(context.Background(), []Scenario{dup, commit})
	require.ErrorIs(t, err, errs.ErrAssertionFailed)
	rec, _ := report.Get("dup")
	require.True(t, rec.Passed)
	rec, _ = report.Get("commit")
	require.False(t, rec.Passed)
}

func TestRun_MissingProvideFails(t *testing.T) {
	t.Parallel()

	r := NewRunner(Config{}, newEnv(t, &fakeSubmitter{}), zerolog.Nop())
	liar := step("liar", nil, nil)
	liar.Provides = []Key{"never"}

	_, err := r.Run(context.Background(), []Scenario{liar})
	require.ErrorIs(t, err, errs.ErrMissingInput)
}

type scriptedConfirmer struct {
	answers []bool
	groups  []string
}

func (c *scriptedConfirmer) Confirm(_ context.Context, group string, _ []string) (bool, error) {
	c.groups = append(c.groups, group)
	ok := c.answers[0]
	c.answers = c.answers[1:]
	return ok, nil
}

func TestRun_StepModeStopsOnDecline(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	conf := &scriptedConfirmer{answers: []bool{true, false}}
	r := NewRunner(Config{}, newEnv(t, sub), zerolog.Nop(), WithConfirmer(conf))

	a, b, c := step("a", nil, nil), step("b", nil, nil), step("c", nil, nil)
	a.Group, b.Group, c.Group = "peers", "peers", "contracts"

	report, err := r.Run(context.Background(), []Scenario{a, b, c})
	require.ErrorIs(t, err, ErrAborted)
	require.Equal(t, []string{"peers", "contracts"}, conf.groups)
	require.Equal(t, []string{"a", "b"}, sub.sent)
	require.Equal(t, 1, report.Skipped())
}

func TestPromptConfirmer(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	p := NewPromptConfirmer(strings.NewReader("\nn\n"), &out)

	ok, err := p.Confirm(context.Background(), "peers", []string{"add_peer"})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.Confirm(context.Background(), "contracts", []string{"deploy_contract"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Contains(t, out.String(), `Next group "contracts"`)

	ok, err = p.Confirm(context.Background(), "assets", nil)
	require.NoError(t, err)
	require.False(t, ok, "EOF stops the run")
}

func TestPromptConfirmer_Cancellation(t *testing.T) {
	t.Parallel()

	in, w := io.Pipe()
	var out strings.Builder
	p := NewPromptConfirmer(in, &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Confirm(ctx, "peers", []string{"add_peer"})
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Confirm ignored cancellation")
	}

	// The abandoned read answers the next prompt.
	go func() { _, _ = w.Write([]byte("y\n")) }()
	ok, err := p.Confirm(context.Background(), "contracts", nil)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, w.Close())
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyFailFast, p)
	p, err = ParsePolicy("Skip-Dependents")
	require.NoError(t, err)
	require.Equal(t, PolicySkipDependents, p)
	_, err = ParsePolicy("shuffle")
	require.Error(t, err)
}

func TestOutputsGet(t *testing.T) {
	t.Parallel()

	o := NewOutputs()
	o.Set("n", 3)
	v, err := Get[int](o, "n")
	require.NoError(t, err)
	require.Equal(t, 3, v)

	_, err = Get[string](o, "n")
	require.ErrorIs(t, err, errs.ErrMissingInput)
	_, err = Get[int](o, "absent")
	require.ErrorIs(t, err, errs.ErrMissingInput)
	require.Equal(t, []Key{"n"}, o.Keys())
}
