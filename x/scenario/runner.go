package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/tx"
)

// Policy decides what happens after a scenario fails.
type Policy string

const (
	// PolicyFailFast stops at the first failure.
	PolicyFailFast Policy = "fail-fast"
	// PolicyContinue runs everything and reports all failures.
	PolicyContinue Policy = "continue"
	// PolicySkipDependents keeps going but skips scenarios whose inputs were
	// never produced.
	PolicySkipDependents Policy = "skip-dependents"
)

// ParsePolicy accepts the policy names; empty means fail-fast.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFailFast, nil
	case PolicyFailFast, PolicyContinue, PolicySkipDependents:
		return p, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// ErrAborted is returned when a Confirmer stops the run.
var ErrAborted = errors.New("run aborted by operator")

// Config tunes the runner.
type Config struct {
	Policy     Policy        `mapstructure:"policy"      yaml:"policy"`
	Retries    int           `mapstructure:"retries"     yaml:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// Runner executes scenarios strictly in declaration order, one at a time.
type Runner struct {
	cfg       Config
	env       *Env
	log       zerolog.Logger
	metrics   *Metrics
	confirmer Confirmer
	seeded    []Key
	outputs   *Outputs
	now       func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records scenario outcomes.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithConfirmer enables step mode.
func WithConfirmer(c Confirmer) Option {
	return func(r *Runner) { r.confirmer = c }
}

// WithSeed pre-populates outputs, e.g. a contract address from an earlier run.
func WithSeed(k Key, v any) Option {
	return func(r *Runner) {
		r.outputs.Set(k, v)
		r.seeded = append(r.seeded, k)
	}
}

// NewRunner creates a runner over env.
func NewRunner(cfg Config, env *Env, log zerolog.Logger, opts ...Option) *Runner {
	if cfg.Policy == "" {
		cfg.Policy = PolicyFailFast
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	r := &Runner{
		cfg:     cfg,
		env:     env,
		log:     log.With().Str("component", "scenario-runner").Logger(),
		outputs: NewOutputs(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Outputs exposes what scenarios produced so far.
func (r *Runner) Outputs() *Outputs { return r.outputs }

// Validate checks scenarios against the runner's seeds and node count.
func (r *Runner) Validate(scenarios []Scenario) error {
	return ValidateOrder(scenarios, r.env.Endpoints.Len(), r.seeded...)
}

// Run validates the declaration order, then runs each scenario in turn. The
// returned error is nil only if every scenario passed.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (Report, error) {
	report := Report{RunID: uuid.NewString(), Policy: r.cfg.Policy, Started: r.now()}
	if err := r.Validate(scenarios); err != nil {
		report.Finished = r.now()
		return report, err
	}

	log := r.log.With().Str("run_id", report.RunID).Logger()
	log.Info().
		Int("scenarios", len(scenarios)).
		Str("policy", string(r.cfg.Policy)).
		Int("retries", r.cfg.Retries).
		Msg("starting run")

	var (
		stopped  error
		curGroup = "\x00"
	)
	for i, s := range scenarios {
		if stopped == nil && ctx.Err() != nil {
			stopped = ctx.Err()
		}
		if stopped == nil && r.confirmer != nil && s.Group != curGroup {
			curGroup = s.Group
			ok, err := r.confirmer.Confirm(ctx, s.Group, groupNames(scenarios[i:], s.Group))
			switch {
			case err != nil:
				stopped = err
			case !ok:
				stopped = ErrAborted
			}
		}
		if stopped != nil {
			report.Records = append(report.Records, r.skipped(s, stopped.Error()))
			continue
		}

		if keys := missing(s, r.outputs); len(keys) > 0 {
			rec := r.unmetInputs(s, keys)
			report.Records = append(report.Records, rec)
			r.metrics.record(rec)
			if r.cfg.Policy == PolicyFailFast && !rec.Passed {
				stopped = rec.Err
			}
			continue
		}

		rec := r.runScenario(ctx, log, s)
		report.Records = append(report.Records, rec)
		r.metrics.record(rec)

		if !rec.Passed && r.cfg.Policy == PolicyFailFast {
			log.Error().Str("scenario", s.Name).Err(rec.Err).Msg("stopping run at first failure")
			stopped = rec.Err
		}
	}

	report.Finished = r.now()
	r.metrics.summary(report)
	log.Info().
		Int("passed", report.Passed()).
		Int("failed", report.Failed()).
		Int("skipped", report.Skipped()).
		Dur("elapsed", report.Finished.Sub(report.Started)).
		Msg("run finished")

	if err := report.Err(); err != nil {
		return report, err
	}
	if stopped != nil {
		return report, stopped
	}
	return report, nil
}

func (r *Runner) unmetInputs(s Scenario, keys []Key) Record {
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	if r.cfg.Policy == PolicySkipDependents {
		r.log.Warn().Str("scenario", s.Name).Strs("missing", names).Msg("skipping scenario with unmet inputs")
		return r.skipped(s, "missing inputs: "+strings.Join(names, ", "))
	}
	err := errs.Newf(errs.KindMissingInput, "scenario", "%s needs %s", s.Name, strings.Join(names, ", "))
	rec := r.newRecord(s)
	rec.State = StateErrored
	rec.Err = err
	rec.Error = err.Error()
	return rec
}

func (r *Runner) skipped(s Scenario, why string) Record {
	rec := r.newRecord(s)
	rec.State = StateSkipped
	rec.Detail = why
	return rec
}

func (r *Runner) newRecord(s Scenario) Record {
	return Record{
		Name:     s.Name,
		Group:    s.Group,
		Node:     fmt.Sprintf("node%d", s.node()),
		State:    StatePending,
		Expected: s.expectation().String(),
	}
}

func (r *Runner) runScenario(ctx context.Context, log zerolog.Logger, s Scenario) Record {
	start := r.now()
	var rec Record
	for attempt := 1; attempt <= r.cfg.Retries+1; attempt++ {
		if attempt > 1 {
			log.Warn().Str("scenario", s.Name).Int("attempt", attempt).Msg("retrying scenario")
			if r.cfg.RetryDelay > 0 {
				select {
				case <-ctx.Done():
					rec.Err = errors.Join(rec.Err, ctx.Err())
					rec.Duration = r.now().Sub(start)
					return rec
				case <-time.After(r.cfg.RetryDelay):
				}
			}
		}
		rec = r.attempt(ctx, log, s)
		rec.Attempts = attempt
		if rec.Passed || ctx.Err() != nil {
			break
		}
	}
	rec.Duration = r.now().Sub(start)
	if rec.Err != nil {
		rec.Error = rec.Err.Error()
	}
	return rec
}

func (r *Runner) attempt(ctx context.Context, log zerolog.Logger, s Scenario) Record {
	rec := r.newRecord(s)
	want := s.expectation()
	scLog := log.With().Str("scenario", s.Name).Str("node", rec.Node).Logger()
	scLog.Info().Str("expect", want.String()).Msg("scenario started")

	fail := func(state State, err error) Record {
		rec.State = state
		rec.Err = err
		scLog.Error().Str("state", string(state)).Err(err).Msg("scenario failed")
		return rec
	}

	ep, err := r.env.Node(s.node())
	if err != nil {
		return fail(StateErrored, errs.New(errs.KindConfig, "scenario", s.Name).WithCause(err))
	}

	if s.Before != nil {
		if err := s.Before(ctx, r.env, r.outputs); err != nil {
			return fail(StateErrored, fmt.Errorf("scenario %s before hook: %w", s.Name, err))
		}
	}

	signed, err := r.prepare(s)
	if err != nil {
		return fail(StateErrored, err)
	}
	hash, err := tx.Hash(signed.Payload)
	if err != nil {
		return fail(StateErrored, errs.New(errs.KindMalformedCommand, "scenario", s.Name).WithCause(err))
	}
	rec.TxHash = hash.String()

	rec.State = StateSubmitted
	scLog.Debug().Str("tx", hash.Short()).Msg("submitted")
	res, err := r.env.Submitter.Submit(ctx, signed, ep)
	rec.Actual = res.Status
	rec.Detail = res.Detail
	if err != nil {
		state := StateErrored
		if errors.Is(err, errs.ErrTimeout) {
			state = StateTimedOut
		}
		return fail(state, fmt.Errorf("scenario %s: %w", s.Name, err))
	}

	rec.State = StateRejected
	if res.Status == ledger.StatusCommitted {
		rec.State = StateCommitted
	}

	if !want.Matches(res.Status) {
		return fail(rec.State, errs.Newf(errs.KindAssertionFailed, "scenario",
			"%s: expected %s, got %s", s.Name, want, res.Status).
			WithContext("tx", hash.Short()).
			WithContext("error_code", res.ErrorCode))
	}

	if s.After != nil {
		att := Attempt{Tx: signed, Result: res, Node: ep}
		if err := s.After(ctx, r.env, att, r.outputs); err != nil {
			if errs.KindOf(err) == errs.KindUnknown {
				err = errs.New(errs.KindAssertionFailed, "scenario", s.Name).WithCause(err)
			}
			return fail(rec.State, err)
		}
	}
	for _, k := range s.Provides {
		if !r.outputs.Has(k) {
			return fail(rec.State, errs.Newf(errs.KindMissingInput, "scenario", "%s did not provide %s", s.Name, k))
		}
	}

	rec.Passed = true
	scLog.Info().Str("state", string(rec.State)).Str("tx", hash.Short()).Msg("scenario passed")
	return rec
}

// prepare builds and signs the scenario's transaction, once per attempt.
func (r *Runner) prepare(s Scenario) (ledger.Transaction, error) {
	if s.Transaction != nil {
		return s.Transaction(r.outputs)
	}
	cmds, err := s.Commands(r.outputs)
	if err != nil {
		return ledger.Transaction{}, err
	}
	unsigned, err := tx.Build(cmds, r.env.Identity.AccountID, s.quorum())
	if err != nil {
		return ledger.Transaction{}, err
	}
	return tx.Sign(unsigned, r.env.Identity.Key)
}

func groupNames(rest []Scenario, group string) []string {
	var out []string
	for _, s := range rest {
		if s.Group != group {
			break
		}
		out = append(out, s.Name)
	}
	return out
}
