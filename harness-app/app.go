package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/ledger-harness/harness-app/config"
	"github.com/compose-network/ledger-harness/internal/scenarios"
	"github.com/compose-network/ledger-harness/metrics"
	"github.com/compose-network/ledger-harness/x/blocklog"
	"github.com/compose-network/ledger-harness/x/devnode"
	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/probe"
	"github.com/compose-network/ledger-harness/x/scenario"
	"github.com/compose-network/ledger-harness/x/submit"
)

// App wires the harness components for one CLI invocation.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	pool     *ledger.Pool

	endpoints *endpoint.Registry
	identity  *keys.Identity
	devnet    *devnode.Network

	shutdownFns []func() error
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:      cfg,
		log:      log.With().Str("component", "app").Logger(),
		registry: prometheus.NewRegistry(),
		pool:     ledger.NewPool(),
	}
	app.registry.MustRegister(collectors.NewGoCollector())
	app.shutdownFns = append(app.shutdownFns, app.pool.Close)

	if err := app.initialize(ctx); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize resolves the network under test, starting the embedded devnet
// when configured.
func (a *App) initialize(ctx context.Context) error {
	if !a.cfg.Devnet.Embedded {
		reg, err := a.cfg.Endpoints()
		if err != nil {
			return err
		}
		a.endpoints = reg
		return nil
	}

	id, err := a.loadIdentity(true)
	if err != nil {
		return err
	}
	net, err := devnode.Start(ctx, a.cfg.Devnet.Config, id, a.log, devnode.WithRegistry(a.registry))
	if err != nil {
		return fmt.Errorf("start embedded devnet: %w", err)
	}
	a.devnet = net
	a.shutdownFns = append(a.shutdownFns, func() error { net.Stop(); return nil })

	reg, err := endpoint.NewRegistry(net.Endpoints()...)
	if err != nil {
		return err
	}
	a.endpoints = reg
	return nil
}

// loadIdentity returns the configured identity. With ephemeral set, a missing
// private key yields a freshly generated one (used for devnets only).
func (a *App) loadIdentity(ephemeral bool) (keys.Identity, error) {
	if a.identity != nil {
		return *a.identity, nil
	}
	id, err := a.cfg.LoadIdentity()
	if err != nil && ephemeral && strings.TrimSpace(a.cfg.Identity.PrivateKey) == "" {
		scheme, serr := keys.ParseScheme(a.cfg.Identity.Scheme)
		if serr != nil {
			return keys.Identity{}, serr
		}
		kp, gerr := keys.Generate(scheme)
		if gerr != nil {
			return keys.Identity{}, gerr
		}
		id, err = keys.Identity{AccountID: a.cfg.Identity.AccountID, Key: kp}, nil
		a.log.Warn().
			Str("account", id.AccountID).
			Str("public_key", kp.PublicHex()).
			Msg("No identity.private_key configured, generated an ephemeral admin key; use `keygen` and IDENTITY_PRIVATE_KEY to pin one")
	}
	if err != nil {
		return keys.Identity{}, err
	}
	a.identity = &id
	return id, nil
}

// Probe checks every configured node.
func (a *App) Probe(ctx context.Context) probe.Report {
	m := probe.NewMetrics(metrics.NewComponentRegistryWith(a.registry, "harness", "probe"))
	p := probe.New(a.cfg.Network.ProbeTimeout, a.log, probe.WithMetrics(m))
	return p.Probe(ctx, a.endpoints.All())
}

// RunOptions are the per-invocation switches of `run`.
type RunOptions struct {
	Confirmer scenario.Confirmer
}

// Run probes the network, executes the enabled scenarios and exports block
// logs. Logs, report and metrics are written even when scenarios fail.
func (a *App) Run(ctx context.Context, opts RunOptions) (scenario.Report, error) {
	if !a.cfg.Network.SkipProbe {
		if err := a.Probe(ctx).Err(); err != nil {
			return scenario.Report{}, err
		}
	}

	id, err := a.loadIdentity(a.devnet != nil)
	if err != nil {
		return scenario.Report{}, err
	}

	selected, err := a.scenarios(id)
	if err != nil {
		return scenario.Report{}, err
	}

	env := &scenario.Env{
		Identity:  id,
		Endpoints: a.endpoints,
		Dialer:    a.pool,
		Submitter: submit.New(a.cfg.Submit, a.pool, a.log,
			submit.WithMetrics(submit.NewMetrics(metrics.NewComponentRegistryWith(a.registry, "harness", "submit")))),
		Log: a.log,
	}
	runnerOpts := []scenario.Option{
		scenario.WithMetrics(scenario.NewMetrics(metrics.NewComponentRegistryWith(a.registry, "harness", "runner"))),
	}
	if opts.Confirmer != nil {
		runnerOpts = append(runnerOpts, scenario.WithConfirmer(opts.Confirmer))
	}
	runner := scenario.NewRunner(a.cfg.Runner.Config, env, a.log, runnerOpts...)

	report, runErr := runner.Run(ctx, selected)

	var outErrs []error
	if a.cfg.Logs.Enabled && !errors.Is(runErr, context.Canceled) {
		if _, err := a.ExportLogs(context.WithoutCancel(ctx)); err != nil {
			outErrs = append(outErrs, err)
		}
	}
	if err := a.writeReport(report); err != nil {
		outErrs = append(outErrs, err)
	}
	if err := a.writeMetrics(); err != nil {
		outErrs = append(outErrs, err)
	}
	if err := errors.Join(outErrs...); err != nil {
		a.log.Error().Err(err).Msg("Writing run artifacts failed")
	}
	return report, runErr
}

func (a *App) scenarios(id keys.Identity) ([]scenario.Scenario, error) {
	nodes := a.endpoints.Len()
	fixtures, err := a.cfg.Fixtures.Build(nodes)
	if err != nil {
		return nil, err
	}
	selected, err := scenarios.Select(scenarios.Catalog(fixtures, id.AccountID, nodes), a.cfg.Runner.Scenarios)
	if err != nil {
		return nil, err
	}
	for i := range selected {
		if selected[i].Quorum == 0 {
			selected[i].Quorum = a.cfg.Runner.Quorum
		}
	}
	return selected, nil
}

// ExportLogs writes every node's block history under logs.dir.
func (a *App) ExportLogs(ctx context.Context) ([]blocklog.File, error) {
	exp, err := blocklog.New(a.cfg.Logs.Config, a.pool, a.log)
	if err != nil {
		return nil, err
	}
	return exp.Export(ctx, a.endpoints.All())
}

func (a *App) writeReport(r scenario.Report) error {
	if a.cfg.Report.Path == "" {
		return nil
	}
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(a.cfg.Report.Format, "yaml") {
		data, err = yaml.Marshal(r)
	} else {
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(a.cfg.Report.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(a.cfg.Report.Path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	a.log.Info().Str("path", a.cfg.Report.Path).Msg("Run report written")
	return nil
}

func (a *App) writeMetrics() error {
	if a.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Devnet returns the embedded network, if one was started.
func (a *App) Devnet() *devnode.Network { return a.devnet }

// Close releases connections and stops the embedded devnet.
func (a *App) Close() error {
	var errs []error
	for i := len(a.shutdownFns) - 1; i >= 0; i-- {
		if err := a.shutdownFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
