package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/scenario"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Network.Nodes, 5)
	require.Equal(t, "127.0.0.1:50055", cfg.Network.Nodes[4].Address)
	require.Equal(t, 5*time.Second, cfg.Network.ProbeTimeout)
	require.Equal(t, "admin@test", cfg.Identity.AccountID)
	require.Equal(t, 30*time.Second, cfg.Submit.Timeout)
	require.Equal(t, scenario.PolicyFailFast, cfg.Runner.Policy)
	require.Equal(t, []string{"peers", "contracts"}, cfg.Runner.Scenarios)
	require.Equal(t, "network_testing_logs", cfg.Logs.Dir)
	require.True(t, cfg.Logs.Enabled)
	require.Equal(t, "bank", cfg.Fixtures.Domain)
	require.Equal(t, 50051, cfg.Devnet.BasePort)
}

func TestLoad_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
network:
  nodes:
    - name: alpha
      address: 10.0.0.1:50051
    - address: 10.0.0.2:50051
  probe_timeout: 2s
submit:
  timeout: 10s
  poll_interval: 100ms
runner:
  policy: skip-dependents
  retries: 2
  retry_delay: 500ms
  scenarios: [contracts, assets]
logs:
  format: yaml
  dir: out
report:
  path: report.yaml
  format: yaml
`))
	require.NoError(t, err)

	reg, err := cfg.Endpoints()
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())
	second, err := reg.At(1)
	require.NoError(t, err)
	require.Equal(t, "node2", second.Name)

	require.Equal(t, scenario.PolicySkipDependents, cfg.Runner.Policy)
	require.Equal(t, 2, cfg.Runner.Retries)
	require.Equal(t, 500*time.Millisecond, cfg.Runner.RetryDelay)
	require.Equal(t, "yaml", cfg.Logs.Format)
	require.Equal(t, "out", cfg.Logs.Dir)
	require.Equal(t, 100*time.Millisecond, cfg.Submit.PollInterval)
}

func TestLoad_EnvPrivateKey(t *testing.T) {
	t.Setenv("IDENTITY_PRIVATE_KEY", "9d8d8d8b2f7b13e1f9a8f0c4e2b7d0a6c3f5e1d2b4a6c8e0f1a3b5c7d9e1f3a5")

	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)

	id, err := cfg.LoadIdentity()
	require.NoError(t, err)
	require.Equal(t, "admin@test", id.AccountID)
	require.Len(t, id.Key.Public, 32)
}

func TestLoadIdentity_MissingKey(t *testing.T) {
	t.Parallel()

	cfg := Default()
	_, err := cfg.LoadIdentity()
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no nodes", func(c *Config) { c.Network.Nodes = nil }},
		{"bad address", func(c *Config) { c.Network.Nodes[0].Address = "nohost" }},
		{"port out of range", func(c *Config) { c.Network.Nodes[0].Address = "127.0.0.1:70000" }},
		{"duplicate node", func(c *Config) { c.Network.Nodes[1] = c.Network.Nodes[0] }},
		{"bad account", func(c *Config) { c.Identity.AccountID = "admin" }},
		{"bad scheme", func(c *Config) { c.Identity.Scheme = "rsa" }},
		{"poll above timeout", func(c *Config) { c.Submit.PollInterval = time.Hour }},
		{"bad policy", func(c *Config) { c.Runner.Policy = "yolo" }},
		{"negative retries", func(c *Config) { c.Runner.Retries = -1 }},
		{"zero quorum", func(c *Config) { c.Runner.Quorum = 0 }},
		{"nothing enabled", func(c *Config) { c.Runner.Scenarios = nil }},
		{"bad log format", func(c *Config) { c.Logs.Format = "xml" }},
		{"bad report format", func(c *Config) { c.Report.Format = "csv" }},
		{"bad devnet", func(c *Config) { c.Devnet.Nodes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, Default().Validate())

	embedded := Default()
	embedded.Network.Nodes = nil
	embedded.Devnet.Embedded = true
	require.NoError(t, embedded.Validate())
}
