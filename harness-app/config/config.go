package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/compose-network/ledger-harness/internal/scenarios"
	"github.com/compose-network/ledger-harness/x/blocklog"
	"github.com/compose-network/ledger-harness/x/devnode"
	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/probe"
	"github.com/compose-network/ledger-harness/x/scenario"
	"github.com/compose-network/ledger-harness/x/submit"
)

// Config holds the complete harness configuration
type Config struct {
	Log      LogConfig               `mapstructure:"log"      yaml:"log"`
	Network  NetworkConfig           `mapstructure:"network"  yaml:"network"`
	Identity IdentityConfig          `mapstructure:"identity" yaml:"identity"`
	Submit   submit.Config           `mapstructure:"submit"   yaml:"submit"`
	Runner   RunnerConfig            `mapstructure:"runner"   yaml:"runner"`
	Fixtures scenarios.FixtureConfig `mapstructure:"fixtures" yaml:"fixtures"`
	Logs     LogsConfig              `mapstructure:"logs"     yaml:"logs"`
	Report   ReportConfig            `mapstructure:"report"   yaml:"report"`
	Metrics  MetricsConfig           `mapstructure:"metrics"  yaml:"metrics"`
	Devnet   DevnetConfig            `mapstructure:"devnet"   yaml:"devnet"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// NodeConfig is one ledger node's gRPC address.
type NodeConfig struct {
	Name    string `mapstructure:"name"    yaml:"name"`
	Address string `mapstructure:"address" yaml:"address"`
}

// NetworkConfig lists the cluster under test.
type NetworkConfig struct {
	Nodes        []NodeConfig  `mapstructure:"nodes"         yaml:"nodes"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout" env:"NETWORK_PROBE_TIMEOUT"`
	SkipProbe    bool          `mapstructure:"skip_probe"    yaml:"skip_probe"    env:"NETWORK_SKIP_PROBE"`
}

// IdentityConfig is the account the harness signs as. The private key is
// usually supplied through IDENTITY_PRIVATE_KEY.
type IdentityConfig struct {
	AccountID  string `mapstructure:"account_id"  yaml:"account_id"  env:"IDENTITY_ACCOUNT_ID"`
	Scheme     string `mapstructure:"scheme"      yaml:"scheme"      env:"IDENTITY_SCHEME"`
	PrivateKey string `mapstructure:"private_key" yaml:"private_key" env:"IDENTITY_PRIVATE_KEY"` //nolint: lll // secret
}

// RunnerConfig selects and drives the scenarios.
type RunnerConfig struct {
	scenario.Config `mapstructure:",squash" yaml:",inline"`

	Scenarios []string `mapstructure:"scenarios" yaml:"scenarios"`
	Quorum    int      `mapstructure:"quorum"    yaml:"quorum"`
	Step      bool     `mapstructure:"step"      yaml:"step"`
}

// LogsConfig controls the block log export after a run.
type LogsConfig struct {
	blocklog.Config `mapstructure:",squash" yaml:",inline"`

	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ReportConfig writes the run report when Path is set.
type ReportConfig struct {
	Path   string `mapstructure:"path"   yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig writes run metrics in textfile format when Textfile is set.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// DevnetConfig configures the in-process development network.
type DevnetConfig struct {
	devnode.Config `mapstructure:",squash" yaml:",inline"`

	// Embedded starts the devnet inside `run` and targets it instead of network.nodes.
	Embedded bool `mapstructure:"embedded" yaml:"embedded"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	nodes := make([]map[string]any, len(d.Network.Nodes))
	for i, n := range d.Network.Nodes {
		nodes[i] = map[string]any{"name": n.Name, "address": n.Address}
	}
	v.SetDefault("network.nodes", nodes)
	v.SetDefault("network.probe_timeout", d.Network.ProbeTimeout)
	v.SetDefault("network.skip_probe", false)

	v.SetDefault("identity.account_id", d.Identity.AccountID)
	v.SetDefault("identity.scheme", d.Identity.Scheme)
	v.SetDefault("identity.private_key", "")

	v.SetDefault("submit.timeout", d.Submit.Timeout)
	v.SetDefault("submit.poll_interval", d.Submit.PollInterval)

	v.SetDefault("runner.policy", string(d.Runner.Policy))
	v.SetDefault("runner.retries", 0)
	v.SetDefault("runner.retry_delay", d.Runner.RetryDelay)
	v.SetDefault("runner.scenarios", d.Runner.Scenarios)
	v.SetDefault("runner.quorum", d.Runner.Quorum)
	v.SetDefault("runner.step", false)

	f := d.Fixtures
	v.SetDefault("fixtures.peer_address", f.PeerAddress)
	v.SetDefault("fixtures.peer_public_key", f.PeerPublicKey)
	v.SetDefault("fixtures.bytecode", "")
	v.SetDefault("fixtures.mint_amount", f.MintAmount)
	v.SetDefault("fixtures.domain", f.Domain)
	v.SetDefault("fixtures.asset_name", f.AssetName)
	v.SetDefault("fixtures.precision", f.Precision)
	v.SetDefault("fixtures.quantity", f.Quantity)
	v.SetDefault("fixtures.transfer_amount", f.TransferAmount)
	v.SetDefault("fixtures.user_key_scheme", f.UserKeyScheme)

	v.SetDefault("logs.enabled", true)
	v.SetDefault("logs.dir", d.Logs.Dir)
	v.SetDefault("logs.format", d.Logs.Format)
	v.SetDefault("logs.page_size", d.Logs.PageSize)

	v.SetDefault("report.path", "")
	v.SetDefault("report.format", "json")

	v.SetDefault("metrics.textfile", "")

	dn := d.Devnet
	v.SetDefault("devnet.embedded", false)
	v.SetDefault("devnet.nodes", dn.Nodes)
	v.SetDefault("devnet.host", dn.Host)
	v.SetDefault("devnet.base_port", dn.BasePort)
	v.SetDefault("devnet.block_interval", dn.BlockInterval)
	v.SetDefault("devnet.request_timeout", dn.RequestTimeout)
	v.SetDefault("devnet.api_enabled", dn.APIEnabled)
	v.SetDefault("devnet.api.listen_addr", dn.API.ListenAddr)
	v.SetDefault("devnet.api.read_header_timeout", dn.API.ReadHeaderTimeout)
	v.SetDefault("devnet.api.read_timeout", dn.API.ReadTimeout)
	v.SetDefault("devnet.api.write_timeout", dn.API.WriteTimeout)
	v.SetDefault("devnet.api.idle_timeout", dn.API.IdleTimeout)
	v.SetDefault("devnet.api.max_header_bytes", dn.API.MaxHeaderBytes)
	v.SetDefault("devnet.api.cors", dn.API.CORS)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateNetwork(); err != nil {
		return err
	}
	if err := c.validateIdentity(); err != nil {
		return err
	}
	if err := c.validateSubmit(); err != nil {
		return err
	}
	if err := c.validateRunner(); err != nil {
		return err
	}
	if err := c.validateOutputs(); err != nil {
		return err
	}
	if err := c.Devnet.Validate(); err != nil {
		return fmt.Errorf("devnet: %w", err)
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if len(c.Network.Nodes) == 0 && !c.Devnet.Embedded {
		return errors.New("network.nodes must list at least one node")
	}
	if _, err := c.Endpoints(); err != nil {
		return err
	}
	if c.Network.ProbeTimeout <= 0 {
		return errors.New("network.probe_timeout must be positive")
	}
	return nil
}

func (c *Config) validateIdentity() error {
	if !keys.ValidAccountID(c.Identity.AccountID) {
		return fmt.Errorf("identity.account_id %q must look like name@domain", c.Identity.AccountID)
	}
	if _, err := keys.ParseScheme(c.Identity.Scheme); err != nil {
		return fmt.Errorf("identity.scheme: %w", err)
	}
	return nil
}

func (c *Config) validateSubmit() error {
	if c.Submit.Timeout <= 0 {
		return errors.New("submit.timeout must be positive")
	}
	if c.Submit.PollInterval <= 0 || c.Submit.PollInterval > c.Submit.Timeout {
		return fmt.Errorf("submit.poll_interval must be positive and below submit.timeout, got %s", c.Submit.PollInterval)
	}
	return nil
}

func (c *Config) validateRunner() error {
	p, err := scenario.ParsePolicy(string(c.Runner.Policy))
	if err != nil {
		return fmt.Errorf("runner.policy: %w", err)
	}
	c.Runner.Policy = p
	if c.Runner.Retries < 0 {
		return fmt.Errorf("runner.retries must not be negative, got %d", c.Runner.Retries)
	}
	if c.Runner.Quorum < 1 {
		return errors.New("runner.quorum must be at least 1")
	}
	if len(c.Runner.Scenarios) == 0 {
		return errors.New("runner.scenarios must enable at least one scenario or group")
	}
	return nil
}

func (c *Config) validateOutputs() error {
	if c.Logs.Enabled {
		if err := c.Logs.Config.Validate(); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Report.Format) {
	case "json", "yaml":
	default:
		return fmt.Errorf("report.format must be json or yaml, got %q", c.Report.Format)
	}
	return nil
}

// Endpoints parses network.nodes into a registry. Unnamed nodes are called nodeN.
func (c *Config) Endpoints() (*endpoint.Registry, error) {
	eps := make([]endpoint.Endpoint, 0, len(c.Network.Nodes))
	for i, n := range c.Network.Nodes {
		name := n.Name
		if name == "" {
			name = fmt.Sprintf("node%d", i+1)
		}
		ep, err := endpoint.Parse(name, n.Address)
		if err != nil {
			return nil, fmt.Errorf("network.nodes[%d]: %w", i, err)
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return &endpoint.Registry{}, nil
	}
	return endpoint.NewRegistry(eps...)
}

// LoadIdentity resolves the signing identity. It fails with InvalidKey when
// no private key is configured.
func (c *Config) LoadIdentity() (keys.Identity, error) {
	scheme, err := keys.ParseScheme(c.Identity.Scheme)
	if err != nil {
		return keys.Identity{}, err
	}
	if strings.TrimSpace(c.Identity.PrivateKey) == "" {
		return keys.Identity{}, errs.New(errs.KindInvalidKey, "identity", "identity.private_key is not set (IDENTITY_PRIVATE_KEY)")
	}
	return keys.NewIdentity(c.Identity.AccountID, scheme, c.Identity.PrivateKey)
}

// Default returns default configuration
func Default() *Config {
	nodes := make([]NodeConfig, 5)
	for i := range nodes {
		nodes[i] = NodeConfig{Name: fmt.Sprintf("node%d", i+1), Address: fmt.Sprintf("127.0.0.1:%d", 50051+i)}
	}
	return &Config{
		Log: LogConfig{Level: "info"},
		Network: NetworkConfig{
			Nodes:        nodes,
			ProbeTimeout: probe.DefaultTimeout,
		},
		Identity: IdentityConfig{
			AccountID: "admin@test",
			Scheme:    string(keys.Ed25519),
		},
		Submit: submit.DefaultConfig(),
		Runner: RunnerConfig{
			Config:    scenario.Config{Policy: scenario.PolicyFailFast, RetryDelay: time.Second},
			Scenarios: scenarios.DefaultEnabled,
			Quorum:    1,
		},
		Fixtures: scenarios.DefaultFixtureConfig(),
		Logs:     LogsConfig{Config: blocklog.DefaultConfig(), Enabled: true},
		Report:   ReportConfig{Format: "json"},
		Devnet:   DevnetConfig{Config: devnode.DefaultConfig()},
	}
}
