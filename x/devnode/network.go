package devnode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/ledger-harness/metrics"
	"github.com/compose-network/ledger-harness/server/api"
	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
)

// Config describes an in-process development network.
type Config struct {
	Nodes          int           `mapstructure:"nodes"           yaml:"nodes"`
	Host           string        `mapstructure:"host"            yaml:"host"`
	BasePort       int           `mapstructure:"base_port"       yaml:"base_port"`
	BlockInterval  time.Duration `mapstructure:"block_interval"  yaml:"block_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	APIEnabled     bool          `mapstructure:"api_enabled"     yaml:"api_enabled"`
	API            api.Config    `mapstructure:"api"             yaml:"api"`
}

// DefaultConfig is a five node network on 127.0.0.1:50051.. with one block
// every 200ms.
func DefaultConfig() Config {
	return Config{
		Nodes:          5,
		Host:           "127.0.0.1",
		BasePort:       50051,
		BlockInterval:  200 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		APIEnabled:     true,
		API:            api.DefaultConfig(),
	}
}

// Validate checks the network shape.
func (c Config) Validate() error {
	if c.Nodes < 1 {
		return fmt.Errorf("nodes must be at least 1, got %d", c.Nodes)
	}
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.BasePort < 0 || c.BasePort+c.Nodes-1 > 65535 {
		return fmt.Errorf("base_port %d leaves no room for %d nodes", c.BasePort, c.Nodes)
	}
	if c.BlockInterval <= 0 {
		return errors.New("block_interval must be positive")
	}
	if c.APIEnabled {
		return c.API.Validate()
	}
	return nil
}

// Network is a set of gRPC listeners sharing one Ledger, plus an optional
// inspection API.
type Network struct {
	cfg       Config
	ledger    *Ledger
	listeners []*Listener
	endpoints []endpoint.Endpoint
	api       *api.Server
	log       zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NetworkOption configures Start.
type NetworkOption func(*networkOptions)

type networkOptions struct {
	registry *prometheus.Registry
	clock    func() time.Time
}

// WithRegistry registers devnode metrics in reg and serves it on /metrics.
func WithRegistry(reg *prometheus.Registry) NetworkOption {
	return func(o *networkOptions) { o.registry = reg }
}

// WithNetworkClock replaces time.Now in the ledger.
func WithNetworkClock(now func() time.Time) NetworkOption {
	return func(o *networkOptions) { o.clock = now }
}

// Start binds every node, seeds genesis with one generated peer key per node
// and starts the block producer. admin is the account allowed to transact.
func Start(ctx context.Context, cfg Config, admin keys.Identity, log zerolog.Logger, opts ...NetworkOption) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := networkOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if o.registry != nil {
		reg, gatherer = o.registry, o.registry
	}
	m := NewMetrics(metrics.NewComponentRegistryWith(reg, "devnet", "node"))

	log = log.With().Str("component", "devnet").Logger()
	lis := make([]net.Listener, 0, cfg.Nodes)
	closeAll := func() {
		for _, l := range lis {
			_ = l.Close()
		}
	}

	genesis := Genesis{
		AdminAccountID: admin.AccountID,
		AdminPublicKey: admin.Key.Public,
	}
	for i := range cfg.Nodes {
		port := 0
		if cfg.BasePort > 0 {
			port = cfg.BasePort + i
		}
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		lis = append(lis, l)

		peerKey, err := keys.Generate(keys.Ed25519)
		if err != nil {
			closeAll()
			return nil, err
		}
		genesis.Peers = append(genesis.Peers, ledger.Peer{Address: l.Addr().String(), PublicKey: peerKey.Public})
	}

	ledgerOpts := []LedgerOption{WithLedgerMetrics(m)}
	if o.clock != nil {
		ledgerOpts = append(ledgerOpts, WithClock(o.clock))
	}
	lg, err := NewLedger(genesis, log, ledgerOpts...)
	if err != nil {
		closeAll()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	n := &Network{cfg: cfg, ledger: lg, log: log, cancel: cancel}

	for i, l := range lis {
		name := fmt.Sprintf("node%d", i+1)
		n.listeners = append(n.listeners, ServeListener(l, NewServer(name, lg, log), m, cfg.RequestTimeout))

		tcp := l.Addr().(*net.TCPAddr)
		ep, err := endpoint.New(name, cfg.Host, tcp.Port)
		if err != nil {
			n.Stop()
			return nil, err
		}
		n.endpoints = append(n.endpoints, ep)
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		lg.Run(ctx, cfg.BlockInterval)
	}()

	if cfg.APIEnabled {
		n.api = api.NewServer(cfg.API, log)
		registerRoutes(n.api, n, gatherer)
		if err := n.api.Listen(ctx); err != nil {
			n.Stop()
			return nil, fmt.Errorf("listen api: %w", err)
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.api.Start(ctx); err != nil {
				log.Error().Err(err).Msg("inspection api stopped")
			}
		}()
	}

	log.Info().Int("nodes", cfg.Nodes).Dur("block_interval", cfg.BlockInterval).Msg("devnet started")
	return n, nil
}

// Ledger returns the shared ledger.
func (n *Network) Ledger() *Ledger { return n.ledger }

// Endpoints lists the node endpoints in node order.
func (n *Network) Endpoints() []endpoint.Endpoint {
	return append([]endpoint.Endpoint(nil), n.endpoints...)
}

// APIAddr is the inspection API address, or "" when disabled.
func (n *Network) APIAddr() string {
	if n.api == nil {
		return ""
	}
	return n.api.Addr()
}

// Stop shuts every listener and the block producer down.
func (n *Network) Stop() {
	n.cancel()
	for _, l := range n.listeners {
		l.Stop()
	}
	n.wg.Wait()
	n.log.Info().Msg("devnet stopped")
}
