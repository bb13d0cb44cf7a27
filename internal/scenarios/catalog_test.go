package scenarios

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ledger-harness/x/devnode"
	"github.com/compose-network/ledger-harness/x/endpoint"
	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/scenario"
	"github.com/compose-network/ledger-harness/x/submit"
)

const admin = "admin@test"

func names(ss []scenario.Scenario) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Name
	}
	return out
}

func fixtures(t *testing.T, nodes int) Fixtures {
	t.Helper()
	f, err := DefaultFixtureConfig().Build(nodes)
	require.NoError(t, err)
	return f
}

func TestCatalog_OrderIsValid(t *testing.T) {
	t.Parallel()

	all := Catalog(fixtures(t, 3), admin, 3)
	require.NoError(t, scenario.ValidateOrder(all, 3))
	require.Equal(t, []string{
		"add_peer", "add_peer_duplicate", "remove_peer",
		"deploy_contract", "call_contract",
		"create_domain", "create_asset", "add_asset_quantity",
		"create_account@node1", "create_account@node2", "create_account@node3",
		"transfer_asset@node1", "transfer_asset@node2", "transfer_asset@node3",
	}, names(all))

	reversed := slices.Clone(all)
	slices.Reverse(reversed)
	require.ErrorIs(t, scenario.ValidateOrder(reversed, 3), errs.ErrInvalidOrder)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	all := Catalog(fixtures(t, 2), admin, 2)

	got, err := Select(all, DefaultEnabled)
	require.NoError(t, err)
	require.Equal(t, []string{"add_peer", "add_peer_duplicate", "remove_peer", "deploy_contract", "call_contract"}, names(got))

	got, err = Select(all, []string{"call_contract", "deploy_contract"})
	require.NoError(t, err)
	require.Equal(t, []string{"deploy_contract", "call_contract"}, names(got), "catalog order wins over config order")

	got, err = Select(all, []string{"create_account"})
	require.NoError(t, err)
	require.Equal(t, []string{"create_account@node1", "create_account@node2"}, names(got))

	_, err = Select(all, []string{"mint_everything"})
	require.Error(t, err)
}

func TestFixtureConfig_Build(t *testing.T) {
	t.Parallel()

	f := fixtures(t, 4)
	require.Len(t, f.UserKeys, 4)
	require.Equal(t, "coin#bank", f.AssetID())
	require.Equal(t, "user2@bank", f.UserAccount(2))
	require.Equal(t, int64(1000), f.MintAmount.Int64())

	bad := DefaultFixtureConfig()
	bad.MintAmount = "-5"
	_, err := bad.Build(1)
	require.Error(t, err)

	bad = DefaultFixtureConfig()
	bad.PeerPublicKey = "zz"
	_, err = bad.Build(1)
	require.Error(t, err)
}

func startDevnet(t *testing.T, nodes int) (*devnode.Network, *scenario.Env) {
	t.Helper()
	kp, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)
	id := keys.Identity{AccountID: admin, Key: kp}

	cfg := devnode.DefaultConfig()
	cfg.Nodes = nodes
	cfg.BasePort = 0
	cfg.BlockInterval = 20 * time.Millisecond
	cfg.APIEnabled = false

	net, err := devnode.Start(context.Background(), cfg, id, zerolog.Nop(), devnode.WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(net.Stop)

	reg, err := endpoint.NewRegistry(net.Endpoints()...)
	require.NoError(t, err)
	pool := ledger.NewPool()
	t.Cleanup(func() { _ = pool.Close() })

	return net, &scenario.Env{
		Identity:  id,
		Endpoints: reg,
		Dialer:    pool,
		Submitter: submit.New(submit.Config{Timeout: 5 * time.Second, PollInterval: 10 * time.Millisecond}, pool, zerolog.Nop()),
		Log:       zerolog.Nop(),
	}
}

func TestCatalog_EndToEndAgainstDevnet(t *testing.T) {
	t.Parallel()

	const nodes = 3
	net, env := startDevnet(t, nodes)
	all := Catalog(fixtures(t, nodes), admin, nodes)

	r := scenario.NewRunner(scenario.Config{}, env, zerolog.Nop())
	report, err := r.Run(context.Background(), all)
	require.NoError(t, err)
	require.Equal(t, len(all), report.Passed())

	dup, ok := report.Get("add_peer_duplicate")
	require.True(t, ok)
	require.NotEqual(t, ledger.StatusCommitted, dup.Actual)

	_, err = scenario.Get[[]byte](r.Outputs(), KeyPeerPublicKey)
	require.NoError(t, err)
	require.Len(t, net.Ledger().Peers(), nodes)

	assets, err := net.Ledger().AccountAssets("user3@bank")
	require.NoError(t, err)
	require.Equal(t, []ledger.AccountAsset{{AssetID: "coin#bank", Balance: "10.00"}}, assets)
}

func TestCatalog_OutOfOrderRunSubmitsNothing(t *testing.T) {
	t.Parallel()

	net, env := startDevnet(t, 1)
	all := Catalog(fixtures(t, 1), admin, 1)
	contracts, err := Select(all, []string{GroupContracts})
	require.NoError(t, err)
	slices.Reverse(contracts)

	r := scenario.NewRunner(scenario.Config{}, env, zerolog.Nop())
	_, err = r.Run(context.Background(), contracts)
	require.ErrorIs(t, err, errs.ErrInvalidOrder)
	require.Equal(t, uint64(1), net.Ledger().Height())
	require.Zero(t, net.Ledger().PendingCount())
}
