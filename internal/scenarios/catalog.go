package scenarios

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/ledger-harness/x/contract"
	"github.com/compose-network/ledger-harness/x/ledger"
	"github.com/compose-network/ledger-harness/x/scenario"
)

// Scenario groups.
const (
	GroupPeers     = "peers"
	GroupContracts = "contracts"
	GroupAssets    = "assets"
)

// Output keys.
const (
	KeyPeerPublicKey   scenario.Key = "peer.public_key"
	KeyAddPeerTx       scenario.Key = "peer.add_tx"
	KeyContractAddress scenario.Key = "contract.address"
	KeyBalanceBefore   scenario.Key = "contract.balance_before"
	KeyDomain          scenario.Key = "asset.domain"
	KeyAssetID         scenario.Key = "asset.id"
)

// KeyAccount is the account created through node n.
func KeyAccount(n int) scenario.Key {
	return scenario.Key(fmt.Sprintf("account.node%d", n))
}

// DefaultEnabled is the set a plain run executes.
var DefaultEnabled = []string{GroupPeers, GroupContracts}

// Catalog returns every known scenario in run order for a network of nodes.
// creator is the account that signs and, for engine calls, acts as caller.
func Catalog(f Fixtures, creator string, nodes int) []scenario.Scenario {
	coin := contract.MustCoin()
	out := []scenario.Scenario{
		addPeer(f),
		addPeerDuplicate(),
		removePeer(),
		deployContract(f, creator, coin),
		callContract(f, creator, coin),
		createDomain(f),
		createAsset(f),
		addAssetQuantity(f),
	}
	for n := 1; n <= nodes; n++ {
		out = append(out, createAccount(f, n))
	}
	for n := 1; n <= nodes; n++ {
		out = append(out, transferAsset(f, creator, n))
	}
	return out
}

// Select keeps the scenarios named by enabled, in catalog order. An entry
// matches a group, a scenario name, or a per-node scenario base name
// ("create_account" matches create_account@node2).
func Select(all []scenario.Scenario, enabled []string) ([]scenario.Scenario, error) {
	want := make(map[string]bool, len(enabled))
	for _, e := range enabled {
		want[strings.TrimSpace(e)] = false
	}
	var out []scenario.Scenario
	for _, s := range all {
		base, _, _ := strings.Cut(s.Name, "@")
		for _, key := range []string{s.Group, s.Name, base} {
			if _, ok := want[key]; ok {
				want[key] = true
				out = append(out, s)
				break
			}
		}
	}
	for name, matched := range want {
		if !matched {
			return nil, fmt.Errorf("unknown scenario or group %q", name)
		}
	}
	return out, nil
}

func addPeer(f Fixtures) scenario.Scenario {
	return scenario.Scenario{
		Name:     "add_peer",
		Group:    GroupPeers,
		Provides: []scenario.Key{KeyPeerPublicKey, KeyAddPeerTx},
		Commands: func(*scenario.Outputs) ([]ledger.Command, error) {
			return []ledger.Command{ledger.NewAddPeer(f.Peer.Address, f.Peer.PublicKey)}, nil
		},
		After: func(ctx context.Context, env *scenario.Env, att scenario.Attempt, out *scenario.Outputs) error {
			found, err := hasPeer(ctx, env, 1, f.Peer.PublicKey)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("peer %s missing from the peer list after commit", f.Peer.Address)
			}
			out.Set(KeyPeerPublicKey, []byte(f.Peer.PublicKey))
			out.Set(KeyAddPeerTx, att.Tx.Clone())
			return nil
		},
	}
}

func addPeerDuplicate() scenario.Scenario {
	return scenario.Scenario{
		Name:     "add_peer_duplicate",
		Group:    GroupPeers,
		Requires: []scenario.Key{KeyAddPeerTx},
		Expect:   scenario.ExpectRejected(),
		Transaction: func(in *scenario.Outputs) (ledger.Transaction, error) {
			return scenario.Get[ledger.Transaction](in, KeyAddPeerTx)
		},
	}
}

func removePeer() scenario.Scenario {
	return scenario.Scenario{
		Name:     "remove_peer",
		Group:    GroupPeers,
		Requires: []scenario.Key{KeyPeerPublicKey},
		Commands: func(in *scenario.Outputs) ([]ledger.Command, error) {
			pub, err := scenario.Get[[]byte](in, KeyPeerPublicKey)
			if err != nil {
				return nil, err
			}
			return []ledger.Command{ledger.NewRemovePeer(pub)}, nil
		},
		After: func(ctx context.Context, env *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			pub, err := scenario.Get[[]byte](out, KeyPeerPublicKey)
			if err != nil {
				return err
			}
			found, err := hasPeer(ctx, env, 1, pub)
			if err != nil {
				return err
			}
			if found {
				return fmt.Errorf("peer %x still registered after removal", pub)
			}
			return nil
		},
	}
}

func deployContract(f Fixtures, creator string, coin *contract.Coin) scenario.Scenario {
	return scenario.Scenario{
		Name:     "deploy_contract",
		Group:    GroupContracts,
		Provides: []scenario.Key{KeyContractAddress},
		Commands: func(*scenario.Outputs) ([]ledger.Command, error) {
			return []ledger.Command{ledger.NewCallEngine(creator, nil, f.Bytecode)}, nil
		},
		After: func(ctx context.Context, env *scenario.Env, att scenario.Attempt, out *scenario.Outputs) error {
			client, err := env.Query(1)
			if err != nil {
				return err
			}
			receipt, err := client.EngineReceipt(ctx, att.Result.TxHash)
			if err != nil {
				return fmt.Errorf("engine receipt for %s: %w", att.Result.TxHash.Short(), err)
			}
			if receipt.ContractAddress == nil {
				return fmt.Errorf("deployment receipt carries no contract address")
			}
			minter, err := coinMinter(ctx, env, coin, *receipt.ContractAddress)
			if err != nil {
				return err
			}
			if want := contract.CallerAddress(creator); minter != want {
				return fmt.Errorf("contract minter is %s, want %s", minter.Hex(), want.Hex())
			}
			env.Log.Info().Str("contract", receipt.ContractAddress.Hex()).Msg("contract deployed")
			out.Set(KeyContractAddress, *receipt.ContractAddress)
			return nil
		},
	}
}

func callContract(f Fixtures, creator string, coin *contract.Coin) scenario.Scenario {
	return scenario.Scenario{
		Name:     "call_contract",
		Group:    GroupContracts,
		Requires: []scenario.Key{KeyContractAddress},
		Commands: func(in *scenario.Outputs) ([]ledger.Command, error) {
			addr, err := scenario.Get[common.Address](in, KeyContractAddress)
			if err != nil {
				return nil, err
			}
			input, err := coin.PackMint(contract.CallerAddress(creator), f.MintAmount)
			if err != nil {
				return nil, err
			}
			return []ledger.Command{ledger.NewCallEngine(creator, &addr, input)}, nil
		},
		Before: func(ctx context.Context, env *scenario.Env, out *scenario.Outputs) error {
			addr, err := scenario.Get[common.Address](out, KeyContractAddress)
			if err != nil {
				return err
			}
			bal, err := coinBalance(ctx, env, coin, addr)
			if err != nil {
				return err
			}
			out.Set(KeyBalanceBefore, bal)
			return nil
		},
		After: func(ctx context.Context, env *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			addr, err := scenario.Get[common.Address](out, KeyContractAddress)
			if err != nil {
				return err
			}
			before, err := scenario.Get[*big.Int](out, KeyBalanceBefore)
			if err != nil {
				return err
			}
			after, err := coinBalance(ctx, env, coin, addr)
			if err != nil {
				return err
			}
			want := new(big.Int).Add(before, f.MintAmount)
			if after.Cmp(want) != 0 {
				return fmt.Errorf("balance after mint is %s, want %s", after, want)
			}
			return nil
		},
	}
}

func createDomain(f Fixtures) scenario.Scenario {
	return scenario.Scenario{
		Name:     "create_domain",
		Group:    GroupAssets,
		Provides: []scenario.Key{KeyDomain},
		Commands: func(*scenario.Outputs) ([]ledger.Command, error) {
			return []ledger.Command{ledger.NewCreateDomain(f.Domain, "user")}, nil
		},
		After: func(_ context.Context, _ *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			out.Set(KeyDomain, f.Domain)
			return nil
		},
	}
}

func createAsset(f Fixtures) scenario.Scenario {
	return scenario.Scenario{
		Name:     "create_asset",
		Group:    GroupAssets,
		Requires: []scenario.Key{KeyDomain},
		Provides: []scenario.Key{KeyAssetID},
		Commands: func(in *scenario.Outputs) ([]ledger.Command, error) {
			domain, err := scenario.Get[string](in, KeyDomain)
			if err != nil {
				return nil, err
			}
			return []ledger.Command{ledger.NewCreateAsset(f.AssetName, domain, f.Precision)}, nil
		},
		After: func(_ context.Context, _ *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			out.Set(KeyAssetID, f.AssetID())
			return nil
		},
	}
}

func addAssetQuantity(f Fixtures) scenario.Scenario {
	return scenario.Scenario{
		Name:     "add_asset_quantity",
		Group:    GroupAssets,
		Requires: []scenario.Key{KeyAssetID},
		Commands: func(in *scenario.Outputs) ([]ledger.Command, error) {
			assetID, err := scenario.Get[string](in, KeyAssetID)
			if err != nil {
				return nil, err
			}
			return []ledger.Command{ledger.NewAddAssetQuantity(assetID, f.Quantity)}, nil
		},
		After: func(ctx context.Context, env *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			assetID, err := scenario.Get[string](out, KeyAssetID)
			if err != nil {
				return err
			}
			bal, err := assetBalance(ctx, env, 1, env.Identity.AccountID, assetID)
			if err != nil {
				return err
			}
			if bal.Cmp(mustRat(f.Quantity)) < 0 {
				return fmt.Errorf("%s holds %s %s, want at least %s", env.Identity.AccountID, bal.FloatString(int(f.Precision)), assetID, f.Quantity)
			}
			return nil
		},
	}
}

func createAccount(f Fixtures, node int) scenario.Scenario {
	key := KeyAccount(node)
	return scenario.Scenario{
		Name:     fmt.Sprintf("create_account@node%d", node),
		Group:    GroupAssets,
		Node:     node,
		Requires: []scenario.Key{KeyDomain},
		Provides: []scenario.Key{key},
		Commands: func(in *scenario.Outputs) ([]ledger.Command, error) {
			domain, err := scenario.Get[string](in, KeyDomain)
			if err != nil {
				return nil, err
			}
			if node > len(f.UserKeys) {
				return nil, fmt.Errorf("no user key for node %d", node)
			}
			name, _, _ := strings.Cut(f.UserAccount(node), "@")
			return []ledger.Command{ledger.NewCreateAccount(name, domain, f.UserKeys[node-1].Public)}, nil
		},
		After: func(_ context.Context, _ *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			out.Set(key, f.UserAccount(node))
			return nil
		},
	}
}

func transferAsset(f Fixtures, creator string, node int) scenario.Scenario {
	return scenario.Scenario{
		Name:     fmt.Sprintf("transfer_asset@node%d", node),
		Group:    GroupAssets,
		Node:     node,
		Requires: []scenario.Key{KeyAssetID, KeyAccount(node)},
		Commands: func(in *scenario.Outputs) ([]ledger.Command, error) {
			assetID, err := scenario.Get[string](in, KeyAssetID)
			if err != nil {
				return nil, err
			}
			dest, err := scenario.Get[string](in, KeyAccount(node))
			if err != nil {
				return nil, err
			}
			return []ledger.Command{ledger.NewTransferAsset(
				creator, dest, assetID, fmt.Sprintf("transfer to node%d user", node), f.TransferAmount,
			)}, nil
		},
		After: func(ctx context.Context, env *scenario.Env, _ scenario.Attempt, out *scenario.Outputs) error {
			dest, err := scenario.Get[string](out, KeyAccount(node))
			if err != nil {
				return err
			}
			bal, err := assetBalance(ctx, env, node, dest, f.AssetID())
			if err != nil {
				return err
			}
			if bal.Cmp(mustRat(f.TransferAmount)) != 0 {
				return fmt.Errorf("%s holds %s on node%d, want %s", dest, bal.FloatString(int(f.Precision)), node, f.TransferAmount)
			}
			return nil
		},
	}
}

func hasPeer(ctx context.Context, env *scenario.Env, node int, pub []byte) (bool, error) {
	client, err := env.Query(node)
	if err != nil {
		return false, err
	}
	peers, err := client.ListPeers(ctx)
	if err != nil {
		return false, fmt.Errorf("list peers: %w", err)
	}
	for _, p := range peers {
		if bytes.Equal(p.PublicKey, pub) {
			return true, nil
		}
	}
	return false, nil
}

func coinBalance(ctx context.Context, env *scenario.Env, coin *contract.Coin, addr common.Address) (*big.Int, error) {
	client, err := env.Query(1)
	if err != nil {
		return nil, err
	}
	input, err := coin.PackBalances(contract.CallerAddress(env.Identity.AccountID))
	if err != nil {
		return nil, err
	}
	resp, err := client.EngineCall(ctx, &ledger.EngineCallRequest{
		Caller: env.Identity.AccountID,
		Callee: addr,
		Input:  input,
	})
	if err != nil {
		return nil, fmt.Errorf("balances call: %w", err)
	}
	return coin.UnpackBalance(resp.Output)
}

func coinMinter(ctx context.Context, env *scenario.Env, coin *contract.Coin, addr common.Address) (common.Address, error) {
	client, err := env.Query(1)
	if err != nil {
		return common.Address{}, err
	}
	input, err := coin.PackMinter()
	if err != nil {
		return common.Address{}, err
	}
	resp, err := client.EngineCall(ctx, &ledger.EngineCallRequest{
		Caller: env.Identity.AccountID,
		Callee: addr,
		Input:  input,
	})
	if err != nil {
		return common.Address{}, fmt.Errorf("minter call: %w", err)
	}
	return coin.UnpackMinter(resp.Output)
}

func assetBalance(ctx context.Context, env *scenario.Env, node int, accountID, assetID string) (*big.Rat, error) {
	client, err := env.Query(node)
	if err != nil {
		return nil, err
	}
	assets, err := client.AccountAssets(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("account assets of %s: %w", accountID, err)
	}
	for _, a := range assets {
		if a.AssetID == assetID {
			v, ok := new(big.Rat).SetString(a.Balance)
			if !ok {
				return nil, fmt.Errorf("node returned balance %q", a.Balance)
			}
			return v, nil
		}
	}
	return new(big.Rat), nil
}

func mustRat(s string) *big.Rat {
	v, ok := new(big.Rat).SetString(s)
	if !ok {
		return new(big.Rat)
	}
	return v
}
