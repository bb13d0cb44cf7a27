package devnode

import (
	"bytes"
	"fmt"
	"math/big"
	"slices"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/ledger-harness/x/ledger"
)

type account struct {
	id          string
	signatories [][]byte
	assets      map[string]*big.Int
}

func (a *account) hasSignatory(pub []byte) bool {
	return slices.ContainsFunc(a.signatories, func(s []byte) bool { return bytes.Equal(s, pub) })
}

type asset struct {
	id        string
	precision uint32
}

type coinContract struct {
	address  common.Address
	minter   common.Address
	balances map[common.Address]*big.Int
}

func (c *coinContract) balance(addr common.Address) *big.Int {
	if v, ok := c.balances[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (c *coinContract) clone() *coinContract {
	out := &coinContract{address: c.address, minter: c.minter, balances: make(map[common.Address]*big.Int, len(c.balances))}
	for k, v := range c.balances {
		out.balances[k] = new(big.Int).Set(v)
	}
	return out
}

// worldState is everything a committed transaction can change.
type worldState struct {
	peers     []ledger.Peer
	domains   map[string]string
	accounts  map[string]*account
	assets    map[string]asset
	contracts map[common.Address]*coinContract
	nonces    map[common.Address]uint64
}

func newWorldState() *worldState {
	return &worldState{
		domains:   make(map[string]string),
		accounts:  make(map[string]*account),
		assets:    make(map[string]asset),
		contracts: make(map[common.Address]*coinContract),
		nonces:    make(map[common.Address]uint64),
	}
}

func (s *worldState) clone() *worldState {
	out := newWorldState()
	out.peers = make([]ledger.Peer, len(s.peers))
	for i, p := range s.peers {
		out.peers[i] = ledger.Peer{Address: p.Address, PublicKey: slices.Clone(p.PublicKey)}
	}
	for k, v := range s.domains {
		out.domains[k] = v
	}
	for k, a := range s.accounts {
		c := &account{id: a.id, assets: make(map[string]*big.Int, len(a.assets))}
		for _, sig := range a.signatories {
			c.signatories = append(c.signatories, slices.Clone(sig))
		}
		for id, bal := range a.assets {
			c.assets[id] = new(big.Int).Set(bal)
		}
		out.accounts[k] = c
	}
	for k, v := range s.assets {
		out.assets[k] = v
	}
	for k, v := range s.contracts {
		out.contracts[k] = v.clone()
	}
	for k, v := range s.nonces {
		out.nonces[k] = v
	}
	return out
}

func (s *worldState) peerIndex(pub []byte) int {
	return slices.IndexFunc(s.peers, func(p ledger.Peer) bool { return bytes.Equal(p.PublicKey, pub) })
}

func (s *worldState) accountAssets(id string) ([]ledger.AccountAsset, bool) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	ids := make([]string, 0, len(acc.assets))
	for assetID := range acc.assets {
		ids = append(ids, assetID)
	}
	sort.Strings(ids)
	out := make([]ledger.AccountAsset, 0, len(ids))
	for _, assetID := range ids {
		out = append(out, ledger.AccountAsset{
			AssetID: assetID,
			Balance: formatAmount(acc.assets[assetID], s.assets[assetID].precision),
		})
	}
	return out, true
}

// parseAmount converts a decimal string into integer units of the asset's precision.
func parseAmount(s string, precision uint32) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", s)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q exceeds precision %d", s, precision)
	}
	return new(big.Int).Set(r.Num()), nil
}

func formatAmount(v *big.Int, precision uint32) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	return new(big.Rat).SetFrac(v, scale).FloatString(int(precision))
}
