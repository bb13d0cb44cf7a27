package scenarios

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/compose-network/ledger-harness/x/contract"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
)

// Fixtures are the constants the catalog submits.
type Fixtures struct {
	Peer           ledger.Peer
	Bytecode       []byte
	MintAmount     *big.Int
	Domain         string
	AssetName      string
	Precision      uint32
	Quantity       string
	TransferAmount string
	// UserKeys holds one signatory per node for create_account@nodeN.
	UserKeys []keys.KeyPair
}

// FixtureConfig is the configurable part of Fixtures.
type FixtureConfig struct {
	PeerAddress    string `mapstructure:"peer_address"    yaml:"peer_address"`
	PeerPublicKey  string `mapstructure:"peer_public_key" yaml:"peer_public_key"`
	BytecodeHex    string `mapstructure:"bytecode"        yaml:"bytecode"`
	MintAmount     string `mapstructure:"mint_amount"     yaml:"mint_amount"`
	Domain         string `mapstructure:"domain"          yaml:"domain"`
	AssetName      string `mapstructure:"asset_name"      yaml:"asset_name"`
	Precision      uint32 `mapstructure:"precision"       yaml:"precision"`
	Quantity       string `mapstructure:"quantity"        yaml:"quantity"`
	TransferAmount string `mapstructure:"transfer_amount" yaml:"transfer_amount"`
	UserKeyScheme  string `mapstructure:"user_key_scheme" yaml:"user_key_scheme"`
}

// DefaultFixtureConfig mirrors the values the network test scripts used.
func DefaultFixtureConfig() FixtureConfig {
	return FixtureConfig{
		PeerAddress:    "172.27.63.125:10005",
		PeerPublicKey:  "1567a1dcdef946ee41fa456059b4f40652ffd5b104755862e7c80e938fd7795c",
		MintAmount:     "1000",
		Domain:         "bank",
		AssetName:      "coin",
		Precision:      2,
		Quantity:       "1000.00",
		TransferAmount: "10.00",
		UserKeyScheme:  string(keys.Ed25519),
	}
}

// Build resolves the config into fixtures, generating a user key per node.
func (c FixtureConfig) Build(nodes int) (Fixtures, error) {
	pub, err := hex.DecodeString(strings.TrimPrefix(c.PeerPublicKey, "0x"))
	if err != nil || len(pub) == 0 {
		return Fixtures{}, fmt.Errorf("fixtures.peer_public_key must be non-empty hex")
	}
	mint, ok := new(big.Int).SetString(c.MintAmount, 10)
	if !ok || mint.Sign() <= 0 {
		return Fixtures{}, fmt.Errorf("fixtures.mint_amount must be a positive integer, got %q", c.MintAmount)
	}
	if mint.Cmp(contract.MaxMint) >= 0 {
		return Fixtures{}, fmt.Errorf("fixtures.mint_amount must be below 1e60")
	}
	code := contract.Bytecode()
	if c.BytecodeHex != "" {
		code, err = hex.DecodeString(strings.TrimPrefix(c.BytecodeHex, "0x"))
		if err != nil {
			return Fixtures{}, fmt.Errorf("fixtures.bytecode: %w", err)
		}
	}
	scheme, err := keys.ParseScheme(c.UserKeyScheme)
	if err != nil {
		return Fixtures{}, err
	}

	f := Fixtures{
		Peer:           ledger.Peer{Address: c.PeerAddress, PublicKey: pub},
		Bytecode:       code,
		MintAmount:     mint,
		Domain:         c.Domain,
		AssetName:      c.AssetName,
		Precision:      c.Precision,
		Quantity:       c.Quantity,
		TransferAmount: c.TransferAmount,
	}
	for range nodes {
		kp, err := keys.Generate(scheme)
		if err != nil {
			return Fixtures{}, err
		}
		f.UserKeys = append(f.UserKeys, kp)
	}
	return f, nil
}

// AssetID is name#domain.
func (f Fixtures) AssetID() string {
	return f.AssetName + "#" + f.Domain
}

// UserAccount is the account created through node n.
func (f Fixtures) UserAccount(n int) string {
	return fmt.Sprintf("user%d@%s", n, f.Domain)
}
