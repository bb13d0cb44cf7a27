package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Command kinds as they appear in logs and block exports.
const (
	KindAddPeer          = "AddPeer"
	KindRemovePeer       = "RemovePeer"
	KindCallEngine       = "CallEngine"
	KindCreateDomain     = "CreateDomain"
	KindCreateAsset      = "CreateAsset"
	KindCreateAccount    = "CreateAccount"
	KindAddAssetQuantity = "AddAssetQuantity"
	KindTransferAsset    = "TransferAsset"
)

// Peer is a ledger node as registered in the world state.
type Peer struct {
	Address   string        `json:"address"    yaml:"address"`
	PublicKey hexutil.Bytes `json:"public_key" yaml:"public_key"`
}

type AddPeer struct {
	Peer Peer `json:"peer" yaml:"peer"`
}

type RemovePeer struct {
	PublicKey hexutil.Bytes `json:"public_key" yaml:"public_key"`
}

// CallEngine deploys a contract when Callee is nil, otherwise calls it.
type CallEngine struct {
	Caller string          `json:"caller"           yaml:"caller"`
	Callee *common.Address `json:"callee,omitempty" yaml:"callee,omitempty"`
	Input  hexutil.Bytes   `json:"input"            yaml:"input"`
}

type CreateDomain struct {
	DomainID    string `json:"domain_id"    yaml:"domain_id"`
	DefaultRole string `json:"default_role" yaml:"default_role"`
}

type CreateAsset struct {
	AssetName string `json:"asset_name" yaml:"asset_name"`
	DomainID  string `json:"domain_id"  yaml:"domain_id"`
	Precision uint32 `json:"precision"  yaml:"precision"`
}

type CreateAccount struct {
	AccountName string        `json:"account_name" yaml:"account_name"`
	DomainID    string        `json:"domain_id"    yaml:"domain_id"`
	PublicKey   hexutil.Bytes `json:"public_key"   yaml:"public_key"`
}

type AddAssetQuantity struct {
	AssetID string `json:"asset_id" yaml:"asset_id"`
	Amount  string `json:"amount"   yaml:"amount"`
}

type TransferAsset struct {
	SrcAccountID  string `json:"src_account_id"  yaml:"src_account_id"`
	DestAccountID string `json:"dest_account_id" yaml:"dest_account_id"`
	AssetID       string `json:"asset_id"        yaml:"asset_id"`
	Description   string `json:"description"     yaml:"description"`
	Amount        string `json:"amount"          yaml:"amount"`
}

// Command is a tagged variant: exactly one field is set.
type Command struct {
	AddPeer          *AddPeer          `json:"add_peer,omitempty"           yaml:"add_peer,omitempty"`
	RemovePeer       *RemovePeer       `json:"remove_peer,omitempty"        yaml:"remove_peer,omitempty"`
	CallEngine       *CallEngine       `json:"call_engine,omitempty"        yaml:"call_engine,omitempty"`
	CreateDomain     *CreateDomain     `json:"create_domain,omitempty"      yaml:"create_domain,omitempty"`
	CreateAsset      *CreateAsset      `json:"create_asset,omitempty"       yaml:"create_asset,omitempty"`
	CreateAccount    *CreateAccount    `json:"create_account,omitempty"     yaml:"create_account,omitempty"`
	AddAssetQuantity *AddAssetQuantity `json:"add_asset_quantity,omitempty" yaml:"add_asset_quantity,omitempty"`
	TransferAsset    *TransferAsset    `json:"transfer_asset,omitempty"     yaml:"transfer_asset,omitempty"`
}

func NewAddPeer(address string, publicKey []byte) Command {
	return Command{AddPeer: &AddPeer{Peer: Peer{Address: address, PublicKey: clone(publicKey)}}}
}

func NewRemovePeer(publicKey []byte) Command {
	return Command{RemovePeer: &RemovePeer{PublicKey: clone(publicKey)}}
}

// NewCallEngine builds a contract call; a nil callee deploys input as bytecode.
func NewCallEngine(caller string, callee *common.Address, input []byte) Command {
	var c *common.Address
	if callee != nil {
		addr := *callee
		c = &addr
	}
	return Command{CallEngine: &CallEngine{Caller: caller, Callee: c, Input: clone(input)}}
}

func NewCreateDomain(domainID, defaultRole string) Command {
	return Command{CreateDomain: &CreateDomain{DomainID: domainID, DefaultRole: defaultRole}}
}

func NewCreateAsset(name, domainID string, precision uint32) Command {
	return Command{CreateAsset: &CreateAsset{AssetName: name, DomainID: domainID, Precision: precision}}
}

func NewCreateAccount(name, domainID string, publicKey []byte) Command {
	return Command{CreateAccount: &CreateAccount{AccountName: name, DomainID: domainID, PublicKey: clone(publicKey)}}
}

func NewAddAssetQuantity(assetID, amount string) Command {
	return Command{AddAssetQuantity: &AddAssetQuantity{AssetID: assetID, Amount: amount}}
}

func NewTransferAsset(src, dest, assetID, description, amount string) Command {
	return Command{TransferAsset: &TransferAsset{
		SrcAccountID:  src,
		DestAccountID: dest,
		AssetID:       assetID,
		Description:   description,
		Amount:        amount,
	}}
}

// Kind names the set variant, or "" when none or several are set.
func (c Command) Kind() string {
	kinds := c.setKinds()
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func (c Command) setKinds() []string {
	var kinds []string
	if c.AddPeer != nil {
		kinds = append(kinds, KindAddPeer)
	}
	if c.RemovePeer != nil {
		kinds = append(kinds, KindRemovePeer)
	}
	if c.CallEngine != nil {
		kinds = append(kinds, KindCallEngine)
	}
	if c.CreateDomain != nil {
		kinds = append(kinds, KindCreateDomain)
	}
	if c.CreateAsset != nil {
		kinds = append(kinds, KindCreateAsset)
	}
	if c.CreateAccount != nil {
		kinds = append(kinds, KindCreateAccount)
	}
	if c.AddAssetQuantity != nil {
		kinds = append(kinds, KindAddAssetQuantity)
	}
	if c.TransferAsset != nil {
		kinds = append(kinds, KindTransferAsset)
	}
	return kinds
}

// Validate checks the variant tag and the fields a node would reject statelessly.
func (c Command) Validate() error {
	kinds := c.setKinds()
	switch len(kinds) {
	case 0:
		return errors.New("command has no variant set")
	case 1:
	default:
		return fmt.Errorf("command has several variants set: %s", strings.Join(kinds, ","))
	}

	switch {
	case c.AddPeer != nil:
		if strings.TrimSpace(c.AddPeer.Peer.Address) == "" {
			return errors.New("AddPeer: peer address is empty")
		}
		if len(c.AddPeer.Peer.PublicKey) == 0 {
			return errors.New("AddPeer: peer public key is empty")
		}
	case c.RemovePeer != nil:
		if len(c.RemovePeer.PublicKey) == 0 {
			return errors.New("RemovePeer: public key is empty")
		}
	case c.CallEngine != nil:
		if strings.TrimSpace(c.CallEngine.Caller) == "" {
			return errors.New("CallEngine: caller is empty")
		}
		if c.CallEngine.Callee == nil && len(c.CallEngine.Input) == 0 {
			return errors.New("CallEngine: deployment without bytecode")
		}
	case c.CreateDomain != nil:
		if !validName(c.CreateDomain.DomainID) {
			return fmt.Errorf("CreateDomain: invalid domain id %q", c.CreateDomain.DomainID)
		}
	case c.CreateAsset != nil:
		if !validName(c.CreateAsset.AssetName) || !validName(c.CreateAsset.DomainID) {
			return fmt.Errorf("CreateAsset: invalid asset %s#%s", c.CreateAsset.AssetName, c.CreateAsset.DomainID)
		}
		if c.CreateAsset.Precision > 255 {
			return fmt.Errorf("CreateAsset: precision %d out of range", c.CreateAsset.Precision)
		}
	case c.CreateAccount != nil:
		if !validName(c.CreateAccount.AccountName) || !validName(c.CreateAccount.DomainID) {
			return fmt.Errorf("CreateAccount: invalid account %s@%s", c.CreateAccount.AccountName, c.CreateAccount.DomainID)
		}
		if len(c.CreateAccount.PublicKey) == 0 {
			return errors.New("CreateAccount: public key is empty")
		}
	case c.AddAssetQuantity != nil:
		if err := validAmount(c.AddAssetQuantity.Amount); err != nil {
			return fmt.Errorf("AddAssetQuantity: %w", err)
		}
	case c.TransferAsset != nil:
		if c.TransferAsset.SrcAccountID == c.TransferAsset.DestAccountID {
			return errors.New("TransferAsset: source and destination are the same account")
		}
		if err := validAmount(c.TransferAsset.Amount); err != nil {
			return fmt.Errorf("TransferAsset: %w", err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Command) Clone() Command {
	var out Command
	if c.AddPeer != nil {
		out.AddPeer = &AddPeer{Peer: Peer{Address: c.AddPeer.Peer.Address, PublicKey: clone(c.AddPeer.Peer.PublicKey)}}
	}
	if c.RemovePeer != nil {
		out.RemovePeer = &RemovePeer{PublicKey: clone(c.RemovePeer.PublicKey)}
	}
	if c.CallEngine != nil {
		out.CallEngine = NewCallEngine(c.CallEngine.Caller, c.CallEngine.Callee, c.CallEngine.Input).CallEngine
	}
	if c.CreateDomain != nil {
		v := *c.CreateDomain
		out.CreateDomain = &v
	}
	if c.CreateAsset != nil {
		v := *c.CreateAsset
		out.CreateAsset = &v
	}
	if c.CreateAccount != nil {
		v := *c.CreateAccount
		v.PublicKey = clone(v.PublicKey)
		out.CreateAccount = &v
	}
	if c.AddAssetQuantity != nil {
		v := *c.AddAssetQuantity
		out.AddAssetQuantity = &v
	}
	if c.TransferAsset != nil {
		v := *c.TransferAsset
		out.TransferAsset = &v
	}
	return out
}

func validName(s string) bool {
	if s == "" || len(s) > 32 {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

func validAmount(s string) error {
	v, ok := new(big.Rat).SetString(s)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() <= 0 {
		return fmt.Errorf("amount must be positive, got %q", s)
	}
	return nil
}

func clone(b []byte) hexutil.Bytes {
	if b == nil {
		return nil
	}
	return append(hexutil.Bytes(nil), b...)
}
