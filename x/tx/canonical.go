package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"

	"github.com/compose-network/ledger-harness/x/ledger"
)

type canonicalCommand struct {
	Kind string
	Args [][]byte
}

type canonicalPayload struct {
	Commands    []canonicalCommand
	Creator     string
	CreatedTime uint64
	Quorum      uint64
}

// PayloadBytes is the canonical RLP encoding that signatures cover.
func PayloadBytes(p ledger.Payload) ([]byte, error) {
	cp := canonicalPayload{
		Commands:    make([]canonicalCommand, len(p.Commands)),
		Creator:     p.CreatorAccountID,
		CreatedTime: p.CreatedTime,
		Quorum:      uint64(p.Quorum),
	}
	for i, c := range p.Commands {
		cc, err := canonical(c)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		cp.Commands[i] = cc
	}
	return rlp.EncodeToBytes(&cp)
}

// Hash is the SHA3-256 of the canonical payload.
func Hash(p ledger.Payload) (ledger.Hash, error) {
	b, err := PayloadBytes(p)
	if err != nil {
		return ledger.Hash{}, err
	}
	return ledger.Hash(sha3.Sum256(b)), nil
}

// MustHash is Hash for payloads that already passed Build.
func MustHash(p ledger.Payload) ledger.Hash {
	h, err := Hash(p)
	if err != nil {
		panic(err)
	}
	return h
}

func canonical(c ledger.Command) (canonicalCommand, error) {
	kind := c.Kind()
	switch {
	case kind == "":
		return canonicalCommand{}, fmt.Errorf("command must carry exactly one variant")
	case c.AddPeer != nil:
		return args(kind, []byte(c.AddPeer.Peer.Address), c.AddPeer.Peer.PublicKey), nil
	case c.RemovePeer != nil:
		return args(kind, c.RemovePeer.PublicKey), nil
	case c.CallEngine != nil:
		var callee []byte
		if c.CallEngine.Callee != nil {
			callee = c.CallEngine.Callee.Bytes()
		}
		return args(kind, []byte(c.CallEngine.Caller), callee, c.CallEngine.Input), nil
	case c.CreateDomain != nil:
		return args(kind, []byte(c.CreateDomain.DomainID), []byte(c.CreateDomain.DefaultRole)), nil
	case c.CreateAsset != nil:
		precision := binary.BigEndian.AppendUint32(nil, c.CreateAsset.Precision)
		return args(kind, []byte(c.CreateAsset.AssetName), []byte(c.CreateAsset.DomainID), precision), nil
	case c.CreateAccount != nil:
		return args(kind, []byte(c.CreateAccount.AccountName), []byte(c.CreateAccount.DomainID), c.CreateAccount.PublicKey), nil
	case c.AddAssetQuantity != nil:
		return args(kind, []byte(c.AddAssetQuantity.AssetID), []byte(c.AddAssetQuantity.Amount)), nil
	case c.TransferAsset != nil:
		t := c.TransferAsset
		return args(kind, []byte(t.SrcAccountID), []byte(t.DestAccountID), []byte(t.AssetID),
			[]byte(t.Description), []byte(t.Amount)), nil
	}
	return canonicalCommand{}, fmt.Errorf("unsupported command kind %q", kind)
}

func args(kind string, a ...[]byte) canonicalCommand {
	out := make([][]byte, len(a))
	for i, b := range a {
		if b == nil {
			b = []byte{}
		}
		out[i] = b
	}
	return canonicalCommand{Kind: kind, Args: out}
}
