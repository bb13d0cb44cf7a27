package devnode

import (
	"fmt"
	"math/big"

	"github.com/compose-network/ledger-harness/x/contract"
	"github.com/compose-network/ledger-harness/x/ledger"
)

// Stateful validation error codes reported in TxStatus.ErrorCode.
const (
	CodeNoAccount     uint32 = 1
	CodeNoPermission  uint32 = 2
	CodeAlreadyExists uint32 = 3
	CodeNotFound      uint32 = 4
	CodeInsufficient  uint32 = 5
	CodeEngine        uint32 = 6
	CodePrecision     uint32 = 7
	CodeLastPeer      uint32 = 8
)

// applyError is a stateful validation failure of one command.
type applyError struct {
	Index int
	Code  uint32
	Err   error
}

func (e *applyError) Error() string {
	return fmt.Sprintf("command %d failed with code %d: %v", e.Index, e.Code, e.Err)
}

func (e *applyError) Unwrap() error { return e.Err }

func fail(code uint32, format string, args ...any) *applyError {
	return &applyError{Code: code, Err: fmt.Errorf(format, args...)}
}

// applyTx applies every command of t to s. On error s is left partially
// modified; callers apply to a clone and discard it.
func (l *Ledger) applyTx(s *worldState, t ledger.Transaction, hash ledger.Hash) ([]ledger.EngineReceipt, *applyError) {
	creator, ok := s.accounts[t.Payload.CreatorAccountID]
	if !ok {
		return nil, fail(CodeNoAccount, "creator %s does not exist", t.Payload.CreatorAccountID)
	}
	for _, sig := range t.Signatures {
		if !creator.hasSignatory(sig.PublicKey) {
			return nil, fail(CodeNoPermission, "signer %x is not a signatory of %s", []byte(sig.PublicKey), creator.id)
		}
	}

	var receipts []ledger.EngineReceipt
	for i, cmd := range t.Payload.Commands {
		receipt, err := l.applyCommand(s, creator, cmd)
		if err != nil {
			err.Index = i
			return nil, err
		}
		if receipt != nil {
			receipt.TxHash = hash
			receipt.CommandIndex = uint32(i)
			receipts = append(receipts, *receipt)
		}
	}
	return receipts, nil
}

func (l *Ledger) applyCommand(s *worldState, creator *account, cmd ledger.Command) (*ledger.EngineReceipt, *applyError) {
	switch {
	case cmd.AddPeer != nil:
		p := cmd.AddPeer.Peer
		if s.peerIndex(p.PublicKey) >= 0 {
			return nil, fail(CodeAlreadyExists, "peer %x already registered", []byte(p.PublicKey))
		}
		s.peers = append(s.peers, ledger.Peer{Address: p.Address, PublicKey: append([]byte(nil), p.PublicKey...)})

	case cmd.RemovePeer != nil:
		idx := s.peerIndex(cmd.RemovePeer.PublicKey)
		if idx < 0 {
			return nil, fail(CodeNotFound, "peer %x not registered", []byte(cmd.RemovePeer.PublicKey))
		}
		if len(s.peers) == 1 {
			return nil, fail(CodeLastPeer, "cannot remove the last peer")
		}
		s.peers = append(s.peers[:idx], s.peers[idx+1:]...)

	case cmd.CallEngine != nil:
		return l.applyCall(s, cmd.CallEngine)

	case cmd.CreateDomain != nil:
		d := cmd.CreateDomain
		if _, ok := s.domains[d.DomainID]; ok {
			return nil, fail(CodeAlreadyExists, "domain %s already exists", d.DomainID)
		}
		s.domains[d.DomainID] = d.DefaultRole

	case cmd.CreateAsset != nil:
		a := cmd.CreateAsset
		if _, ok := s.domains[a.DomainID]; !ok {
			return nil, fail(CodeNotFound, "domain %s does not exist", a.DomainID)
		}
		id := a.AssetName + "#" + a.DomainID
		if _, ok := s.assets[id]; ok {
			return nil, fail(CodeAlreadyExists, "asset %s already exists", id)
		}
		s.assets[id] = asset{id: id, precision: a.Precision}

	case cmd.CreateAccount != nil:
		a := cmd.CreateAccount
		if _, ok := s.domains[a.DomainID]; !ok {
			return nil, fail(CodeNotFound, "domain %s does not exist", a.DomainID)
		}
		id := a.AccountName + "@" + a.DomainID
		if _, ok := s.accounts[id]; ok {
			return nil, fail(CodeAlreadyExists, "account %s already exists", id)
		}
		s.accounts[id] = &account{
			id:          id,
			signatories: [][]byte{append([]byte(nil), a.PublicKey...)},
			assets:      make(map[string]*big.Int),
		}

	case cmd.AddAssetQuantity != nil:
		q := cmd.AddAssetQuantity
		as, ok := s.assets[q.AssetID]
		if !ok {
			return nil, fail(CodeNotFound, "asset %s does not exist", q.AssetID)
		}
		amount, err := parseAmount(q.Amount, as.precision)
		if err != nil {
			return nil, fail(CodePrecision, "%v", err)
		}
		creator.assets[q.AssetID] = add(creator.assets[q.AssetID], amount)

	case cmd.TransferAsset != nil:
		t := cmd.TransferAsset
		if t.SrcAccountID != creator.id {
			return nil, fail(CodeNoPermission, "%s cannot transfer from %s", creator.id, t.SrcAccountID)
		}
		dest, ok := s.accounts[t.DestAccountID]
		if !ok {
			return nil, fail(CodeNoAccount, "destination %s does not exist", t.DestAccountID)
		}
		as, ok := s.assets[t.AssetID]
		if !ok {
			return nil, fail(CodeNotFound, "asset %s does not exist", t.AssetID)
		}
		amount, err := parseAmount(t.Amount, as.precision)
		if err != nil {
			return nil, fail(CodePrecision, "%v", err)
		}
		bal := creator.assets[t.AssetID]
		if bal == nil || bal.Cmp(amount) < 0 {
			return nil, fail(CodeInsufficient, "%s holds less than %s %s", creator.id, t.Amount, t.AssetID)
		}
		creator.assets[t.AssetID] = new(big.Int).Sub(bal, amount)
		dest.assets[t.AssetID] = add(dest.assets[t.AssetID], amount)

	default:
		return nil, fail(CodeNotFound, "unsupported command")
	}
	return nil, nil
}

func (l *Ledger) applyCall(s *worldState, c *ledger.CallEngine) (*ledger.EngineReceipt, *applyError) {
	if _, ok := s.accounts[c.Caller]; !ok {
		return nil, fail(CodeNoAccount, "caller %s does not exist", c.Caller)
	}
	caller := contract.CallerAddress(c.Caller)
	receipt := &ledger.EngineReceipt{Caller: caller}

	if c.Callee == nil {
		addr, err := l.engine.deploy(s, caller, c.Input)
		if err != nil {
			return nil, fail(CodeEngine, "deploy: %v", err)
		}
		receipt.ContractAddress = &addr
		return receipt, nil
	}

	target, ok := s.contracts[*c.Callee]
	if !ok {
		return nil, fail(CodeNotFound, "no contract at %s", c.Callee.Hex())
	}
	out, err := l.engine.call(target, caller, c.Input)
	if err != nil {
		return nil, fail(CodeEngine, "call %s: %v", c.Callee.Hex(), err)
	}
	receipt.Output = out
	return receipt, nil
}

func add(a, b *big.Int) *big.Int {
	if a == nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int).Add(a, b)
}
