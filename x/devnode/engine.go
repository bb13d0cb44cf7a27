package devnode

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/compose-network/ledger-harness/x/contract"
)

var (
	errRevert             = errors.New("execution reverted")
	errUnsupportedCode    = errors.New("bytecode does not implement the coin interface")
	errInsufficientCoin   = errors.New("insufficient balance")
	errMintNotMinter      = errors.New("only the minter can mint")
	errMintAboveMaxAmount = errors.New("mint amount exceeds limit")
)

// coinEngine executes Coin contract calls natively. It stands in for a full
// EVM: any deployment whose bytecode dispatches the four coin selectors gets
// coin semantics.
type coinEngine struct {
	coin      *contract.Coin
	selectors [][]byte
}

func newCoinEngine() *coinEngine {
	c := contract.MustCoin()
	var sels [][]byte
	for _, name := range []string{contract.MethodMint, contract.MethodSend, contract.MethodBalances, contract.MethodMinter} {
		// PUSH4 <selector> as emitted by the dispatcher
		sels = append(sels, append([]byte{0x63}, c.ABI().Methods[name].ID...))
	}
	return &coinEngine{coin: c, selectors: sels}
}

func (e *coinEngine) supports(code []byte) bool {
	for _, sel := range e.selectors {
		if !bytes.Contains(code, sel) {
			return false
		}
	}
	return true
}

// deploy creates a contract owned by caller and returns its address.
func (e *coinEngine) deploy(s *worldState, caller common.Address, code []byte) (common.Address, error) {
	if !e.supports(code) {
		return common.Address{}, errUnsupportedCode
	}
	nonce := s.nonces[caller]
	addr := contract.DeployAddress(caller, nonce)
	s.nonces[caller] = nonce + 1
	s.contracts[addr] = &coinContract{
		address:  addr,
		minter:   caller,
		balances: make(map[common.Address]*big.Int),
	}
	return addr, nil
}

// call runs input against the contract at callee, mutating it in place.
func (e *coinEngine) call(c *coinContract, caller common.Address, input []byte) ([]byte, error) {
	call, err := e.coin.Decode(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRevert, err)
	}

	switch call.Method {
	case contract.MethodMinter:
		return e.coin.PackOutput(call.Method, c.minter)
	case contract.MethodBalances:
		owner := call.Args[0].(common.Address)
		return e.coin.PackOutput(call.Method, c.balance(owner))
	case contract.MethodMint:
		receiver, amount := call.Args[0].(common.Address), call.Args[1].(*big.Int)
		if caller != c.minter {
			return nil, errMintNotMinter
		}
		if amount.Cmp(contract.MaxMint) >= 0 {
			return nil, errMintAboveMaxAmount
		}
		c.balances[receiver] = new(big.Int).Add(c.balance(receiver), amount)
		return nil, nil
	case contract.MethodSend:
		receiver, amount := call.Args[0].(common.Address), call.Args[1].(*big.Int)
		from := c.balance(caller)
		if amount.Cmp(from) > 0 {
			return nil, errInsufficientCoin
		}
		c.balances[caller] = from.Sub(from, amount)
		c.balances[receiver] = new(big.Int).Add(c.balance(receiver), amount)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown method %s", errRevert, call.Method)
	}
}
