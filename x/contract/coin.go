package contract

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// Coin contract ABI embedded at compile time
//
//go:embed abi/coin.json
var coinABIJSON string

// Coin constructor bytecode, hex
//
//go:embed abi/coin.bin
var coinBytecodeHex string

// Coin method names.
const (
	MethodMint     = "mint"
	MethodSend     = "send"
	MethodBalances = "balances"
	MethodMinter   = "minter"
)

// MaxMint is the exclusive upper bound the contract puts on a single mint (1e60).
var MaxMint = new(big.Int).Exp(big.NewInt(10), big.NewInt(60), nil)

// Coin encodes and decodes calls to the sample Coin contract.
type Coin struct {
	abi abi.ABI
}

// NewCoin parses the embedded ABI.
func NewCoin() (*Coin, error) {
	parsed, err := abi.JSON(strings.NewReader(coinABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse coin ABI: %w", err)
	}
	return &Coin{abi: parsed}, nil
}

// MustCoin is NewCoin for package-level initialisation; the ABI is a constant.
func MustCoin() *Coin {
	c, err := NewCoin()
	if err != nil {
		panic(err)
	}
	return c
}

// ABI returns the parsed ABI.
func (c *Coin) ABI() abi.ABI {
	return c.abi
}

// Bytecode returns the constructor bytecode used for deployments.
func Bytecode() []byte {
	b, err := hex.DecodeString(strings.TrimSpace(coinBytecodeHex))
	if err != nil {
		panic(fmt.Sprintf("coin bytecode is not hex: %v", err))
	}
	return b
}

// PackMint encodes mint(receiver, amount).
func (c *Coin) PackMint(receiver common.Address, amount *big.Int) ([]byte, error) {
	data, err := c.abi.Pack(MethodMint, receiver, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mint calldata: %w", err)
	}
	return data, nil
}

// PackSend encodes send(receiver, amount).
func (c *Coin) PackSend(receiver common.Address, amount *big.Int) ([]byte, error) {
	data, err := c.abi.Pack(MethodSend, receiver, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack send calldata: %w", err)
	}
	return data, nil
}

// PackBalances encodes balances(owner).
func (c *Coin) PackBalances(owner common.Address) ([]byte, error) {
	data, err := c.abi.Pack(MethodBalances, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balances calldata: %w", err)
	}
	return data, nil
}

// PackMinter encodes minter().
func (c *Coin) PackMinter() ([]byte, error) {
	data, err := c.abi.Pack(MethodMinter)
	if err != nil {
		return nil, fmt.Errorf("failed to pack minter calldata: %w", err)
	}
	return data, nil
}

// UnpackBalance decodes the return value of balances(owner).
func (c *Coin) UnpackBalance(output []byte) (*big.Int, error) {
	vals, err := c.abi.Unpack(MethodBalances, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack balances output: %w", err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("balances returned %d values", len(vals))
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balances returned %T", vals[0])
	}
	return v, nil
}

// UnpackMinter decodes the return value of minter().
func (c *Coin) UnpackMinter(output []byte) (common.Address, error) {
	vals, err := c.abi.Unpack(MethodMinter, output)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack minter output: %w", err)
	}
	if len(vals) != 1 {
		return common.Address{}, fmt.Errorf("minter returned %d values", len(vals))
	}
	v, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("minter returned %T", vals[0])
	}
	return v, nil
}

// Call is a decoded method invocation.
type Call struct {
	Method string
	Args   []any
}

// Decode resolves the selector in input and unpacks the arguments.
func (c *Coin) Decode(input []byte) (Call, error) {
	if len(input) < 4 {
		return Call{}, fmt.Errorf("calldata too short: %d bytes", len(input))
	}
	m, err := c.abi.MethodById(input[:4])
	if err != nil {
		return Call{}, err
	}
	args, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return Call{}, fmt.Errorf("failed to unpack %s arguments: %w", m.Name, err)
	}
	return Call{Method: m.Name, Args: args}, nil
}

// PackOutput encodes the return values of method.
func (c *Coin) PackOutput(method string, vals ...any) ([]byte, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("unknown method %q", method)
	}
	return m.Outputs.Pack(vals...)
}

// CallerAddress maps an account id to the 20-byte address the engine uses for
// msg.sender: the last 20 bytes of SHA3-256(account id).
func CallerAddress(accountID string) common.Address {
	sum := sha3.Sum256([]byte(accountID))
	return common.BytesToAddress(sum[12:])
}

// DeployAddress is the address a deployment by caller with the given nonce receives.
func DeployAddress(caller common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(caller, nonce)
}
