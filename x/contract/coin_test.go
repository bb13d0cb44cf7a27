package contract

import (
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestCoin_Selectors(t *testing.T) {
	t.Parallel()

	c, err := NewCoin()
	require.NoError(t, err)

	want := map[string]string{
		MethodMint:     "40c10f19",
		MethodBalances: "27e235e3",
		MethodSend:     "d0679d34",
		MethodMinter:   "07546172",
	}
	for name, sel := range want {
		m, ok := c.ABI().Methods[name]
		require.True(t, ok, name)
		require.Equal(t, sel, hex.EncodeToString(m.ID), name)
	}
}

func TestCoin_PackMintMatchesReferenceCalldata(t *testing.T) {
	t.Parallel()

	c := MustCoin()
	data, err := c.PackMint(common.HexToAddress("f205c4a929072dd6e7fc081c2a78dbc79c76070b"), big.NewInt(1000))
	require.NoError(t, err)

	const want = "40c10f19" +
		"000000000000000000000000f205c4a929072dd6e7fc081c2a78dbc79c76070b" +
		"00000000000000000000000000000000000000000000000000000000000003e8"
	require.Equal(t, want, hex.EncodeToString(data))

	call, err := c.Decode(data)
	require.NoError(t, err)
	require.Equal(t, MethodMint, call.Method)
	require.Len(t, call.Args, 2)
	require.Equal(t, common.HexToAddress("f205c4a929072dd6e7fc081c2a78dbc79c76070b"), call.Args[0])
	require.Equal(t, 0, big.NewInt(1000).Cmp(call.Args[1].(*big.Int)))
}

func TestCoin_OutputRoundTrip(t *testing.T) {
	t.Parallel()

	c := MustCoin()

	out, err := c.PackOutput(MethodBalances, big.NewInt(42))
	require.NoError(t, err)
	bal, err := c.UnpackBalance(out)
	require.NoError(t, err)
	require.Equal(t, int64(42), bal.Int64())

	minter := CallerAddress("admin@test")
	out, err = c.PackOutput(MethodMinter, minter)
	require.NoError(t, err)
	got, err := c.UnpackMinter(out)
	require.NoError(t, err)
	require.Equal(t, minter, got)

	call, err := c.PackMinter()
	require.NoError(t, err)
	decoded, err := c.Decode(call)
	require.NoError(t, err)
	require.Equal(t, MethodMinter, decoded.Method)
	require.Empty(t, decoded.Args)
}

func TestCoin_DecodeRejectsUnknownSelector(t *testing.T) {
	t.Parallel()

	c := MustCoin()
	_, err := c.Decode([]byte{0xde, 0xad})
	require.Error(t, err)
	_, err = c.Decode([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
}

func TestCallerAddress(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		common.HexToAddress("3c2c6fb6bd58e266c8c2ce4fa0ffe3dd6a253ffb"),
		CallerAddress("admin@test"))
}

func TestBytecode(t *testing.T) {
	t.Parallel()

	code := Bytecode()
	require.True(t, strings.HasPrefix(hex.EncodeToString(code), "6080604052"))
	require.NotEqual(t, DeployAddress(CallerAddress("admin@test"), 0), DeployAddress(CallerAddress("admin@test"), 1))
}
