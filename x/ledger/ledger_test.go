package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestStatus_TerminalSet(t *testing.T) {
	t.Parallel()

	terminal := []Status{
		StatusStatelessValidationFailed,
		StatusStatefulValidationFailed,
		StatusCommitted,
		StatusRejected,
		StatusMSTExpired,
	}
	for _, s := range terminal {
		require.True(t, s.Terminal(), s.String())
	}
	for _, s := range []Status{StatusNotReceived, StatusEnoughSignaturesCollected, StatusStatefulValidationSuccess, StatusMSTPending} {
		require.False(t, s.Terminal(), s.String())
	}
}

func TestStatus_TextRoundTrip(t *testing.T) {
	t.Parallel()

	b, err := StatusCommitted.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "COMMITTED", string(b))

	var s Status
	require.NoError(t, s.UnmarshalText([]byte("stateful_validation_failed")))
	require.Equal(t, StatusStatefulValidationFailed, s)
	require.Error(t, s.UnmarshalText([]byte("DONE")))
}

func TestCodec_CommandVariantsSurvive(t *testing.T) {
	t.Parallel()

	callee := common.HexToAddress("0xf205c4a929072dd6e7fc081c2a78dbc79c76070b")
	tx := &Transaction{
		Payload: Payload{
			Commands: []Command{
				NewAddPeer("172.27.63.125:10005", []byte{0x15, 0x67}),
				NewCallEngine("admin@test", &callee, []byte{0x40, 0xc1, 0x0f, 0x19}),
				NewCallEngine("admin@test", nil, []byte{0x60, 0x80}),
				NewTransferAsset("admin@test", "user1@test", "coin#test", "gift", "1.5"),
			},
			CreatorAccountID: "admin@test",
			CreatedTime:      1700000000000,
			Quorum:           1,
		},
	}

	c := JSONCodec{}
	data, err := c.Marshal(tx)
	require.NoError(t, err)

	var out Transaction
	require.NoError(t, c.Unmarshal(data, &out))
	require.Equal(t, *tx, out)
	require.Equal(t, KindAddPeer, out.Payload.Commands[0].Kind())
	require.Nil(t, out.Payload.Commands[2].CallEngine.Callee)
	require.Equal(t, "json", c.Name())
}

func TestCommand_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewRemovePeer([]byte{1}).Validate())
	require.Error(t, Command{}.Validate())
	require.Error(t, Command{AddPeer: &AddPeer{}, RemovePeer: &RemovePeer{}}.Validate())
	require.Error(t, NewAddPeer("", []byte{1}).Validate())
	require.Error(t, NewCallEngine("admin@test", nil, nil).Validate())
	require.Error(t, NewCreateDomain("Bad Domain", "user").Validate())
	require.Error(t, NewAddAssetQuantity("coin#test", "-1").Validate())
	require.Error(t, NewAddAssetQuantity("coin#test", "abc").Validate())
	require.Error(t, NewTransferAsset("a@test", "a@test", "coin#test", "", "1").Validate())
	require.NoError(t, NewCreateAsset("coin", "test", 2).Validate())
	require.Equal(t, "", Command{}.Kind())
}

func TestTransaction_CloneIsDeep(t *testing.T) {
	t.Parallel()

	key := []byte{1, 2, 3}
	tx := Transaction{
		Payload:    Payload{Commands: []Command{NewRemovePeer(key)}, CreatorAccountID: "admin@test", Quorum: 1},
		Signatures: []Signature{{Scheme: "ed25519", PublicKey: []byte{9}, Signature: []byte{8}}},
	}
	cp := tx.Clone()
	cp.Payload.Commands[0].RemovePeer.PublicKey[0] = 0xff
	cp.Signatures[0].Signature[0] = 0xff

	require.Equal(t, byte(1), tx.Payload.Commands[0].RemovePeer.PublicKey[0])
	require.Equal(t, byte(8), tx.Signatures[0].Signature[0])
}

func TestHash_Parse(t *testing.T) {
	t.Parallel()

	var h Hash
	h[0] = 0xab
	parsed, err := ParseHash("0x" + h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
	require.Equal(t, "ab000000", h.Short())

	_, err = ParseHash("abcd")
	require.Error(t, err)
}
