package tx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
)

var fixedTime = time.UnixMilli(1_700_000_000_000)

func peerCommands() []ledger.Command {
	return []ledger.Command{ledger.NewAddPeer("172.27.63.125:10005", []byte{0x15, 0x67, 0xa1})}
}

func TestBuild_Rejects(t *testing.T) {
	t.Parallel()

	_, err := Build(nil, "admin@test", 1)
	require.ErrorIs(t, err, errs.ErrMalformedCommand)

	_, err = Build(peerCommands(), "admin@test", 0)
	require.ErrorIs(t, err, errs.ErrMalformedCommand)

	_, err = Build(peerCommands(), "admin@test", -3)
	require.ErrorIs(t, err, errs.ErrMalformedCommand)

	_, err = Build(peerCommands(), "", 1)
	require.ErrorIs(t, err, errs.ErrMalformedCommand)

	_, err = Build([]ledger.Command{{}}, "admin@test", 1)
	require.ErrorIs(t, err, errs.ErrMalformedCommand)
}

func TestBuildAt_IsPureOfInputs(t *testing.T) {
	t.Parallel()

	a, err := BuildAt(fixedTime, peerCommands(), "admin@test", 1)
	require.NoError(t, err)
	b, err := BuildAt(fixedTime, peerCommands(), "admin@test", 1)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Empty(t, a.Signatures)
	require.Equal(t, uint64(fixedTime.UnixMilli()), a.Payload.CreatedTime)
	require.Equal(t, MustHash(a.Payload), MustHash(b.Payload))

	c, err := BuildAt(fixedTime.Add(time.Millisecond), peerCommands(), "admin@test", 1)
	require.NoError(t, err)
	require.NotEqual(t, MustHash(a.Payload), MustHash(c.Payload))
}

func TestSign_ExactlyOneSignatureByKey(t *testing.T) {
	t.Parallel()

	for _, scheme := range []keys.Scheme{keys.Ed25519, keys.Secp256k1} {
		kp, err := keys.Generate(scheme)
		require.NoError(t, err)

		unsigned, err := BuildAt(fixedTime, peerCommands(), "admin@test", 1)
		require.NoError(t, err)

		signed, err := Sign(unsigned, kp)
		require.NoError(t, err)
		require.Len(t, signed.Signatures, 1)
		require.Equal(t, []byte(kp.Public), []byte(signed.Signatures[0].PublicKey))
		require.Empty(t, unsigned.Signatures, "input transaction must stay unsigned")

		n, err := Verify(signed)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		resigned, err := Sign(signed, kp)
		require.NoError(t, err)
		require.Len(t, resigned.Signatures, 1)
	}
}

func TestSign_CapturesCommandsByValue(t *testing.T) {
	t.Parallel()

	kp, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)

	cmds := peerCommands()
	unsigned, err := BuildAt(fixedTime, cmds, "admin@test", 1)
	require.NoError(t, err)
	signed, err := Sign(unsigned, kp)
	require.NoError(t, err)
	sigBefore := append([]byte(nil), signed.Signatures[0].Signature...)
	hashBefore := MustHash(signed.Payload)

	cmds[0].AddPeer.Peer.Address = "10.0.0.1:1"
	cmds[0].AddPeer.Peer.PublicKey[0] = 0x00

	require.Equal(t, sigBefore, []byte(signed.Signatures[0].Signature))
	require.Equal(t, hashBefore, MustHash(signed.Payload))
	_, err = Verify(signed)
	require.NoError(t, err)
}

func TestVerify_DetectsTamperingAndQuorum(t *testing.T) {
	t.Parallel()

	kp, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)

	unsigned, err := BuildAt(fixedTime, peerCommands(), "admin@test", 2)
	require.NoError(t, err)
	signed, err := Sign(unsigned, kp)
	require.NoError(t, err)

	n, err := Verify(signed)
	require.Error(t, err)
	require.Equal(t, 1, n)

	second, err := keys.Generate(keys.Secp256k1)
	require.NoError(t, err)
	both, err := Sign(signed, second)
	require.NoError(t, err)
	n, err = Verify(both)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	tampered := both.Clone()
	tampered.Payload.Commands[0].AddPeer.Peer.Address = "evil:1"
	_, err = Verify(tampered)
	require.Error(t, err)
}

func TestVerify_RequiresQuorumAndSignatures(t *testing.T) {
	t.Parallel()

	unsigned, err := BuildAt(fixedTime, peerCommands(), "admin@test", 1)
	require.NoError(t, err)
	_, err = Verify(unsigned)
	require.Error(t, err)

	zero := unsigned.Clone()
	zero.Payload.Quorum = 0
	n, err := Verify(zero)
	require.Error(t, err)
	require.Zero(t, n)

	kp, err := keys.Generate(keys.Ed25519)
	require.NoError(t, err)
	signed, err := Sign(zero, kp)
	require.NoError(t, err)
	_, err = Verify(signed)
	require.Error(t, err)
}

func TestSign_InvalidKey(t *testing.T) {
	t.Parallel()

	unsigned, err := BuildAt(fixedTime, peerCommands(), "admin@test", 1)
	require.NoError(t, err)

	_, err = Sign(unsigned, keys.KeyPair{Scheme: keys.Ed25519})
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = Sign(unsigned, keys.KeyPair{Scheme: keys.Secp256k1, Private: make([]byte, 32)})
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}
