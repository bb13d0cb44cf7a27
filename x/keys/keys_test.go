package keys

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/compose-network/ledger-harness/x/errs"
)

func TestGenerateSignVerify(t *testing.T) {
	t.Parallel()

	digest := sha256.Sum256([]byte("payload"))
	for _, scheme := range []Scheme{Ed25519, Secp256k1} {
		kp, err := Generate(scheme)
		require.NoError(t, err, scheme)

		sig, err := kp.Sign(digest[:])
		require.NoError(t, err, scheme)
		require.True(t, Verify(scheme, kp.Public, digest[:], sig), scheme)

		other := sha256.Sum256([]byte("other"))
		require.False(t, Verify(scheme, kp.Public, other[:], sig), scheme)
	}
}

func TestFromPrivateRoundTrip(t *testing.T) {
	t.Parallel()

	for _, scheme := range []Scheme{Ed25519, Secp256k1} {
		kp, err := Generate(scheme)
		require.NoError(t, err)

		loaded, err := FromPrivateHex(scheme, "0x"+kp.PrivateHex())
		require.NoError(t, err)
		require.True(t, bytes.Equal(kp.Public, loaded.Public), scheme)
	}
}

func TestInvalidKey(t *testing.T) {
	t.Parallel()

	_, err := FromPrivateHex(Ed25519, "zz")
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = FromPrivateHex(Ed25519, "abcd")
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = FromPrivate(Secp256k1, make([]byte, 32))
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = ParseScheme("rsa")
	require.ErrorIs(t, err, errs.ErrInvalidKey)

	_, err = KeyPair{Scheme: Ed25519, Private: []byte{1}}.Sign(make([]byte, 32))
	require.ErrorIs(t, err, errs.ErrInvalidKey)
}

func TestVerifyRejectsBadLengths(t *testing.T) {
	t.Parallel()

	require.False(t, Verify(Ed25519, []byte{1, 2}, make([]byte, 32), make([]byte, 64)))
	require.False(t, Verify(Secp256k1, make([]byte, 33), make([]byte, 32), make([]byte, 65)))
	require.False(t, Verify("unknown", nil, nil, nil))
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	kp, err := Generate(Ed25519)
	require.NoError(t, err)

	id, err := NewIdentity("admin@test", Ed25519, kp.PrivateHex())
	require.NoError(t, err)
	require.Equal(t, kp.Public, id.Key.Public)

	_, err = NewIdentity("admin", Ed25519, kp.PrivateHex())
	require.Error(t, err)
	require.False(t, ValidAccountID("a@b@c"))
	require.NotContains(t, kp.String(), kp.PrivateHex())
}

func TestEnvLines(t *testing.T) {
	t.Parallel()

	one := make([]byte, 32)
	one[31] = 1
	kp, err := FromPrivate(Secp256k1, one)
	require.NoError(t, err)

	out := EnvLines("seq1", kp)
	require.Contains(t, out, "SEQ1_SCHEME=secp256k1\n")
	require.Contains(t, out, "SEQ1_PRIV=0000000000000000000000000000000000000000000000000000000000000001\n")
	require.Contains(t, out, "SEQ1_PUB=0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798\n")
	require.Contains(t, out, "SEQ1_ADDR=0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf\n")

	ed, err := Generate(Ed25519)
	require.NoError(t, err)
	require.NotContains(t, EnvLines("admin", ed), "_ADDR=")
}
