package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/compose-network/ledger-harness/x/errs"
)

// Scheme names a signature algorithm.
type Scheme string

const (
	Ed25519   Scheme = "ed25519"
	Secp256k1 Scheme = "secp256k1"
)

// ParseScheme accepts the scheme names used in config files.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(strings.TrimSpace(s))) {
	case Ed25519, "":
		return Ed25519, nil
	case Secp256k1:
		return Secp256k1, nil
	default:
		return "", errs.Newf(errs.KindInvalidKey, "parse scheme", "unsupported scheme %q", s)
	}
}

// KeyPair holds raw key bytes. Private is an ed25519 seed or a secp256k1 scalar;
// Public is the raw ed25519 key or a compressed secp256k1 point.
type KeyPair struct {
	Scheme  Scheme
	Private []byte
	Public  []byte
}

// Generate creates a fresh key pair.
func Generate(scheme Scheme) (KeyPair, error) {
	switch scheme {
	case Ed25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return KeyPair{Scheme: Ed25519, Private: priv.Seed(), Public: []byte(pub)}, nil
	case Secp256k1:
		key, err := crypto.GenerateKey()
		if err != nil {
			return KeyPair{}, fmt.Errorf("generate secp256k1 key: %w", err)
		}
		return KeyPair{
			Scheme:  Secp256k1,
			Private: crypto.FromECDSA(key),
			Public:  crypto.CompressPubkey(&key.PublicKey),
		}, nil
	default:
		return KeyPair{}, errs.Newf(errs.KindInvalidKey, "generate", "unsupported scheme %q", scheme)
	}
}

// FromPrivate derives the public key from raw private key bytes.
func FromPrivate(scheme Scheme, priv []byte) (KeyPair, error) {
	switch scheme {
	case Ed25519:
		var seed []byte
		switch len(priv) {
		case ed25519.SeedSize:
			seed = priv
		case ed25519.PrivateKeySize:
			seed = ed25519.PrivateKey(priv).Seed()
		default:
			return KeyPair{}, errs.Newf(errs.KindInvalidKey, "load key",
				"ed25519 private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(priv))
		}
		full := ed25519.NewKeyFromSeed(seed)
		return KeyPair{
			Scheme:  Ed25519,
			Private: append([]byte(nil), seed...),
			Public:  append([]byte(nil), full.Public().(ed25519.PublicKey)...),
		}, nil
	case Secp256k1:
		key, err := crypto.ToECDSA(priv)
		if err != nil {
			return KeyPair{}, errs.New(errs.KindInvalidKey, "load key", "malformed secp256k1 private key").WithCause(err)
		}
		return KeyPair{
			Scheme:  Secp256k1,
			Private: crypto.FromECDSA(key),
			Public:  crypto.CompressPubkey(&key.PublicKey),
		}, nil
	default:
		return KeyPair{}, errs.Newf(errs.KindInvalidKey, "load key", "unsupported scheme %q", scheme)
	}
}

// FromPrivateHex is FromPrivate for a hex string, with or without 0x.
func FromPrivateHex(scheme Scheme, s string) (KeyPair, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return KeyPair{}, errs.New(errs.KindInvalidKey, "load key", "private key is not hex").WithCause(err)
	}
	return FromPrivate(scheme, raw)
}

// Sign signs a 32-byte digest.
func (k KeyPair) Sign(digest []byte) ([]byte, error) {
	switch k.Scheme {
	case Ed25519:
		if len(k.Private) != ed25519.SeedSize {
			return nil, errs.New(errs.KindInvalidKey, "sign", "ed25519 seed has wrong length")
		}
		return ed25519.Sign(ed25519.NewKeyFromSeed(k.Private), digest), nil
	case Secp256k1:
		key, err := crypto.ToECDSA(k.Private)
		if err != nil {
			return nil, errs.New(errs.KindInvalidKey, "sign", "malformed secp256k1 private key").WithCause(err)
		}
		sig, err := crypto.Sign(digest, key)
		if err != nil {
			return nil, fmt.Errorf("secp256k1 sign: %w", err)
		}
		// drop the recovery id
		return sig[:64], nil
	default:
		return nil, errs.Newf(errs.KindInvalidKey, "sign", "unsupported scheme %q", k.Scheme)
	}
}

// Verify checks sig over digest with a raw public key.
func Verify(scheme Scheme, pub, digest, sig []byte) bool {
	switch scheme {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub), digest, sig)
	case Secp256k1:
		if len(sig) != 64 || len(digest) != 32 {
			return false
		}
		return crypto.VerifySignature(pub, digest, sig)
	default:
		return false
	}
}

// PublicHex returns the public key in lowercase hex.
func (k KeyPair) PublicHex() string { return hex.EncodeToString(k.Public) }

// PrivateHex returns the private key in lowercase hex.
func (k KeyPair) PrivateHex() string { return hex.EncodeToString(k.Private) }

// String never prints the private key.
func (k KeyPair) String() string {
	return fmt.Sprintf("%s:%s", k.Scheme, k.PublicHex())
}
