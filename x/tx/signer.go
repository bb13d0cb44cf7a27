package tx

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/compose-network/ledger-harness/x/errs"
	"github.com/compose-network/ledger-harness/x/keys"
	"github.com/compose-network/ledger-harness/x/ledger"
)

// Sign returns a copy of t carrying a signature by kp over the payload hash.
// A previous signature by the same public key is replaced, so each key appears
// at most once.
func Sign(t ledger.Transaction, kp keys.KeyPair) (ledger.Transaction, error) {
	if len(kp.Private) == 0 {
		return ledger.Transaction{}, errs.New(errs.KindInvalidKey, "sign", "private key is empty")
	}
	if len(t.Payload.Commands) == 0 {
		return ledger.Transaction{}, errs.New(errs.KindMalformedCommand, "sign", "command list is empty")
	}

	h, err := Hash(t.Payload)
	if err != nil {
		return ledger.Transaction{}, errs.New(errs.KindMalformedCommand, "sign", "payload cannot be encoded").WithCause(err)
	}
	sig, err := kp.Sign(h[:])
	if err != nil {
		return ledger.Transaction{}, err
	}

	out := t.Clone()
	kept := out.Signatures[:0]
	for _, s := range out.Signatures {
		if !bytes.Equal(s.PublicKey, kp.Public) {
			kept = append(kept, s)
		}
	}
	out.Signatures = append(kept, ledger.Signature{
		Scheme:    string(kp.Scheme),
		PublicKey: append([]byte(nil), kp.Public...),
		Signature: sig,
	})
	return out, nil
}

// Verify checks every signature and that distinct signers reach the quorum.
// It returns the number of distinct valid signers.
func Verify(t ledger.Transaction) (int, error) {
	if t.Payload.Quorum < 1 {
		return 0, fmt.Errorf("quorum must be at least 1, got %d", t.Payload.Quorum)
	}
	if len(t.Signatures) == 0 {
		return 0, errors.New("transaction is unsigned")
	}
	h, err := Hash(t.Payload)
	if err != nil {
		return 0, fmt.Errorf("hash payload: %w", err)
	}

	seen := make(map[string]struct{}, len(t.Signatures))
	for i, s := range t.Signatures {
		if !keys.Verify(keys.Scheme(s.Scheme), s.PublicKey, h[:], s.Signature) {
			return 0, fmt.Errorf("signature %d by %x does not verify", i, []byte(s.PublicKey))
		}
		seen[string(s.PublicKey)] = struct{}{}
	}

	if uint32(len(seen)) < t.Payload.Quorum {
		return len(seen), fmt.Errorf("%d distinct signatures, quorum is %d", len(seen), t.Payload.Quorum)
	}
	return len(seen), nil
}
