package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Hash identifies a transaction or block.
type Hash [32]byte

// ParseHash reads a 64-character hex string, 0x optional.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("invalid hash length %d", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Short is the first eight hex characters, for logs.
func (h Hash) Short() string { return h.String()[:8] }

func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (h Hash) MarshalYAML() (any, error) { return h.String(), nil }
