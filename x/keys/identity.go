package keys

import (
	"fmt"
	"strings"
)

// Identity is the account the harness acts as.
type Identity struct {
	AccountID string
	Key       KeyPair
}

// NewIdentity loads an identity from a hex private key.
func NewIdentity(accountID string, scheme Scheme, privHex string) (Identity, error) {
	if !ValidAccountID(accountID) {
		return Identity{}, fmt.Errorf("invalid account id %q, expected name@domain", accountID)
	}
	kp, err := FromPrivateHex(scheme, privHex)
	if err != nil {
		return Identity{}, err
	}
	return Identity{AccountID: accountID, Key: kp}, nil
}

// ValidAccountID checks the name@domain shape.
func ValidAccountID(id string) bool {
	name, domain, ok := strings.Cut(id, "@")
	return ok && name != "" && domain != "" && !strings.Contains(domain, "@")
}
