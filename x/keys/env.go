package keys

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// EnvLines renders a key pair as LABEL_PRIV / LABEL_PUB lines for .env files.
// secp256k1 keys also get LABEL_ADDR, the Ethereum-style address.
func EnvLines(label string, k KeyPair) string {
	label = strings.ToUpper(label)
	var b strings.Builder
	fmt.Fprintf(&b, "%s_SCHEME=%s\n", label, k.Scheme)
	fmt.Fprintf(&b, "%s_PRIV=%s\n", label, k.PrivateHex())
	fmt.Fprintf(&b, "%s_PUB=%s\n", label, k.PublicHex())
	if k.Scheme == Secp256k1 {
		if pub, err := crypto.DecompressPubkey(k.Public); err == nil {
			fmt.Fprintf(&b, "%s_ADDR=%s\n", label, crypto.PubkeyToAddress(*pub).Hex())
		}
	}
	return b.String()
}
