// Small helper to generate dev keys for a local ledger network and print them
// in .env form: the admin signatory (ed25519) plus one key per node.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/compose-network/ledger-harness/x/keys"
)

func gen(label string, scheme keys.Scheme) {
	kp, err := keys.Generate(scheme)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(keys.EnvLines(label, kp))
}

func main() {
	nodes := flag.Int("nodes", 5, "number of node keys")
	scheme := flag.String("scheme", "ed25519", "key scheme for node keys (ed25519, secp256k1)")
	flag.Parse()

	s, err := keys.ParseScheme(*scheme)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	gen("ADMIN", keys.Ed25519)
	for i := 1; i <= *nodes; i++ {
		gen(fmt.Sprintf("NODE%d", i), s)
	}
}
