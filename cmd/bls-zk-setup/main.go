// BLS ZK Setup CLI
// Generates the proving/verifying key pair the hub-side consensus-proof
// verifier checks a BLS-aggregate signature proof against, run once per
// deployment and committed alongside the relay topology config.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/certen/independant-validator/pkg/crypto/bls_zkp"
)

func main() {
	var (
		pkPath = flag.String("pk", "bls_proving_key.bin", "Output path for the proving key")
		vkPath = flag.String("vk", "bls_verifying_key.bin", "Output path for the verifying key")
		csPath = flag.String("cs", "bls_constraint_system.bin", "Output path for the compiled constraint system")
	)
	flag.Parse()

	prover := bls_zkp.NewBLSZKProver()
	if err := prover.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "initialize prover: %v\n", err)
		os.Exit(1)
	}

	if err := prover.SaveKeys(*pkPath, *vkPath, *csPath); err != nil {
		fmt.Fprintf(os.Stderr, "save keys: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote proving key to %s, verifying key to %s, constraint system to %s\n", *pkPath, *vkPath, *csPath)
}
