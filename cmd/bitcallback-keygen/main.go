// Command bitcallback-keygen generates a PEM-encoded secp256k1 signing key
// for bitcallbackd's SIGNKEY_PATH config value.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/secnot/bitcallback/bitcallback/dispatch"
)

func main() {
	out := flag.String("out", "signkey.pem", "path to write the generated key")
	force := flag.Bool("force", false, "overwrite an existing file")
	flag.Parse()

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			fmt.Fprintf(os.Stderr, "%s already exists, pass -force to overwrite\n", *out)
			os.Exit(1)
		}
	}

	key, err := dispatch.GenerateKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to generate key:", err)
		os.Exit(1)
	}

	if err := dispatch.SaveKey(*out, key); err != nil {
		fmt.Fprintln(os.Stderr, "failed to save key:", err)
		os.Exit(1)
	}

	fmt.Printf("wrote signing key to %s\n", *out)
}
