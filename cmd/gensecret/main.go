// Prints random hex secret suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

// HKDF derives every signing key from it, 32 bytes match HS256 key size
const minSecretBytes = 32

func main() {
	size := pflag.IntP("bytes", "b", minSecretBytes, "Secret length in bytes")
	pflag.Parse()

	if *size < minSecretBytes {
		fmt.Fprintf(os.Stderr, "secret must be at least %d bytes\n", minSecretBytes)
		os.Exit(1)
	}

	b := make([]byte, *size)
	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
