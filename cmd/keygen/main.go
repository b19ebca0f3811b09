package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/tjfontaine/frenet-gateway/internal/pkg/auth"
)

func main() {
	apiKey, err := keyFromArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	keyHash := auth.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("admin:\n")
	fmt.Printf("  api_keys:\n")
	fmt.Printf("    - key_hash: \"%s\"\n", keyHash)
	fmt.Printf("      description: \"Generated key\"\n")
}

// keyFromArgs returns the key given on the command line, or a random one.
func keyFromArgs(args []string) (string, error) {
	if len(args) > 1 {
		return "", fmt.Errorf("usage: keygen [api-key]")
	}
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "fgw_" + hex.EncodeToString(buf), nil
}
