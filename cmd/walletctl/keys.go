package main

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 key for use as an auth or login key",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}
		out := struct {
			Address    string `json:"address"`
			PrivateKey string `json:"privateKey"`
		}{
			Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
			PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
		}
		if ok, err := printValue(out); ok {
			return err
		}
		printf("Address:     %s\n", out.Address)
		printf("Private key: %s\n", out.PrivateKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}

// loadKey reads a private key from --key or, if it names a file, from disk.
func loadKey(cmd *cobra.Command) (*ecdsa.PrivateKey, error) {
	s, _ := cmd.Flags().GetString("key")
	if s == "" {
		return nil, fmt.Errorf("--key is required")
	}
	if raw, err := os.ReadFile(s); err == nil {
		s = string(raw)
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}
