package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/lapolinarweb/contracts/internal/jsonrpc"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Create and inspect wallets on the relayer",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <address>",
	Short: "Initialize a deployed wallet with its first auth key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := hexAddress("account", args[0])
		if err != nil {
			return err
		}
		authStr, _ := cmd.Flags().GetString("auth-key")
		authKey, err := hexAddress("auth key", authStr)
		if err != nil {
			return err
		}
		params := jsonrpc.CreateAccountParams{AuthKey: &authKey, Address: &addr}
		params.Version, _ = cmd.Flags().GetString("version")
		if s, _ := cmd.Flags().GetString("implementation"); s != "" {
			if params.Implementation, err = hexAddress("implementation", s); err != nil {
				return err
			}
		}

		var view json.RawMessage
		if err := rpcCall(cmd.Context(), "wallet_createAccount", []any{params}, &view); err != nil {
			return err
		}
		return printAccount(view)
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show a wallet's keys, firewall and pending timelock changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := hexAddress("account", args[0])
		if err != nil {
			return err
		}
		var view json.RawMessage
		if err := rpcCall(cmd.Context(), "wallet_getAccount", []any{addr}, &view); err != nil {
			return err
		}
		return printAccount(view)
	},
}

var nonceCmd = &cobra.Command{
	Use:   "nonce <address>",
	Short: "Print the next meta-transaction nonce of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := hexAddress("account", args[0])
		if err != nil {
			return err
		}
		var nonce hexutil.Uint64
		if err := rpcCall(cmd.Context(), "wallet_getNonce", []any{addr}, &nonce); err != nil {
			return err
		}
		if ok, err := printValue(map[string]uint64{"nonce": uint64(nonce)}); ok {
			return err
		}
		printf("%d\n", uint64(nonce))
		return nil
	},
}

var receiptCmd = &cobra.Command{
	Use:   "receipt <id>",
	Short: "Show a relay receipt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var receipt jsonrpc.ReceiptResult
		if err := rpcCall(cmd.Context(), "wallet_getReceipt", []any{args[0]}, &receipt); err != nil {
			return err
		}
		if ok, err := printValue(receipt); ok {
			return err
		}
		printReceipt(&receipt)
		return nil
	},
}

var verifyMethods = map[string]string{
	"any":   "wallet_isValidSignature",
	"auth":  "wallet_isValidAuthKeySignature",
	"login": "wallet_isValidLoginKeySignature",
}

var verifyCmd = &cobra.Command{
	Use:   "verify <account> <hash> <signature>",
	Short: "Ask the wallet whether a signature is valid (ERC-1271)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := hexAddress("account", args[0])
		if err != nil {
			return err
		}
		hash, err := hexutil.Decode(args[1])
		if err != nil || len(hash) != common.HashLength {
			return fmt.Errorf("invalid hash %q", args[1])
		}
		sig, err := hexutil.Decode(args[2])
		if err != nil {
			return fmt.Errorf("invalid signature: %w", err)
		}
		scope, _ := cmd.Flags().GetString("scope")
		method, ok := verifyMethods[scope]
		if !ok {
			return fmt.Errorf("unknown scope %q: want any, auth or login", scope)
		}

		var magic hexutil.Bytes
		if err := rpcCall(cmd.Context(), method, []any{addr, common.BytesToHash(hash), hexutil.Bytes(sig)}, &magic); err != nil {
			return err
		}
		valid := magic.String() == jsonrpc.MagicValue.String()
		if ok, err := printValue(map[string]any{"valid": valid, "result": magic}); ok {
			return err
		}
		if valid {
			printf("valid (%s)\n", magic)
		} else {
			printf("invalid (%s)\n", magic)
		}
		return nil
	},
}

func printAccount(raw json.RawMessage) error {
	var view any
	if err := json.Unmarshal(raw, &view); err != nil {
		return err
	}
	if ok, err := printValue(view); ok {
		return err
	}
	pretty, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	printf("%s\n", pretty)
	return nil
}

func init() {
	accountCreateCmd.Flags().String("auth-key", "", "first auth key address")
	accountCreateCmd.Flags().String("implementation", "", "implementation address")
	accountCreateCmd.Flags().String("version", "", "implementation version")
	_ = accountCreateCmd.MarkFlagRequired("auth-key")

	verifyCmd.Flags().String("scope", "any", "keys to accept: any, auth or login")

	accountCmd.AddCommand(accountCreateCmd, accountShowCmd)
	rootCmd.AddCommand(accountCmd, nonceCmd, receiptCmd, verifyCmd)
}
