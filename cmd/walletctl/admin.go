package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/lapolinarweb/contracts/internal/account"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Build calldata for wallet administration",
	Long: `Build ABI-encoded calldata for the wallet's administrative functions.

Key management may be called directly by an auth key. Firewall and timelock
functions must be sent by the wallet itself: relay the calldata with --to set
to the wallet address.

Examples:
  walletctl admin add-login-key 0xLoginKey --expires 720h --selector 0xa9059cbb
  walletctl admin initiate-change maxGasPrice 0x...
  walletctl relay --account 0xWallet --to 0xWallet --data $(walletctl admin execute-change maxGasPrice) --key ...`,
}

// adminCommand builds a subcommand that prints the calldata of pack(args).
func adminCommand(use, short string, nargs int, pack func(cmd *cobra.Command, args []string) ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := pack(cmd, args)
			if err != nil {
				return err
			}
			out := struct {
				Data hexutil.Bytes `json:"data"`
			}{Data: data}
			if ok, err := printValue(out); ok {
				return err
			}
			printf("%s\n", out.Data)
			return nil
		},
	}
}

func addressArg(s string) (common.Address, error) {
	return hexAddress("key", s)
}

func selectorArg(s string) ([4]byte, error) {
	var sel [4]byte
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != 4 {
		return sel, fmt.Errorf("invalid selector %q: want 4 bytes of hex", s)
	}
	copy(sel[:], b)
	return sel, nil
}

func fieldArg(s string) ([32]byte, error) {
	f, err := account.ParseField(s)
	if err != nil {
		return [32]byte{}, err
	}
	return [32]byte(f), nil
}

// valueArg accepts a 32-byte word, an address or a decimal amount.
func valueArg(s string) ([32]byte, error) {
	switch {
	case common.IsHexAddress(s):
		return [32]byte(common.BytesToHash(common.HexToAddress(s).Bytes())), nil
	case strings.HasPrefix(s, "0x"):
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != common.HashLength {
			return [32]byte{}, fmt.Errorf("invalid value %q: want 32 bytes of hex", s)
		}
		return [32]byte(common.BytesToHash(b)), nil
	}
	v, err := parseValue(s)
	if err != nil {
		return [32]byte{}, err
	}
	return [32]byte(common.BigToHash(v)), nil
}

func keyCall(method string) func(*cobra.Command, []string) ([]byte, error) {
	return func(_ *cobra.Command, args []string) ([]byte, error) {
		addr, err := addressArg(args[0])
		if err != nil {
			return nil, err
		}
		return account.PackAdminCall(method, addr)
	}
}

func firewallCall(method string) func(*cobra.Command, []string) ([]byte, error) {
	return func(_ *cobra.Command, args []string) ([]byte, error) {
		target, err := hexAddress("target", args[0])
		if err != nil {
			return nil, err
		}
		sel := [4]byte{}
		if len(args) > 1 {
			if sel, err = selectorArg(args[1]); err != nil {
				return nil, err
			}
		}
		return account.PackAdminCall(method, target, sel)
	}
}

func fieldCall(method string) func(*cobra.Command, []string) ([]byte, error) {
	return func(_ *cobra.Command, args []string) ([]byte, error) {
		field, err := fieldArg(args[0])
		if err != nil {
			return nil, err
		}
		return account.PackAdminCall(method, field)
	}
}

func packAddLoginKey(cmd *cobra.Command, args []string) ([]byte, error) {
	addr, err := addressArg(args[0])
	if err != nil {
		return nil, err
	}
	ttl, _ := cmd.Flags().GetDuration("expires")
	selectorStrs, _ := cmd.Flags().GetStringSlice("selector")

	selectors := make([][4]byte, 0, len(selectorStrs))
	for _, s := range selectorStrs {
		sel, err := selectorArg(s)
		if err != nil {
			return nil, err
		}
		selectors = append(selectors, sel)
	}
	restrictions, err := account.EncodeRestrictions(time.Now().Add(ttl), selectors...)
	if err != nil {
		return nil, err
	}
	return account.PackAdminCall("addLoginKey", addr, restrictions)
}

func packInitiateChange(_ *cobra.Command, args []string) ([]byte, error) {
	field, err := fieldArg(args[0])
	if err != nil {
		return nil, err
	}
	value, err := valueArg(args[1])
	if err != nil {
		return nil, err
	}
	return account.PackAdminCall("initiateChange", field, value)
}

func init() {
	addLoginKey := adminCommand("add-login-key <address>", "Add a login key with an expiry and optional selector allow-list", 1, packAddLoginKey)
	addLoginKey.Flags().Duration("expires", 30*24*time.Hour, "time until the login key expires")
	addLoginKey.Flags().StringSlice("selector", nil, "allowed function selector (repeatable)")

	addFirewall := adminCommand("add-firewall-entry <target> [selector]", "Block a target, or one function of it", 0, firewallCall("addFirewallEntry"))
	addFirewall.Args = cobra.RangeArgs(1, 2)
	removeFirewall := adminCommand("remove-firewall-entry <target> [selector]", "Unblock a firewall entry", 0, firewallCall("removeFirewallEntry"))
	removeFirewall.Args = cobra.RangeArgs(1, 2)

	adminCmd.AddCommand(
		adminCommand("add-auth-key <address>", "Add an auth key", 1, keyCall("addAuthKey")),
		adminCommand("remove-auth-key <address>", "Remove an auth key", 1, keyCall("removeAuthKey")),
		addLoginKey,
		adminCommand("remove-login-key <address>", "Remove a login key", 1, keyCall("removeLoginKey")),
		addFirewall,
		removeFirewall,
		adminCommand("initiate-change <field> <value>", "Start a timelocked change of implementation or maxGasPrice", 2, packInitiateChange),
		adminCommand("execute-change <field>", "Apply an unlocked timelock change", 1, fieldCall("executeChange")),
		adminCommand("cancel-change <field>", "Cancel a pending timelock change", 1, fieldCall("cancelChange")),
	)
	rootCmd.AddCommand(adminCmd)
}
