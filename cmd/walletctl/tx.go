package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/jsonrpc"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a meta-transaction without submitting it",
	Long: `Sign a meta-transaction and print the wallet_relay parameters.

Examples:
  walletctl sign --account 0xWallet --to 0xTarget --data 0xa9059cbb... \
    --gas-price 20gwei --gas-limit 100000 --key ./login.key --key-class login -o yaml`,
	RunE: runSign,
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Sign a meta-transaction and submit it to the relayer",
	RunE:  runRelay,
}

func init() {
	for _, cmd := range []*cobra.Command{signCmd, relayCmd} {
		cmd.Flags().String("account", "", "wallet address")
		cmd.Flags().String("to", "", "call target (the wallet itself for admin calls)")
		cmd.Flags().String("value", "0", "value to send (e.g. 1ether, 0.5gwei)")
		cmd.Flags().String("data", "", "calldata (hex)")
		cmd.Flags().String("gas-price", "1gwei", "gas price used for the refund")
		cmd.Flags().Uint64("gas-limit", 200000, "gas limit of the inner call")
		cmd.Flags().Uint64("gas-overhead", 0, "extra gas claimed for the relay transaction")
		cmd.Flags().String("fee-token", "", "ERC-20 used for the refund (ETH if empty)")
		cmd.Flags().String("fee-token-rate", "0", "fee token units per 1e18 wei")
		cmd.Flags().Int64("nonce", -1, "nonce (fetched from the relayer if negative)")
		cmd.Flags().String("key-class", "auth", "signing key class: auth or login")
		cmd.Flags().String("key", "", "private key hex, or a file containing it")

		_ = cmd.MarkFlagRequired("account")
		_ = cmd.MarkFlagRequired("to")
		_ = cmd.MarkFlagRequired("key")
	}
	rootCmd.AddCommand(signCmd, relayCmd)
}

func hexAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, s)
	}
	return common.HexToAddress(s), nil
}

// buildMetaTx assembles and signs a meta-transaction from flags.
func buildMetaTx(ctx context.Context, cmd *cobra.Command) (*jsonrpc.RelayParams, error) {
	flags := cmd.Flags()

	accountStr, _ := flags.GetString("account")
	acct, err := hexAddress("account", accountStr)
	if err != nil {
		return nil, err
	}
	toStr, _ := flags.GetString("to")
	to, err := hexAddress("to", toStr)
	if err != nil {
		return nil, err
	}

	valueStr, _ := flags.GetString("value")
	value, err := parseValue(valueStr)
	if err != nil {
		return nil, fmt.Errorf("invalid value: %w", err)
	}
	gasPriceStr, _ := flags.GetString("gas-price")
	gasPrice, err := parseValue(gasPriceStr)
	if err != nil {
		return nil, fmt.Errorf("invalid gas price: %w", err)
	}

	var data []byte
	if dataStr, _ := flags.GetString("data"); dataStr != "" {
		if data, err = hexutil.Decode(dataStr); err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
	}

	var feeToken common.Address
	if s, _ := flags.GetString("fee-token"); s != "" {
		if feeToken, err = hexAddress("fee token", s); err != nil {
			return nil, err
		}
	}
	rateStr, _ := flags.GetString("fee-token-rate")
	rate, ok := new(big.Int).SetString(rateStr, 10)
	if !ok || rate.Sign() < 0 {
		return nil, fmt.Errorf("invalid fee token rate %q", rateStr)
	}

	classStr, _ := flags.GetString("key-class")
	class, err := account.ParseKeyClass(classStr)
	if err != nil {
		return nil, err
	}

	key, err := loadKey(cmd)
	if err != nil {
		return nil, err
	}

	nonce, _ := flags.GetInt64("nonce")
	if nonce < 0 {
		var n hexutil.Uint64
		if err := rpcCall(ctx, "wallet_getNonce", []any{acct}, &n); err != nil {
			return nil, fmt.Errorf("failed to fetch nonce: %w", err)
		}
		nonce = int64(n)
	}

	gasLimit, _ := flags.GetUint64("gas-limit")
	gasOverhead, _ := flags.GetUint64("gas-overhead")

	tx := &account.MetaTransaction{
		Nonce:        uint64(nonce),
		To:           to,
		Value:        value,
		Data:         data,
		GasPrice:     gasPrice,
		GasLimit:     gasLimit,
		GasOverhead:  gasOverhead,
		FeeToken:     feeToken,
		FeeTokenRate: rate,
		KeyClass:     class,
	}
	chainID := big.NewInt(viper.GetInt64("chain_id"))
	if err := account.SignMetaTransaction(key, chainID, acct, tx); err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return relayParams(acct, tx), nil
}

func relayParams(acct common.Address, tx *account.MetaTransaction) *jsonrpc.RelayParams {
	nonce := hexutil.Uint64(tx.Nonce)
	to := tx.To
	return &jsonrpc.RelayParams{
		Account:      &acct,
		To:           &to,
		Value:        (*hexutil.Big)(tx.Value),
		Data:         tx.Data,
		GasPrice:     (*hexutil.Big)(tx.GasPrice),
		GasLimit:     hexutil.Uint64(tx.GasLimit),
		GasOverhead:  hexutil.Uint64(tx.GasOverhead),
		FeeToken:     tx.FeeToken,
		FeeTokenRate: (*hexutil.Big)(tx.FeeTokenRate),
		Nonce:        &nonce,
		KeyClass:     tx.KeyClass.String(),
		Signature:    tx.Signature,
	}
}

func runSign(cmd *cobra.Command, args []string) error {
	params, err := buildMetaTx(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	if ok, err := printValue(params); ok {
		return err
	}
	printf("Signed meta-transaction for %s (nonce %d)\n", params.Account.Hex(), uint64(*params.Nonce))
	printf("Signature: %s\n", params.Signature)
	return nil
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	params, err := buildMetaTx(ctx, cmd)
	if err != nil {
		return err
	}

	var receipt jsonrpc.ReceiptResult
	if err := rpcCall(ctx, "wallet_relay", []any{params}, &receipt); err != nil {
		return err
	}
	if ok, err := printValue(receipt); ok {
		return err
	}
	printReceipt(&receipt)
	return nil
}

func printReceipt(r *jsonrpc.ReceiptResult) {
	printf("Receipt:  %s\n", r.ID)
	printf("  Account:  %s\n", r.Account)
	printf("  Nonce:    %d\n", uint64(r.Nonce))
	printf("  Signer:   %s (%s)\n", r.Signer, r.KeyClass)
	printf("  Outcome:  %s\n", r.Outcome)
	if r.RevertReason != nil {
		printf("  Reason:   %s\n", *r.RevertReason)
	}
	printf("  Gas used: %d\n", uint64(r.GasUsed))
	printf("  Refund:   %s\n", r.Refund)
}
