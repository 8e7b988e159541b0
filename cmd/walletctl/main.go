// Command walletctl creates keys, signs meta-transactions and talks to a
// wallet relayer.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "walletctl",
	Short: "Smart wallet meta-transaction tool",
	Long: `walletctl signs meta-transactions for smart wallets and submits them to a relayer.

Examples:
  # Create a login key
  walletctl keygen

  # Sign and relay a call with an auth key
  walletctl relay --account 0xWallet --to 0xTarget --data 0x... --key $AUTH_KEY

  # Build calldata that adds a login key, then relay it as a self-call
  walletctl admin add-login-key 0xLoginKey --expires 720h`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./walletctl.yaml)")
	rootCmd.PersistentFlags().String("rpc", "http://localhost:8545/rpc", "relayer JSON-RPC endpoint")
	rootCmd.PersistentFlags().Int64("chain-id", 1, "chain ID the wallet lives on")
	rootCmd.PersistentFlags().String("api-key", "", "relayer API key (required for account create)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")

	_ = viper.BindPFlag("rpc", rootCmd.PersistentFlags().Lookup("rpc"))
	_ = viper.BindPFlag("chain_id", rootCmd.PersistentFlags().Lookup("chain-id"))
	_ = viper.BindPFlag("api_key", rootCmd.PersistentFlags().Lookup("api-key"))
}

// initConfig reads an optional config file and WALLETCTL_ environment
// variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("walletctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("WALLETCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	switch output {
	case "text", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unknown output format %q", output)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
