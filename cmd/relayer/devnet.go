package main

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lapolinarweb/contracts/internal/chain/memchain"
	"github.com/lapolinarweb/contracts/internal/config"
)

// contractCallGas is the gas burned by seeded placeholder contracts.
const contractCallGas = 5000

// newDevnet builds the in-memory chain and seeds it from cfg.
func newDevnet(cfg config.DevnetConfig) (*memchain.Chain, error) {
	c := memchain.New()

	for addr, amount := range cfg.Balances {
		a, v, err := parseSeed(addr, amount)
		if err != nil {
			return nil, fmt.Errorf("devnet.balances: %w", err)
		}
		c.Fund(a, v)
	}

	for _, token := range cfg.Tokens {
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("devnet.tokens: invalid address %q", token)
		}
		c.Deploy(common.HexToAddress(token), memchain.Token{})
	}

	for token, holders := range cfg.TokenBalances {
		if !common.IsHexAddress(token) {
			return nil, fmt.Errorf("devnet.token_balances: invalid token %q", token)
		}
		for holder, amount := range holders {
			h, v, err := parseSeed(holder, amount)
			if err != nil {
				return nil, fmt.Errorf("devnet.token_balances: %w", err)
			}
			c.FundToken(common.HexToAddress(token), h, v)
		}
	}

	for _, addr := range cfg.Contracts {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("devnet.contracts: invalid address %q", addr)
		}
		c.Deploy(common.HexToAddress(addr), memchain.Sink(contractCallGas))
	}
	return c, nil
}

func parseSeed(addr, amount string) (common.Address, *big.Int, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, nil, fmt.Errorf("invalid address %q", addr)
	}
	v, ok := new(big.Int).SetString(amount, 10)
	if !ok || v.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("invalid amount %q for %s", amount, addr)
	}
	return common.HexToAddress(addr), v, nil
}
