package memchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lapolinarweb/contracts/internal/chain"
)

const tokenABIJSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// TokenABI is the minimal ERC-20 surface understood by Token.
var TokenABI = mustParseABI(tokenABIJSON)

const tokenCallGas uint64 = 29000

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("memchain: parse abi: %v", err))
	}
	return parsed
}

// Token is ERC-20 style contract code backed by the chain's token ledger.
// It is installed at the token's own address.
type Token struct{}

// Run implements Contract.
func (Token) Run(_ context.Context, env *Env, msg chain.Message) ([]byte, uint64, error) {
	if len(msg.Data) < 4 {
		return nil, tokenCallGas, chain.ErrExecutionReverted
	}
	method, err := TokenABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, tokenCallGas, chain.ErrExecutionReverted
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, tokenCallGas, chain.ErrExecutionReverted
	}

	switch method.Name {
	case "transfer":
		to := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if err := env.TransferToken(msg.To, msg.From, to, amount); err != nil {
			return nil, tokenCallGas, fmt.Errorf("%w: %v", chain.ErrExecutionReverted, err)
		}
		out, err := method.Outputs.Pack(true)
		return out, tokenCallGas, err
	case "balanceOf":
		out, err := method.Outputs.Pack(env.TokenBalanceOf(msg.To, args[0].(common.Address)))
		return out, tokenCallGas, err
	}
	return nil, tokenCallGas, chain.ErrExecutionReverted
}

// PackTransfer encodes transfer(to, amount) calldata.
func PackTransfer(to common.Address, amount *big.Int) []byte {
	data, err := TokenABI.Pack("transfer", to, amount)
	if err != nil {
		panic(err)
	}
	return data
}

// Reverter is contract code that always reverts after burning gas.
func Reverter(gas uint64) Contract {
	return ContractFunc(func(context.Context, *Env, chain.Message) ([]byte, uint64, error) {
		return nil, gas, chain.ErrExecutionReverted
	})
}

// Sink is contract code that accepts any call and burns gas.
func Sink(gas uint64) Contract {
	return ContractFunc(func(context.Context, *Env, chain.Message) ([]byte, uint64, error) {
		return nil, gas, nil
	})
}
