// Package chain describes the execution substrate a wallet account runs on.
//
// The substrate owns balances, token ledgers and contract code. The account
// engine never meters gas or stores trie state itself: it asks the Backend to
// move value, run an inner call, and take or roll back a snapshot.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Substrate errors.
var (
	ErrExecutionReverted   = errors.New("chain: execution reverted")
	ErrOutOfGas            = errors.New("chain: out of gas")
	ErrInsufficientBalance = errors.New("chain: insufficient balance")
	ErrUnknownSnapshot     = errors.New("chain: unknown snapshot")
)

// TransferGas is the intrinsic cost charged for a call to an address with no code.
const TransferGas uint64 = 21000

// Message is a single inner call made by an account.
type Message struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Result is the outcome of running a Message.
type Result struct {
	ReturnData []byte
	GasUsed    uint64
	Err        error
}

// Failed reports whether the call reverted.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Backend is the substrate contract.
type Backend interface {
	BalanceOf(addr common.Address) *big.Int
	TokenBalanceOf(token, holder common.Address) *big.Int
	Transfer(from, to common.Address, amount *big.Int) error
	TransferToken(token, from, to common.Address, amount *big.Int) error
	Call(ctx context.Context, msg Message) Result
	CodeSize(addr common.Address) int
	Snapshot() int
	RevertToSnapshot(id int) error
	// DiscardSnapshot forgets id and every later snapshot, keeping the
	// current state.
	DiscardSnapshot(id int)
}
