// Package memchain is an in-memory, journaled chain.Backend used by tests and
// the development relayer.
package memchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lapolinarweb/contracts/internal/chain"
)

// Contract is code installed at an address.
type Contract interface {
	Run(ctx context.Context, env *Env, msg chain.Message) (ret []byte, gasUsed uint64, err error)
}

// ContractFunc adapts a function to the Contract interface.
type ContractFunc func(ctx context.Context, env *Env, msg chain.Message) ([]byte, uint64, error)

// Run calls f.
func (f ContractFunc) Run(ctx context.Context, env *Env, msg chain.Message) ([]byte, uint64, error) {
	return f(ctx, env, msg)
}

type ledger struct {
	balances map[common.Address]*big.Int
	tokens   map[common.Address]map[common.Address]*big.Int
}

func newLedger() ledger {
	return ledger{
		balances: make(map[common.Address]*big.Int),
		tokens:   make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (l ledger) copy() ledger {
	out := newLedger()
	for addr, bal := range l.balances {
		out.balances[addr] = new(big.Int).Set(bal)
	}
	for token, holders := range l.tokens {
		m := make(map[common.Address]*big.Int, len(holders))
		for holder, bal := range holders {
			m[holder] = new(big.Int).Set(bal)
		}
		out.tokens[token] = m
	}
	return out
}

// Chain is the in-memory substrate. All exported methods are safe for
// concurrent use; a Call holds the chain lock for its whole duration.
type Chain struct {
	mu        sync.Mutex
	state     ledger
	code      map[common.Address]Contract
	snapshots []ledger
}

var _ chain.Backend = (*Chain)(nil)

// New creates an empty chain.
func New() *Chain {
	return &Chain{
		state: newLedger(),
		code:  make(map[common.Address]Contract),
	}
}

// Fund credits addr with amount wei.
func (c *Chain) Fund(addr common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(addr, amount)
}

// FundToken credits holder with amount units of token.
func (c *Chain) FundToken(token, holder common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creditToken(token, holder, amount)
}

// Deploy installs code at addr, replacing anything already there.
func (c *Chain) Deploy(addr common.Address, code Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

// BalanceOf returns the wei balance of addr.
func (c *Chain) BalanceOf(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceOf(addr)
}

// TokenBalanceOf returns holder's balance of token.
func (c *Chain) TokenBalanceOf(token, holder common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenBalanceOf(token, holder)
}

// Transfer moves amount wei from one address to another.
func (c *Chain) Transfer(from, to common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfer(from, to, amount)
}

// TransferToken moves amount units of token between holders.
func (c *Chain) TransferToken(token, from, to common.Address, amount *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transferToken(token, from, to, amount)
}

// CodeSize returns 1 when code is installed at addr and 0 otherwise.
func (c *Chain) CodeSize(addr common.Address) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.code[addr]; ok {
		return 1
	}
	return 0
}

// Snapshot records the current ledger and returns its id.
func (c *Chain) Snapshot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, c.state.copy())
	return len(c.snapshots) - 1
}

// RevertToSnapshot restores the ledger recorded by Snapshot and discards
// every later snapshot.
func (c *Chain) RevertToSnapshot(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= len(c.snapshots) {
		return fmt.Errorf("%w: %d", chain.ErrUnknownSnapshot, id)
	}
	c.state = c.snapshots[id]
	c.snapshots = c.snapshots[:id]
	return nil
}

// DiscardSnapshot forgets id and every later snapshot.
func (c *Chain) DiscardSnapshot(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id >= 0 && id < len(c.snapshots) {
		c.snapshots = c.snapshots[:id]
	}
}

// Call runs msg. Value moves first; if the callee fails, everything the call
// did is rolled back and the error is reported in the Result.
func (c *Chain) Call(ctx context.Context, msg chain.Message) chain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, msg)
}

func (c *Chain) call(ctx context.Context, msg chain.Message) chain.Result {
	if err := ctx.Err(); err != nil {
		return chain.Result{Err: err}
	}
	saved := c.state.copy()

	if msg.Value != nil && msg.Value.Sign() > 0 {
		if err := c.transfer(msg.From, msg.To, msg.Value); err != nil {
			return chain.Result{GasUsed: chain.TransferGas, Err: err}
		}
	}

	gasUsed := chain.TransferGas
	var (
		ret []byte
		err error
	)
	if code, ok := c.code[msg.To]; ok {
		var used uint64
		ret, used, err = code.Run(ctx, &Env{chain: c, ctx: ctx}, msg)
		gasUsed += used
	}
	if err == nil && msg.GasLimit > 0 && gasUsed > msg.GasLimit {
		gasUsed, err = msg.GasLimit, chain.ErrOutOfGas
	}
	if err != nil {
		c.state = saved
		return chain.Result{ReturnData: ret, GasUsed: gasUsed, Err: err}
	}
	return chain.Result{ReturnData: ret, GasUsed: gasUsed}
}

func (c *Chain) balanceOf(addr common.Address) *big.Int {
	if bal, ok := c.state.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (c *Chain) tokenBalanceOf(token, holder common.Address) *big.Int {
	if bal, ok := c.state.tokens[token][holder]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

func (c *Chain) credit(addr common.Address, amount *big.Int) {
	c.state.balances[addr] = new(big.Int).Add(c.balanceOf(addr), amount)
}

func (c *Chain) creditToken(token, holder common.Address, amount *big.Int) {
	holders, ok := c.state.tokens[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		c.state.tokens[token] = holders
	}
	holders[holder] = new(big.Int).Add(c.tokenBalanceOf(token, holder), amount)
}

func (c *Chain) transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("memchain: negative transfer amount %s", amount)
	}
	bal := c.balanceOf(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", chain.ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	c.state.balances[from] = bal.Sub(bal, amount)
	c.credit(to, amount)
	return nil
}

func (c *Chain) transferToken(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("memchain: negative token amount %s", amount)
	}
	bal := c.tokenBalanceOf(token, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", chain.ErrInsufficientBalance, from.Hex(), bal, token.Hex(), amount)
	}
	c.creditToken(token, from, new(big.Int).Neg(amount))
	c.creditToken(token, to, amount)
	return nil
}

// Env is the view of the chain handed to running contract code. It operates
// under the lock already held by the enclosing Call.
type Env struct {
	chain *Chain
	ctx   context.Context
}

// BalanceOf returns the wei balance of addr.
func (e *Env) BalanceOf(addr common.Address) *big.Int { return e.chain.balanceOf(addr) }

// TokenBalanceOf returns holder's balance of token.
func (e *Env) TokenBalanceOf(token, holder common.Address) *big.Int {
	return e.chain.tokenBalanceOf(token, holder)
}

// Transfer moves wei.
func (e *Env) Transfer(from, to common.Address, amount *big.Int) error {
	return e.chain.transfer(from, to, amount)
}

// TransferToken moves token units.
func (e *Env) TransferToken(token, from, to common.Address, amount *big.Int) error {
	return e.chain.transferToken(token, from, to, amount)
}

// Call makes a nested call.
func (e *Env) Call(msg chain.Message) chain.Result {
	return e.chain.call(e.ctx, msg)
}
