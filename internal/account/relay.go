package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lapolinarweb/contracts/internal/chain"
)

var tokenRateUnit = big.NewInt(1e18)

// RelayExecutor runs a meta-transaction: verify, authorize, firewall, call,
// then refund the relayer. It mutates the account it is given; atomicity is
// provided by the caller.
type RelayExecutor struct {
	cfg       Config
	verifier  *SignatureVerifier
	authKeys  AuthKeyAuthorizer
	loginKeys LoginKeyAuthorizer
}

// NewRelayExecutor creates an executor.
func NewRelayExecutor(cfg Config, verifier *SignatureVerifier) *RelayExecutor {
	return &RelayExecutor{cfg: cfg, verifier: verifier}
}

// callOutcome is the captured result of an inner call. A non-nil err means
// the call reverted without invalidating the transaction.
type callOutcome struct {
	ret     []byte
	gasUsed uint64
	err     error
}

// Relay executes tx against a. Any returned error must revert the whole
// transaction; a failed inner call is reported on the receipt instead.
func (r *RelayExecutor) Relay(ctx context.Context, a *Account, env RelayEnv, tx *MetaTransaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := a.state

	if len(tx.Signature) != SignatureLength {
		return nil, ErrInvalidSignatureLength
	}
	if tx.Nonce < st.Nonce {
		return nil, fmt.Errorf("%w: got %d, next is %d", ErrNonceUsed, tx.Nonce, st.Nonce)
	}
	if tx.Nonce > st.Nonce {
		return nil, fmt.Errorf("%w: got %d, next is %d", ErrInvalidNonce, tx.Nonce, st.Nonce)
	}
	if tx.GasPrice != nil && tx.GasPrice.Cmp(gasPriceOf(env)) > 0 {
		return nil, ErrNotLargeEnoughTxGasprice
	}

	domain, err := DomainFor(tx.KeyClass)
	if err != nil {
		return nil, err
	}
	hash := MessageHash(domain, r.cfg.ChainID, st.Address, tx)
	signer, err := r.verifier.Recover(hash, tx.Signature)
	if err != nil {
		return nil, err
	}

	switch tx.KeyClass {
	case KeyClassAuth:
		err = r.authKeys.Authorize(st.Keys, signer)
	case KeyClassLogin:
		err = r.loginKeys.Authorize(st.Keys, st.Address, tx, signer, a.clock.Now())
	}
	if err != nil {
		return nil, err
	}
	if err := st.Firewall.Check(tx.To, tx.Data); err != nil {
		return nil, err
	}

	st.Nonce++

	out, err := r.call(ctx, a, tx.To, tx.Value, tx.Data, tx.GasLimit)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Hash:       hash,
		Account:    st.Address,
		Nonce:      tx.Nonce,
		Signer:     signer,
		KeyClass:   tx.KeyClass,
		Relayer:    env.Relayer,
		Outcome:    OutcomeSuccess,
		ReturnData: out.ret,
		FeeToken:   tx.FeeToken,
	}
	if out.err != nil {
		receipt.Outcome = OutcomeSilentRevert
		receipt.RevertReason = SilentRevertReason
		a.logger.Debug("inner call reverted",
			"account", st.Address.Hex(),
			"nonce", tx.Nonce,
			"error", out.err,
		)
	}

	receipt.Refund, receipt.GasUsed, err = r.refund(a, env, tx, out.gasUsed)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// call performs the inner call. Calls to the account itself go to the
// administrative surface, where taxonomy errors are returned as fatal.
func (r *RelayExecutor) call(ctx context.Context, a *Account, to common.Address, value *big.Int, data []byte, gasLimit uint64) (callOutcome, error) {
	self := a.state.Address
	if to == self {
		if err := a.dispatchAdmin(self, data); err != nil {
			if IsFatal(err) {
				return callOutcome{}, err
			}
			return callOutcome{gasUsed: selfCallGas, err: err}, nil
		}
		return callOutcome{gasUsed: selfCallGas}, nil
	}

	res := a.backend.Call(ctx, chain.Message{
		From:     self,
		To:       to,
		Value:    value,
		Data:     data,
		GasLimit: gasLimit,
	})
	return callOutcome{ret: res.ReturnData, gasUsed: res.GasUsed, err: res.Err}, nil
}

// refund pays the relayer for gas spent. It returns the amount paid and the
// gas it was computed for.
func (r *RelayExecutor) refund(a *Account, env RelayEnv, tx *MetaTransaction, innerGas uint64) (*big.Int, uint64, error) {
	gas := innerGas + min(tx.GasOverhead, r.cfg.MaxGasOverhead) + r.cfg.CallOverhead
	if tx.GasPrice == nil || tx.GasPrice.Sign() == 0 {
		return new(big.Int), gas, nil
	}

	price := new(big.Int).Set(tx.GasPrice)
	if ceiling := a.maxGasPrice(); ceiling != nil && ceiling.Sign() > 0 && price.Cmp(ceiling) > 0 {
		price.Set(ceiling)
	}
	self := a.state.Address
	cost := new(big.Int).Mul(new(big.Int).SetUint64(gas), price)

	if tx.FeeToken == (common.Address{}) {
		if a.backend.BalanceOf(self).Cmp(cost) < 0 {
			return nil, 0, ErrInsufficientGasEth
		}
		if err := a.backend.Transfer(self, env.Relayer, cost); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrInsufficientGasEth, err)
		}
		return cost, gas, nil
	}

	rate := tx.FeeTokenRate
	if rate == nil {
		rate = new(big.Int)
	}
	amount := new(big.Int).Mul(cost, rate)
	amount.Quo(amount, tokenRateUnit)
	if a.backend.TokenBalanceOf(tx.FeeToken, self).Cmp(amount) < 0 {
		return nil, 0, ErrInsufficientGasToken
	}
	if err := a.backend.TransferToken(tx.FeeToken, self, env.Relayer, amount); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInsufficientGasToken, err)
	}
	return amount, gas, nil
}

func gasPriceOf(env RelayEnv) *big.Int {
	if env.TxGasPrice == nil {
		return new(big.Int)
	}
	return env.TxGasPrice
}
