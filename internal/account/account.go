package account

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lapolinarweb/contracts/internal/chain"
)

// Account is a smart-contract wallet: its state plus the substrate it runs
// on. Every entry point is serialized and atomic: on error, neither the
// account state nor the substrate keeps any change.
type Account struct {
	mu       sync.Mutex
	state    *State
	backend  chain.Backend
	cfg      Config
	clock    Clock
	verifier *SignatureVerifier
	executor *RelayExecutor
	logger   *slog.Logger
}

// Option configures an Account.
type Option func(*Account)

// WithClock sets the clock used for login key expiry and timelocks.
func WithClock(c Clock) Option {
	return func(a *Account) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Account) { a.logger = l }
}

// WithVerifier shares a signature verifier, and its cache, between accounts.
func WithVerifier(v *SignatureVerifier) Option {
	return func(a *Account) { a.verifier = v }
}

// New wraps state.
func New(state *State, backend chain.Backend, cfg Config, opts ...Option) *Account {
	a := &Account{
		state:   state,
		backend: backend,
		cfg:     cfg,
		clock:   SystemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.verifier == nil {
		a.verifier = NewSignatureVerifier(0)
	}
	a.executor = NewRelayExecutor(cfg, a.verifier)
	return a
}

// Address returns the account address.
func (a *Account) Address() common.Address {
	return a.state.Address
}

// Nonce returns the next expected meta-transaction nonce.
func (a *Account) Nonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Nonce
}

// State returns a copy of the account state.
func (a *Account) State() *State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Clone()
}

// TimelockState returns the derived state of field's pending change.
func (a *Account) TimelockState(field Field) ChangeState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Timelock.State(field, a.clock.Now(), a.cfg.TimelockExpireWindow)
}

func (a *Account) maxGasPrice() *big.Int {
	if a.state.MaxGasPrice != nil && a.state.MaxGasPrice.Sign() > 0 {
		return a.state.MaxGasPrice
	}
	return a.cfg.MaxGasPrice
}

// atomically runs fn and rolls back the account state and the substrate
// if it fails.
func (a *Account) atomically(fn func() error) error {
	saved := a.state.Clone()
	snap := a.backend.Snapshot()
	if err := fn(); err != nil {
		a.state = saved
		if rerr := a.backend.RevertToSnapshot(snap); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	a.backend.DiscardSnapshot(snap)
	return nil
}

// Relay executes a signed meta-transaction submitted by a relayer.
func (a *Account) Relay(ctx context.Context, env RelayEnv, tx *MetaTransaction) (*Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var receipt *Receipt
	err := a.atomically(func() error {
		var err error
		receipt, err = a.executor.Relay(ctx, a, env, tx)
		return err
	})
	if err != nil {
		a.logger.Debug("meta-transaction rejected",
			"account", a.state.Address.Hex(),
			"nonce", tx.Nonce,
			"error", err,
		)
		return nil, err
	}
	return receipt, nil
}

// ExecuteDirect runs a call sent by an auth key EOA. There is no signature
// and no refund, and a failed inner call fails the whole transaction.
//
// ExecuteDirect and CallAdmin are the entry points a substrate uses for
// transactions an EOA sends to the account itself. The relayer never calls
// them: everything it submits goes through Relay.
func (a *Account) ExecuteDirect(ctx context.Context, sender common.Address, call Call) (*Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var receipt *Receipt
	err := a.atomically(func() error {
		if err := a.requireAuthKeyOrSelf(sender); err != nil {
			return err
		}
		if err := a.state.Firewall.Check(call.To, call.Data); err != nil {
			return err
		}
		out, err := a.executor.call(ctx, a, call.To, call.Value, call.Data, call.GasLimit)
		if err != nil {
			return err
		}
		if out.err != nil {
			return errors.Join(ErrGeneralRevert, out.err)
		}
		receipt = &Receipt{
			Account:    a.state.Address,
			Nonce:      a.state.Nonce,
			Signer:     sender,
			KeyClass:   KeyClassAuth,
			Outcome:    OutcomeSuccess,
			ReturnData: out.ret,
			GasUsed:    out.gasUsed,
			Refund:     new(big.Int),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// CallAdmin runs an administrative call sent directly by caller, with the
// same capability checks a relayed self-call passes.
func (a *Account) CallAdmin(_ context.Context, caller common.Address, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.atomically(func() error {
		return a.dispatchAdmin(caller, data)
	})
}

// IsValidSignature reports whether sig over hash was made by any active auth
// key or unexpired login key.
func (a *Account) IsValidSignature(hash common.Hash, sig []byte) (bool, error) {
	if len(sig) != SignatureLength {
		return false, ErrInvalidSigLength
	}
	return a.signedBy(hash, sig, func(k Key) bool { return true }), nil
}

// IsValidAuthKeySignature reports whether sig over hash was made by an
// active auth key.
func (a *Account) IsValidAuthKeySignature(hash common.Hash, sig []byte) (bool, error) {
	if len(sig) != SignatureLength {
		return false, ErrInvalidAuthKeySigLength
	}
	return a.signedBy(hash, sig, func(k Key) bool { return k.Class == KeyClassAuth }), nil
}

// IsValidLoginKeySignature reports whether sig over hash was made by an
// unexpired login key.
func (a *Account) IsValidLoginKeySignature(hash common.Hash, sig []byte) (bool, error) {
	if len(sig) != SignatureLength {
		return false, ErrInvalidLoginKeySigLength
	}
	return a.signedBy(hash, sig, func(k Key) bool { return k.Class == KeyClassLogin }), nil
}

func (a *Account) signedBy(hash common.Hash, sig []byte, accept func(Key) bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	signer, err := a.verifier.Recover(hash, sig)
	if err != nil {
		return false
	}
	key, ok := a.state.Keys.Lookup(signer)
	if !ok || !accept(key) {
		return false
	}
	if key.Class == KeyClassLogin && !a.clock.Now().Before(key.Login.ExpiresAt) {
		return false
	}
	return true
}
