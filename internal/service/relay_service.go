// Package service provides the relayer's business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/chain"
	"github.com/lapolinarweb/contracts/internal/models"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/repository"
)

const defaultLockTTL = 30 * time.Second

// SignatureScope selects which keys a signature query accepts.
type SignatureScope int

// Signature scopes.
const (
	ScopeAny SignatureScope = iota
	ScopeAuthKey
	ScopeLoginKey
)

// RelayService defines wallet operations exposed to transports.
type RelayService interface {
	CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountView, error)
	GetAccount(ctx context.Context, addr common.Address) (*AccountView, error)
	GetNonce(ctx context.Context, addr common.Address) (uint64, error)
	Relay(ctx context.Context, req RelayRequest) (*models.Receipt, error)
	GetReceipt(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	ListReceipts(ctx context.Context, addr common.Address, limit int) ([]*models.Receipt, error)
	IsValidSignature(ctx context.Context, addr common.Address, scope SignatureScope, hash common.Hash, sig []byte) (bool, error)
}

// CreateAccountRequest initializes an account deployed by proxy tooling.
type CreateAccountRequest struct {
	Address        common.Address
	AuthKey        common.Address
	Implementation common.Address
	Version        string
}

// RelayRequest is a signed meta-transaction for an account.
type RelayRequest struct {
	Account common.Address
	Tx      *account.MetaTransaction
}

// Options configures the relay service.
type Options struct {
	Config     account.Config
	Relayer    common.Address
	TxGasPrice *big.Int
	LockTTL    time.Duration
	Verifier   *account.SignatureVerifier
	Clock      account.Clock
	Logger     *slog.Logger
}

type relayService struct {
	accounts repository.AccountRepository
	receipts repository.ReceiptRepository
	backend  chain.Backend
	locker   Locker
	opts     Options

	// The substrate keeps a single snapshot journal, so executions are
	// serialized within a process.
	execMu sync.Mutex
}

// NewRelayService creates a new relay service.
func NewRelayService(
	accounts repository.AccountRepository,
	receipts repository.ReceiptRepository,
	backend chain.Backend,
	locker Locker,
	opts Options,
) RelayService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.Verifier == nil {
		opts.Verifier = account.NewSignatureVerifier(0)
	}
	if opts.Clock == nil {
		opts.Clock = account.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TxGasPrice == nil {
		opts.TxGasPrice = new(big.Int)
	}
	return &relayService{
		accounts: accounts,
		receipts: receipts,
		backend:  backend,
		locker:   locker,
		opts:     opts,
	}
}

func (s *relayService) open(st *account.State) *account.Account {
	return account.New(st, s.backend, s.opts.Config,
		account.WithClock(s.opts.Clock),
		account.WithVerifier(s.opts.Verifier),
		account.WithLogger(s.opts.Logger),
	)
}

func (s *relayService) load(ctx context.Context, addr common.Address) (*account.State, error) {
	st, err := s.accounts.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if st == nil {
		return nil, apierrors.NewNotFoundError("Account")
	}
	return st, nil
}

func (s *relayService) view(st *account.State) *AccountView {
	return NewAccountView(st, s.opts.Clock.Now(), s.opts.Config.TimelockExpireWindow)
}

// CreateAccount initializes an account. An account is initialized once.
func (s *relayService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*AccountView, error) {
	st, err := account.Initialize(req.Address, req.AuthKey, req.Implementation, req.Version)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.Create(ctx, st); err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			return nil, account.ErrImproperInitOrder
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.opts.Logger.Info("account initialized",
		slog.String("account", st.Address.Hex()),
		slog.String("auth_key", req.AuthKey.Hex()),
		slog.String("version", st.Version),
	)
	return s.view(st), nil
}

// GetAccount returns an account's current state.
func (s *relayService) GetAccount(ctx context.Context, addr common.Address) (*AccountView, error) {
	st, err := s.load(ctx, addr)
	if err != nil {
		return nil, err
	}
	return s.view(st), nil
}

// GetNonce returns the next nonce the account expects.
func (s *relayService) GetNonce(ctx context.Context, addr common.Address) (uint64, error) {
	st, err := s.load(ctx, addr)
	if err != nil {
		return 0, err
	}
	return st.Nonce, nil
}

// Relay executes a meta-transaction and persists the new account state
// together with its receipt. If persisting fails the substrate is rolled
// back, so a failed call leaves no trace.
func (s *relayService) Relay(ctx context.Context, req RelayRequest) (*models.Receipt, error) {
	if req.Tx == nil {
		return nil, apierrors.NewValidationError("tx", "meta-transaction is required")
	}

	release, err := lockAccount(ctx, s.locker, req.Account, s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := s.load(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	loadedNonce := st.Nonce
	acct := s.open(st)

	s.execMu.Lock()
	defer s.execMu.Unlock()

	snap := s.backend.Snapshot()
	receipt, err := acct.Relay(ctx, account.RelayEnv{
		Relayer:    s.opts.Relayer,
		TxGasPrice: s.opts.TxGasPrice,
	}, req.Tx)
	if err != nil {
		s.backend.DiscardSnapshot(snap)
		return nil, err
	}

	rec := models.NewReceipt(receipt)
	if err := s.accounts.Save(ctx, acct.State(), loadedNonce, rec); err != nil {
		if rerr := s.backend.RevertToSnapshot(snap); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if errors.Is(err, repository.ErrStaleState) {
			s.opts.Logger.Warn("nonce consumed by a concurrent relay",
				slog.String("account", req.Account.Hex()),
				slog.Uint64("nonce", loadedNonce),
			)
			return nil, fmt.Errorf("%w: consumed by a concurrent relay", account.ErrNonceUsed)
		}
		return nil, fmt.Errorf("failed to persist relay: %w", err)
	}
	s.backend.DiscardSnapshot(snap)

	s.opts.Logger.Info("meta-transaction relayed",
		slog.String("account", rec.Account),
		slog.Uint64("nonce", rec.Nonce),
		slog.String("key_class", rec.KeyClass),
		slog.String("outcome", rec.Outcome),
		slog.String("refund", rec.Refund),
	)
	return rec, nil
}

// GetReceipt returns a stored receipt.
func (s *relayService) GetReceipt(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	rec, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	if rec == nil {
		return nil, apierrors.NewNotFoundError("Receipt")
	}
	return rec, nil
}

// ListReceipts returns an account's most recent receipts.
func (s *relayService) ListReceipts(ctx context.Context, addr common.Address, limit int) ([]*models.Receipt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	recs, err := s.receipts.ListByAccount(ctx, addr, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return recs, nil
}

// IsValidSignature answers an ERC-1271 style query against the account's
// current keys.
func (s *relayService) IsValidSignature(ctx context.Context, addr common.Address, scope SignatureScope, hash common.Hash, sig []byte) (bool, error) {
	st, err := s.load(ctx, addr)
	if err != nil {
		return false, err
	}
	acct := s.open(st)

	switch scope {
	case ScopeAuthKey:
		return acct.IsValidAuthKeySignature(hash, sig)
	case ScopeLoginKey:
		return acct.IsValidLoginKeySignature(hash, sig)
	default:
		return acct.IsValidSignature(hash, sig)
	}
}
