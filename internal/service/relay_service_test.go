package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/chain/memchain"
	"github.com/lapolinarweb/contracts/internal/database"
	"github.com/lapolinarweb/contracts/internal/models"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
	"github.com/lapolinarweb/contracts/internal/repository"
)

// store is an in-memory AccountRepository and ReceiptRepository.
type store struct {
	mu       sync.Mutex
	accounts map[common.Address]*account.State
	receipts map[uuid.UUID]*models.Receipt
	saveErr  error
	// beforeSave runs against the stored state, standing in for a
	// concurrent writer.
	beforeSave func(stored *account.State)
}

func newStore() *store {
	return &store{
		accounts: make(map[common.Address]*account.State),
		receipts: make(map[uuid.UUID]*models.Receipt),
	}
}

func (s *store) Create(_ context.Context, st *account.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[st.Address]; ok {
		return repository.ErrAccountExists
	}
	s.accounts[st.Address] = st.Clone()
	return nil
}

func (s *store) Get(_ context.Context, addr common.Address) (*account.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[addr]
	if !ok {
		return nil, nil
	}
	return st.Clone(), nil
}

func (s *store) Save(_ context.Context, st *account.State, loadedNonce uint64, rec *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beforeSave != nil {
		s.beforeSave(s.accounts[st.Address])
	}
	if s.saveErr != nil {
		return s.saveErr
	}
	if cur, ok := s.accounts[st.Address]; !ok || cur.Nonce != loadedNonce {
		return repository.ErrStaleState
	}
	if rec != nil {
		for _, r := range s.receipts {
			if r.Account == rec.Account && r.Nonce == rec.Nonce {
				return repository.ErrStaleState
			}
		}
	}
	s.accounts[st.Address] = st.Clone()
	if rec != nil {
		s.receipts[rec.ID] = rec
	}
	return nil
}

func (s *store) ListPendingChanges(_ context.Context) ([]*models.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PendingChange
	for addr, st := range s.accounts {
		for _, c := range st.Timelock.Pending() {
			out = append(out, &models.PendingChange{
				Account:  addr.Hex(),
				Field:    c.Field.String(),
				UnlockAt: c.UnlockAt,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnlockAt.Before(out[j].UnlockAt) })
	return out, nil
}

func (s *store) GetByID(_ context.Context, id uuid.UUID) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receipts[id], nil
}

func (s *store) ListByAccount(_ context.Context, addr common.Address, limit int) ([]*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Receipt
	for _, r := range s.receipts {
		if r.Account == addr.Hex() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce > out[j].Nonce })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

var (
	selfAddr    = common.HexToAddress("0x000000000000000000000000000000000000acc0")
	targetAddr  = common.HexToAddress("0x0000000000000000000000000000000000005151")
	relayerAddr = common.HexToAddress("0x00000000000000000000000000000000000be1a7")
)

type serviceFixture struct {
	store   *store
	chain   *memchain.Chain
	clock   *fixedClock
	cfg     account.Config
	authKey *ecdsa.PrivateKey
	svc     RelayService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	c := memchain.New()
	c.Fund(selfAddr, big.NewInt(1e18))
	c.Deploy(targetAddr, memchain.Sink(5000))

	cfg := account.DefaultConfig()
	cfg.TimelockDelay = time.Hour
	cfg.TimelockExpireWindow = 24 * time.Hour

	f := &serviceFixture{
		store:   newStore(),
		chain:   c,
		clock:   &fixedClock{now: time.Unix(1_700_000_000, 0)},
		cfg:     cfg,
		authKey: key,
	}
	f.svc = NewRelayService(f.store, f.store, c, NewLocalLocker(), Options{
		Config:     cfg,
		Relayer:    relayerAddr,
		TxGasPrice: big.NewInt(1e9),
		Clock:      f.clock,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	_, err = f.svc.CreateAccount(context.Background(), CreateAccountRequest{
		Address: selfAddr,
		AuthKey: crypto.PubkeyToAddress(key.PublicKey),
		Version: "2020021700",
	})
	require.NoError(t, err)
	return f
}

func (f *serviceFixture) signed(t *testing.T, nonce uint64) *account.MetaTransaction {
	t.Helper()
	tx := &account.MetaTransaction{
		Nonce:    nonce,
		To:       targetAddr,
		Value:    new(big.Int),
		GasPrice: big.NewInt(1e9),
		GasLimit: 100_000,
		KeyClass: account.KeyClassAuth,
	}
	require.NoError(t, account.SignMetaTransaction(f.authKey, f.cfg.ChainID, selfAddr, tx))
	return tx
}

func TestRelayService_CreateAccount(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	view, err := f.svc.GetAccount(ctx, selfAddr)
	require.NoError(t, err)
	assert.Equal(t, "2020021700", view.Version)
	require.Len(t, view.Keys, 1)
	assert.Equal(t, "auth", view.Keys[0].Class)

	_, err = f.svc.CreateAccount(ctx, CreateAccountRequest{Address: selfAddr, AuthKey: common.HexToAddress("0x1")})
	assert.ErrorIs(t, err, account.ErrImproperInitOrder)

	_, err = f.svc.CreateAccount(ctx, CreateAccountRequest{AuthKey: common.HexToAddress("0x1")})
	assert.ErrorIs(t, err, account.ErrNullAddress)
}

func TestRelayService_Relay(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	rec, err := f.svc.Relay(ctx, RelayRequest{Account: selfAddr, Tx: f.signed(t, 0)})
	require.NoError(t, err)
	assert.Equal(t, "success", rec.Outcome)
	assert.Equal(t, relayerAddr.Hex(), rec.Relayer)
	assert.NotEqual(t, "0", rec.Refund)

	refund, ok := new(big.Int).SetString(rec.Refund, 10)
	require.True(t, ok)
	assert.Zero(t, refund.Cmp(f.chain.BalanceOf(relayerAddr)))

	nonce, err := f.svc.GetNonce(ctx, selfAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	stored, err := f.svc.GetReceipt(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, stored)

	list, err := f.svc.ListReceipts(ctx, selfAddr, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	t.Run("replayed nonce", func(t *testing.T) {
		_, err := f.svc.Relay(ctx, RelayRequest{Account: selfAddr, Tx: f.signed(t, 0)})
		assert.ErrorIs(t, err, account.ErrNonceUsed)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.svc.Relay(ctx, RelayRequest{Account: common.HexToAddress("0xdead"), Tx: f.signed(t, 1)})
		var apiErr *apierrors.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "not_found", apiErr.Code)
	})

	t.Run("missing tx", func(t *testing.T) {
		_, err := f.svc.Relay(ctx, RelayRequest{Account: selfAddr})
		assert.Error(t, err)
	})
}

func TestRelayService_RelayRollsBackOnSaveFailure(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	before := f.chain.BalanceOf(selfAddr)

	f.store.saveErr = errors.New("connection reset")
	_, err := f.svc.Relay(ctx, RelayRequest{Account: selfAddr, Tx: f.signed(t, 0)})
	require.Error(t, err)

	assert.Zero(t, before.Cmp(f.chain.BalanceOf(selfAddr)))
	assert.Equal(t, 0, f.chain.BalanceOf(relayerAddr).Sign())

	f.store.saveErr = nil
	nonce, err := f.svc.GetNonce(ctx, selfAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	_, err = f.svc.Relay(ctx, RelayRequest{Account: selfAddr, Tx: f.signed(t, 0)})
	assert.NoError(t, err)
}

func TestRelayService_ConcurrentNonceConsumption(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	before := f.chain.BalanceOf(selfAddr)

	// Another replica commits nonce 0 between this relay's load and save.
	f.store.beforeSave = func(stored *account.State) { stored.Nonce = 1 }
	_, err := f.svc.Relay(ctx, RelayRequest{Account: selfAddr, Tx: f.signed(t, 0)})
	assert.ErrorIs(t, err, account.ErrNonceUsed)
	assert.Zero(t, before.Cmp(f.chain.BalanceOf(selfAddr)))
	assert.Equal(t, 0, f.chain.BalanceOf(relayerAddr).Sign())

	recs, err := f.svc.ListReceipts(ctx, selfAddr, 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRelayService_AccountBusy(t *testing.T) {
	f := newServiceFixture(t)
	locker := NewLocalLocker()
	svc := NewRelayService(f.store, f.store, f.chain, locker, Options{Config: f.cfg, Clock: f.clock})

	release, err := locker.TryLock(context.Background(), accountLockKey(selfAddr), time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = svc.Relay(context.Background(), RelayRequest{Account: selfAddr, Tx: f.signed(t, 0)})
	assert.ErrorIs(t, err, apierrors.ErrAccountBusy)
}

func TestRelayService_IsValidSignature(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	hash := crypto.Keccak256Hash([]byte("hello"))
	sig, err := account.Sign(hash, f.authKey)
	require.NoError(t, err)

	ok, err := f.svc.IsValidSignature(ctx, selfAddr, ScopeAny, hash, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsValidSignature(ctx, selfAddr, ScopeAuthKey, hash, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.IsValidSignature(ctx, selfAddr, ScopeLoginKey, hash, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.IsValidSignature(ctx, selfAddr, ScopeLoginKey, hash, sig[:64])
	assert.ErrorIs(t, err, account.ErrInvalidLoginKeySigLength)
}

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, database.ErrLockNotAcquired)

	release()
	release2, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	release2()

	// An expired lock can be taken over.
	_, err = l.TryLock(ctx, "e", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = l.TryLock(ctx, "e", time.Minute)
	assert.NoError(t, err)
}
