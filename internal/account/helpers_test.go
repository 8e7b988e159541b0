package account

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/lapolinarweb/contracts/internal/chain/memchain"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e9))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

type fixture struct {
	t        *testing.T
	chain    *memchain.Chain
	clock    *fixedClock
	cfg      Config
	self     common.Address
	authKey  *ecdsa.PrivateKey
	authAddr common.Address
	relayer  common.Address
	acct     *Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	authKey, authAddr := newKey(t)
	self := common.HexToAddress("0x000000000000000000000000000000000000acc0")

	st, err := Initialize(self, authAddr, common.Address{}, "2020021700")
	require.NoError(t, err)

	c := memchain.New()
	c.Fund(self, ether(1))

	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	cfg := DefaultConfig()
	cfg.TimelockDelay = time.Hour
	cfg.TimelockExpireWindow = 24 * time.Hour

	return &fixture{
		t:        t,
		chain:    c,
		clock:    clock,
		cfg:      cfg,
		self:     self,
		authKey:  authKey,
		authAddr: authAddr,
		relayer:  common.HexToAddress("0x00000000000000000000000000000000000be1a7"),
		acct:     New(st, c, cfg, WithClock(clock), WithVerifier(NewSignatureVerifier(16))),
	}
}

func (f *fixture) metaTx(key *ecdsa.PrivateKey, class KeyClass, to common.Address, value *big.Int, data []byte) *MetaTransaction {
	f.t.Helper()
	tx := &MetaTransaction{
		Nonce:       f.acct.Nonce(),
		To:          to,
		Value:       value,
		Data:        data,
		GasPrice:    gwei(20),
		GasLimit:    500_000,
		GasOverhead: 50_000,
		KeyClass:    class,
	}
	require.NoError(f.t, SignMetaTransaction(key, f.cfg.ChainID, f.self, tx))
	return tx
}

func (f *fixture) resign(key *ecdsa.PrivateKey, tx *MetaTransaction) *MetaTransaction {
	f.t.Helper()
	require.NoError(f.t, SignMetaTransaction(key, f.cfg.ChainID, f.self, tx))
	return tx
}

func (f *fixture) relay(tx *MetaTransaction) (*Receipt, error) {
	return f.acct.Relay(context.Background(), RelayEnv{Relayer: f.relayer, TxGasPrice: gwei(20)}, tx)
}

func (f *fixture) adminTx(method string, args ...interface{}) *MetaTransaction {
	f.t.Helper()
	data, err := PackAdminCall(method, args...)
	require.NoError(f.t, err)
	return f.metaTx(f.authKey, KeyClassAuth, f.self, nil, data)
}

// mustAdmin relays an auth-key-signed administrative call and requires success.
func (f *fixture) mustAdmin(method string, args ...interface{}) {
	f.t.Helper()
	receipt, err := f.relay(f.adminTx(method, args...))
	require.NoError(f.t, err)
	require.Equal(f.t, OutcomeSuccess, receipt.Outcome)
}

func (f *fixture) addLoginKey(expiresAt time.Time, selectors ...[4]byte) (*ecdsa.PrivateKey, common.Address) {
	f.t.Helper()
	key, addr := newKey(f.t)
	blob, err := EncodeRestrictions(expiresAt, selectors...)
	require.NoError(f.t, err)
	f.mustAdmin("addLoginKey", addr, blob)
	return key, addr
}
