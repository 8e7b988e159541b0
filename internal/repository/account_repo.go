// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lapolinarweb/contracts/internal/account"
	"github.com/lapolinarweb/contracts/internal/models"
)

// Repository errors.
var (
	ErrAccountExists = errors.New("repository: account already exists")
	// ErrStaleState is returned by Save when the stored nonce is no longer the
	// one the caller loaded.
	ErrStaleState = errors.New("repository: account state changed concurrently")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// AccountRepository persists account state and the receipts of relays that
// changed it.
type AccountRepository interface {
	Create(ctx context.Context, st *account.State) error
	Get(ctx context.Context, addr common.Address) (*account.State, error)
	// Save replaces the stored state of st.Address if its stored nonce is
	// still loadedNonce and, when receipt is not nil, records it in the same
	// transaction. It returns ErrStaleState otherwise.
	Save(ctx context.Context, st *account.State, loadedNonce uint64, receipt *models.Receipt) error
	ListPendingChanges(ctx context.Context) ([]*models.PendingChange, error)
}

type accountRepo struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepo{pool: pool}
}

// Create inserts a freshly initialized account.
func (r *accountRepo) Create(ctx context.Context, st *account.State) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (address, version, implementation, max_gas_price, nonce)
			VALUES ($1, $2, $3, $4, $5)`,
			st.Address.Hex(), st.Version, st.Implementation.Hex(), numeric(st.MaxGasPrice), int64(st.Nonce),
		)
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		if err != nil {
			return err
		}
		return writeChildren(ctx, tx, st)
	})
}

// Get loads an account. It returns nil, nil when the account does not exist.
func (r *accountRepo) Get(ctx context.Context, addr common.Address) (*account.State, error) {
	st := &account.State{Address: addr}
	var (
		impl     string
		maxPrice pgtype.Numeric
		nonce    int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT version, implementation, max_gas_price, nonce
		FROM accounts WHERE address = $1`, addr.Hex(),
	).Scan(&st.Version, &impl, &maxPrice, &nonce)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.Implementation = common.HexToAddress(impl)
	st.MaxGasPrice = bigFromNumeric(maxPrice)
	st.Nonce = uint64(nonce)

	keys, err := r.loadKeys(ctx, addr)
	if err != nil {
		return nil, err
	}
	st.Keys = account.NewKeyRegistry(keys...)

	entries, err := r.loadFirewall(ctx, addr)
	if err != nil {
		return nil, err
	}
	st.Firewall = account.NewFirewall(entries...)

	changes, err := r.loadTimelock(ctx, addr)
	if err != nil {
		return nil, err
	}
	st.Timelock = account.NewTimelock(changes...)

	return st, nil
}

func (r *accountRepo) loadKeys(ctx context.Context, addr common.Address) ([]account.Key, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT key_address, class, restrictions
		FROM account_keys WHERE account = $1`, addr.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []account.Key
	for rows.Next() {
		var (
			keyAddr, class string
			restrictions   []byte
		)
		if err := rows.Scan(&keyAddr, &class, &restrictions); err != nil {
			return nil, err
		}
		kc, err := account.ParseKeyClass(class)
		if err != nil {
			return nil, err
		}
		key := account.Key{Address: common.HexToAddress(keyAddr), Class: kc}
		if kc == account.KeyClassLogin {
			key.Login, err = account.DecodeRestrictions(restrictions)
			if err != nil {
				return nil, fmt.Errorf("login key %s: %w", keyAddr, err)
			}
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *accountRepo) loadFirewall(ctx context.Context, addr common.Address) ([]account.FirewallEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT target, selector FROM firewall_entries WHERE account = $1`, addr.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []account.FirewallEntry
	for rows.Next() {
		var (
			target   string
			selector []byte
		)
		if err := rows.Scan(&target, &selector); err != nil {
			return nil, err
		}
		e := account.FirewallEntry{Target: common.HexToAddress(target)}
		copy(e.Selector[:], selector)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *accountRepo) loadTimelock(ctx context.Context, addr common.Address) ([]account.PendingChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT field, value, unlock_at FROM timelock_changes WHERE account = $1`, addr.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []account.PendingChange
	for rows.Next() {
		var (
			field, value []byte
			unlockAt     time.Time
		)
		if err := rows.Scan(&field, &value, &unlockAt); err != nil {
			return nil, err
		}
		changes = append(changes, account.PendingChange{
			Field:    account.Field(common.BytesToHash(field)),
			Value:    common.BytesToHash(value),
			UnlockAt: unlockAt,
		})
	}
	return changes, rows.Err()
}

// Save replaces the account row and its children. The nonce guard keeps two
// relays that loaded the same nonce from both committing.
func (r *accountRepo) Save(ctx context.Context, st *account.State, loadedNonce uint64, receipt *models.Receipt) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE accounts
			SET version = $2, implementation = $3, max_gas_price = $4, nonce = $5, updated_at = NOW()
			WHERE address = $1 AND nonce = $6`,
			st.Address.Hex(), st.Version, st.Implementation.Hex(), numeric(st.MaxGasPrice), int64(st.Nonce),
			int64(loadedNonce),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s at nonce %d", ErrStaleState, st.Address.Hex(), loadedNonce)
		}

		for _, table := range []string{"account_keys", "firewall_entries", "timelock_changes"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE account = $1", st.Address.Hex()); err != nil {
				return err
			}
		}
		if err := writeChildren(ctx, tx, st); err != nil {
			return err
		}

		if receipt == nil {
			return nil
		}
		if err := insertReceipt(ctx, tx, receipt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: receipt for %s nonce %d exists", ErrStaleState, receipt.Account, receipt.Nonce)
			}
			return err
		}
		return nil
	})
}

func writeChildren(ctx context.Context, tx pgx.Tx, st *account.State) error {
	batch := &pgx.Batch{}
	addr := st.Address.Hex()
	for _, k := range st.Keys.Keys() {
		var restrictions []byte
		if k.Login != nil {
			restrictions = k.Login.Raw
		}
		batch.Queue(`INSERT INTO account_keys (account, key_address, class, restrictions) VALUES ($1, $2, $3, $4)`,
			addr, k.Address.Hex(), k.Class.String(), restrictions)
	}
	for _, e := range st.Firewall.Entries() {
		batch.Queue(`INSERT INTO firewall_entries (account, target, selector) VALUES ($1, $2, $3)`,
			addr, e.Target.Hex(), e.Selector[:])
	}
	for _, c := range st.Timelock.Pending() {
		batch.Queue(`INSERT INTO timelock_changes (account, field, value, unlock_at) VALUES ($1, $2, $3, $4)`,
			addr, c.Field[:], c.Value[:], c.UnlockAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

// ListPendingChanges returns every stored timelock change ordered by unlock time.
func (r *accountRepo) ListPendingChanges(ctx context.Context) ([]*models.PendingChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT account, field, unlock_at FROM timelock_changes ORDER BY unlock_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*models.PendingChange
	for rows.Next() {
		var (
			c     models.PendingChange
			field []byte
		)
		if err := rows.Scan(&c.Account, &field, &c.UnlockAt); err != nil {
			return nil, err
		}
		c.Field = account.Field(common.BytesToHash(field)).String()
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

func bigFromNumeric(n pgtype.Numeric) *big.Int {
	if !n.Valid || n.Int == nil {
		return nil
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	} else if n.Exp < 0 {
		v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil))
	}
	return v
}

var _ AccountRepository = (*accountRepo)(nil)
