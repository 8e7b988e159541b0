package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/lapolinarweb/contracts/internal/database"
	apierrors "github.com/lapolinarweb/contracts/internal/pkg/errors"
)

const (
	lockRetries = 5
	lockBackoff = 50 * time.Millisecond
)

// Locker grants exclusive, expiring ownership of a key. *database.Redis
// implements it for locks shared between relayer replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// LocalLocker is an in-process Locker used when Redis is disabled.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time)}
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, database.ErrLockNotAcquired
	}
	until := now.Add(ttl)
	l.held[key] = until
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(until) {
			delete(l.held, key)
		}
	}, nil
}

func accountLockKey(addr common.Address) string {
	return "relay:lock:" + addr.Hex()
}

// lockAccount takes the account lock, retrying briefly while another
// relayer holds it.
func lockAccount(ctx context.Context, locker Locker, addr common.Address, ttl time.Duration) (func(), error) {
	key := accountLockKey(addr)
	for attempt := 0; ; attempt++ {
		release, err := locker.TryLock(ctx, key, ttl)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, database.ErrLockNotAcquired) {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		if attempt == lockRetries {
			return nil, apierrors.ErrAccountBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockBackoff * time.Duration(attempt+1)):
		}
	}
}
