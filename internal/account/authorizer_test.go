package account

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestLoginKeyAuthorizer_Order(t *testing.T) {
	self := common.HexToAddress("0xacc0")
	login := common.HexToAddress("0x1")
	now := time.Unix(1_700_000_000, 0)
	reg := NewKeyRegistry(
		Key{Address: common.HexToAddress("0xa"), Class: KeyClassAuth},
		Key{Address: login, Class: KeyClassLogin, Login: &LoginRestrictions{
			ExpiresAt: now,
			Selectors: [][4]byte{{1, 2, 3, 4}},
		}},
	)
	var authz LoginKeyAuthorizer

	// An expired key calling self with a bad selector reports expiry first.
	tx := &MetaTransaction{To: self, Data: []byte{9, 9, 9, 9}}
	assert.ErrorIs(t, authz.Authorize(reg, self, tx, login, now), ErrLoginKeyExpired)

	earlier := now.Add(-time.Second)
	assert.ErrorIs(t, authz.Authorize(reg, self, tx, login, earlier), ErrLoginKeyNotAbleToCallSelf)

	tx.To = common.HexToAddress("0xbeef")
	assert.ErrorIs(t, authz.Authorize(reg, self, tx, login, earlier), ErrLoginKeyInvalid)

	tx.Data = []byte{1, 2, 3, 4, 5}
	assert.NoError(t, authz.Authorize(reg, self, tx, login, earlier))

	assert.ErrorIs(t, authz.Authorize(reg, self, tx, common.HexToAddress("0xa"), earlier), ErrLoginKeyInvalid)
}

func TestAuthKeyAuthorizer(t *testing.T) {
	reg := NewKeyRegistry(Key{Address: common.HexToAddress("0xa"), Class: KeyClassAuth})
	var authz AuthKeyAuthorizer
	assert.NoError(t, authz.Authorize(reg, common.HexToAddress("0xa")))
	assert.ErrorIs(t, authz.Authorize(reg, common.HexToAddress("0xb")), ErrAuthKeyInvalid)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("relay: %w", ErrBlockedByFirewall)
	assert.Equal(t, KindPolicy, KindOf(wrapped))
	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, "BA: Transaction blocked by the firewall", ErrBlockedByFirewall.Error())

	e, ok := AsError(errors.Join(ErrGeneralRevert, errors.New("boom")))
	assert.True(t, ok)
	assert.Equal(t, "GENERAL_REVERT", e.Code)

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsFatal(errUnknownAdminCall))
}
