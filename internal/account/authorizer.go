package account

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuthKeyAuthorizer admits meta-transactions signed by an active auth key.
// Auth keys have unrestricted scope, including calls to the account itself.
type AuthKeyAuthorizer struct{}

// Authorize checks signer against the registry.
func (AuthKeyAuthorizer) Authorize(reg *KeyRegistry, signer common.Address) error {
	if !reg.IsAuthKey(signer) {
		return ErrAuthKeyInvalid
	}
	return nil
}

// LoginKeyAuthorizer admits meta-transactions signed by an active, unexpired
// login key whose restrictions allow the call. Login keys never call the
// account itself, so they never reach the administrative surface.
type LoginKeyAuthorizer struct{}

// Authorize runs the login key checks in order and stops at the first failure.
func (LoginKeyAuthorizer) Authorize(reg *KeyRegistry, self common.Address, tx *MetaTransaction, signer common.Address, now time.Time) error {
	key, ok := reg.Lookup(signer)
	if !ok || key.Class != KeyClassLogin || key.Login == nil {
		return ErrLoginKeyInvalid
	}
	if !now.Before(key.Login.ExpiresAt) {
		return ErrLoginKeyExpired
	}
	if tx.To == self {
		return ErrLoginKeyNotAbleToCallSelf
	}
	if !key.Login.Allows(Selector(tx.Data)) {
		return ErrLoginKeyInvalid
	}
	return nil
}
