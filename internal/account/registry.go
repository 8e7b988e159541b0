package account

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// KeyRegistry holds an account's auth keys and login keys. An address is
// registered under at most one class.
type KeyRegistry struct {
	keys map[common.Address]Key
}

// NewKeyRegistry builds a registry from previously persisted keys.
func NewKeyRegistry(keys ...Key) *KeyRegistry {
	r := &KeyRegistry{keys: make(map[common.Address]Key, len(keys))}
	for _, k := range keys {
		r.keys[k.Address] = k
	}
	return r
}

// Lookup returns the key registered at addr.
func (r *KeyRegistry) Lookup(addr common.Address) (Key, bool) {
	k, ok := r.keys[addr]
	return k, ok
}

// IsAuthKey reports whether addr is an active auth key.
func (r *KeyRegistry) IsAuthKey(addr common.Address) bool {
	k, ok := r.keys[addr]
	return ok && k.Class == KeyClassAuth
}

// IsLoginKey reports whether addr is an active login key.
func (r *KeyRegistry) IsLoginKey(addr common.Address) bool {
	k, ok := r.keys[addr]
	return ok && k.Class == KeyClassLogin
}

// AuthKeyCount returns the number of active auth keys.
func (r *KeyRegistry) AuthKeyCount() int {
	n := 0
	for _, k := range r.keys {
		if k.Class == KeyClassAuth {
			n++
		}
	}
	return n
}

// AddAuthKey registers addr as an auth key.
func (r *KeyRegistry) AddAuthKey(addr common.Address) error {
	if addr == (common.Address{}) {
		return ErrNullAddress
	}
	if k, ok := r.keys[addr]; ok {
		return fmt.Errorf("%w: %s registered as %s key", ErrAuthKeyAlreadyAdded, addr.Hex(), k.Class)
	}
	r.keys[addr] = Key{Address: addr, Class: KeyClassAuth}
	return nil
}

// RemoveAuthKey removes an auth key. The last auth key cannot be removed.
func (r *KeyRegistry) RemoveAuthKey(addr common.Address) error {
	if !r.IsAuthKey(addr) {
		return ErrAuthKeyNotYetAdded
	}
	if r.AuthKeyCount() == 1 {
		return ErrCannotRemoveLastAuthKey
	}
	delete(r.keys, addr)
	return nil
}

// AddLoginKey registers addr as a login key with the given restrictions.
func (r *KeyRegistry) AddLoginKey(addr common.Address, restrictions *LoginRestrictions) error {
	if addr == (common.Address{}) {
		return ErrNullAddress
	}
	if restrictions == nil {
		return ErrInvalidRestrictions
	}
	if k, ok := r.keys[addr]; ok {
		return fmt.Errorf("%w: %s registered as %s key", ErrLoginKeyAlreadyAdded, addr.Hex(), k.Class)
	}
	r.keys[addr] = Key{Address: addr, Class: KeyClassLogin, Login: restrictions}
	return nil
}

// RemoveLoginKey removes a login key.
func (r *KeyRegistry) RemoveLoginKey(addr common.Address) error {
	if !r.IsLoginKey(addr) {
		return ErrLoginKeyNotYetAdded
	}
	delete(r.keys, addr)
	return nil
}

// Keys returns every registered key ordered by address.
func (r *KeyRegistry) Keys() []Key {
	out := make([]Key, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// Clone returns a deep copy.
func (r *KeyRegistry) Clone() *KeyRegistry {
	c := &KeyRegistry{keys: make(map[common.Address]Key, len(r.keys))}
	for addr, k := range r.keys {
		if k.Login != nil {
			login := *k.Login
			login.Raw = append([]byte(nil), k.Login.Raw...)
			login.Selectors = append([][4]byte(nil), k.Login.Selectors...)
			k.Login = &login
		}
		c.keys[addr] = k
	}
	return c
}
