package account

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// State is everything an account owns. It is mutated only through the
// administrative surface and the relay path.
type State struct {
	Address        common.Address
	Version        string
	Implementation common.Address
	// MaxGasPrice overrides Config.MaxGasPrice when set.
	MaxGasPrice *big.Int
	Nonce       uint64

	Keys     *KeyRegistry
	Firewall *Firewall
	Timelock *Timelock
}

// Initialize creates the state of a fresh account controlled by authKey.
func Initialize(addr, authKey, implementation common.Address, version string) (*State, error) {
	if addr == (common.Address{}) {
		return nil, ErrNullAddress
	}
	st := &State{
		Address:        addr,
		Version:        version,
		Implementation: implementation,
		Keys:           NewKeyRegistry(),
		Firewall:       NewFirewall(),
		Timelock:       NewTimelock(),
	}
	if err := st.Keys.AddAuthKey(authKey); err != nil {
		return nil, err
	}
	return st, nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	if s.MaxGasPrice != nil {
		c.MaxGasPrice = new(big.Int).Set(s.MaxGasPrice)
	}
	c.Keys = s.Keys.Clone()
	c.Firewall = s.Firewall.Clone()
	c.Timelock = s.Timelock.Clone()
	return &c
}
