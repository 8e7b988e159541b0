package service

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/lapolinarweb/contracts/internal/account"
)

// AccountView is the public representation of an account.
type AccountView struct {
	Address        common.Address `json:"address"`
	Version        string         `json:"version"`
	Implementation common.Address `json:"implementation"`
	MaxGasPrice    *hexutil.Big   `json:"maxGasPrice,omitempty"`
	Nonce          hexutil.Uint64 `json:"nonce"`
	Keys           []KeyView      `json:"keys"`
	Firewall       []FirewallView `json:"firewall"`
	Timelock       []TimelockView `json:"timelock"`
}

// KeyView describes a registered key.
type KeyView struct {
	Address      common.Address  `json:"address"`
	Class        string          `json:"class"`
	ExpiresAt    *time.Time      `json:"expiresAt,omitempty"`
	Selectors    []hexutil.Bytes `json:"selectors,omitempty"`
	Restrictions hexutil.Bytes   `json:"restrictions,omitempty"`
}

// FirewallView is one blocked target/selector pair.
type FirewallView struct {
	Target   common.Address `json:"target"`
	Selector hexutil.Bytes  `json:"selector"`
}

// TimelockView is a pending change with its state at read time.
type TimelockView struct {
	Field    string      `json:"field"`
	Value    common.Hash `json:"value"`
	UnlockAt time.Time   `json:"unlockAt"`
	State    string      `json:"state"`
}

// NewAccountView renders st as seen at now.
func NewAccountView(st *account.State, now time.Time, expireWindow time.Duration) *AccountView {
	v := &AccountView{
		Address:        st.Address,
		Version:        st.Version,
		Implementation: st.Implementation,
		Nonce:          hexutil.Uint64(st.Nonce),
		Keys:           []KeyView{},
		Firewall:       []FirewallView{},
		Timelock:       []TimelockView{},
	}
	if st.MaxGasPrice != nil {
		v.MaxGasPrice = (*hexutil.Big)(st.MaxGasPrice)
	}

	for _, k := range st.Keys.Keys() {
		kv := KeyView{Address: k.Address, Class: k.Class.String()}
		if k.Login != nil {
			expires := k.Login.ExpiresAt.UTC()
			kv.ExpiresAt = &expires
			kv.Restrictions = k.Login.Raw
			for _, sel := range k.Login.Selectors {
				kv.Selectors = append(kv.Selectors, hexutil.Bytes(sel[:]))
			}
		}
		v.Keys = append(v.Keys, kv)
	}

	for _, e := range st.Firewall.Entries() {
		sel := e.Selector
		v.Firewall = append(v.Firewall, FirewallView{Target: e.Target, Selector: sel[:]})
	}

	for _, c := range st.Timelock.Pending() {
		v.Timelock = append(v.Timelock, TimelockView{
			Field:    c.Field.String(),
			Value:    c.Value,
			UnlockAt: c.UnlockAt.UTC(),
			State:    c.StateAt(now, expireWindow).String(),
		})
	}
	return v
}
