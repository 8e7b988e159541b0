package account

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// FirewallEntry denies calls to Target. A zero Selector denies every call to
// Target; otherwise only calls with that selector are denied.
type FirewallEntry struct {
	Target   common.Address
	Selector [4]byte
}

// Firewall is an account's call denylist.
type Firewall struct {
	entries map[FirewallEntry]struct{}
}

// NewFirewall builds a firewall from previously persisted entries.
func NewFirewall(entries ...FirewallEntry) *Firewall {
	f := &Firewall{entries: make(map[FirewallEntry]struct{}, len(entries))}
	for _, e := range entries {
		f.entries[e] = struct{}{}
	}
	return f
}

// Check returns ErrBlockedByFirewall when a call to target with data is denied.
func (f *Firewall) Check(target common.Address, data []byte) error {
	if _, ok := f.entries[FirewallEntry{Target: target}]; ok {
		return ErrBlockedByFirewall
	}
	if _, ok := f.entries[FirewallEntry{Target: target, Selector: Selector(data)}]; ok {
		return ErrBlockedByFirewall
	}
	return nil
}

// Add inserts an entry.
func (f *Firewall) Add(e FirewallEntry) error {
	if e.Target == (common.Address{}) {
		return ErrNullAddress
	}
	if _, ok := f.entries[e]; ok {
		return ErrFirewallEntryExists
	}
	f.entries[e] = struct{}{}
	return nil
}

// Remove deletes an entry.
func (f *Firewall) Remove(e FirewallEntry) error {
	if _, ok := f.entries[e]; !ok {
		return ErrFirewallEntryNotFound
	}
	delete(f.entries, e)
	return nil
}

// Entries returns every entry ordered by target then selector.
func (f *Firewall) Entries() []FirewallEntry {
	out := make([]FirewallEntry, 0, len(f.entries))
	for e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Target[:], out[j].Target[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].Selector[:], out[j].Selector[:]) < 0
	})
	return out
}

// Clone returns a copy.
func (f *Firewall) Clone() *Firewall {
	return NewFirewall(f.Entries()...)
}
