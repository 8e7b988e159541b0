package account

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Field names a timelocked account setting.
type Field common.Hash

// Timelocked fields.
var (
	FieldImplementation = Field(crypto.Keccak256Hash([]byte("implementation")))
	FieldMaxGasPrice    = Field(crypto.Keccak256Hash([]byte("maxGasPrice")))
)

var fieldNames = map[Field]string{
	FieldImplementation: "implementation",
	FieldMaxGasPrice:    "maxGasPrice",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return common.Hash(f).Hex()
}

// ParseField accepts a known field name or a 32-byte hex word.
func ParseField(s string) (Field, error) {
	for f, name := range fieldNames {
		if name == s {
			return f, nil
		}
	}
	b, err := hexToBytes32(s)
	if err != nil {
		return Field{}, fmt.Errorf("account: unknown timelock field %q", s)
	}
	return Field(b), nil
}

func hexToBytes32(s string) (common.Hash, error) {
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("want %d bytes, got %d", common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// ChangeState is the derived state of a field's pending change.
type ChangeState int

// Change states. Executable and Expired are computed from the clock and
// never stored.
const (
	ChangeNone ChangeState = iota
	ChangeInitiated
	ChangeExecutable
	ChangeExpired
)

func (s ChangeState) String() string {
	switch s {
	case ChangeNone:
		return "none"
	case ChangeInitiated:
		return "initiated"
	case ChangeExecutable:
		return "executable"
	case ChangeExpired:
		return "expired"
	}
	return fmt.Sprintf("ChangeState(%d)", int(s))
}

// PendingChange is a proposed value for a field and the time it unlocks.
type PendingChange struct {
	Field    Field
	Value    common.Hash
	UnlockAt time.Time
}

// StateAt derives the change's state at now. A zero expireWindow means an
// unlocked change never expires.
func (c PendingChange) StateAt(now time.Time, expireWindow time.Duration) ChangeState {
	if now.Before(c.UnlockAt) {
		return ChangeInitiated
	}
	if expireWindow > 0 && !now.Before(c.UnlockAt.Add(expireWindow)) {
		return ChangeExpired
	}
	return ChangeExecutable
}

// Timelock tracks at most one pending change per field.
type Timelock struct {
	changes map[Field]PendingChange
}

// NewTimelock builds a timelock from previously persisted changes.
func NewTimelock(changes ...PendingChange) *Timelock {
	t := &Timelock{changes: make(map[Field]PendingChange, len(changes))}
	for _, c := range changes {
		t.changes[c.Field] = c
	}
	return t
}

// State returns the derived state of field at now.
func (t *Timelock) State(field Field, now time.Time, expireWindow time.Duration) ChangeState {
	c, ok := t.changes[field]
	if !ok {
		return ChangeNone
	}
	return c.StateAt(now, expireWindow)
}

// Initiate proposes value for field, unlocking after delay. A field with a
// live pending change cannot be re-initiated until it is executed, cancelled
// or expired.
func (t *Timelock) Initiate(field Field, value common.Hash, now time.Time, delay, expireWindow time.Duration) (PendingChange, error) {
	switch t.State(field, now, expireWindow) {
	case ChangeInitiated, ChangeExecutable:
		return PendingChange{}, ErrTimelockNotAbleToInitiateChange
	}
	c := PendingChange{Field: field, Value: value, UnlockAt: now.Add(delay)}
	t.changes[field] = c
	return c, nil
}

// Execute consumes an executable change and returns it.
func (t *Timelock) Execute(field Field, now time.Time, expireWindow time.Duration) (PendingChange, error) {
	if t.State(field, now, expireWindow) != ChangeExecutable {
		return PendingChange{}, ErrTimelockNotAbleToChange
	}
	c := t.changes[field]
	delete(t.changes, field)
	return c, nil
}

// Cancel drops a pending change in any state.
func (t *Timelock) Cancel(field Field) error {
	if _, ok := t.changes[field]; !ok {
		return ErrTimelockNotAbleToChange
	}
	delete(t.changes, field)
	return nil
}

// Pending returns every stored change ordered by field.
func (t *Timelock) Pending() []PendingChange {
	out := make([]PendingChange, 0, len(t.changes))
	for _, c := range t.changes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Field[:], out[j].Field[:]) < 0
	})
	return out
}

// Clone returns a copy.
func (t *Timelock) Clone() *Timelock {
	return NewTimelock(t.Pending()...)
}
