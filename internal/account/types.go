package account

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// KeyClass identifies which authorizer governs a key.
type KeyClass uint8

// Key classes.
const (
	KeyClassAuth KeyClass = iota + 1
	KeyClassLogin
)

func (c KeyClass) String() string {
	switch c {
	case KeyClassAuth:
		return "auth"
	case KeyClassLogin:
		return "login"
	}
	return fmt.Sprintf("KeyClass(%d)", uint8(c))
}

// ParseKeyClass parses "auth" or "login".
func ParseKeyClass(s string) (KeyClass, error) {
	switch s {
	case "auth":
		return KeyClassAuth, nil
	case "login":
		return KeyClassLogin, nil
	}
	return 0, fmt.Errorf("account: unknown key class %q", s)
}

// LoginRestrictions limits what a login key may do.
type LoginRestrictions struct {
	// Raw is the ABI-encoded blob the key was added with.
	Raw []byte
	// ExpiresAt is the first instant the key is no longer accepted.
	ExpiresAt time.Time
	// Selectors, when non-empty, is the allow-list of function selectors.
	Selectors [][4]byte
}

// Allows reports whether a call with the given selector passes the
// selector allow-list.
func (r *LoginRestrictions) Allows(selector [4]byte) bool {
	if len(r.Selectors) == 0 {
		return true
	}
	for _, s := range r.Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

// Key is a registered key. Login is set only for KeyClassLogin.
type Key struct {
	Address common.Address
	Class   KeyClass
	Login   *LoginRestrictions
}

// MetaTransaction is a signed request executed on behalf of an account.
type MetaTransaction struct {
	Nonce        uint64
	To           common.Address
	Value        *big.Int
	Data         []byte
	GasPrice     *big.Int
	GasLimit     uint64
	GasOverhead  uint64
	FeeToken     common.Address
	FeeTokenRate *big.Int
	KeyClass     KeyClass
	Signature    []byte
}

// Selector returns the first four bytes of data, or the zero selector.
func Selector(data []byte) [4]byte {
	var sel [4]byte
	if len(data) >= 4 {
		copy(sel[:], data[:4])
	}
	return sel
}

// Outcome is the result of the inner call of a relayed transaction.
type Outcome string

// Outcomes.
const (
	OutcomeSuccess      Outcome = "success"
	OutcomeSilentRevert Outcome = "silent_revert"
)

// Receipt describes an executed (possibly silently reverted) transaction.
type Receipt struct {
	Hash         common.Hash
	Account      common.Address
	Nonce        uint64
	Signer       common.Address
	KeyClass     KeyClass
	Relayer      common.Address
	Outcome      Outcome
	ReturnData   []byte
	RevertReason string
	GasUsed      uint64
	Refund       *big.Int
	FeeToken     common.Address
}

// RelayEnv describes the relayer's transaction carrying a meta-transaction.
type RelayEnv struct {
	Relayer    common.Address
	TxGasPrice *big.Int
}

// Call is a direct call made by an auth key EOA.
type Call struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Config holds relay economics and governance policy shared by every account.
type Config struct {
	ChainID *big.Int
	// MaxGasPrice caps the refunded gas price unless the account sets its own.
	MaxGasPrice    *big.Int
	MaxGasOverhead uint64
	// CallOverhead is the fixed gas the relay wrapper spends around the inner call.
	CallOverhead         uint64
	TimelockDelay        time.Duration
	TimelockExpireWindow time.Duration
}

// DefaultConfig returns mainnet-like defaults.
func DefaultConfig() Config {
	return Config{
		ChainID:              big.NewInt(1),
		MaxGasPrice:          big.NewInt(200_000_000_000),
		MaxGasOverhead:       50_000,
		CallOverhead:         34_000,
		TimelockDelay:        7 * 24 * time.Hour,
		TimelockExpireWindow: 7 * 24 * time.Hour,
	}
}
