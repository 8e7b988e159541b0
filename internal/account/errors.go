package account

import (
	"errors"
)

// Kind classifies a fatal relay or administration error.
type Kind string

// Error kinds.
const (
	KindAuthorization Kind = "authorization"
	KindPolicy        Kind = "policy"
	KindGovernance    Kind = "governance"
	KindInvariant     Kind = "invariant"
	KindEconomic      Kind = "economic"
	KindExecution     Kind = "execution"
)

// Error is a stable, classified failure. Message matches the revert string
// clients already know; Code is a machine-readable identifier.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Authorization errors.
var (
	ErrAuthKeyInvalid            = newError(KindAuthorization, "AKMTA_AUTH_KEY_INVALID", "AKMTA: Auth key is invalid")
	ErrLoginKeyInvalid           = newError(KindAuthorization, "LKMTA_AUTH_KEY_INVALID", "LKMTA: Auth key is invalid")
	ErrLoginKeyExpired           = newError(KindAuthorization, "LKMTA_LOGIN_KEY_EXPIRED", "LKMTA: Login key is expired")
	ErrLoginKeyNotAbleToCallSelf = newError(KindAuthorization, "LKMTA_LOGIN_KEY_NOT_ABLE_TO_CALL_SELF", "LKMTA: Login key is not able to call self")
	ErrRequireAuthKeyOrSelf      = newError(KindAuthorization, "BA_REQUIRE_AUTH_KEY_OR_SELF", "BA: Auth key or self is invalid")
	ErrRequireSelf               = newError(KindAuthorization, "BA_REQUIRE_SELF", "BA: Only self allowed")
	ErrInvalidSignature          = newError(KindAuthorization, "BA_INVALID_SIGNATURE", "BA: Invalid signature")
)

// Policy errors.
var (
	ErrBlockedByFirewall        = newError(KindPolicy, "BA_BLOCKED_BY_FIREWALL", "BA: Transaction blocked by the firewall")
	ErrNotLargeEnoughTxGasprice = newError(KindPolicy, "BMTA_NOT_LARGE_ENOUGH_TX_GASPRICE", "BMTA: Not a large enough tx.gasprice")
)

// Governance errors.
var (
	ErrRequireTimelockContract         = newError(KindGovernance, "T_REQUIRE_TIMELOCK_CONTRACT", "T: Only this contract can call this function")
	ErrTimelockNotAbleToChange         = newError(KindGovernance, "T_NOT_ABLE_TO_CHANGE", "T: Change not able to be made")
	ErrTimelockNotAbleToInitiateChange = newError(KindGovernance, "T_NOT_ABLE_TO_INITIATE_CHANGE", "T: Change not able to be initiated")
	ErrNonContractImplementation       = newError(KindGovernance, "AU_NON_CONTRACT_ADDRESS", "AU: Cannot set a proxy implementation to a non-contract address")
)

// Invariant errors.
var (
	ErrAuthKeyAlreadyAdded      = newError(KindInvariant, "BA_AUTH_KEY_ALREADY_ADDED", "BA: Auth key already added")
	ErrAuthKeyNotYetAdded       = newError(KindInvariant, "BA_AUTH_KEY_NOT_YET_ADDED", "BA: Auth key not yet added")
	ErrCannotRemoveLastAuthKey  = newError(KindInvariant, "BA_CANNOT_REMOVE_LAST_AUTH_KEY", "BA: Cannot remove last auth key")
	ErrLoginKeyAlreadyAdded     = newError(KindInvariant, "BA_LOGIN_KEY_ALREADY_ADDED", "BA: Login key already added")
	ErrLoginKeyNotYetAdded      = newError(KindInvariant, "BA_LOGIN_KEY_NOT_YET_ADDED", "BA: Login key not yet added")
	ErrInvalidRestrictions      = newError(KindInvariant, "BA_INVALID_LOGIN_KEY_RESTRICTIONS", "BA: Invalid login key restrictions")
	ErrFirewallEntryExists      = newError(KindInvariant, "BA_FIREWALL_ENTRY_ALREADY_ADDED", "BA: Firewall entry already added")
	ErrFirewallEntryNotFound    = newError(KindInvariant, "BA_FIREWALL_ENTRY_NOT_YET_ADDED", "BA: Firewall entry not yet added")
	ErrFirewallTargetsSelf      = newError(KindInvariant, "BA_FIREWALL_TARGETS_SELF", "BA: Firewall entry must not target self")
	ErrNullAddress              = newError(KindInvariant, "BA_NULL_ADDRESS", "BA: Address must not be null")
	ErrImproperInitOrder        = newError(KindInvariant, "AI_IMPROPER_INIT_ORDER", "AI: Improper initialization order")
	ErrNonceUsed                = newError(KindInvariant, "BA_NONCE_USED", "BA: Nonce already used")
	ErrInvalidNonce             = newError(KindInvariant, "BA_INVALID_NONCE", "BA: Invalid nonce")
	ErrInvalidSignatureLength   = newError(KindInvariant, "BMTA_INVALID_SIGNATURE_LENGTH", "BMTA: Invalid signature length")
	ErrInvalidSigLength         = newError(KindInvariant, "ERC1271_INVALID_SIGNATURE_LENGTH", "ERC1271: Invalid isValidSignature _signature length")
	ErrInvalidAuthKeySigLength  = newError(KindInvariant, "ERC1271_INVALID_AUTH_KEY_SIGNATURE_LENGTH", "ERC1271: Invalid isValidAuthKeySignature _signature length")
	ErrInvalidLoginKeySigLength = newError(KindInvariant, "ERC1271_INVALID_LOGIN_KEY_SIGNATURE_LENGTH", "ERC1271: Invalid isValidLoginKeySignature _signature length")
)

// Economic errors.
var (
	ErrInsufficientGasEth   = newError(KindEconomic, "BA_INSUFFICIENT_GAS_ETH", "BA: Insufficient gas (ETH) for refund")
	ErrInsufficientGasToken = newError(KindEconomic, "BA_INSUFFICIENT_GAS_TOKEN", "BA: Insufficient gas (token) for refund")
)

// ErrGeneralRevert is returned by direct execution when the inner call fails.
var ErrGeneralRevert = newError(KindExecution, "GENERAL_REVERT", "revert")

// SilentRevertReason is the revert reason recorded on a receipt whose inner
// call failed after validation. It is an outcome, not an error.
const SilentRevertReason = "BA: Transaction reverted silently"

// AsError returns the classified error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err belongs to the relay error taxonomy. Fatal
// errors revert a whole relay; anything else raised by an inner call
// reverts it silently.
func IsFatal(err error) bool {
	_, ok := AsError(err)
	return ok
}
