// Package account implements the authorization and meta-transaction engine
// of a smart-contract wallet.
//
// An account is controlled by two classes of keys. Auth keys have full
// control, including the administrative surface (key management, firewall,
// timelocked settings). Login keys are restricted: they expire, they may be
// limited to a set of function selectors, and they can never call the
// account itself.
//
// Keys sign meta-transactions which a relayer submits and pays gas for; the
// account then refunds the relayer in ETH or in a fee token. A meta-transaction
// either fails as a whole (hard revert: nothing changes, the relayer is not
// paid) or executes, in which case a failing inner call only marks the
// receipt as silently reverted while the nonce is consumed and the relayer
// refunded.
//
// Auth keys may also transact with the account directly, without a relayer,
// through ExecuteDirect and CallAdmin.
package account
