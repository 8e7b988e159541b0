// Package models holds persisted records.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lapolinarweb/contracts/internal/account"
)

// Receipt is the persisted record of a relayed meta-transaction.
type Receipt struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Account      string    `json:"account" db:"account"`
	TxHash       string    `json:"tx_hash" db:"tx_hash"`
	Nonce        uint64    `json:"nonce" db:"nonce"`
	Signer       string    `json:"signer" db:"signer"`
	KeyClass     string    `json:"key_class" db:"key_class"`
	Relayer      string    `json:"relayer" db:"relayer"`
	Outcome      string    `json:"outcome" db:"outcome"`
	RevertReason *string   `json:"revert_reason,omitempty" db:"revert_reason"`
	ReturnData   []byte    `json:"return_data,omitempty" db:"return_data"`
	GasUsed      uint64    `json:"gas_used" db:"gas_used"`
	Refund       string    `json:"refund" db:"refund"` // wei or fee token units, decimal
	FeeToken     string    `json:"fee_token" db:"fee_token"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewReceipt converts an execution receipt into a record with a fresh ID.
func NewReceipt(r *account.Receipt) *Receipt {
	rec := &Receipt{
		ID:         uuid.New(),
		Account:    r.Account.Hex(),
		TxHash:     r.Hash.Hex(),
		Nonce:      r.Nonce,
		Signer:     r.Signer.Hex(),
		KeyClass:   r.KeyClass.String(),
		Relayer:    r.Relayer.Hex(),
		Outcome:    string(r.Outcome),
		ReturnData: r.ReturnData,
		GasUsed:    r.GasUsed,
		Refund:     "0",
		FeeToken:   r.FeeToken.Hex(),
	}
	if r.RevertReason != "" {
		reason := r.RevertReason
		rec.RevertReason = &reason
	}
	if r.Refund != nil {
		rec.Refund = r.Refund.String()
	}
	return rec
}
