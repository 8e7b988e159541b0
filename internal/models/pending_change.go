package models

import "time"

// PendingChange is a stored timelock change, as seen across all accounts.
type PendingChange struct {
	Account  string    `json:"account" db:"account"`
	Field    string    `json:"field" db:"field"`
	UnlockAt time.Time `json:"unlock_at" db:"unlock_at"`
}
