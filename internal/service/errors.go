package service

import "errors"

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidPhone       = errors.New("phone must match the Telebirr format 251XXXXXXXXX")
	ErrInvalidPayload     = errors.New("malformed webhook payload")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLedgerDivergence means an account balance no longer equals the sum of
	// its ledger entries. Never ignored: reconciliation records and surfaces it.
	ErrLedgerDivergence = errors.New("ledger divergence detected")

	// ErrReconciliationRequired means a claim was debited but the transfer
	// failed on every attempt. The compensating reversal restores the balance;
	// the caller sees a transient failure, never a silently lost debit.
	ErrReconciliationRequired = errors.New("transfer failed, payout reversal pending")
)
