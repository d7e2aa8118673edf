package ledger

import "errors"

var (
	ErrUserNotFound      = errors.New("ledger: user not found")
	ErrUserAlreadyExists = errors.New("ledger: user already exists")

	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	ErrInsufficientBalance = errors.New("ledger: insufficient token balance")

	// ErrReferralAlreadyPaid rejects a WithReferralPaid credit for a user
	// whose bonus was already claimed. Nothing is persisted in that case.
	ErrReferralAlreadyPaid = errors.New("ledger: referral bonus already paid")

	// ErrLedgerWriteIncomplete indicates the user record was persisted but a
	// dependent append (transaction, payment or snapshot) failed. The balance
	// can be recovered by Service.Recompute.
	ErrLedgerWriteIncomplete = errors.New("ledger: write incomplete, balance requires recomputation")
)
