package errors

import "errors"

var (
	ErrInvalidInput      = errors.New("ledger input is invalid")
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrEntryNotFound     = errors.New("ledger entry not found")
	ErrAmountMissing     = errors.New("monetary proposal has no amount")
	ErrTreasuryNotSeeded = errors.New("system config treasury row is missing")
	ErrConflict          = errors.New("ledger conflict")
	ErrDuplicateEntry    = errors.New("ledger entry already exists for proposal")
)
