package errors

import "errors"

var (
	ErrInvalidVoteInput       = errors.New("invalid vote input")
	ErrVoteNotFound           = errors.New("vote not found")
	ErrProposalNotFound       = errors.New("proposal not found")
	ErrProposalClosed         = errors.New("proposal is closed")
	ErrAgentNotFound          = errors.New("agent not found")
	ErrNotVoteOwner           = errors.New("vote does not belong to the acting user")
	ErrSignatureRequired      = errors.New("override request signature is required")
	ErrSignatureInvalid       = errors.New("override request signature is invalid")
	ErrConflict               = errors.New("vote conflict")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
)
