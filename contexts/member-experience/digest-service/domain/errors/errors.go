package errors

import "errors"

var (
	ErrInvalidInput   = errors.New("digest: invalid input")
	ErrUserNotFound   = errors.New("digest: user not found")
	ErrAgentNotFound  = errors.New("digest: user has no onboarded agent")
	ErrDigestNotFound = errors.New("digest: digest not found")
	ErrConflict       = errors.New("digest: conflicting concurrent write")
)
