package errors

import "errors"

var (
	ErrInvalidInput         = errors.New("sigverify: invalid input")
	ErrUserNotFound         = errors.New("sigverify: user not found")
	ErrKeyNotFound          = errors.New("sigverify: no signing key registered for user")
	ErrMalformedKey         = errors.New("sigverify: stored public key is malformed")
	ErrBadSignatureEncoding = errors.New("sigverify: signature is not valid base64")
)
