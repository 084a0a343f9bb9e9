package ports

import "context"

// SigningKey is a user's registered ed25519 public key, base64 raw encoding.
type SigningKey struct {
	UserID    string
	PublicKey string
}

type KeyReader interface {
	GetSigningKey(ctx context.Context, userID string) (SigningKey, bool, error)
}
