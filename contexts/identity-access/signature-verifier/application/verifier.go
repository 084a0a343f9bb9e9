package application

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"log/slog"
	"strings"

	domainerrors "civitas/contexts/identity-access/signature-verifier/domain/errors"
	"civitas/contexts/identity-access/signature-verifier/ports"
)

// Verifier resolves the user's registered public key and checks an ed25519
// signature over the exact payload bytes. A wrong signature returns
// (false, nil); only lookup and decoding problems surface as errors.
type Verifier struct {
	Keys   ports.KeyReader
	Logger *slog.Logger
}

func (v Verifier) Verify(ctx context.Context, userID string, payload []byte, signature string) (bool, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userID = strings.TrimSpace(userID)
	signature = strings.TrimSpace(signature)
	if userID == "" || len(payload) == 0 || signature == "" {
		return false, domainerrors.ErrInvalidInput
	}

	key, found, err := v.Keys.GetSigningKey(ctx, userID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, domainerrors.ErrKeyNotFound
	}

	publicKey, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key.PublicKey))
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		logger.Error("stored signing key is unusable",
			"event", "sigverify_malformed_key",
			"module", "identity-access/signature-verifier",
			"layer", "application",
			"user_id", userID,
		)
		return false, domainerrors.ErrMalformedKey
	}

	rawSignature, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, domainerrors.ErrBadSignatureEncoding
	}

	ok := ed25519.Verify(ed25519.PublicKey(publicKey), payload, rawSignature)
	if !ok {
		logger.Warn("signature verification failed",
			"event", "sigverify_rejected",
			"module", "identity-access/signature-verifier",
			"layer", "application",
			"user_id", userID,
		)
	}
	return ok, nil
}
