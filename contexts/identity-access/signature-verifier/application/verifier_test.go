package application_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"testing"

	"civitas/contexts/identity-access/signature-verifier/adapters/memory"
	"civitas/contexts/identity-access/signature-verifier/application"
	domainerrors "civitas/contexts/identity-access/signature-verifier/domain/errors"
	"civitas/contexts/identity-access/signature-verifier/ports"
)

func newVerifierWithKey(t *testing.T, userID string) (application.Verifier, ed25519.PrivateKey) {
	t.Helper()
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	store := memory.NewStore()
	store.SetSigningKey(ports.SigningKey{
		UserID:    userID,
		PublicKey: base64.StdEncoding.EncodeToString(publicKey),
	})
	return application.Verifier{Keys: store}, privateKey
}

func TestVerifyAcceptsSignatureOverExactPayload(t *testing.T) {
	verifier, privateKey := newVerifierWithKey(t, "user-1")
	payload := []byte(`{"user_id":"user-1","reason":"budget mismatch"}`)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, payload))

	ok, err := verifier.Verify(context.Background(), "user-1", payload, signature)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	verifier, privateKey := newVerifierWithKey(t, "user-1")
	payload := []byte(`{"user_id":"user-1","reason":"budget mismatch"}`)
	signature := base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, payload))

	tampered := []byte(`{"user_id":"user-1","reason":"changed"}`)
	ok, err := verifier.Verify(context.Background(), "user-1", tampered, signature)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected tampered payload to be rejected")
	}
}

func TestVerifyUnknownUserReturnsKeyNotFound(t *testing.T) {
	verifier := application.Verifier{Keys: memory.NewStore()}
	_, err := verifier.Verify(context.Background(), "ghost", []byte("payload"), "c2ln")
	if !errors.Is(err, domainerrors.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestVerifyRejectsBadSignatureEncoding(t *testing.T) {
	verifier, _ := newVerifierWithKey(t, "user-1")
	_, err := verifier.Verify(context.Background(), "user-1", []byte("payload"), "not-base64!!")
	if !errors.Is(err, domainerrors.ErrBadSignatureEncoding) {
		t.Fatalf("expected ErrBadSignatureEncoding, got %v", err)
	}
}
