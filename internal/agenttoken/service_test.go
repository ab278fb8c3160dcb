package agenttoken

import (
	"testing"
	"time"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, expiresIn, err := svc.Mint("client-a", []string{"agent-x", "agent-y"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if expiresIn != 3600 {
		t.Fatalf("expected 3600s lifetime, got %d", expiresIn)
	}

	principal, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.ClientID != "client-a" {
		t.Fatalf("expected client-a, got %s", principal.ClientID)
	}
	if len(principal.AllowedTargets) != 2 || principal.AllowedTargets[0] != "agent-x" {
		t.Fatalf("unexpected allowed targets: %v", principal.AllowedTargets)
	}
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	svc := NewService("secret-one", time.Hour)
	other := NewService("secret-two", time.Hour)

	token, _, err := svc.Mint("client-a", nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := other.Verify(token); err == nil {
		t.Fatalf("expected verification to fail against a different secret")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	// Built directly: NewService would replace a non-positive duration
	// with DefaultTokenDuration.
	svc := &Service{secret: []byte("test-secret"), duration: -time.Minute}

	token, _, err := svc.Mint("client-a", nil)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := svc.Verify(token); err == nil {
		t.Fatalf("expected verification to fail for an expired token")
	}
}

func TestCredentialStoreConstantTimeVerify(t *testing.T) {
	store := NewCredentialStore([]ClientCredential{
		{ClientID: "alpha", ClientSecret: "s3cret", AllowedTargets: []string{"agent-1"}},
	})

	if _, ok := store.Verify("alpha", "wrong"); ok {
		t.Fatalf("expected verification to fail with wrong secret")
	}
	if _, ok := store.Verify("missing", "s3cret"); ok {
		t.Fatalf("expected verification to fail for unknown client")
	}
	targets, ok := store.Verify("alpha", "s3cret")
	if !ok || len(targets) != 1 || targets[0] != "agent-1" {
		t.Fatalf("expected successful verify with allowed targets, got %v ok=%v", targets, ok)
	}
}
