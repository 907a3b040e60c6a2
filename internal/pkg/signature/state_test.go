package signature

import (
	"strings"
	"testing"
	"time"
)

func TestSignAndVerifyState(t *testing.T) {
	secret := "state-secret"
	claims := StateClaims{ShopDomain: "example.myshopify.com", Embedded: true, Nonce: "n1"}

	token, err := SignState(claims, 10*time.Minute, secret)
	if err != nil {
		t.Fatalf("SignState failed: %v", err)
	}

	got, err := VerifyState(token, secret)
	if err != nil {
		t.Fatalf("VerifyState failed: %v", err)
	}
	if got.ShopDomain != claims.ShopDomain || !got.Embedded || got.Nonce != "n1" {
		t.Fatalf("claims mismatch: %+v", got)
	}
}

func TestVerifyState_Expired(t *testing.T) {
	secret := "state-secret"
	token, err := SignState(StateClaims{ShopDomain: "example.myshopify.com"}, -time.Minute, secret)
	if err != nil {
		t.Fatalf("SignState failed: %v", err)
	}
	if _, err := VerifyState(token, secret); err != ErrStateExpired {
		t.Fatalf("expected ErrStateExpired, got %v", err)
	}
}

func TestVerifyState_Tampered(t *testing.T) {
	secret := "state-secret"
	token, err := SignState(StateClaims{ShopDomain: "example.myshopify.com"}, time.Minute, secret)
	if err != nil {
		t.Fatalf("SignState failed: %v", err)
	}

	if _, err := VerifyState(token, "other-secret"); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid for wrong secret, got %v", err)
	}
	if _, err := VerifyState("no-dot-here", secret); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid for malformed token, got %v", err)
	}

	parts := strings.SplitN(token, ".", 2)
	if _, err := VerifyState(parts[0]+".AAAA"+parts[1][4:], secret); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid for tampered signature, got %v", err)
	}
}
