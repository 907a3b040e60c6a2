package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func platformSig(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyPlatformWebhook(t *testing.T) {
	payload := []byte(`{"id":12345,"domain":"example.myshopify.com"}`)
	secret := "shpss_test_secret"

	if !VerifyPlatformWebhook(payload, platformSig(payload, secret), secret) {
		t.Fatalf("expected valid signature to verify")
	}
	if VerifyPlatformWebhook(payload, platformSig(payload, "other"), secret) {
		t.Fatalf("expected wrong-secret signature to fail")
	}
	if VerifyPlatformWebhook(payload, "", secret) {
		t.Fatalf("expected empty signature to fail")
	}
	if VerifyPlatformWebhook(payload, "not-base64!!!", secret) {
		t.Fatalf("expected undecodable signature to fail")
	}
}

func TestVerifyPlatformWebhook_FlippedByte(t *testing.T) {
	payload := []byte(`{"id":12345}`)
	secret := "s"
	sig := platformSig(payload, secret)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if VerifyPlatformWebhook(mutated, sig, secret) {
			t.Fatalf("expected signature to fail with byte %d flipped", i)
		}
	}
}

func processorSig(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyProcessorWebhook(t *testing.T) {
	payload := []byte(`{"type":"invoice.payment_failed"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	if err := VerifyProcessorWebhook(payload, processorSig(payload, secret, now.Unix()), secret, now); err != nil {
		t.Fatalf("expected fresh signature to verify, got %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "empty", header: "", want: ErrSignatureMalformed},
		{name: "no timestamp", header: "v1=deadbeef", want: ErrSignatureMalformed},
		{name: "no digest", header: "t=1700000000", want: ErrSignatureMalformed},
		{name: "bad timestamp", header: "t=abc,v1=deadbeef", want: ErrSignatureMalformed},
		{name: "stale", header: processorSig(payload, secret, now.Add(-6*time.Minute).Unix()), want: ErrSignatureExpired},
		{name: "future", header: processorSig(payload, secret, now.Add(6*time.Minute).Unix()), want: ErrSignatureExpired},
		{name: "wrong secret", header: processorSig(payload, "other", now.Unix()), want: ErrSignatureMismatch},
	}

	for _, tt := range tests {
		if err := VerifyProcessorWebhook(payload, tt.header, secret, now); err != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestVerifyProcessorWebhook_FlippedByte(t *testing.T) {
	payload := []byte(`{"type":"customer.subscription.deleted"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)
	header := processorSig(payload, secret, now.Unix())

	mutated := append([]byte(nil), payload...)
	mutated[3] ^= 0x01
	if err := VerifyProcessorWebhook(mutated, header, secret, now); err != ErrSignatureMismatch {
		t.Fatalf("expected mismatch for mutated payload, got %v", err)
	}
}

func TestVerifyProcessorWebhook_SecondDigestAccepted(t *testing.T) {
	// Key rotation sends multiple v1 entries; any matching one passes.
	payload := []byte(`{}`)
	secret := "whsec_new"
	now := time.Unix(1700000000, 0)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.", now.Unix())))
	mac.Write(payload)
	good := hex.EncodeToString(mac.Sum(nil))

	header := fmt.Sprintf("t=%d,v1=%s,v1=%s", now.Unix(), "00ff00ff", good)
	if err := VerifyProcessorWebhook(payload, header, secret, now); err != nil {
		t.Fatalf("expected rotated-key digest to verify, got %v", err)
	}
}
