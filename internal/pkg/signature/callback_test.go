package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"
)

func callbackHMAC(message, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyCallbackHMAC(t *testing.T) {
	secret := "app-secret"
	q := url.Values{}
	q.Set("code", "abc123")
	q.Set("shop", "example.myshopify.com")
	q.Set("state", "xyz")
	q.Set("timestamp", "1700000000")
	q.Set("hmac", callbackHMAC("code=abc123&shop=example.myshopify.com&state=xyz&timestamp=1700000000", secret))

	if !VerifyCallbackHMAC(q, secret) {
		t.Fatalf("expected valid callback hmac to verify")
	}
}

func TestVerifyCallbackHMAC_OrderIndependent(t *testing.T) {
	// The digest is over sorted pairs, so parameter arrival order must not
	// matter.
	secret := "app-secret"
	digest := callbackHMAC("a=1&b=2&c=3", secret)

	q := url.Values{}
	q.Set("c", "3")
	q.Set("a", "1")
	q.Set("b", "2")
	q.Set("hmac", digest)

	if !VerifyCallbackHMAC(q, secret) {
		t.Fatalf("expected hmac to verify regardless of parameter order")
	}
}

func TestVerifyCallbackHMAC_SignatureKeyExcluded(t *testing.T) {
	secret := "app-secret"
	q := url.Values{}
	q.Set("shop", "example.myshopify.com")
	q.Set("signature", "legacy-value")
	q.Set("hmac", callbackHMAC("shop=example.myshopify.com", secret))

	if !VerifyCallbackHMAC(q, secret) {
		t.Fatalf("expected legacy signature param to be excluded from digest")
	}
}

func TestVerifyCallbackHMAC_Rejections(t *testing.T) {
	secret := "app-secret"

	q := url.Values{}
	q.Set("shop", "example.myshopify.com")
	if VerifyCallbackHMAC(q, secret) {
		t.Fatalf("expected missing hmac to fail")
	}

	q.Set("hmac", callbackHMAC("shop=example.myshopify.com", "wrong-secret"))
	if VerifyCallbackHMAC(q, secret) {
		t.Fatalf("expected wrong-secret hmac to fail")
	}

	q.Set("hmac", callbackHMAC("shop=example.myshopify.com", secret))
	q.Set("shop", "tampered.myshopify.com")
	if VerifyCallbackHMAC(q, secret) {
		t.Fatalf("expected tampered params to fail")
	}
}
