package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrStateInvalid = errors.New("invalid state token")
	ErrStateExpired = errors.New("state token expired")
)

// StateClaims travels through the OAuth round trip so the callback can
// restore the context the flow started from.
type StateClaims struct {
	ShopDomain string `json:"shop"`
	Embedded   bool   `json:"embedded"`
	Nonce      string `json:"nonce"`
	ExpiresAt  int64  `json:"exp"`
}

// SignState encodes and signs state claims as payload.sig, both raw-URL
// base64, HMAC-SHA256 under the given secret.
func SignState(claims StateClaims, ttl time.Duration, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required for state signing")
	}
	claims.ExpiresAt = time.Now().Add(ttl).Unix()
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	sig := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyState checks integrity and expiry and returns the embedded claims.
func VerifyState(token, secret string) (*StateClaims, error) {
	if secret == "" {
		return nil, errors.New("secret is required for state verification")
	}
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrStateInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrStateInvalid
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrStateInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), sig) {
		return nil, ErrStateInvalid
	}
	var claims StateClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrStateInvalid
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return nil, ErrStateExpired
	}
	return &claims, nil
}
