package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Processor signature errors. Callers collapse these into a single
// authentication failure before responding; the distinction is for logs.
var (
	ErrSignatureMalformed = errors.New("signature header malformed")
	ErrSignatureExpired   = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

// ProcessorTolerance bounds how old a processor webhook timestamp may be.
// Anything older is treated as a possible replay.
const ProcessorTolerance = 5 * time.Minute

// VerifyPlatformWebhook checks the platform's webhook signature: HMAC-SHA256
// over the raw body, base64-encoded in the header. Verification must run on
// the raw request bytes, before any JSON decoding.
func VerifyPlatformWebhook(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || secret == "" {
		return false
	}

	expected, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

// VerifyProcessorWebhook checks the payment processor's timestamped scheme:
// the header carries "t=<unix>,v1=<hex>" where v1 is HMAC-SHA256 over
// "<t>.<raw body>". The timestamp must be within ProcessorTolerance of now.
func VerifyProcessorWebhook(payload []byte, signatureHeader, secret string, now time.Time) error {
	header := strings.TrimSpace(signatureHeader)
	if header == "" || secret == "" {
		return ErrSignatureMalformed
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrSignatureMalformed
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrSignatureMalformed
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > ProcessorTolerance || age < -ProcessorTolerance {
		return ErrSignatureExpired
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, s := range sigs {
		decoded, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(s)))
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			return nil
		}
	}
	return ErrSignatureMismatch
}
