package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// VerifyCallbackHMAC checks the hmac parameter the platform appends to OAuth
// callback URLs. The message is every query parameter except hmac/signature,
// sorted lexicographically and joined as k=v pairs with '&'; the digest is
// hex-encoded HMAC-SHA256 under the shared app secret.
func VerifyCallbackHMAC(query url.Values, secret string) bool {
	provided := strings.TrimSpace(query.Get("hmac"))
	if provided == "" || secret == "" {
		return false
	}

	pairs := make([]string, 0, len(query))
	for key, values := range query {
		if key == "hmac" || key == "signature" {
			continue
		}
		for _, v := range values {
			pairs = append(pairs, key+"="+v)
		}
	}
	sort.Strings(pairs)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))

	decoded, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}
	return hmac.Equal(mac.Sum(nil), decoded)
}
