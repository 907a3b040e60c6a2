// Package sessiontoken verifies the bearer tokens the platform issues to
// embedded admin surfaces. Tokens are HS256 JWTs signed with the shared app
// secret; the audience must equal this app's API key and the destination
// claim names the shop the request executes against.
package sessiontoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired          = errors.New("session token expired")
	ErrTokenInvalidSignature = errors.New("session token signature invalid")
	ErrTokenInvalidAudience  = errors.New("session token audience invalid")
	ErrTokenMalformed        = errors.New("session token malformed")
)

// Claims mirrors the platform's session-token payload. All fields are
// required; a token missing any of them is rejected.
type Claims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// Verifier checks embedded session tokens against the app credentials.
type Verifier struct {
	apiKey    string
	apiSecret string
}

func NewVerifier(apiKey, apiSecret string) *Verifier {
	return &Verifier{apiKey: apiKey, apiSecret: apiSecret}
}

// Verify parses and validates a session token and returns the shop domain
// from the destination claim.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(v.apiSecret), nil
	}, jwt.WithAudience(v.apiKey), jwt.WithExpirationRequired())

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrTokenInvalidAudience
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenInvalidSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !token.Valid {
		return nil, ErrTokenInvalidSignature
	}

	// iss/dest/sub/iat must all be present; the platform always sends them.
	if claims.Issuer == "" || claims.Subject == "" || claims.IssuedAt == nil || claims.Dest == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// ShopDomain extracts the bare shop domain from the destination claim,
// which arrives as "https://<shop>.myshopify.com".
func (c *Claims) ShopDomain() string {
	dest := strings.TrimSpace(c.Dest)
	dest = strings.TrimPrefix(dest, "https://")
	dest = strings.TrimPrefix(dest, "http://")
	if i := strings.IndexByte(dest, '/'); i >= 0 {
		dest = dest[:i]
	}
	return strings.ToLower(dest)
}

// Sign issues a token with the verifier's credentials. Used by tests and the
// local development tunnel; production tokens come from the platform.
func (v *Verifier) Sign(shopDomain, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Dest: "https://" + shopDomain,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shopDomain + "/admin",
			Audience:  jwt.ClaimStrings{v.apiKey},
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(v.apiSecret))
}
