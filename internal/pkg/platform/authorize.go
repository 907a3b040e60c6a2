package platform

import (
	"errors"
	"net/url"
	"strings"
)

// RequiredScopes is what the app requests at install time.
const RequiredScopes = "read_products,read_orders,read_customers"

// AuthorizeURL builds the platform authorization URL for the OAuth
// redirect, embedding the signed state.
func (c *Client) AuthorizeURL(shopDomain, redirectURI, state string) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", errors.New("SHOPIFY_API_KEY is not configured")
	}
	if strings.TrimSpace(redirectURI) == "" {
		return "", errors.New("redirect URI is required")
	}

	u := url.URL{Scheme: "https", Host: shopDomain, Path: "/admin/oauth/authorize"}
	q := u.Query()
	q.Set("client_id", c.APIKey)
	q.Set("scope", RequiredScopes)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
