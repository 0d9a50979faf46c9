// Package auth holds the shared-token credentials displays use against the
// order backend, and the bearer check guarding the relay control plane.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// TokenHeader carries the display's API token on every backend call.
const TokenHeader = "X-API-Token"

// Credentials holds the token a display presents to the order backend.
type Credentials struct {
	Token string
}

// LoadCredentials returns credentials from an inline token or, when token is
// empty, from the first line of tokenFile.
func LoadCredentials(token, tokenFile string) (*Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" && tokenFile != "" {
		data, err := os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("read token file: %w", err)
		}
		token, _, _ = strings.Cut(string(data), "\n")
		token = strings.TrimSpace(token)
	}
	if token == "" {
		return nil, fmt.Errorf("API token is required")
	}
	return &Credentials{Token: token}, nil
}

// Headers returns the authentication headers for a backend request.
func (c *Credentials) Headers() map[string]string {
	if c == nil || c.Token == "" {
		return nil
	}
	return map[string]string{TokenHeader: c.Token}
}

// Apply sets the authentication headers on req.
func (c *Credentials) Apply(req *http.Request) {
	for k, v := range c.Headers() {
		req.Header.Set(k, v)
	}
}

// CheckBearer reports whether an Authorization header value carries want as
// a bearer token. An empty want disables the check.
func CheckBearer(header, want string) bool {
	if want == "" {
		return true
	}
	got, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) == 1
}
