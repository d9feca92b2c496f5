// Package auth verifies the access tokens issued by the external account
// service and turns them into a Principal for the chat core.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingToken is returned when the request carries no token at all.
	ErrMissingToken = errors.New("missing token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// Principal is the verified identity attached to a request.
type Principal struct {
	UserID string
	Role   string
}

// TokenManager issues and verifies access tokens.
type TokenManager interface {
	Issue(p Principal, now time.Time) (token string, exp time.Time, err error)
	Verify(token string, now time.Time) (Principal, error)
}

// Authenticator extracts and verifies the access token of a request.
type Authenticator struct {
	tokens     TokenManager
	cookieName string
	now        func() time.Time
}

// NewAuthenticator reads tokens from cookieName first, then from a Bearer header.
func NewAuthenticator(tokens TokenManager, cookieName string) *Authenticator {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultCookieName
	}
	return &Authenticator{
		tokens:     tokens,
		cookieName: cookieName,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate returns the request principal, ErrMissingToken or ErrInvalidToken.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	if a == nil || a.tokens == nil {
		return Principal{}, ErrInvalidToken
	}
	raw := ""
	if c, err := r.Cookie(a.cookieName); err == nil {
		raw = strings.TrimSpace(c.Value)
	}
	if raw == "" {
		raw = BearerToken(r)
	}
	if raw == "" {
		return Principal{}, ErrMissingToken
	}
	p, err := a.tokens.Verify(raw, a.now())
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
