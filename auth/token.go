// Package auth supplies bearer credentials for API calls. Token issuance and
// verification live entirely outside this client; all we do here is hand the
// current token to the HTTP layer and refresh it before it goes stale.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider supplies the bearer credential attached to every API request.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token, typically read from the environment.
type Static string

func (s Static) Token(_ context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no API token configured")
	}
	return string(s), nil
}

// RefreshFunc mints a fresh bearer token.
type RefreshFunc func(ctx context.Context) (string, error)

// Caching wraps a RefreshFunc and re-mints the token shortly before its JWT
// expiry. Tokens without a readable expiry claim are refreshed on every call
// chain start but otherwise reused.
type Caching struct {
	refresh RefreshFunc
	leeway  time.Duration

	mu      sync.Mutex
	current string
	expires time.Time
}

// NewCaching creates a caching provider. leeway is how long before expiry a
// token is already considered stale.
func NewCaching(refresh RefreshFunc, leeway time.Duration) *Caching {
	return &Caching{refresh: refresh, leeway: leeway}
}

func (c *Caching) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != "" && !c.expires.IsZero() && time.Now().Add(c.leeway).Before(c.expires) {
		return c.current, nil
	}

	token, err := c.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to refresh bearer token: %w", err)
	}

	c.current = token
	c.expires = tokenExpiry(token)
	return token, nil
}

// tokenExpiry reads the exp claim without verifying the signature.
// Verification is the server's job; we only need the deadline.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		log.Warnf("Could not parse bearer token expiry: %v", err)
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
