// Package token defines the TokenProvider boundary between the core and
// the out-of-scope OAuth/persistence collaborator (spec §1, §3
// TwitchToken). The core never inspects or stores the access value; it
// asks for one on demand and signals refresh on 401.
package token

import (
	"context"
	"errors"
	"os"
)

// ErrAuthenticationRequired is returned when no live token can be
// produced and the caller must stop issuing Helix calls until the
// provider signals a refresh.
var ErrAuthenticationRequired = errors.New("authentication required")

// Provider supplies the current Twitch access token on demand and
// performs a refresh when asked. Implementations own all expiry
// arithmetic; the core treats the returned string as opaque.
type Provider interface {
	// Token returns the current access token, or ErrAuthenticationRequired
	// if none is available and cannot be refreshed.
	Token(ctx context.Context) (string, error)
	// Refresh forces a refresh, called after a 401 from Helix.
	Refresh(ctx context.Context) error
}

// EnvProvider is a minimal Provider backed by a single environment
// variable, used for composition and local testing only — it never
// refreshes anything, consistent with token persistence being an
// external collaborator concern.
type EnvProvider struct {
	envVar string
}

// NewEnvProvider returns a Provider that reads its access token from the
// named environment variable on every call.
func NewEnvProvider(envVar string) *EnvProvider {
	return &EnvProvider{envVar: envVar}
}

// Token implements Provider.
func (p *EnvProvider) Token(ctx context.Context) (string, error) {
	tok := os.Getenv(p.envVar)
	if tok == "" {
		return "", ErrAuthenticationRequired
	}
	return tok, nil
}

// Refresh implements Provider. EnvProvider cannot refresh; it reports
// success when the variable is set, relying on the external collaborator
// to have rotated the environment value out of band, and returns
// ErrAuthenticationRequired when the variable is empty.
func (p *EnvProvider) Refresh(ctx context.Context) error {
	if os.Getenv(p.envVar) == "" {
		return ErrAuthenticationRequired
	}
	return nil
}
