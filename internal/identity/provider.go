// Package identity turns an opaque bearer credential into the rbac.User the
// guard evaluates. It never inspects how the credential was minted beyond
// looking it up.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldops/fieldops/internal/rbac"
)

// ErrUnauthenticated is returned when no identity can be established.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Provider resolves a credential to a user.
type Provider interface {
	Identify(ctx context.Context, credential string) (*rbac.User, error)
}

// PrincipalLoader loads the role and permission overrides of an account.
// Implementations return an error wrapping ErrUnauthenticated for unknown or
// inactive accounts.
type PrincipalLoader interface {
	LoadPrincipal(ctx context.Context, userID int64) (*rbac.User, error)
}

// SessionProvider resolves bearer tokens issued by TokenStore. The principal
// is loaded on every call so permission changes apply on the next request.
type SessionProvider struct {
	tokens *TokenStore
	loader PrincipalLoader
}

// NewSessionProvider constructs a SessionProvider.
func NewSessionProvider(tokens *TokenStore, loader PrincipalLoader) *SessionProvider {
	return &SessionProvider{tokens: tokens, loader: loader}
}

// Identify implements Provider.
func (p *SessionProvider) Identify(ctx context.Context, credential string) (*rbac.User, error) {
	userID, err := p.tokens.Lookup(ctx, credential)
	if err != nil {
		return nil, err
	}
	user, err := p.loader.LoadPrincipal(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("identity: load principal %d: %w", userID, err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}
