package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/example/company-chat/domain/chat"
)

// PrincipalStore is the lookup the resolver needs from persistence.
type PrincipalStore interface {
	FindPrincipal(ctx context.Context, id string) (domain.Principal, error)
}

// Resolver turns a bearer credential into a Principal. It is the single
// credential-to-principal path for both HTTP requests and socket connections.
type Resolver struct {
	verifier *TokenVerifier
	store    PrincipalStore
	allowed  map[domain.Role]bool
}

// NewResolver creates a resolver. allowedRoles lists role names that may authenticate.
func NewResolver(verifier *TokenVerifier, store PrincipalStore, allowedRoles []string) (*Resolver, error) {
	allowed := make(map[domain.Role]bool, len(allowedRoles))
	for _, name := range allowedRoles {
		role, err := domain.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed role: %w", err)
		}
		allowed[role] = true
	}
	return &Resolver{verifier: verifier, store: store, allowed: allowed}, nil
}

// Resolve verifies token and resolves its principal. Every failure is
// reported as ErrUnauthorized and must not be retried with the same token.
func (r *Resolver) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, fmt.Errorf("%w: token is required", domain.ErrUnauthorized)
	}

	claims, err := r.verifier.Verify(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return domain.Principal{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	principal, err := r.store.FindPrincipal(ctx, claims.PrincipalID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Principal{}, fmt.Errorf("%w: unknown principal", domain.ErrUnauthorized)
		}
		return domain.Principal{}, fmt.Errorf("%w: principal lookup failed", domain.ErrUnauthorized)
	}

	if claims.Role != "" {
		hint, err := domain.ParseRole(claims.Role)
		if err != nil || hint != principal.Role {
			return domain.Principal{}, fmt.Errorf("%w: role claim does not match principal", domain.ErrUnauthorized)
		}
	}

	if !r.allowed[principal.Role] {
		return domain.Principal{}, fmt.Errorf("%w: role %s is not allowed", domain.ErrUnauthorized, principal.Role)
	}

	return principal, nil
}
