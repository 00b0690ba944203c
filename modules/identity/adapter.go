package identity

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// IdentityPort is the port other modules use to resolve principals.
type IdentityPort interface {
	Resolve(ctx context.Context, token string) (domain.Principal, error)
	GetPrincipal(ctx context.Context, principalID string) (domain.Principal, error)
	FindPrincipals(ctx context.Context, principalIDs []string) ([]domain.Principal, error)
	ListPrincipals(ctx context.Context, tenantID string) ([]domain.Principal, error)
}

// IdentityAdapter implements IdentityPort using the service container.
type IdentityAdapter struct {
	container mono.ServiceContainer
}

var _ IdentityPort = (*IdentityAdapter)(nil)

// NewIdentityAdapter creates a new IdentityAdapter.
func NewIdentityAdapter(container mono.ServiceContainer) *IdentityAdapter {
	if container == nil {
		panic("identity: ServiceContainer is nil")
	}
	return &IdentityAdapter{container: container}
}

// Resolve verifies a bearer token and returns its principal.
func (a *IdentityAdapter) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	req := ResolveTokenRequest{Token: token}
	var resp ResolveTokenResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceResolveToken,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: resolve-token request failed", domain.ErrUnauthorized)
	}
	if !resp.Valid {
		return domain.Principal{}, domain.FromCode(resp.Code, resp.Error)
	}
	return resp.Principal, nil
}

// GetPrincipal looks up a principal by id.
func (a *IdentityAdapter) GetPrincipal(ctx context.Context, principalID string) (domain.Principal, error) {
	req := GetPrincipalRequest{PrincipalID: principalID}
	var resp GetPrincipalResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetPrincipal,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: get-principal request failed: %v", domain.ErrDependency, err)
	}
	if !resp.Found {
		return domain.Principal{}, domain.FromCode(resp.Code, resp.Error)
	}
	return resp.Principal, nil
}

// FindPrincipals resolves a batch of ids; unknown ids are omitted.
func (a *IdentityAdapter) FindPrincipals(ctx context.Context, principalIDs []string) ([]domain.Principal, error) {
	req := FindPrincipalsRequest{PrincipalIDs: principalIDs}
	var resp PrincipalsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceFindPrincipals,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%w: find-principals request failed: %v", domain.ErrDependency, err)
	}
	if resp.Code != "" {
		return nil, domain.FromCode(resp.Code, resp.Error)
	}
	return resp.Principals, nil
}

// ListPrincipals returns all principals of a tenant.
func (a *IdentityAdapter) ListPrincipals(ctx context.Context, tenantID string) ([]domain.Principal, error) {
	req := ListPrincipalsRequest{TenantID: tenantID}
	var resp PrincipalsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceListPrincipals,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%w: list-principals request failed: %v", domain.ErrDependency, err)
	}
	if resp.Code != "" {
		return nil, domain.FromCode(resp.Code, resp.Error)
	}
	return resp.Principals, nil
}
