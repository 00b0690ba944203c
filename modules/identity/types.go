package identity

import domain "github.com/example/company-chat/domain/chat"

// Service names registered in the container.
const (
	ServiceResolveToken   = "resolve-token"
	ServiceGetPrincipal   = "get-principal"
	ServiceFindPrincipals = "find-principals"
	ServiceListPrincipals = "list-principals"
)

// ResolveTokenRequest asks for the principal behind a bearer token.
type ResolveTokenRequest struct {
	Token string `json:"token"`
}

// ResolveTokenResponse carries a principal, or an error code when resolution failed.
type ResolveTokenResponse struct {
	Valid     bool             `json:"valid"`
	Principal domain.Principal `json:"principal"`
	Code      string           `json:"code,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// GetPrincipalRequest looks up a single principal by id.
type GetPrincipalRequest struct {
	PrincipalID string `json:"principal_id"`
}

// GetPrincipalResponse returns the principal, or an error code.
type GetPrincipalResponse struct {
	Found     bool             `json:"found"`
	Principal domain.Principal `json:"principal"`
	Code      string           `json:"code,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// FindPrincipalsRequest resolves a batch of ids.
type FindPrincipalsRequest struct {
	PrincipalIDs []string `json:"principal_ids"`
}

// ListPrincipalsRequest lists a tenant's principals.
type ListPrincipalsRequest struct {
	TenantID string `json:"tenant_id"`
}

// PrincipalsResponse is returned by the batch and list services.
type PrincipalsResponse struct {
	Principals []domain.Principal `json:"principals"`
	Code       string             `json:"code,omitempty"`
	Error      string             `json:"error,omitempty"`
}
