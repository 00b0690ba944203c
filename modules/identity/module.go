package identity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/company-chat/config"
	"github.com/example/company-chat/database"
	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/gorm"
)

// Module resolves credentials and principals for the rest of the application.
type Module struct {
	db       *gorm.DB
	cfg      config.AuthConfig
	repo     *Repository
	verifier *TokenVerifier
	resolver *Resolver
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new identity module over a shared database handle.
func NewModule(db *gorm.DB, cfg config.AuthConfig, logger types.Logger) *Module {
	return &Module{
		db:     db,
		cfg:    cfg,
		logger: logger.WithModule("identity"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "identity"
}

// Start migrates the principal tables and builds the resolver.
func (m *Module) Start(ctx context.Context) error {
	if err := m.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate identity tables: %w", err)
	}
	m.repo = NewRepository(m.db)

	if m.cfg.JWKSURL != "" {
		verifier, err := NewJWKSVerifier(context.Background(), m.cfg.JWKSURL, m.cfg.Issuer, m.logger)
		if err != nil {
			return err
		}
		m.verifier = verifier
	} else {
		m.verifier = NewHMACVerifier(m.cfg.Secret, m.cfg.Issuer)
	}

	resolver, err := NewResolver(m.verifier, m.repo, m.cfg.AllowedRoles)
	if err != nil {
		return err
	}
	m.resolver = resolver

	m.logger.Info("Identity module started", "jwks", m.cfg.JWKSURL != "", "allowedRoles", m.cfg.AllowedRoles)
	return nil
}

// Stop releases the verifier.
func (m *Module) Stop(_ context.Context) error {
	if m.verifier != nil {
		m.verifier.Close()
	}
	m.logger.Info("Identity module stopped")
	return nil
}

// Health reports database reachability.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if err := database.Ping(m.db); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"jwks": m.cfg.JWKSURL != "",
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceResolveToken, json.Unmarshal, json.Marshal, m.handleResolveToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceResolveToken, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetPrincipal, json.Unmarshal, json.Marshal, m.handleGetPrincipal,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetPrincipal, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceFindPrincipals, json.Unmarshal, json.Marshal, m.handleFindPrincipals,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceFindPrincipals, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListPrincipals, json.Unmarshal, json.Marshal, m.handleListPrincipals,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListPrincipals, err)
	}

	m.logger.Info("Registered services",
		"services", []string{ServiceResolveToken, ServiceGetPrincipal, ServiceFindPrincipals, ServiceListPrincipals})
	return nil
}

// Resolution failures are returned in the response body, not as errors.

func (m *Module) handleResolveToken(ctx context.Context, req ResolveTokenRequest, _ *mono.Msg) (ResolveTokenResponse, error) {
	principal, err := m.resolver.Resolve(ctx, req.Token)
	if err != nil {
		m.logger.Debug("Token rejected", "error", err)
		return ResolveTokenResponse{Valid: false, Code: domain.Code(err), Error: err.Error()}, nil
	}
	return ResolveTokenResponse{Valid: true, Principal: principal}, nil
}

func (m *Module) handleGetPrincipal(ctx context.Context, req GetPrincipalRequest, _ *mono.Msg) (GetPrincipalResponse, error) {
	principal, err := m.repo.FindPrincipal(ctx, req.PrincipalID)
	if err != nil {
		return GetPrincipalResponse{Found: false, Code: domain.Code(err), Error: err.Error()}, nil
	}
	return GetPrincipalResponse{Found: true, Principal: principal}, nil
}

func (m *Module) handleFindPrincipals(ctx context.Context, req FindPrincipalsRequest, _ *mono.Msg) (PrincipalsResponse, error) {
	principals, err := m.repo.FindMany(ctx, req.PrincipalIDs)
	if err != nil {
		m.logger.Error("Failed to find principals", "error", err)
		return PrincipalsResponse{Code: domain.Code(err), Error: err.Error()}, nil
	}
	return PrincipalsResponse{Principals: principals}, nil
}

func (m *Module) handleListPrincipals(ctx context.Context, req ListPrincipalsRequest, _ *mono.Msg) (PrincipalsResponse, error) {
	principals, err := m.repo.ListByTenant(ctx, req.TenantID)
	if err != nil {
		m.logger.Error("Failed to list principals", "tenantID", req.TenantID, "error", err)
		return PrincipalsResponse{Code: domain.Code(err), Error: err.Error()}, nil
	}
	return PrincipalsResponse{Principals: principals}, nil
}
