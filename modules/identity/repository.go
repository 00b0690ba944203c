package identity

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/company-chat/domain/chat"
	"gorm.io/gorm"
)

// collection binds a principal table to the role it yields.
type collection struct {
	role        domain.Role
	table       string
	displayName string // column holding the display name
}

// lookupOrder is the priority in which principal tables are searched.
// An id is assumed unique across tables; the first hit wins.
var lookupOrder = []collection{
	{role: domain.RoleMember, table: "members", displayName: "username"},
	{role: domain.RoleAdmin, table: "admins", displayName: "username"},
	{role: domain.RoleClient, table: "clients", displayName: "name"},
}

// Repository reads principals from the three disjoint principal tables.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new principal repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindPrincipal resolves id against members, then admins, then clients.
func (r *Repository) FindPrincipal(ctx context.Context, id string) (domain.Principal, error) {
	for _, c := range lookupOrder {
		var row principalRow
		err := r.db.WithContext(ctx).Table(c.table).
			Select("id, tenant_id, email, "+c.displayName+" AS display_name").
			Where("id = ?", id).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return domain.Principal{}, fmt.Errorf("%w: failed to look up principal: %v", domain.ErrDependency, err)
		}
		tenantName, err := r.tenantName(ctx, row.TenantID)
		if err != nil {
			return domain.Principal{}, err
		}
		return row.toDomain(c.role, tenantName), nil
	}
	return domain.Principal{}, fmt.Errorf("%w: principal %s", domain.ErrNotFound, id)
}

// FindMany resolves each id, skipping ids that match no principal.
func (r *Repository) FindMany(ctx context.Context, ids []string) ([]domain.Principal, error) {
	out := make([]domain.Principal, 0, len(ids))
	for _, id := range ids {
		p, err := r.FindPrincipal(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListByTenant returns every principal of a tenant across all three tables.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string) ([]domain.Principal, error) {
	tenantName, err := r.tenantName(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var out []domain.Principal
	for _, c := range lookupOrder {
		var rows []principalRow
		err := r.db.WithContext(ctx).Table(c.table).
			Select("id, tenant_id, email, "+c.displayName+" AS display_name").
			Where("tenant_id = ?", tenantID).
			Order(c.displayName).
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list principals: %v", domain.ErrDependency, err)
		}
		for _, row := range rows {
			out = append(out, row.toDomain(c.role, tenantName))
		}
	}
	return out, nil
}

// tenantName returns the brand of a tenant, or an empty string when the tenant has no record.
func (r *Repository) tenantName(ctx context.Context, tenantID string) (string, error) {
	var tenant Tenant
	err := r.db.WithContext(ctx).First(&tenant, "id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to load tenant: %v", domain.ErrDependency, err)
	}
	return tenant.Name, nil
}
