package identity

import (
	"time"

	domain "github.com/example/company-chat/domain/chat"
)

// Tenant is a company boundary. Name is the brand shown to clients.
type Tenant struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	Name      string `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time
}

// Member is an ordinary staff user.
type Member struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	TenantID  string `gorm:"type:varchar(64);not null;index"`
	Username  string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

// Admin is an administrative staff user.
type Admin struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	TenantID  string `gorm:"type:varchar(64);not null;index"`
	Username  string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

// Client is an external customer contact of a tenant.
type Client struct {
	ID        string `gorm:"primaryKey;type:varchar(64)"`
	TenantID  string `gorm:"type:varchar(64);not null;index"`
	Name      string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

// Models lists the tables owned by this package for AutoMigrate.
func Models() []any {
	return []any{&Tenant{}, &Member{}, &Admin{}, &Client{}}
}

// principalRow is the common projection of the three principal tables.
type principalRow struct {
	ID          string
	TenantID    string
	DisplayName string
	Email       string
}

func (r principalRow) toDomain(role domain.Role, tenantName string) domain.Principal {
	return domain.Principal{
		ID:          r.ID,
		TenantID:    r.TenantID,
		TenantName:  tenantName,
		Role:        role,
		DisplayName: r.DisplayName,
		Email:       r.Email,
	}
}
