package directory

import (
	"context"
	"fmt"

	"github.com/example/company-chat/database"
	"github.com/example/company-chat/modules/attachments"
	"github.com/example/company-chat/modules/identity"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/gorm"
)

// Module owns room and message persistence and the room cache.
type Module struct {
	db     *gorm.DB
	dir    *Directory
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.DependentModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new directory module over a shared database handle.
func NewModule(db *gorm.DB, logger types.Logger) (*Module, error) {
	logger = logger.WithModule("directory")
	dir, err := NewDirectory(NewRoomRepository(db), NewMessageStore(db), nil, nil, logger)
	if err != nil {
		return nil, err
	}
	return &Module{db: db, dir: dir, logger: logger}, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "directory"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"identity", "attachments"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "identity":
		m.dir.lookup = identity.NewIdentityAdapter(container)
	case "attachments":
		m.dir.purger = attachments.NewAttachmentsAdapter(container)
	}
}

// Start migrates the room and message tables.
func (m *Module) Start(_ context.Context) error {
	if m.dir.lookup == nil {
		return fmt.Errorf("identity dependency not set")
	}
	if err := m.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate directory tables: %w", err)
	}
	m.logger.Info("Directory module started")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Directory module stopped", "cachedRooms", m.dir.CachedRooms())
	return nil
}

// Health reports database reachability and cache size.
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
			"cached_rooms": m.dir.CachedRooms(),
		},
	}
}

// Directory returns the room directory.
func (m *Module) Directory() *Directory {
	return m.dir
}
