package presence

import (
	"context"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module owns the process-wide presence tracker.
type Module struct {
	tracker *Tracker
	logger  types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new presence module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		tracker: NewTracker(),
		logger:  logger.WithModule("presence"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Presence tracker started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	rooms, conns := m.tracker.Stats()
	m.logger.Info("Presence tracker stopped", "rooms", rooms, "connections", conns)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	rooms, conns := m.tracker.Stats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms":       rooms,
			"connections": conns,
		},
	}
}

// Tracker returns the presence tracker.
func (m *Module) Tracker() *Tracker {
	return m.tracker
}
