package chat

import (
	"context"
	"errors"
	"time"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/events"
	"github.com/example/company-chat/modules/directory"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// Module hosts the chat service and publishes room lifecycle events.
type Module struct {
	service  *Service
	eventBus mono.EventBus
	logger   types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ RoomNotifier               = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule(deps Dependencies, logger types.Logger) (*Module, error) {
	logger = logger.WithModule("chat")
	svc, err := NewService(deps, logger)
	if err != nil {
		return nil, err
	}
	m := &Module{service: svc, logger: logger}
	svc.SetNotifier(m)
	return m, nil
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomCreatedV1.ToBase(),
		events.RoomDeletedV1.ToBase(),
	}
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Chat module started")
	return nil
}

// Stop waits for background room joins to finish.
func (m *Module) Stop(_ context.Context) error {
	m.service.Close()
	m.logger.Info("Chat module stopped", "sessions", m.service.SessionCount())
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"sessions":     m.service.SessionCount(),
			"locked_rooms": m.service.locks.size(),
		},
	}
}

// Service returns the chat service.
func (m *Module) Service() *Service {
	return m.service
}

// RoomCreated publishes RoomCreated.v1 for the invitees' personal channels.
func (m *Module) RoomCreated(room *domain.Room, invitees []string) error {
	if m.eventBus == nil {
		return errors.New("event bus not set")
	}
	return events.RoomCreatedV1.Publish(m.eventBus, events.RoomCreatedEvent{
		Room:      *room,
		Invitees:  invitees,
		Timestamp: time.Now().UTC(),
	}, nil)
}

// RoomDeleted publishes RoomDeleted.v1.
func (m *Module) RoomDeleted(roomID, tenantID, deletedBy string, result directory.CascadeResult) error {
	if m.eventBus == nil {
		return errors.New("event bus not set")
	}
	return events.RoomDeletedV1.Publish(m.eventBus, events.RoomDeletedEvent{
		RoomID:          roomID,
		TenantID:        tenantID,
		DeletedBy:       deletedBy,
		DeletedFiles:    int64(result.Files),
		DeletedVoices:   int64(result.Voices),
		DeletedMessages: result.Messages,
		Timestamp:       time.Now().UTC(),
	}, nil)
}
