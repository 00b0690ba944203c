package broadcast

import (
	"context"
	"fmt"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/example/company-chat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// EventRoomCreated is the server to client event announcing a room.
const EventRoomCreated = "roomCreated"

// BroadcastModule owns the WebSocket hub and delivers room notifications to
// principals' personal channels.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
	logger    types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(logger types.Logger) *BroadcastModule {
	logger = logger.WithModule("broadcast")
	return &BroadcastModule{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start initializes the module and starts the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("WebSocket hub running")
	return nil
}

// Stop shuts down the module.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Module stopped", "clients", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
			"groups":            m.hub.GroupCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}

	m.logger.Info("Registered event consumers: RoomCreated")
	return nil
}

// handleRoomCreated notifies every invitee on all of its live connections.
// Offline invitees pick the room up from the directory on their next connect.
func (m *BroadcastModule) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.NotifyRoomCreated(&event.Room, event.Invitees)
	return nil
}

// NotifyRoomCreated sends roomCreated, shaped per viewer, to each invitee.
func (m *BroadcastModule) NotifyRoomCreated(room *domain.Room, invitees []string) {
	shape := func(viewer domain.Principal) (any, bool) {
		return domain.NewRoomView(viewer, room), true
	}
	delivered := 0
	for _, principalID := range invitees {
		delivered += m.hub.EmitToPrincipal(principalID, EventRoomCreated, shape)
	}
	m.logger.Debug("Delivered room notification", "roomID", room.ID, "invitees", len(invitees), "connections", delivered)
}

// GetHub returns the WebSocket hub for the chat and API modules to use.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}
