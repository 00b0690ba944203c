package attachments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/company-chat/config"
	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module stores file and voice attachment bytes in NATS JetStream object store buckets.
type Module struct {
	cfg      config.NATSConfig
	maxBytes int64
	conn     *Connection
	service  *Service
	logger   types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new attachments module.
func NewModule(cfg config.NATSConfig, maxBytes int64, logger types.Logger) *Module {
	return &Module{
		cfg:      cfg,
		maxBytes: maxBytes,
		service:  NewService(nil, nil, maxBytes),
		logger:   logger.WithModule("attachments"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "attachments"
}

// Start connects to NATS and opens both buckets.
func (m *Module) Start(ctx context.Context) error {
	conn, err := Connect(m.cfg.URL)
	if err != nil {
		return err
	}

	files, err := NewJetStreamObjectStore(ctx, conn.JetStream(), m.cfg.FileBucket, "Chat file attachments")
	if err != nil {
		conn.Close()
		return err
	}
	voices, err := NewJetStreamObjectStore(ctx, conn.JetStream(), m.cfg.VoiceBucket, "Chat voice clips")
	if err != nil {
		conn.Close()
		return err
	}

	m.conn = conn
	m.service.bind(files, voices)
	m.logger.Info("Attachments module started", "url", m.cfg.URL, "fileBucket", m.cfg.FileBucket, "voiceBucket", m.cfg.VoiceBucket)
	return nil
}

// Stop closes the NATS connection.
func (m *Module) Stop(_ context.Context) error {
	m.conn.Close()
	m.logger.Info("Attachments module stopped")
	return nil
}

// Health reports the NATS connection state.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if !m.conn.IsConnected() {
		return mono.HealthStatus{
			Healthy: false,
			Message: "NATS connection lost",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"file_bucket":      m.cfg.FileBucket,
			"voice_bucket":     m.cfg.VoiceBucket,
			"max_upload_bytes": m.maxBytes,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServicePurgeRoomAttachments,
		json.Unmarshal,
		json.Marshal,
		m.handlePurge,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServicePurgeRoomAttachments, err)
	}
	m.logger.Info("Registered services", "services", []string{ServicePurgeRoomAttachments})
	return nil
}

func (m *Module) handlePurge(ctx context.Context, req PurgeRequest, _ *mono.Msg) (PurgeResponse, error) {
	deleted, err := m.service.PurgeRoomAttachments(ctx, req.RoomID, req.Kind)
	if err != nil {
		m.logger.Warn("Attachment purge incomplete", "roomID", req.RoomID, "kind", req.Kind, "deleted", deleted, "error", err)
		return PurgeResponse{Deleted: deleted, Code: domain.Code(err), Error: err.Error()}, nil
	}
	m.logger.Info("Attachments purged", "roomID", req.RoomID, "kind", req.Kind, "deleted", deleted)
	return PurgeResponse{Deleted: deleted}, nil
}

// Service returns the attachment service. Its stores are bound on Start.
func (m *Module) Service() *Service {
	return m.service
}
