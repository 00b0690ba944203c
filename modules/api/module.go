package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/company-chat/config"
	"github.com/example/company-chat/events"
	"github.com/example/company-chat/modules/broadcast"
	"github.com/example/company-chat/modules/chat"
	"github.com/example/company-chat/modules/identity"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
)

// HealthChecker is a module whose health is reported by GET /health.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) mono.HealthStatus
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	app       *fiber.App
	cfg       config.ServerConfig
	rateCfg   config.RateLimitConfig
	maxUpload int64
	identity  identity.IdentityPort
	chat      *chat.Service
	hub       *broadcast.Hub
	checks    []HealthChecker
	redis     *redis.Client
	limiter   SocketLimiter
	logger    types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
	_ mono.EventConsumerModule   = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(cfg config.ServerConfig, rateCfg config.RateLimitConfig, maxUpload int64, logger types.Logger) *APIModule {
	return &APIModule{
		cfg:       cfg,
		rateCfg:   rateCfg,
		maxUpload: maxUpload,
		logger:    logger.WithModule("api"),
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"identity"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "identity":
		m.identity = identity.NewIdentityAdapter(container)
	}
}

// SetChat sets the chat service (called from main.go).
func (m *APIModule) SetChat(svc *chat.Service) {
	m.chat = svc
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetHealthChecks sets the modules aggregated by GET /health.
func (m *APIModule) SetHealthChecks(checks ...HealthChecker) {
	m.checks = checks
}

// RegisterEventConsumers registers event handlers.
func (m *APIModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomDeletedV1, m.handleRoomDeleted, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomDeleted consumer: %w", err)
	}
	m.logger.Info("Registered event consumers: RoomDeleted")
	return nil
}

func (m *APIModule) handleRoomDeleted(_ context.Context, event events.RoomDeletedEvent, _ *mono.Msg) error {
	roomsDeletedTotal.Inc()
	cascadePurgedTotal.WithLabelValues("file").Add(float64(event.DeletedFiles))
	cascadePurgedTotal.WithLabelValues("voice").Add(float64(event.DeletedVoices))
	cascadePurgedTotal.WithLabelValues("message").Add(float64(event.DeletedMessages))
	m.logger.Info("Room deletion recorded", "roomID", event.RoomID, "deletedBy", event.DeletedBy)
	return nil
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(ctx context.Context) error {
	if m.identity == nil {
		return fmt.Errorf("identity dependency not set")
	}
	if m.chat == nil {
		return fmt.Errorf("chat service dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}

	m.limiter = m.buildLimiter(ctx)
	m.app = m.newApp()

	// Start server in goroutine
	go func() {
		if err := m.app.Listen(":" + m.cfg.Port); err != nil {
			m.logger.Error("HTTP server error", "error", err)
		}
	}()

	m.logger.Info("HTTP server started", "port", m.cfg.Port)
	return nil
}

// newApp builds the Fiber application with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		BodyLimit:             int(m.maxUpload) + 1<<20,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Next:   isWebSocketUpgrade,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.AllowedOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(metricsMiddleware())

	m.setupRoutes(app)
	return app
}

// buildLimiter prefers a Redis sliding window shared across instances and
// falls back to in-process token buckets.
func (m *APIModule) buildLimiter(ctx context.Context) SocketLimiter {
	local := NewLocalLimiter(m.rateCfg.Limit, m.rateCfg.Window)
	if m.rateCfg.RedisAddr == "" {
		m.logger.Info("Socket rate limiting is local", "limit", m.rateCfg.Limit, "window", m.rateCfg.Window)
		return local
	}

	client := redis.NewClient(&redis.Options{
		Addr:         m.rateCfg.RedisAddr,
		Password:     m.rateCfg.RedisPassword,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		m.logger.Warn("Redis unreachable, socket rate limiting is local", "redis", m.rateCfg.RedisAddr, "error", err)
		_ = client.Close()
		return local
	}

	m.redis = client
	m.logger.Info("Socket rate limiting uses Redis", "redis", m.rateCfg.RedisAddr, "limit", m.rateCfg.Limit, "window", m.rateCfg.Window)
	return &fallbackLimiter{
		primary: NewRedisLimiter(client, "chat:ratelimit:", m.rateCfg.Limit, m.rateCfg.Window),
		local:   local,
		onError: func(err error) {
			m.logger.Warn("Rate limit check failed, using local bucket", "error", err)
		},
	}
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	m.logger.Info("Shutting down HTTP server")
	err := m.app.Shutdown()
	if m.redis != nil {
		if cerr := m.redis.Close(); cerr != nil {
			m.logger.Error("Failed to close Redis connection", "error", cerr)
		}
	}
	return err
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{
		"port":          m.cfg.Port,
		"redis_limiter": m.redis != nil,
		"live_sessions": 0,
		"connected_ws":  0,
	}
	if m.chat != nil {
		details["live_sessions"] = m.chat.SessionCount()
	}
	if m.hub != nil {
		details["connected_ws"] = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// isWebSocketUpgrade skips request logging for socket upgrades.
func isWebSocketUpgrade(c *fiber.Ctx) bool {
	return c.Get("Upgrade") == "websocket"
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
