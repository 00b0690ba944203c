package main

import (
	"context"
	"log"
	"os"

	"github.com/example/company-chat/config"
	"github.com/example/company-chat/database"
	"github.com/example/company-chat/modules/api"
	"github.com/example/company-chat/modules/attachments"
	"github.com/example/company-chat/modules/broadcast"
	"github.com/example/company-chat/modules/chat"
	"github.com/example/company-chat/modules/directory"
	"github.com/example/company-chat/modules/identity"
	"github.com/example/company-chat/modules/presence"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Company Chat - Fiber + WebSocket + EventBus ===")

	cfg := config.Load()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// Create mono application with embedded NATS JetStream. The attachments
	// module stores objects in the same server.
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.App.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(cfg.App.JetStreamDir),
		mono.WithNATSPort(cfg.App.NATSPort),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	identityModule := identity.NewModule(db, cfg.Auth, logger)
	attachmentsModule := attachments.NewModule(cfg.NATS, cfg.Attachments.MaxUploadBytes, logger)
	directoryModule, err := directory.NewModule(db, logger)
	if err != nil {
		log.Fatalf("Failed to create directory module: %v", err)
	}
	presenceModule := presence.NewModule(logger)
	broadcastModule := broadcast.NewModule(logger)

	roomDirectory := directoryModule.Directory()
	chatModule, err := chat.NewModule(chat.Dependencies{
		Directory:   roomDirectory,
		Messages:    roomDirectory.Messages(),
		Presence:    presenceModule.Tracker(),
		Publisher:   broadcastModule.GetHub(),
		Attachments: attachmentsModule.Service(),
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create chat module: %v", err)
	}

	apiModule := api.NewModule(cfg.Server, cfg.RateLimit, cfg.Attachments.MaxUploadBytes, logger)

	// The hub and the chat service are shared in-process objects, not
	// request/reply services, so they are injected directly.
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetChat(chatModule.Service())
	apiModule.SetHealthChecks(identityModule, attachmentsModule, directoryModule, presenceModule, broadcastModule, chatModule)

	// Register modules with the framework.
	// Order: independent modules first, then modules with dependencies
	// - identity: principal resolution (ServiceProviderModule)
	// - attachments: object storage (ServiceProviderModule)
	// - directory: rooms and messages (depends on identity, attachments)
	// - presence: in-memory presence tracker
	// - broadcast: WebSocket hub + RoomCreated consumer
	// - chat: session gateway, room lifecycle, message relay (EventEmitterModule)
	// - api: Fiber HTTP/WebSocket server (depends on identity)
	for _, module := range []mono.Module{
		identityModule,
		attachmentsModule,
		directoryModule,
		presenceModule,
		broadcastModule,
		chatModule,
		apiModule,
	} {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register %s module: %v", module.Name(), err)
		}
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.App.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
			"database": func(_ context.Context) error {
				return database.Close(db)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg *config.Config) {
	port := cfg.Server.Port

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("  - Database: %s", cfg.Database.Driver)
	log.Printf("  - NATS: %s (buckets %s, %s)", cfg.NATS.URL, cfg.NATS.FileBucket, cfg.NATS.VoiceBucket)
	if cfg.RateLimit.RedisAddr != "" {
		log.Printf("  - Socket rate limit: %d per %s (Redis %s)", cfg.RateLimit.Limit, cfg.RateLimit.Window, cfg.RateLimit.RedisAddr)
	} else {
		log.Printf("  - Socket rate limit: %d per %s (in-process)", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                          - Health check")
	log.Println("  GET    /metrics                         - Prometheus metrics")
	log.Println("  GET    /api/v1/me                       - Current principal")
	log.Println("  GET    /api/v1/principals               - Company users (staff only)")
	log.Println("  GET    /api/v1/rooms                    - Rooms of the caller")
	log.Println("  GET    /api/v1/rooms/:id/messages       - Message history")
	log.Println("  DELETE /api/v1/rooms/:id                - Delete a room (creator only)")
	log.Println("  POST   /api/v1/rooms/:id/files          - Upload a file")
	log.Println("  POST   /api/v1/rooms/:id/voices         - Upload a voice clip")
	log.Println("  GET    /api/v1/attachments/:messageId   - Download an attachment")
	log.Println("  DELETE /api/v1/attachments/:messageId   - Delete an attachment")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws?token=<jwt>):", port)
	log.Println("  Frames: {\"event\": <name>, \"data\": <payload>}")
	log.Println("  Events: createRoom, joinRoom, leaveRoom, sendMessage, editMessage,")
	log.Println("          deleteMessage, typing, stopTyping, deleteRoom")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
