package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	NATS        NATSConfig
	Attachments AttachmentsConfig
	RateLimit   RateLimitConfig
	App         AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string
	AllowedOrigins string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// AuthConfig holds credential verification settings
type AuthConfig struct {
	Secret       string
	Issuer       string
	JWKSURL      string
	AllowedRoles []string
}

// NATSConfig holds the object store connection settings
type NATSConfig struct {
	URL         string
	FileBucket  string
	VoiceBucket string
}

// AttachmentsConfig holds upload limits
type AttachmentsConfig struct {
	MaxUploadBytes int64
}

// RateLimitConfig holds per-connection socket rate limits
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	Limit         int
	Window        time.Duration
}

// AppConfig holds framework settings
type AppConfig struct {
	ShutdownTimeout time.Duration
	NATSPort        int
	JetStreamDir    string
}

// Load loads the application configuration from environment variables
func Load() *Config {
	// Load environment variables from .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             getEnv("DB_DSN", "company_chat.db"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "silent"),
		},
		Auth: AuthConfig{
			Secret:       getEnv("JWT_SECRET_KEY", "change-me-in-production"),
			Issuer:       getEnv("JWT_ISSUER", ""),
			JWKSURL:      getEnv("JWKS_URL", ""),
			AllowedRoles: getEnvAsList("ALLOWED_ROLES", []string{"member", "admin", "client"}),
		},
		NATS: NATSConfig{
			URL:         getEnv("NATS_URL", "nats://localhost:4222"),
			FileBucket:  getEnv("FILE_BUCKET", "chat-files"),
			VoiceBucket: getEnv("VOICE_BUCKET", "chat-voices"),
		},
		Attachments: AttachmentsConfig{
			MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 8*1024*1024)),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			Limit:         getEnvAsInt("SOCKET_RATE_LIMIT", 20),
			Window:        getEnvAsDuration("SOCKET_RATE_WINDOW", 2*time.Second),
		},
		App: AppConfig{
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			NATSPort:        getEnvAsInt("NATS_PORT", 4222),
			JetStreamDir:    getEnv("JETSTREAM_DIR", "/tmp/company-chat"),
		},
	}
}

// Helper functions to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
