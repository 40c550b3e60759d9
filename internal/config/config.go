package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Broadcast backends understood by the chat group.
const (
	BroadcastMemory = "memory"
	BroadcastRedis  = "redis"
	BroadcastNATS   = "nats"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Chat     ChatConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NATSConfig holds NATS connection values. Only dialed when the chat
// broadcast backend is nats.
type NATSConfig struct {
	URL      string
	User     string
	Password string
	Name     string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level    string
	Encoding string
}

// AuthConfig defines how identity tokens from the identity service are verified.
type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	CookieName string
}

// ChatConfig tunes the real-time chat subsystem.
type ChatConfig struct {
	Backend            string
	HistoryLimit       int
	ConnectTimeout     time.Duration
	SendBuffer         int
	RateLimitPerMinute int
	SanitizeHTML       bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		NATS: NATSConfig{
			URL:      getEnv("NATS_URL", "nats://127.0.0.1:4222"),
			User:     os.Getenv("NATS_USER"),
			Password: os.Getenv("NATS_PASSWORD"),
			Name:     getEnv("NATS_CLIENT_NAME", "helpdesk"),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: strings.ToLower(getEnv("LOG_ENCODING", "json")),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:     os.Getenv("AUTH_JWT_ISSUER"),
			CookieName: getEnv("AUTH_COOKIE_NAME", "access_token"),
		},
		Chat: ChatConfig{
			Backend:            strings.ToLower(getEnv("CHAT_BROADCAST_BACKEND", BroadcastMemory)),
			HistoryLimit:       getEnvAsInt("CHAT_HISTORY_LIMIT", 50),
			ConnectTimeout:     getEnvAsDuration("CHAT_CONNECT_TIMEOUT", 5*time.Second),
			SendBuffer:         getEnvAsInt("CHAT_SEND_BUFFER", 64),
			RateLimitPerMinute: getEnvAsInt("CHAT_RATE_LIMIT_PER_MINUTE", 30),
			SanitizeHTML:       getEnvAsBool("CHAT_SANITIZE_HTML", true),
		},
	}

	if err := cfg.Chat.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Validate rejects settings the chat subsystem cannot run with.
func (c ChatConfig) Validate() error {
	switch c.Backend {
	case BroadcastMemory, BroadcastRedis, BroadcastNATS:
	default:
		return fmt.Errorf("invalid CHAT_BROADCAST_BACKEND %q", c.Backend)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("invalid CHAT_HISTORY_LIMIT: %d", c.HistoryLimit)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("invalid CHAT_CONNECT_TIMEOUT: %s", c.ConnectTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
