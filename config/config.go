package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"labspace/pkg/logger"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

type Config struct {
	Port     string
	GRPCPort string

	DatabaseURL     string
	StoreBackend    Backend
	FeedBackend     Backend
	PresenceBackend Backend
	RedisURL        string
	PresenceTTL     time.Duration

	IDPSigningSecret       []byte
	IDPIssuer              string
	DefaultCanCreateGroups bool

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	OpenAIAPIKey         string
	OpenAIModel          string
	AssistantConcurrency int

	RateLimitRPS int

	Log logger.Config
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	rps, err := strconv.Atoi(getEnv("RATE_LIMIT_RPS", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	ttl, err := time.ParseDuration(getEnv("PRESENCE_TTL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRESENCE_TTL: %w", err)
	}
	assistantWorkers, err := strconv.Atoi(getEnv("ASSISTANT_CONCURRENCY", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid ASSISTANT_CONCURRENCY: %w", err)
	}
	canCreate, err := strconv.ParseBool(getEnv("DEFAULT_CAN_CREATE_GROUPS", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_CAN_CREATE_GROUPS: %w", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "9090"),

		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StoreBackend:    Backend(strings.ToLower(getEnv("STORE_BACKEND", string(BackendPostgres)))),
		FeedBackend:     Backend(strings.ToLower(getEnv("FEED_BACKEND", string(BackendPostgres)))),
		PresenceBackend: Backend(strings.ToLower(getEnv("PRESENCE_BACKEND", string(BackendPostgres)))),
		RedisURL:        os.Getenv("REDIS_URL"),
		PresenceTTL:     ttl,

		IDPSigningSecret:       []byte(os.Getenv("IDP_SIGNING_SECRET")),
		IDPIssuer:              os.Getenv("IDP_ISSUER"),
		DefaultCanCreateGroups: canCreate,

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     smtpPort,
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", os.Getenv("SMTP_USERNAME")),

		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AssistantConcurrency: assistantWorkers,

		RateLimitRPS: rps,

		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.IDPSigningSecret) == 0 {
		return fmt.Errorf("IDP_SIGNING_SECRET is required")
	}
	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.FeedBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("unsupported FEED_BACKEND %q", c.FeedBackend)
	}
	switch c.PresenceBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		return fmt.Errorf("unsupported PRESENCE_BACKEND %q", c.PresenceBackend)
	}
	if c.UsesPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}
	if c.PresenceBackend == BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis presence backend")
	}
	if c.StoreBackend == BackendMemory && (c.FeedBackend == BackendPostgres || c.PresenceBackend == BackendPostgres) {
		return fmt.Errorf("memory STORE_BACKEND cannot be combined with postgres feed or presence")
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be positive")
	}
	return nil
}

// UsesPostgres reports whether any backend needs DATABASE_URL.
func (c *Config) UsesPostgres() bool {
	return c.StoreBackend == BackendPostgres || c.FeedBackend == BackendPostgres || c.PresenceBackend == BackendPostgres
}

// SMTPEnabled reports whether invite e-mails can be sent.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
