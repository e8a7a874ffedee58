// Package config loads service configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server   Server
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Audit    Audit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	Environment   string
	JWTSigningKey string
}

// Postgres captures database configuration. One URL serves both the pgx pool
// and the database/sql connections.
type Postgres struct {
	URL string
}

// Redis captures snapshot-cache configuration. An empty URL disables the
// cache entirely.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// Kafka captures audit publishing configuration. Empty brokers disable the
// outbox worker.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Audit captures audit publisher configuration.
type Audit struct {
	BufferSize int
}

// FromEnv builds the configuration from environment variables, with
// development defaults for everything but secrets.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:          envOr("CIVREG_ADDR", ":8080"),
			Environment:   envOr("CIVREG_ENV", "development"),
			JWTSigningKey: envOr("CIVREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			URL: os.Getenv("CIVREG_POSTGRES_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("CIVREG_REDIS_URL"),
			PoolSize:     envIntOr("CIVREG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("CIVREG_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			CacheTTL:     envDurationOr("CIVREG_CACHE_TTL", 5*time.Minute),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("CIVREG_KAFKA_BROKERS")),
			Topic:   envOr("CIVREG_AUDIT_TOPIC", "civreg.audit.events"),
		},
		Audit: Audit{
			BufferSize: envIntOr("CIVREG_AUDIT_BUFFER", 256),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
