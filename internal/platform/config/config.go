// Package config builds the process configuration from the environment so
// main stays lean. A .env file is honored when present.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	RequestTimeout time.Duration
	JWTSigningKey  string
}

// Docstore selects where generated files and the provenance index live.
type Docstore struct {
	// Backend is "fs" or "memory".
	Backend string
	// Root is the output directory for the fs backend.
	Root string
	// PostgresURL, when set, moves the provenance index and identity
	// registry into PostgreSQL.
	PostgresURL string
}

// Model configures the generation collaborator.
type Model struct {
	Provider string
	Model    string
	APIKey   string
	// TestMode swaps in the provider's cheaper model tier.
	TestMode bool
	// MaxRetries bounds transient-failure retries per model call.
	MaxRetries int
}

// RedisConfig tunes the optional Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional audit event stream.
type Kafka struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// Workflow tunes run behavior.
type Workflow struct {
	WorkerLimit       int
	RepairAttempts    int
	AllowMarkdownBold bool
}

// Config is the full process configuration.
type Config struct {
	Server   Server
	Docstore Docstore
	Model    Model
	Redis    RedisConfig
	Kafka    Kafka
	Workflow Workflow
}

// FromEnv loads configuration from the environment. Values carry development
// defaults; production deployments set the variables explicitly.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr:           envOr("CHARTFORGE_ADDR", ":8080"),
			RequestTimeout: envDuration("CHARTFORGE_REQUEST_TIMEOUT", 10*time.Minute),
			JWTSigningKey:  os.Getenv("CHARTFORGE_JWT_SIGNING_KEY"),
		},
		Docstore: Docstore{
			Backend:     envOr("CHARTFORGE_DOCSTORE_BACKEND", "fs"),
			Root:        envOr("CHARTFORGE_OUTPUT_DIR", "Model_Charts"),
			PostgresURL: os.Getenv("CHARTFORGE_POSTGRES_URL"),
		},
		Model: Model{
			Provider:   envOr("CHARTFORGE_MODEL_PROVIDER", "openai"),
			Model:      os.Getenv("CHARTFORGE_MODEL"),
			APIKey:     firstEnv("CHARTFORGE_MODEL_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"),
			TestMode:   envBool("CHARTFORGE_TEST_MODE"),
			MaxRetries: envInt("CHARTFORGE_MODEL_MAX_RETRIES", 3),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CHARTFORGE_REDIS_URL"),
			PoolSize:     envInt("CHARTFORGE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CHARTFORGE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CHARTFORGE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CHARTFORGE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CHARTFORGE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:           splitList(os.Getenv("CHARTFORGE_KAFKA_BROKERS")),
			Topic:             envOr("CHARTFORGE_KAFKA_TOPIC", "chartforge.audit"),
			Partitions:        int32(envInt("CHARTFORGE_KAFKA_PARTITIONS", 1)),
			ReplicationFactor: int16(envInt("CHARTFORGE_KAFKA_REPLICATION", 1)),
		},
		Workflow: Workflow{
			WorkerLimit:       envInt("CHARTFORGE_WORKER_LIMIT", 4),
			RepairAttempts:    envInt("CHARTFORGE_REPAIR_ATTEMPTS", 1),
			AllowMarkdownBold: envBool("CHARTFORGE_ALLOW_MARKDOWN_BOLD"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
