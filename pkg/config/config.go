// Package config reads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Common struct {
	AppEnv          string
	LogLevel        string
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Client configures the device-side binary.
type Client struct {
	Common

	OrderAPIURL        string
	OrderAPITimeout    time.Duration
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration

	SettingsPath string

	QueueBackend   string // sqlite, redis or memory
	QueueNamespace string
	SQLitePath     string
	MigrationsPath string
	RedisAddr      string
	RedisPassword  string

	SyncInterval time.Duration
	SyncRate     float64
}

// OrderAPI configures the reference order service.
type OrderAPI struct {
	Common

	DB             DB
	MigrationsPath string
	RedisAddr      string
	RedisPassword  string
	ReplayTTL      time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	OutboxInterval time.Duration
}

type DB struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func loadCommon(defaultPort string) Common {
	return Common{
		AppEnv:          getEnv("APP_ENV", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		HTTPPort:        getEnv("HTTP_PORT", defaultPort),
		RequestTimeout:  getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func LoadClient() Client {
	return Client{
		Common:             loadCommon("8080"),
		OrderAPIURL:        getEnv("ORDER_API_URL", "http://localhost:8090"),
		OrderAPITimeout:    getEnvDuration("ORDER_API_TIMEOUT", 10*time.Second),
		BreakerMaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
		BreakerOpenTimeout: getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
		SettingsPath:       getEnv("SETTINGS_PATH", "settings.yaml"),
		QueueBackend:       strings.ToLower(getEnv("QUEUE_BACKEND", "sqlite")),
		QueueNamespace:     getEnv("QUEUE_NAMESPACE", "default"),
		SQLitePath:         getEnv("SQLITE_PATH", "pos-queue.db"),
		MigrationsPath:     getEnv("MIGRATIONS_PATH", "internal/storage/migrations"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		SyncInterval:       getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		SyncRate:           getEnvFloat("SYNC_RATE", 5),
	}
}

func LoadOrderAPI() OrderAPI {
	return OrderAPI{
		Common: loadCommon("8090"),
		DB: DB{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "orders"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MigrationsPath: getEnv("MIGRATIONS_PATH", "internal/orderapi/repository/migrations"),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		ReplayTTL:      getEnvDuration("REPLAY_TTL", 24*time.Hour),
		KafkaBrokers:   getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "orders-outbox"),
		OutboxInterval: getEnvDuration("OUTBOX_INTERVAL", time.Second),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
