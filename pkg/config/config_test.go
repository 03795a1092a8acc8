package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadClient_Defaults(t *testing.T) {
	cfg := LoadClient()

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.OrderAPITimeout)
	assert.Equal(t, "sqlite", cfg.QueueBackend)
	assert.Equal(t, 5.0, cfg.SyncRate)
}

func TestLoadClient_FromEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ORDER_API_TIMEOUT", "3s")
	t.Setenv("QUEUE_BACKEND", "Redis")
	t.Setenv("SYNC_RATE", "0.5")
	t.Setenv("SYNC_INTERVAL", "not-a-duration")

	cfg := LoadClient()

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.OrderAPITimeout)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, 0.5, cfg.SyncRate)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
}

func TestLoadOrderAPI_KafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DB_PORT", "6543")

	cfg := LoadOrderAPI()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "6543", cfg.DB.Port)
	assert.Equal(t, "8090", cfg.HTTPPort)
}

func TestGetEnvInt_Invalid(t *testing.T) {
	t.Setenv("BREAKER_MAX_FAILURES", "many")
	assert.Equal(t, uint32(5), LoadClient().BreakerMaxFailures)
}
