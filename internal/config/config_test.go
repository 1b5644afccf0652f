package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/hive402/backend/internal/payment"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "KAFKA_BROKERS", "PAYMENT_ALLOW_SIMULATED", "TASK_STALE_AFTER", "PAYMENT_CONTRACT"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.AllowSimulated)
	assert.Equal(t, 60*time.Second, cfg.TaskStaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.TaskProcessingTimeout)
	assert.Equal(t, payment.DefaultRail(), cfg.Rail)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENT_ALLOW_SIMULATED", "true")
	t.Setenv("TASK_STALE_AFTER", "90s")
	t.Setenv("INGEST_RATE_LIMIT", "5")
	t.Setenv("PAYMENT_CONTRACT", "SP000.splitter")

	cfg := FromEnv()
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.AllowSimulated)
	assert.Equal(t, 90*time.Second, cfg.TaskStaleAfter)
	assert.Equal(t, 5, cfg.IngestRateLimit)
	assert.Equal(t, "SP000.splitter", cfg.Rail.Contract)
}

func TestFromEnv_BadValuesFallBack(t *testing.T) {
	t.Setenv("INGEST_RATE_LIMIT", "lots")
	t.Setenv("TASK_STALE_AFTER", "-3s")
	t.Setenv("PAYMENT_ALLOW_SIMULATED", "maybe")

	cfg := FromEnv()
	assert.Equal(t, 20, cfg.IngestRateLimit)
	assert.Equal(t, 60*time.Second, cfg.TaskStaleAfter)
	assert.False(t, cfg.AllowSimulated)
}

func TestLoadAgent(t *testing.T) {
	v := viper.New()
	v.Set("agent_id", "agent-7")
	v.Set("poll_interval", "20s")
	v.Set("gemini_models", []string{"m1", "m2"})
	v.Set("research", true)

	cfg := LoadAgent(v)
	assert.Equal(t, "agent-7", cfg.AgentID)
	assert.Equal(t, 20*time.Second, cfg.PollInterval)
	assert.Equal(t, []string{"m1", "m2"}, cfg.GeminiModels)
	assert.True(t, cfg.Research)
}
