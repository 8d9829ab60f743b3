package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8085", cfg.Server.Address())
	assert.Equal(t, StorageMongo, cfg.Storage.ItemBackend)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "price_events", cfg.Kafka.EventsTopic)
	assert.False(t, cfg.Kafka.ConsumerEnabled)
	assert.Equal(t, "@every 15m", cfg.Cron.ReconcileSchedule)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("ITEM_STORAGE", "Postgres")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("KAFKA_CONSUMER_ENABLED", "true")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("RECONCILE_SCHEDULE", "")
	t.Setenv("DB_HOST", "db")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, StoragePostgres, cfg.Storage.ItemBackend)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.ConsumerEnabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Empty(t, cfg.Cron.ReconcileSchedule)
	assert.Equal(t, "postgres://postgres:postgres@db:5432/shopsmart?sslmode=disable", cfg.Database.URL())
	assert.Contains(t, cfg.Database.DSN(), "host=db")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"redis db", "REDIS_DB", "abc"},
		{"cache ttl", "CACHE_TTL", "soon"},
		{"consumer flag", "KAFKA_CONSUMER_ENABLED", "maybe"},
		{"item storage", "ITEM_STORAGE", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			cfg, err := Load()

			assert.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
