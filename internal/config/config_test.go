package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.REST.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.REST.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Query.StaleTime)
	assert.Equal(t, 5*time.Minute, cfg.Query.CacheTime)
	assert.Equal(t, 3, cfg.Query.MaxRetries)
	assert.Equal(t, 15*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Contains(t, cfg.Kafka.Topics, "dashboard.sales")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REST_BASE_URL", "https://api.example.com/")
	t.Setenv("REST_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("QUERY_MAX_RETRIES", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/", cfg.REST.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.REST.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 0, cfg.Query.MaxRetries)
}

func TestLoad_RequiresJWTKey(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_PUBLIC_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate_RejectsRelativeBaseURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REST_BASE_URL", "/api")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REST_BASE_URL")
}

func TestValidate_RejectsZeroStaleTime(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("QUERY_STALE_TIME", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_STALE_TIME")
}
