package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "int-test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultDPCBaseURL, cfg.DPCBaseURL)
	assert.Equal(t, 60*time.Second, cfg.DPCTimeout)
	assert.Equal(t, 5.0, cfg.DPCRateLimit)
	assert.Equal(t, 1000, cfg.DPCCacheSize)
	assert.Equal(t, os.TempDir(), cfg.ScratchDir)
	assert.Equal(t, LockBackendFile, cfg.LockBackend)
	assert.Equal(t, 60*time.Second, cfg.LockTimeout)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.Empty(t, cfg.S3Endpoint)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.NotificationsEnabled())
	assert.Empty(t, cfg.APIToken)
	assert.Equal(t, 3, cfg.MaxRetry)
	assert.Equal(t, 60*time.Second, cfg.RetryDelay)
	assert.Equal(t, 48*time.Hour, cfg.ProcessMaxAge)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DPC_BASE_URL", "http://localhost:8000/wide/product/")
	t.Setenv("DPC_TIMEOUT", "5s")
	t.Setenv("DPC_RATE_LIMIT", "0")
	t.Setenv("DPC_CACHE_SIZE", "50")
	t.Setenv("SCRATCH_DIR", "/var/tmp/dpc")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOCK_TIMEOUT", "2s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "dpc-catalog")
	t.Setenv("INT_API_TOKEN", testToken)
	t.Setenv("MAX_RETRY", "0")
	t.Setenv("RETRY_DELAY", "0s")
	t.Setenv("PROCESS_MAX_AGE", "24h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:8000/wide/product", cfg.DPCBaseURL)
	assert.Equal(t, 5*time.Second, cfg.DPCTimeout)
	assert.Equal(t, 0.0, cfg.DPCRateLimit)
	assert.Equal(t, 50, cfg.DPCCacheSize)
	assert.Equal(t, "/var/tmp/dpc", cfg.ScratchDir)
	assert.Equal(t, LockBackendRedis, cfg.LockBackend)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.S3Endpoint)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, testToken, cfg.APIToken)
	assert.Equal(t, 0, cfg.MaxRetry)
	assert.Equal(t, time.Duration(0), cfg.RetryDelay)
	assert.Equal(t, 24*time.Hour, cfg.ProcessMaxAge)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DPC_TIMEOUT", "-1s"},
		{"DPC_RATE_LIMIT", "fast"},
		{"LOCK_TIMEOUT", "0s"},
		{"PROCESS_MAX_AGE", "bad"},
		{"RETRY_DELAY", "-5s"},
		{"MAX_RETRY", "-1"},
		{"REDIS_DB", "x"},
		{"LOCK_BACKEND", "etcd"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_RedisBackendWithoutAddr(t *testing.T) {
	t.Setenv("LOCK_BACKEND", "redis")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("DPC_CACHE_SIZE", "-3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.DPCCacheSize)
}
