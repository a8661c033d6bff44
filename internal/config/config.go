package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Lock backends.
const (
	LockBackendFile  = "file"
	LockBackendRedis = "redis"
)

// DefaultDPCBaseURL is the public DPC radar product API.
const DefaultDPCBaseURL = "https://radar-api.protezionecivile.it/wide/product"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// DPC API client configuration.
	DPCBaseURL   string
	DPCTimeout   time.Duration
	DPCRateLimit float64 // requests per second, 0 disables pacing
	DPCCacheSize int

	ScratchDir string

	// Catalog partition locking.
	LockBackend   string
	LockDir       string
	LockTimeout   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Region   string
	S3Endpoint string

	// Catalog event notifications; disabled when KafkaTopic is empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Process endpoint settings.
	APIToken      string
	MaxRetry      int
	RetryDelay    time.Duration
	ProcessMaxAge time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}
	dpcTimeout, err := parsePositiveDuration("DPC_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	lockTimeout, err := parsePositiveDuration("LOCK_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	processMaxAge, err := parsePositiveDuration("PROCESS_MAX_AGE", "48h")
	if err != nil {
		return nil, err
	}
	retryDelay, err := time.ParseDuration(sharedcfg.EnvOrDefault("RETRY_DELAY", "60s"))
	if err != nil || retryDelay < 0 {
		return nil, errors.New("invalid RETRY_DELAY")
	}
	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("DPC_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit < 0 {
		return nil, errors.New("invalid DPC_RATE_LIMIT")
	}
	maxRetry, err := parseNonNegativeInt("MAX_RETRY", 3)
	if err != nil {
		return nil, err
	}
	redisDB, err := parseNonNegativeInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DPCBaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("DPC_BASE_URL", DefaultDPCBaseURL), "/"),
		DPCTimeout:   dpcTimeout,
		DPCRateLimit: rateLimit,
		DPCCacheSize: parseCacheSize(),

		ScratchDir: sharedcfg.EnvOrDefault("SCRATCH_DIR", os.TempDir()),

		LockBackend:   strings.ToLower(sharedcfg.EnvOrDefault("LOCK_BACKEND", LockBackendFile)),
		LockDir:       sharedcfg.EnvOrDefault("LOCK_DIR", os.TempDir()),
		LockTimeout:   lockTimeout,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		S3Region:   sharedcfg.EnvOrDefault("S3_REGION", "eu-west-1"),
		S3Endpoint: os.Getenv("S3_ENDPOINT"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   os.Getenv("KAFKA_TOPIC"),

		APIToken:      os.Getenv("INT_API_TOKEN"),
		MaxRetry:      maxRetry,
		RetryDelay:    retryDelay,
		ProcessMaxAge: processMaxAge,
	}

	switch cfg.LockBackend {
	case LockBackendFile:
	case LockBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("LOCK_BACKEND is redis but REDIS_ADDR is not set")
		}
	default:
		return nil, fmt.Errorf("invalid LOCK_BACKEND %q: must be file or redis", cfg.LockBackend)
	}
	if cfg.KafkaTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_TOPIC is set")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether catalog events are published to Kafka.
func (c *Config) NotificationsEnabled() bool {
	return c.KafkaTopic != ""
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be a non-negative integer", key)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("DPC_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
