package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"standards-archive/models"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis (asynq transport + API rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Filesystem layout: uploads/, working/ and artifacts/ under StorageDir
	StorageDir  string
	MaxFileSize int64

	// Conversion pipeline
	ConvertTimeoutSecs int    // watchdog budget for one conversion
	ConvertGraceSecs   int    // extra time for the worker to persist results
	TimeoutOutcome     string // status recorded when the watchdog fires
	WorkerBin          string // path to the standards-convert binary
	WorkerConcurrency  int
	LeaseSweepMinutes  int

	// Primary converter sidecar
	ConverterServiceURL string
	ConverterEnabled    bool
	ConverterRPM        int

	// API rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Telemetry
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/standards_archive"),
		DBName:      getEnv("DB_NAME", "standards_archive"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StorageDir:  getEnv("STORAGE_DIR", "./storage"),
		MaxFileSize: getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB

		ConvertTimeoutSecs: getEnvInt("CONVERT_TIMEOUT", 300),
		ConvertGraceSecs:   getEnvInt("CONVERT_GRACE", 30),
		TimeoutOutcome:     getEnv("CONVERT_TIMEOUT_OUTCOME", models.StatusCompleted),
		WorkerBin:          getEnv("CONVERT_WORKER_BIN", "standards-convert"),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		LeaseSweepMinutes:  getEnvInt("LEASE_SWEEP_MINUTES", 10),

		ConverterServiceURL: getEnv("CONVERTER_SERVICE_URL", "http://localhost:8001"),
		ConverterEnabled:    getEnvBool("CONVERTER_SERVICE_ENABLED", true),
		ConverterRPM:        getEnvInt("CONVERTER_RPM", 6),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	if cfg.TimeoutOutcome != models.StatusCompleted && cfg.TimeoutOutcome != models.StatusError {
		return nil, fmt.Errorf("CONVERT_TIMEOUT_OUTCOME must be %q or %q, got %q",
			models.StatusCompleted, models.StatusError, cfg.TimeoutOutcome)
	}

	return cfg, nil
}

// ConvertBudget is the wall-clock budget the watchdog arms before a
// conversion starts.
func (c *Config) ConvertBudget() time.Duration {
	return time.Duration(c.ConvertTimeoutSecs) * time.Second
}

// TaskTimeout bounds the whole worker process: budget plus the grace the
// worker needs to persist a degraded result after the watchdog fires.
func (c *Config) TaskTimeout() time.Duration {
	return c.ConvertBudget() + time.Duration(c.ConvertGraceSecs)*time.Second
}

// UploadDir holds the canonical source file per document identity.
func (c *Config) UploadDir() string { return filepath.Join(c.StorageDir, "uploads") }

// WorkingDir holds per-job working copies and their lease files.
func (c *Config) WorkingDir() string { return filepath.Join(c.StorageDir, "working") }

// ArtifactDir is the root for converted content artifacts.
func (c *Config) ArtifactDir() string { return filepath.Join(c.StorageDir, "artifacts") }

// EnsureDirs creates the storage layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir(), c.WorkingDir(), c.ArtifactDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
