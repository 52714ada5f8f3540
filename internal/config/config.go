// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for local databases (always absolute)
	GatewayBaseURL string // Upstream broker gateway (the service that talks to Shoonya/Fyers)
	PublicOrigin   string // Origin this service is reachable at; used to verify auth signals
	LogLevel       string
	Port           int
	DevMode        bool

	Retry     RetryConfig
	Handshake HandshakeConfig
	Backup    *BackupConfig
}

// RetryConfig tunes the retry policy applied to gateway requests
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// HandshakeConfig tunes the OAuth handshake state machine timers
type HandshakeConfig struct {
	PollInterval     time.Duration // Surface location poll cadence
	CrossOriginAfter time.Duration // How long before the foreign-origin check fires
	OverallTimeout   time.Duration // Hard ceiling for one handshake attempt
}

// BackupConfig holds cloud backup (S3/R2-compatible) settings
type BackupConfig struct {
	AccountID string // R2 account id (empty for plain S3)
	Bucket    string
	AccessKey string
	SecretKey string
	Retention int // Number of backups to keep
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("COPYTRADE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		GatewayBaseURL: getEnv("BROKER_GATEWAY_URL", "http://localhost:9100"),
		PublicOrigin:   getEnv("PUBLIC_ORIGIN", "http://localhost:8001"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Retry: RetryConfig{
			MaxAttempts: getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getEnvAsDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:    getEnvAsDuration("RETRY_MAX_DELAY", 30*time.Second),
		},
		Handshake: HandshakeConfig{
			PollInterval:     getEnvAsDuration("HANDSHAKE_POLL_INTERVAL", time.Second),
			CrossOriginAfter: getEnvAsDuration("HANDSHAKE_CROSS_ORIGIN_AFTER", 5*time.Second),
			OverallTimeout:   getEnvAsDuration("HANDSHAKE_TIMEOUT", 5*time.Minute),
		},
		Backup: loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.GatewayBaseURL == "" {
		return fmt.Errorf("BROKER_GATEWAY_URL is required")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// loadBackupConfig loads backup settings; returns nil when backups are not configured
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_BUCKET", "")
	if bucket == "" {
		return nil
	}
	return &BackupConfig{
		AccountID: getEnv("BACKUP_R2_ACCOUNT_ID", ""),
		Bucket:    bucket,
		AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
		Retention: getEnvAsInt("BACKUP_RETENTION", 7),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
