package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	// Local document store
	DataDir          string        // Directory holding the SQLite database
	AutosaveInterval time.Duration // Silent save period for open editors
	ShutdownTimeout  time.Duration // Bound on waiting for in-flight attachments at shutdown

	// Active session (the local device's technician)
	UserID   string
	UserName string

	// Remote object storage
	StorageProvider string // "local" or "s3"

	// Local Storage (development / offline)
	LocalStoragePath string // Base directory for mirrored artifacts
	LocalStorageURL  string // Base URL for accessing mirrored artifacts

	// S3-compatible storage (AWS S3, Cloudflare R2, MinIO)
	S3Endpoint        string // Empty for AWS; set for R2/MinIO
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string
	S3PublicURL       string // Optional public base URL

	// Remote sequence ids
	SequenceProvider string // "memory" or "redis"
	RedisURL         string

	// Attachment ingestion
	TranscodeJPEGQuality int
	MaxAttachmentSize    int64

	// AI Provider Configuration
	AIProvider       string // "mock", "anthropic" or "gemini"
	AnthropicAPIKey  string
	AnthropicModel   string
	GeminiAPIKey     string
	GeminiModel      string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration
	AIRateLimit      int // Enrichment requests per client per minute

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		DataDir:          getEnv("DATA_DIR", "./data"),
		AutosaveInterval: getEnvDuration("AUTOSAVE_INTERVAL", 30*time.Second),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		UserID:   getEnv("FIELDREPORT_USER_ID", ""),
		UserName: getEnv("FIELDREPORT_USER_NAME", ""),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3PublicURL:       getEnv("S3_PUBLIC_URL", ""),

		SequenceProvider: getEnv("SEQUENCE_PROVIDER", "memory"),
		RedisURL:         getEnv("REDIS_URL", ""),

		TranscodeJPEGQuality: getEnvInt("TRANSCODE_JPEG_QUALITY", 85),
		MaxAttachmentSize:    int64(getEnvInt("MAX_ATTACHMENT_SIZE", 25*1024*1024)),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_TIMEOUT", 60*time.Second),
		AIRateLimit:      getEnvInt("AI_RATE_LIMIT", 20),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	if cfg.UserID == "" {
		cfg.UserID = getEnv("USER", "technician")
	}
	if cfg.UserName == "" {
		cfg.UserName = cfg.UserID
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider selections and their required settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.AutosaveInterval <= 0 {
		return fmt.Errorf("AUTOSAVE_INTERVAL must be positive, got: %s", c.AutosaveInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got: %s", c.ShutdownTimeout)
	}
	if c.AIRateLimit < 1 {
		return fmt.Errorf("AI_RATE_LIMIT must be at least 1, got: %d", c.AIRateLimit)
	}
	if c.TranscodeJPEGQuality < 1 || c.TranscodeJPEGQuality > 100 {
		return fmt.Errorf("TRANSCODE_JPEG_QUALITY must be between 1 and 100, got: %d", c.TranscodeJPEGQuality)
	}
	if c.MaxAttachmentSize <= 0 {
		return fmt.Errorf("MAX_ATTACHMENT_SIZE must be positive, got: %d", c.MaxAttachmentSize)
	}

	// Validate storage configuration
	switch c.StorageProvider {
	case "local":
	case "s3":
		if c.S3AccessKeyID == "" {
			return fmt.Errorf("S3_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 's3'")
		}
		if c.S3SecretAccessKey == "" {
			return fmt.Errorf("S3_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 's3'")
		}
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_PROVIDER is 's3'")
		}
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 's3', got: %s", c.StorageProvider)
	}

	// Validate sequence configuration
	switch c.SequenceProvider {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SEQUENCE_PROVIDER is 'redis'")
		}
	default:
		return fmt.Errorf("SEQUENCE_PROVIDER must be either 'memory' or 'redis', got: %s", c.SequenceProvider)
	}

	// Validate AI provider configuration
	switch c.AIProvider {
	case "mock":
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is 'gemini'")
		}
	default:
		return fmt.Errorf("AI_PROVIDER must be one of 'mock', 'anthropic' or 'gemini', got: %s", c.AIProvider)
	}

	return nil
}

// DatabasePath returns the location of the local document store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "fieldreport.db")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
