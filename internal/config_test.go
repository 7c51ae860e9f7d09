package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		DataDir:              "./data",
		AutosaveInterval:     30 * time.Second,
		ShutdownTimeout:      30 * time.Second,
		StorageProvider:      "local",
		SequenceProvider:     "memory",
		AIProvider:           "mock",
		AIRateLimit:          20,
		TranscodeJPEGQuality: 85,
		MaxAttachmentSize:    25 << 20,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no data dir", func(c *Config) { c.DataDir = "" }, "DATA_DIR"},
		{"zero autosave", func(c *Config) { c.AutosaveInterval = 0 }, "AUTOSAVE_INTERVAL"},
		{"zero shutdown", func(c *Config) { c.ShutdownTimeout = 0 }, "SHUTDOWN_TIMEOUT"},
		{"zero rate limit", func(c *Config) { c.AIRateLimit = 0 }, "AI_RATE_LIMIT"},
		{"quality too high", func(c *Config) { c.TranscodeJPEGQuality = 101 }, "TRANSCODE_JPEG_QUALITY"},
		{"zero attachment size", func(c *Config) { c.MaxAttachmentSize = 0 }, "MAX_ATTACHMENT_SIZE"},
		{"unknown storage", func(c *Config) { c.StorageProvider = "ftp" }, "STORAGE_PROVIDER"},
		{"s3 without bucket", func(c *Config) {
			c.StorageProvider = "s3"
			c.S3AccessKeyID = "AKIA"
			c.S3SecretAccessKey = "secret"
		}, "S3_BUCKET"},
		{"s3 complete", func(c *Config) {
			c.StorageProvider = "s3"
			c.S3AccessKeyID = "AKIA"
			c.S3SecretAccessKey = "secret"
			c.S3Bucket = "reports"
		}, ""},
		{"redis without url", func(c *Config) { c.SequenceProvider = "redis" }, "REDIS_URL"},
		{"anthropic without key", func(c *Config) { c.AIProvider = "anthropic" }, "ANTHROPIC_API_KEY"},
		{"gemini without key", func(c *Config) { c.AIProvider = "gemini" }, "GEMINI_API_KEY"},
		{"unknown ai", func(c *Config) { c.AIProvider = "oracle" }, "AI_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("AUTOSAVE_INTERVAL", "5s")
	t.Setenv("AI_RATE_LIMIT", "3")
	t.Setenv("FIELDREPORT_USER_ID", "tech-9")
	t.Setenv("FIELDREPORT_USER_NAME", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 3, cfg.AIRateLimit)
	assert.Equal(t, "tech-9", cfg.UserID)
	assert.Equal(t, "tech-9", cfg.UserName)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", ParseLevel("debug").String())
	assert.Equal(t, "WARN", ParseLevel("warn").String())
	assert.Equal(t, "INFO", ParseLevel("verbose").String())
}
