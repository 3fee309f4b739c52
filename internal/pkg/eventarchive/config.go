package eventarchive

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PixelMart/internal/pkg/env"
)

// Config holds the S3 target of the event-log archive
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads the archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("EVENT_ARCHIVE_BUCKET", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("EVENT_ARCHIVE_PREFIX", "ad-events"),
		Enabled:         env.GetEnv("EVENT_ARCHIVE_BUCKET", "") != "",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the event archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the event archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if a bucket is configured
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey returns the key of one day's export.
// Format: <prefix>/YYYY/MM/DD/events-<id>.jsonl
func (c *Config) ObjectKey(day time.Time, id string) string {
	return fmt.Sprintf("%s/%04d/%02d/%02d/events-%s.jsonl", c.Prefix, day.Year(), int(day.Month()), day.Day(), id)
}
