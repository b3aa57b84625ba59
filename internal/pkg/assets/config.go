package assets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/supuni9622/ModelSnap/internal/pkg/env"
)

// Config holds durable render storage configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicBaseURL   string // Base URL served to clients for stored objects
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicBaseURL:   strings.TrimRight(env.GetEnv("S3_PUBLIC_BASE_URL", ""), "/"),
		Enabled:         env.GetEnv("RENDER_STORAGE_ENABLED", "false") == "true",
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when render storage is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when render storage is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when render storage is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if durable render storage is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey generates the deterministic object key for a finalized render.
// Re-finalizing the same request overwrites the same key, so storage never
// leaks duplicate objects.
func (c *Config) GetObjectKey(requestUUID, fileExtension string, year, month int) string {
	// Format: renders/YYYY/MM/UUID.ext
	return fmt.Sprintf("renders/%04d/%02d/%s%s", year, month, requestUUID, fileExtension)
}

// ObjectURL returns the client-facing URL for a stored object key.
func (c *Config) ObjectURL(key string) string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL + "/" + key
	}
	if c.EndpointURL != "" {
		return strings.TrimRight(c.EndpointURL, "/") + "/" + c.BucketName + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.BucketName, c.Region, key)
}
