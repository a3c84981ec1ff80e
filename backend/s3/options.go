package s3

import (
	"strconv"
	"time"
)

// Defaults for the Polygon flat-file endpoint.
const (
	DefaultEndpoint = "https://files.polygon.io"
	DefaultBucket   = "flatfiles"
	DefaultRegion   = "us-east-1"
)

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string

	// Region is the signing region. Flat-file endpoints accept any region,
	// so this defaults to DefaultRegion when empty.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible services.
	// Leave empty for AWS S3.
	Endpoint string

	// Prefix is an optional prefix for all keys.
	Prefix string

	// AccessKeyID is the access key ID.
	// If empty, the default AWS credential chain is used.
	AccessKeyID string

	// SecretAccessKey is the secret access key.
	SecretAccessKey string

	// SessionToken is an optional session token for temporary credentials.
	SessionToken string

	// UsePathStyle forces path-style addressing instead of virtual-hosted-style.
	// The flat-file endpoint requires it.
	UsePathStyle bool

	// Timeout bounds each HTTP request. Zero disables the client timeout,
	// which large daily files need.
	Timeout time.Duration

	// MaxAttempts is the SDK's per-request attempt budget. Zero keeps the
	// SDK default.
	MaxAttempts int

	// PartSize is the size in bytes for multipart upload parts.
	// Default: 5MB (minimum for S3).
	PartSize int64

	// Concurrency is the number of concurrent upload goroutines.
	// Default: 5.
	Concurrency int
}

// DefaultConfig returns a Config pointing at the flat-file endpoint.
func DefaultConfig() Config {
	return Config{
		Bucket:       DefaultBucket,
		Endpoint:     DefaultEndpoint,
		Region:       DefaultRegion,
		UsePathStyle: true,
		PartSize:     5 * 1024 * 1024, // 5MB
		Concurrency:  5,
	}
}

// ConfigFromMap creates a Config from a string map, starting from
// DefaultConfig.
// Supported keys:
//   - bucket: bucket name
//   - region: signing region
//   - endpoint: custom endpoint URL
//   - prefix: key prefix
//   - access_key_id: access key
//   - secret_access_key: secret key
//   - session_token: session token
//   - use_path_style: "true" or "false"
//   - timeout: request timeout as a Go duration ("0" disables)
//   - max_attempts: SDK attempt budget per request
//   - part_size: multipart upload part size in bytes
//   - concurrency: number of concurrent upload goroutines
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["bucket"]; ok && v != "" {
		config.Bucket = v
	}
	if v, ok := m["region"]; ok && v != "" {
		config.Region = v
	}
	if v, ok := m["endpoint"]; ok {
		config.Endpoint = v
	}
	if v, ok := m["prefix"]; ok {
		config.Prefix = v
	}
	if v, ok := m["access_key_id"]; ok {
		config.AccessKeyID = v
	}
	if v, ok := m["secret_access_key"]; ok {
		config.SecretAccessKey = v
	}
	if v, ok := m["session_token"]; ok {
		config.SessionToken = v
	}
	if v, ok := m["use_path_style"]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			config.UsePathStyle = b
		}
	}
	if v, ok := m["timeout"]; ok {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			config.Timeout = d
		}
	}
	if v, ok := m["max_attempts"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxAttempts = n
		}
	}
	if v, ok := m["part_size"]; ok {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			config.PartSize = size
		}
	}
	if v, ok := m["concurrency"]; ok {
		if c, err := strconv.Atoi(v); err == nil && c > 0 {
			config.Concurrency = c
		}
	}

	return config
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	if c.AccessKeyID != "" && c.SecretAccessKey == "" {
		return ErrIncompleteCredentials
	}
	return nil
}
