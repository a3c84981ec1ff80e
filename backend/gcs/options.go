package gcs

import "errors"

// Errors specific to the GCS backend.
var (
	ErrBucketRequired = errors.New("gcs: bucket is required")
)

// Config holds configuration for the GCS backend.
type Config struct {
	// Bucket is the GCS bucket name (required).
	Bucket string

	// Prefix is an optional prefix for all object names.
	Prefix string

	// CredentialsFile is a service account JSON key file. When empty,
	// Application Default Credentials are used.
	CredentialsFile string

	// ImpersonateServiceAccount, when set, mints tokens for this service
	// account using the base credentials.
	ImpersonateServiceAccount string

	// Endpoint overrides the JSON API endpoint, e.g. for an emulator.
	// Requests to a custom endpoint are sent without authentication.
	Endpoint string

	// ChunkSize is the resumable upload chunk size in bytes. Zero keeps
	// the client default.
	ChunkSize int
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - bucket: bucket name (required)
//   - prefix: object name prefix
//   - credentials_file: service account key file
//   - impersonate_service_account: service account email
//   - endpoint: custom JSON API endpoint
func ConfigFromMap(m map[string]string) Config {
	return Config{
		Bucket:                    m["bucket"],
		Prefix:                    m["prefix"],
		CredentialsFile:           m["credentials_file"],
		ImpersonateServiceAccount: m["impersonate_service_account"],
		Endpoint:                  m["endpoint"],
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	return nil
}
