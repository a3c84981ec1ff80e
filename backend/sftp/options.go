package sftp

import (
	"errors"
	"strconv"
	"time"
)

// Errors specific to the SFTP backend.
var (
	ErrHostRequired      = errors.New("sftp: host is required")
	ErrUserRequired      = errors.New("sftp: user is required")
	ErrAuthRequired      = errors.New("sftp: password or key file is required")
	ErrHostKeyUnverified = errors.New("sftp: known hosts file is required unless insecure host keys are allowed")
)

// Config holds configuration for the SFTP backend.
type Config struct {
	// Host is the SFTP server hostname or IP address (required).
	Host string

	// Port is the SSH port. Default: 22.
	Port int

	// User is the SSH username (required).
	User string

	// Password is the SSH password.
	// Either Password or KeyFile must be provided.
	Password string

	// KeyFile is the path to an SSH private key file.
	KeyFile string

	// KeyPassphrase is the passphrase for encrypted private keys.
	KeyPassphrase string

	// Root is the base directory on the remote server.
	// All paths are relative to this directory.
	Root string

	// KnownHostsFile is the path to an OpenSSH known_hosts file used to
	// verify the server's host key.
	KnownHostsFile string

	// InsecureIgnoreHostKey skips host key verification when no
	// KnownHostsFile is set. Intended for local test servers.
	InsecureIgnoreHostKey bool

	// Timeout is the connection timeout. Default: 30s.
	Timeout time.Duration

	// Concurrency is the maximum number of in-flight requests per file.
	// Default: 5.
	Concurrency int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Port:        22,
		Timeout:     30 * time.Second,
		Concurrency: 5,
	}
}

// ConfigFromMap creates a Config from a string map.
// Supported keys:
//   - host: server hostname (required)
//   - port: SSH port (default: 22)
//   - user: username (required)
//   - password: password
//   - key_file: path to private key
//   - key_passphrase: passphrase for encrypted key
//   - root: base directory
//   - known_hosts: path to known_hosts file
//   - insecure_ignore_host_key: "true" to skip host key checks
//   - timeout: connection timeout as a Go duration
//   - concurrency: maximum in-flight requests per file
func ConfigFromMap(m map[string]string) Config {
	config := DefaultConfig()

	if v, ok := m["host"]; ok {
		config.Host = v
	}
	if v, ok := m["port"]; ok {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			config.Port = port
		}
	}
	if v, ok := m["user"]; ok {
		config.User = v
	}
	if v, ok := m["password"]; ok {
		config.Password = v
	}
	if v, ok := m["key_file"]; ok {
		config.KeyFile = v
	}
	if v, ok := m["key_passphrase"]; ok {
		config.KeyPassphrase = v
	}
	if v, ok := m["root"]; ok {
		config.Root = v
	}
	if v, ok := m["known_hosts"]; ok {
		config.KnownHostsFile = v
	}
	if v, ok := m["insecure_ignore_host_key"]; ok {
		config.InsecureIgnoreHostKey, _ = strconv.ParseBool(v)
	}
	if v, ok := m["timeout"]; ok {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.Timeout = d
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
	if c.Host == "" {
		return ErrHostRequired
	}
	if c.User == "" {
		return ErrUserRequired
	}
	if c.Password == "" && c.KeyFile == "" {
		return ErrAuthRequired
	}
	if c.KnownHostsFile == "" && !c.InsecureIgnoreHostKey {
		return ErrHostKeyUnverified
	}
	return nil
}
