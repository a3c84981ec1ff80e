// Package sftp provides an SFTP backend for flatbridge.
//
// It can serve as the Output store when Parquet files are published to a
// remote host rather than a bucket:
//
//	backend, err := sftp.New(sftp.Config{
//	    Host:           "archive.example.com",
//	    User:           "loader",
//	    KeyFile:        "/etc/flatbridge/id_ed25519",
//	    KnownHostsFile: "/etc/flatbridge/known_hosts",
//	    Root:           "/srv/parquet",
//	})
//
// Files are written under a temporary name and renamed into place on Close.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"net"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/cryptoe/flatbridge"
)

// tempPrefix marks in-flight uploads. Listings skip these files.
const tempPrefix = ".flatbridge-"

func init() {
	flatbridge.Register("sftp", NewFromConfig)
}

// Backend implements flatbridge.Backend for SFTP.
type Backend struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	config     Config
	closed     bool
	mu         sync.RWMutex
}

// New dials the server and opens an SFTP session.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}

	var authMethods []ssh.AuthMethod
	if cfg.Password != "" {
		authMethods = append(authMethods, ssh.Password(cfg.Password))
	}
	if cfg.KeyFile != "" {
		keyAuth, err := keyFileAuth(cfg.KeyFile, cfg.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading key file: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		Timeout:         cfg.Timeout,
		HostKeyCallback: hostKeyCallback,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	sshClient, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return nil, fmt.Errorf("sftp: SSH connection failed: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshClient, sftp.MaxConcurrentRequestsPerFile(cfg.Concurrency))
	if err != nil {
		if closeErr := sshClient.Close(); closeErr != nil {
			return nil, fmt.Errorf("sftp: SFTP session failed: %w (also failed to close SSH: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("sftp: SFTP session failed: %w", err)
	}

	return &Backend{
		sshClient:  sshClient,
		sftpClient: sftpClient,
		config:     cfg,
	}, nil
}

// NewWithClient wraps an established SFTP session rooted at root. The
// backend takes ownership of the client and closes it on Close.
func NewWithClient(client *sftp.Client, root string) *Backend {
	return &Backend{
		sftpClient: client,
		config:     Config{Root: root},
	}
}

// NewFromConfig creates a new SFTP backend from a config map.
// This is used by the flatbridge registry.
func NewFromConfig(configMap map[string]string) (flatbridge.Backend, error) {
	return New(ConfigFromMap(configMap))
}

// hostKeyCallback verifies host keys against the known hosts file, or
// skips verification when explicitly allowed.
func hostKeyCallback(cfg Config) (ssh.HostKeyCallback, error) {
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("sftp: loading known hosts: %w", err)
		}
		return cb, nil
	}
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // G106: opt-in for local test servers
	}
	return nil, ErrHostKeyUnverified
}

// keyFileAuth creates an SSH auth method from a private key file.
func keyFileAuth(keyFile, passphrase string) (ssh.AuthMethod, error) {
	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(keyData)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return ssh.PublicKeys(signer), nil
}

// NewWriter creates a writer for the given path. The remote file appears
// under its final name when the writer is closed.
func (b *Backend) NewWriter(ctx context.Context, p string, _ ...flatbridge.WriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p == "" {
		return nil, flatbridge.ErrInvalidPath
	}

	fullPath := b.fullPath(p)
	dir := path.Dir(fullPath)
	if err := b.sftpClient.MkdirAll(dir); err != nil {
		return nil, fmt.Errorf("sftp: creating directory: %w", err)
	}

	tmpPath := path.Join(dir, tempPrefix+path.Base(fullPath))
	f, err := b.sftpClient.Create(tmpPath)
	if err != nil {
		return nil, b.translateError(err, p)
	}

	return &renameWriter{
		client: b.sftpClient,
		f:      f,
		tmp:    tmpPath,
		final:  fullPath,
	}, nil
}

// NewReader creates a reader for the given path.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...flatbridge.ReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := flatbridge.ApplyReaderOptions(opts...)

	f, err := b.sftpClient.Open(b.fullPath(p))
	if err != nil {
		return nil, b.translateError(err, p)
	}

	if cfg.Offset > 0 {
		if _, err := f.Seek(cfg.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sftp: seeking to offset: %w", err)
		}
	}

	if cfg.Limit > 0 {
		return &limitedReader{f, cfg.Limit}, nil
	}

	return f, nil
}

// limitedReader wraps a reader with a byte limit.
type limitedReader struct {
	r         io.ReadCloser
	remaining int64
}

func (lr *limitedReader) Read(p []byte) (n int, err error) {
	if lr.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > lr.remaining {
		p = p[:lr.remaining]
	}
	n, err = lr.r.Read(p)
	lr.remaining -= int64(n)
	return
}

func (lr *limitedReader) Close() error {
	return lr.r.Close()
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.sftpClient.Stat(b.fullPath(p))
	if err != nil {
		if errors.Is(b.translateError(err, p), flatbridge.ErrNotFound) {
			return false, nil
		}
		return false, b.translateError(err, p)
	}
	return true, nil
}

// Delete removes a path.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.sftpClient.Remove(b.fullPath(p)); err != nil {
		if errors.Is(b.translateError(err, p), flatbridge.ErrNotFound) {
			return nil
		}
		return b.translateError(err, p)
	}
	return nil
}

// List lists paths with the given prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	paths := []string{}
	for info, err := range b.Objects(ctx, prefix) {
		if err != nil {
			return nil, err
		}
		paths = append(paths, info.Path())
	}
	return paths, nil
}

// Objects walks the remote tree below the deepest directory named by
// prefix and yields the regular files whose relative path starts with it.
func (b *Backend) Objects(ctx context.Context, prefix string) iter.Seq2[flatbridge.ObjectInfo, error] {
	return func(yield func(flatbridge.ObjectInfo, error) bool) {
		if err := b.checkClosed(); err != nil {
			yield(nil, err)
			return
		}

		start := b.fullPath("")
		if i := strings.LastIndex(prefix, "/"); i >= 0 {
			start = b.fullPath(prefix[:i])
		}

		walker := b.sftpClient.Walk(start)
		for walker.Step() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if err := walker.Err(); err != nil {
				if errors.Is(b.translateError(err, walker.Path()), flatbridge.ErrNotFound) {
					continue
				}
				yield(nil, fmt.Errorf("sftp: listing directory: %w", err))
				return
			}

			fi := walker.Stat()
			if fi.IsDir() || strings.HasPrefix(fi.Name(), tempPrefix) {
				continue
			}

			rel := b.relPath(walker.Path())
			if !strings.HasPrefix(rel, prefix) {
				continue
			}

			info := &flatbridge.BasicObjectInfo{
				ObjectPath:    rel,
				ObjectSize:    fi.Size(),
				ObjectModTime: fi.ModTime(),
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// Close releases the SFTP session and the SSH connection.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true

	var errs []error
	if b.sftpClient != nil {
		if err := b.sftpClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.sshClient != nil {
		if err := b.sshClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("sftp: close errors: %w", errors.Join(errs...))
	}
	return nil
}

// fullPath returns the full remote path.
func (b *Backend) fullPath(p string) string {
	if b.config.Root == "" {
		return p
	}
	return path.Join(b.config.Root, p)
}

// relPath strips the root from a remote path.
func (b *Backend) relPath(full string) string {
	rel := strings.TrimPrefix(full, b.config.Root)
	return strings.TrimPrefix(rel, "/")
}

// checkClosed returns an error if the backend is closed.
func (b *Backend) checkClosed() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return flatbridge.ErrBackendClosed
	}
	return nil
}

// translateError converts SFTP errors to flatbridge errors.
func (b *Backend) translateError(err error, p string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return flatbridge.ErrNotFound
	}
	if errors.Is(err, fs.ErrPermission) {
		return flatbridge.ErrPermissionDenied
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return flatbridge.ErrNotFound
		case sftp.ErrSSHFxPermissionDenied:
			return flatbridge.ErrPermissionDenied
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("sftp: network error for %q: %w", p, err)
	}

	return fmt.Errorf("sftp: error for %q: %w", p, err)
}

// renameWriter uploads to a temporary file and renames it on Close.
type renameWriter struct {
	client *sftp.Client
	f      *sftp.File
	tmp    string
	final  string
	err    error
	closed bool
	mu     sync.Mutex
}

func (w *renameWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, flatbridge.ErrWriterClosed
	}
	if w.err != nil {
		return 0, w.err
	}
	n, err := w.f.Write(p)
	if err != nil {
		w.err = err
	}
	return n, err
}

func (w *renameWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if w.err != nil {
		_ = w.f.Close()
		_ = w.client.Remove(w.tmp)
		return fmt.Errorf("sftp: writing %s: %w", w.final, w.err)
	}
	if err := w.f.Close(); err != nil {
		_ = w.client.Remove(w.tmp)
		return fmt.Errorf("sftp: closing %s: %w", w.final, err)
	}
	if err := w.client.PosixRename(w.tmp, w.final); err != nil {
		// Servers without the posix-rename extension refuse to replace.
		_ = w.client.Remove(w.final)
		if err := w.client.Rename(w.tmp, w.final); err != nil {
			_ = w.client.Remove(w.tmp)
			return fmt.Errorf("sftp: renaming into %s: %w", w.final, err)
		}
	}
	return nil
}

var (
	_ flatbridge.Backend      = (*Backend)(nil)
	_ flatbridge.ObjectLister = (*Backend)(nil)
)
