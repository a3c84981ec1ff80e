// Package file provides a local filesystem backend for flatbridge.
//
// In local mode the pipeline publishes Parquet files into a directory
// through this backend. Writes land in a hidden temporary file that is
// renamed into place on Close, so a crashed run never leaves a partial
// output that a later run would mistake for a processed date.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cryptoe/flatbridge"
)

// tempPrefix marks in-flight writes. Listings skip these files.
const tempPrefix = ".flatbridge-"

func init() {
	flatbridge.Register("file", NewFromConfig)
}

// Config holds configuration for the file backend.
type Config struct {
	// Root is the root directory for all operations.
	// All paths are relative to this directory.
	Root string

	// CreateDirs controls whether parent directories are created automatically.
	// Default: true
	CreateDirs bool

	// DirPermissions is the permission mode for created directories.
	// Default: 0755
	DirPermissions os.FileMode

	// FilePermissions is the permission mode for created files.
	// Default: 0644
	FilePermissions os.FileMode
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Root:            ".",
		CreateDirs:      true,
		DirPermissions:  0755,
		FilePermissions: 0644,
	}
}

// Backend implements flatbridge.Backend for the local filesystem.
type Backend struct {
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates a new file backend with the given configuration.
func New(config Config) *Backend {
	if config.Root == "" {
		config.Root = "."
	}
	if config.DirPermissions == 0 {
		config.DirPermissions = 0755
	}
	if config.FilePermissions == 0 {
		config.FilePermissions = 0644
	}
	return &Backend{
		config: config,
	}
}

// NewFromConfig creates a new file backend from a config map.
// Supported keys:
//   - root: root directory (default: ".")
//   - create_dirs: "true" or "false" (default: "true")
func NewFromConfig(configMap map[string]string) (flatbridge.Backend, error) {
	config := DefaultConfig()

	if root, ok := configMap["root"]; ok && root != "" {
		config.Root = root
	}

	if createDirs, ok := configMap["create_dirs"]; ok {
		config.CreateDirs = createDirs != "false"
	}

	return New(config), nil
}

// Root returns the backend's root directory.
func (b *Backend) Root() string {
	return b.config.Root
}

// NewWriter creates a writer for the given path. The file becomes visible
// under its final name only when the writer is closed.
func (b *Backend) NewWriter(ctx context.Context, path string, _ ...flatbridge.WriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := b.validatePath(path); err != nil {
		return nil, err
	}

	fullPath := b.fullPath(path)
	dir := filepath.Dir(fullPath)

	if b.config.CreateDirs {
		if err := os.MkdirAll(dir, b.config.DirPermissions); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	f, err := os.CreateTemp(dir, tempPrefix+filepath.Base(fullPath)+"-*")
	if err != nil {
		if os.IsPermission(err) {
			return nil, flatbridge.ErrPermissionDenied
		}
		return nil, fmt.Errorf("creating file %s: %w", path, err)
	}

	return &atomicWriter{
		f:     f,
		final: fullPath,
		perm:  b.config.FilePermissions,
	}, nil
}

// NewReader creates a reader for the given path.
func (b *Backend) NewReader(ctx context.Context, path string, opts ...flatbridge.ReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := b.validatePath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(b.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, flatbridge.ErrNotFound
		}
		if os.IsPermission(err) {
			return nil, flatbridge.ErrPermissionDenied
		}
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}

	config := flatbridge.ApplyReaderOptions(opts...)

	if config.Offset > 0 {
		if _, err := f.Seek(config.Offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("seeking to offset %d: %w", config.Offset, err)
		}
	}

	if config.Limit > 0 {
		return &limitedReadCloser{
			r:      io.LimitReader(f, config.Limit),
			closer: f,
		}, nil
	}

	return f, nil
}

// Exists checks if a path exists.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := b.validatePath(path); err != nil {
		return false, err
	}

	_, err := os.Stat(b.fullPath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking existence of %s: %w", path, err)
}

// Delete removes a path.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.validatePath(path); err != nil {
		return err
	}

	err := os.Remove(b.fullPath(path))
	if err == nil || os.IsNotExist(err) {
		return nil // Idempotent
	}
	if os.IsPermission(err) {
		return flatbridge.ErrPermissionDenied
	}
	return fmt.Errorf("deleting %s: %w", path, err)
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

// Objects yields the files under prefix in lexical order. The prefix is
// matched against slash-separated paths relative to the root, so it need
// not name a directory.
func (b *Backend) Objects(ctx context.Context, prefix string) iter.Seq2[flatbridge.ObjectInfo, error] {
	return func(yield func(flatbridge.ObjectInfo, error) bool) {
		if err := b.checkClosed(); err != nil {
			yield(nil, err)
			return
		}
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		// Walk from the deepest directory the prefix names.
		walkRoot := b.config.Root
		if dir, _ := splitPrefix(prefix); dir != "" {
			walkRoot = b.fullPath(dir)
		}

		stopped := false
		err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if os.IsPermission(err) {
					return nil
				}
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
				return nil
			}

			rel, err := filepath.Rel(b.config.Root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !strings.HasPrefix(rel, prefix) {
				return nil
			}

			fi, err := d.Info()
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			info := &flatbridge.BasicObjectInfo{
				ObjectPath:    rel,
				ObjectSize:    fi.Size(),
				ObjectModTime: fi.ModTime(),
			}
			if !yield(info, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})

		if err != nil && !stopped {
			if os.IsNotExist(err) {
				return
			}
			yield(nil, fmt.Errorf("listing %s: %w", prefix, err))
		}
	}
}

// Close releases any resources held by the backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// splitPrefix splits a listing prefix into its directory part and the
// remaining name fragment.
func splitPrefix(prefix string) (dir, rest string) {
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return "", prefix
	}
	return prefix[:i], prefix[i+1:]
}

// fullPath returns the full filesystem path for a relative path.
func (b *Backend) fullPath(path string) string {
	return filepath.Join(b.config.Root, filepath.FromSlash(path))
}

// validatePath checks if a path is valid.
func (b *Backend) validatePath(path string) error {
	if path == "" {
		return flatbridge.ErrInvalidPath
	}

	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return flatbridge.ErrInvalidPath
	}

	return nil
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

// atomicWriter writes to a temporary file and renames it on Close.
type atomicWriter struct {
	f      *os.File
	final  string
	perm   os.FileMode
	err    error
	closed bool
	mu     sync.Mutex
}

func (w *atomicWriter) Write(p []byte) (int, error) {
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

func (w *atomicWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	tmp := w.f.Name()
	if w.err != nil {
		_ = w.f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", w.final, w.err)
	}
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("syncing %s: %w", w.final, err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("closing %s: %w", w.final, err)
	}
	if err := os.Chmod(tmp, w.perm); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("setting permissions on %s: %w", w.final, err)
	}
	if err := os.Rename(tmp, w.final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("renaming into %s: %w", w.final, err)
	}
	return nil
}

// limitedReadCloser wraps a limited reader with a closer.
type limitedReadCloser struct {
	r      io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (n int, err error) {
	return l.r.Read(p)
}

func (l *limitedReadCloser) Close() error {
	return l.closer.Close()
}

var (
	_ flatbridge.Backend      = (*Backend)(nil)
	_ flatbridge.ObjectLister = (*Backend)(nil)
)
