// Package memory provides an in-memory backend for flatbridge.
//
// The memory backend stands in for the Input and Output stores in tests and
// for dry runs. Data lives in RAM and is lost when the backend is closed.
package memory

import (
	"bytes"
	"context"
	"io"
	"iter"
	"maps"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cryptoe/flatbridge"
)

func init() {
	flatbridge.Register("memory", NewFromConfig)
}

// object is a stored object.
type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
}

// Attrs are the attributes recorded for a stored object.
type Attrs struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
	ModTime     time.Time
}

// Backend implements flatbridge.Backend for in-memory storage.
type Backend struct {
	objects map[string]*object
	closed  bool
	mu      sync.RWMutex
}

// New creates a new memory backend.
func New() *Backend {
	return &Backend{
		objects: make(map[string]*object),
	}
}

// NewFromConfig creates a new memory backend from a config map.
// The memory backend ignores all configuration options.
func NewFromConfig(_ map[string]string) (flatbridge.Backend, error) {
	return New(), nil
}

// NewWriter creates a writer for the given key.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...flatbridge.WriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePath(p); err != nil {
		return nil, err
	}

	config := flatbridge.ApplyWriterOptions(opts...)

	return &memoryWriter{
		backend:     b,
		path:        normalizePath(p),
		buffer:      &bytes.Buffer{},
		contentType: config.ContentType,
		metadata:    maps.Clone(config.Metadata),
	}, nil
}

// NewReader creates a reader for the given key.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...flatbridge.ReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePath(p); err != nil {
		return nil, err
	}

	b.mu.RLock()
	obj, exists := b.objects[normalizePath(p)]
	b.mu.RUnlock()

	if !exists {
		return nil, flatbridge.ErrNotFound
	}

	config := flatbridge.ApplyReaderOptions(opts...)

	data := obj.data
	if config.Offset > 0 {
		if config.Offset >= int64(len(data)) {
			data = nil
		} else {
			data = data[config.Offset:]
		}
	}
	if config.Limit > 0 && int64(len(data)) > config.Limit {
		data = data[:config.Limit]
	}

	// Stored slices are never mutated after Close, so sharing is safe.
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Exists checks if a key exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validatePath(p); err != nil {
		return false, err
	}

	b.mu.RLock()
	_, exists := b.objects[normalizePath(p)]
	b.mu.RUnlock()

	return exists, nil
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePath(p); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.objects, normalizePath(p))
	b.mu.Unlock()

	return nil
}

// List lists keys with the given prefix in lexical order.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalPrefix := normalizePath(prefix)
	if normalPrefix != "" && strings.HasSuffix(prefix, "/") {
		normalPrefix += "/"
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	paths := []string{}
	for p := range b.objects {
		if normalPrefix == "" || strings.HasPrefix(p, normalPrefix) {
			paths = append(paths, p)
		}
	}

	sort.Strings(paths)
	return paths, nil
}

// Objects yields the objects under prefix in lexical order.
func (b *Backend) Objects(ctx context.Context, prefix string) iter.Seq2[flatbridge.ObjectInfo, error] {
	return func(yield func(flatbridge.ObjectInfo, error) bool) {
		paths, err := b.List(ctx, prefix)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, p := range paths {
			b.mu.RLock()
			obj, ok := b.objects[p]
			b.mu.RUnlock()
			if !ok {
				// Deleted since the listing snapshot.
				continue
			}
			info := &flatbridge.BasicObjectInfo{
				ObjectPath:    p,
				ObjectSize:    int64(len(obj.data)),
				ObjectModTime: obj.modTime,
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// Close releases the stored objects.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.objects = nil
	return nil
}

// Put stores data under key directly, bypassing the writer.
func (b *Backend) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[normalizePath(key)] = &object{
		data:    bytes.Clone(data),
		modTime: time.Now(),
	}
}

// Attrs returns the attributes recorded for key.
func (b *Backend) Attrs(key string) (Attrs, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, ok := b.objects[normalizePath(key)]
	if !ok {
		return Attrs{}, false
	}
	return Attrs{
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		Metadata:    maps.Clone(obj.metadata),
		ModTime:     obj.modTime,
	}, true
}

// Count returns the number of objects in the backend.
func (b *Backend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
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

// validatePath rejects empty keys and keys escaping the root.
func validatePath(p string) error {
	if p == "" {
		return flatbridge.ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, "/../") {
		return flatbridge.ErrInvalidPath
	}
	return nil
}

// normalizePath cleans a key and strips the leading slash.
func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.TrimPrefix(path.Clean(p), "/")
	if p == "." {
		return ""
	}
	return p
}

// memoryWriter buffers writes and commits the object on Close.
type memoryWriter struct {
	backend     *Backend
	path        string
	buffer      *bytes.Buffer
	contentType string
	metadata    map[string]string
	closed      bool
	mu          sync.Mutex
}

func (w *memoryWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, flatbridge.ErrWriterClosed
	}
	return w.buffer.Write(p)
}

func (w *memoryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()

	if w.backend.closed {
		return flatbridge.ErrBackendClosed
	}

	w.backend.objects[w.path] = &object{
		data:        w.buffer.Bytes(),
		contentType: w.contentType,
		metadata:    w.metadata,
		modTime:     time.Now(),
	}
	return nil
}

var (
	_ flatbridge.Backend      = (*Backend)(nil)
	_ flatbridge.ObjectLister = (*Backend)(nil)
)
