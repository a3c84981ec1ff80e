// Package gcs provides a Google Cloud Storage backend for flatbridge.
//
// This is the default Output store. Parquet objects are uploaded with the
// Parquet media type, and listings of the output prefix feed the
// processed-date index.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/cryptoe/flatbridge"
)

func init() {
	flatbridge.Register("gcs", NewFromConfig)
}

// Backend implements flatbridge.Backend for Google Cloud Storage.
type Backend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	config Config
	closed bool
	mu     sync.RWMutex
}

// New creates a GCS backend, resolving credentials from the config.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption

	switch {
	case cfg.Endpoint != "":
		clientOpts = append(clientOpts,
			option.WithEndpoint(cfg.Endpoint),
			option.WithoutAuthentication(),
		)
	case cfg.ImpersonateServiceAccount != "":
		var baseOpts []option.ClientOption
		if cfg.CredentialsFile != "" {
			baseOpts = append(baseOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: cfg.ImpersonateServiceAccount,
			Scopes:          []string{storage.ScopeReadWrite},
		}, baseOpts...)
		if err != nil {
			return nil, fmt.Errorf("gcs: impersonating %s: %w", cfg.ImpersonateServiceAccount, err)
		}
		clientOpts = append(clientOpts, option.WithTokenSource(ts))
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: creating client: %w", err)
	}

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing storage client. The backend takes
// ownership of the client and closes it on Close.
func NewWithClient(client *storage.Client, cfg Config) *Backend {
	return &Backend{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		config: cfg,
	}
}

// NewFromConfig creates a new GCS backend from a config map.
// This is used by the flatbridge registry.
func NewFromConfig(configMap map[string]string) (flatbridge.Backend, error) {
	return New(context.Background(), ConfigFromMap(configMap))
}

// NewWriter creates a writer for the given object. The upload completes,
// and the object becomes visible, when the writer is closed.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...flatbridge.WriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p == "" {
		return nil, flatbridge.ErrInvalidPath
	}

	cfg := flatbridge.ApplyWriterOptions(opts...)

	w := b.bucket.Object(b.fullKey(p)).NewWriter(ctx)
	w.ContentType = cfg.ContentType
	if len(cfg.Metadata) > 0 {
		w.Metadata = cfg.Metadata
	}
	if b.config.ChunkSize > 0 {
		w.ChunkSize = b.config.ChunkSize
	}

	return &gcsWriter{w: w, path: p}, nil
}

// NewReader creates a reader for the given object.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...flatbridge.ReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := flatbridge.ApplyReaderOptions(opts...)

	length := int64(-1)
	if cfg.Limit > 0 {
		length = cfg.Limit
	}

	// ReadCompressed keeps gzip-encoded objects byte-identical to what was stored.
	obj := b.bucket.Object(b.fullKey(p)).ReadCompressed(true)
	r, err := obj.NewRangeReader(ctx, cfg.Offset, length)
	if err != nil {
		return nil, translateError(err, p)
	}
	return r, nil
}

// Exists checks if an object exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.bucket.Object(b.fullKey(p)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, translateError(err, p)
	}
	return true, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := b.bucket.Object(b.fullKey(p)).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return translateError(err, p)
	}
	return nil
}

// List lists object names with the given prefix.
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

// Objects pages through the objects under prefix in lexical order.
func (b *Backend) Objects(ctx context.Context, prefix string) iter.Seq2[flatbridge.ObjectInfo, error] {
	return func(yield func(flatbridge.ObjectInfo, error) bool) {
		if err := b.checkClosed(); err != nil {
			yield(nil, err)
			return
		}

		query := &storage.Query{Prefix: b.fullKey(prefix)}
		if err := query.SetAttrSelection([]string{"Name", "Size", "Updated"}); err != nil {
			yield(nil, fmt.Errorf("gcs: building query: %w", err))
			return
		}

		it := b.bucket.Objects(ctx, query)
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("gcs: listing objects: %w", translateError(err, prefix)))
				return
			}
			if attrs.Name == "" || strings.HasSuffix(attrs.Name, "/") {
				continue
			}
			info := &flatbridge.BasicObjectInfo{
				ObjectPath:    b.relPath(attrs.Name),
				ObjectSize:    attrs.Size,
				ObjectModTime: attrs.Updated,
			}
			if !yield(info, nil) {
				return
			}
		}
	}
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}

// fullKey returns the full object name for a path.
func (b *Backend) fullKey(p string) string {
	if b.config.Prefix == "" {
		return p
	}
	key := path.Join(b.config.Prefix, p)
	if strings.HasSuffix(p, "/") {
		key += "/"
	}
	return key
}

// relPath strips the configured prefix from an object name.
func (b *Backend) relPath(name string) string {
	if b.config.Prefix == "" {
		return name
	}
	rel := strings.TrimPrefix(name, b.config.Prefix)
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

// translateError converts GCS errors to flatbridge errors.
func translateError(err error, p string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrObjectNotExist) {
		return flatbridge.ErrNotFound
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("gcs: bucket not found: %w", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return flatbridge.ErrNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s", flatbridge.ErrPermissionDenied, p)
		}
	}

	return fmt.Errorf("gcs: %w", err)
}

// gcsWriter adapts storage.Writer errors to flatbridge errors.
type gcsWriter struct {
	w      *storage.Writer
	path   string
	closed bool
	mu     sync.Mutex
}

func (w *gcsWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, flatbridge.ErrWriterClosed
	}
	n, err := w.w.Write(p)
	if err != nil {
		return n, translateError(err, w.path)
	}
	return n, nil
}

func (w *gcsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.w.Close(); err != nil {
		return fmt.Errorf("gcs: uploading %s: %w", w.path, translateError(err, w.path))
	}
	return nil
}

var (
	_ flatbridge.Backend      = (*Backend)(nil)
	_ flatbridge.ObjectLister = (*Backend)(nil)
)
