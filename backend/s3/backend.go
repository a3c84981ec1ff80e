// Package s3 provides an S3-compatible backend for flatbridge.
//
// The pipeline reads daily flat files through this backend. The defaults
// target the Polygon flat-file endpoint, which is S3-compatible, requires
// path-style addressing, and serves objects too large for a fixed client
// timeout:
//
//	backend, err := s3.New(s3.Config{
//	    Bucket:          "flatfiles",
//	    Endpoint:        "https://files.polygon.io",
//	    UsePathStyle:    true,
//	    AccessKeyID:     key,
//	    SecretAccessKey: secret,
//	})
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cryptoe/flatbridge"
)

func init() {
	flatbridge.Register("s3", NewFromConfig)
}

// Errors specific to the S3 backend.
var (
	ErrBucketRequired        = errors.New("s3: bucket is required")
	ErrIncompleteCredentials = errors.New("s3: secret access key is required with an access key id")
)

// Backend implements flatbridge.Backend for S3-compatible storage.
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   Config
	closed   bool
	mu       sync.RWMutex
}

// New creates a new S3 backend with the given configuration.
func New(cfg Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.PartSize == 0 {
		cfg.PartSize = 5 * 1024 * 1024 // 5MB
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 5
	}

	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	if cfg.Timeout > 0 {
		optFns = append(optFns, config.WithHTTPClient(
			awshttp.NewBuildableClient().WithTimeout(cfg.Timeout),
		))
	}

	if cfg.MaxAttempts > 0 {
		optFns = append(optFns, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})

	return &Backend{
		client:   client,
		uploader: uploader,
		config:   cfg,
	}, nil
}

// NewFromConfig creates a new S3 backend from a config map.
// This is used by the flatbridge registry.
func NewFromConfig(configMap map[string]string) (flatbridge.Backend, error) {
	return New(ConfigFromMap(configMap))
}

// Bucket returns the configured bucket name.
func (b *Backend) Bucket() string {
	return b.config.Bucket
}

// NewWriter creates a writer for the given key. The object is uploaded
// when the writer is closed.
func (b *Backend) NewWriter(ctx context.Context, p string, opts ...flatbridge.WriterOption) (io.WriteCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := flatbridge.ApplyWriterOptions(opts...)

	return &s3Writer{
		backend:     b,
		ctx:         ctx,
		key:         b.fullKey(p),
		buffer:      &bytes.Buffer{},
		contentType: cfg.ContentType,
		metadata:    cfg.Metadata,
	}, nil
}

// NewReader creates a streaming reader for the given key.
func (b *Backend) NewReader(ctx context.Context, p string, opts ...flatbridge.ReaderOption) (io.ReadCloser, error) {
	if err := b.checkClosed(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := flatbridge.ApplyReaderOptions(opts...)

	input := &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.fullKey(p)),
	}

	if cfg.Ranged() {
		input.Range = aws.String(cfg.HTTPRange())
	}

	result, err := b.client.GetObject(ctx, input)
	if err != nil {
		return nil, b.translateError(err, p)
	}

	return result.Body, nil
}

// Exists checks if a key exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	if err := b.checkClosed(); err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.fullKey(p)),
	})
	if err != nil {
		err = b.translateError(err, p)
		if errors.Is(err, flatbridge.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Delete removes a key.
func (b *Backend) Delete(ctx context.Context, p string) error {
	if err := b.checkClosed(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.fullKey(p)),
	})
	if err != nil {
		err = b.translateError(err, p)
		if errors.Is(err, flatbridge.ErrNotFound) {
			return nil
		}
		return err
	}

	return nil
}

// List lists keys with the given prefix.
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

// Objects pages through the keys under prefix. Keys are yielded in the
// order the service returns them, which for S3 is lexical.
func (b *Backend) Objects(ctx context.Context, prefix string) iter.Seq2[flatbridge.ObjectInfo, error] {
	return func(yield func(flatbridge.ObjectInfo, error) bool) {
		if err := b.checkClosed(); err != nil {
			yield(nil, err)
			return
		}

		paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.config.Bucket),
			Prefix: aws.String(b.fullKey(prefix)),
		})

		for paginator.HasMorePages() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, fmt.Errorf("s3: listing objects: %w", b.translateError(err, prefix)))
				return
			}

			for _, obj := range page.Contents {
				if obj.Key == nil {
					continue
				}
				relPath := b.relPath(*obj.Key)
				if relPath == "" || strings.HasSuffix(relPath, "/") {
					continue
				}
				info := &flatbridge.BasicObjectInfo{
					ObjectPath: relPath,
					ObjectSize: aws.ToInt64(obj.Size),
				}
				if obj.LastModified != nil {
					info.ObjectModTime = *obj.LastModified
				}
				if !yield(info, nil) {
					return
				}
			}
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

// fullKey returns the full S3 key for a path. A trailing slash on p is
// kept so listing prefixes stay directory-scoped.
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

// relPath strips the configured prefix from a full key.
func (b *Backend) relPath(key string) string {
	if b.config.Prefix == "" {
		return key
	}
	rel := strings.TrimPrefix(key, b.config.Prefix)
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

// translateError converts S3 errors to flatbridge errors.
func (b *Backend) translateError(err error, p string) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return flatbridge.ErrNotFound
	}

	var nf *types.NotFound
	if errors.As(err, &nf) {
		return flatbridge.ErrNotFound
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return fmt.Errorf("s3: bucket not found: %s", b.config.Bucket)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return flatbridge.ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %s", flatbridge.ErrPermissionDenied, p)
		}
	}

	return fmt.Errorf("s3: %w", err)
}

// s3Writer buffers the object and uploads it on Close.
type s3Writer struct {
	backend     *Backend
	ctx         context.Context
	key         string
	buffer      *bytes.Buffer
	contentType string
	metadata    map[string]string
	closed      bool
	mu          sync.Mutex
}

func (w *s3Writer) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, flatbridge.ErrWriterClosed
	}

	return w.buffer.Write(p)
}

func (w *s3Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.backend.config.Bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buffer.Bytes()),
	}
	if w.buffer.Len() <= int(w.backend.config.PartSize) {
		input.ContentMD5 = aws.String(flatbridge.ContentMD5(w.buffer.Bytes()))
	}

	if w.contentType != "" {
		input.ContentType = aws.String(w.contentType)
	}

	if len(w.metadata) > 0 {
		input.Metadata = w.metadata
	}

	if _, err := w.backend.uploader.Upload(w.ctx, input); err != nil {
		return fmt.Errorf("s3: uploading object: %w", err)
	}

	return nil
}

var (
	_ flatbridge.Backend      = (*Backend)(nil)
	_ flatbridge.ObjectLister = (*Backend)(nil)
)
