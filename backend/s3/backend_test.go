package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoe/flatbridge"
)

// fakeFlatFiles serves a path-style ListObjectsV2 and GetObject subset,
// including single byte ranges.
func fakeFlatFiles(t *testing.T, bucket string, objects map[string]string, keys []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/"+bucket && r.URL.Query().Get("list-type") == "2":
			prefix := r.URL.Query().Get("prefix")
			var contents strings.Builder
			count := 0
			for _, k := range keys {
				if !strings.HasPrefix(k, prefix) {
					continue
				}
				count++
				fmt.Fprintf(&contents,
					"<Contents><Key>%s</Key><LastModified>2024-03-02T00:00:00.000Z</LastModified><Size>%d</Size></Contents>",
					k, len(objects[k]))
			}
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Name>%s</Name><Prefix>%s</Prefix><KeyCount>%d</KeyCount><MaxKeys>1000</MaxKeys><IsTruncated>false</IsTruncated>%s</ListBucketResult>`,
				bucket, prefix, count, contents.String())
		case strings.HasPrefix(r.URL.Path, "/"+bucket+"/"):
			key := strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")
			body, ok := objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				if r.Method != http.MethodHead {
					_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
				}
				return
			}
			status := http.StatusOK
			if rng := r.Header.Get("Range"); rng != "" {
				start, end := 0, len(body)-1
				if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end); err != nil {
					_, _ = fmt.Sscanf(rng, "bytes=%d-", &start)
				}
				end = min(end, len(body)-1)
				w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(body)))
				body = body[start : end+1]
				status = http.StatusPartialContent
			}
			w.Header().Set("Content-Length", fmt.Sprint(len(body)))
			w.WriteHeader(status)
			if r.Method == http.MethodHead {
				return
			}
			_, _ = io.WriteString(w, body)
		default:
			assert.Failf(t, "unexpected request", "%s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func newFakeBackend(t *testing.T, srv *httptest.Server, bucket string) *Backend {
	t.Helper()
	backend, err := New(Config{
		Bucket:          bucket,
		Endpoint:        srv.URL,
		UsePathStyle:    true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		MaxAttempts:     1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func readAll(t *testing.T, b *Backend, key string, opts ...flatbridge.ReaderOption) string {
	t.Helper()
	r, err := b.NewReader(context.Background(), key, opts...)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestObjectsPathStyle(t *testing.T) {
	objects := map[string]string{
		"global_crypto/trades_v1/2024/03/2024-03-01.csv.gz":     "aaa",
		"global_crypto/trades_v1/2024/03/2024-03-02.csv.gz":     "bbbb",
		"global_crypto/trades_v1_old/2024/03/2024-03-03.csv.gz": "dd",
		"us_stocks_sip/trades_v1/2024/03/2024-03-01.csv.gz":     "c",
	}
	keys := []string{
		"global_crypto/trades_v1/2024/03/2024-03-01.csv.gz",
		"global_crypto/trades_v1/2024/03/2024-03-02.csv.gz",
		"global_crypto/trades_v1_old/2024/03/2024-03-03.csv.gz",
		"us_stocks_sip/trades_v1/2024/03/2024-03-01.csv.gz",
	}
	srv := fakeFlatFiles(t, "flatfiles", objects, keys)
	defer srv.Close()

	backend := newFakeBackend(t, srv, "flatfiles")

	var got []flatbridge.ObjectInfo
	for info, err := range flatbridge.Objects(context.Background(), backend, "global_crypto/trades_v1") {
		require.NoError(t, err)
		got = append(got, info)
	}

	require.Len(t, got, 2)
	assert.Equal(t, keys[0], got[0].Path())
	assert.Equal(t, int64(4), got[1].Size())
	assert.False(t, got[1].ModTime().IsZero())
}

func TestNewReaderAndExists(t *testing.T) {
	objects := map[string]string{"day/2024-03-01.csv.gz": "payload"}
	srv := fakeFlatFiles(t, "flatfiles", objects, []string{"day/2024-03-01.csv.gz"})
	defer srv.Close()

	backend := newFakeBackend(t, srv, "flatfiles")
	ctx := context.Background()

	assert.Equal(t, "payload", readAll(t, backend, "day/2024-03-01.csv.gz"))

	exists, err := backend.Exists(ctx, "day/2024-03-01.csv.gz")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = backend.Exists(ctx, "day/2024-03-09.csv.gz")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = backend.NewReader(ctx, "day/2024-03-09.csv.gz")
	assert.ErrorIs(t, err, flatbridge.ErrNotFound)
}

func TestNewReaderRange(t *testing.T) {
	objects := map[string]string{"day/2024-03-01.csv.gz": "hello world"}
	srv := fakeFlatFiles(t, "flatfiles", objects, nil)
	defer srv.Close()

	backend := newFakeBackend(t, srv, "flatfiles")

	assert.Equal(t, "world", readAll(t, backend, "day/2024-03-01.csv.gz", flatbridge.WithOffset(6)))
	assert.Equal(t, "lo wo", readAll(t, backend, "day/2024-03-01.csv.gz", flatbridge.WithOffset(3), flatbridge.WithLimit(5)))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"valid", Config{Bucket: "flatfiles"}, nil},
		{"missing bucket", Config{}, ErrBucketRequired},
		{"key without secret", Config{Bucket: "b", AccessKeyID: "k"}, ErrIncompleteCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, DefaultBucket, config.Bucket)
	assert.Equal(t, DefaultEndpoint, config.Endpoint)
	assert.True(t, config.UsePathStyle)
	assert.Zero(t, config.Timeout)
	assert.EqualValues(t, 5*1024*1024, config.PartSize)
}

func TestConfigFromMap(t *testing.T) {
	config := ConfigFromMap(map[string]string{
		"bucket":            "other",
		"endpoint":          "http://localhost:9000",
		"prefix":            "raw",
		"access_key_id":     "AKID",
		"secret_access_key": "SECRET",
		"use_path_style":    "false",
		"timeout":           "90s",
		"max_attempts":      "4",
		"part_size":         "10485760",
		"concurrency":       "10",
	})

	assert.Equal(t, "other", config.Bucket)
	assert.Equal(t, "http://localhost:9000", config.Endpoint)
	assert.False(t, config.UsePathStyle)
	assert.InDelta(t, 90, config.Timeout.Seconds(), 0)
	assert.EqualValues(t, 4, config.MaxAttempts)
	assert.EqualValues(t, 10485760, config.PartSize)
	assert.EqualValues(t, 10, config.Concurrency)
}

func TestConfigFromMapKeepsDefaultsOnBadValues(t *testing.T) {
	config := ConfigFromMap(map[string]string{
		"bucket":         "",
		"use_path_style": "maybe",
		"timeout":        "soon",
		"part_size":      "-1",
		"concurrency":    "zero",
	})

	assert.Equal(t, DefaultBucket, config.Bucket)
	assert.True(t, config.UsePathStyle)
	assert.Zero(t, config.Timeout)
	assert.EqualValues(t, 5*1024*1024, config.PartSize)
	assert.EqualValues(t, 5, config.Concurrency)
}

func TestFullKeyAndRelPath(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "file.csv.gz", "file.csv.gz"},
		{"", "dir/", "dir/"},
		{"raw", "file.csv.gz", "raw/file.csv.gz"},
		{"raw/", "dir/file.csv.gz", "raw/dir/file.csv.gz"},
		{"raw", "dir/", "raw/dir/"},
	}

	for _, tt := range tests {
		b := &Backend{config: Config{Prefix: tt.prefix}}
		got := b.fullKey(tt.path)
		assert.Equal(t, tt.want, got, "prefix %q path %q", tt.prefix, tt.path)
		if !strings.HasSuffix(tt.path, "/") {
			assert.Equal(t, tt.path, b.relPath(got))
		}
	}
}

func TestCheckClosed(t *testing.T) {
	b := &Backend{}
	require.NoError(t, b.checkClosed())

	_ = b.Close()

	assert.ErrorIs(t, b.checkClosed(), flatbridge.ErrBackendClosed)
	for _, err := range b.Objects(context.Background(), "") {
		assert.ErrorIs(t, err, flatbridge.ErrBackendClosed)
	}
}

func TestTranslateError(t *testing.T) {
	b := &Backend{config: Config{Bucket: "flatfiles"}}

	assert.NoError(t, b.translateError(nil, "k"))

	tests := []struct {
		code string
		want error
	}{
		{"NoSuchKey", flatbridge.ErrNotFound},
		{"NotFound", flatbridge.ErrNotFound},
		{"AccessDenied", flatbridge.ErrPermissionDenied},
		{"SignatureDoesNotMatch", flatbridge.ErrPermissionDenied},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, b.translateError(&smithy.GenericAPIError{Code: tt.code}, "k"), tt.want, tt.code)
	}

	other := errors.New("connection reset")
	assert.ErrorIs(t, b.translateError(other, "k"), other)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrBucketRequired)
}

func TestRegistered(t *testing.T) {
	assert.True(t, flatbridge.IsRegistered("s3"))
}
