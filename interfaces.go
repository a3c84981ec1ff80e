// Package flatbridge republishes daily compressed flat files from one object
// store to another as Zstd-compressed Parquet, skipping dates that are
// already published.
//
// The root package holds the storage abstraction shared by every store the
// pipeline talks to: the Input store it reads flat files from, the Output
// store it reconciles against and publishes to, and the local staging
// directory.
//
// Basic usage:
//
//	input, _ := flatbridge.Open("s3", map[string]string{"bucket": "flatfiles"})
//	for info, err := range flatbridge.Objects(ctx, input, "global_crypto/trades_v1") {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(info.Path())
//	}
package flatbridge

import (
	"context"
	"io"
	"iter"
)

// Backend represents an object store (S3, GCS, SFTP, local directory, memory).
// Implementations handle raw byte transport to and from storage.
//
// Backends are safe for concurrent use by multiple goroutines.
// All methods accept a context.Context for cancellation.
type Backend interface {
	// NewWriter creates a writer for the given key.
	// The object becomes visible when the returned writer is closed
	// without error.
	NewWriter(ctx context.Context, path string, opts ...WriterOption) (io.WriteCloser, error)

	// NewReader creates a reader for the given key.
	// Returns ErrNotFound if the key does not exist.
	// The returned reader must be closed after use.
	NewReader(ctx context.Context, path string, opts ...ReaderOption) (io.ReadCloser, error)

	// Exists checks if a key exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes a key.
	// Returns nil if the key does not exist.
	Delete(ctx context.Context, path string) error

	// List lists keys with the given prefix, relative to the backend root.
	// Returns an empty slice if nothing matches.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	// After Close, all other methods return ErrBackendClosed.
	Close() error
}

// ObjectLister is implemented by backends that can stream a listing page by
// page instead of materialising every key up front.
type ObjectLister interface {
	// Objects yields every object under prefix in the store's listing
	// order. Iteration stops at the first error, which is yielded with a
	// nil ObjectInfo.
	Objects(ctx context.Context, prefix string) iter.Seq2[ObjectInfo, error]
}

// RecordWriter writes framed records to an underlying writer.
type RecordWriter interface {
	// Write writes a single record without its delimiter.
	Write(data []byte) error

	// Flush flushes any buffered data to the underlying writer.
	Flush() error

	// Close flushes any remaining data and closes the writer.
	Close() error
}

// RecordReader reads framed records from an underlying reader.
type RecordReader interface {
	// Read reads the next record.
	// Returns io.EOF when no more records are available.
	// The returned slice is valid until the next call to Read.
	Read() ([]byte, error)

	// Close releases any resources held by the reader.
	Close() error
}
