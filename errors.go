package flatbridge

import "errors"

// Common errors returned by flatbridge backends.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("flatbridge: not found")

	// ErrPermissionDenied is returned when access to a key is denied.
	ErrPermissionDenied = errors.New("flatbridge: permission denied")

	// ErrBackendClosed is returned when operating on a closed backend.
	ErrBackendClosed = errors.New("flatbridge: backend closed")

	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("flatbridge: writer closed")

	// ErrReaderClosed is returned when reading from a closed reader.
	ErrReaderClosed = errors.New("flatbridge: reader closed")

	// ErrInvalidPath is returned when a key is invalid (empty, or escapes the root).
	ErrInvalidPath = errors.New("flatbridge: invalid path")

	// ErrNotSupported is returned when an operation is not supported by the backend.
	ErrNotSupported = errors.New("flatbridge: operation not supported")

	// ErrUnknownBackend is returned by Open when the backend name is not registered.
	ErrUnknownBackend = errors.New("flatbridge: unknown backend")
)

// IsNotFound returns true if the error indicates a key was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsPermissionDenied returns true if the error indicates permission was denied.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
