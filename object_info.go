package flatbridge

import "time"

// ObjectInfo describes a listed object.
type ObjectInfo interface {
	// Path returns the object's key relative to the backend root.
	Path() string

	// Size returns the object's size in bytes, or -1 if unknown.
	Size() int64

	// ModTime returns the object's last modification time, or the zero
	// time if unknown.
	ModTime() time.Time
}

// BasicObjectInfo is a simple implementation of ObjectInfo used by the
// backends.
type BasicObjectInfo struct {
	ObjectPath    string
	ObjectSize    int64
	ObjectModTime time.Time
}

// Path returns the object's key.
func (o *BasicObjectInfo) Path() string {
	return o.ObjectPath
}

// Size returns the object's size in bytes.
func (o *BasicObjectInfo) Size() int64 {
	return o.ObjectSize
}

// ModTime returns the object's last modification time.
func (o *BasicObjectInfo) ModTime() time.Time {
	return o.ObjectModTime
}

var _ ObjectInfo = (*BasicObjectInfo)(nil)
