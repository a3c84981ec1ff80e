package flatbridge

import (
	"crypto/md5" //nolint:gosec // MD5 is the object-store content checksum, not a security primitive
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"io"
)

// HashType names a content checksum algorithm.
type HashType string

const (
	// HashMD5 is the checksum S3 and GCS report for single-part uploads.
	HashMD5 HashType = "md5"

	// HashSHA256 is used for artifact fingerprints in run reports.
	HashSHA256 HashType = "sha256"
)

// NewHash creates a hash.Hash for the given type, or nil if unsupported.
func NewHash(t HashType) hash.Hash {
	switch t {
	case HashMD5:
		return md5.New() //nolint:gosec // content checksum
	case HashSHA256:
		return sha256.New()
	default:
		return nil
	}
}

// HashBytes returns the hex-encoded checksum of data, or "" if t is unsupported.
func HashBytes(data []byte, t HashType) string {
	h := NewHash(t)
	if h == nil {
		return ""
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// HashReader returns the hex-encoded checksum of everything read from r.
func HashReader(r io.Reader, t HashType) (string, error) {
	h := NewHash(t)
	if h == nil {
		return "", ErrNotSupported
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ContentMD5 returns the base64-encoded MD5 digest of data, the form
// expected by the Content-MD5 header.
func ContentMD5(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // content checksum
	return base64.StdEncoding.EncodeToString(sum[:])
}
