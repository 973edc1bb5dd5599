package core

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"strings"
)

// Digest is the hex-encoded content fingerprint of a file.
//
// It is a change detector, not a security control: MD5 keeps digests
// comparable with the `md5sum` output that older run-directories hold.
type Digest string

// String returns the string representation of the Digest.
func (d Digest) String() string {
	return string(d)
}

// IsZero reports whether no digest was computed.
func (d Digest) IsZero() bool {
	return d == ""
}

// ParseDigest reads a digest as persisted in a provenance record.
//
// Records written by `md5sum` carry a trailing "  <path>" column; only the
// first field is significant.
func ParseDigest(raw string) Digest {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return Digest(strings.ToLower(fields[0]))
}

// Hasher computes content fingerprints.
//
// The fingerprint is:
//   - Deterministic: identical bytes always produce the identical Digest
//   - Content-based: file metadata (mtime, mode) never contributes
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Fingerprint streams the file at path through MD5.
//
// Fails with an IOError if the file is missing or unreadable.
func (h *Hasher) Fingerprint(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Op: "fingerprint", Path: path, Err: err}
	}
	defer f.Close()

	sum := md5.New()
	if _, err := io.Copy(sum, f); err != nil {
		return "", &IOError{Op: "fingerprint", Path: path, Err: err}
	}
	return Digest(hex.EncodeToString(sum.Sum(nil))), nil
}

// FingerprintBytes returns the Digest of an in-memory buffer.
func (h *Hasher) FingerprintBytes(data []byte) Digest {
	sum := md5.Sum(data)
	return Digest(hex.EncodeToString(sum[:]))
}
