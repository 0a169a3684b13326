package blobstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnsupported is returned by operations an adapter cannot perform, such
// as PresignGet on an HTTP-backed store.
var ErrUnsupported = errors.New("blobstore: operation unsupported by this backend")

// DefaultPresignTTL is the presigned-URL lifetime used when a caller
// does not configure one.
const DefaultPresignTTL = 5 * 24 * time.Hour

// Entry describes one object or logical folder returned by List.
type Entry struct {
	Path     string
	IsFolder bool
}

// Store is the narrow interface every component uses to reach blob
// storage, implementable by S3, R2, or a plain HTTP sink.
type Store interface {
	// Put uploads bytes to path with the given content type.
	Put(ctx context.Context, path string, data []byte, contentType string) error

	// Get retrieves the bytes stored at path.
	Get(ctx context.Context, path string) ([]byte, error)

	// List returns every object under prefix, recursively; folders are
	// logical, derived from key structure rather than stored separately.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Delete removes a single object.
	Delete(ctx context.Context, path string) error

	// DeleteAllIn recursively deletes every object under prefix, files
	// before their containing folder.
	DeleteAllIn(ctx context.Context, prefix string) error

	// PresignGet returns a time-limited URL granting direct GET access to
	// path. Returns ErrUnsupported on backends that cannot presign (HTTP).
	PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// NormalizePath strips a leading slash so callers may pass either form.
func NormalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}

// foldersUnder derives the set of logical folder paths implied by a list
// of object keys under prefix, the way S3-style stores have no real
// directories.
func foldersUnder(prefix string, keys []string) map[string]bool {
	folders := make(map[string]bool)
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		if len(parts) <= 1 {
			continue
		}
		acc := strings.TrimSuffix(prefix, "/")
		for _, p := range parts[:len(parts)-1] {
			if acc != "" {
				acc += "/"
			}
			acc += p
			folders[acc] = true
		}
	}
	return folders
}
