package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"contractflow/internal/config"
)

// ErrNotFound is returned when a reference points at missing content.
var ErrNotFound = errors.New("blob not found")

// ErrNoURL is returned by backends that cannot hand out fetchable URLs.
var ErrNoURL = errors.New("blob backend does not serve URLs")

// Store saves and retrieves document content.
type Store interface {
	// Put stores content under object and returns its reference.
	Put(ctx context.Context, object string, r io.Reader, size int64, contentType string) (string, error)
	// Open streams the content behind ref.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// URL returns a time-limited URL an external service can fetch ref from.
	URL(ctx context.Context, ref string) (string, error)
}

// New builds the backend selected by cfg.Storage.Backend.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageMinio:
		s, err := NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageFilesystem, "":
		return NewFilesystemStore(cfg.Storage.BlobDir, cfg.Storage.MinioBucket)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// FormatRef joins bucket and object into a reference.
func FormatRef(bucket, object string) string {
	return bucket + "/" + object
}

// ParseRef splits a reference into bucket and object, rejecting empty parts
// and path traversal.
func ParseRef(ref string) (bucket, object string, err error) {
	bucket, object, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid blob ref %q: want bucket/object", ref)
	}
	if err := checkObjectName(object); err != nil {
		return "", "", fmt.Errorf("invalid blob ref %q: %w", ref, err)
	}
	return bucket, object, nil
}

// ObjectName builds the object key for an uploaded file.
func ObjectName(contractID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		base = "document"
	}
	return contractID + "/" + base
}

func checkObjectName(object string) error {
	if strings.HasPrefix(object, "/") {
		return errors.New("absolute object name")
	}
	for _, part := range strings.Split(object, "/") {
		if part == ".." || part == "." || part == "" {
			return errors.New("object name must not contain empty, . or .. segments")
		}
	}
	return nil
}
