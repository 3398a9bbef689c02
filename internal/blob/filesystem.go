package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemStore keeps objects under root/bucket/object.
type FilesystemStore struct {
	root   string
	bucket string
}

// NewFilesystemStore creates the bucket directory under root.
func NewFilesystemStore(root, bucket string) (*FilesystemStore, error) {
	if root == "" || bucket == "" {
		return nil, errors.New("filesystem blob store requires root and bucket")
	}
	if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
		return nil, fmt.Errorf("create blob bucket dir: %w", err)
	}
	return &FilesystemStore{root: root, bucket: bucket}, nil
}

// Put writes content through a temp file and renames it into place.
func (s *FilesystemStore) Put(ctx context.Context, object string, r io.Reader, _ int64, _ string) (string, error) {
	if err := checkObjectName(object); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.root, s.bucket, filepath.FromSlash(object))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close object: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("commit object: %w", err)
	}
	return FormatRef(s.bucket, object), nil
}

// Open returns a reader over the object behind ref.
func (s *FilesystemStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	bucket, object, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, bucket, filepath.FromSlash(object)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// URL is unsupported for local files.
func (s *FilesystemStore) URL(context.Context, string) (string, error) {
	return "", ErrNoURL
}
