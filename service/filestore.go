package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gocloud.dev/blob"
)

// PDFContentType is the MIME type every stored proof is served with
const PDFContentType = "application/pdf"

// FileStore keeps uploaded proofs in a namespace per token
type FileStore interface {
	// Store writes body under name in the token's namespace, replacing any previous file
	Store(ctx context.Context, token, name string, body io.Reader, size int64) error
	// Open returns a seekable reader and modification time, or ErrNotFound
	Open(ctx context.Context, token, name string) (io.ReadSeekCloser, time.Time, error)
	// Delete removes a stored file. Deleting a missing file is not an error.
	Delete(ctx context.Context, token, name string) error
}

// LocalFileStore keeps each token's files in its own directory under root,
// as <root>/<token>/<name>
type LocalFileStore struct {
	bucket *blob.Bucket
	root   string
}

// NewLocalFileStore creates the upload root if needed
func NewLocalFileStore(root string) (*LocalFileStore, error) {
	bucket, abs, err := openLocalBucket(root)
	if err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	slog.Info("local file store initialized", "dir", abs)
	return &LocalFileStore{bucket: bucket, root: abs}, nil
}

// key maps token and name to an object key, refusing anything that is not a
// single safe component under a well-formed token
func (s *LocalFileStore) key(token, name string) (string, error) {
	if !ValidToken(token) || !ValidName(name) {
		return "", ErrNotFound
	}
	return objectName(token, name), nil
}

func (s *LocalFileStore) Store(ctx context.Context, token, name string, body io.Reader, size int64) error {
	key, err := s.key(token, name)
	if err != nil {
		return fmt.Errorf("store %s/%s: invalid token or name", token, name)
	}
	return writeBlob(ctx, s.bucket, key, PDFContentType, body)
}

func (s *LocalFileStore) Open(ctx context.Context, token, name string) (io.ReadSeekCloser, time.Time, error) {
	key, err := s.key(token, name)
	if err != nil {
		return nil, time.Time{}, err
	}

	r, err := s.bucket.NewReader(ctx, key, nil)
	if isBlobNotFound(err) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("open file: %w", err)
	}
	return r, r.ModTime(), nil
}

func (s *LocalFileStore) Delete(ctx context.Context, token, name string) error {
	key, err := s.key(token, name)
	if err != nil {
		return nil
	}
	if err := s.bucket.Delete(ctx, key); err != nil && !isBlobNotFound(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Close releases the underlying bucket
func (s *LocalFileStore) Close() error {
	return s.bucket.Close()
}
