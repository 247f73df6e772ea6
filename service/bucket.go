package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// openLocalBucket opens dir as a blob bucket, creating it if needed.
// Attribute sidecars are not written so the directory holds only the objects,
// and temp files are created beside their target so the final rename stays on
// one filesystem.
func openLocalBucket(dir string) (*blob.Bucket, string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", dir, err)
	}

	bucket, err := fileblob.OpenBucket(abs, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, "", fmt.Errorf("open bucket %s: %w", abs, err)
	}
	return bucket, abs, nil
}

func isBlobNotFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// writeBlob copies body to key, committing only when the copy completed
func writeBlob(ctx context.Context, bucket *blob.Bucket, key, contentType string, body io.Reader) error {
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := bucket.NewWriter(writeCtx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}
	if _, err := w.ReadFrom(body); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}
