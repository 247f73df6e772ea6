package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/higpup01-design/proofok/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioFileStore keeps proofs in an S3-compatible bucket under a "<token>/" prefix
type MinioFileStore struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioFileStore(cfg *config.MinioConfig) (*MinioFileStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioFileStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioFileStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.config.Region})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

func objectName(token, name string) string {
	return token + "/" + name
}

// Store uploads the proof as application/pdf
func (s *MinioFileStore) Store(ctx context.Context, token, name string, body io.Reader, size int64) error {
	if !ValidToken(token) || !ValidName(name) {
		return fmt.Errorf("store %s/%s: invalid token or name", token, name)
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectName(token, name), body, size, minio.PutObjectOptions{
		ContentType:        PDFContentType,
		ContentDisposition: "inline",
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}

	return nil
}

// Open returns the stored object. The first Stat performs the request, so a
// missing key surfaces here rather than on the first Read.
func (s *MinioFileStore) Open(ctx context.Context, token, name string) (io.ReadSeekCloser, time.Time, error) {
	if !ValidToken(token) || !ValidName(name) {
		return nil, time.Time{}, ErrNotFound
	}

	obj, err := s.client.GetObject(ctx, s.bucket, objectName(token, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, time.Time{}, mapMinioError(err)
	}

	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, time.Time{}, mapMinioError(err)
	}

	return obj, info.LastModified, nil
}

// Delete removes the object; S3 treats a missing key as success
func (s *MinioFileStore) Delete(ctx context.Context, token, name string) error {
	if !ValidToken(token) || !ValidName(name) {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, objectName(token, name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func mapMinioError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return ErrNotFound
	}
	return fmt.Errorf("failed to get file: %w", err)
}
