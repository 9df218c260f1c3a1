package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/reelhub/review-api/pkg/config"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("storage: object not found")

// MediaStore reads and removes submitted media in an S3-compatible bucket.
type MediaStore struct {
	client     *minio.Client
	bucket     string
	region     string
	presignTTL time.Duration
}

// NewMediaStore builds a MinIO backed media store.
func NewMediaStore(cfg config.MediaConfig) (*MediaStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: media bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MediaStore{client: client, bucket: cfg.Bucket, region: cfg.Region, presignTTL: ttl}, nil
}

// EnsureBucket creates the media bucket when it does not exist yet.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PresignGet returns a time-limited download URL for key.
func (s *MediaStore) PresignGet(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrObjectNotFound
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Stat verifies that key exists.
func (s *MediaStore) Stat(ctx context.Context, key string) error {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return normalize(key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing object is not an error.
func (s *MediaStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(normalize(key, err), ErrObjectNotFound) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func normalize(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return fmt.Errorf("stat %s: %w", key, err)
}
