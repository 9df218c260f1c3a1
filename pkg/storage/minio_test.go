package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"

	"github.com/reelhub/review-api/pkg/config"
)

func TestNormalizeMapsMissingObjects(t *testing.T) {
	err := normalize("videos/a.mp4", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404})
	require.ErrorIs(t, err, ErrObjectNotFound)

	err = normalize("videos/a.mp4", errors.New("connection refused"))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrObjectNotFound))
}

func TestNewMediaStoreRequiresBucket(t *testing.T) {
	_, err := NewMediaStore(config.MediaConfig{Endpoint: "localhost:9000"})
	require.Error(t, err)
}

func TestPresignGetSignsLocally(t *testing.T) {
	store, err := NewMediaStore(config.MediaConfig{
		Endpoint:   "localhost:9000",
		AccessKey:  "minio",
		SecretKey:  "minio-secret",
		Bucket:     "submissions",
		Region:     "us-east-1",
		PresignTTL: 15 * time.Minute,
	})
	require.NoError(t, err)

	link, err := store.PresignGet(context.Background(), "videos/a.mp4")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "http://localhost:9000/submissions/videos/a.mp4?"))
	require.Contains(t, link, "X-Amz-Expires=900")

	_, err = store.PresignGet(context.Background(), "")
	require.ErrorIs(t, err, ErrObjectNotFound)
}
