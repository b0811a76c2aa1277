package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"trackvault/config"
	"trackvault/logger"

	"github.com/minio/minio-go/v7"
)

// CoverStore saves album cover images. Covers are small side artifacts, so
// unlike track audio the write is retried a fixed number of times.
type CoverStore struct {
	bucket   string
	attempts int
	backoff  time.Duration
	put      func(ctx context.Context, bucket, object string, r io.Reader, size int64, contentType string) error
}

// NewCoverStore returns a store writing to the configured MinIO bucket.
func NewCoverStore(cfg *config.Config) *CoverStore {
	return &CoverStore{
		bucket:   cfg.MinioBucket,
		attempts: config.CoverMaxAttempts,
		backoff:  config.CoverRetryBackoff,
		put: func(ctx context.Context, bucket, object string, r io.Reader, size int64, contentType string) error {
			client := GetMinioClient()
			if client == nil {
				return fmt.Errorf("MinIO client not available")
			}
			_, err := client.PutObject(ctx, bucket, object, r, size, minio.PutObjectOptions{ContentType: contentType})
			return err
		},
	}
}

// PutCover stores the cover bytes under covers/<name> and returns the serve
// path. Retries up to the configured attempt count with a fixed backoff.
func (s *CoverStore) PutCover(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	object := "covers/" + name

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err := s.put(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)), contentType)
		if err == nil {
			return "/static/" + object, nil
		}
		lastErr = err
		logger.Warn("Cover upload attempt failed",
			logger.String("object", object),
			logger.Int("attempt", attempt),
			logger.ErrorField(err),
		)
		if attempt < s.attempts {
			select {
			case <-time.After(s.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	return "", fmt.Errorf("cover upload failed after %d attempts: %w", s.attempts, lastErr)
}
