package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinIOStorage writes objects to one bucket, creating it on first upload.
type MinIOStorage struct {
	client *minio.Client
	cfg    MinIOConfig
	logger *zap.Logger

	mu           sync.Mutex
	bucketExists bool
}

func NewMinIOStorage(cfg MinIOConfig, logger *zap.Logger) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStorage{client: client, cfg: cfg, logger: logger}, nil
}

func (s *MinIOStorage) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bucketExists {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.cfg.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			// lost a race with another process
			if again, checkErr := s.client.BucketExists(ctx, s.cfg.Bucket); checkErr != nil || !again {
				return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
			}
		} else {
			s.logger.Info("Bucket created", zap.String("bucket", s.cfg.Bucket))
		}
	}

	s.bucketExists = true
	return nil
}

func (s *MinIOStorage) Put(ctx context.Context, objectName, contentType string, r io.Reader, size int64) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %w", ErrUpload, objectName, err)
	}
	return s.URL(objectName), nil
}

func (s *MinIOStorage) Remove(ctx context.Context, objectName string) error {
	return s.client.RemoveObject(ctx, s.cfg.Bucket, objectName, minio.RemoveObjectOptions{})
}

// URL is the public address of an object: scheme://endpoint/bucket/object.
func (s *MinIOStorage) URL(objectName string) string {
	return objectURL(s.cfg.Endpoint, s.cfg.Bucket, objectName, s.cfg.Secure)
}

func objectURL(endpoint, bucket, objectName string, secure bool) string {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, endpoint, bucket, objectName)
}
