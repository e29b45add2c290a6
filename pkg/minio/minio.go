package minio

import (
	"bytes"
	"context"
	"sync"

	"cesworld/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient))

// ObjectStore keeps raw uploads, such as bulk import CSVs, for later audit.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
}

type store struct {
	client  *minio.Client
	mu      sync.Mutex
	buckets map[string]bool
}

type noopStore struct{}

func (noopStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	return nil
}

func registerClient(c *config.Config) (ObjectStore, error) {
	if c.Minio.Endpoint == "" {
		zap.L().Info("MinIO endpoint not set, object archive disabled")
		return noopStore{}, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.Error(err))
		return nil, err
	}

	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint))
	return &store{client: client, buckets: map[string]bool{}}, nil
}

func (s *store) ensureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets[bucket] {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
		zap.L().Info("created MinIO bucket", zap.String("bucket", bucket))
	}

	s.buckets[bucket] = true
	return nil
}

func (s *store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	if err := s.ensureBucket(ctx, bucket); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
