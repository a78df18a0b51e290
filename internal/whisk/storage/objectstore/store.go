// Package objectstore keeps whisker tables in an S3-compatible bucket
// through the MinIO client. Objects are whiskbin1 encoded.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/banshee-data/whisker.trace/internal/whisk/l4segments"
	"github.com/banshee-data/whisker.trace/internal/whisk/storage"
)

const contentType = "application/x-whiskbin1"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	// Region skips bucket location lookups when set.
	Region string
}

// Store implements storage.Store. Paths have the form "bucket/key".
type Store struct {
	client *miniogo.Client
}

var _ storage.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{client: client}, nil
}

// SplitPath splits "bucket/key" into its parts.
func SplitPath(path string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("object path %q is not bucket/key", path)
	}
	return bucket, key, nil
}

// EnsureBucket creates bucket if it does not exist.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	switch miniogo.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

// Load downloads and decodes the object at path.
func (s *Store) Load(ctx context.Context, path string) (l4segments.Table, error) {
	bucket, key, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	defer obj.Close()

	if _, err := obj.Stat(); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat object %s: %w", path, err)
	}
	t, _, err := storage.Decode(obj)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return t, nil
}

// Save encodes t and uploads it to path.
func (s *Store) Save(ctx context.Context, path string, t l4segments.Table) error {
	bucket, key, err := SplitPath(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := storage.Encode(&buf, t, storage.FormatBinary); err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, bucket, key, &buf, int64(buf.Len()), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}
