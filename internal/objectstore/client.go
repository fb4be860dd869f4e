// Package objectstore wraps an S3-compatible bucket behind a small interface
// so sync components can be tested against a fake instead of a live
// endpoint. The concrete implementation wraps minio-go, with endpoint-style
// and region heuristics for self-hosted deployments (MinIO, R2, Aliyun OSS).
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sethvargo/go-retry"
)

// ErrNotConfigured is returned by operations attempted before a device's
// bucket credentials have been set via sync_config.
var ErrNotConfigured = errors.New("object store not configured")

// ErrNotFound is returned when a requested object key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectSummary describes one listed object.
type ObjectSummary struct {
	Key          string
	LastModified time.Time
}

// Client is the set of bucket operations the sync engine needs. The real
// implementation is backed by minio-go; tests substitute an in-memory fake.
type Client interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectSummary, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	TestConnection(ctx context.Context) error
}

// Config carries the per-device bucket connection settings read from
// sync_config.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	// Region overrides the inferred region when non-empty.
	Region string
	// MaxRetries bounds the exponential backoff retry wrapper applied to
	// every operation. Zero disables retrying.
	MaxRetries uint64
}

// minioAPI is the subset of *minio.Client used by s3Client, narrowed so it
// can be faked in tests without a live endpoint.
type minioAPI interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// s3Client is the real Client implementation, backed by minioAPI and
// wrapped with bounded exponential backoff for transient failures.
type s3Client struct {
	api        minioAPI
	bucket     string
	maxRetries uint64
}

// NewClient builds a Client from Config, applying the endpoint-style and
// region inference heuristics before constructing the underlying minio
// client.
func NewClient(cfg Config) (Client, error) {
	if cfg.Bucket == "" || cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	region := cfg.Region
	if region == "" {
		region = inferRegionFromEndpoint(cfg.Endpoint)
	}

	client, err := minio.New(hostPort(cfg.Endpoint), &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       endpointIsSecure(cfg.Endpoint),
		Region:       region,
		BucketLookup: lookupStyle(shouldForcePathStyle(cfg.Endpoint)),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	return &s3Client{api: client, bucket: cfg.Bucket, maxRetries: cfg.MaxRetries}, nil
}

func lookupStyle(forcePathStyle bool) minio.BucketLookupType {
	if forcePathStyle {
		return minio.BucketLookupPath
	}
	return minio.BucketLookupAuto
}

func (c *s3Client) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(100 * time.Millisecond)
	if c.maxRetries > 0 {
		backoff = retry.WithMaxRetries(c.maxRetries, backoff)
	}

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("object store %s: %w", op, err)
	}
	return nil
}

func isRetryable(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return false
	}
	return true
}

func (c *s3Client) Upload(ctx context.Context, key string, data []byte) error {
	return c.withRetry(ctx, "upload", func(ctx context.Context) error {
		_, err := c.api.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		return err
	})
}

func (c *s3Client) Download(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := c.withRetry(ctx, "download", func(ctx context.Context) error {
		obj, err := c.api.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		defer obj.Close()

		body, err := io.ReadAll(obj)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (c *s3Client) List(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	var out []ObjectSummary
	err := c.withRetry(ctx, "list", func(ctx context.Context) error {
		out = out[:0]
		for obj := range c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				return obj.Err
			}
			out = append(out, ObjectSummary{Key: obj.Key, LastModified: obj.LastModified})
		}
		return nil
	})
	return out, err
}

func (c *s3Client) Delete(ctx context.Context, key string) error {
	return c.withRetry(ctx, "delete", func(ctx context.Context) error {
		return c.api.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{})
	})
}

func (c *s3Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.api.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, err
}

func (c *s3Client) TestConnection(ctx context.Context) error {
	return c.withRetry(ctx, "test connection", func(ctx context.Context) error {
		for obj := range c.api.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{MaxKeys: 1}) {
			if obj.Err != nil {
				return obj.Err
			}
		}
		return nil
	})
}
