package blob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StorageError reports a failed blob operation. Fatal to the enclosing job.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Store moves bytes between local scratch space and the blob backend and
// mints time-limited URLs for clients.
type Store interface {
	Fetch(ctx context.Context, key string) (localPath string, err error)
	Store(ctx context.Context, localPath, key, contentType string) error
	Stat(ctx context.Context, key string) (size int64, err error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (*url.URL, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (*url.URL, error)
}

type Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	ScratchDir string
}

// S3Store talks to any S3-compatible backend.
type S3Store struct {
	client  *minio.Client
	bucket  string
	scratch string
}

func NewS3Store(cfg Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	scratch := cfg.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, scratch: scratch}, nil
}

// Fetch streams the full object into a scratch file and returns its path.
func (s *S3Store) Fetch(ctx context.Context, key string) (string, error) {
	localPath := filepath.Join(s.scratch, strings.ReplaceAll(key, "/", "_"))
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return "", &StorageError{Op: "fetch", Key: key, Err: err}
	}
	return localPath, nil
}

// Store uploads a local file under the given key, overwriting any previous
// object.
func (s *S3Store) Store(ctx context.Context, localPath, key, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return &StorageError{Op: "store", Key: key, Err: err}
	}
	return nil
}

// Stat returns the size of a stored object. Used to verify direct-PUT
// uploads before a job is registered against them.
func (s *S3Store) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, &StorageError{Op: "stat", Key: key, Err: err}
	}
	return info.Size, nil
}

// PresignGet mints a time-limited download URL.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (*url.URL, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return nil, &StorageError{Op: "presign-get", Key: key, Err: err}
	}
	return u, nil
}

// PresignPut mints a time-limited direct-upload URL bound to the given
// content type.
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (*url.URL, error) {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	u, err := s.client.PresignHeader(ctx, http.MethodPut, s.bucket, key, ttl, url.Values{}, headers)
	if err != nil {
		return nil, &StorageError{Op: "presign-put", Key: key, Err: err}
	}
	return u, nil
}

var _ Store = (*S3Store)(nil)
