package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/driveclone/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// ObjectURL is the backend's own address for an object.
	ObjectURL(key string) string
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend       ObjectStorage
	publicBaseURL string
}

// NewStorage constructs a Storage wrapper for the provided backend. When
// publicBaseURL is set, public links are built from it instead of the
// backend address, e.g. for a CDN or a Supabase public bucket path.
func NewStorage(backend ObjectStorage, publicBaseURL string) *Storage {
	return &Storage{
		backend:       backend,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

// New builds the backend selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Driver {
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case "s3":
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s storage: %w", cfg.Driver, err)
	}
	return NewStorage(backend, cfg.PublicBaseURL), nil
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// PublicURL returns the address clients use to fetch the object.
func (s *Storage) PublicURL(key string) string {
	if s.publicBaseURL == "" {
		return s.backend.ObjectURL(key)
	}
	return s.publicBaseURL + "/" + escapeKey(key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// escapeKey escapes each path segment of an object key.
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func joinURL(base *url.URL, parts ...string) string {
	u := *base
	u.Path = strings.TrimRight(u.Path, "/")
	for _, part := range parts {
		u.Path += "/" + part
	}
	u.RawPath = ""
	return u.String()
}
