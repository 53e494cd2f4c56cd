package attach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSStore implements ObjectStore using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Endpoint string // Optional emulator endpoint; disables authentication
}

// NewGCSStore creates a new GCS-backed object store.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	// Create GCS client (uses ADC by default)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	attrs, err := s.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return ObjectInfo{}, wrapGCS("attrs", bucket, key, err)
	}
	return ObjectInfo{Size: attrs.Size, ContentType: attrs.ContentType, LastModified: attrs.Updated}, nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, wrapGCS("get", bucket, key, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

// Put writes under a DoesNotExist precondition, so an existing object is never replaced.
func (s *GCSStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	obj := s.client.Bucket(bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("%w: gcs object %s/%s exists", ErrStorageConflict, bucket, key)
		}
		return fmt.Errorf("gcs close failed: %w", err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return wrapGCS("delete", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) URL(bucket, key string) *url.URL {
	return (&url.URL{Scheme: "https", Host: "storage.googleapis.com"}).JoinPath(bucket, key)
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func wrapGCS(op, bucket, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return missing(fmt.Sprintf("gcs object %s/%s", bucket, key), err)
	}
	return fmt.Errorf("gcs %s failed for %s/%s: %w", op, bucket, key, err)
}
