package attach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore is the subset of an object store client attachments need.
// Implementations report absent objects as ErrMissingSource.
type ObjectStore interface {
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put must not replace an existing object when the store can enforce it,
	// reporting ErrStorageConflict instead.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
	// URL is the public address of the object.
	URL(bucket, key string) *url.URL
}

// ObjectSource is a payload in an object store, addressed as
// <scheme>:/<bucket>/<key> or <scheme>://<bucket>/<key>.
type ObjectSource struct {
	state
	store  ObjectStore
	uri    *url.URL
	bucket string
	key    string
}

func splitObjectURI(uri *url.URL) (bucket, key string, err error) {
	p := uri.Path
	if p == "" {
		p = uri.Opaque
	}
	p = strings.TrimPrefix(p, "/")
	if uri.Host != "" {
		bucket, key = uri.Host, p
	} else if i := strings.IndexByte(p, '/'); i > 0 {
		bucket, key = p[:i], p[i+1:]
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: object uri needs bucket and key: %s", ErrInvalidSource, uri)
	}
	return bucket, key, nil
}

func (r *Registry) objectStore(scheme string) (ObjectStore, error) {
	store, ok := r.objects[scheme]
	if !ok || store == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotConfigured, scheme)
	}
	return store, nil
}

func (r *Registry) newObject(uri *url.URL, md Metadata) (*ObjectSource, error) {
	store, err := r.objectStore(uri.Scheme)
	if err != nil {
		return nil, err
	}
	bucket, key, err := splitObjectURI(uri)
	if err != nil {
		return nil, err
	}
	return &ObjectSource{state: newState(r, md), store: store, uri: uri, bucket: bucket, key: key}, nil
}

// reloadObject does not contact the store; problems surface through Valid and Err.
func (r *Registry) reloadObject(_ context.Context, uri *url.URL, md Metadata) (Source, error) {
	s, err := r.newObject(uri, md)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) storeObject(ctx context.Context, src Source, uri *url.URL) (Source, error) {
	s, err := r.newObject(uri, Metadata{})
	if err != nil {
		return nil, err
	}
	data, md, err := snapshot(ctx, src)
	if err != nil {
		return nil, err
	}

	_, err = s.store.Stat(ctx, s.bucket, s.key)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: object %s exists", ErrStorageConflict, uri)
	case !errors.Is(err, ErrMissingSource):
		return nil, fmt.Errorf("failed to check %s: %w", uri, err)
	}
	if err := s.store.Put(ctx, s.bucket, s.key, data, md.MimeType()); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", uri, err)
	}

	s.primer = md
	s.checked = true
	return s, nil
}

func (s *ObjectSource) Valid(ctx context.Context) bool {
	return s.validate(ctx, func(ctx context.Context) error {
		if _, err := s.store.Stat(ctx, s.bucket, s.key); err != nil {
			if errors.Is(err, ErrMissingSource) {
				return err
			}
			return missing("object "+s.uri.String(), err)
		}
		return nil
	})
}

func (s *ObjectSource) Persistent() bool    { return true }
func (s *ObjectSource) ReadOnly() bool      { return s.frozen }
func (s *ObjectSource) URI() *url.URL       { return s.uri }
func (s *ObjectSource) PublicURI() *url.URL { return s.store.URL(s.bucket, s.key) }

func (s *ObjectSource) Metadata(ctx context.Context) (Metadata, error) {
	return s.assemble(ctx, s.supplied, s.Blob)
}

// supplied takes the filename from the key and the remaining attributes
// from the store. An unreachable object contributes nothing here.
func (s *ObjectSource) supplied(ctx context.Context) (Metadata, error) {
	var md Metadata
	md.Set(KeyFilename, path.Base(s.key))
	info, err := s.store.Stat(ctx, s.bucket, s.key)
	if err != nil {
		return md, nil
	}
	if info.ContentType != "" && info.ContentType != "binary/octet-stream" {
		md.Set(KeyMimeType, s.reg.mimes.Canonical(info.ContentType))
	}
	md.Set(KeySize, info.Size)
	if !info.LastModified.IsZero() {
		md.Set(KeyLastModified, info.LastModified.UTC())
	}
	return md, nil
}

func (s *ObjectSource) Blob(ctx context.Context) ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	data, err := s.store.Get(ctx, s.bucket, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.uri, err)
	}
	return data, nil
}

func (s *ObjectSource) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return nil, err
	}
	return readerOf(data), nil
}

func (s *ObjectSource) Tempfile(ctx context.Context) (string, error) {
	data, err := s.Blob(ctx)
	if err != nil {
		return "", err
	}
	return s.reg.writeTemp(tempName(s.primer, path.Base(s.key)), bytes.NewReader(data))
}

func (s *ObjectSource) Destroy(ctx context.Context) error {
	if s.frozen {
		return nil
	}
	if err := s.store.Delete(ctx, s.bucket, s.key); err != nil {
		return s.settle(fmt.Errorf("failed to delete %s: %w", s.uri, err))
	}
	return s.settle(nil)
}
