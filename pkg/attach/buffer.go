package attach

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
)

// BufferSource is a transient payload: bytes held in memory or an upload
// spooled to a temp file. It has no identity until stored.
type BufferSource struct {
	state
	data []byte
	path string // set for uploads; data is then read on demand
}

func (r *Registry) newBuffer(data []byte, md Metadata) *BufferSource {
	return &BufferSource{state: newState(r, md), data: data}
}

func (r *Registry) newUpload(path string, md Metadata) *BufferSource {
	return &BufferSource{state: newState(r, md), path: path}
}

func (s *BufferSource) Valid(ctx context.Context) bool {
	return s.validate(ctx, func(context.Context) error {
		if s.path == "" {
			return nil
		}
		if _, err := os.Stat(s.path); err != nil {
			return missing("upload "+s.path, err)
		}
		return nil
	})
}

func (s *BufferSource) Persistent() bool    { return false }
func (s *BufferSource) ReadOnly() bool      { return s.frozen }
func (s *BufferSource) URI() *url.URL       { return nil }
func (s *BufferSource) PublicURI() *url.URL { return nil }

func (s *BufferSource) Metadata(ctx context.Context) (Metadata, error) {
	return s.assemble(ctx, s.supplied, s.Blob)
}

func (s *BufferSource) supplied(context.Context) (Metadata, error) {
	var md Metadata
	if s.path != "" {
		md.Set(KeyFilename, filepath.Base(s.path))
	}
	return md, nil
}

func (s *BufferSource) Blob(context.Context) ([]byte, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if s.path == "" {
		return bytes.Clone(s.data), nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing("upload "+s.path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func (s *BufferSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	if s.path == "" {
		return readerOf(s.data), nil
	}
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, missing("upload "+s.path, err)
	}
	return f, err
}

func (s *BufferSource) Tempfile(ctx context.Context) (string, error) {
	rc, err := s.Open(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return s.reg.writeTemp(tempName(s.primer, filepath.Base(s.path)), rc)
}

// Destroy drops the buffered bytes. An upload's temp file belongs to the web
// layer and is left in place.
func (s *BufferSource) Destroy(context.Context) error {
	if s.frozen {
		return nil
	}
	s.freeze()
	s.data = nil
	return nil
}
