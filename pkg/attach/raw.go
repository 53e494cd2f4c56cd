package attach

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
)

// Raw is external input Load can wrap: Bytes, Stream, Upload, File or Reference.
type Raw interface {
	load(ctx context.Context, r *Registry, md Metadata) (Source, error)
	kind() string
}

// Bytes is an in-memory payload.
type Bytes []byte

// Stream is a payload read once, to EOF, at Load time.
type Stream struct {
	Reader io.Reader
}

// Upload is a payload a web layer has already spooled to a temp file.
type Upload struct {
	Path     string
	Filename string // client-supplied name
	MimeType string // client-supplied type
}

// File is an open file; Load addresses it by its absolute path.
type File struct {
	File *os.File
}

// Reference points at an existing remote resource or bundled asset.
type Reference struct {
	URI *url.URL
}

func (Bytes) kind() string     { return "bytes" }
func (Stream) kind() string    { return "stream" }
func (Upload) kind() string    { return "upload" }
func (File) kind() string      { return "file" }
func (Reference) kind() string { return "reference" }

func (b Bytes) load(_ context.Context, r *Registry, md Metadata) (Source, error) {
	return r.newBuffer(append([]byte(nil), b...), md), nil
}

func (s Stream) load(_ context.Context, r *Registry, md Metadata) (Source, error) {
	if s.Reader == nil {
		return nil, fmt.Errorf("%w: nil stream", ErrInvalidSource)
	}
	data, err := io.ReadAll(s.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	return r.newBuffer(data, md), nil
}

func (u Upload) load(_ context.Context, r *Registry, md Metadata) (Source, error) {
	if u.Path == "" {
		return nil, fmt.Errorf("%w: upload without a path", ErrInvalidSource)
	}
	md = md.Clone()
	if u.Filename != "" {
		md.SetDefault(KeyFilename, filepath.Base(u.Filename))
	}
	if u.MimeType != "" {
		md.SetDefault(KeyMimeType, r.mimes.Canonical(u.MimeType))
	}
	return r.newUpload(u.Path, md), nil
}

func (f File) load(_ context.Context, r *Registry, md Metadata) (Source, error) {
	if f.File == nil {
		return nil, fmt.Errorf("%w: nil file", ErrInvalidSource)
	}
	abs, err := filepath.Abs(f.File.Name())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	uri := &url.URL{Scheme: "file", Host: "localhost", Path: filepath.ToSlash(abs)}
	return r.newFile(uri, abs, md), nil
}

func (ref Reference) load(ctx context.Context, r *Registry, md Metadata) (Source, error) {
	if ref.URI == nil {
		return nil, fmt.Errorf("%w: nil reference", ErrInvalidSource)
	}
	switch ref.URI.Scheme {
	case "http", "https":
		return r.reloadHTTP(ctx, ref.URI, md)
	case "":
		return r.reloadLocalAsset(ctx, ref.URI, md)
	}
	return nil, fmt.Errorf("load %s: %w: %q", ref.URI.Redacted(), ErrUnsupportedScheme, ref.URI.Scheme)
}
