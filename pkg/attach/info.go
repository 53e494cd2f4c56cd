package attach

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/url"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/Mindburn-Labs/attach/pkg/attach/mimetypes"
)

// InfoSource adds attributes read from an image's own bytes to the metadata
// of the Source it wraps. Every other method delegates to the wrapped Source.
type InfoSource struct {
	src   Source
	extra Metadata
}

// info extracts dimensions and, for jpeg and tiff, the EXIF capture time.
// Extraction is best-effort: whatever fails is left out.
func (r *Registry) info(ctx context.Context, src Source) (Source, error) {
	md, err := src.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	mimeType := r.mimes.Canonical(md.MimeType())
	if !mimetypes.IsImage(mimeType) {
		return src, nil
	}

	var extra Metadata
	data, err := src.Blob(ctx)
	if err != nil {
		r.logger.DebugContext(ctx, "info extraction skipped", "error", err)
		return &InfoSource{src: src, extra: extra}, nil
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		extra.Set(KeyWidth, cfg.Width)
		extra.Set(KeyHeight, cfg.Height)
	}
	if mimeType == "image/jpeg" || mimeType == "image/tiff" {
		if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
			// DateTime prefers DateTimeOriginal and falls back to DateTime.
			if t, err := x.DateTime(); err == nil {
				extra.Set(KeyCapturedAt, t)
			}
		}
	}
	return &InfoSource{src: src, extra: extra}, nil
}

func (s *InfoSource) Valid(ctx context.Context) bool { return s.src.Valid(ctx) }
func (s *InfoSource) Err() error                     { return s.src.Err() }
func (s *InfoSource) Persistent() bool               { return s.src.Persistent() }
func (s *InfoSource) ReadOnly() bool                 { return s.src.ReadOnly() }
func (s *InfoSource) URI() *url.URL                  { return s.src.URI() }
func (s *InfoSource) PublicURI() *url.URL            { return s.src.PublicURI() }

func (s *InfoSource) Metadata(ctx context.Context) (Metadata, error) {
	md, err := s.src.Metadata(ctx)
	if err != nil {
		return Metadata{}, err
	}
	md.Merge(s.extra)
	return md, nil
}

func (s *InfoSource) Blob(ctx context.Context) ([]byte, error) { return s.src.Blob(ctx) }

func (s *InfoSource) Open(ctx context.Context) (io.ReadCloser, error) { return s.src.Open(ctx) }

func (s *InfoSource) Tempfile(ctx context.Context) (string, error) { return s.src.Tempfile(ctx) }

func (s *InfoSource) Destroy(ctx context.Context) error { return s.src.Destroy(ctx) }

// Unwrap returns the wrapped Source.
func (s *InfoSource) Unwrap() Source { return s.src }
