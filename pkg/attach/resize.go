package attach

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the webp decoder
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/attach/pkg/attach/geometry"
)

// encoders maps the image types a resize can write back in their own format.
var encoders = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/bmp":  imaging.BMP,
	"image/tiff": imaging.TIFF,
}

var formatMimeTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.BMP:  "image/bmp",
	imaging.TIFF: "image/tiff",
}

// Processable reports whether resize presets can decode mimeType.
func Processable(mimeType string) bool {
	if _, ok := encoders[mimeType]; ok {
		return true
	}
	return mimeType == "image/webp"
}

// resize scales src to fit g. The result is a transient Source: the original
// identity no longer describes the new bytes.
func (r *Registry) resize(ctx context.Context, src Source, name string, g geometry.Geometry) (Source, error) {
	md, err := src.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	mimeType := r.mimes.Canonical(md.MimeType())
	if !Processable(mimeType) {
		return nil, &UnsupportedTransformError{Name: name, MimeType: mimeType}
	}

	data, err := src.Blob(ctx)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", &UnsupportedTransformError{Name: name, MimeType: mimeType}, err)
	}

	b := img.Bounds()
	w, h := g.Fit(b.Dx(), b.Dy())
	format, reencode := encoders[mimeType]
	if !reencode {
		format = imaging.PNG
	}

	// Auto-orientation may have turned the image; the stored bytes then no
	// longer have the decoded bounds and cannot be reused as they are.
	turned := false
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		turned = cfg.Width != b.Dx() || cfg.Height != b.Dy()
	}

	out := data
	if w != b.Dx() || h != b.Dy() || !reencode || turned {
		if w != b.Dx() || h != b.Dy() {
			img = imaging.Resize(img, w, h, imaging.Lanczos)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(85)); err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", name, err)
		}
		out = buf.Bytes()
	}

	outMime := formatMimeTypes[format]
	var derived Metadata
	derived.Set(KeyFilename, r.derivedFilename(md.Filename(), name, outMime))
	derived.Set(KeyMimeType, outMime)
	derived.Set(KeyWidth, w)
	derived.Set(KeyHeight, h)
	if t := md.CapturedAt(); !t.IsZero() {
		derived.Set(KeyCapturedAt, t)
	}
	return r.newBuffer(out, derived), nil
}

// derivedFilename appends the transform name to the base name and swaps in
// the extension of the output type: "photo.webp" -> "photo_thumbnail.png".
func (r *Registry) derivedFilename(filename, transform, mimeType string) string {
	if filename == "" {
		filename = defaultFilename
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return norm.NFC.String(base + "_" + transform + r.mimes.Extension(mimeType))
}
