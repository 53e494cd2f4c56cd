// Package mimetypes maps MIME types to file extensions and back.
//
// Tables live in a Registry value owned by the caller; there is no package
// level mutable state.
package mimetypes

import (
	"mime"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the fallback type for unidentified payloads.
const OctetStream = "application/octet-stream"

// Registry is a MIME type table. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	byExt     map[string]string // ".jpg" -> "image/jpeg"
	extByType map[string]string // "image/jpeg" -> ".jpg"
	aliases   map[string]string // "image/jpg" -> "image/jpeg"
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byExt:     make(map[string]string),
		extByType: make(map[string]string),
		aliases:   make(map[string]string),
	}
}

// Default returns a registry populated with the types attachments commonly carry.
func Default() *Registry {
	r := New()
	r.Register(OctetStream, "bin")
	r.Alias("application/binary", OctetStream)
	r.Register("application/pdf", "pdf")
	r.Register("application/xrds+xml", "xrds")
	r.Register("text/html", "html", "htm")
	r.Register("text/plain", "txt")
	r.Register("image/jpeg", "jpg", "jpeg", "jpe")
	r.Alias("image/jpg", "image/jpeg")
	r.Alias("image/pjpeg", "image/jpeg")
	r.Register("image/bmp", "bmp")
	r.Alias("image/x-ms-bmp", "image/bmp")
	r.Register("image/png", "png")
	r.Alias("image/x-png", "image/png")
	r.Register("image/gif", "gif")
	r.Register("image/tiff", "tiff", "tif")
	r.Register("image/webp", "webp")
	r.Register("application/x-shockwave-flash", "swf")
	r.Register("video/x-flv", "flv")
	r.Register("video/mp4", "mp4", "f4v", "f4p")
	r.Register("audio/mp4", "m4a", "f4a", "f4b")
	return r
}

// Register adds a type with its extensions; the first extension is canonical.
func (r *Registry) Register(mimeType string, exts ...string) {
	mimeType = normalize(mimeType)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, ext := range exts {
		ext = dotted(ext)
		r.byExt[ext] = mimeType
		if i == 0 {
			r.extByType[mimeType] = ext
		}
	}
}

// Alias maps an alternate spelling onto a registered type.
func (r *Registry) Alias(alias, canonical string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[normalize(alias)] = normalize(canonical)
}

// Canonical strips parameters, lower-cases and resolves aliases.
func (r *Registry) Canonical(mimeType string) string {
	mt := normalize(mimeType)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.aliases[mt]; ok {
		return c
	}
	return mt
}

// ByExtension returns the type registered for ext ("jpg" or ".jpg"), or "".
func (r *Registry) ByExtension(ext string) string {
	if ext == "" || ext == "." {
		return ""
	}
	ext = dotted(ext)
	r.mu.RLock()
	mt, ok := r.byExt[ext]
	r.mu.RUnlock()
	if ok {
		return mt
	}
	return r.Canonical(mime.TypeByExtension(ext))
}

// ByFilename returns the type for a filename's extension, or "".
func (r *Registry) ByFilename(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return r.ByExtension(name[i:])
}

// Extension returns the canonical extension (with dot) for a type, or "".
func (r *Registry) Extension(mimeType string) string {
	mt := r.Canonical(mimeType)
	r.mu.RLock()
	ext, ok := r.extByType[mt]
	r.mu.RUnlock()
	if ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// Sniff identifies a payload's type from its leading bytes.
func (r *Registry) Sniff(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return r.Canonical(mimetype.Detect(data).String())
}

// IsImage reports whether mimeType names an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(normalize(mimeType), "image/")
}

func normalize(mt string) string {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(mt)
}

func dotted(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
