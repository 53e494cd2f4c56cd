// Package attach stores, retrieves and transforms attachment payloads behind
// a single Source contract, whatever medium holds them.
//
// A Registry owns every collaborator a backend needs (mime table, presets,
// in-memory table, blob database, object stores, HTTP client, temp namer)
// and dispatches on URI schemes:
//
//	file://host/path   filesystem
//	db:/key            relational blob table
//	s3:/bucket/key     S3 object store
//	gs:/bucket/key     Google Cloud Storage
//	memory:/key        in-memory table
//	http(s)://...      remote resource, read-only
//	relative/path      bundled local asset
package attach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/attach/pkg/attach/geometry"
	"github.com/Mindburn-Labs/attach/pkg/attach/mimetypes"
	"github.com/Mindburn-Labs/attach/pkg/observability"
	"github.com/Mindburn-Labs/attach/pkg/util/resiliency"
)

// Registry dispatches Source operations to backends. It is safe for
// concurrent use once constructed; the Sources it returns are not.
type Registry struct {
	mimes   *mimetypes.Registry
	presets geometry.Presets
	memory  Table
	db      *BlobTable
	objects map[string]ObjectStore
	http    *resiliency.EnhancedClient

	tempDir    string
	assetRoot  string
	publicRoot string
	namer      TempNamer

	logger *slog.Logger
	obs    *observability.Provider
}

// Option configures a Registry.
type Option func(*Registry)

func WithMimeTypes(m *mimetypes.Registry) Option {
	return func(r *Registry) { r.mimes = m }
}

// WithPresets replaces the resize presets.
func WithPresets(p geometry.Presets) Option {
	return func(r *Registry) { r.presets = p }
}

// WithMemoryTable backs memory: URIs with t.
func WithMemoryTable(t Table) Option {
	return func(r *Registry) { r.memory = t }
}

// WithBlobTable enables db: URIs.
func WithBlobTable(t *BlobTable) Option {
	return func(r *Registry) { r.db = t }
}

// WithObjectStore serves scheme ("s3", "gs") from store.
func WithObjectStore(scheme string, store ObjectStore) Option {
	return func(r *Registry) { r.objects[scheme] = store }
}

// WithHTTPClient sets the client for http(s) sources. The registry follows
// redirects itself through a copy of c; c keeps its own redirect policy.
func WithHTTPClient(c *resiliency.EnhancedClient) Option {
	return func(r *Registry) { r.http = c }
}

func WithTempDir(dir string) Option {
	return func(r *Registry) { r.tempDir = dir }
}

// WithAssetRoot anchors scheme-less URIs.
func WithAssetRoot(dir string) Option {
	return func(r *Registry) { r.assetRoot = dir }
}

// WithPublicRoot sets the directory whose contents are served publicly.
func WithPublicRoot(dir string) Option {
	return func(r *Registry) { r.publicRoot = dir }
}

func WithTempNamer(n TempNamer) Option {
	return func(r *Registry) { r.namer = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithObservability(p *observability.Provider) Option {
	return func(r *Registry) { r.obs = p }
}

// New returns a Registry with an in-process memory table, the standard
// presets and no database or object stores.
func New(opts ...Option) *Registry {
	r := &Registry{
		mimes:   mimetypes.Default(),
		presets: geometry.Standard(),
		objects: make(map[string]ObjectStore),
		tempDir: filepath.Join(os.TempDir(), "attach"),
		namer:   DefaultTempNamer,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.memory == nil {
		r.memory = NewLocalTable()
	}
	if r.http == nil {
		r.http = resiliency.NewEnhancedClient()
	}
	r.http = r.http.NoRedirects()
	if r.assetRoot == "" {
		r.assetRoot = "public"
	}
	if r.publicRoot == "" {
		r.publicRoot = r.assetRoot
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "attach")
	if r.obs == nil {
		r.obs = observability.Noop()
	}
	return r
}

// Presets returns the resize presets Process accepts.
func (r *Registry) Presets() geometry.Presets {
	return r.presets.Merge(nil)
}

// MimeTypes returns the registry's mime table.
func (r *Registry) MimeTypes() *mimetypes.Registry {
	return r.mimes
}

// Load wraps raw input in a Source without persisting it.
func (r *Registry) Load(ctx context.Context, raw Raw, md Metadata) (src Source, err error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: nil raw input", ErrInvalidSource)
	}
	ctx, done := r.obs.TrackOperation(ctx, "attach.load", observability.AttrRawKind.String(raw.kind()))
	defer func() { done(err) }()

	return raw.load(ctx, r, md)
}

// Reload re-attaches to a payload previously persisted at uri.
func (r *Registry) Reload(ctx context.Context, uri *url.URL, md Metadata) (src Source, err error) {
	if uri == nil {
		return nil, fmt.Errorf("%w: nil uri", ErrInvalidSource)
	}
	ctx, done := r.obs.TrackOperation(ctx, "attach.reload", observability.AttrScheme.String(uri.Scheme))
	defer func() { done(err) }()

	b, err := lookupBackend(uri)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", uri.Redacted(), err)
	}
	return b.reload(r, ctx, uri, md)
}

// Store persists src's current payload at uri and returns the persisted Source.
// It never overwrites: an occupied target yields ErrStorageConflict.
func (r *Registry) Store(ctx context.Context, src Source, uri *url.URL) (stored Source, err error) {
	if src == nil || uri == nil {
		return nil, fmt.Errorf("%w: store needs a source and a uri", ErrInvalidSource)
	}
	ctx, done := r.obs.TrackOperation(ctx, "attach.store", observability.AttrScheme.String(uri.Scheme))
	defer func() { done(err) }()

	b, err := lookupBackend(uri)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", uri.Redacted(), err)
	}
	if b.store == nil {
		return nil, fmt.Errorf("store %s: %w: %q is read-only", uri.Redacted(), ErrUnsupportedScheme, uri.Scheme)
	}
	stored, err = b.store(r, ctx, src, uri)
	if err != nil {
		return nil, err
	}
	if md, mdErr := stored.Metadata(ctx); mdErr == nil {
		observability.AddSpanEvent(ctx, "payload.stored",
			observability.PayloadAttributes(uri.Scheme, md.MimeType(), md.Size())...)
	}
	r.logger.InfoContext(ctx, "source stored", "uri", uri.Redacted())
	return stored, nil
}

// Process derives a new Source from src with the named transform.
func (r *Registry) Process(ctx context.Context, src Source, name string) (out Source, err error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidSource)
	}
	ctx, done := r.obs.TrackOperation(ctx, "attach.process", observability.AttrTransform.String(name))
	defer func() { done(err) }()

	return r.process(ctx, src, name)
}

// Destroy releases src's backing storage. A payload that is already gone is
// not an error.
func (r *Registry) Destroy(ctx context.Context, src Source) (err error) {
	if src == nil {
		return nil
	}
	ctx, done := r.obs.TrackOperation(ctx, "attach.destroy")
	defer func() { done(err) }()

	err = src.Destroy(ctx)
	if errors.Is(err, ErrMissingSource) {
		r.logger.DebugContext(ctx, "destroy of missing source ignored", "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if u := src.URI(); u != nil {
		r.logger.InfoContext(ctx, "source destroyed", "uri", u.Redacted())
	}
	return nil
}

// ParseURI parses s, reporting malformed input as ErrInvalidSource.
func ParseURI(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	return u, nil
}
