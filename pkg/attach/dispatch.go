package attach

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// backend is one row of the scheme table. A nil store marks a read-only scheme.
type backend struct {
	reload func(r *Registry, ctx context.Context, uri *url.URL, md Metadata) (Source, error)
	store  func(r *Registry, ctx context.Context, src Source, uri *url.URL) (Source, error)
}

// backends is the complete scheme table; "" is the bundled local asset.
var backends = map[string]backend{
	"":       {reload: (*Registry).reloadLocalAsset, store: (*Registry).storeLocalAsset},
	"file":   {reload: (*Registry).reloadFile, store: (*Registry).storeFile},
	"db":     {reload: (*Registry).reloadDB, store: (*Registry).storeDB},
	"s3":     {reload: (*Registry).reloadObject, store: (*Registry).storeObject},
	"gs":     {reload: (*Registry).reloadObject, store: (*Registry).storeObject},
	"memory": {reload: (*Registry).reloadMemory, store: (*Registry).storeMemory},
	"http":   {reload: (*Registry).reloadHTTP},
	"https":  {reload: (*Registry).reloadHTTP},
}

func lookupBackend(uri *url.URL) (backend, error) {
	b, ok := backends[strings.ToLower(uri.Scheme)]
	if !ok {
		return backend{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri.Scheme)
	}
	return b, nil
}

// Schemes lists every scheme Reload accepts, "" standing for local assets.
func Schemes() []string {
	return []string{"", "file", "db", "s3", "gs", "memory", "http", "https"}
}

// lastSegment returns the final path element of an opaque or hierarchical URI.
func lastSegment(uri *url.URL) string {
	p := uri.Path
	if p == "" {
		p = uri.Opaque
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	return p
}
