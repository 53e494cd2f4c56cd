package attach

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// LocalAssetSource is a file bundled beneath the asset root and addressed by
// a scheme-less relative URI. It is shared by every Source that references it:
// Destroy freezes the Source and never touches the file.
type LocalAssetSource struct {
	FileSource
}

func (r *Registry) newLocalAsset(uri *url.URL, md Metadata) (*LocalAssetSource, error) {
	p, err := r.assetPath(uri)
	if err != nil {
		return nil, err
	}
	ref := &url.URL{Path: uri.Path, RawQuery: uri.RawQuery}
	return &LocalAssetSource{FileSource: *r.newFile(ref, p, md)}, nil
}

// assetPath resolves uri beneath the asset root. Leading slashes are
// relative to the root as well.
func (r *Registry) assetPath(uri *url.URL) (string, error) {
	if uri.Path == "" {
		return "", fmt.Errorf("%w: empty asset path", ErrInvalidSource)
	}
	for _, elem := range strings.Split(uri.Path, "/") {
		if elem == ".." {
			return "", fmt.Errorf("%w: asset path escapes root: %s", ErrInvalidSource, uri.Path)
		}
	}
	return filepath.Join(r.assetRoot, filepath.FromSlash(path.Clean("/"+uri.Path))), nil
}

func (r *Registry) reloadLocalAsset(_ context.Context, uri *url.URL, md Metadata) (Source, error) {
	asset, err := r.newLocalAsset(uri, md)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

// storeLocalAsset writes beneath the asset root with filesystem semantics.
func (r *Registry) storeLocalAsset(ctx context.Context, src Source, uri *url.URL) (Source, error) {
	asset, err := r.newLocalAsset(uri, Metadata{})
	if err != nil {
		return nil, err
	}
	md, err := r.writeFile(ctx, src, asset.path)
	if err != nil {
		return nil, err
	}
	asset.primer = md
	return asset, nil
}

// ReadOnly is always true: assets outlive the Sources that reference them.
func (s *LocalAssetSource) ReadOnly() bool { return true }

// Destroy freezes the Source and leaves the asset in place.
func (s *LocalAssetSource) Destroy(context.Context) error {
	if !s.frozen {
		s.freeze()
	}
	return nil
}
