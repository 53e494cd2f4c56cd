package attach

import (
	"context"
	"net/url"
	"strings"

	"github.com/Mindburn-Labs/attach/pkg/attach/mimetypes"
)

// iconDir holds one <type>_<subtype>.png per mime type beneath the asset root.
const iconDir = "mime_type_icons"

// IconPath returns the asset path of the icon for mimeType. Unknown types
// still get a name; whether the asset exists is the caller's concern.
func IconPath(mimeType string) string {
	if mimeType == "" {
		mimeType = mimetypes.OctetStream
	}
	return iconDir + "/" + strings.ReplaceAll(mimeType, "/", "_") + ".png"
}

func (r *Registry) icon(ctx context.Context, src Source) (Source, error) {
	md, err := src.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return r.reloadLocalAsset(ctx, &url.URL{Path: IconPath(r.mimes.Canonical(md.MimeType()))}, Metadata{})
}
