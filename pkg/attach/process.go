package attach

import "context"

// Transform names handled outside the preset table.
const (
	TransformInfo = "info"
	TransformIcon = "icon"
)

func (r *Registry) process(ctx context.Context, src Source, name string) (Source, error) {
	switch name {
	case TransformInfo:
		return r.info(ctx, src)
	case TransformIcon:
		return r.icon(ctx, src)
	}
	if g, ok := r.presets.Lookup(name); ok {
		return r.resize(ctx, src, name, g)
	}
	return nil, &UnsupportedTransformError{Name: name}
}
