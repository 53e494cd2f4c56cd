package geometry

import (
	"fmt"
	"sort"
)

// Standard preset names.
const (
	Thumbnail = "thumbnail"
	Vignette  = "vignette"
	Proof     = "proof"
	Max       = "max"
)

// Presets maps a preset name to its geometry.
type Presets map[string]Geometry

// Standard returns the built-in preset table.
func Standard() Presets {
	return Presets{
		Thumbnail: {Width: 128, Height: 128},
		Vignette:  {Width: 256, Height: 256},
		Proof:     {Width: 512, Height: 512},
		Max:       {Area: 2097152}, // 2 megapixels
	}
}

// ParsePresets builds a preset table from name -> geometry strings.
func ParsePresets(defs map[string]string) (Presets, error) {
	p := make(Presets, len(defs))
	for name, s := range defs {
		g, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		p[name] = g
	}
	return p, nil
}

// Lookup returns the geometry for name.
func (p Presets) Lookup(name string) (Geometry, bool) {
	g, ok := p[name]
	return g, ok
}

// Names returns the preset names in sorted order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for n := range p {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge returns a copy of p overlaid with other.
func (p Presets) Merge(other Presets) Presets {
	out := make(Presets, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
