// Package geometry computes bounded resize dimensions for image presets.
//
// A Geometry is either a bounding box ("128x128", "x50", "640") or a total
// pixel-count cap ("2097152@"). Fit never upscales and always preserves the
// aspect ratio of the input.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidGeometry is returned when a geometry string cannot be parsed.
var ErrInvalidGeometry = errors.New("geometry: invalid geometry")

// Geometry is a bounding constraint for a resize.
// A zero Width or Height leaves that axis unconstrained.
type Geometry struct {
	Width  int
	Height int
	// Area, when non-zero, caps Width*Height of the result; Width and Height are ignored.
	Area int64
}

// Parse reads a geometry string.
func Parse(s string) (Geometry, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Geometry{}, fmt.Errorf("%w: empty", ErrInvalidGeometry)
	}

	if strings.HasSuffix(s, "@") {
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "@"), 10, 64)
		if err != nil || n <= 0 {
			return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, s)
		}
		return Geometry{Area: n}, nil
	}

	ws, hs, _ := strings.Cut(strings.ToLower(s), "x")
	var g Geometry
	var err error
	if ws != "" {
		if g.Width, err = strconv.Atoi(ws); err != nil || g.Width < 0 {
			return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, s)
		}
	}
	if hs != "" {
		if g.Height, err = strconv.Atoi(hs); err != nil || g.Height < 0 {
			return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, s)
		}
	}
	if g.Width == 0 && g.Height == 0 {
		return Geometry{}, fmt.Errorf("%w: %q", ErrInvalidGeometry, s)
	}
	return g, nil
}

// MustParse is Parse for package-level preset tables.
func MustParse(s string) Geometry {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

// String renders g in the form Parse accepts.
func (g Geometry) String() string {
	if g.Area > 0 {
		return strconv.FormatInt(g.Area, 10) + "@"
	}
	var b strings.Builder
	if g.Width > 0 {
		b.WriteString(strconv.Itoa(g.Width))
	}
	b.WriteByte('x')
	if g.Height > 0 {
		b.WriteString(strconv.Itoa(g.Height))
	}
	return b.String()
}

// Fits reports whether a width x height image already satisfies g.
func (g Geometry) Fits(width, height int) bool {
	if g.Area > 0 {
		return int64(width)*int64(height) <= g.Area
	}
	return (g.Width == 0 || width <= g.Width) && (g.Height == 0 || height <= g.Height)
}

// Fit returns the dimensions of a width x height image resized to satisfy g.
// Images that already fit are returned unchanged. Results are at least 1x1.
func (g Geometry) Fit(width, height int) (int, int) {
	if width <= 0 || height <= 0 || g.Fits(width, height) {
		return width, height
	}

	if g.Area > 0 {
		scale := math.Sqrt(float64(g.Area) / (float64(width) * float64(height)))
		w := clamp(int(math.Floor(float64(width)*scale)), 1)
		h := clamp(int(math.Floor(float64(height)*scale)), 1)
		return w, h
	}

	scale := math.Inf(1)
	if g.Width > 0 {
		scale = float64(g.Width) / float64(width)
	}
	if g.Height > 0 {
		scale = math.Min(scale, float64(g.Height)/float64(height))
	}

	w := clamp(int(math.Round(float64(width)*scale)), 1)
	h := clamp(int(math.Round(float64(height)*scale)), 1)
	// Rounding must not push the result out of the box.
	if g.Width > 0 && w > g.Width {
		w = g.Width
	}
	if g.Height > 0 && h > g.Height {
		h = g.Height
	}
	return w, h
}

func clamp(v, lo int) int {
	if v < lo {
		return lo
	}
	return v
}
