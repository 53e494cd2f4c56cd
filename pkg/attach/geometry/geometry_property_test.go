//go:build property
// +build property

package geometry_test

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/attach/pkg/attach/geometry"
)

// TestFitNeverUpscales verifies inputs inside the box come back unchanged.
// Property: Fits(w,h) => Fit(w,h) == (w,h)
func TestFitNeverUpscales(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	presets := geometry.Standard()

	properties.Property("fitting inputs are unchanged", prop.ForAll(
		func(name string, w, h int) bool {
			g := presets[name]
			if !g.Fits(w, h) {
				return true
			}
			nw, nh := g.Fit(w, h)
			return nw == w && nh == h
		},
		gen.OneConstOf(geometry.Thumbnail, geometry.Vignette, geometry.Proof, geometry.Max),
		gen.IntRange(1, 4000),
		gen.IntRange(1, 4000),
	))

	properties.TestingRun(t)
}

// TestFitBoxConstrainsExactly verifies oversized inputs land on the box edge.
// Property: !Fits(w,h) => result fits, one axis touches the box, aspect within one pixel
func TestFitBoxConstrainsExactly(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("oversized inputs are scaled onto the box", prop.ForAll(
		func(bw, bh, w, h int) bool {
			g := geometry.Geometry{Width: bw, Height: bh}
			if g.Fits(w, h) {
				return true
			}
			nw, nh := g.Fit(w, h)
			if !g.Fits(nw, nh) {
				return false
			}
			if nw != bw && nh != bh {
				return false
			}
			// Aspect ratio preserved within rounding of the unconstrained axis.
			byWidth := math.Abs(float64(h)*float64(nw)/float64(w)-float64(nh)) <= 1
			byHeight := math.Abs(float64(w)*float64(nh)/float64(h)-float64(nw)) <= 1
			return byWidth || byHeight
		},
		gen.IntRange(16, 1024),
		gen.IntRange(16, 1024),
		gen.IntRange(1, 8000),
		gen.IntRange(1, 8000),
	))

	properties.TestingRun(t)
}

// TestFitAreaCap verifies the pixel-count cap is honoured.
func TestFitAreaCap(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("area never exceeds the cap", prop.ForAll(
		func(w, h int) bool {
			g := geometry.Geometry{Area: 250000}
			nw, nh := g.Fit(w, h)
			return int64(nw)*int64(nh) <= g.Area || (nw == 1 || nh == 1)
		},
		gen.IntRange(1, 10000),
		gen.IntRange(1, 10000),
	))

	properties.TestingRun(t)
}
