// Package overlay composites a coordinate ruler onto page screenshots so an
// operator can read off click coordinates directly from the image.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// DefaultStep is the grid spacing in pixels.
const DefaultStep = 100

// Ruler draws a labeled coordinate grid. The grid layer is rendered once per
// image size and reused; screenshots from one session share a viewport.
type Ruler struct {
	step int

	cachedW, cachedH int
	cached           image.Image
}

// NewRuler creates a ruler with the given grid spacing. Non-positive spacing
// falls back to DefaultStep.
func NewRuler(step int) *Ruler {
	if step <= 0 {
		step = DefaultStep
	}
	return &Ruler{step: step}
}

// Compose decodes a screenshot, draws the grid over it and returns the result
// as PNG.
func (r *Ruler) Compose(screenshot []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	bounds := img.Bounds()
	dc := gg.NewContextForImage(img)
	dc.DrawImage(r.layer(bounds.Dx(), bounds.Dy()), 0, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// layer returns the grid layer for the given size, rendering it on first use.
func (r *Ruler) layer(w, h int) image.Image {
	if r.cached != nil && r.cachedW == w && r.cachedH == h {
		return r.cached
	}

	dc := gg.NewContext(w, h)
	dc.SetFontFace(basicfont.Face7x13)

	// Grid lines.
	dc.SetRGBA(1, 0, 0, 0.35)
	dc.SetLineWidth(1)
	for x := r.step; x < w; x += r.step {
		dc.DrawLine(float64(x), 0, float64(x), float64(h))
	}
	for y := r.step; y < h; y += r.step {
		dc.DrawLine(0, float64(y), float64(w), float64(y))
	}
	dc.Stroke()

	// Intersection dots make the crossings easier to aim at.
	dc.SetRGBA(1, 0, 0, 0.8)
	for x := r.step; x < w; x += r.step {
		for y := r.step; y < h; y += r.step {
			dc.DrawCircle(float64(x), float64(y), 2)
		}
	}
	dc.Fill()

	// Axis labels along the top and left edges.
	dc.SetRGBA(1, 0, 0, 1)
	for x := r.step; x < w; x += r.step {
		dc.DrawStringAnchored(fmt.Sprintf("%d", x), float64(x), 10, 0.5, 0.5)
	}
	for y := r.step; y < h; y += r.step {
		dc.DrawStringAnchored(fmt.Sprintf("%d", y), 14, float64(y), 0.5, 0.5)
	}

	r.cachedW, r.cachedH = w, h
	r.cached = dc.Image()
	return r.cached
}
