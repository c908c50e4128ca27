// Package ggrenderer rasterizes watermark text with the gg library.
package ggrenderer

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/user/watermark/pkg/ports"
)

// padding keeps anti-aliased edges off the canvas border.
const padding = 2

// Renderer implements ports.GlyphRasterizer. Parsed fonts are cached by
// path; faces are created per call because truetype faces are not safe
// for concurrent use.
type Renderer struct {
	mu    sync.Mutex
	fonts map[string]*truetype.Font
}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{fonts: make(map[string]*truetype.Font)}
}

// Rasterize renders text in white on a transparent canvas and returns its
// alpha channel.
func (r *Renderer) Rasterize(text, fontPath string, size float64) (*image.Alpha, error) {
	f, err := r.font(fontPath)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	defer face.Close()

	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)
	textW, _ := measure.MeasureString(text)

	metrics := face.Metrics()
	ascent := float64(metrics.Ascent.Ceil())
	descent := float64(metrics.Descent.Ceil())

	w := int(math.Ceil(textW)) + 2*padding
	h := int(ascent+descent) + 2*padding

	dc := gg.NewContext(w, h)
	dc.SetFontFace(face)
	dc.SetRGBA(1, 1, 1, 1)
	dc.DrawString(text, padding, padding+ascent)

	return alphaOf(dc.Image()), nil
}

// font returns the parsed font for path, or Go Regular for "".
func (r *Renderer) font(path string) (*truetype.Font, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.fonts[path]; ok {
		return f, nil
	}

	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font: %w", err)
		}
		data = b
	}
	f, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %q: %w", path, err)
	}
	r.fonts[path] = f
	return f, nil
}

// alphaOf extracts the alpha channel of img.
func alphaOf(img image.Image) *image.Alpha {
	b := img.Bounds()
	out := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < b.Dy(); y++ {
			src := rgba.Pix[y*rgba.Stride:]
			dst := out.Pix[y*out.Stride:]
			for x := 0; x < b.Dx(); x++ {
				dst[x] = src[x*4+3]
			}
		}
		return out
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			_, _, _, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out.Pix[y*out.Stride+x] = uint8(a >> 8)
		}
	}
	return out
}

// Ensure Renderer implements ports.GlyphRasterizer
var _ ports.GlyphRasterizer = (*Renderer)(nil)
