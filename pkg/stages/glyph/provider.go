// Package glyph renders the watermark text into rotated coverage masks.
package glyph

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Provider renders glyph masks through a GlyphRasterizer.
// Render is a pure function of its arguments, so results are memoized in
// the provider's cache for the lifetime of the provider.
type Provider struct {
	rasterizer ports.GlyphRasterizer
	fontPath   string
	cache      *Cache
}

// NewProvider creates a provider that renders with the font at fontPath
// (empty for the rasterizer's built-in face).
func NewProvider(rasterizer ports.GlyphRasterizer, fontPath string) *Provider {
	return &Provider{
		rasterizer: rasterizer,
		fontPath:   fontPath,
		cache:      NewCache(),
	}
}

// Cache returns the provider's mask cache.
func (p *Provider) Cache() *Cache {
	return p.cache
}

// Render returns the mask for text at fontsize scaleFraction*refDim,
// rotated counter-clockwise by rotation radians.
func (p *Provider) Render(text string, scaleFraction, rotation float64, refDim int) (*pipeline.GlyphMask, error) {
	return p.RenderFont(text, p.fontPath, scaleFraction, rotation, refDim)
}

// RenderFont is Render with an explicit font. An empty fontPath selects
// the provider's font.
func (p *Provider) RenderFont(text, fontPath string, scaleFraction, rotation float64, refDim int) (*pipeline.GlyphMask, error) {
	if fontPath == "" {
		fontPath = p.fontPath
	}
	key := Key{
		Text:     text,
		FontPath: fontPath,
		Scale:    scaleFraction,
		Rotation: pipeline.RotationKey(rotation),
		RefDim:   refDim,
	}
	return p.cache.Get(key, func() (*pipeline.GlyphMask, error) {
		if pipeline.RotationKey(rotation) == 0 {
			return p.renderBase(text, fontPath, scaleFraction, refDim)
		}
		base, err := p.RenderFont(text, fontPath, scaleFraction, 0, refDim)
		if err != nil {
			return nil, err
		}
		return Rotate(base, rotation), nil
	})
}

func (p *Provider) renderBase(text, fontPath string, scaleFraction float64, refDim int) (*pipeline.GlyphMask, error) {
	if refDim <= 0 {
		return nil, fmt.Errorf("%w: reference dimension %d", pipeline.ErrInvalidGeometry, refDim)
	}
	size := math.Max(1, scaleFraction*float64(refDim))

	alpha, err := p.rasterizer.Rasterize(text, fontPath, size)
	if err != nil {
		return nil, fmt.Errorf("rasterize %q at %.1fpx: %w", text, size, err)
	}

	bounds := TightBounds(alpha)
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: text %q renders no coverage", pipeline.ErrInvalidGeometry, text)
	}

	mask := &pipeline.GlyphMask{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Coverage: make([]float32, bounds.Dx()*bounds.Dy()),
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := (y - bounds.Min.Y) * mask.Width
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			mask.Coverage[row+x-bounds.Min.X] = float32(alpha.AlphaAt(x, y).A) / 255
		}
	}
	return mask, nil
}

// TightBounds returns the smallest rectangle containing every non-zero
// pixel of a.
func TightBounds(a *image.Alpha) image.Rectangle {
	b := a.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if a.AlphaAt(x, y).A == 0 {
				continue
			}
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Rotate returns base rotated counter-clockwise by rotation radians with
// bilinear resampling. The bounding box grows so no corner is clipped.
func Rotate(base *pipeline.GlyphMask, rotation float64) *pipeline.GlyphMask {
	src := image.NewAlpha(image.Rect(0, 0, base.Width, base.Height))
	for i, c := range base.Coverage {
		src.Pix[i] = uint8(math.Round(float64(c) * 255))
	}

	rotated := imaging.Rotate(src, rotation*180/math.Pi, color.Transparent)
	rb := rotated.Bounds()

	mask := &pipeline.GlyphMask{
		Width:    rb.Dx(),
		Height:   rb.Dy(),
		Coverage: make([]float32, rb.Dx()*rb.Dy()),
		Rotation: rotation,
	}
	for y := 0; y < rb.Dy(); y++ {
		for x := 0; x < rb.Dx(); x++ {
			a := rotated.Pix[y*rotated.Stride+x*4+3]
			mask.Coverage[y*mask.Width+x] = float32(a) / 255
		}
	}
	return mask
}

// ToImage converts a mask into an alpha image for debug output.
func ToImage(m *pipeline.GlyphMask) *image.Alpha {
	img := image.NewAlpha(image.Rect(0, 0, m.Width, m.Height))
	for i, c := range m.Coverage {
		img.Pix[i] = uint8(math.Round(float64(c) * 255))
	}
	return img
}
