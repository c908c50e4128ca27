package mocks

import (
	"image"
	"sync/atomic"

	"github.com/user/watermark/pkg/ports"
)

// GlyphRasterizer is a mock implementation of ports.GlyphRasterizer.
// By default it renders a solid block of len(text)*size/2 by size pixels
// inside a one pixel transparent border.
type GlyphRasterizer struct {
	RasterizeFunc func(text, fontPath string, size float64) (*image.Alpha, error)

	Calls atomic.Int32
}

func (m *GlyphRasterizer) Rasterize(text, fontPath string, size float64) (*image.Alpha, error) {
	m.Calls.Add(1)
	if m.RasterizeFunc != nil {
		return m.RasterizeFunc(text, fontPath, size)
	}
	w := max(1, int(float64(len(text))*size/2))
	h := max(1, int(size))
	img := image.NewAlpha(image.Rect(0, 0, w+2, h+2))
	for y := 1; y <= h; y++ {
		for x := 1; x <= w; x++ {
			img.Pix[y*img.Stride+x] = 0xff
		}
	}
	return img, nil
}

var _ ports.GlyphRasterizer = (*GlyphRasterizer)(nil)
