package ports

import "image"

// GlyphRasterizer renders a line of text into an anti-aliased coverage
// image. size is the font size in pixels. An empty fontPath selects the
// rasterizer's built-in face.
type GlyphRasterizer interface {
	Rasterize(text, fontPath string, size float64) (*image.Alpha, error)
}
