package ports

import (
	"image"

	"github.com/user/watermark/pkg/pipeline"
)

// ImageCodec decodes and encodes raster images.
type ImageCodec interface {
	// Decode decodes data. format may be empty to sniff the container
	// from its magic bytes.
	Decode(data []byte, format pipeline.Format) (image.Image, error)

	// Encode encodes img. quality applies to lossy formats only.
	Encode(img image.Image, format pipeline.Format, quality int) ([]byte, error)
}

// PageLayout selects how a DocumentBuilder sizes its pages.
type PageLayout int

const (
	// LayoutA4 fits each image onto a portrait A4 page.
	LayoutA4 PageLayout = iota
	// LayoutNative sizes each page to its image at DocumentOptions.DPI.
	LayoutNative
)

// DocumentOptions controls PDF assembly.
type DocumentOptions struct {
	Layout  PageLayout
	DPI     float64
	Quality int // JPEG quality for embedded opaque pages
	Title   string
}

// PageExtractor rasterizes the pages of a PDF document.
type PageExtractor interface {
	ExtractPages(data []byte, dpi float64) ([]image.Image, error)
}

// DocumentBuilder assembles images into a PDF document.
type DocumentBuilder interface {
	Build(pages []image.Image, opts DocumentOptions) ([]byte, error)
}
