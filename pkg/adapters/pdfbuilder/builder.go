// Package pdfbuilder assembles images into PDF documents with fpdf.
package pdfbuilder

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/go-pdf/fpdf"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// A4 page size and margin in millimetres.
const (
	a4Width  = 210.0
	a4Height = 297.0
	a4Margin = 10.0
	mmPerIn  = 25.4
)

// Builder implements ports.DocumentBuilder. Opaque pages are embedded as
// JPEG, pages with transparency as PNG.
type Builder struct {
	codec ports.ImageCodec
}

// New creates a Builder that encodes page images with codec.
func New(codec ports.ImageCodec) *Builder {
	return &Builder{codec: codec}
}

// Build writes one page per image.
func (b *Builder) Build(pages []image.Image, opts ports.DocumentOptions) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages", pipeline.ErrEncode)
	}
	if opts.DPI <= 0 {
		opts.DPI = 72
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreator("watermark", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, img := range pages {
		data, imageType, err := b.encodePage(img, opts.Quality)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page-%d", i+1)
		imgOpts := fpdf.ImageOptions{ImageType: imageType}
		pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(data))

		pw := float64(img.Bounds().Dx()) / opts.DPI * mmPerIn
		ph := float64(img.Bounds().Dy()) / opts.DPI * mmPerIn

		switch opts.Layout {
		case ports.LayoutNative:
			orientation := "P"
			if pw > ph {
				orientation = "L"
			}
			pdf.AddPageFormat(orientation, fpdf.SizeType{Wd: pw, Ht: ph})
			pdf.ImageOptions(name, 0, 0, pw, ph, false, imgOpts, 0, "")
		default:
			pdf.AddPage()
			x, y, w, h := FitA4(float64(img.Bounds().Dx()), float64(img.Bounds().Dy()))
			pdf.ImageOptions(name, x, y, w, h, false, imgOpts, 0, "")
		}

		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", pipeline.ErrEncode, i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: write pdf: %v", pipeline.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) encodePage(img image.Image, quality int) ([]byte, string, error) {
	if op, ok := img.(interface{ Opaque() bool }); ok && op.Opaque() {
		data, err := b.codec.Encode(img, pipeline.FormatJPEG, quality)
		return data, "JPG", err
	}
	data, err := b.codec.Encode(img, pipeline.FormatPNG, 0)
	return data, "PNG", err
}

// FitA4 scales a w x h image into the printable area of a portrait A4
// page, preserving aspect ratio, and centers it. Results are in mm.
func FitA4(w, h float64) (x, y, fw, fh float64) {
	availW := a4Width - 2*a4Margin
	availH := a4Height - 2*a4Margin
	scale := math.Min(availW/w, availH/h)
	fw, fh = w*scale, h*scale
	return (a4Width - fw) / 2, (a4Height - fh) / 2, fw, fh
}

// Ensure Builder implements ports.DocumentBuilder
var _ ports.DocumentBuilder = (*Builder)(nil)
