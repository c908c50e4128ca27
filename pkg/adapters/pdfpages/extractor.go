// Package pdfpages rasterizes PDF pages with MuPDF through go-fitz.
package pdfpages

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// DefaultDPI renders pages at twice the PDF user-space resolution.
const DefaultDPI = 144

// Extractor implements ports.PageExtractor.
type Extractor struct{}

// New creates a new Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ExtractPages renders every page of the document at dpi (<= 0 uses
// DefaultDPI).
func (e *Extractor) ExtractPages(data []byte, dpi float64) ([]image.Image, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", pipeline.ErrDecode, err)
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%w: pdf has no pages", pipeline.ErrDecode)
	}

	pages := make([]image.Image, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, fmt.Errorf("%w: render page %d: %v", pipeline.ErrDecode, i+1, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// Ensure Extractor implements ports.PageExtractor
var _ ports.PageExtractor = (*Extractor)(nil)
