// Package decode implements the input stage: it reads a file and turns it
// into one pixel buffer per page.
package decode

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// DefaultPDFDPI rasterizes PDF pages at twice the 72 DPI page space.
const DefaultPDFDPI = 144

// Stage decodes image files and PDF documents.
type Stage struct {
	fs     ports.FileSystem
	codec  ports.ImageCodec
	pages  ports.PageExtractor
	dpi    float64
	logger ports.Logger
}

// NewStage creates a decode stage. A dpi of zero selects DefaultPDFDPI.
func NewStage(fs ports.FileSystem, codec ports.ImageCodec, pages ports.PageExtractor, dpi float64, logger ports.Logger) *Stage {
	if dpi <= 0 {
		dpi = DefaultPDFDPI
	}
	return &Stage{
		fs:     fs,
		codec:  codec,
		pages:  pages,
		dpi:    dpi,
		logger: logger.WithComponent("decode"),
	}
}

// Execute reads input.Path. The extension decides between the raster and
// PDF paths; for rasters the codec sniffs the actual container and the
// extension only classifies unreadable data as corrupt.
func (s *Stage) Execute(ctx context.Context, input pipeline.DecodeInput) (pipeline.DecodeResult, error) {
	result := pipeline.DecodeResult{}

	format, err := pipeline.FormatFromExt(filepath.Ext(input.Path))
	if err != nil {
		return result, err
	}

	data, err := s.fs.ReadFile(input.Path)
	if err != nil {
		return result, fmt.Errorf("read %s: %w", input.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	if format == pipeline.FormatPDF {
		return s.decodePDF(ctx, input.Path, data)
	}

	img, err := s.codec.Decode(data, format)
	if err != nil {
		return result, fmt.Errorf("decode %s: %w", input.Path, err)
	}
	buf, err := pipeline.FromImage(img)
	if err != nil {
		return result, fmt.Errorf("decode %s: %w", input.Path, err)
	}

	result.Format = format
	result.Pages = []*pipeline.PixelBuffer{buf}
	s.logger.Debug("Decoded %s: %dx%d, %d channels", input.Path, buf.Width, buf.Height, buf.Channels)
	return result, nil
}

func (s *Stage) decodePDF(ctx context.Context, path string, data []byte) (pipeline.DecodeResult, error) {
	result := pipeline.DecodeResult{Format: pipeline.FormatPDF}

	images, err := s.pages.ExtractPages(data, s.dpi)
	if err != nil {
		return result, fmt.Errorf("extract pages of %s: %w", path, err)
	}
	if len(images) == 0 {
		return result, fmt.Errorf("%w: %s has no pages", pipeline.ErrDecode, path)
	}

	result.Pages = make([]*pipeline.PixelBuffer, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		buf, err := pipeline.FromImage(img)
		if err != nil {
			return result, fmt.Errorf("page %d of %s: %w", i+1, path, err)
		}
		result.Pages = append(result.Pages, buf)
	}

	s.logger.Debug("Decoded %s: %d pages at %.0f DPI", path, len(result.Pages), s.dpi)
	return result, nil
}

var _ pipeline.Stage[pipeline.DecodeInput, pipeline.DecodeResult] = (*Stage)(nil)
