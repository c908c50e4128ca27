// Package encode implements the output stage: watermarked pages become
// image bytes or a PDF document.
package encode

import (
	"context"
	"fmt"
	"image"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// Stage encodes pages in memory. Nothing is written to disk here.
type Stage struct {
	codec  ports.ImageCodec
	docs   ports.DocumentBuilder
	dpi    float64
	logger ports.Logger
}

// NewStage creates a new encode stage. dpi is the resolution PDF pages
// were rasterized at and sizes reassembled PDF pages.
func NewStage(codec ports.ImageCodec, docs ports.DocumentBuilder, dpi float64, logger ports.Logger) *Stage {
	return &Stage{
		codec:  codec,
		docs:   docs,
		dpi:    dpi,
		logger: logger.WithComponent("encode"),
	}
}

// Execute encodes input.Pages into input.Format.
func (s *Stage) Execute(ctx context.Context, input pipeline.EncodeInput) (pipeline.EncodeResult, error) {
	result := pipeline.EncodeResult{}

	if len(input.Pages) == 0 {
		return result, fmt.Errorf("%w: no pages to encode", pipeline.ErrEncode)
	}
	quality := input.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	if input.Format == pipeline.FormatPDF {
		return s.encodeDocument(ctx, input, quality)
	}

	if len(input.Pages) > 1 {
		return result, fmt.Errorf("%w: %d pages cannot be written as %s", pipeline.ErrUnsupportedFormat, len(input.Pages), input.Format)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	data, err := s.codec.Encode(input.Pages[0].ToImage(), input.Format, quality)
	if err != nil {
		return result, fmt.Errorf("encode %s: %w", input.Format, err)
	}

	result.Data = data
	s.logger.Debug("Encoded %s: %d bytes", input.Format, len(data))
	return result, nil
}

func (s *Stage) encodeDocument(ctx context.Context, input pipeline.EncodeInput, quality int) (pipeline.EncodeResult, error) {
	result := pipeline.EncodeResult{}

	images := make([]image.Image, 0, len(input.Pages))
	for _, page := range input.Pages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		images = append(images, page.ToImage())
	}

	opts := ports.DocumentOptions{
		Layout:  ports.LayoutA4,
		DPI:     s.dpi,
		Quality: quality,
		Title:   input.Title,
	}
	// Rasterized PDF pages go back at their original size.
	if input.Source == pipeline.FormatPDF {
		opts.Layout = ports.LayoutNative
	}

	data, err := s.docs.Build(images, opts)
	if err != nil {
		return result, fmt.Errorf("build pdf: %w", err)
	}

	result.Data = data
	s.logger.Debug("Built PDF: %d pages, %d bytes", len(images), len(data))
	return result, nil
}

var _ pipeline.Stage[pipeline.EncodeInput, pipeline.EncodeResult] = (*Stage)(nil)
