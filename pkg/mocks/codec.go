package mocks

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync/atomic"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// ImageCodec is a mock implementation of ports.ImageCodec. By default it
// round-trips through PNG regardless of the requested format.
type ImageCodec struct {
	DecodeFunc func(data []byte, format pipeline.Format) (image.Image, error)
	EncodeFunc func(img image.Image, format pipeline.Format, quality int) ([]byte, error)

	EncodeCalls atomic.Int32
}

func (m *ImageCodec) Decode(data []byte, format pipeline.Format) (image.Image, error) {
	if m.DecodeFunc != nil {
		return m.DecodeFunc(data, format)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrDecode, err)
	}
	return img, nil
}

func (m *ImageCodec) Encode(img image.Image, format pipeline.Format, quality int) ([]byte, error) {
	m.EncodeCalls.Add(1)
	if m.EncodeFunc != nil {
		return m.EncodeFunc(img, format, quality)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

var _ ports.ImageCodec = (*ImageCodec)(nil)

// PageExtractor is a mock implementation of ports.PageExtractor.
type PageExtractor struct {
	ExtractPagesFunc func(data []byte, dpi float64) ([]image.Image, error)
}

func (m *PageExtractor) ExtractPages(data []byte, dpi float64) ([]image.Image, error) {
	if m.ExtractPagesFunc != nil {
		return m.ExtractPagesFunc(data, dpi)
	}
	return []image.Image{image.NewNRGBA(image.Rect(0, 0, 60, 80))}, nil
}

var _ ports.PageExtractor = (*PageExtractor)(nil)

// DocumentBuilder is a mock implementation of ports.DocumentBuilder.
type DocumentBuilder struct {
	BuildFunc func(pages []image.Image, opts ports.DocumentOptions) ([]byte, error)

	Pages   []image.Image
	Options ports.DocumentOptions
}

func (m *DocumentBuilder) Build(pages []image.Image, opts ports.DocumentOptions) ([]byte, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(pages, opts)
	}
	m.Pages = pages
	m.Options = opts
	return []byte("%PDF-1.4 mock"), nil
}

var _ ports.DocumentBuilder = (*DocumentBuilder)(nil)
