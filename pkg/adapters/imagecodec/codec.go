// Package imagecodec decodes and encodes JPEG, PNG and WebP images.
package imagecodec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	xwebp "golang.org/x/image/webp"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// DefaultQuality is the JPEG quality used when none is given.
const DefaultQuality = 90

// Codec implements ports.ImageCodec.
// WebP is decoded with the pure-Go x/image decoder and encoded losslessly
// with libwebp.
type Codec struct {
	pngEncoder png.Encoder
}

// New creates a new Codec.
func New() *Codec {
	return &Codec{pngEncoder: png.Encoder{CompressionLevel: png.DefaultCompression}}
}

// Sniff detects the container of data from its magic bytes.
func Sniff(data []byte) (pipeline.Format, error) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return pipeline.FormatJPEG, nil
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return pipeline.FormatPNG, nil
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return pipeline.FormatWebP, nil
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return pipeline.FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: unrecognized file signature", pipeline.ErrUnsupportedFormat)
	}
}

// Decode decodes data. The content signature wins over the format hint,
// so a mislabeled file still decodes.
func (c *Codec) Decode(data []byte, format pipeline.Format) (image.Image, error) {
	sniffed, err := Sniff(data)
	if err != nil {
		if format == "" {
			return nil, err
		}
		// Truncated or corrupt data of a known type is a decode error.
		return nil, fmt.Errorf("%w: %s: %v", pipeline.ErrDecode, format, err)
	}

	var img image.Image
	r := bytes.NewReader(data)
	switch sniffed {
	case pipeline.FormatJPEG:
		img, err = jpeg.Decode(r)
	case pipeline.FormatPNG:
		img, err = png.Decode(r)
	case pipeline.FormatWebP:
		img, err = xwebp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s is not a raster image", pipeline.ErrUnsupportedFormat, sniffed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pipeline.ErrDecode, sniffed, err)
	}
	return img, nil
}

// Encode encodes img. quality applies to JPEG only; <= 0 uses DefaultQuality.
func (c *Codec) Encode(img image.Image, format pipeline.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case pipeline.FormatJPEG:
		if quality <= 0 {
			quality = DefaultQuality
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: min(quality, 100)})
	case pipeline.FormatPNG:
		err = c.pngEncoder.Encode(&buf, img)
	case pipeline.FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Lossless: true})
	default:
		return nil, fmt.Errorf("%w: cannot encode %q", pipeline.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", pipeline.ErrEncode, format, err)
	}
	return buf.Bytes(), nil
}

// Ensure Codec implements ports.ImageCodec
var _ ports.ImageCodec = (*Codec)(nil)
