package pipeline

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// PixelBuffer is a row-major 8-bit image with 3 (RGB) or 4 (RGBA,
// straight alpha) channels. A buffer is owned by exactly one job.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewPixelBuffer allocates a zeroed buffer.
func NewPixelBuffer(width, height, channels int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: buffer %dx%d", ErrInvalidGeometry, width, height)
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidGeometry, channels)
	}
	return &PixelBuffer{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]uint8, width*height*channels),
	}, nil
}

// Stride returns the number of bytes per row.
func (b *PixelBuffer) Stride() int {
	return b.Width * b.Channels
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &PixelBuffer{Width: b.Width, Height: b.Height, Channels: b.Channels, Pix: pix}
}

// Dimension returns the buffer size.
func (b *PixelBuffer) Dimension() Dimension {
	return Dimension{Width: b.Width, Height: b.Height}
}

// FromImage converts img into a buffer. Opaque images become 3-channel
// buffers, everything else keeps its alpha in a 4-channel buffer.
func FromImage(img image.Image) (*PixelBuffer, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) || nrgba.Stride != w*4 {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)
	}

	channels := 4
	if op, ok := img.(interface{ Opaque() bool }); ok && op.Opaque() {
		channels = 3
	}

	buf, err := NewPixelBuffer(w, h, channels)
	if err != nil {
		return nil, err
	}
	if channels == 4 {
		copy(buf.Pix, nrgba.Pix)
		return buf, nil
	}
	for i, j := 0, 0; i < len(nrgba.Pix); i, j = i+4, j+3 {
		buf.Pix[j] = nrgba.Pix[i]
		buf.Pix[j+1] = nrgba.Pix[i+1]
		buf.Pix[j+2] = nrgba.Pix[i+2]
	}
	return buf, nil
}

// ToImage returns the buffer as an *image.NRGBA.
func (b *PixelBuffer) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	if b.Channels == 4 {
		copy(img.Pix, b.Pix)
		return img
	}
	for i, j := 0, 0; j < len(b.Pix); i, j = i+4, j+3 {
		img.Pix[i] = b.Pix[j]
		img.Pix[i+1] = b.Pix[j+1]
		img.Pix[i+2] = b.Pix[j+2]
		img.Pix[i+3] = 0xff
	}
	return img
}
