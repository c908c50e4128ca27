// Package composite blends glyph masks onto pixel buffers on the CPU or a GPU.
package composite

import (
	"context"
	"fmt"
	"math"

	"github.com/user/watermark/pkg/pipeline"
)

// Compositor blends every placement's mask into buf in place.
type Compositor interface {
	Composite(ctx context.Context, buf *pipeline.PixelBuffer, placements []pipeline.Placement, masks *pipeline.MaskSet, ink pipeline.Ink) error
}

// BackendKind names an execution strategy.
type BackendKind int

const (
	BackendCPU BackendKind = iota
	BackendGPU
)

// String returns the string representation of the backend.
func (k BackendKind) String() string {
	if k == BackendGPU {
		return "gpu"
	}
	return "cpu"
}

// BackendChoice is the resolved backend and its thread count.
type BackendChoice struct {
	Kind    BackendKind
	Threads int
}

// stamp is a placement resolved to integer canvas coordinates.
type stamp struct {
	x0, y0 int
	mask   *pipeline.GlyphMask
}

func (s stamp) x1() int { return s.x0 + s.mask.Width }
func (s stamp) y1() int { return s.y0 + s.mask.Height }

// resolveStamps centers each placement's mask on the placement and drops
// stamps that miss the canvas entirely.
func resolveStamps(width, height int, placements []pipeline.Placement, masks *pipeline.MaskSet) ([]stamp, error) {
	out := make([]stamp, 0, len(placements))
	for i, p := range placements {
		m, ok := masks.Lookup(p.Rotation)
		if !ok {
			return nil, fmt.Errorf("placement %d: no mask for rotation %.6f", i, p.Rotation)
		}
		s := stamp{
			x0:   int(math.Floor(p.X - float64(m.Width)/2 + 0.5)),
			y0:   int(math.Floor(p.Y - float64(m.Height)/2 + 0.5)),
			mask: m,
		}
		if s.x1() <= 0 || s.y1() <= 0 || s.x0 >= width || s.y0 >= height {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// blendChannel computes round(src*a + dst*(1-a)).
func blendChannel(src, dst uint8, a float32) uint8 {
	v := float32(src)*a + float32(dst)*(1-a)
	return uint8(math.Floor(float64(v) + 0.5))
}

// blendAlpha computes the output alpha of a straight-alpha "over".
func blendAlpha(dst uint8, a float32) uint8 {
	v := a*255 + float32(dst)*(1-a)
	return uint8(math.Floor(float64(v) + 0.5))
}

// blendRows blends s into rows [y0, y1) of buf.
func blendRows(buf *pipeline.PixelBuffer, s stamp, y0, y1 int, ink pipeline.Ink) {
	opacity := float32(ink.Opacity) / 255
	ch := buf.Channels
	stride := buf.Stride()

	top := max(y0, s.y0)
	bottom := min(y1, s.y1())
	left := max(0, s.x0)
	right := min(buf.Width, s.x1())

	for y := top; y < bottom; y++ {
		mrow := (y - s.y0) * s.mask.Width
		row := y * stride
		for x := left; x < right; x++ {
			a := s.mask.Coverage[mrow+x-s.x0] * opacity
			if a <= 0 {
				continue
			}
			i := row + x*ch
			buf.Pix[i] = blendChannel(ink.Color.R, buf.Pix[i], a)
			buf.Pix[i+1] = blendChannel(ink.Color.G, buf.Pix[i+1], a)
			buf.Pix[i+2] = blendChannel(ink.Color.B, buf.Pix[i+2], a)
			if ch == 4 {
				buf.Pix[i+3] = blendAlpha(buf.Pix[i+3], a)
			}
		}
	}
}
