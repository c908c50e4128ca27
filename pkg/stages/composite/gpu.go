package composite

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// GPU blends on a ComputeDevice. All submissions to the device go through
// one mutex, so concurrent jobs queue instead of racing in the driver.
type GPU struct {
	device ports.ComputeDevice
	mu     *sync.Mutex
	logger ports.Logger
}

// NewGPU creates a GPU compositor. mu guards the device and must be shared
// by every compositor that uses the same device.
func NewGPU(device ports.ComputeDevice, mu *sync.Mutex, logger ports.Logger) *GPU {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &GPU{
		device: device,
		mu:     mu,
		logger: logger.WithComponent("gpu"),
	}
}

// Composite implements Compositor.
func (g *GPU) Composite(ctx context.Context, buf *pipeline.PixelBuffer, placements []pipeline.Placement, masks *pipeline.MaskSet, ink pipeline.Ink) error {
	if ink.Opacity == 0 || len(placements) == 0 {
		return nil
	}
	stamps, err := resolveStamps(buf.Width, buf.Height, placements, masks)
	if err != nil {
		return err
	}
	if len(stamps) == 0 {
		return nil
	}

	atlas, offsets := buildAtlas(stamps)
	if uint64(len(atlas))*4 > g.device.MaxStorageBufferBytes() {
		return fmt.Errorf("glyph atlas of %d texels exceeds max storage binding", len(atlas))
	}
	pixels := PackPixels(buf)

	rowBytes := uint64(buf.Width) * 4
	rowsPerChunk := int(g.device.MaxStorageBufferBytes() / rowBytes)
	if rowsPerChunk < 1 {
		return fmt.Errorf("%w: row of %d bytes exceeds max storage binding", pipeline.ErrDeviceUnavailable, rowBytes)
	}

	chunks := 0
	for y0 := 0; y0 < buf.Height; y0 += rowsPerChunk {
		y1 := min(y0+rowsPerChunk, buf.Height)

		var chunkStamps []ports.Stamp
		for _, s := range stamps {
			if s.y1() <= y0 || s.y0 >= y1 {
				continue
			}
			chunkStamps = append(chunkStamps, ports.Stamp{
				X0:     int32(s.x0),
				Y0:     int32(s.y0 - y0),
				Offset: offsets[s.mask],
				Width:  uint32(s.mask.Width),
				Height: uint32(s.mask.Height),
			})
		}
		if len(chunkStamps) == 0 {
			continue
		}

		d := &ports.BlendDispatch{
			Width:   buf.Width,
			Height:  y1 - y0,
			Pixels:  pixels[y0*buf.Width : y1*buf.Width],
			Atlas:   atlas,
			Stamps:  chunkStamps,
			R:       ink.Color.R,
			G:       ink.Color.G,
			B:       ink.Color.B,
			Opacity: ink.Opacity,
		}
		if err := g.submit(ctx, d); err != nil {
			return fmt.Errorf("blend rows %d-%d: %w", y0, y1, err)
		}
		chunks++
	}

	g.logger.Debug("Blended %d placements in %d dispatches on %s", len(stamps), chunks, g.device.Name())
	UnpackPixels(pixels, buf)
	return nil
}

func (g *GPU) submit(ctx context.Context, d *ports.BlendDispatch) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device.Blend(ctx, d)
}

// buildAtlas concatenates the distinct masks used by stamps in first-use
// order and returns each mask's texel offset.
func buildAtlas(stamps []stamp) ([]float32, map[*pipeline.GlyphMask]uint32) {
	offsets := make(map[*pipeline.GlyphMask]uint32)
	var atlas []float32
	for _, s := range stamps {
		if _, ok := offsets[s.mask]; ok {
			continue
		}
		offsets[s.mask] = uint32(len(atlas))
		atlas = append(atlas, s.mask.Coverage...)
	}
	return atlas, offsets
}

// PackPixels packs buf into little-endian RGBA words. 3-channel buffers
// are packed with opaque alpha.
func PackPixels(buf *pipeline.PixelBuffer) []uint32 {
	out := make([]uint32, buf.Width*buf.Height)
	ch := buf.Channels
	for i := range out {
		p := buf.Pix[i*ch : i*ch+ch]
		a := uint32(0xff)
		if ch == 4 {
			a = uint32(p[3])
		}
		out[i] = uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16 | a<<24
	}
	return out
}

// UnpackPixels writes packed RGBA words back into buf.
func UnpackPixels(src []uint32, buf *pipeline.PixelBuffer) {
	ch := buf.Channels
	for i, v := range src {
		p := buf.Pix[i*ch : i*ch+ch]
		p[0] = uint8(v)
		p[1] = uint8(v >> 8)
		p[2] = uint8(v >> 16)
		if ch == 4 {
			p[3] = uint8(v >> 24)
		}
	}
}

var _ Compositor = (*GPU)(nil)
