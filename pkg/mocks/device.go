package mocks

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/user/watermark/pkg/ports"
)

// ComputeDevice is a fake GPU. Unless BlendFunc is set it runs the blend
// kernel on the CPU with float32 arithmetic, as the shader does.
type ComputeDevice struct {
	BlendFunc func(ctx context.Context, d *ports.BlendDispatch) error

	MaxStorage uint64

	mu         sync.Mutex
	inFlight   atomic.Int32
	Overlapped atomic.Bool // set when two Blend calls ran concurrently
	Dispatches []DispatchRecord
	Closed     bool
}

// DispatchRecord captures the shape of one Blend call.
type DispatchRecord struct {
	Width  int
	Height int
	Stamps int
}

func (m *ComputeDevice) Name() string {
	return "mock device"
}

func (m *ComputeDevice) MaxStorageBufferBytes() uint64 {
	if m.MaxStorage == 0 {
		return 128 << 20
	}
	return m.MaxStorage
}

func (m *ComputeDevice) Blend(ctx context.Context, d *ports.BlendDispatch) error {
	if m.inFlight.Add(1) > 1 {
		m.Overlapped.Store(true)
	}
	defer m.inFlight.Add(-1)

	m.mu.Lock()
	m.Dispatches = append(m.Dispatches, DispatchRecord{Width: d.Width, Height: d.Height, Stamps: len(d.Stamps)})
	m.mu.Unlock()

	if m.BlendFunc != nil {
		return m.BlendFunc(ctx, d)
	}

	color := [3]float32{float32(d.R), float32(d.G), float32(d.B)}
	opacity := float32(d.Opacity) / 255
	for _, s := range d.Stamps {
		for my := 0; my < int(s.Height); my++ {
			y := int(s.Y0) + my
			if y < 0 || y >= d.Height {
				continue
			}
			for mx := 0; mx < int(s.Width); mx++ {
				x := int(s.X0) + mx
				if x < 0 || x >= d.Width {
					continue
				}
				a := d.Atlas[int(s.Offset)+my*int(s.Width)+mx] * opacity
				if a <= 0 {
					continue
				}
				i := y*d.Width + x
				px := d.Pixels[i]
				var out uint32
				for c := 0; c < 3; c++ {
					dst := float32((px >> (8 * c)) & 0xff)
					v := color[c]*a + dst*(1-a)
					out |= uint32(math.Floor(float64(v)+0.5)) << (8 * c)
				}
				dstA := float32(px >> 24)
				outA := uint32(math.Floor(float64(a*255+dstA*(1-a)) + 0.5))
				d.Pixels[i] = out | outA<<24
			}
		}
	}
	return nil
}

func (m *ComputeDevice) Close() error {
	m.Closed = true
	return nil
}

// DispatchCount returns the number of Blend calls so far.
func (m *ComputeDevice) DispatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Dispatches)
}

var _ ports.ComputeDevice = (*ComputeDevice)(nil)
