package composite

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/user/watermark/pkg/adapters/logger"
	"github.com/user/watermark/pkg/budget"
	"github.com/user/watermark/pkg/mocks"
	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// gradientMask builds a w x h mask whose coverage ramps from 0 to 1.
func gradientMask(w, h int, rotation float64) *pipeline.GlyphMask {
	m := &pipeline.GlyphMask{Width: w, Height: h, Coverage: make([]float32, w*h), Rotation: rotation}
	for i := range m.Coverage {
		m.Coverage[i] = float32(i%w) / float32(w-1)
	}
	return m
}

func solidMask(w, h int, rotation float64) *pipeline.GlyphMask {
	m := &pipeline.GlyphMask{Width: w, Height: h, Coverage: make([]float32, w*h), Rotation: rotation}
	for i := range m.Coverage {
		m.Coverage[i] = 1
	}
	return m
}

func maskSet(masks ...*pipeline.GlyphMask) *pipeline.MaskSet {
	set := pipeline.NewMaskSet(masks[0])
	for _, m := range masks {
		set.Add(m)
	}
	return set
}

func noisyBuffer(t *testing.T, w, h, channels int, seed uint64) *pipeline.PixelBuffer {
	t.Helper()
	buf, err := pipeline.NewPixelBuffer(w, h, channels)
	if err != nil {
		t.Fatalf("NewPixelBuffer failed: %v", err)
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	for i := range buf.Pix {
		buf.Pix[i] = uint8(rng.IntN(256))
	}
	return buf
}

func randomPlacements(n, w, h int, rotations []float64, seed uint64) []pipeline.Placement {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]pipeline.Placement, n)
	for i := range out {
		out[i] = pipeline.Placement{
			X:        rng.Float64() * float64(w),
			Y:        rng.Float64() * float64(h),
			Rotation: rotations[rng.IntN(len(rotations))],
			Scale:    1,
		}
	}
	return out
}

func newCPU(threads int) *CPU {
	return NewCPU(threads, budget.New(0), logger.NewNoop())
}

func newGPU(device ports.ComputeDevice) *GPU {
	return NewGPU(device, nil, logger.NewNoop())
}

func TestComposite_OpacityZeroIsIdentity(t *testing.T) {
	masks := maskSet(gradientMask(40, 12, 0), solidMask(20, 20, math.Pi/4))
	placements := randomPlacements(50, 200, 150, []float64{0, math.Pi / 4}, 1)
	ink := pipeline.Ink{Color: pipeline.RGB{R: 255}, Opacity: 0}

	backends := map[string]Compositor{
		"cpu": newCPU(4),
		"gpu": newGPU(&mocks.ComputeDevice{}),
	}
	for name, c := range backends {
		for _, ch := range []int{3, 4} {
			buf := noisyBuffer(t, 200, 150, ch, 7)
			orig := buf.Clone()
			if err := c.Composite(context.Background(), buf, placements, masks, ink); err != nil {
				t.Fatalf("%s: Composite failed: %v", name, err)
			}
			for i := range buf.Pix {
				if buf.Pix[i] != orig.Pix[i] {
					t.Fatalf("%s/%dch: byte %d changed from %d to %d", name, ch, i, orig.Pix[i], buf.Pix[i])
				}
			}
		}
	}
}

func TestComposite_FullOpacityPaintsColor(t *testing.T) {
	masks := maskSet(solidMask(10, 10, 0))
	placements := []pipeline.Placement{{X: 15, Y: 15, Scale: 1}}
	ink := pipeline.Ink{Color: pipeline.RGB{R: 12, G: 34, B: 56}, Opacity: 255}

	backends := map[string]Compositor{
		"cpu": newCPU(2),
		"gpu": newGPU(&mocks.ComputeDevice{}),
	}
	for name, c := range backends {
		buf := noisyBuffer(t, 30, 30, 4, 3)
		if err := c.Composite(context.Background(), buf, placements, masks, ink); err != nil {
			t.Fatalf("%s: Composite failed: %v", name, err)
		}
		// Mask covers [10, 20) on both axes.
		for y := 10; y < 20; y++ {
			for x := 10; x < 20; x++ {
				i := (y*30 + x) * 4
				got := buf.Pix[i : i+4]
				if got[0] != 12 || got[1] != 34 || got[2] != 56 || got[3] != 255 {
					t.Fatalf("%s: pixel (%d,%d) = %v, expected watermark color", name, x, y, got)
				}
			}
		}
	}
}

func TestComposite_CPUMatchesGPU(t *testing.T) {
	masks := maskSet(gradientMask(37, 9, 0), gradientMask(21, 21, math.Pi/4), gradientMask(9, 37, math.Pi/2))
	placements := randomPlacements(120, 320, 240, []float64{0, math.Pi / 4, math.Pi / 2}, 11)
	ink := pipeline.Ink{Color: pipeline.RGB{R: 128, G: 128, B: 128}, Opacity: 150}

	for _, ch := range []int{3, 4} {
		cpuBuf := noisyBuffer(t, 320, 240, ch, 5)
		gpuBuf := cpuBuf.Clone()

		if err := newCPU(3).Composite(context.Background(), cpuBuf, placements, masks, ink); err != nil {
			t.Fatalf("cpu: %v", err)
		}
		if err := newGPU(&mocks.ComputeDevice{}).Composite(context.Background(), gpuBuf, placements, masks, ink); err != nil {
			t.Fatalf("gpu: %v", err)
		}

		for i := range cpuBuf.Pix {
			d := int(cpuBuf.Pix[i]) - int(gpuBuf.Pix[i])
			if d < -1 || d > 1 {
				t.Fatalf("%dch: byte %d differs by %d (cpu %d, gpu %d)", ch, i, d, cpuBuf.Pix[i], gpuBuf.Pix[i])
			}
		}
	}
}

func TestCPU_DeterministicAcrossThreadCounts(t *testing.T) {
	masks := maskSet(gradientMask(60, 15, 0), gradientMask(30, 30, 1.0))
	// Dense overlapping placements.
	placements := randomPlacements(400, 256, 192, []float64{0, 1.0}, 99)
	ink := pipeline.Ink{Color: pipeline.RGB{R: 200, G: 10, B: 90}, Opacity: 180}

	ref := noisyBuffer(t, 256, 192, 4, 1)
	if err := newCPU(1).Composite(context.Background(), ref, placements, masks, ink); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	for _, threads := range []int{2, 3, 7, 64, 500} {
		buf := noisyBuffer(t, 256, 192, 4, 1)
		if err := newCPU(threads).Composite(context.Background(), buf, placements, masks, ink); err != nil {
			t.Fatalf("threads=%d: Composite failed: %v", threads, err)
		}
		for i := range buf.Pix {
			if buf.Pix[i] != ref.Pix[i] {
				t.Fatalf("threads=%d: byte %d differs from single-threaded result", threads, i)
			}
		}
	}
}

func TestCPU_AlphaChannel(t *testing.T) {
	masks := maskSet(solidMask(1, 1, 0))
	buf, _ := pipeline.NewPixelBuffer(1, 1, 4) // fully transparent black
	ink := pipeline.Ink{Color: pipeline.RGB{R: 100, G: 100, B: 100}, Opacity: 128}

	if err := newCPU(1).Composite(context.Background(), buf, []pipeline.Placement{{X: 0.5, Y: 0.5}}, masks, ink); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	// a = 128/255; alpha = a*255 = 128, color = 100*a ≈ 50.
	if buf.Pix[3] != 128 {
		t.Errorf("expected alpha 128, got %d", buf.Pix[3])
	}
	if buf.Pix[0] != 50 {
		t.Errorf("expected red 50, got %d", buf.Pix[0])
	}
}

func TestCPU_ClipsAtCanvasEdges(t *testing.T) {
	masks := maskSet(solidMask(10, 10, 0))
	placements := []pipeline.Placement{
		{X: 0, Y: 0},
		{X: 20, Y: 20},
		{X: -100, Y: -100}, // entirely outside
	}
	buf := noisyBuffer(t, 20, 20, 3, 2)
	ink := pipeline.Ink{Color: pipeline.RGB{}, Opacity: 255}

	if err := newCPU(4).Composite(context.Background(), buf, placements, masks, ink); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if buf.Pix[0] != 0 || buf.Pix[(19*20+19)*3] != 0 {
		t.Error("expected corners covered by clipped stamps")
	}
}

func TestComposite_MissingMask(t *testing.T) {
	masks := maskSet(solidMask(4, 4, 0))
	buf := noisyBuffer(t, 10, 10, 3, 1)
	err := newCPU(1).Composite(context.Background(), buf, []pipeline.Placement{{X: 5, Y: 5, Rotation: 2}}, masks, pipeline.Ink{Opacity: 255})
	if err == nil {
		t.Error("expected error for placement without a mask")
	}
}

func TestCPU_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	masks := maskSet(solidMask(4, 4, 0))
	buf := noisyBuffer(t, 10, 10, 3, 1)
	err := newCPU(2).Composite(ctx, buf, []pipeline.Placement{{X: 5, Y: 5}}, masks, pipeline.Ink{Opacity: 255})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSplitBands(t *testing.T) {
	bands := splitBands(10, 3)
	if len(bands) != 3 {
		t.Fatalf("expected 3 bands, got %d", len(bands))
	}
	if bands[0] != (band{0, 4}) || bands[2] != (band{8, 10}) {
		t.Errorf("unexpected bands: %+v", bands)
	}
	if got := splitBands(2, 8); len(got) != 2 {
		t.Errorf("expected bands capped at height, got %d", len(got))
	}
}

func TestGPU_ChunksLargeBuffers(t *testing.T) {
	masks := maskSet(gradientMask(30, 30, 0))
	placements := randomPlacements(60, 100, 100, []float64{0}, 4)
	ink := pipeline.Ink{Color: pipeline.RGB{G: 255}, Opacity: 200}

	whole := noisyBuffer(t, 100, 100, 3, 8)
	chunked := whole.Clone()

	if err := newGPU(&mocks.ComputeDevice{}).Composite(context.Background(), whole, placements, masks, ink); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}

	// 16 rows of 400 bytes per binding.
	device := &mocks.ComputeDevice{MaxStorage: 16 * 100 * 4}
	if err := newGPU(device).Composite(context.Background(), chunked, placements, masks, ink); err != nil {
		t.Fatalf("Composite failed: %v", err)
	}
	if device.DispatchCount() < 2 {
		t.Errorf("expected multiple dispatches, got %d", device.DispatchCount())
	}
	for _, d := range device.Dispatches {
		if d.Height > 16 {
			t.Errorf("dispatch of %d rows exceeds chunk size", d.Height)
		}
	}
	for i := range whole.Pix {
		if whole.Pix[i] != chunked.Pix[i] {
			t.Fatalf("byte %d differs between chunked and whole dispatch", i)
		}
	}
}

func TestGPU_SerializesSubmissions(t *testing.T) {
	device := &mocks.ComputeDevice{}
	device.BlendFunc = func(ctx context.Context, d *ports.BlendDispatch) error {
		for i := 0; i < 1000; i++ {
			_ = math.Sqrt(float64(i))
		}
		return nil
	}
	gpu := newGPU(device)
	masks := maskSet(solidMask(4, 4, 0))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := noisyBuffer(t, 16, 16, 3, 1)
			if err := gpu.Composite(context.Background(), buf, []pipeline.Placement{{X: 8, Y: 8}}, masks, pipeline.Ink{Opacity: 255}); err != nil {
				t.Errorf("Composite failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if device.Overlapped.Load() {
		t.Error("expected device submissions to be serialized")
	}
	if device.DispatchCount() != 8 {
		t.Errorf("expected 8 dispatches, got %d", device.DispatchCount())
	}
}

func TestGPU_FailureLeavesBufferUntouched(t *testing.T) {
	device := &mocks.ComputeDevice{
		BlendFunc: func(ctx context.Context, d *ports.BlendDispatch) error {
			for i := range d.Pixels {
				d.Pixels[i] = 0
			}
			return errors.New("device lost")
		},
	}
	buf := noisyBuffer(t, 8, 8, 3, 1)
	orig := buf.Clone()
	err := newGPU(device).Composite(context.Background(), buf, []pipeline.Placement{{X: 4, Y: 4}}, maskSet(solidMask(2, 2, 0)), pipeline.Ink{Opacity: 255})
	if err == nil {
		t.Fatal("expected error")
	}
	for i := range buf.Pix {
		if buf.Pix[i] != orig.Pix[i] {
			t.Fatal("expected buffer untouched after failed dispatch")
		}
	}
}

func TestPackUnpackPixels(t *testing.T) {
	buf := noisyBuffer(t, 5, 3, 4, 12)
	packed := PackPixels(buf)
	if packed[0]&0xff != uint32(buf.Pix[0]) || packed[0]>>24 != uint32(buf.Pix[3]) {
		t.Errorf("unexpected packing of first pixel: %08x", packed[0])
	}
	out := &pipeline.PixelBuffer{Width: 5, Height: 3, Channels: 4, Pix: make([]uint8, len(buf.Pix))}
	UnpackPixels(packed, out)
	for i := range buf.Pix {
		if buf.Pix[i] != out.Pix[i] {
			t.Fatalf("byte %d: expected %d, got %d", i, buf.Pix[i], out.Pix[i])
		}
	}

	rgb := noisyBuffer(t, 2, 2, 3, 1)
	if PackPixels(rgb)[0]>>24 != 0xff {
		t.Error("expected opaque alpha for 3-channel buffers")
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		directive Directive
		pixels    int
		available bool
		want      BackendKind
		wantErr   bool
	}{
		{DirectiveOff, 4096 * 4096, true, BackendCPU, false},
		{DirectiveOn, 10, true, BackendGPU, false},
		{DirectiveOn, 4096 * 4096, false, BackendCPU, true},
		{DirectiveAuto, GPUThreshold, true, BackendGPU, false},
		{DirectiveAuto, GPUThreshold - 1, true, BackendCPU, false},
		{DirectiveAuto, 4096 * 4096, false, BackendCPU, false},
	}
	for _, tt := range tests {
		got, err := Select(tt.directive, tt.pixels, tt.available)
		if tt.wantErr {
			if !errors.Is(err, pipeline.ErrDeviceUnavailable) {
				t.Errorf("Select(%s, %d, %v): expected ErrDeviceUnavailable, got %v", tt.directive, tt.pixels, tt.available, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Select(%s, %d, %v): expected %s, got %s (%v)", tt.directive, tt.pixels, tt.available, tt.want, got, err)
		}
	}
}

func TestParseDirective(t *testing.T) {
	for in, want := range map[string]Directive{"": DirectiveAuto, "AUTO": DirectiveAuto, "on": DirectiveOn, "off": DirectiveOff, "false": DirectiveOff} {
		got, err := ParseDirective(in)
		if err != nil || got != want {
			t.Errorf("ParseDirective(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseDirective("maybe"); err == nil {
		t.Error("expected error for unknown directive")
	}
}

func noDevice() (ports.ComputeDevice, error) {
	return nil, pipeline.ErrDeviceUnavailable
}

func TestSelector_OnWithoutDeviceFails(t *testing.T) {
	s := NewSelector(SelectorConfig{Directive: DirectiveOn, Probe: noDevice, Logger: logger.NewNoop()})
	_, err := s.Select(1 << 20)
	if !errors.Is(err, pipeline.ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestSelector_OnWithFallback(t *testing.T) {
	log := mocks.NewLogger()
	s := NewSelector(SelectorConfig{Directive: DirectiveOn, AllowFallback: true, Threads: 3, Probe: noDevice, Logger: log})
	choice, err := s.Select(1 << 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if choice.Kind != BackendCPU || choice.Threads != 3 {
		t.Errorf("expected cpu/3, got %s/%d", choice.Kind, choice.Threads)
	}
	if len(log.Entries(ports.LevelWarn)) != 1 {
		t.Errorf("expected one warning, got %v", log.Entries(ports.LevelWarn))
	}
}

func TestSelector_ProbesOnce(t *testing.T) {
	var probes atomic.Int32
	device := &mocks.ComputeDevice{}
	s := NewSelector(SelectorConfig{
		Directive: DirectiveAuto,
		Probe: func() (ports.ComputeDevice, error) {
			probes.Add(1)
			return device, nil
		},
		Logger: logger.NewNoop(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Select(1024 * 1024); err != nil {
				t.Errorf("Select failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if probes.Load() != 1 {
		t.Errorf("expected one probe, got %d", probes.Load())
	}

	big, _ := s.Select(1024 * 1024)
	small, _ := s.Select(64 * 64)
	if big.Kind != BackendGPU || big.Threads != 1 {
		t.Errorf("expected gpu/1 for large image, got %s/%d", big.Kind, big.Threads)
	}
	if small.Kind != BackendCPU {
		t.Errorf("expected cpu for small image, got %s", small.Kind)
	}

	if err := s.Close(); err != nil || !device.Closed {
		t.Errorf("expected device closed, err=%v", err)
	}
}

func TestSelector_OffNeverProbes(t *testing.T) {
	s := NewSelector(SelectorConfig{
		Directive: DirectiveOff,
		Probe: func() (ports.ComputeDevice, error) {
			t.Error("probe should not run when the GPU is off")
			return nil, nil
		},
		Logger: logger.NewNoop(),
	})
	choice, err := s.Select(4096 * 4096)
	if err != nil || choice.Kind != BackendCPU {
		t.Errorf("expected cpu, got %s (%v)", choice.Kind, err)
	}
}

func TestStage_FallsBackToCPUOnGPUFailure(t *testing.T) {
	device := &mocks.ComputeDevice{
		BlendFunc: func(ctx context.Context, d *ports.BlendDispatch) error {
			return errors.New("out of device memory")
		},
	}
	log := mocks.NewLogger()
	sel := NewSelector(SelectorConfig{
		Directive: DirectiveAuto,
		Probe:     func() (ports.ComputeDevice, error) { return device, nil },
		Logger:    log,
	})
	stage := NewStage(sel, 2, log)

	buf := noisyBuffer(t, 600, 600, 3, 1)
	result, err := stage.Execute(context.Background(), pipeline.CompositeInput{
		Buffer:     buf,
		Placements: []pipeline.Placement{{X: 300, Y: 300}},
		Masks:      maskSet(solidMask(10, 10, 0)),
		Ink:        pipeline.Ink{Color: pipeline.RGB{R: 1, G: 2, B: 3}, Opacity: 255},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Backend != "cpu" {
		t.Errorf("expected cpu backend after fallback, got %s", result.Backend)
	}
	i := (300*600 + 300) * 3
	if buf.Pix[i] != 1 || buf.Pix[i+1] != 2 || buf.Pix[i+2] != 3 {
		t.Errorf("expected blended pixel, got %v", buf.Pix[i:i+3])
	}
	if len(log.Entries(ports.LevelWarn)) == 0 {
		t.Error("expected a fallback warning")
	}
}

func TestStage_ForcedGPUFailureSurfaces(t *testing.T) {
	device := &mocks.ComputeDevice{
		BlendFunc: func(ctx context.Context, d *ports.BlendDispatch) error {
			return errors.New("device lost")
		},
	}
	sel := NewSelector(SelectorConfig{
		Directive: DirectiveOn,
		Probe:     func() (ports.ComputeDevice, error) { return device, nil },
		Logger:    logger.NewNoop(),
	})
	stage := NewStage(sel, 0, logger.NewNoop())

	_, err := stage.Execute(context.Background(), pipeline.CompositeInput{
		Buffer:     noisyBuffer(t, 10, 10, 3, 1),
		Placements: []pipeline.Placement{{X: 5, Y: 5}},
		Masks:      maskSet(solidMask(2, 2, 0)),
		Ink:        pipeline.Ink{Opacity: 255},
	})
	if err == nil {
		t.Error("expected forced GPU failure to surface")
	}
}
