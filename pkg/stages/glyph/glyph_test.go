package glyph

import (
	"context"
	"errors"
	"image"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/user/watermark/pkg/adapters/logger"
	"github.com/user/watermark/pkg/mocks"
	"github.com/user/watermark/pkg/pipeline"
)

func TestProvider_RenderCropsToCoverage(t *testing.T) {
	r := &mocks.GlyphRasterizer{}
	p := NewProvider(r, "")

	// size = 0.1 * 200 = 20px; mock draws len("ab")*20/2 = 20 wide, 20 tall.
	m, err := p.Render("ab", 0.1, 0, 200)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if m.Width != 20 || m.Height != 20 {
		t.Errorf("expected 20x20 mask after cropping, got %dx%d", m.Width, m.Height)
	}
	for i, c := range m.Coverage {
		if c != 1 {
			t.Fatalf("expected full coverage at %d, got %v", i, c)
		}
	}
}

func TestProvider_MinimumFontSize(t *testing.T) {
	var gotSize float64
	r := &mocks.GlyphRasterizer{}
	r.RasterizeFunc = func(text, fontPath string, size float64) (*image.Alpha, error) {
		gotSize = size
		img := image.NewAlpha(image.Rect(0, 0, 1, 1))
		img.Pix[0] = 0xff
		return img, nil
	}
	if _, err := NewProvider(r, "").Render("x", 0.0001, 0, 100); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if gotSize != 1 {
		t.Errorf("expected size clamped to 1, got %v", gotSize)
	}
}

func TestProvider_EmptyCoverage(t *testing.T) {
	r := &mocks.GlyphRasterizer{}
	r.RasterizeFunc = func(text, fontPath string, size float64) (*image.Alpha, error) {
		return image.NewAlpha(image.Rect(0, 0, 10, 10)), nil
	}
	_, err := NewProvider(r, "").Render(" ", 0.1, 0, 100)
	if !errors.Is(err, pipeline.ErrInvalidGeometry) {
		t.Errorf("expected ErrInvalidGeometry, got %v", err)
	}
}

func TestProvider_RotationExpandsBounds(t *testing.T) {
	p := NewProvider(&mocks.GlyphRasterizer{}, "")
	base, err := p.Render("abcd", 0.1, 0, 100)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	rot, err := p.Render("abcd", 0.1, math.Pi/4, 100)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	diag := math.Hypot(float64(base.Width), float64(base.Height))
	wantMin := int(math.Floor(diag / math.Sqrt2))
	if rot.Width < wantMin || rot.Height < wantMin {
		t.Errorf("rotated mask %dx%d clips a %dx%d base", rot.Width, rot.Height, base.Width, base.Height)
	}
	if rot.Rotation != math.Pi/4 {
		t.Errorf("expected rotation π/4, got %v", rot.Rotation)
	}

	var total float32
	for _, c := range rot.Coverage {
		if c < 0 || c > 1 {
			t.Fatalf("coverage out of range: %v", c)
		}
		total += c
	}
	area := float32(base.Width * base.Height)
	if total < area*0.85 || total > area*1.15 {
		t.Errorf("rotation should preserve coverage mass: base %v, rotated %v", area, total)
	}
}

func TestProvider_QuarterTurnSwapsExtents(t *testing.T) {
	p := NewProvider(&mocks.GlyphRasterizer{}, "")
	base, _ := p.Render("abcd", 0.1, 0, 100)
	rot, err := p.Render("abcd", 0.1, math.Pi/2, 100)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if rot.Width < base.Height || rot.Height < base.Width {
		t.Errorf("expected at least %dx%d, got %dx%d", base.Height, base.Width, rot.Width, rot.Height)
	}
}

func TestProvider_Deterministic(t *testing.T) {
	a, err := NewProvider(&mocks.GlyphRasterizer{}, "").Render("hello", 0.05, 0.7, 400)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	b, err := NewProvider(&mocks.GlyphRasterizer{}, "").Render("hello", 0.05, 0.7, 400)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("expected bit-identical masks for identical inputs")
	}
}

func TestProvider_CachesConcurrentRenders(t *testing.T) {
	r := &mocks.GlyphRasterizer{}
	p := NewProvider(r, "")

	var wg sync.WaitGroup
	masks := make([]*pipeline.GlyphMask, 16)
	for i := range masks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := p.Render("shared", 0.05, math.Pi/4, 300)
			if err != nil {
				t.Errorf("Render failed: %v", err)
				return
			}
			masks[i] = m
		}(i)
	}
	wg.Wait()

	if n := r.Calls.Load(); n != 1 {
		t.Errorf("expected one rasterization, got %d", n)
	}
	for i := 1; i < len(masks); i++ {
		if masks[i] != masks[0] {
			t.Fatal("expected all callers to share one mask")
		}
	}
	if p.Cache().Len() != 2 {
		t.Errorf("expected base and rotated entries, got %d", p.Cache().Len())
	}
}

func TestTightBounds(t *testing.T) {
	a := image.NewAlpha(image.Rect(0, 0, 10, 10))
	a.Pix[3*a.Stride+2] = 1
	a.Pix[6*a.Stride+7] = 1
	got := TightBounds(a)
	want := image.Rect(2, 3, 8, 7)
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !TightBounds(image.NewAlpha(image.Rect(0, 0, 4, 4))).Empty() {
		t.Error("expected empty bounds for blank image")
	}
}

func TestStage_Execute(t *testing.T) {
	stage := NewStage(NewProvider(&mocks.GlyphRasterizer{}, ""), logger.NewNoop())

	result, err := stage.Execute(context.Background(), pipeline.GlyphInput{
		Text:      "mark",
		TextScale: 0.05,
		RefDim:    400,
		Placements: []pipeline.Placement{
			{X: 0, Y: 0, Rotation: math.Pi / 4},
			{X: 10, Y: 0, Rotation: -math.Pi / 4},
			{X: 20, Y: 0, Rotation: math.Pi / 4},
		},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Masks.Base == nil {
		t.Fatal("expected base mask")
	}
	if result.Masks.Len() != 2 {
		t.Errorf("expected 2 rotated masks, got %d", result.Masks.Len())
	}
	if _, ok := result.Masks.Lookup(-math.Pi / 4); !ok {
		t.Error("expected mask for -π/4")
	}
}

func TestStage_Canceled(t *testing.T) {
	stage := NewStage(NewProvider(&mocks.GlyphRasterizer{}, ""), logger.NewNoop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stage.Execute(ctx, pipeline.GlyphInput{
		Text: "mark", TextScale: 0.05, RefDim: 400,
		Placements: []pipeline.Placement{{Rotation: 1}},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestProvider_RenderFontPassesPath(t *testing.T) {
	var fonts []string
	raster := &mocks.GlyphRasterizer{}
	inner := &mocks.GlyphRasterizer{}
	raster.RasterizeFunc = func(text, fontPath string, size float64) (*image.Alpha, error) {
		fonts = append(fonts, fontPath)
		return inner.Rasterize(text, fontPath, size)
	}
	p := NewProvider(raster, "/fonts/default.ttf")

	if _, err := p.Render("A", 0.1, 0, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.RenderFont("A", "/fonts/other.ttf", 0.1, 0, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.RenderFont("A", "", 0.1, 0, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fonts) != 2 {
		t.Fatalf("expected 2 rasterizations, got %d: %v", len(fonts), fonts)
	}
	if fonts[0] != "/fonts/default.ttf" || fonts[1] != "/fonts/other.ttf" {
		t.Errorf("unexpected fonts %v", fonts)
	}
}
