package decode

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/user/watermark/pkg/adapters/logger"
	"github.com/user/watermark/pkg/mocks"
	"github.com/user/watermark/pkg/pipeline"
)

func pngBytes(t *testing.T, w, h int, opaque bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	a := uint8(128)
	if opaque {
		a = 255
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = a
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newStage(fs *mocks.FileSystem, pages *mocks.PageExtractor) *Stage {
	return NewStage(fs, &mocks.ImageCodec{}, pages, 0, logger.NewNoop())
}

func TestStage_DecodesRaster(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/photo.png", pngBytes(t, 40, 30, true))

	result, err := newStage(fs, &mocks.PageExtractor{}).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/photo.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Format != pipeline.FormatPNG {
		t.Errorf("expected png, got %s", result.Format)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(result.Pages))
	}
	page := result.Pages[0]
	if page.Width != 40 || page.Height != 30 {
		t.Errorf("expected 40x30, got %dx%d", page.Width, page.Height)
	}
	if page.Channels != 3 {
		t.Errorf("expected opaque input to decode to 3 channels, got %d", page.Channels)
	}
}

func TestStage_KeepsAlpha(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/logo.png", pngBytes(t, 8, 8, false))

	result, err := newStage(fs, &mocks.PageExtractor{}).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/logo.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Pages[0].Channels != 4 {
		t.Errorf("expected 4 channels, got %d", result.Pages[0].Channels)
	}
}

func TestStage_PDFPages(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/doc.pdf", []byte("%PDF-1.4"))

	var gotDPI float64
	pages := &mocks.PageExtractor{
		ExtractPagesFunc: func(data []byte, dpi float64) ([]image.Image, error) {
			gotDPI = dpi
			first := image.NewRGBA(image.Rect(0, 0, 20, 30))
			second := image.NewRGBA(image.Rect(0, 0, 20, 30))
			second.Set(0, 0, color.RGBA{R: 255, A: 255})
			return []image.Image{first, second}, nil
		},
	}

	result, err := newStage(fs, pages).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/doc.pdf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotDPI != DefaultPDFDPI {
		t.Errorf("expected dpi %d, got %v", DefaultPDFDPI, gotDPI)
	}
	if result.Format != pipeline.FormatPDF {
		t.Errorf("expected pdf, got %s", result.Format)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(result.Pages))
	}
}

func TestStage_EmptyPDF(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/empty.pdf", []byte("%PDF-1.4"))
	pages := &mocks.PageExtractor{
		ExtractPagesFunc: func(data []byte, dpi float64) ([]image.Image, error) {
			return nil, nil
		},
	}

	_, err := newStage(fs, pages).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/empty.pdf"})
	if !errors.Is(err, pipeline.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestStage_UnsupportedExtension(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/notes.txt", []byte("hello"))

	_, err := newStage(fs, &mocks.PageExtractor{}).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/notes.txt"})
	if !errors.Is(err, pipeline.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestStage_CorruptImage(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.AddFile("/in/broken.png", []byte("not a png"))

	_, err := newStage(fs, &mocks.PageExtractor{}).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/broken.png"})
	if pipeline.KindOf(err) != pipeline.KindDecode {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestStage_MissingFile(t *testing.T) {
	_, err := newStage(mocks.NewFileSystem(), &mocks.PageExtractor{}).Execute(context.Background(), pipeline.DecodeInput{Path: "/in/gone.jpg"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if pipeline.KindOf(err) != pipeline.KindIO {
		t.Errorf("expected IO error, got %v", pipeline.KindOf(err))
	}
}
