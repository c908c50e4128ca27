package filesink

import (
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/user/watermark/pkg/mocks"
	"github.com/user/watermark/pkg/pipeline"
)

// testBaseDir is a platform-independent base directory for tests
var testBaseDir = filepath.Join("debug")

func TestSink_Enabled(t *testing.T) {
	sink := New(testBaseDir, mocks.NewFileSystem(), &mocks.ImageCodec{})
	if !sink.Enabled() {
		t.Error("expected Enabled to return true")
	}
}

func TestSink_SavePlacementsJSON(t *testing.T) {
	fs := mocks.NewFileSystem()
	sink := New(testBaseDir, fs, &mocks.ImageCodec{})

	data := []byte(`[{"X":1}]`)
	if err := sink.SavePlacementsJSON("/photos/holiday.jpg", 0, data); err != nil {
		t.Fatalf("SavePlacementsJSON failed: %v", err)
	}

	expectedPath := filepath.Join(testBaseDir, "holiday", "placements-page-01.json")
	saved, ok := fs.GetFile(expectedPath)
	if !ok {
		t.Fatalf("expected file to be saved at %s", expectedPath)
	}
	if string(saved) != string(data) {
		t.Errorf("expected %q, got %q", data, saved)
	}
}

func TestSink_SaveMaskAndComposited(t *testing.T) {
	fs := mocks.NewFileSystem()
	codec := &mocks.ImageCodec{}
	sink := New(testBaseDir, fs, codec)

	img := image.NewAlpha(image.Rect(0, 0, 4, 4))
	if err := sink.SaveMask("doc.pdf", 1, img); err != nil {
		t.Fatalf("SaveMask failed: %v", err)
	}
	if err := sink.SaveComposited("doc.pdf", 2, image.NewNRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("SaveComposited failed: %v", err)
	}

	for _, p := range []string{
		filepath.Join(testBaseDir, "doc", "masks", "mask-02.png"),
		filepath.Join(testBaseDir, "doc", "composited", "page-03.png"),
	} {
		if _, ok := fs.GetFile(p); !ok {
			t.Errorf("expected file at %s", p)
		}
	}
	if codec.EncodeCalls.Load() != 2 {
		t.Errorf("expected 2 encodes, got %d", codec.EncodeCalls.Load())
	}
}

func TestSink_EncodeError(t *testing.T) {
	codec := &mocks.ImageCodec{
		EncodeFunc: func(img image.Image, format pipeline.Format, quality int) ([]byte, error) {
			return nil, pipeline.ErrEncode
		},
	}
	sink := New(testBaseDir, mocks.NewFileSystem(), codec)
	err := sink.SaveMask("x.png", 0, image.NewAlpha(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, pipeline.ErrEncode) {
		t.Errorf("expected ErrEncode, got %v", err)
	}
}
