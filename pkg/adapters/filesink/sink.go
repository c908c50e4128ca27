// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Sink saves debug output under baseDir, one subdirectory per input file:
//
//	<baseDir>/<stem>/placements-page-01.json
//	<baseDir>/<stem>/masks/mask-01.png
//	<baseDir>/<stem>/composited/page-01.png
type Sink struct {
	baseDir string
	fs      ports.FileSystem
	codec   ports.ImageCodec
}

// New creates a new file sink.
func New(baseDir string, fs ports.FileSystem, codec ports.ImageCodec) *Sink {
	return &Sink{
		baseDir: baseDir,
		fs:      fs,
		codec:   codec,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SavePlacementsJSON saves the placements of one page.
func (s *Sink) SavePlacementsJSON(name string, page int, data []byte) error {
	path := filepath.Join(s.dir(name), fmt.Sprintf("placements-page-%02d.json", page+1))
	return s.fs.WriteFile(path, data)
}

// SaveMask saves a glyph mask as PNG.
func (s *Sink) SaveMask(name string, index int, img image.Image) error {
	return s.savePNG(filepath.Join(s.dir(name), "masks", fmt.Sprintf("mask-%02d.png", index+1)), img)
}

// SaveComposited saves a blended page as PNG.
func (s *Sink) SaveComposited(name string, page int, img image.Image) error {
	return s.savePNG(filepath.Join(s.dir(name), "composited", fmt.Sprintf("page-%02d.png", page+1)), img)
}

func (s *Sink) savePNG(path string, img image.Image) error {
	if err := s.fs.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := s.codec.Encode(img, pipeline.FormatPNG, 0)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return s.fs.WriteFile(path, data)
}

// dir maps an input path to its debug directory.
func (s *Sink) dir(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "input"
	}
	return filepath.Join(s.baseDir, stem)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
