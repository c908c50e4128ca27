// Package nullsink provides a no-op debug sink implementation.
package nullsink

import (
	"image"

	"github.com/user/watermark/pkg/ports"
)

// Sink discards all debug output.
type Sink struct{}

// New creates a new null sink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

func (s *Sink) SavePlacementsJSON(name string, page int, data []byte) error {
	return nil
}

func (s *Sink) SaveMask(name string, index int, img image.Image) error {
	return nil
}

func (s *Sink) SaveComposited(name string, page int, img image.Image) error {
	return nil
}

var _ ports.DebugSink = (*Sink)(nil)
