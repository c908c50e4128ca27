package mocks

import (
	"fmt"
	"image"
	"sync"

	"github.com/user/watermark/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	Placements map[string][]byte
	Masks      map[string]image.Image
	Composited map[string]image.Image
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:    enabled,
		Placements: make(map[string][]byte),
		Masks:      make(map[string]image.Image),
		Composited: make(map[string]image.Image),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SavePlacementsJSON(name string, page int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Placements[fmt.Sprintf("%s#%d", name, page)] = data
	return nil
}

func (m *DebugSink) SaveMask(name string, index int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Masks[fmt.Sprintf("%s#%d", name, index)] = img
	return nil
}

func (m *DebugSink) SaveComposited(name string, page int, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Composited[fmt.Sprintf("%s#%d", name, page)] = img
	return nil
}

var _ ports.DebugSink = (*DebugSink)(nil)
