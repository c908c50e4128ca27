package ports

import (
	"image"
)

// DebugSink abstracts debug output for intermediate results.
// name identifies the input file the data belongs to.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SavePlacementsJSON saves the generated placements of one page.
	SavePlacementsJSON(name string, page int, data []byte) error

	// SaveMask saves a rendered glyph mask.
	SaveMask(name string, index int, img image.Image) error

	// SaveComposited saves a page after blending.
	SaveComposited(name string, page int, img image.Image) error
}
