// Package watermark provides a high-level API for watermarking images and
// PDF documents.
package watermark

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/user/watermark/pkg/pipeline"
)

// SpecBuilder provides a fluent interface for building a WatermarkSpec.
type SpecBuilder struct {
	spec pipeline.WatermarkSpec
}

// NewSpecBuilder creates a builder for text with every other field at its
// default: diagonal pattern, grey at opacity 150, text scale 0.05 and
// space scale 1.5.
func NewSpecBuilder(text string) *SpecBuilder {
	return &SpecBuilder{spec: pipeline.DefaultSpec(text)}
}

// Build normalizes the text to NFC and validates the spec.
func (b *SpecBuilder) Build() (pipeline.WatermarkSpec, error) {
	spec := b.spec.Normalized()
	if err := spec.Validate(); err != nil {
		return pipeline.WatermarkSpec{}, err
	}
	return spec, nil
}

// WithPattern sets the tiling pattern.
func (b *SpecBuilder) WithPattern(p pipeline.Pattern) *SpecBuilder {
	b.spec.Pattern = p
	return b
}

// WithTextScale sets the glyph height as a fraction of the canvas height.
func (b *SpecBuilder) WithTextScale(scale float64) *SpecBuilder {
	b.spec.TextScale = scale
	return b
}

// WithSpaceScale sets the pitch multiplier. 1.0 packs tiles edge to edge.
func (b *SpecBuilder) WithSpaceScale(scale float64) *SpecBuilder {
	b.spec.SpaceScale = scale
	return b
}

// WithColor sets the watermark color.
func (b *SpecBuilder) WithColor(c pipeline.RGB) *SpecBuilder {
	b.spec.Color = c
	return b
}

// WithOpacity sets the watermark opacity. 0 leaves images unchanged.
func (b *SpecBuilder) WithOpacity(opacity uint8) *SpecBuilder {
	b.spec.Opacity = opacity
	return b
}

// WithSeed sets the seed of the random pattern.
func (b *SpecBuilder) WithSeed(seed uint64) *SpecBuilder {
	b.spec.Seed = seed
	return b
}

// WithFont sets a TrueType font file. Empty selects Go Regular.
func (b *SpecBuilder) WithFont(path string) *SpecBuilder {
	b.spec.FontPath = path
	return b
}

// RandomSeed returns a seed drawn from a random UUID.
func RandomSeed() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}
