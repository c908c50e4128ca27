package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// Common Types
// =============================================================================

// Dimension represents width and height.
type Dimension struct {
	Width  int
	Height int
}

// Pixels returns Width*Height.
func (d Dimension) Pixels() int {
	return d.Width * d.Height
}

// RGB is an opaque color.
type RGB struct {
	R uint8
	G uint8
	B uint8
}

// Ink is the color and opacity used when blending glyph coverage.
type Ink struct {
	Color   RGB
	Opacity uint8
}

// =============================================================================
// Watermark Spec
// =============================================================================

// Pattern selects how glyph tiles are laid out across the canvas.
type Pattern string

const (
	PatternDiagonal      Pattern = "diagonal"
	PatternHorizontal    Pattern = "horizontal"
	PatternVertical      Pattern = "vertical"
	PatternCrossDiagonal Pattern = "cross-diagonal"
	PatternRandom        Pattern = "random"
)

// Patterns lists every supported pattern in CLI order.
var Patterns = []Pattern{
	PatternDiagonal,
	PatternHorizontal,
	PatternVertical,
	PatternRandom,
	PatternCrossDiagonal,
}

// ParsePattern parses a pattern name. Matching is case-insensitive and
// accepts "crossdiagonal" and "cross_diagonal" as aliases.
func ParsePattern(s string) (Pattern, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	if v == "crossdiagonal" {
		v = string(PatternCrossDiagonal)
	}
	for _, p := range Patterns {
		if string(p) == v {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown pattern %q", ErrInvalidSpec, s)
}

// BaseRotation returns the rotation every tile of a non-random pattern
// starts from, in radians counter-clockwise on screen.
func (p Pattern) BaseRotation() float64 {
	switch p {
	case PatternVertical:
		return math.Pi / 2
	case PatternDiagonal, PatternCrossDiagonal:
		return math.Pi / 4
	default:
		return 0
	}
}

// DefaultSeed seeds the random pattern when the caller does not choose one.
const DefaultSeed uint64 = 0x5741544552

// Defaults applied by DefaultSpec.
const (
	DefaultTextScale  = 0.05
	DefaultSpaceScale = 1.5
	DefaultOpacity    = 150
)

// DefaultColor is the grey used when no color is configured.
var DefaultColor = RGB{R: 128, G: 128, B: 128}

// WatermarkSpec describes one watermark. It is immutable once built and is
// shared read-only by every job of a batch.
type WatermarkSpec struct {
	Text       string
	Pattern    Pattern
	TextScale  float64 // glyph height as a fraction of the canvas height
	SpaceScale float64 // pitch multiplier applied to the glyph extent
	Color      RGB
	Opacity    uint8
	Seed       uint64
	FontPath   string // empty selects the embedded Go Regular face
}

// DefaultSpec returns a spec for text with every other field at its default.
func DefaultSpec(text string) WatermarkSpec {
	return WatermarkSpec{
		Text:       text,
		Pattern:    PatternDiagonal,
		TextScale:  DefaultTextScale,
		SpaceScale: DefaultSpaceScale,
		Color:      DefaultColor,
		Opacity:    DefaultOpacity,
		Seed:       DefaultSeed,
	}
}

// Validate checks the spec invariants.
func (s WatermarkSpec) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("%w: text must not be empty", ErrInvalidSpec)
	}
	if !(s.TextScale > 0) || math.IsInf(s.TextScale, 0) {
		return fmt.Errorf("%w: text scale must be positive, got %v", ErrInvalidSpec, s.TextScale)
	}
	if !(s.SpaceScale > 0) || math.IsInf(s.SpaceScale, 0) {
		return fmt.Errorf("%w: space scale must be positive, got %v", ErrInvalidSpec, s.SpaceScale)
	}
	if _, err := ParsePattern(string(s.Pattern)); err != nil {
		return err
	}
	return nil
}

// Normalized returns a copy whose text is in Unicode NFC form.
func (s WatermarkSpec) Normalized() WatermarkSpec {
	s.Text = norm.NFC.String(s.Text)
	return s
}

// Ink returns the color and opacity of the spec.
func (s WatermarkSpec) Ink() Ink {
	return Ink{Color: s.Color, Opacity: s.Opacity}
}

// =============================================================================
// Pattern Stage Types
// =============================================================================

// Placement is one glyph tile: its center in canvas pixels and its
// rotation in radians, counter-clockwise on screen.
type Placement struct {
	X        float64
	Y        float64
	Rotation float64
	Scale    float64
}

// PatternInput contains parameters for placement generation.
type PatternInput struct {
	Canvas     Dimension
	Glyph      Dimension
	Pattern    Pattern
	SpaceScale float64
	Seed       uint64
}

// PatternResult holds the generated placements.
type PatternResult struct {
	Placements []Placement
}

// =============================================================================
// Glyph Stage Types
// =============================================================================

// GlyphMask is a rasterized, rotated coverage map of the watermark text.
// Coverage is row-major with values in [0,1]. Masks are never mutated after
// creation.
type GlyphMask struct {
	Width    int
	Height   int
	Coverage []float32
	Rotation float64
}

// At returns the coverage at (x, y), or 0 outside the mask.
func (m *GlyphMask) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Coverage[y*m.Width+x]
}

// RotationKey quantizes a rotation so that equal angles computed along
// different paths share a mask.
func RotationKey(rotation float64) int64 {
	r := math.Mod(rotation, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	k := int64(math.Round(r * 1e6))
	if k == int64(math.Round(2*math.Pi*1e6)) {
		k = 0
	}
	return k
}

// MaskSet holds the unrotated base mask and one mask per distinct rotation.
type MaskSet struct {
	Base  *GlyphMask
	byRot map[int64]*GlyphMask
}

// NewMaskSet creates a set around the unrotated base mask.
func NewMaskSet(base *GlyphMask) *MaskSet {
	return &MaskSet{Base: base, byRot: make(map[int64]*GlyphMask)}
}

// Add registers m under its rotation.
func (s *MaskSet) Add(m *GlyphMask) {
	s.byRot[RotationKey(m.Rotation)] = m
}

// Lookup returns the mask rendered for rotation.
func (s *MaskSet) Lookup(rotation float64) (*GlyphMask, bool) {
	m, ok := s.byRot[RotationKey(rotation)]
	return m, ok
}

// Len returns the number of rotated masks.
func (s *MaskSet) Len() int {
	return len(s.byRot)
}

// Masks returns the rotated masks ordered by rotation.
func (s *MaskSet) Masks() []*GlyphMask {
	keys := make([]int64, 0, len(s.byRot))
	for k := range s.byRot {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]*GlyphMask, len(keys))
	for i, k := range keys {
		out[i] = s.byRot[k]
	}
	return out
}

// GlyphInput contains parameters for mask rendering.
type GlyphInput struct {
	Text      string
	FontPath  string
	TextScale float64
	RefDim    int // reference canvas dimension the text scale applies to

	// Placements whose distinct rotations need a mask. Nil renders the
	// base mask only.
	Placements []Placement
}

// GlyphResult holds the rendered masks.
type GlyphResult struct {
	Masks *MaskSet
}

// =============================================================================
// Composite Stage Types
// =============================================================================

// CompositeInput is one page plus everything needed to watermark it.
type CompositeInput struct {
	Buffer     *PixelBuffer
	Placements []Placement
	Masks      *MaskSet
	Ink        Ink
}

// CompositeResult reports the blended page.
type CompositeResult struct {
	Buffer  *PixelBuffer
	Backend string
}

// =============================================================================
// Decode / Encode Stage Types
// =============================================================================

// Format identifies an image or document container.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatPDF  Format = "pdf"
)

// FormatFromExt maps a file extension (with or without dot) to a Format.
func FormatFromExt(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// DecodeInput names the file to acquire.
type DecodeInput struct {
	Path string
}

// DecodeResult holds the decoded pages. Raster inputs yield one page.
type DecodeResult struct {
	Format Format
	Pages  []*PixelBuffer
}

// EncodeInput holds the watermarked pages and the requested output.
type EncodeInput struct {
	Pages   []*PixelBuffer
	Format  Format // output container
	Source  Format // container the pages were decoded from
	Quality int    // JPEG quality 1-100
	Title   string // document title for PDF output
}

// EncodeResult holds the encoded bytes.
type EncodeResult struct {
	Data []byte
}
