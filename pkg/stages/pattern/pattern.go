// Package pattern implements the placement generation stage.
package pattern

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/user/watermark/pkg/pipeline"
)

// MaxRandomPlacements caps the random pattern on very large canvases.
const MaxRandomPlacements = 10000

// RandomRotationSteps is the number of evenly spaced angles the random
// pattern draws from. Each distinct angle needs its own rendered mask.
const RandomRotationSteps = 72

// Stage generates glyph placements for a canvas.
// This is a pure function with no external dependencies.
type Stage struct{}

// NewStage creates a new pattern stage.
func NewStage() *Stage {
	return &Stage{}
}

// Execute generates placements for the input canvas and glyph size.
func (s *Stage) Execute(ctx context.Context, input pipeline.PatternInput) (pipeline.PatternResult, error) {
	placements, err := Generate(
		input.Canvas.Width, input.Canvas.Height,
		input.Glyph.Width, input.Glyph.Height,
		input.Pattern, input.SpaceScale, input.Seed,
	)
	if err != nil {
		return pipeline.PatternResult{}, err
	}
	return pipeline.PatternResult{Placements: placements}, nil
}

// Generate lays out glyph tiles over a canvasW x canvasH canvas.
//
// Non-random patterns are deterministic and returned in row-major order
// (Y, then X, then rotation). The random pattern is reproducible for a
// given seed. When the glyph does not fit inside the canvas a single
// centered placement is returned.
func Generate(canvasW, canvasH, glyphW, glyphH int, kind pipeline.Pattern, spaceScale float64, seed uint64) ([]pipeline.Placement, error) {
	if canvasW <= 0 || canvasH <= 0 {
		return nil, fmt.Errorf("%w: canvas %dx%d", pipeline.ErrInvalidGeometry, canvasW, canvasH)
	}
	if glyphW <= 0 || glyphH <= 0 {
		return nil, fmt.Errorf("%w: glyph %dx%d", pipeline.ErrInvalidGeometry, glyphW, glyphH)
	}
	if !(spaceScale > 0) || math.IsInf(spaceScale, 0) {
		return nil, fmt.Errorf("%w: space scale %v", pipeline.ErrInvalidGeometry, spaceScale)
	}

	if glyphW >= canvasW || glyphH >= canvasH {
		return []pipeline.Placement{{
			X:        float64(canvasW) / 2,
			Y:        float64(canvasH) / 2,
			Rotation: kind.BaseRotation(),
			Scale:    1,
		}}, nil
	}

	w, h := float64(canvasW), float64(canvasH)
	gw, gh := float64(glyphW), float64(glyphH)

	var out []pipeline.Placement
	switch kind {
	case pipeline.PatternHorizontal:
		out = grid(w, h, gw*spaceScale, gh*spaceScale, 0)
	case pipeline.PatternVertical:
		// Rotated a quarter turn, the glyph's screen extents swap.
		out = grid(w, h, gh*spaceScale, gw*spaceScale, math.Pi/2)
	case pipeline.PatternDiagonal:
		out = lattice(w, h, gw*spaceScale, gh*spaceScale, math.Pi/4, 0)
	case pipeline.PatternCrossDiagonal:
		out = lattice(w, h, gw*spaceScale, 2*gh*spaceScale, math.Pi/4, 0)
		out = append(out, lattice(w, h, gw*spaceScale, 2*gh*spaceScale, -math.Pi/4, 0.5)...)
	case pipeline.PatternRandom:
		return random(w, h, gw, gh, spaceScale, seed), nil
	default:
		return nil, fmt.Errorf("%w: unknown pattern %q", pipeline.ErrInvalidSpec, kind)
	}

	sortRowMajor(out)
	return out, nil
}

// grid tiles an axis-aligned lattice from one pitch before the origin to
// one pitch beyond the far edge in both directions.
func grid(w, h, pitchX, pitchY, rotation float64) []pipeline.Placement {
	cols := int(math.Floor((w+2*pitchX)/pitchX)) + 1
	rows := int(math.Floor((h+2*pitchY)/pitchY)) + 1

	out := make([]pipeline.Placement, 0, cols*rows)
	for r := 0; r < rows; r++ {
		y := -pitchY + float64(r)*pitchY
		for c := 0; c < cols; c++ {
			out = append(out, pipeline.Placement{
				X:        -pitchX + float64(c)*pitchX,
				Y:        y,
				Rotation: rotation,
				Scale:    1,
			})
		}
	}
	return out
}

// lattice tiles a rotated lattice centered on the canvas. along is the
// pitch along the text axis, across the pitch between lines of text.
// offset shifts the lines by a fraction of the across pitch. Tiles whose
// center falls outside the canvas grown by one pitch are dropped.
func lattice(w, h, along, across, rotation, offset float64) []pipeline.Placement {
	cx, cy := w/2, h/2
	// Text axis and its normal in screen coordinates (y grows downward).
	ux, uy := math.Cos(rotation), -math.Sin(rotation)
	vx, vy := -uy, ux

	margin := math.Max(along, across)
	radius := math.Hypot(w, h)/2 + margin
	ni := int(math.Ceil(radius / along))
	nj := int(math.Ceil(radius / across))

	var out []pipeline.Placement
	for j := -nj; j <= nj; j++ {
		dj := (float64(j) + offset) * across
		for i := -ni; i <= ni; i++ {
			di := float64(i) * along
			x := cx + di*ux + dj*vx
			y := cy + di*uy + dj*vy
			if x < -margin || x > w+margin || y < -margin || y > h+margin {
				continue
			}
			out = append(out, pipeline.Placement{X: x, Y: y, Rotation: rotation, Scale: 1})
		}
	}
	return out
}

// random scatters tiles with a PCG stream derived from seed.
func random(w, h, gw, gh, spaceScale float64, seed uint64) []pipeline.Placement {
	count := int(math.Ceil(w * h / (gw * gh * spaceScale * spaceScale)))
	if count < 1 {
		count = 1
	}
	if count > MaxRandomPlacements {
		count = MaxRandomPlacements
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	step := 2 * math.Pi / RandomRotationSteps

	out := make([]pipeline.Placement, count)
	for i := range out {
		out[i] = pipeline.Placement{
			X:        rng.Float64() * w,
			Y:        rng.Float64() * h,
			Rotation: float64(rng.IntN(RandomRotationSteps)) * step,
			Scale:    1,
		}
	}
	return out
}

func sortRowMajor(ps []pipeline.Placement) {
	slices.SortStableFunc(ps, func(a, b pipeline.Placement) int {
		if c := cmp.Compare(a.Y, b.Y); c != 0 {
			return c
		}
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		return cmp.Compare(a.Rotation, b.Rotation)
	})
}
