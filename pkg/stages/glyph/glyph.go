package glyph

import (
	"context"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Stage renders the masks needed to composite one page.
type Stage struct {
	provider *Provider
	logger   ports.Logger
}

// NewStage creates a new glyph stage.
func NewStage(provider *Provider, logger ports.Logger) *Stage {
	return &Stage{
		provider: provider,
		logger:   logger.WithComponent("glyph"),
	}
}

// Execute renders the unrotated base mask and one mask for every distinct
// rotation among the input placements.
func (s *Stage) Execute(ctx context.Context, input pipeline.GlyphInput) (pipeline.GlyphResult, error) {
	base, err := s.provider.RenderFont(input.Text, input.FontPath, input.TextScale, 0, input.RefDim)
	if err != nil {
		return pipeline.GlyphResult{}, err
	}
	set := pipeline.NewMaskSet(base)

	for _, p := range input.Placements {
		if _, ok := set.Lookup(p.Rotation); ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return pipeline.GlyphResult{}, err
		}
		m, err := s.provider.RenderFont(input.Text, input.FontPath, input.TextScale, p.Rotation, input.RefDim)
		if err != nil {
			return pipeline.GlyphResult{}, err
		}
		set.Add(m)
	}

	s.logger.Debug("Rendered base mask %dx%d and %d rotated masks", base.Width, base.Height, set.Len())
	return pipeline.GlyphResult{Masks: set}, nil
}
