package composite

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Stage blends one page with the backend the selector picks for it.
type Stage struct {
	selector *Selector
	threads  int
	logger   ports.Logger
}

// NewStage creates a new composite stage. threads overrides the per-image
// CPU thread count when positive.
func NewStage(selector *Selector, threads int, logger ports.Logger) *Stage {
	return &Stage{
		selector: selector,
		threads:  threads,
		logger:   logger.WithComponent("composite"),
	}
}

// Execute blends the input placements into the input buffer.
// A GPU failure is retried on the CPU when the selector allows it.
func (s *Stage) Execute(ctx context.Context, input pipeline.CompositeInput) (pipeline.CompositeResult, error) {
	buf := input.Buffer
	if buf == nil {
		return pipeline.CompositeResult{}, fmt.Errorf("%w: no pixel buffer", pipeline.ErrInvalidGeometry)
	}

	choice, err := s.selector.Select(buf.Width * buf.Height)
	if err != nil {
		return pipeline.CompositeResult{}, err
	}
	if s.threads > 0 && choice.Kind == BackendCPU {
		choice.Threads = s.threads
	}

	comp, err := s.selector.Compositor(choice)
	if err != nil {
		return pipeline.CompositeResult{}, err
	}

	s.logger.Debug("Compositing %dx%d on %s", buf.Width, buf.Height, choice.Kind)

	// GPU dispatch works on a packed copy, so a failed dispatch leaves
	// buf untouched and the CPU retry starts from clean pixels.
	err = comp.Composite(ctx, buf, input.Placements, input.Masks, input.Ink)
	if err != nil && choice.Kind == BackendGPU && s.selector.AllowsCPUFallback() && !errors.Is(err, context.Canceled) {
		s.logger.Warn("GPU compositing failed, retrying on CPU: %v", err)
		choice = BackendChoice{Kind: BackendCPU, Threads: s.threads}
		err = s.selector.CPU(s.threads).Composite(ctx, buf, input.Placements, input.Masks, input.Ink)
	}
	if err != nil {
		return pipeline.CompositeResult{}, err
	}

	return pipeline.CompositeResult{Buffer: buf, Backend: choice.Kind.String()}, nil
}
