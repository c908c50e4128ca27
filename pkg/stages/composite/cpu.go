package composite

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/user/watermark/pkg/budget"
	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// CPU blends on goroutines. The canvas is cut into horizontal bands, one
// per thread; every band worker applies all intersecting placements in
// placement order, so no pixel is written by two goroutines and the
// result does not depend on the thread count.
type CPU struct {
	threads int
	budget  *budget.Budget
	logger  ports.Logger
}

// NewCPU creates a CPU compositor. threads <= 0 uses runtime.NumCPU().
// b may be nil.
func NewCPU(threads int, b *budget.Budget, logger ports.Logger) *CPU {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &CPU{
		threads: threads,
		budget:  b,
		logger:  logger.WithComponent("cpu"),
	}
}

// Threads returns the worker count.
func (c *CPU) Threads() int {
	return c.threads
}

// band is a half-open row range.
type band struct {
	y0, y1 int
}

// Composite implements Compositor.
func (c *CPU) Composite(ctx context.Context, buf *pipeline.PixelBuffer, placements []pipeline.Placement, masks *pipeline.MaskSet, ink pipeline.Ink) error {
	if ink.Opacity == 0 || len(placements) == 0 {
		return nil
	}
	stamps, err := resolveStamps(buf.Width, buf.Height, placements, masks)
	if err != nil {
		return err
	}

	bands := splitBands(buf.Height, c.threads)
	numWorkers := min(c.threads, len(bands))
	c.logger.Debug("Blending %d placements in %d bands with %d workers", len(stamps), len(bands), numWorkers)

	jobs := make(chan band, len(bands))
	errChan := make(chan error, numWorkers)

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go c.worker(ctx, &wg, buf, stamps, ink, jobs, errChan)
	}

	for _, b := range bands {
		jobs <- b
	}
	close(jobs)

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return err
	}
	return nil
}

// worker blends bands from the jobs channel while holding one budget slot.
func (c *CPU) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	buf *pipeline.PixelBuffer,
	stamps []stamp,
	ink pipeline.Ink,
	jobs <-chan band,
	errChan chan<- error,
) {
	defer wg.Done()

	if err := c.budget.Acquire(ctx, 1); err != nil {
		select {
		case errChan <- fmt.Errorf("acquire cpu slot: %w", err):
		default:
		}
		return
	}
	defer c.budget.Release(1)

	for b := range jobs {
		select {
		case <-ctx.Done():
			select {
			case errChan <- ctx.Err():
			default:
			}
			return
		default:
		}

		for _, s := range stamps {
			if s.y1() <= b.y0 || s.y0 >= b.y1 {
				continue
			}
			blendRows(buf, s, b.y0, b.y1, ink)
		}
	}
}

// splitBands cuts height rows into at most n near-equal bands.
func splitBands(height, n int) []band {
	if n < 1 {
		n = 1
	}
	if n > height {
		n = height
	}
	size := (height + n - 1) / n
	out := make([]band, 0, n)
	for y := 0; y < height; y += size {
		out = append(out, band{y0: y, y1: min(y+size, height)})
	}
	return out
}

var _ Compositor = (*CPU)(nil)
