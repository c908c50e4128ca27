package watermark

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ideamans/go-l10n"

	"github.com/user/watermark/pkg/adapters/filesink"
	"github.com/user/watermark/pkg/adapters/ggrenderer"
	"github.com/user/watermark/pkg/adapters/imagecodec"
	"github.com/user/watermark/pkg/adapters/nullsink"
	"github.com/user/watermark/pkg/adapters/osfilesystem"
	"github.com/user/watermark/pkg/adapters/pdfbuilder"
	"github.com/user/watermark/pkg/adapters/pdfpages"
	"github.com/user/watermark/pkg/adapters/wgpudevice"
	"github.com/user/watermark/pkg/batch"
	"github.com/user/watermark/pkg/budget"
	"github.com/user/watermark/pkg/orchestrator"
	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
	"github.com/user/watermark/pkg/stages/composite"
	"github.com/user/watermark/pkg/stages/decode"
	"github.com/user/watermark/pkg/stages/encode"
	"github.com/user/watermark/pkg/stages/glyph"
	"github.com/user/watermark/pkg/stages/pattern"
)

// Options configures an Engine.
type Options struct {
	GPU           composite.Directive
	AllowFallback bool
	Threads       int // CPU threads per image; 0 divides the cores
	Concurrency   int // files processed at once; 0 = one per core
	Quality       int // JPEG quality
	PDF           bool
	Recursive     bool
	PDFDPI        float64

	Debug    bool
	DebugDir string

	// Probe opens the compute device. Nil probes Vulkan adapters.
	Probe composite.ProbeFunc
}

// Ports are the collaborators an Engine drives. Nil fields get the
// default adapters.
type Ports struct {
	FS         ports.FileSystem
	Codec      ports.ImageCodec
	Pages      ports.PageExtractor
	Docs       ports.DocumentBuilder
	Rasterizer ports.GlyphRasterizer
	Sink       ports.DebugSink
}

// Engine watermarks files and directories. One Engine serves one run: the
// compute device is probed once and glyph masks are cached across files.
type Engine struct {
	opts     Options
	ports    Ports
	cores    int
	budget   *budget.Budget
	selector *composite.Selector
	glyphs   *glyph.Stage
	logger   ports.Logger
}

// New creates an Engine using the default adapters.
func New(opts Options, logger ports.Logger) *Engine {
	return NewWithPorts(opts, Ports{}, logger)
}

// NewWithPorts creates an Engine over p.
func NewWithPorts(opts Options, p Ports, logger ports.Logger) *Engine {
	if p.FS == nil {
		p.FS = osfilesystem.New()
	}
	if p.Codec == nil {
		p.Codec = imagecodec.New()
	}
	if p.Pages == nil {
		p.Pages = pdfpages.New()
	}
	if p.Docs == nil {
		p.Docs = pdfbuilder.New(p.Codec)
	}
	if p.Rasterizer == nil {
		p.Rasterizer = ggrenderer.New()
	}
	if p.Sink == nil {
		if opts.Debug {
			p.Sink = filesink.New(opts.DebugDir, p.FS, p.Codec)
		} else {
			p.Sink = nullsink.New()
		}
	}
	if opts.Probe == nil {
		opts.Probe = wgpudevice.Probe
	}
	if opts.PDFDPI <= 0 {
		opts.PDFDPI = decode.DefaultPDFDPI
	}

	cores := runtime.NumCPU()
	b := budget.New(cores)
	selector := composite.NewSelector(composite.SelectorConfig{
		Directive:     opts.GPU,
		AllowFallback: opts.AllowFallback,
		Threads:       opts.Threads,
		Probe:         opts.Probe,
		Budget:        b,
		Logger:        logger,
	})

	return &Engine{
		opts:     opts,
		ports:    p,
		cores:    cores,
		budget:   b,
		selector: selector,
		glyphs:   glyph.NewStage(glyph.NewProvider(p.Rasterizer, ""), logger),
		logger:   logger,
	}
}

// Close releases the compute device.
func (e *Engine) Close() error {
	return e.selector.Close()
}

// orchestrator builds the per-file pipeline with threads CPU threads per
// image.
func (e *Engine) orchestrator(threads int) *orchestrator.Orchestrator {
	return orchestrator.New(
		decode.NewStage(e.ports.FS, e.ports.Codec, e.ports.Pages, e.opts.PDFDPI, e.logger),
		e.glyphs,
		pattern.NewStage(),
		composite.NewStage(e.selector, threads, e.logger),
		encode.NewStage(e.ports.Codec, e.ports.Docs, e.opts.PDFDPI, e.logger),
		e.ports.FS,
		e.ports.Sink,
		e.logger,
	)
}

func (e *Engine) threads(concurrency int) int {
	return batch.PlanThreads(e.cores, concurrency, e.opts.Threads, e.opts.GPU == composite.DirectiveOn)
}

// ProcessFile watermarks a single file. Errors are returned as is.
func (e *Engine) ProcessFile(ctx context.Context, spec pipeline.WatermarkSpec, input string) (orchestrator.FileResult, error) {
	jobs := batch.BuildJobs([]string{input}, e.outputOptions())
	return e.orchestrator(e.threads(1)).Run(ctx, spec, jobs[0].Task)
}

// ProcessDir watermarks every supported image under root. Per-file
// failures are reported in the results and never abort the batch.
func (e *Engine) ProcessDir(ctx context.Context, spec pipeline.WatermarkSpec, root string) ([]batch.Result, error) {
	paths, err := e.ports.FS.ListImages(root, e.opts.Recursive)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}
	if len(paths) == 0 {
		e.logger.Warn(l10n.F("No images found in %s", root))
		return nil, nil
	}

	concurrency := batch.PlanConcurrency(e.opts.Concurrency, len(paths))
	threads := e.threads(concurrency)
	e.logger.Info(l10n.F("Processing %d files with %d workers, %d threads each", len(paths), concurrency, threads))

	runner := batch.NewRunner(e.orchestrator(threads), concurrency, e.logger)
	return runner.Run(ctx, spec, batch.BuildJobs(paths, e.outputOptions())), nil
}

// Process dispatches to ProcessDir or ProcessFile depending on input.
func (e *Engine) Process(ctx context.Context, spec pipeline.WatermarkSpec, input string) ([]batch.Result, error) {
	isDir, err := e.ports.FS.IsDir(input)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", input, err)
	}
	if isDir {
		return e.ProcessDir(ctx, spec, input)
	}
	file, err := e.ProcessFile(ctx, spec, input)
	if err != nil {
		return nil, err
	}
	job := batch.BuildJobs([]string{input}, e.outputOptions())[0]
	return []batch.Result{{Job: job, File: file}}, nil
}

func (e *Engine) outputOptions() batch.OutputOptions {
	return batch.OutputOptions{PDF: e.opts.PDF, Quality: e.opts.Quality}
}
