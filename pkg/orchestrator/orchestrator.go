// Package orchestrator runs the per-file watermark pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ideamans/go-l10n"

	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
	"github.com/user/watermark/pkg/stages/glyph"
)

// Task is one file to watermark.
type Task struct {
	Input   string
	Output  string
	Format  pipeline.Format // output container; empty keeps the input's
	Quality int
}

// FileResult describes a successfully written output.
type FileResult struct {
	Input      string
	Output     string
	Format     pipeline.Format
	Pages      int
	Placements int
	Backend    string
	Bytes      int
	Elapsed    time.Duration
}

// Orchestrator coordinates the execution of all pipeline stages for a file.
type Orchestrator struct {
	decodeStage    pipeline.Stage[pipeline.DecodeInput, pipeline.DecodeResult]
	glyphStage     pipeline.Stage[pipeline.GlyphInput, pipeline.GlyphResult]
	patternStage   pipeline.Stage[pipeline.PatternInput, pipeline.PatternResult]
	compositeStage pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult]
	encodeStage    pipeline.Stage[pipeline.EncodeInput, pipeline.EncodeResult]
	fs             ports.FileSystem
	sink           ports.DebugSink
	logger         ports.Logger
}

// New creates a new Orchestrator.
func New(
	decodeStage pipeline.Stage[pipeline.DecodeInput, pipeline.DecodeResult],
	glyphStage pipeline.Stage[pipeline.GlyphInput, pipeline.GlyphResult],
	patternStage pipeline.Stage[pipeline.PatternInput, pipeline.PatternResult],
	compositeStage pipeline.Stage[pipeline.CompositeInput, pipeline.CompositeResult],
	encodeStage pipeline.Stage[pipeline.EncodeInput, pipeline.EncodeResult],
	fs ports.FileSystem,
	sink ports.DebugSink,
	logger ports.Logger,
) *Orchestrator {
	return &Orchestrator{
		decodeStage:    decodeStage,
		glyphStage:     glyphStage,
		patternStage:   patternStage,
		compositeStage: compositeStage,
		encodeStage:    encodeStage,
		fs:             fs,
		sink:           sink,
		logger:         logger,
	}
}

// Run watermarks task.Input with spec and writes task.Output. The output
// is encoded in memory and written only when every page succeeded.
func (o *Orchestrator) Run(ctx context.Context, spec pipeline.WatermarkSpec, task Task) (FileResult, error) {
	started := time.Now()
	result := FileResult{Input: task.Input, Output: task.Output}

	// 1. Decode
	decoded, err := o.decodeStage.Execute(ctx, pipeline.DecodeInput{Path: task.Input})
	if err != nil {
		return result, fmt.Errorf("decode stage: %w", err)
	}
	o.logger.Debug(l10n.F("Decoded %s: %d pages", task.Input, len(decoded.Pages)))

	format := task.Format
	if format == "" {
		format = decoded.Format
	}
	result.Format = format
	result.Pages = len(decoded.Pages)

	name := stem(task.Input)
	for i, page := range decoded.Pages {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		placements, backend, err := o.watermarkPage(ctx, spec, name, i, page)
		if err != nil {
			if len(decoded.Pages) > 1 {
				return result, fmt.Errorf("page %d: %w", i+1, err)
			}
			return result, err
		}
		result.Placements += placements
		result.Backend = mergeBackend(result.Backend, backend)
	}

	// 5. Encode
	encoded, err := o.encodeStage.Execute(ctx, pipeline.EncodeInput{
		Pages:   decoded.Pages,
		Format:  format,
		Source:  decoded.Format,
		Quality: task.Quality,
		Title:   name,
	})
	if err != nil {
		return result, fmt.Errorf("encode stage: %w", err)
	}

	// 6. Write output
	if dir := filepath.Dir(task.Output); dir != "." {
		if err := o.fs.MkdirAll(dir); err != nil {
			return result, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := o.fs.WriteFile(task.Output, encoded.Data); err != nil {
		return result, fmt.Errorf("write output: %w", err)
	}

	result.Bytes = len(encoded.Data)
	result.Elapsed = time.Since(started)
	o.logger.Debug(l10n.F("Wrote %s: %d bytes", task.Output, result.Bytes))
	return result, nil
}

// watermarkPage blends spec into page in place and returns the number of
// placements and the backend used.
func (o *Orchestrator) watermarkPage(ctx context.Context, spec pipeline.WatermarkSpec, name string, index int, page *pipeline.PixelBuffer) (int, string, error) {
	// 2. Base glyph, which sets the pattern pitch
	base, err := o.glyphStage.Execute(ctx, pipeline.GlyphInput{
		Text:      spec.Text,
		FontPath:  spec.FontPath,
		TextScale: spec.TextScale,
		RefDim:    page.Height,
	})
	if err != nil {
		return 0, "", fmt.Errorf("glyph stage: %w", err)
	}

	// 3. Placements
	pattern, err := o.patternStage.Execute(ctx, pipeline.PatternInput{
		Canvas:     page.Dimension(),
		Glyph:      pipeline.Dimension{Width: base.Masks.Base.Width, Height: base.Masks.Base.Height},
		Pattern:    spec.Pattern,
		SpaceScale: spec.SpaceScale,
		Seed:       spec.Seed,
	})
	if err != nil {
		return 0, "", fmt.Errorf("pattern stage: %w", err)
	}

	// 4. Rotated masks, then blend
	glyphs, err := o.glyphStage.Execute(ctx, pipeline.GlyphInput{
		Text:       spec.Text,
		FontPath:   spec.FontPath,
		TextScale:  spec.TextScale,
		RefDim:     page.Height,
		Placements: pattern.Placements,
	})
	if err != nil {
		return 0, "", fmt.Errorf("glyph stage: %w", err)
	}

	if o.sink.Enabled() {
		o.saveDebug(name, index, pattern.Placements, glyphs.Masks)
	}

	composited, err := o.compositeStage.Execute(ctx, pipeline.CompositeInput{
		Buffer:     page,
		Placements: pattern.Placements,
		Masks:      glyphs.Masks,
		Ink:        spec.Ink(),
	})
	if err != nil {
		return 0, "", fmt.Errorf("composite stage: %w", err)
	}

	if o.sink.Enabled() {
		if err := o.sink.SaveComposited(name, index, composited.Buffer.ToImage()); err != nil {
			o.logger.Warn(l10n.F("Failed to save debug output: %s", err))
		}
	}
	return len(pattern.Placements), composited.Backend, nil
}

func (o *Orchestrator) saveDebug(name string, index int, placements []pipeline.Placement, masks *pipeline.MaskSet) {
	if data, err := json.MarshalIndent(placements, "", "  "); err == nil {
		if err := o.sink.SavePlacementsJSON(name, index, data); err != nil {
			o.logger.Warn(l10n.F("Failed to save debug output: %s", err))
		}
	}
	// Masks are identical for every page of a document at the same size.
	if index > 0 {
		return
	}
	all := append([]*pipeline.GlyphMask{masks.Base}, masks.Masks()...)
	for i, m := range all {
		if err := o.sink.SaveMask(name, i, glyph.ToImage(m)); err != nil {
			o.logger.Warn(l10n.F("Failed to save debug output: %s", err))
			return
		}
	}
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// mergeBackend reports "mixed" when pages of one file ran on different
// backends.
func mergeBackend(current, next string) string {
	switch {
	case current == "" || current == next:
		return next
	default:
		return "mixed"
	}
}
