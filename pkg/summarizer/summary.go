// Package summarizer provides summary generation for batch runs.
package summarizer

import (
	"time"

	"github.com/google/uuid"

	"github.com/user/watermark/pkg/batch"
	"github.com/user/watermark/pkg/config"
	"github.com/user/watermark/pkg/pipeline"
)

// Summary contains all data collected during a run.
type Summary struct {
	// Metadata
	GeneratedAt time.Time
	RunID       string
	Input       string

	// Watermark applied to every file
	Watermark WatermarkInfo

	// Execution settings
	Settings Settings

	// Per-file outcomes, in input order
	Files []FileEntry

	// Totals across Files
	Totals Totals
}

// WatermarkInfo describes the watermark spec.
type WatermarkInfo struct {
	Text       string
	Pattern    string
	TextScale  float64
	SpaceScale float64
	Color      string
	Opacity    int
	Seed       uint64
	Font       string
}

// Settings contains the execution configuration.
type Settings struct {
	GPU         string
	Threads     int // 0 = auto
	Concurrency int
	Quality     int
	PDF         bool
	Recursive   bool
}

// FileEntry is one processed file.
type FileEntry struct {
	Input      string
	Output     string
	Pages      int
	Placements int
	Backend    string
	Bytes      int
	Elapsed    time.Duration
	Error      string // empty on success
	Kind       string
}

// OK reports whether the file succeeded.
func (f FileEntry) OK() bool {
	return f.Error == ""
}

// Totals summarizes the run.
type Totals struct {
	Files     int
	Succeeded int
	Failed    int
	Canceled  int
	Bytes     int64
	Elapsed   time.Duration
}

// NewSummary creates a new Summary with the current timestamp and a fresh
// run ID.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
		RunID:       uuid.NewString(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithRunID replaces the generated run ID.
func (b *Builder) WithRunID(id string) *Builder {
	b.summary.RunID = id
	return b
}

// WithInput sets the file or directory the run was started on.
func (b *Builder) WithInput(input string) *Builder {
	b.summary.Input = input
	return b
}

// WithSpec sets watermark information.
func (b *Builder) WithSpec(spec pipeline.WatermarkSpec) *Builder {
	b.summary.Watermark = WatermarkInfo{
		Text:       spec.Text,
		Pattern:    string(spec.Pattern),
		TextScale:  spec.TextScale,
		SpaceScale: spec.SpaceScale,
		Color:      config.FormatColor(spec.Color),
		Opacity:    int(spec.Opacity),
		Seed:       spec.Seed,
		Font:       spec.FontPath,
	}
	return b
}

// WithSettings sets execution settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithResults records per-file outcomes and recomputes the totals.
func (b *Builder) WithResults(results []batch.Result) *Builder {
	files := make([]FileEntry, len(results))
	var bytes int64
	for i, r := range results {
		e := FileEntry{
			Input:      r.Job.Task.Input,
			Output:     r.Job.Task.Output,
			Pages:      r.File.Pages,
			Placements: r.File.Placements,
			Backend:    r.File.Backend,
			Bytes:      r.File.Bytes,
			Elapsed:    r.File.Elapsed,
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
			e.Kind = r.Kind.String()
		}
		bytes += int64(r.File.Bytes)
		files[i] = e
	}

	c := batch.Count(results)
	b.summary.Files = files
	b.summary.Totals.Files = c.Total
	b.summary.Totals.Succeeded = c.Succeeded
	b.summary.Totals.Failed = c.Failed
	b.summary.Totals.Canceled = c.Canceled
	b.summary.Totals.Bytes = bytes
	return b
}

// WithElapsed sets the wall time of the run.
func (b *Builder) WithElapsed(d time.Duration) *Builder {
	b.summary.Totals.Elapsed = d
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
