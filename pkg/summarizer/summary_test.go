package summarizer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/user/watermark/pkg/batch"
	"github.com/user/watermark/pkg/orchestrator"
	"github.com/user/watermark/pkg/pipeline"
)

func TestNewSummary(t *testing.T) {
	before := time.Now()
	summary := NewSummary()
	after := time.Now()

	if summary.GeneratedAt.Before(before) || summary.GeneratedAt.After(after) {
		t.Errorf("GeneratedAt should be between %v and %v, got %v",
			before, after, summary.GeneratedAt)
	}
	if summary.RunID == "" {
		t.Error("expected a run ID")
	}
	if other := NewSummary(); other.RunID == summary.RunID {
		t.Errorf("expected distinct run IDs, got %s twice", summary.RunID)
	}
}

func TestBuilder_WithRunID(t *testing.T) {
	summary := NewBuilder().WithRunID("run-1").WithInput("photos").Build()

	if summary.RunID != "run-1" {
		t.Errorf("expected run ID 'run-1', got '%s'", summary.RunID)
	}
	if summary.Input != "photos" {
		t.Errorf("expected input 'photos', got '%s'", summary.Input)
	}
}

func TestBuilder_WithSpec(t *testing.T) {
	spec := pipeline.DefaultSpec("CONFIDENTIAL")
	spec.Pattern = pipeline.PatternRandom
	spec.Color = pipeline.RGB{R: 0xff, G: 0x00, B: 0x80}
	spec.Opacity = 64
	spec.Seed = 7

	summary := NewBuilder().WithSpec(spec).Build()

	w := summary.Watermark
	if w.Text != "CONFIDENTIAL" {
		t.Errorf("expected text 'CONFIDENTIAL', got '%s'", w.Text)
	}
	if w.Pattern != string(pipeline.PatternRandom) {
		t.Errorf("expected pattern %s, got %s", pipeline.PatternRandom, w.Pattern)
	}
	if w.Color != "#ff0080" {
		t.Errorf("expected color '#ff0080', got '%s'", w.Color)
	}
	if w.Opacity != 64 {
		t.Errorf("expected opacity 64, got %d", w.Opacity)
	}
	if w.Seed != 7 {
		t.Errorf("expected seed 7, got %d", w.Seed)
	}
}

func TestBuilder_WithResults(t *testing.T) {
	results := []batch.Result{
		{
			Job: batch.Job{Index: 0, Task: orchestrator.Task{Input: "a.png", Output: "a_watermark.png"}},
			File: orchestrator.FileResult{
				Pages: 1, Placements: 12, Backend: "cpu", Bytes: 1000, Elapsed: 20 * time.Millisecond,
			},
		},
		{
			Job:  batch.Job{Index: 1, Task: orchestrator.Task{Input: "b.png", Output: "b_watermark.png"}},
			Err:  fmt.Errorf("b.png: %w", pipeline.ErrDecode),
			Kind: pipeline.KindDecode,
		},
		{
			Job:  batch.Job{Index: 2, Task: orchestrator.Task{Input: "c.png", Output: "c_watermark.png"}},
			Err:  context.Canceled,
			Kind: pipeline.KindCanceled,
		},
	}

	summary := NewBuilder().
		WithResults(results).
		WithElapsed(time.Second).
		Build()

	if len(summary.Files) != 3 {
		t.Fatalf("expected 3 files, got %d", len(summary.Files))
	}
	tot := summary.Totals
	if tot.Files != 3 || tot.Succeeded != 1 || tot.Failed != 1 || tot.Canceled != 1 {
		t.Errorf("unexpected totals: %+v", tot)
	}
	if tot.Bytes != 1000 {
		t.Errorf("expected 1000 bytes, got %d", tot.Bytes)
	}
	if tot.Elapsed != time.Second {
		t.Errorf("expected elapsed 1s, got %v", tot.Elapsed)
	}

	if !summary.Files[0].OK() {
		t.Error("expected first file to be OK")
	}
	if summary.Files[0].Placements != 12 {
		t.Errorf("expected 12 placements, got %d", summary.Files[0].Placements)
	}
	if summary.Files[1].OK() {
		t.Error("expected second file to fail")
	}
	if summary.Files[1].Kind != "decode" {
		t.Errorf("expected kind 'decode', got '%s'", summary.Files[1].Kind)
	}
	if summary.Files[2].Kind != "canceled" {
		t.Errorf("expected kind 'canceled', got '%s'", summary.Files[2].Kind)
	}
}

func TestBuilder_WithSettings(t *testing.T) {
	settings := Settings{GPU: "auto", Threads: 4, Concurrency: 2, Quality: 90, PDF: true}

	summary := NewBuilder().WithSettings(settings).Build()

	if summary.Settings != settings {
		t.Errorf("expected %+v, got %+v", settings, summary.Settings)
	}
}
