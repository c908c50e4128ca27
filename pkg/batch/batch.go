// Package batch runs the per-file pipeline over many inputs with a bounded
// worker pool.
package batch

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ideamans/go-l10n"

	"github.com/user/watermark/pkg/orchestrator"
	"github.com/user/watermark/pkg/pipeline"
	"github.com/user/watermark/pkg/ports"
)

// Processor watermarks a single file.
type Processor interface {
	Run(ctx context.Context, spec pipeline.WatermarkSpec, task orchestrator.Task) (orchestrator.FileResult, error)
}

// Job is one input file of a batch.
type Job struct {
	Index int
	Task  orchestrator.Task
}

// Result is the outcome of one job. Err is nil on success.
type Result struct {
	Job  Job
	File orchestrator.FileResult
	Err  error
	Kind pipeline.ErrorKind
}

// OK reports whether the job succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Runner distributes jobs over a fixed number of workers.
type Runner struct {
	processor   Processor
	concurrency int
	logger      ports.Logger
}

// NewRunner creates a runner with concurrency workers. Values below one
// use one worker per core.
func NewRunner(processor Processor, concurrency int, logger ports.Logger) *Runner {
	return &Runner{
		processor:   processor,
		concurrency: PlanConcurrency(concurrency, 0),
		logger:      logger.WithComponent("batch"),
	}
}

// Concurrency returns the worker count.
func (r *Runner) Concurrency() int {
	return r.concurrency
}

// Run processes every job and returns one result per job sorted by index.
// A failing job never stops the batch. Once ctx is canceled no further job
// is started; jobs already running finish, and jobs never started report
// context.Canceled.
func (r *Runner) Run(ctx context.Context, spec pipeline.WatermarkSpec, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	queue := make(chan int)
	started := make([]bool, len(jobs))
	var finished atomic.Int32
	var wg sync.WaitGroup

	// Start workers
	workers := min(r.concurrency, len(jobs))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go r.worker(ctx, &wg, spec, jobs, queue, results, &finished)
	}

	// Send jobs
dispatch:
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- i:
			started[i] = true
		}
	}
	close(queue)

	// Wait for workers to finish
	wg.Wait()

	for i := range jobs {
		if !started[i] {
			results[i] = Result{Job: jobs[i], Err: context.Canceled, Kind: pipeline.KindCanceled}
		}
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return a.Job.Index - b.Job.Index
	})
	return results
}

// worker processes jobs from the queue.
func (r *Runner) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	spec pipeline.WatermarkSpec,
	jobs []Job,
	queue <-chan int,
	results []Result,
	finished *atomic.Int32,
) {
	defer wg.Done()

	// A started job runs to completion even if the batch is canceled.
	jobCtx := context.WithoutCancel(ctx)

	for idx := range queue {
		job := jobs[idx]
		file, err := r.processor.Run(jobCtx, spec, job.Task)
		results[idx] = Result{Job: job, File: file, Err: err, Kind: pipeline.KindOf(err)}

		n := finished.Add(1)
		if err != nil {
			r.logger.Warn(l10n.F("[%d/%d] Failed %s: %s", n, len(jobs), job.Task.Input, err))
			continue
		}
		r.logger.Info(l10n.F("[%d/%d] %s -> %s (%s, %s)", n, len(jobs), job.Task.Input, job.Task.Output,
			file.Backend, file.Elapsed.Round(time.Millisecond)))
	}
}

// Counts tallies results.
type Counts struct {
	Total     int
	Succeeded int
	Failed    int
	Canceled  int
}

// Count tallies results. Canceled jobs are not counted as failures.
func Count(results []Result) Counts {
	c := Counts{Total: len(results)}
	for _, r := range results {
		switch {
		case r.OK():
			c.Succeeded++
		case r.Kind == pipeline.KindCanceled:
			c.Canceled++
		default:
			c.Failed++
		}
	}
	return c
}
