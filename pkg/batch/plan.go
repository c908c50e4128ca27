package batch

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/user/watermark/pkg/orchestrator"
	"github.com/user/watermark/pkg/pipeline"
)

// OutputSuffix is appended to the input stem to name the output file.
const OutputSuffix = "_watermark"

// PlanConcurrency resolves the worker count. Values below one use one
// worker per core. When jobs is positive the count never exceeds it.
func PlanConcurrency(concurrency, jobs int) int {
	if concurrency < 1 {
		concurrency = runtime.NumCPU()
	}
	if jobs > 0 && concurrency > jobs {
		concurrency = jobs
	}
	return max(1, concurrency)
}

// PlanThreads divides cores between concurrent images. An explicit thread
// count always wins. GPU jobs need one host thread each.
func PlanThreads(cores, concurrency, threads int, gpu bool) int {
	if threads > 0 {
		return threads
	}
	if gpu {
		return 1
	}
	if cores < 1 {
		cores = runtime.NumCPU()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return max(1, cores/concurrency)
}

// OutputOptions controls how outputs are named and encoded.
type OutputOptions struct {
	PDF     bool // wrap outputs in PDF documents
	Quality int  // JPEG quality
}

// OutputPath returns "<dir>/<stem>_watermark.<ext>" for input. With pdf
// set the extension becomes ".pdf".
func OutputPath(input string, pdf bool) string {
	dir := filepath.Dir(input)
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if pdf {
		ext = ".pdf"
	}
	return filepath.Join(dir, stem+OutputSuffix+ext)
}

// BuildJobs creates one job per path, in order.
func BuildJobs(paths []string, opts OutputOptions) []Job {
	jobs := make([]Job, len(paths))
	for i, p := range paths {
		task := orchestrator.Task{
			Input:   p,
			Output:  OutputPath(p, opts.PDF),
			Quality: opts.Quality,
		}
		if opts.PDF {
			task.Format = pipeline.FormatPDF
		}
		jobs[i] = Job{Index: i, Task: task}
	}
	return jobs
}
