package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/tapresolver/pkg/fingerprint"
)

// SessionWorker is one device session pulling jobs from the shared
// queue.
type SessionWorker struct {
	ID        int
	SessionID string
	Cleanup   func()
}

// Job is a single resolution request: one fingerprint executed under
// one policy.
type Job struct {
	Fingerprint *fingerprint.Fingerprint
	Policy      Policy
}

// RunFn executes one job against a session and returns its result.
type RunFn func(ctx context.Context, sessionID string, job Job) (*Result, error)

// JobResult pairs a job's position with its outcome.
type JobResult struct {
	Index  int
	Result *Result
	Err    error
}

// ParallelResult aggregates a multi-session run.
type ParallelResult struct {
	TotalJobs     int
	CompletedJobs int
	FailedJobs    int
	Duration      time.Duration
	Jobs          []JobResult
}

// ParallelRunner fans jobs out across multiple device sessions. All
// workers pull from the same queue until every job is done.
type ParallelRunner struct {
	workers []SessionWorker
	run     RunFn
}

// NewParallelRunner creates a runner over the given session workers.
func NewParallelRunner(workers []SessionWorker, run RunFn) *ParallelRunner {
	return &ParallelRunner{workers: workers, run: run}
}

type queuedJob struct {
	job   Job
	index int
}

// Run executes jobs in parallel using a work queue pattern.
func (pr *ParallelRunner) Run(ctx context.Context, jobs []Job) (*ParallelResult, error) {
	if len(pr.workers) == 0 {
		return nil, fmt.Errorf("no workers available")
	}

	queue := make(chan queuedJob, len(jobs))
	for i, j := range jobs {
		queue <- queuedJob{job: j, index: i}
	}
	close(queue)

	results := make([]JobResult, len(jobs))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	start := time.Now()

	for i := range pr.workers {
		wg.Add(1)
		worker := pr.workers[i]

		go func(w SessionWorker) {
			defer wg.Done()
			if w.Cleanup != nil {
				defer w.Cleanup()
			}

			for item := range queue {
				res, err := pr.run(ctx, w.SessionID, item.job)

				resultsMu.Lock()
				results[item.index] = JobResult{Index: item.index, Result: res, Err: err}
				resultsMu.Unlock()
			}
		}(worker)
	}

	wg.Wait()

	return pr.buildResult(results, time.Since(start)), nil
}

// buildResult aggregates job outcomes. Wall clock duration is used
// rather than the sum of per-job durations.
func (pr *ParallelRunner) buildResult(results []JobResult, elapsed time.Duration) *ParallelResult {
	out := &ParallelResult{
		TotalJobs: len(results),
		Duration:  elapsed,
		Jobs:      results,
	}
	for _, jr := range results {
		if jr.Err == nil && jr.Result != nil && jr.Result.Success {
			out.CompletedJobs++
		} else {
			out.FailedJobs++
		}
	}
	return out
}
