package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool fans a batch of jobs out over a fixed number of goroutines and
// gathers the results.
type Pool struct {
	workers int
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Workers returns the configured concurrency
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes all jobs and returns their results in submission order.
// A failing job does not stop the others. Jobs never started because ctx was
// cancelled have a nil Result.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range indexes {
				results[idx] = jobs[idx].Execute(ctx)
			}
		}()
	}

feed:
	for i := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	return results
}

// Partition splits results into successes and failures. Nil results count
// as failures with a nil error.
func Partition(results []Result) (ok []Result, failed []Result) {
	for _, r := range results {
		if r == nil || r.GetError() != nil {
			failed = append(failed, r)
			continue
		}
		ok = append(ok, r)
	}
	return ok, failed
}
