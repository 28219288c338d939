package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(5)
	if p1.Workers() != 5 {
		t.Errorf("expected 5 workers, got %d", p1.Workers())
	}

	p2 := NewPool(0)
	if p2.Workers() != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.Workers())
	}

	p3 := NewPool(-1)
	if p3.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.Workers())
	}
}

func TestPool_RunPreservesOrder(t *testing.T) {
	pool := NewPool(4)

	var executed int32
	count := 50
	jobs := make([]Job, count)
	for i := 0; i < count; i++ {
		// Later jobs finish first to make ordering non-trivial
		jobs[i] = &mockJob{id: i, executed: &executed, duration: time.Duration(count-i) * 100 * time.Microsecond}
	}

	results := pool.Run(context.Background(), jobs)

	if len(results) != count {
		t.Fatalf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
	for i, r := range results {
		if r.(*mockResult).id != i {
			t.Fatalf("result %d belongs to job %d", i, r.(*mockResult).id)
		}
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPool(workers)

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	totalJobs := 50
	jobs := make([]Job, 0, totalJobs)
	for i := 0; i < totalJobs; i++ {
		jobs = append(jobs, &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 5 * time.Millisecond,
		})
	}

	pool.Run(context.Background(), jobs)

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
}

func TestPool_PartialFailure(t *testing.T) {
	pool := NewPool(2)

	results := pool.Run(context.Background(), []Job{
		&mockJob{id: 0},
		&mockJob{id: 1, shouldErr: true},
		&mockJob{id: 2},
	})

	ok, failed := Partition(results)
	if len(ok) != 2 {
		t.Errorf("expected 2 successes, got %d", len(ok))
	}
	if len(failed) != 1 {
		t.Errorf("expected 1 failure, got %d", len(failed))
	}
}

func TestPool_CancelledContext(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan []Result)
	go func() {
		done <- pool.Run(ctx, []Job{&mockJob{}, &mockJob{}, &mockJob{}})
	}()

	select {
	case results := <-done:
		if len(results) != 3 {
			t.Fatalf("expected 3 result slots, got %d", len(results))
		}
		_, failed := Partition(results)
		if len(failed) == 0 {
			t.Error("expected unstarted jobs to count as failures")
		}
	case <-time.After(time.Second):
		t.Fatal("Run with cancelled context blocked")
	}
}

func TestPool_EmptyBatch(t *testing.T) {
	results := NewPool(3).Run(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
