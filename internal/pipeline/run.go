package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ppiankov/applytrail/internal/model"
)

// Run is the handle of one pipeline run. It is owned by the Orchestrator that
// started it; callers use it to cancel, observe and wait.
type Run struct {
	ID        string
	StartedAt time.Time

	cancelled atomic.Bool
	done      chan struct{}

	mu      sync.Mutex
	stage   model.Stage
	index   int
	total   int
	seq     int
	summary *model.Summary
	err     error
}

func newRun(id string, startedAt time.Time) *Run {
	return &Run{
		ID:        id,
		StartedAt: startedAt,
		done:      make(chan struct{}),
		stage:     model.StageIdle,
	}
}

// Cancel asks the run to stop before its next item. The item in flight
// completes.
func (r *Run) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested
func (r *Run) Cancelled() bool {
	return r.cancelled.Load()
}

// Done is closed when the run has finished
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes. The summary is non-nil even when an
// error is returned, so partial results are never lost.
func (r *Run) Wait() (*model.Summary, error) {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary, r.err
}

// RunStatus is a point-in-time view of a run
type RunStatus struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"started_at"`
	Stage     model.Stage    `json:"stage"`
	Index     int            `json:"index"`
	Total     int            `json:"total"`
	Cancelled bool           `json:"cancelled"`
	Finished  bool           `json:"finished"`
	Error     string         `json:"error,omitempty"`
	Summary   *model.Summary `json:"summary,omitempty"`
}

// Status returns the current state of the run
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := RunStatus{
		ID:        r.ID,
		StartedAt: r.StartedAt,
		Stage:     r.stage,
		Index:     r.index,
		Total:     r.total,
		Cancelled: r.Cancelled(),
	}
	select {
	case <-r.done:
		st.Finished = true
		st.Summary = r.summary
		if r.err != nil {
			st.Error = r.err.Error()
		}
	default:
	}
	return st
}

func (r *Run) setStage(stage model.Stage) {
	r.mu.Lock()
	r.stage = stage
	r.mu.Unlock()
}

func (r *Run) setProgress(index, total int) {
	r.mu.Lock()
	r.index, r.total = index, total
	r.mu.Unlock()
}

func (r *Run) nextSeq() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

func (r *Run) finish(summary *model.Summary, err error) {
	r.mu.Lock()
	r.summary = summary
	r.err = err
	r.stage = model.StageIdle
	r.mu.Unlock()
	close(r.done)
}
