package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/tunedl/internal/models"
)

// runPool feeds indices [0, n) to workers goroutines.
//
// work returns false when it abandoned the item because ctx was cancelled; such items are not counted.
// The worker whose item brings the completed count to n calls last exactly once, before runPool returns.
func runPool(ctx context.Context, n, workers int, work func(ctx context.Context, idx int) bool, last func()) int {
	if n == 0 {
		return 0
	}
	workers = max(1, min(workers, n))

	jobs := make(chan int, n)
	for i := range n {
		jobs <- i
	}
	close(jobs)

	var completed atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				if !work(ctx, idx) {
					continue
				}
				if completed.Add(1) == int64(n) && last != nil {
					last()
				}
			}
		}()
	}
	wg.Wait()
	return int(completed.Load())
}

// Summary aggregates the terminal updates of a run, bucketed by severity.
type Summary struct {
	RunID     string
	Total     int
	Completed int
	Succeeded []models.Update
	Warned    []models.Update
	Failed    []models.Update
	Cancelled bool
	StartedAt time.Time
	Elapsed   time.Duration
}

// Counts returns the size of each severity bucket.
func (s Summary) Counts() (succeeded, warned, failed int) {
	return len(s.Succeeded), len(s.Warned), len(s.Failed)
}

// Attempt is one step of the fallback chain for an item.
type Attempt struct {
	Index    int
	Track    models.Track
	Source   models.Source
	Quality  string
	Severity models.Severity
	Err      error
}

// AttemptObserver is an optional [models.StatusSink] extension notified of every fallback step.
type AttemptObserver interface {
	OnAttempt(Attempt)
}

// CompletionObserver is an optional [models.StatusSink] extension called once by the worker that finishes
// the last item of a run that was not cancelled.
type CompletionObserver interface {
	OnComplete(Summary)
}

type tally struct {
	mu sync.Mutex
	s  Summary
}

func newTally(runID string, total int) *tally {
	return &tally{s: Summary{RunID: runID, Total: total, StartedAt: time.Now()}}
}

func (t *tally) add(u models.Update) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch u.Severity {
	case models.Success:
		t.s.Succeeded = append(t.s.Succeeded, u)
	case models.Warning:
		t.s.Warned = append(t.s.Warned, u)
	default:
		t.s.Failed = append(t.s.Failed, u)
	}
	t.s.Completed++
	return t.s.Completed
}

func (t *tally) position() (completed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.Completed, t.s.Total
}

func (t *tally) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s.Total
}

func (t *tally) snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	s.Succeeded = append([]models.Update(nil), t.s.Succeeded...)
	s.Warned = append([]models.Update(nil), t.s.Warned...)
	s.Failed = append([]models.Update(nil), t.s.Failed...)
	s.Elapsed = time.Since(s.StartedAt)
	return s
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
