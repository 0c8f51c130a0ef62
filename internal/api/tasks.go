package api

import (
	"context"
	"log"
	"sync"
	"time"
)

// taskTimeout bounds a single background job. Launch planning over a large
// list is the slowest job and finishes well inside this.
const taskTimeout = 10 * time.Minute

// TaskRunner executes background jobs on a bounded pool. Launch, stage and
// retry return 202 to the caller and run here; the semaphore keeps a burst of
// requests from piling up planning goroutines.
type TaskRunner struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewTaskRunner creates a runner allowing up to size concurrent jobs.
func NewTaskRunner(size int) *TaskRunner {
	if size <= 0 {
		size = 4
	}
	return &TaskRunner{sem: make(chan struct{}, size)}
}

// Submit runs fn on the pool. Returns false when the pool is saturated; the
// caller should tell the client to retry rather than queue unbounded work.
func (t *TaskRunner) Submit(name string, fn func(ctx context.Context) error) bool {
	select {
	case t.sem <- struct{}{}:
	default:
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		defer cancel()

		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Printf("[TaskRunner] %s failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
			return
		}
		log.Printf("[TaskRunner] %s finished in %s", name, time.Since(start).Round(time.Millisecond))
	}()
	return true
}

// Wait blocks until all submitted jobs finish. Used on shutdown.
func (t *TaskRunner) Wait() {
	t.wg.Wait()
}
