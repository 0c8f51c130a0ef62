package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// =============================================================================
// COMPLETION RECONCILER — Flips Drained Campaigns to Completed
// =============================================================================
// Completion is a derived fact: a campaign is done when its queue has nothing
// left to send and at least one item reached a terminal state. Rather than
// racing to detect the last send inline, this worker periodically asks the
// campaign service to reconcile, so a crash between the final send and the
// status flip heals on the next pass.

// completionService is the slice of the campaign service the reconciler uses.
type completionService interface {
	ReconcileCompletion(ctx context.Context) (int, error)
}

// Reconciler periodically marks drained campaigns completed.
type Reconciler struct {
	svc      completionService
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewReconciler creates a reconciler polling at the given interval.
func NewReconciler(svc completionService, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{svc: svc, interval: interval}
}

// Start launches the reconcile loop.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reconciler already running")
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	r.wg.Add(1)
	go r.run()

	log.Printf("[Reconciler] started (interval=%s)", r.interval)
	return nil
}

// Stop signals the loop and waits for the in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()

	r.wg.Wait()
	log.Printf("[Reconciler] stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.pass()
		}
	}
}

func (r *Reconciler) pass() {
	n, err := r.svc.ReconcileCompletion(r.ctx)
	if err != nil {
		log.Printf("[Reconciler] pass failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Reconciler] completed %d campaigns", n)
	}
}
