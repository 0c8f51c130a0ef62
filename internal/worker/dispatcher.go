package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ozlistings/outreach-engine/internal/config"
	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/genai"
	"github.com/ozlistings/outreach-engine/internal/render"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
)

// =============================================================================
// DISPATCHER — Polls the Queue & Sends Due Emails
// =============================================================================
// Every poll interval the dispatcher claims a batch of due queue items and
// pushes them through SparkPost. Items staged without a body get their
// personalized sections generated just-in-time and the rendered result saved
// back to the row, so a later retry reuses it instead of paying for another
// model call.
//
// A per-campaign generation-error counter guards against burning model spend
// on a whole list when something is systematically wrong (bad template, model
// outage). The counter is scoped to a single batch and resets on a successful
// generation; once it reaches the threshold the campaign is paused with a
// reason and the rest of its items in the batch are skipped. Plain send
// rejections mark the item failed but do not feed the counter.

// campaignStore is the slice of the campaign repository the dispatcher needs.
type campaignStore interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	Pause(ctx context.Context, id, reason string) error
	TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error)
}

// queueStore is the slice of the queue repository the dispatcher needs.
type queueStore interface {
	DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error)
	Claim(ctx context.Context, id string) (bool, error)
	SaveBody(ctx context.Context, id, body string) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id, message string) error
	ResetStuck(ctx context.Context, olderThan time.Time) (int64, error)
}

// MessageSender sends a single rendered email. *sparkpost.Client satisfies it.
type MessageSender interface {
	Send(ctx context.Context, msg sparkpost.Message) (bool, error)
}

// Dispatcher is the send loop. One instance per process; row claims keep
// multiple processes from double-sending.
type Dispatcher struct {
	campaigns campaignStore
	queue     queueStore
	sender    MessageSender
	generator genai.Generator
	renderer  *render.Renderer

	cfg   config.DispatcherConfig
	sched config.SchedulingConfig
	loc   *time.Location

	now func() time.Time

	totalSent      int64
	totalFailed    int64
	totalGenerated int64
	totalSwept     int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewDispatcher wires a dispatcher from its stores and clients.
func NewDispatcher(campaigns campaignStore, queue queueStore, sender MessageSender,
	generator genai.Generator, renderer *render.Renderer,
	cfg config.DispatcherConfig, sched config.SchedulingConfig) *Dispatcher {

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		log.Printf("[Dispatcher] invalid timezone %q, falling back to UTC: %v", sched.Timezone, err)
		loc = time.UTC
	}
	return &Dispatcher{
		campaigns: campaigns,
		queue:     queue,
		sender:    sender,
		generator: generator,
		renderer:  renderer,
		cfg:       cfg,
		sched:     sched,
		loc:       loc,
		now:       time.Now,
	}
}

// WithClock overrides the dispatcher's clock. Test hook.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Start launches the poll loop.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("dispatcher already running")
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.running = true

	d.wg.Add(1)
	go d.run()

	log.Printf("[Dispatcher] started (poll=%s batch=%d breaker=%d)",
		d.cfg.PollInterval(), d.cfg.BatchSize, d.cfg.CircuitBreakerThreshold)
	return nil
}

// Stop signals the loop and waits for the in-flight batch to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.cancel()
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	log.Printf("[Dispatcher] stopped (sent=%d failed=%d generated=%d)",
		atomic.LoadInt64(&d.totalSent), atomic.LoadInt64(&d.totalFailed),
		atomic.LoadInt64(&d.totalGenerated))
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval())
	defer ticker.Stop()

	d.tick()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Dispatcher) tick() {
	d.sweepStuck(d.ctx)
	if !d.withinWorkingHours(d.now()) {
		return
	}
	d.ProcessBatch(d.ctx)
}

// withinWorkingHours reports whether sending is allowed at the given instant.
// Only the hour is checked; the planner never schedules weekend slots, so any
// weekend row here was placed deliberately through an override.
func (d *Dispatcher) withinWorkingHours(now time.Time) bool {
	if d.sched.DisableWorkingHours {
		return true
	}
	h := now.In(d.loc).Hour()
	return h >= d.sched.WorkingHourStart && h < d.sched.WorkingHourEnd
}

// sweepStuck requeues rows a crashed worker left in processing.
func (d *Dispatcher) sweepStuck(ctx context.Context) {
	cutoff := d.now().Add(-d.cfg.StuckAfter())
	n, err := d.queue.ResetStuck(ctx, cutoff)
	if err != nil {
		log.Printf("[Dispatcher] stuck sweep failed: %v", err)
		return
	}
	if n > 0 {
		atomic.AddInt64(&d.totalSwept, n)
		log.Printf("[Dispatcher] requeued %d stuck items", n)
	}
}

// ProcessBatch claims and sends one batch of due items. Exposed so tests and
// manual triggers can run a single cycle without the ticker.
func (d *Dispatcher) ProcessBatch(ctx context.Context) (sent, failed int) {
	now := d.now()
	batch, err := d.queue.DueBatch(ctx, now, d.cfg.BatchSize)
	if err != nil {
		log.Printf("[Dispatcher] load batch failed: %v", err)
		return 0, 0
	}
	if len(batch) == 0 {
		return 0, 0
	}
	log.Printf("[Dispatcher] processing %d due items", len(batch))

	errCounts := make(map[string]int)
	tripped := make(map[string]bool)
	cache := make(map[string]*domain.Campaign)

	for i := range batch {
		item := &batch[i]
		if tripped[item.CampaignID] {
			continue
		}

		c, ok := cache[item.CampaignID]
		if !ok {
			c, err = d.campaigns.Get(ctx, item.CampaignID)
			if err != nil {
				// Leave the row queued; the next batch retries once the
				// store recovers.
				log.Printf("[Dispatcher] campaign %s lookup failed: %v", item.CampaignID, err)
				continue
			}
			cache[item.CampaignID] = c
		}
		if c.Status == domain.CampaignPaused {
			continue
		}

		claimed, err := d.queue.Claim(ctx, item.ID)
		if err != nil {
			log.Printf("[Dispatcher] claim %s failed: %v", item.ID, err)
			continue
		}
		if !claimed {
			// Another worker got there first.
			continue
		}

		outcome, generatedOK := d.sendItem(ctx, c, item)
		if generatedOK {
			errCounts[c.ID] = 0
		}
		switch outcome {
		case outcomeSent:
			sent++
		case outcomeGenFailed:
			failed++
			errCounts[c.ID]++
			if errCounts[c.ID] >= d.cfg.CircuitBreakerThreshold {
				d.tripBreaker(ctx, c, errCounts[c.ID])
				tripped[c.ID] = true
			}
		case outcomeSendFailed:
			failed++
		}
	}

	atomic.AddInt64(&d.totalSent, int64(sent))
	atomic.AddInt64(&d.totalFailed, int64(failed))
	if sent > 0 || failed > 0 {
		log.Printf("[Dispatcher] batch done: sent=%d failed=%d", sent, failed)
	}
	return sent, failed
}

// itemOutcome distinguishes generation failures from send failures: only the
// former feed the circuit breaker.
type itemOutcome int

const (
	outcomeSent itemOutcome = iota
	outcomeSendFailed
	outcomeGenFailed
)

// sendItem renders (if needed) and sends one claimed item, recording the
// outcome on the row. The boolean reports whether a just-in-time generation
// succeeded; the breaker counter resets on that, not on the send.
func (d *Dispatcher) sendItem(ctx context.Context, c *domain.Campaign, item *domain.QueueItem) (itemOutcome, bool) {
	generatedOK := false
	body := item.Body
	if item.NeedsRendering() {
		// The generator sees the full section list so the model writes
		// content that fits between the static sections around it.
		generated, err := d.generator.GenerateSections(ctx, c.Sections, item.Metadata)
		if err != nil {
			log.Printf("[Dispatcher] generation failed for %s: %v", item.ID, err)
			d.markFailed(ctx, item.ID, "generation error: "+err.Error())
			return outcomeGenFailed, false
		}
		generatedOK = true
		if c.EmailFormat == domain.FormatText {
			body = d.renderer.Text(c.Sections, item.Subject, item.Metadata, generated)
		} else {
			body = d.renderer.HTML(c.Sections, item.Subject, item.Metadata, generated)
		}
		if err := d.queue.SaveBody(ctx, item.ID, body); err != nil {
			// Send anyway; only the cached body is lost.
			log.Printf("[Dispatcher] save body %s: %v", item.ID, err)
		}
		atomic.AddInt64(&d.totalGenerated, 1)
	}

	from := ""
	if item.FromEmail != nil {
		from = *item.FromEmail
	}
	if from == "" {
		d.markFailed(ctx, item.ID, "missing from address")
		return outcomeSendFailed, generatedOK
	}

	ok, err := d.sender.Send(ctx, sparkpost.Message{
		To:           item.ToEmail,
		From:         from,
		Subject:      item.Subject,
		Body:         body,
		CampaignID:   c.ID,
		CampaignName: c.Name,
		Metadata: map[string]string{
			"campaign_id":    c.ID,
			"email_queue_id": item.ID,
		},
	})
	if err != nil || !ok {
		msg := "send rejected"
		if err != nil {
			msg = err.Error()
		}
		d.markFailed(ctx, item.ID, msg)
		return outcomeSendFailed, generatedOK
	}

	if err := d.queue.MarkSent(ctx, item.ID, d.now()); err != nil {
		log.Printf("[Dispatcher] mark sent %s: %v", item.ID, err)
	}
	if c.Status == domain.CampaignScheduled {
		flipped, err := d.campaigns.TransitionStatus(ctx, c.ID,
			[]domain.CampaignStatus{domain.CampaignScheduled}, domain.CampaignSending)
		if err != nil {
			log.Printf("[Dispatcher] flip campaign %s to sending: %v", c.ID, err)
		}
		if flipped {
			c.Status = domain.CampaignSending
		}
	}
	return outcomeSent, generatedOK
}

func (d *Dispatcher) markFailed(ctx context.Context, id, message string) {
	if err := d.queue.MarkFailed(ctx, id, message); err != nil {
		log.Printf("[Dispatcher] mark failed %s: %v", id, err)
	}
}

func (d *Dispatcher) tripBreaker(ctx context.Context, c *domain.Campaign, errors int) {
	reason := fmt.Sprintf("circuit breaker: %d generation errors in one batch", errors)
	if err := d.campaigns.Pause(ctx, c.ID, reason); err != nil {
		log.Printf("[Dispatcher] pause campaign %s: %v", c.ID, err)
		return
	}
	c.Status = domain.CampaignPaused
	log.Printf("[Dispatcher] paused campaign %s (%s): %s", c.Name, c.ID, reason)
}

// Stats returns lifetime counters for the health endpoint.
func (d *Dispatcher) Stats() map[string]int64 {
	return map[string]int64{
		"sent":      atomic.LoadInt64(&d.totalSent),
		"failed":    atomic.LoadInt64(&d.totalFailed),
		"generated": atomic.LoadInt64(&d.totalGenerated),
		"requeued":  atomic.LoadInt64(&d.totalSwept),
	}
}
