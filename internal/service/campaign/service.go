package campaign

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ozlistings/outreach-engine/internal/config"
	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/pkg/distlock"
	"github.com/ozlistings/outreach-engine/internal/render"
	"github.com/ozlistings/outreach-engine/internal/schedule"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
)

// LockFactory builds the distributed lock that serializes launch planning.
// Planning reads the domain commitments snapshot and writes new slots; two
// concurrent planners would double-book lanes.
type LockFactory func() distlock.DistLock

// Service implements campaign business logic: authoring, staging, launch
// planning, retries, and completion reconciliation. All public methods are
// safe for concurrent use if the repositories are concurrency-safe.
// defaultStagePageSize bounds how many recipients staging reads at a time.
const defaultStagePageSize = 500

type Service struct {
	repo          Repository
	queue         QueueRepository
	recipients    RecipientRepository
	sched         config.SchedulingConfig
	newLock       LockFactory
	now           func() time.Time
	stagePageSize int
}

// NewService creates a campaign service.
func NewService(repo Repository, queue QueueRepository, recipients RecipientRepository, sched config.SchedulingConfig, newLock LockFactory) *Service {
	return &Service{
		repo:          repo,
		queue:         queue,
		recipients:    recipients,
		sched:         sched,
		newLock:       newLock,
		now:           time.Now,
		stagePageSize: defaultStagePageSize,
	}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, f)
}

// Create validates and persists a new campaign in draft status.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if !input.Sender.Valid() {
		return nil, ErrInvalidSender
	}

	format := input.EmailFormat
	if format == "" {
		format = domain.FormatHTML
	}

	c := &domain.Campaign{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Status:      domain.CampaignDraft,
		Sender:      input.Sender,
		Sections:    input.Sections,
		Subject:     input.Subject,
		EmailFormat: format,
	}

	id, err := s.repo.Create(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// Update modifies mutable campaign fields. Edits to a campaign that already
// queued emails do not rewrite queue rows; restage to pick them up.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Sender != nil && !u.Sender.Valid() {
		return ErrInvalidSender
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a campaign and its queue rows.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Stage materializes the campaign's active recipients into staged queue
// items: resolved subject, flattened metadata, no schedule yet. Recipients
// are read in bounded pages so a large list never loads in one piece.
// Restaging replaces any prior staged rows. Returns the number of items
// staged.
func (s *Service) Stage(ctx context.Context, campaignID string) (int, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignStaged {
		return 0, ErrInvalidTransition
	}

	if err := s.queue.DeleteStaged(ctx, campaignID); err != nil {
		return 0, fmt.Errorf("clear staged rows: %w", err)
	}

	// A restage destroyed its prior rows above; if anything fails past this
	// point the campaign should read as draft again, not as staged with an
	// empty queue. Best effort.
	fail := func(cause error) (int, error) {
		if c.Status == domain.CampaignStaged {
			if rerr := s.repo.UpdateStatus(ctx, campaignID, domain.CampaignDraft); rerr != nil {
				log.Printf("[campaign.Service] Campaign %s: revert to draft: %v", campaignID, rerr)
			}
		}
		return 0, cause
	}

	total := 0
	for offset := 0; ; offset += s.stagePageSize {
		contacts, err := s.recipients.ActiveContacts(ctx, campaignID, s.stagePageSize, offset)
		if err != nil {
			return fail(fmt.Errorf("load recipients: %w", err))
		}
		if len(contacts) == 0 {
			break
		}

		items := make([]domain.QueueItem, 0, len(contacts))
		for _, rc := range contacts {
			email := domain.PrimaryEmail(rc.Recipient, rc.Contact)
			if email == "" {
				log.Printf("[campaign.Service] Campaign %s: contact %s has no address, skipping", campaignID, rc.Contact.ID)
				continue
			}
			metadata := domain.BuildMetadata(rc.Contact, email)
			items = append(items, domain.QueueItem{
				ID:         uuid.New().String(),
				CampaignID: campaignID,
				ToEmail:    email,
				Subject:    render.ReplaceVariables(c.Subject.Content, metadata),
				Status:     domain.QueueStaged,
				Metadata:   metadata,
			})
		}
		if len(items) > 0 {
			if err := s.queue.InsertMany(ctx, items); err != nil {
				return fail(fmt.Errorf("insert staged items: %w", err))
			}
			total += len(items)
		}
		if len(contacts) < s.stagePageSize {
			break
		}
	}
	if total == 0 {
		return fail(ErrNoRecipients)
	}

	if err := s.repo.SetTotalRecipients(ctx, campaignID, total); err != nil {
		return fail(err)
	}
	if err := s.repo.UpdateStatus(ctx, campaignID, domain.CampaignStaged); err != nil {
		return 0, err
	}

	log.Printf("[campaign.Service] Campaign %s: staged %d emails", campaignID, total)
	return total, nil
}

// LaunchSelection picks which staged items to launch. The zero value means
// everything.
type LaunchSelection struct {
	All      bool
	EmailIDs []string
}

// Launch assigns domains and send times to the campaign's staged items and
// moves them to queued. Planning is serialized across processes so domain
// lanes are never double-booked. Returns the number of emails queued.
func (s *Service) Launch(ctx context.Context, campaignID string, sel LaunchSelection) (int, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}
	if !c.Sender.Valid() {
		return 0, ErrInvalidSender
	}
	switch c.Status {
	case domain.CampaignStaged, domain.CampaignScheduled, domain.CampaignSending:
	default:
		return 0, ErrInvalidTransition
	}

	lock := s.newLock()
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire planning lock: %w", err)
	}
	if !acquired {
		return 0, ErrLaunchInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[campaign.Service] release planning lock: %v", err)
		}
	}()

	var ids []string
	if !sel.All {
		ids = sel.EmailIDs
	}
	staged, err := s.queue.Staged(ctx, campaignID, ids)
	if err != nil {
		return 0, fmt.Errorf("load staged items: %w", err)
	}
	if len(staged) == 0 {
		return 0, ErrNoStagedEmails
	}

	commitments, err := s.queue.DomainCommitments(ctx)
	if err != nil {
		return 0, fmt.Errorf("load domain commitments: %w", err)
	}

	planItems := make([]schedule.Item, len(staged))
	for i, item := range staged {
		planItems[i] = schedule.Item{ID: item.ID, DomainIndex: item.DomainIndex}
	}

	assignments := s.planner().Plan(planItems, commitments)
	for _, a := range assignments {
		from := domain.FromAddress(c.Sender, a.DomainIndex)
		if err := s.queue.Schedule(ctx, a.ID, a.DomainIndex, from, a.ScheduledFor); err != nil {
			return 0, fmt.Errorf("schedule item %s: %w", a.ID, err)
		}
	}

	// Already-sending campaigns keep their status; a staged campaign
	// becomes scheduled.
	if c.Status != domain.CampaignSending {
		if err := s.repo.UpdateStatus(ctx, campaignID, domain.CampaignScheduled); err != nil {
			return 0, err
		}
	}

	log.Printf("[campaign.Service] Campaign %s: launched %d emails", campaignID, len(assignments))
	return len(assignments), nil
}

// RetryFailed reschedules the campaign's failed items onto their original
// domains with fresh slots. Returns the number of emails requeued.
func (s *Service) RetryFailed(ctx context.Context, campaignID string) (int, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	lock := s.newLock()
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire planning lock: %w", err)
	}
	if !acquired {
		return 0, ErrLaunchInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			log.Printf("[campaign.Service] release planning lock: %v", err)
		}
	}()

	failed, err := s.queue.Failed(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("load failed items: %w", err)
	}
	if len(failed) == 0 {
		return 0, ErrNoFailedEmails
	}

	commitments, err := s.queue.DomainCommitments(ctx)
	if err != nil {
		return 0, fmt.Errorf("load domain commitments: %w", err)
	}

	planItems := make([]schedule.Item, len(failed))
	for i, item := range failed {
		planItems[i] = schedule.Item{ID: item.ID, DomainIndex: item.DomainIndex}
	}

	assignments := s.planner().Plan(planItems, commitments)
	for _, a := range assignments {
		from := domain.FromAddress(c.Sender, a.DomainIndex)
		if err := s.queue.Schedule(ctx, a.ID, a.DomainIndex, from, a.ScheduledFor); err != nil {
			return 0, fmt.Errorf("reschedule item %s: %w", a.ID, err)
		}
	}

	// A completed campaign with retried sends is live again
	if c.Status == domain.CampaignCompleted {
		if err := s.repo.UpdateStatus(ctx, campaignID, domain.CampaignScheduled); err != nil {
			return 0, err
		}
	}

	log.Printf("[campaign.Service] Campaign %s: retrying %d failed emails", campaignID, len(assignments))
	return len(assignments), nil
}

// MarkSending flips a scheduled campaign to sending. Called by the
// dispatcher on the first successful send; losing the race to another
// worker is fine.
func (s *Service) MarkSending(ctx context.Context, campaignID string) error {
	_, err := s.repo.TransitionStatus(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignScheduled}, domain.CampaignSending)
	return err
}

// Pause halts a campaign's sends with a reason. Queued items stay queued;
// the dispatcher skips them while paused.
func (s *Service) Pause(ctx context.Context, campaignID, reason string) error {
	return s.repo.Pause(ctx, campaignID, reason)
}

// Resume moves a paused campaign back to scheduled.
func (s *Service) Resume(ctx context.Context, campaignID string) error {
	ok, err := s.repo.TransitionStatus(ctx, campaignID,
		[]domain.CampaignStatus{domain.CampaignPaused}, domain.CampaignScheduled)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Progress is a campaign's queue counts for the launch status endpoint.
type Progress struct {
	Status     domain.CampaignStatus `json:"status"`
	Total      int                   `json:"total"`
	Staged     int                   `json:"staged"`
	Queued     int                   `json:"queued"`
	Processing int                   `json:"processing"`
	Sent       int                   `json:"sent"`
	Failed     int                   `json:"failed"`
}

// GetProgress returns the campaign's live queue counts.
func (s *Service) GetProgress(ctx context.Context, campaignID string) (*Progress, error) {
	c, err := s.repo.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	counts, err := s.queue.CountByStatus(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("count queue items: %w", err)
	}
	return &Progress{
		Status:     c.Status,
		Total:      c.TotalRecipients,
		Staged:     counts[domain.QueueStaged],
		Queued:     counts[domain.QueueQueued],
		Processing: counts[domain.QueueProcessing],
		Sent:       counts[domain.QueueSent],
		Failed:     counts[domain.QueueFailed],
	}, nil
}

// ReconcileCompletion scans live campaigns and completes the ones that have
// drained: nothing queued or processing, at least one terminal send, and no
// slot still in the future. The status update is guarded so a concurrent
// launch adding new items wins over a stale completion. Returns how many
// campaigns were completed.
func (s *Service) ReconcileCompletion(ctx context.Context) (int, error) {
	now := s.now()
	completed := 0

	for _, status := range []domain.CampaignStatus{domain.CampaignScheduled, domain.CampaignSending} {
		campaigns, _, err := s.repo.List(ctx, ListFilter{Status: string(status), Limit: 500})
		if err != nil {
			return completed, fmt.Errorf("list %s campaigns: %w", status, err)
		}

		for _, c := range campaigns {
			counts, err := s.queue.CountByStatus(ctx, c.ID)
			if err != nil {
				log.Printf("[campaign.Service] reconcile %s: count error: %v", c.ID, err)
				continue
			}
			if counts[domain.QueueQueued] > 0 || counts[domain.QueueProcessing] > 0 {
				continue
			}
			if counts[domain.QueueSent]+counts[domain.QueueFailed] == 0 {
				continue
			}
			future, err := s.queue.CountScheduledAfter(ctx, c.ID, now)
			if err != nil {
				log.Printf("[campaign.Service] reconcile %s: future count error: %v", c.ID, err)
				continue
			}
			if future > 0 {
				continue
			}

			ok, err := s.repo.TransitionStatus(ctx, c.ID,
				[]domain.CampaignStatus{domain.CampaignScheduled, domain.CampaignSending},
				domain.CampaignCompleted)
			if err != nil {
				log.Printf("[campaign.Service] reconcile %s: transition error: %v", c.ID, err)
				continue
			}
			if ok {
				log.Printf("[campaign.Service] Campaign %s: completed (%d sent, %d failed)",
					c.ID, counts[domain.QueueSent], counts[domain.QueueFailed])
				completed++
			}
		}
	}
	return completed, nil
}

// HandleEvent applies one SparkPost webhook event to recipient state.
// Suppression events flag the campaign recipient and globally suppress the
// contact; deliveries are informational.
func (s *Service) HandleEvent(ctx context.Context, ev sparkpost.Event) error {
	if ev.CampaignID == "" {
		return fmt.Errorf("event %s has no campaign", ev.Type)
	}
	switch ev.Type {
	case sparkpost.EventBounce:
		return s.recipients.MarkBounced(ctx, ev.CampaignID, ev.Recipient)
	case sparkpost.EventUnsubscribe:
		return s.recipients.MarkUnsubscribed(ctx, ev.CampaignID, ev.Recipient)
	case sparkpost.EventSpamComplaint:
		return s.recipients.MarkComplained(ctx, ev.CampaignID, ev.Recipient)
	case sparkpost.EventDelivery:
		log.Printf("[campaign.Service] delivery confirmed: campaign=%s", ev.CampaignID)
		return nil
	default:
		log.Printf("[campaign.Service] ignoring event type %s", ev.Type)
		return nil
	}
}

// AttachRecipient adds a contact to a campaign's recipient list, or updates
// the selected email when already attached.
func (s *Service) AttachRecipient(ctx context.Context, campaignID, contactID, selectedEmail string) error {
	if _, err := s.repo.Get(ctx, campaignID); err != nil {
		return err
	}
	return s.recipients.Attach(ctx, campaignID, contactID, selectedEmail)
}

// DetachRecipient removes a contact from a campaign's recipient list.
func (s *Service) DetachRecipient(ctx context.Context, campaignID, contactID string) error {
	return s.recipients.Detach(ctx, campaignID, contactID)
}

// Unsubscribe globally suppresses an address from a signed one-click link.
// The link carries no campaign, so only the contact-level flags are set.
func (s *Service) Unsubscribe(ctx context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	return s.recipients.MarkUnsubscribed(ctx, "", email)
}

// planner builds a Planner from the scheduling config. An invalid timezone
// falls back to UTC rather than blocking sends.
func (s *Service) planner() *schedule.Planner {
	loc, err := time.LoadLocation(s.sched.Timezone)
	if err != nil {
		log.Printf("[campaign.Service] invalid timezone %q, falling back to UTC: %v", s.sched.Timezone, err)
		loc = time.UTC
	}
	return schedule.NewPlanner(schedule.Options{
		Location:            loc,
		WorkStart:           s.sched.WorkingHourStart,
		WorkEnd:             s.sched.WorkingHourEnd,
		Interval:            s.sched.Interval(),
		JitterMax:           s.sched.JitterMax(),
		PoolSize:            len(domain.DomainPool),
		SkipWeekends:        s.sched.WeekendsSkipped(),
		DisableWorkingHours: s.sched.DisableWorkingHours,
	}).WithClock(s.now)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name        string             `json:"name"`
	Sender      domain.Sender      `json:"sender"`
	Sections    []domain.Section   `json:"sections"`
	Subject     domain.SubjectLine `json:"subject_line"`
	EmailFormat domain.EmailFormat `json:"email_format"`
}
