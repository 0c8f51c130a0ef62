package campaign

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ozlistings/outreach-engine/internal/config"
	"github.com/ozlistings/outreach-engine/internal/domain"
	"github.com/ozlistings/outreach-engine/internal/pkg/distlock"
	"github.com/ozlistings/outreach-engine/internal/sparkpost"
)

// ============================================================================
// In-memory fakes
// ============================================================================

type fakeRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{campaigns: make(map[string]*domain.Campaign)}
}

func (r *fakeRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) List(ctx context.Context, f ListFilter) ([]domain.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		if f.Status == "" || string(c.Status) == f.Status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *fakeRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return c.ID, nil
}

func (r *fakeRepo) Update(ctx context.Context, id string, u UpdateFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.Sender != nil {
		c.Sender = *u.Sender
	}
	if u.Sections != nil {
		c.Sections = u.Sections
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	if u.EmailFormat != nil {
		c.EmailFormat = *u.EmailFormat
	}
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.campaigns, id)
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *fakeRepo) TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return false, ErrNotFound
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) Pause(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = domain.CampaignPaused
	c.PauseReason = reason
	return nil
}

func (r *fakeRepo) SetTotalRecipients(ctx context.Context, id string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.TotalRecipients = total
	return nil
}

type fakeQueue struct {
	mu        sync.Mutex
	items     map[string]*domain.QueueItem
	insertErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(map[string]*domain.QueueItem)}
}

func (q *fakeQueue) InsertMany(ctx context.Context, items []domain.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.insertErr != nil {
		return q.insertErr
	}
	for _, item := range items {
		cp := item
		q.items[item.ID] = &cp
	}
	return nil
}

func (q *fakeQueue) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return nil, errors.New("queue item not found")
	}
	cp := *item
	return &cp, nil
}

func (q *fakeQueue) byStatus(campaignID string, status domain.QueueItemStatus) []domain.QueueItem {
	var out []domain.QueueItem
	for _, item := range q.items {
		if item.CampaignID == campaignID && item.Status == status {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (q *fakeQueue) Staged(ctx context.Context, campaignID string, ids []string) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	staged := q.byStatus(campaignID, domain.QueueStaged)
	if ids == nil {
		return staged, nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []domain.QueueItem
	for _, item := range staged {
		if want[item.ID] {
			out = append(out, item)
		}
	}
	return out, nil
}

func (q *fakeQueue) Failed(ctx context.Context, campaignID string) ([]domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.byStatus(campaignID, domain.QueueFailed), nil
}

func (q *fakeQueue) DeleteStaged(ctx context.Context, campaignID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, item := range q.items {
		if item.CampaignID == campaignID && item.Status == domain.QueueStaged {
			delete(q.items, id)
		}
	}
	return nil
}

func (q *fakeQueue) DomainCommitments(ctx context.Context) (map[int]time.Time, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[int]time.Time)
	for _, item := range q.items {
		if item.Status != domain.QueueQueued && item.Status != domain.QueueProcessing {
			continue
		}
		if item.DomainIndex == nil || item.ScheduledFor == nil {
			continue
		}
		if cur, ok := out[*item.DomainIndex]; !ok || item.ScheduledFor.After(cur) {
			out[*item.DomainIndex] = *item.ScheduledFor
		}
	}
	return out, nil
}

func (q *fakeQueue) Schedule(ctx context.Context, id string, domainIndex int, fromEmail string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok {
		return errors.New("queue item not found")
	}
	item.Status = domain.QueueQueued
	item.DomainIndex = &domainIndex
	item.FromEmail = &fromEmail
	item.ScheduledFor = &at
	item.ErrorMessage = nil
	return nil
}

func (q *fakeQueue) DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	return nil, nil
}

func (q *fakeQueue) Claim(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	if !ok || item.Status != domain.QueueQueued {
		return false, nil
	}
	item.Status = domain.QueueProcessing
	return true, nil
}

func (q *fakeQueue) SaveBody(ctx context.Context, id, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[id]; ok {
		item.Body = body
	}
	return nil
}

func (q *fakeQueue) UpdateContent(ctx context.Context, id, subject, body string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[id]; ok {
		item.Subject = subject
		item.Body = body
		item.IsEdited = true
	}
	return nil
}

func (q *fakeQueue) MarkSent(ctx context.Context, id string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[id]; ok {
		item.Status = domain.QueueSent
		item.SentAt = &at
	}
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, id, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if item, ok := q.items[id]; ok {
		item.Status = domain.QueueFailed
		item.ErrorMessage = &message
	}
	return nil
}

func (q *fakeQueue) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) CountByStatus(ctx context.Context, campaignID string) (map[domain.QueueItemStatus]int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[domain.QueueItemStatus]int)
	for _, item := range q.items {
		if item.CampaignID == campaignID {
			out[item.Status]++
		}
	}
	return out, nil
}

func (q *fakeQueue) CountScheduledAfter(ctx context.Context, campaignID string, t time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if item.CampaignID == campaignID && item.Status == domain.QueueQueued &&
			item.ScheduledFor != nil && item.ScheduledFor.After(t) {
			n++
		}
	}
	return n, nil
}

type fakeRecipients struct {
	contacts   []RecipientContact
	err        error
	bounced    []string
	complained []string
}

func (r *fakeRecipients) ActiveContacts(ctx context.Context, campaignID string, limit, offset int) ([]RecipientContact, error) {
	if r.err != nil {
		return nil, r.err
	}
	if offset >= len(r.contacts) {
		return nil, nil
	}
	end := offset + limit
	if end > len(r.contacts) {
		end = len(r.contacts)
	}
	return r.contacts[offset:end], nil
}

func (r *fakeRecipients) Attach(ctx context.Context, campaignID, contactID, selectedEmail string) error {
	return nil
}

func (r *fakeRecipients) Detach(ctx context.Context, campaignID, contactID string) error {
	return nil
}

func (r *fakeRecipients) MarkBounced(ctx context.Context, campaignID, email string) error {
	r.bounced = append(r.bounced, email)
	return nil
}

func (r *fakeRecipients) MarkUnsubscribed(ctx context.Context, campaignID, email string) error {
	return nil
}

func (r *fakeRecipients) MarkComplained(ctx context.Context, campaignID, email string) error {
	r.complained = append(r.complained, email)
	return nil
}

type fakeLock struct{ busy bool }

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) { return !l.busy, nil }
func (l *fakeLock) Release(ctx context.Context) error         { return nil }

// ============================================================================
// Fixtures
// ============================================================================

func testScheduling() config.SchedulingConfig {
	return config.SchedulingConfig{
		Timezone:         "America/Los_Angeles",
		WorkingHourStart: 9,
		WorkingHourEnd:   17,
		IntervalMinutes:  3.5,
		JitterSecondsMax: 0,
	}
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeQueue, *fakeRecipients) {
	t.Helper()
	repo := newFakeRepo()
	queue := newFakeQueue()
	recipients := &fakeRecipients{}
	svc := NewService(repo, queue, recipients, testScheduling(),
		func() distlock.DistLock { return &fakeLock{} })
	// Monday 2026-01-05 10:00 PST, inside the working window
	loc, _ := time.LoadLocation("America/Los_Angeles")
	fixed := time.Date(2026, 1, 5, 10, 0, 0, 0, loc)
	svc.now = func() time.Time { return fixed }
	return svc, repo, queue, recipients
}

func seedCampaign(t *testing.T, svc *Service, status domain.CampaignStatus) *domain.Campaign {
	t.Helper()
	c, err := svc.Create(context.Background(), CreateInput{
		Name:   "Q1 Outreach",
		Sender: domain.SenderToddVitzthum,
		Sections: []domain.Section{
			{ID: "s1", Name: "Intro", Type: domain.SectionText, Mode: domain.ModeStatic, Content: "Hi {{FirstName}},"},
		},
		Subject: domain.SubjectLine{Mode: "static", Content: "Hello {{FirstName}}"},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if status != domain.CampaignDraft {
		if err := svc.repo.UpdateStatus(context.Background(), c.ID, status); err != nil {
			t.Fatalf("seed status: %v", err)
		}
	}
	return c
}

func seedContacts(recipients *fakeRecipients, n int) {
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		recipients.contacts = append(recipients.contacts, RecipientContact{
			Recipient: domain.Recipient{ID: "r" + id, ContactID: "c" + id, Status: domain.RecipientActive},
			Contact: domain.Contact{
				ID:      "c" + id,
				Name:    "Contact " + strings.ToUpper(id),
				Email:   id + "@example.com",
				Company: "Acme",
			},
		})
	}
}

// ============================================================================
// Tests
// ============================================================================

func TestCreateValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), CreateInput{Name: "x", Sender: "nobody"})
	if !errors.Is(err, ErrInvalidSender) {
		t.Errorf("err = %v, want ErrInvalidSender", err)
	}

	_, err = svc.Create(context.Background(), CreateInput{Sender: domain.SenderJeffRichmond})
	if err == nil {
		t.Error("expected error for missing name")
	}
}

func TestStage(t *testing.T) {
	svc, repo, queue, recipients := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignDraft)
	seedContacts(recipients, 3)

	n, err := svc.Stage(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if n != 3 {
		t.Errorf("staged = %d, want 3", n)
	}

	staged, _ := queue.Staged(context.Background(), c.ID, nil)
	if len(staged) != 3 {
		t.Fatalf("queue rows = %d, want 3", len(staged))
	}
	for _, item := range staged {
		if item.Status != domain.QueueStaged {
			t.Errorf("item status = %s, want staged", item.Status)
		}
		if item.ScheduledFor != nil || item.DomainIndex != nil {
			t.Error("staged items must not carry schedule fields")
		}
		if item.Metadata["FirstName"] != "Contact" {
			t.Errorf("FirstName = %q, want split from name", item.Metadata["FirstName"])
		}
		if !strings.HasPrefix(item.Subject, "Hello Contact") {
			t.Errorf("subject = %q, want substituted", item.Subject)
		}
	}

	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignStaged {
		t.Errorf("campaign status = %s, want staged", got.Status)
	}
	if got.TotalRecipients != 3 {
		t.Errorf("total recipients = %d, want 3", got.TotalRecipients)
	}
}

func TestStageReplacesPriorStaged(t *testing.T) {
	svc, _, queue, recipients := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignDraft)
	seedContacts(recipients, 2)

	if _, err := svc.Stage(context.Background(), c.ID); err != nil {
		t.Fatalf("first Stage() error: %v", err)
	}
	if _, err := svc.Stage(context.Background(), c.ID); err != nil {
		t.Fatalf("second Stage() error: %v", err)
	}

	staged, _ := queue.Staged(context.Background(), c.ID, nil)
	if len(staged) != 2 {
		t.Errorf("queue rows = %d after restage, want 2", len(staged))
	}
}

func TestStagePagesThroughRecipients(t *testing.T) {
	svc, repo, queue, recipients := newTestService(t)
	svc.stagePageSize = 2
	c := seedCampaign(t, svc, domain.CampaignDraft)
	seedContacts(recipients, 5)

	n, err := svc.Stage(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	if n != 5 {
		t.Errorf("staged = %d, want 5 across three pages", n)
	}

	staged, _ := queue.Staged(context.Background(), c.ID, nil)
	if len(staged) != 5 {
		t.Errorf("queue rows = %d, want 5", len(staged))
	}
	got, _ := repo.Get(context.Background(), c.ID)
	if got.TotalRecipients != 5 {
		t.Errorf("total recipients = %d, want 5", got.TotalRecipients)
	}
}

func TestStageFailureRevertsToDraft(t *testing.T) {
	svc, repo, queue, recipients := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignStaged)
	seedContacts(recipients, 2)
	queue.insertErr = errors.New("deadlock detected")

	if _, err := svc.Stage(context.Background(), c.ID); err == nil {
		t.Fatal("expected Stage() to fail")
	}
	// The restage already dropped its staged rows, so the campaign must not
	// keep claiming to be staged.
	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignDraft {
		t.Errorf("campaign status = %s, want draft after failed restage", got.Status)
	}
}

func TestStageNoRecipients(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignDraft)

	if _, err := svc.Stage(context.Background(), c.ID); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("err = %v, want ErrNoRecipients", err)
	}
}

func TestStageWrongState(t *testing.T) {
	svc, _, _, recipients := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignSending)
	seedContacts(recipients, 1)

	if _, err := svc.Stage(context.Background(), c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestLaunch(t *testing.T) {
	svc, repo, queue, recipients := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignDraft)
	seedContacts(recipients, 3)

	if _, err := svc.Stage(context.Background(), c.ID); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	n, err := svc.Launch(context.Background(), c.ID, LaunchSelection{All: true})
	if err != nil {
		t.Fatalf("Launch() error: %v", err)
	}
	if n != 3 {
		t.Errorf("launched = %d, want 3", n)
	}

	counts, _ := queue.CountByStatus(context.Background(), c.ID)
	if counts[domain.QueueQueued] != 3 || counts[domain.QueueStaged] != 0 {
		t.Errorf("counts = %v, want all queued", counts)
	}
	for _, item := range queue.items {
		if item.ScheduledFor == nil || item.DomainIndex == nil || item.FromEmail == nil {
			t.Fatal("queued items must carry schedule fields")
		}
		if !strings.Contains(*item.FromEmail, "todd.vitzthum@") {
			t.Errorf("from = %q, want sender local part", *item.FromEmail)
		}
		if !strings.Contains(*item.FromEmail, domain.DomainPool[*item.DomainIndex]) {
			t.Errorf("from = %q does not match domain index %d", *item.FromEmail, *item.DomainIndex)
		}
	}

	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignScheduled {
		t.Errorf("campaign status = %s, want scheduled", got.Status)
	}
}

func TestLaunchLockBusy(t *testing.T) {
	svc, _, _, recipients := newTestService(t)
	svc.newLock = func() distlock.DistLock { return &fakeLock{busy: true} }
	c := seedCampaign(t, svc, domain.CampaignStaged)
	seedContacts(recipients, 1)

	if _, err := svc.Launch(context.Background(), c.ID, LaunchSelection{All: true}); !errors.Is(err, ErrLaunchInProgress) {
		t.Errorf("err = %v, want ErrLaunchInProgress", err)
	}
}

func TestLaunchNoStagedEmails(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignStaged)

	if _, err := svc.Launch(context.Background(), c.ID, LaunchSelection{All: true}); !errors.Is(err, ErrNoStagedEmails) {
		t.Errorf("err = %v, want ErrNoStagedEmails", err)
	}
}

func TestLaunchWrongState(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignDraft)

	if _, err := svc.Launch(context.Background(), c.ID, LaunchSelection{All: true}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRetryFailedKeepsDomain(t *testing.T) {
	svc, _, queue, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignSending)

	idx := 5
	msg := "SparkPost API Error"
	queue.items["f1"] = &domain.QueueItem{
		ID: "f1", CampaignID: c.ID, ToEmail: "a@example.com",
		Status: domain.QueueFailed, DomainIndex: &idx, ErrorMessage: &msg,
	}

	n, err := svc.RetryFailed(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("RetryFailed() error: %v", err)
	}
	if n != 1 {
		t.Errorf("retried = %d, want 1", n)
	}

	item, _ := queue.Get(context.Background(), "f1")
	if item.Status != domain.QueueQueued {
		t.Errorf("status = %s, want queued", item.Status)
	}
	if item.DomainIndex == nil || *item.DomainIndex != 5 {
		t.Error("retry must keep the original domain index")
	}
	if item.ErrorMessage != nil {
		t.Error("retry must clear the error message")
	}
}

func TestRetryFailedNone(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignCompleted)

	if _, err := svc.RetryFailed(context.Background(), c.ID); !errors.Is(err, ErrNoFailedEmails) {
		t.Errorf("err = %v, want ErrNoFailedEmails", err)
	}
}

func TestReconcileCompletion(t *testing.T) {
	svc, repo, queue, _ := newTestService(t)
	done := seedCampaign(t, svc, domain.CampaignSending)
	busy := seedCampaign(t, svc, domain.CampaignSending)

	now := svc.now()
	past := now.Add(-time.Hour)
	sentAt := now.Add(-30 * time.Minute)
	queue.items["d1"] = &domain.QueueItem{ID: "d1", CampaignID: done.ID, Status: domain.QueueSent, SentAt: &sentAt}
	queue.items["d2"] = &domain.QueueItem{ID: "d2", CampaignID: done.ID, Status: domain.QueueFailed}
	queue.items["b1"] = &domain.QueueItem{ID: "b1", CampaignID: busy.ID, Status: domain.QueueSent, SentAt: &sentAt}
	queue.items["b2"] = &domain.QueueItem{ID: "b2", CampaignID: busy.ID, Status: domain.QueueQueued, ScheduledFor: &past}

	n, err := svc.ReconcileCompletion(context.Background())
	if err != nil {
		t.Fatalf("ReconcileCompletion() error: %v", err)
	}
	if n != 1 {
		t.Errorf("completed = %d, want 1", n)
	}

	gotDone, _ := repo.Get(context.Background(), done.ID)
	if gotDone.Status != domain.CampaignCompleted {
		t.Errorf("drained campaign status = %s, want completed", gotDone.Status)
	}
	gotBusy, _ := repo.Get(context.Background(), busy.ID)
	if gotBusy.Status != domain.CampaignSending {
		t.Errorf("busy campaign status = %s, want sending", gotBusy.Status)
	}
}

func TestReconcileSkipsFutureScheduled(t *testing.T) {
	svc, repo, queue, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignScheduled)

	// Everything due has drained but one slot is still in the future
	future := svc.now().Add(2 * time.Hour)
	sentAt := svc.now()
	queue.items["s1"] = &domain.QueueItem{ID: "s1", CampaignID: c.ID, Status: domain.QueueSent, SentAt: &sentAt}
	queue.items["q1"] = &domain.QueueItem{ID: "q1", CampaignID: c.ID, Status: domain.QueueQueued, ScheduledFor: &future}

	if _, err := svc.ReconcileCompletion(context.Background()); err != nil {
		t.Fatalf("ReconcileCompletion() error: %v", err)
	}
	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignScheduled {
		t.Errorf("status = %s, want scheduled (future slot pending)", got.Status)
	}
}

func TestReconcileIgnoresFreshCampaign(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignScheduled)

	// No terminal sends yet, nothing to reconcile
	if _, err := svc.ReconcileCompletion(context.Background()); err != nil {
		t.Fatalf("ReconcileCompletion() error: %v", err)
	}
	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
}

func TestResume(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignPaused)

	if err := svc.Resume(context.Background(), c.ID); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}

	// Resuming a non-paused campaign must fail
	if err := svc.Resume(context.Background(), c.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestMarkSending(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignScheduled)

	if err := svc.MarkSending(context.Background(), c.ID); err != nil {
		t.Fatalf("MarkSending() error: %v", err)
	}
	got, _ := repo.Get(context.Background(), c.ID)
	if got.Status != domain.CampaignSending {
		t.Errorf("status = %s, want sending", got.Status)
	}

	// Second flip is a no-op, not an error
	if err := svc.MarkSending(context.Background(), c.ID); err != nil {
		t.Errorf("repeat MarkSending() error: %v", err)
	}
}

func TestGetProgress(t *testing.T) {
	svc, _, queue, recipients := newTestService(t)
	c := seedCampaign(t, svc, domain.CampaignDraft)
	seedContacts(recipients, 2)

	if _, err := svc.Stage(context.Background(), c.ID); err != nil {
		t.Fatalf("Stage() error: %v", err)
	}
	sentAt := svc.now()
	queue.items["extra"] = &domain.QueueItem{ID: "extra", CampaignID: c.ID, Status: domain.QueueSent, SentAt: &sentAt}

	p, err := svc.GetProgress(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetProgress() error: %v", err)
	}
	if p.Staged != 2 || p.Sent != 1 || p.Total != 2 {
		t.Errorf("progress = %+v", p)
	}
}

func TestHandleEvent(t *testing.T) {
	svc, _, _, recipients := newTestService(t)

	err := svc.HandleEvent(context.Background(), sparkpost.Event{
		Type: sparkpost.EventBounce, Recipient: "ada@example.com", CampaignID: "camp-1",
	})
	if err != nil {
		t.Fatalf("HandleEvent() error: %v", err)
	}
	if len(recipients.bounced) != 1 || recipients.bounced[0] != "ada@example.com" {
		t.Errorf("bounced = %v", recipients.bounced)
	}

	// Unknown types are dropped quietly
	if err := svc.HandleEvent(context.Background(), sparkpost.Event{
		Type: "open", Recipient: "x@y.z", CampaignID: "camp-1",
	}); err != nil {
		t.Errorf("unknown event type error: %v", err)
	}

	// Missing campaign is an error the webhook intake counts
	if err := svc.HandleEvent(context.Background(), sparkpost.Event{Type: sparkpost.EventBounce, Recipient: "x@y.z"}); err == nil {
		t.Error("expected error for event without campaign")
	}
}
