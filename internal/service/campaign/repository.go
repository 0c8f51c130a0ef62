package campaign

import (
	"context"
	"time"

	"github.com/ozlistings/outreach-engine/internal/domain"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Campaign, error)

	// List returns campaigns matching the filter, ordered by created_at DESC.
	List(ctx context.Context, filter ListFilter) ([]domain.Campaign, int, error)

	// Create inserts a new campaign and returns its ID.
	Create(ctx context.Context, c *domain.Campaign) (string, error)

	// Update modifies a campaign's authoring fields.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a campaign and its queue rows.
	Delete(ctx context.Context, id string) error

	// UpdateStatus sets a campaign's status unconditionally.
	UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error

	// TransitionStatus sets the status only when the current status is one
	// of from. Returns false when the guard did not match, so racing
	// callers lose cleanly instead of clobbering each other.
	TransitionStatus(ctx context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) (bool, error)

	// Pause sets status paused and records why.
	Pause(ctx context.Context, id, reason string) error

	// SetTotalRecipients records the staged recipient count.
	SetTotalRecipients(ctx context.Context, id string, total int) error
}

// QueueRepository defines data access for the send queue.
type QueueRepository interface {
	// InsertMany inserts queue items in chunks.
	InsertMany(ctx context.Context, items []domain.QueueItem) error

	// Get returns one queue item by ID.
	Get(ctx context.Context, id string) (*domain.QueueItem, error)

	// Staged returns a campaign's staged items in creation order. A non-nil
	// ids slice restricts the result to those items.
	Staged(ctx context.Context, campaignID string, ids []string) ([]domain.QueueItem, error)

	// Failed returns a campaign's failed items in creation order.
	Failed(ctx context.Context, campaignID string) ([]domain.QueueItem, error)

	// DeleteStaged removes a campaign's staged rows. Restaging starts clean.
	DeleteStaged(ctx context.Context, campaignID string) error

	// DomainCommitments returns, per domain index, the latest scheduled_for
	// among queued and processing items across all campaigns.
	DomainCommitments(ctx context.Context) (map[int]time.Time, error)

	// Schedule moves an item to queued with its planned slot.
	Schedule(ctx context.Context, id string, domainIndex int, fromEmail string, at time.Time) error

	// DueBatch returns queued items whose scheduled_for has passed,
	// excluding items of paused campaigns, in creation order.
	DueBatch(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error)

	// Claim atomically moves a queued item to processing. Returns false
	// when another worker claimed it first.
	Claim(ctx context.Context, id string) (bool, error)

	// SaveBody persists a just-in-time rendered body.
	SaveBody(ctx context.Context, id, body string) error

	// UpdateContent saves an operator edit to subject and body and marks
	// the item edited so the dispatcher sends it verbatim.
	UpdateContent(ctx context.Context, id, subject, body string) error

	// MarkSent finalizes a delivered item.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed finalizes a failed item with the error detail.
	MarkFailed(ctx context.Context, id, message string) error

	// ResetStuck requeues processing items older than the cutoff and
	// returns how many were swept.
	ResetStuck(ctx context.Context, olderThan time.Time) (int64, error)

	// CountByStatus returns per-status counts for a campaign.
	CountByStatus(ctx context.Context, campaignID string) (map[domain.QueueItemStatus]int, error)

	// CountScheduledAfter counts a campaign's queued items scheduled
	// strictly after t.
	CountScheduledAfter(ctx context.Context, campaignID string, t time.Time) (int, error)
}

// RecipientContact pairs a campaign recipient with its contact record.
type RecipientContact struct {
	Recipient domain.Recipient
	Contact   domain.Contact
}

// RecipientRepository defines data access for campaign recipients and their
// contacts.
type RecipientRepository interface {
	// ActiveContacts returns one page of the campaign's active,
	// non-suppressed recipients joined with their contact records, in
	// attachment order. A page shorter than limit is the last one.
	ActiveContacts(ctx context.Context, campaignID string, limit, offset int) ([]RecipientContact, error)

	// Attach adds a contact to a campaign with a chosen address.
	Attach(ctx context.Context, campaignID, contactID, selectedEmail string) error

	// Detach removes a contact from a campaign.
	Detach(ctx context.Context, campaignID, contactID string) error

	// MarkBounced flags the recipient and globally suppresses the contact.
	MarkBounced(ctx context.Context, campaignID, email string) error

	// MarkUnsubscribed flags the recipient and globally suppresses the contact.
	MarkUnsubscribed(ctx context.Context, campaignID, email string) error

	// MarkComplained flags a spam complaint and globally suppresses the
	// contact.
	MarkComplained(ctx context.Context, campaignID, email string) error
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable authoring fields for a campaign update.
// Nil fields are not applied.
type UpdateFields struct {
	Name        *string
	Sender      *domain.Sender
	Sections    []domain.Section
	Subject     *domain.SubjectLine
	EmailFormat *domain.EmailFormat
}
